package handle

import (
	"errors"

	"github.com/kolkov/syncore/internal/lock/wakeup"
)

var (
	// ErrNotOwned is returned when the caller must own the handle and does not.
	ErrNotOwned = errors.New("synchronization object not owned")

	// ErrNoMemory is returned when a held-locks set or a wait queue cannot
	// grow. The refused operation leaves the handle unchanged.
	ErrNoMemory = errors.New("out of memory")

	// ErrWrongKind is returned when an operation is applied to a handle of a
	// kind that does not support it.
	ErrWrongKind = errors.New("wrong kind of wait handle")
)

// Kind identifies the concrete type of a wait handle.
type Kind int

const (
	KindMutex Kind = iota + 1
	KindNamedMutex
	KindMonitor
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMutex:
		return "mutex"
	case KindNamedMutex:
		return "named mutex"
	case KindMonitor:
		return "monitor"
	default:
		return "unknown"
	}
}

// Status is the outcome of Enter and Monitor.Wait.
type Status int

const (
	// StatusOK means the caller owns the handle (for Wait: it was pulsed).
	StatusOK Status = iota

	// StatusTimedOut means the timeout elapsed. For a zero timeout this is
	// the "busy" answer of TryEnter.
	StatusTimedOut

	// StatusInterrupted means a pending interrupt was observed and cleared.
	StatusInterrupted

	// StatusAborted means an abort is pending. The abort stays set.
	StatusAborted

	// StatusFailed accompanies a non-nil error.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimedOut:
		return "timed out"
	case StatusInterrupted:
		return "interrupted"
	case StatusAborted:
		return "aborted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func statusOf(r wakeup.WaitResult) Status {
	switch r {
	case wakeup.Signalled:
		return StatusOK
	case wakeup.TimedOut:
		return StatusTimedOut
	case wakeup.Interrupted:
		return StatusInterrupted
	default:
		return StatusAborted
	}
}

// ReleaseStatus is the outcome of Release.
type ReleaseStatus int

const (
	// ReleaseSuccess means the count reached zero and ownership was given up
	// (possibly handed to a waiter).
	ReleaseSuccess ReleaseStatus = iota

	// ReleaseStillOwns means the recursion count is still positive.
	ReleaseStillOwns

	// ReleaseFail means the caller was not the owner; nothing changed.
	ReleaseFail
)

// String returns the status name.
func (s ReleaseStatus) String() string {
	switch s {
	case ReleaseSuccess:
		return "success"
	case ReleaseStillOwns:
		return "still owns"
	case ReleaseFail:
		return "fail"
	default:
		return "unknown"
	}
}

// CloseStatus is the outcome of Close.
type CloseStatus int

const (
	// CloseFree means the handle may be destroyed.
	CloseFree CloseStatus = iota

	// CloseOwned means the handle is still in use and must stay alive; the
	// handle remains valid.
	CloseOwned

	// CloseDontFree means other references to a named mutex remain.
	CloseDontFree
)

// String returns the status name.
func (s CloseStatus) String() string {
	switch s {
	case CloseFree:
		return "free"
	case CloseOwned:
		return "owned"
	case CloseDontFree:
		return "don't free"
	default:
		return "unknown"
	}
}

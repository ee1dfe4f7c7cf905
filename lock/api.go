package lock

import (
	internal "github.com/kolkov/syncore/internal/lock/api"
	"github.com/kolkov/syncore/internal/lock/config"
	"github.com/kolkov/syncore/internal/lock/handle"
)

// Handle refers to a mutex, named mutex or monitor. Zero is never valid.
type Handle = internal.Handle

// ThreadID identifies a goroutine's thread context.
type ThreadID = internal.ThreadID

// Object is a lockable object with a lock-free uncontended path.
type Object = internal.Object

// Status is the outcome of an enter or wait call.
type Status = handle.Status

// Enter and wait outcomes.
const (
	StatusOK          = handle.StatusOK
	StatusTimedOut    = handle.StatusTimedOut
	StatusInterrupted = handle.StatusInterrupted
	StatusAborted     = handle.StatusAborted
	StatusFailed      = handle.StatusFailed
)

// ReleaseStatus is the outcome of a release call.
type ReleaseStatus = handle.ReleaseStatus

// Release outcomes.
const (
	ReleaseSuccess   = handle.ReleaseSuccess
	ReleaseStillOwns = handle.ReleaseStillOwns
	ReleaseFail      = handle.ReleaseFail
)

// CloseStatus is the outcome of a close call.
type CloseStatus = handle.CloseStatus

// Close outcomes.
const (
	CloseFree     = handle.CloseFree
	CloseOwned    = handle.CloseOwned
	CloseDontFree = handle.CloseDontFree
)

// Infinite as a timeout waits without limit.
const Infinite = internal.Infinite

// Errors returned by the package.
var (
	ErrNotOwned      = handle.ErrNotOwned
	ErrWrongKind     = handle.ErrWrongKind
	ErrNoMemory      = handle.ErrNoMemory
	ErrInvalidHandle = internal.ErrInvalidHandle
	ErrUnknownThread = internal.ErrUnknownThread
)

// Option configures Init.
type Option = config.Option

// Options accepted by Init. They override SYNCORE_OPTIONS.
var (
	WithLogLevel        = config.WithLogLevel
	WithJSONLogs        = config.WithJSONLogs
	WithOwnerTracking   = config.WithOwnerTracking
	WithMaxQueue        = config.WithMaxQueue
	WithMaxHeld         = config.WithMaxHeld
	WithSpinLimit       = config.WithSpinLimit
	WithReclaimInterval = config.WithReclaimInterval
)

// Init (re)initializes the runtime. Any handles and thread contexts from a
// previous Init are dropped.
//
//	func main() {
//		if err := lock.Init(lock.WithOwnerTracking(true)); err != nil {
//			log.Fatal(err)
//		}
//		defer lock.Fini()
//		// ...
//	}
//
// Init must not run concurrently with other calls.
func Init(opts ...Option) error {
	return internal.Init(opts...)
}

// Fini prints the end-of-run summary, including the number of protocol
// violations, to stderr.
func Fini() {
	internal.Fini()
}

// Reset drops all handles and thread contexts, keeping the configuration.
// Intended for tests.
func Reset() {
	internal.Reset()
}

// CurrentThread returns the calling goroutine's thread identity.
func CurrentThread() ThreadID {
	return internal.CurrentThread()
}

// Interrupt makes the thread's current or next interruptible wait return
// StatusInterrupted. The request is consumed by that wait.
func Interrupt(id ThreadID) error {
	return internal.Interrupt(id)
}

// Abort makes every later interruptible wait of the thread return
// StatusAborted.
func Abort(id ThreadID) error {
	return internal.Abort(id)
}

// MutexCreate creates a mutex. With initiallyOwned the caller owns it once.
func MutexCreate(initiallyOwned bool) (Handle, error) {
	return internal.MutexCreate(initiallyOwned)
}

// NamedMutexCreate opens the process-wide mutex called name, creating it if
// it does not exist. gotOwnership reports whether the caller owns it on
// return; for an existing mutex initiallyOwned only tries to acquire it.
// Every call returns a new handle that must be closed.
func NamedMutexCreate(name string, initiallyOwned bool) (h Handle, gotOwnership bool, err error) {
	return internal.NamedMutexCreate(name, initiallyOwned)
}

// MutexEnter acquires h, waiting at most timeoutMs milliseconds. h may be a
// mutex, a named mutex or a monitor.
func MutexEnter(h Handle, timeoutMs uint32) (Status, error) {
	return internal.MutexEnter(h, timeoutMs)
}

// MutexTryEnter acquires h only if no waiting is needed. StatusTimedOut
// means the mutex is busy.
func MutexTryEnter(h Handle) (Status, error) {
	return internal.MutexTryEnter(h)
}

// MutexRelease releases one level of ownership of h, which may be a mutex,
// a named mutex or a monitor.
func MutexRelease(h Handle) (ReleaseStatus, error) {
	return internal.MutexRelease(h)
}

// MutexClose closes h. CloseOwned means the mutex is in use and h stays
// valid; CloseDontFree means other handles still refer to the named mutex.
func MutexClose(h Handle) (CloseStatus, error) {
	return internal.MutexClose(h)
}

// MonitorCreate creates a monitor.
func MonitorCreate() (Handle, error) {
	return internal.MonitorCreate()
}

// MonitorEnter is MutexEnter.
func MonitorEnter(h Handle, timeoutMs uint32) (Status, error) {
	return internal.MonitorEnter(h, timeoutMs)
}

// MonitorTryEnter acquires the monitor h only if no waiting is needed.
func MonitorTryEnter(h Handle) (Status, error) {
	return internal.MonitorTryEnter(h)
}

// MonitorExit is MutexRelease.
func MonitorExit(h Handle) (ReleaseStatus, error) {
	return internal.MonitorExit(h)
}

// MonitorWait releases h completely, waits for a pulse or timeoutMs, and
// re-acquires h with its previous recursion count before returning.
func MonitorWait(h Handle, timeoutMs uint32) (Status, error) {
	return internal.MonitorWait(h, timeoutMs)
}

// MonitorPulse wakes the longest waiting thread. The caller must own h.
func MonitorPulse(h Handle) error {
	return internal.MonitorPulse(h)
}

// MonitorPulseAll wakes every waiting thread. The caller must own h.
func MonitorPulseAll(h Handle) error {
	return internal.MonitorPulseAll(h)
}

// MonitorClose closes h. CloseOwned means threads are waiting on it and h
// stays valid.
func MonitorClose(h Handle) (CloseStatus, error) {
	return internal.MonitorClose(h)
}

// NewObject returns an unlocked lockable object.
func NewObject() *Object {
	return internal.NewObject()
}

package wakeup

import (
	"sync"
	"time"
)

// Infinite is the timeout meaning "block until signalled".
const Infinite time.Duration = -1

// WaitResult is the outcome of a primitive wait.
type WaitResult int

const (
	// Signalled means the armed signal count reached zero.
	Signalled WaitResult = iota

	// TimedOut means the timeout elapsed first.
	TimedOut

	// Interrupted means a pending interrupt was observed.
	Interrupted

	// Aborted means an abort request was observed.
	Aborted
)

// String returns the result name.
func (r WaitResult) String() string {
	switch r {
	case Signalled:
		return "signalled"
	case TimedOut:
		return "timed out"
	case Interrupted:
		return "interrupted"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// WaitMode selects whether a wait can be cut short by cancellation.
type WaitMode int

const (
	// Interruptible waits return early on interrupt or abort.
	Interruptible WaitMode = iota

	// Uninterruptible waits ignore cancellation. Monitor re-acquisition after
	// Wait uses this mode.
	Uninterruptible
)

// Held is anything a Wakeup can own: wait handles expose a process-unique
// non-zero identity.
type Held interface {
	ID() uint64
}

// Wakeup is the Wait Context of one goroutine.
type Wakeup struct {
	id       uint32
	gid      int64
	osThread int

	cancel *Cancellation
	held   HeldSet

	// mu guards the primitive endpoint below.
	mu      sync.Mutex
	pending int
	ch      chan struct{}
}

// New creates the Wait Context for goroutine gid with identity id.
// maxHeld bounds the held-locks set (0 means unbounded).
//
// New must be called on the goroutine that will own the context: it records
// the kernel thread the goroutine is running on for diagnostics.
func New(id uint32, gid int64, maxHeld int) *Wakeup {
	return &Wakeup{
		id:       id,
		gid:      gid,
		osThread: currentOSThread(),
		cancel:   NewCancellation(),
		held:     HeldSet{limit: maxHeld},
	}
}

// ID returns the context identity. It is never zero.
func (w *Wakeup) ID() uint32 {
	return w.id
}

// GoroutineID returns the goroutine the context belongs to.
func (w *Wakeup) GoroutineID() int64 {
	return w.gid
}

// OSThread returns the kernel thread id observed when the context was
// created, or 0 where the platform does not expose one.
func (w *Wakeup) OSThread() int {
	return w.osThread
}

// Cancel returns the cancellation state of the context.
func (w *Wakeup) Cancel() *Cancellation {
	return w.cancel
}

// Held returns the held-locks set. Only the owning goroutine may use it.
func (w *Wakeup) Held() *HeldSet {
	return &w.held
}

// Arm prepares the endpoint to complete after n signals. Any earlier arming
// is discarded.
func (w *Wakeup) Arm(n int) {
	if n < 1 {
		n = 1
	}
	w.mu.Lock()
	w.pending = n
	w.ch = make(chan struct{})
	w.mu.Unlock()
}

// Signal delivers one signal. It reports whether an armed wait consumed it;
// signals sent to an endpoint that is not armed are dropped.
func (w *Wakeup) Signal() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == 0 {
		return false
	}
	w.pending--
	if w.pending == 0 {
		close(w.ch)
	}
	return true
}

// Wait blocks until the armed signal count reaches zero, the timeout elapses
// or, in Interruptible mode, an interrupt or abort is pending.
//
// Wait never consumes the interrupt bit; the caller decides whether the
// observation counts (see Cancellation.Check).
//
// A zero timeout polls. Infinite blocks without a timer.
func (w *Wakeup) Wait(timeout time.Duration, mode WaitMode) WaitResult {
	w.mu.Lock()
	ch := w.ch
	w.mu.Unlock()
	if ch == nil {
		// Never armed: nothing can signal us.
		return Signalled
	}

	select {
	case <-ch:
		return Signalled
	default:
	}

	var notify <-chan struct{}
	if mode == Interruptible {
		if res, ok := w.cancel.pending(); ok {
			return res
		}
		notify = w.cancel.notify
	}
	if timeout == 0 {
		return TimedOut
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ch:
			return Signalled
		case <-expired:
			// A signal that raced with the timer wins.
			select {
			case <-ch:
				return Signalled
			default:
			}
			return TimedOut
		case <-notify:
			if res, ok := w.cancel.pending(); ok {
				return res
			}
			// Stale notification left by an interrupt that was already consumed.
		}
	}
}

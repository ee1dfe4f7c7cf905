package wakeup

import "github.com/kolkov/syncore/internal/lock/atomics"

const (
	interruptBit = 1 << iota
	abortBit
)

// Cancellation holds the cooperative cancellation requests of one thread.
//
// An interrupt is one-shot: the first blocking operation that observes it
// clears it. An abort is sticky: this layer reports it on every blocking
// operation and never clears it.
type Cancellation struct {
	flags  atomics.Flags
	notify chan struct{}
}

// NewCancellation returns a state with no pending requests.
func NewCancellation() *Cancellation {
	return &Cancellation{notify: make(chan struct{}, 1)}
}

// Interrupt requests a one-shot interruption of the current or next
// interruptible wait.
func (c *Cancellation) Interrupt() {
	c.flags.Set(interruptBit)
	c.poke()
}

// Abort requests a sticky abort.
func (c *Cancellation) Abort() {
	c.flags.Set(abortBit)
	c.poke()
}

// Interrupted reports whether an interrupt is pending.
func (c *Cancellation) Interrupted() bool {
	return c.flags.Has(interruptBit)
}

// Aborted reports whether an abort was requested.
func (c *Cancellation) Aborted() bool {
	return c.flags.Has(abortBit)
}

// ConsumeInterrupt clears a pending interrupt and reports whether there was one.
func (c *Cancellation) ConsumeInterrupt() bool {
	return c.flags.TestAndClear(interruptBit)
}

// Check is the pre-block test of every interruptible operation. It reports
// Aborted (leaving the abort in place) or Interrupted (clearing it).
func (c *Cancellation) Check() (WaitResult, bool) {
	if c.Aborted() {
		return Aborted, true
	}
	if c.ConsumeInterrupt() {
		return Interrupted, true
	}
	return Signalled, false
}

// pending reports a pending request without consuming it.
func (c *Cancellation) pending() (WaitResult, bool) {
	bits := c.flags.Load()
	switch {
	case bits&abortBit != 0:
		return Aborted, true
	case bits&interruptBit != 0:
		return Interrupted, true
	default:
		return Signalled, false
	}
}

func (c *Cancellation) poke() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

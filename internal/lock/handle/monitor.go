package handle

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/syncore/internal/lock/waitqueue"
	"github.com/kolkov/syncore/internal/lock/wakeup"
)

// Monitor is a reentrant lock fused with a condition variable.
//
// The lock half behaves exactly like Mutex. The signal queue and the waiter
// count are guarded by the same internal lock.
type Monitor struct {
	mu      Mutex
	signals waitqueue.Queue
	waiters int
}

// NewMonitor creates an unowned monitor.
func NewMonitor(env *Env) *Monitor {
	mon := &Monitor{}
	mon.mu.init(env, KindMonitor, mon)
	mon.signals = waitqueue.New(mon.mu.env.QueueLimit)
	return mon
}

// ID returns the monitor identity.
func (mon *Monitor) ID() uint64 { return mon.mu.id }

// Kind returns KindMonitor.
func (mon *Monitor) Kind() Kind { return KindMonitor }

// Enter acquires the monitor lock; see Mutex.Enter.
func (mon *Monitor) Enter(self *wakeup.Wakeup, timeout time.Duration) (Status, error) {
	return mon.mu.Enter(self, timeout)
}

// TryEnter acquires the monitor lock only if it is free or already ours.
func (mon *Monitor) TryEnter(self *wakeup.Wakeup) (Status, error) {
	return mon.mu.TryEnter(self)
}

// Release gives up one level of ownership of the monitor lock.
func (mon *Monitor) Release(self *wakeup.Wakeup) ReleaseStatus {
	return mon.mu.Release(self)
}

// Owner returns a snapshot of the monitor lock ownership.
func (mon *Monitor) Owner() Ownership {
	return mon.mu.Owner()
}

// Waiters returns the number of threads inside Wait.
func (mon *Monitor) Waiters() int {
	mon.mu.spin.Lock()
	defer mon.mu.spin.Unlock()
	return mon.waiters
}

// Wait releases the monitor completely, waits for a pulse, the timeout or a
// cancellation, and re-acquires the monitor with its previous recursion count
// before returning. Re-acquisition cannot be interrupted.
//
// A pulse that reached self before the wait ended always wins: the result is
// StatusOK and a concurrent interrupt stays pending for the next blocking call.
func (mon *Monitor) Wait(self *wakeup.Wakeup, timeout time.Duration) (Status, error) {
	m := &mon.mu

	m.spin.Lock()
	if m.owner != self {
		m.spin.Unlock()
		return StatusFailed, ErrNotOwned
	}
	self.Arm(1)
	if err := mon.signals.Add(self, m.id); err != nil {
		m.spin.Unlock()
		return StatusFailed, fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	saved, site := m.count, m.site
	mon.waiters++
	self.Held().Remove(m.id)
	m.count = 0
	m.handoffLocked()
	if m.env.Trace {
		m.fieldsLocked(self).Debug("monitor wait")
	}
	m.spin.Unlock()

	res := self.Wait(timeout, wakeup.Interruptible)

	m.spin.Lock()
	pulsed := !mon.signals.Remove(self)
	m.spin.Unlock()

	mon.reacquire(self)

	m.spin.Lock()
	m.count += saved - 1
	m.site = site
	mon.waiters--
	m.spin.Unlock()

	if pulsed {
		return StatusOK, nil
	}
	switch res {
	case wakeup.Interrupted:
		if self.Cancel().ConsumeInterrupt() {
			return StatusInterrupted, nil
		}
		return StatusOK, nil
	case wakeup.Aborted:
		return StatusAborted, nil
	case wakeup.TimedOut:
		return StatusTimedOut, nil
	default:
		return StatusOK, nil
	}
}

// Backoff bounds for reacquire while the entry queue is full.
const (
	minReacquireBackoff = 10 * time.Microsecond
	maxReacquireBackoff = 10 * time.Millisecond
)

// reacquire blocks until self owns the monitor again. The only failure of an
// uninterruptible infinite Enter is a full queue, which is transient; it is
// retried with exponential backoff and logged once.
func (mon *Monitor) reacquire(self *wakeup.Wakeup) {
	backoff := minReacquireBackoff
	for retries := 0; ; retries++ {
		_, err := mon.mu.enter(self, wakeup.Infinite, wakeup.Uninterruptible)
		if err == nil {
			if retries > 0 && mon.mu.env.Trace {
				mon.mu.env.Log.WithFields(logrus.Fields{
					"handle":  mon.mu.id,
					"thread":  self.ID(),
					"retries": retries,
				}).Debug("monitor re-acquired after full queue")
			}
			return
		}
		if retries == 0 {
			mon.mu.env.Log.WithFields(logrus.Fields{
				"handle": mon.mu.id,
				"thread": self.ID(),
			}).WithError(err).Warn("monitor re-acquire delayed: entry queue full")
		}
		time.Sleep(backoff)
		if backoff < maxReacquireBackoff {
			backoff *= 2
		}
	}
}

// Pulse wakes the oldest thread in Wait.
func (mon *Monitor) Pulse(self *wakeup.Wakeup) error {
	mon.mu.spin.Lock()
	defer mon.mu.spin.Unlock()
	if mon.mu.owner != self {
		return ErrNotOwned
	}
	if w := mon.signals.WakeOne(); w != nil {
		w.Signal()
	}
	return nil
}

// PulseAll wakes every thread in Wait.
func (mon *Monitor) PulseAll(self *wakeup.Wakeup) error {
	mon.mu.spin.Lock()
	defer mon.mu.spin.Unlock()
	if mon.mu.owner != self {
		return ErrNotOwned
	}
	for _, w := range mon.signals.WakeAll() {
		w.Signal()
	}
	return nil
}

// Close reports whether the monitor may be destroyed. It may be closed while
// owned, but not while any thread is inside Wait.
func (mon *Monitor) Close() CloseStatus {
	mon.mu.spin.Lock()
	defer mon.mu.spin.Unlock()
	if mon.waiters == 0 && mon.signals.IsEmpty() {
		return CloseFree
	}
	return CloseOwned
}

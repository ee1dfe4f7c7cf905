package handle

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/syncore/internal/lock/atomics"
	"github.com/kolkov/syncore/internal/lock/stackdepot"
	"github.com/kolkov/syncore/internal/lock/waitqueue"
	"github.com/kolkov/syncore/internal/lock/wakeup"
)

// Mutex is a reentrant, timed, cancellable mutual-exclusion lock.
type Mutex struct {
	id    uint64
	kind  Kind
	env   *Env
	outer Handle // the object registered in held-locks sets

	spin  atomics.SpinLock
	owner *wakeup.Wakeup
	count uint32
	site  stackdepot.Site
	queue waitqueue.Queue
}

// NewMutex creates a mutex. With initiallyOwned, self owns it once.
func NewMutex(env *Env, self *wakeup.Wakeup, initiallyOwned bool) (*Mutex, error) {
	m := &Mutex{}
	m.init(env, KindMutex, m)
	if initiallyOwned {
		// Not reachable by anyone else yet.
		if err := m.claimLocked(self); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mutex) init(env *Env, kind Kind, outer Handle) {
	m.env = env.orDefault()
	m.id = newID()
	m.kind = kind
	m.outer = outer
	m.queue = waitqueue.New(m.env.QueueLimit)
}

// ID returns the mutex identity.
func (m *Mutex) ID() uint64 { return m.id }

// Kind returns KindMutex, or KindNamedMutex for the mutex inside a NamedMutex.
func (m *Mutex) Kind() Kind { return m.kind }

// Enter acquires m for self, waiting at most timeout (wakeup.Infinite for no
// limit, zero to test and return).
func (m *Mutex) Enter(self *wakeup.Wakeup, timeout time.Duration) (Status, error) {
	return m.enter(self, timeout, wakeup.Interruptible)
}

// TryEnter acquires m only if that needs no waiting. StatusTimedOut means busy.
func (m *Mutex) TryEnter(self *wakeup.Wakeup) (Status, error) {
	return m.enter(self, 0, wakeup.Interruptible)
}

func (m *Mutex) enter(self *wakeup.Wakeup, timeout time.Duration, mode wakeup.WaitMode) (Status, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		m.spin.Lock()
		switch m.owner {
		case nil:
			err := m.claimLocked(self)
			m.spin.Unlock()
			if err != nil {
				return StatusFailed, err
			}
			return StatusOK, nil
		case self:
			m.count++
			m.spin.Unlock()
			return StatusOK, nil
		}

		if timeout == 0 {
			m.spin.Unlock()
			return StatusTimedOut, nil
		}
		if mode == wakeup.Interruptible {
			if res, ok := self.Cancel().Check(); ok {
				m.spin.Unlock()
				return statusOf(res), nil
			}
		}

		remaining := wakeup.Infinite
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				m.spin.Unlock()
				return StatusTimedOut, nil
			}
		}

		self.Arm(1)
		if err := m.queue.Add(self, m.id); err != nil {
			m.spin.Unlock()
			return StatusFailed, fmt.Errorf("%w: %w", ErrNoMemory, err)
		}
		if m.env.Trace {
			m.fieldsLocked(self).Debug("contended enter")
		}
		m.spin.Unlock()

		res := self.Wait(remaining, mode)

		m.spin.Lock()
		m.queue.Remove(self)
		if m.owner == self {
			// Handed to us by Release, whatever the wait said.
			err := m.adoptLocked(self)
			m.spin.Unlock()
			if err != nil {
				return StatusFailed, err
			}
			return StatusOK, nil
		}
		m.spin.Unlock()

		switch res {
		case wakeup.Interrupted:
			if self.Cancel().ConsumeInterrupt() {
				return StatusInterrupted, nil
			}
		case wakeup.Aborted:
			return StatusAborted, nil
		case wakeup.TimedOut:
			return StatusTimedOut, nil
		}
	}
}

// Release gives up one level of ownership.
func (m *Mutex) Release(self *wakeup.Wakeup) ReleaseStatus {
	m.spin.Lock()
	defer m.spin.Unlock()
	return m.releaseLocked(self)
}

func (m *Mutex) releaseLocked(self *wakeup.Wakeup) ReleaseStatus {
	if m.owner != self {
		return ReleaseFail
	}
	m.count--
	if m.count > 0 {
		return ReleaseStillOwns
	}
	self.Held().Remove(m.id)
	m.handoffLocked()
	return ReleaseSuccess
}

// Close reports whether the mutex may be destroyed.
func (m *Mutex) Close() CloseStatus {
	m.spin.Lock()
	defer m.spin.Unlock()
	if m.closeableLocked() {
		return CloseFree
	}
	if m.env.Trace {
		m.fieldsLocked(nil).Debug("close refused")
	}
	return CloseOwned
}

// Owner returns a snapshot of the current ownership.
func (m *Mutex) Owner() Ownership {
	m.spin.Lock()
	defer m.spin.Unlock()
	return Ownership{Owner: m.owner, Count: m.count, Site: m.site}
}

// QueueLen returns the number of threads blocked in Enter.
func (m *Mutex) QueueLen() int {
	m.spin.Lock()
	defer m.spin.Unlock()
	return m.queue.Len()
}

func (m *Mutex) closeableLocked() bool {
	return m.owner == nil && m.queue.IsEmpty()
}

// claimLocked makes self the owner of an unowned mutex. The held-locks insert
// comes first so that a refusal leaves m untouched.
func (m *Mutex) claimLocked(self *wakeup.Wakeup) error {
	if err := self.Held().Insert(m.outer); err != nil {
		return fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	m.owner = self
	m.count = 1
	m.site = m.env.capture()
	return nil
}

// adoptLocked completes a handoff on the receiving thread. If self cannot
// record the lock it passes it on.
func (m *Mutex) adoptLocked(self *wakeup.Wakeup) error {
	if err := self.Held().Insert(m.outer); err != nil {
		m.handoffLocked()
		return fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	m.site = m.env.capture()
	return nil
}

// handoffLocked transfers ownership of a just-released mutex to the oldest
// queued thread, or leaves it unowned.
func (m *Mutex) handoffLocked() {
	m.site = 0
	next := m.queue.WakeOne()
	if next == nil {
		m.owner = nil
		m.count = 0
		return
	}
	m.owner = next
	m.count = 1
	next.Signal()
	if m.env.Trace {
		m.fieldsLocked(next).Debug("handoff")
	}
}

func (m *Mutex) fieldsLocked(thread *wakeup.Wakeup) logrus.FieldLogger {
	fields := logrus.Fields{
		"handle": m.id,
		"kind":   m.kind.String(),
		"count":  m.count,
		"queued": m.queue.Len(),
	}
	if thread != nil {
		fields["thread"] = thread.ID()
	}
	if m.owner != nil {
		fields["owner"] = m.owner.ID()
		if m.site != 0 {
			fields["owner_site"] = m.env.Depot.Top(m.site)
		}
	}
	return m.env.Log.WithFields(fields)
}

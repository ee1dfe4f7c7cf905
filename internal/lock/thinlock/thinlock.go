// Package thinlock implements the object-header lock word: an uncontended
// fast path that inflates into a handle.Monitor on contention.
//
// Word layout (64 bits):
//
//	[owner:32][count:30][inflate requested:1][inflated:1]
//
// The word changes only by compare-and-swap. Only the owner may lower the
// count, clear the owner or inflate; other threads may only set the
// "inflate requested" bit. Once inflated a header never deflates and every
// operation goes to the Monitor, so the thin and the locked paths never
// share owner/count state.
package thinlock

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/syncore/internal/lock/atomics"
	"github.com/kolkov/syncore/internal/lock/handle"
	"github.com/kolkov/syncore/internal/lock/wakeup"
)

const (
	inflatedBit = 1 << 0
	requestBit  = 1 << 1

	countShift = 2
	countBits  = 30
	countOne   = 1 << countShift
	countMask  = (1<<countBits - 1) << countShift

	// MaxCount is the deepest recursion the thin word can record. One more
	// Enter inflates.
	MaxCount = 1<<countBits - 1

	ownerShift = 32

	// DefaultSpinLimit is how many times a contender yields before asking
	// the owner to inflate.
	DefaultSpinLimit = 64

	maxBackoff = time.Millisecond
)

// Word is a decoded lock word.
type Word uint64

func pack(owner, count uint32) Word {
	return Word(uint64(owner)<<ownerShift | uint64(count)<<countShift)
}

// Owner returns the owning thread identity, or 0.
func (w Word) Owner() uint32 { return uint32(w >> ownerShift) }

// Count returns the thin recursion count.
func (w Word) Count() uint32 { return uint32((w & countMask) >> countShift) }

// Inflated reports whether the word delegates to a monitor.
func (w Word) Inflated() bool { return w&inflatedBit != 0 }

// InflateRequested reports whether a contender asked for inflation.
func (w Word) InflateRequested() bool { return w&requestBit != 0 }

// Header is the lock word of one object. The zero value is not usable; call
// New.
type Header struct {
	id        uint64
	word      atomics.Uint64
	mon       atomics.Pointer[handle.Monitor]
	env       *handle.Env
	spinLimit int
}

var nextID atomics.Uint64

// New returns an unlocked header. A spinLimit of zero or less selects
// DefaultSpinLimit.
func New(env *handle.Env, spinLimit int) *Header {
	if spinLimit <= 0 {
		spinLimit = DefaultSpinLimit
	}
	// The top bit keeps header identities apart from handle identities in
	// held-locks sets.
	id := nextID.Add(1, atomics.Relaxed) | 1<<63
	return &Header{id: id, env: env, spinLimit: spinLimit}
}

// ID returns the identity recorded in the owner's held-locks set while the
// header is thin-locked.
func (h *Header) ID() uint64 { return h.id }

// Load returns the current lock word.
func (h *Header) Load() Word { return Word(h.word.Load(atomics.Acquire)) }

// Monitor returns the inflated monitor, or nil while the header is thin.
func (h *Header) Monitor() *handle.Monitor {
	if !h.Load().Inflated() {
		return nil
	}
	return h.mon.Load(atomics.Acquire)
}

func (h *Header) cas(old, val Word) bool {
	return h.word.CompareAndSwap(uint64(old), uint64(val), atomics.Full)
}

// Enter acquires the header for self, waiting at most timeout.
func (h *Header) Enter(self *wakeup.Wakeup, timeout time.Duration) (handle.Status, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	spins := 0
	backoff := time.Microsecond

	for {
		w := h.Load()
		if w.Inflated() {
			return h.mon.Load(atomics.Acquire).Enter(self, remaining(timeout, deadline))
		}

		switch w.Owner() {
		case 0:
			if err := self.Held().Insert(h); err != nil {
				return handle.StatusFailed, err
			}
			if h.cas(w, pack(self.ID(), 1)|w&requestBit) {
				return handle.StatusOK, nil
			}
			self.Held().Remove(h.id)
			continue
		case self.ID():
			if w.Count() == MaxCount {
				mon, err := h.inflateOwned(self, w)
				if err != nil {
					return handle.StatusFailed, err
				}
				return mon.Enter(self, wakeup.Infinite)
			}
			if h.cas(w, w+countOne) {
				return handle.StatusOK, nil
			}
			continue
		}

		if timeout == 0 {
			return handle.StatusTimedOut, nil
		}
		if spins < h.spinLimit {
			spins++
			runtime.Gosched()
			continue
		}
		if !w.InflateRequested() && !h.cas(w, w|requestBit) {
			continue
		}
		if res, ok := self.Cancel().Check(); ok {
			if res == wakeup.Aborted {
				return handle.StatusAborted, nil
			}
			return handle.StatusInterrupted, nil
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return handle.StatusTimedOut, nil
		}
		// The owner inflates on its way out; wait for that.
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// Exit releases one level of ownership. A requested inflation happens when
// the count reaches zero.
func (h *Header) Exit(self *wakeup.Wakeup) handle.ReleaseStatus {
	for {
		w := h.Load()
		if w.Inflated() {
			return h.mon.Load(atomics.Acquire).Release(self)
		}
		if w.Owner() != self.ID() || w.Count() == 0 {
			return handle.ReleaseFail
		}
		if w.Count() > 1 {
			if h.cas(w, w-countOne) {
				return handle.ReleaseStillOwns
			}
			continue
		}
		if w.InflateRequested() {
			h.mon.Store(handle.NewMonitor(h.env), atomics.Release)
			if !h.cas(w, inflatedBit) {
				continue
			}
			self.Held().Remove(h.id)
			h.trace(self, "inflated on exit")
			return handle.ReleaseSuccess
		}
		if h.cas(w, 0) {
			self.Held().Remove(h.id)
			return handle.ReleaseSuccess
		}
	}
}

// Wait inflates the header if needed and waits on its monitor.
func (h *Header) Wait(self *wakeup.Wakeup, timeout time.Duration) (handle.Status, error) {
	mon, err := h.owned(self)
	if err != nil {
		return handle.StatusFailed, err
	}
	return mon.Wait(self, timeout)
}

// Pulse wakes one waiter. A thin header has no waiters.
func (h *Header) Pulse(self *wakeup.Wakeup) error {
	w := h.Load()
	if w.Inflated() {
		return h.mon.Load(atomics.Acquire).Pulse(self)
	}
	if w.Owner() != self.ID() {
		return handle.ErrNotOwned
	}
	return nil
}

// PulseAll wakes every waiter. A thin header has no waiters.
func (h *Header) PulseAll(self *wakeup.Wakeup) error {
	w := h.Load()
	if w.Inflated() {
		return h.mon.Load(atomics.Acquire).PulseAll(self)
	}
	if w.Owner() != self.ID() {
		return handle.ErrNotOwned
	}
	return nil
}

// owned returns the monitor of a header self owns, inflating it first.
func (h *Header) owned(self *wakeup.Wakeup) (*handle.Monitor, error) {
	w := h.Load()
	if w.Inflated() {
		return h.mon.Load(atomics.Acquire), nil
	}
	if w.Owner() != self.ID() {
		return nil, handle.ErrNotOwned
	}
	return h.inflateOwned(self, w)
}

// inflateOwned moves self's thin ownership (count included) into a new
// monitor. Only the owner calls it, and contenders can only add the request
// bit, so the CAS loop terminates.
func (h *Header) inflateOwned(self *wakeup.Wakeup, w Word) (*handle.Monitor, error) {
	u := handle.NewUnpublishedMonitor(h.env)
	self.Held().Remove(h.id)
	if err := u.FastEnter(self); err != nil {
		_ = self.Held().Insert(h)
		return nil, err
	}
	if err := u.SetCount(self, w.Count()); err != nil {
		return nil, err
	}
	mon := u.Publish()
	h.mon.Store(mon, atomics.Release)
	for !h.cas(w, inflatedBit) {
		w = h.Load()
	}
	h.trace(self, "inflated by owner")
	return mon, nil
}

func (h *Header) trace(self *wakeup.Wakeup, msg string) {
	if h.env == nil || !h.env.Trace || h.env.Log == nil {
		return
	}
	h.env.Log.WithFields(logrus.Fields{
		"header": h.id,
		"thread": self.ID(),
	}).Debug(msg)
}

func remaining(timeout time.Duration, deadline time.Time) time.Duration {
	if timeout <= 0 {
		return timeout
	}
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return 0
}

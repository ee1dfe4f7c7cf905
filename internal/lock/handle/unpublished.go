package handle

import "github.com/kolkov/syncore/internal/lock/wakeup"

// Unpublished wraps a wait handle that no other goroutine can reach yet.
//
// While unpublished, FastEnter and FastRelease manipulate owner and count
// without the internal lock. Publish ends that phase for good; the fast calls
// panic afterwards.
type Unpublished[H Handle] struct {
	h         H
	core      *Mutex
	published bool
}

// NewUnpublishedMutex creates an unowned mutex in the exclusive phase.
func NewUnpublishedMutex(env *Env) *Unpublished[*Mutex] {
	m := &Mutex{}
	m.init(env, KindMutex, m)
	return &Unpublished[*Mutex]{h: m, core: m}
}

// NewUnpublishedMonitor creates an unowned monitor in the exclusive phase.
func NewUnpublishedMonitor(env *Env) *Unpublished[*Monitor] {
	mon := NewMonitor(env)
	return &Unpublished[*Monitor]{h: mon, core: &mon.mu}
}

// FastEnter acquires or re-enters the handle for self.
func (u *Unpublished[H]) FastEnter(self *wakeup.Wakeup) error {
	u.mustBeExclusive()
	switch u.core.owner {
	case nil:
		return u.core.claimLocked(self)
	case self:
		u.core.count++
		return nil
	default:
		return ErrNotOwned
	}
}

// FastRelease gives up one level of ownership.
func (u *Unpublished[H]) FastRelease(self *wakeup.Wakeup) ReleaseStatus {
	u.mustBeExclusive()
	return u.core.releaseLocked(self)
}

// SetCount overwrites the recursion count of an owned handle. It lets a
// caller move an existing ownership (for example a thin lock's) into the
// handle in one step.
func (u *Unpublished[H]) SetCount(self *wakeup.Wakeup, count uint32) error {
	u.mustBeExclusive()
	if u.core.owner != self || count == 0 {
		return ErrNotOwned
	}
	u.core.count = count
	return nil
}

// Count returns the recursion count.
func (u *Unpublished[H]) Count() uint32 {
	u.mustBeExclusive()
	return u.core.count
}

// Publish ends the exclusive phase and returns the handle. The caller must
// make the handle visible to other goroutines only through a synchronizing
// store.
func (u *Unpublished[H]) Publish() H {
	u.mustBeExclusive()
	u.published = true
	return u.h
}

func (u *Unpublished[H]) mustBeExclusive() {
	if u.published {
		panic("handle: fast path used after Publish")
	}
}

package atomics

import "runtime"

// spinsBeforeYield is how many failed acquisition attempts a SpinLock makes
// before it starts yielding the processor between attempts.
const spinsBeforeYield = 64

// SpinLock is a test-and-test-and-set lock for short critical sections.
//
// It is the internal lock of every wait handle. Holders never block while
// holding it; the only blocking point of the lock core is the primitive wait,
// which is always entered after Unlock.
//
// The zero value is an unlocked SpinLock. Re-acquiring a SpinLock already held
// by the caller deadlocks.
type SpinLock struct {
	state Uint32
}

// Lock acquires the lock, spinning and then yielding until it is free.
func (l *SpinLock) Lock() {
	if l.state.CompareAndSwap(0, 1, Acquire) {
		return
	}
	for spins := 0; ; spins++ {
		// Read first so contended waiters do not hammer the cache line with CAS.
		if l.state.Load(Relaxed) == 0 && l.state.CompareAndSwap(0, 1, Acquire) {
			return
		}
		if spins >= spinsBeforeYield {
			runtime.Gosched()
		}
	}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1, Acquire)
}

// Unlock releases the lock. Unlocking a free SpinLock has no effect.
func (l *SpinLock) Unlock() {
	l.state.Store(0, Release)
}

// Locked reports whether the lock is currently held by anyone.
func (l *SpinLock) Locked() bool {
	return l.state.Load(Relaxed) != 0
}

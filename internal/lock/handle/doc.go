// Package handle implements the wait handles of the synchronization core:
// the reentrant Mutex, the NamedMutex stored in the registry, and the Monitor
// (a Mutex fused with a condition variable).
//
// Ownership model:
//
//	Unowned --Enter--> Owned(1) --Enter--> Owned(n) --Release x n--> Unowned
//
// Every handle has an owner (a *wakeup.Wakeup used purely as an identity),
// a recursion count and an entry queue, all guarded by the handle's internal
// spinlock. While a handle is owned, it is in the owner's held-locks set.
//
// Blocking: a contended Enter queues the caller, releases the internal lock
// and parks on the caller's primitive wait. Release picks the successor inside
// its own critical section (handoff), so no third thread can take the lock
// between a Release and the wake-up of the thread it chose. The successor
// registers the handle in its own held-locks set when it resumes, because
// only a thread may touch its own set.
//
// Monitor.Wait gives up ownership completely (whatever the recursion count),
// hands the lock to the next entering thread, sleeps on the signal queue and
// then re-acquires uninterruptibly before restoring the saved count.
//
// The fast path that skips the internal lock is not available on these
// types. It exists only on Unpublished, a wrapper for handles that no other
// goroutine can reach yet.
package handle

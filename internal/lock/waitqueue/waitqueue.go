// Package waitqueue implements the ordered set of threads blocked on one wait
// handle.
//
// A Queue belongs to exactly one Mutex or Monitor and is only touched while
// that handle's internal lock is held, so it carries no synchronization of its
// own.
//
// Wake order is FIFO: WakeOne always removes the oldest entry. Callers must
// not rely on more than the weaker guarantee that a member which is never
// removed by Remove is eventually woken while the queue keeps being drained.
package waitqueue

import (
	"errors"

	"github.com/kolkov/syncore/internal/lock/wakeup"
)

// ErrQueueFull is returned by Add when the queue has reached its limit.
var ErrQueueFull = errors.New("waitqueue: queue limit reached")

// Entry is one blocked thread together with the identity of the lock it is
// waiting for.
type Entry struct {
	Waiter *wakeup.Wakeup
	LockID uint64
}

// Queue is an append-ordered list of blocked threads. A thread appears at
// most once. The zero value is an empty, unbounded queue.
type Queue struct {
	entries []Entry
	limit   int
}

// New returns an empty queue holding at most limit entries (0 for no limit).
func New(limit int) Queue {
	return Queue{limit: limit}
}

// Add appends w. Adding a thread already queued is a no-op. On error the
// queue is unchanged.
func (q *Queue) Add(w *wakeup.Wakeup, lockID uint64) error {
	if q.Contains(w) {
		return nil
	}
	if q.limit > 0 && len(q.entries) >= q.limit {
		return ErrQueueFull
	}
	q.entries = append(q.entries, Entry{Waiter: w, LockID: lockID})
	return nil
}

// Remove deletes w and reports whether it was queued.
func (q *Queue) Remove(w *wakeup.Wakeup) bool {
	for i := range q.entries {
		if q.entries[i].Waiter == w {
			copy(q.entries[i:], q.entries[i+1:])
			q.entries[len(q.entries)-1] = Entry{}
			q.entries = q.entries[:len(q.entries)-1]
			return true
		}
	}
	return false
}

// WakeOne removes and returns the oldest waiter, or nil if the queue is empty.
// The caller signals the returned thread.
func (q *Queue) WakeOne() *wakeup.Wakeup {
	if len(q.entries) == 0 {
		return nil
	}
	w := q.entries[0].Waiter
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	if len(q.entries) == 0 {
		q.entries = nil
	}
	return w
}

// WakeAll removes and returns every waiter in queue order.
func (q *Queue) WakeAll() []*wakeup.Wakeup {
	if len(q.entries) == 0 {
		return nil
	}
	out := make([]*wakeup.Wakeup, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.Waiter
	}
	q.entries = nil
	return out
}

// Contains reports whether w is queued.
func (q *Queue) Contains(w *wakeup.Wakeup) bool {
	for _, e := range q.entries {
		if e.Waiter == w {
			return true
		}
	}
	return false
}

// IsEmpty reports whether no thread is queued.
func (q *Queue) IsEmpty() bool {
	return len(q.entries) == 0
}

// Len returns the number of queued threads.
func (q *Queue) Len() int {
	return len(q.entries)
}

package api

import (
	"sync"

	"github.com/kolkov/syncore/internal/lock/wakeup"
)

// ThreadID identifies the Wait Context of one goroutine. IDs are reused
// after a goroutine's context is reclaimed. Zero is never a valid ID.
type ThreadID uint32

// idPool hands out thread IDs, reusing released ones oldest first.
type idPool struct {
	mu   sync.Mutex
	free []uint32
	next uint32
}

func (p *idPool) alloc() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) > 0 {
		id := p.free[0]
		p.free = p.free[1:]
		return id
	}
	p.next++
	return p.next
}

func (p *idPool) release(id uint32) {
	p.mu.Lock()
	p.free = append(p.free, id)
	p.mu.Unlock()
}

func (p *idPool) reset() {
	p.mu.Lock()
	p.free = nil
	p.next = 0
	p.mu.Unlock()
}

// threadEntry is a contexts table value. born orders registrations against
// reclaim scans.
type threadEntry struct {
	w    *wakeup.Wakeup
	born uint64
}

// currentThread returns the Wait Context of the calling goroutine, creating
// it on first use.
func currentThread() *wakeup.Wakeup {
	gid := getGoroutineID()
	if v, ok := contexts.Load(gid); ok {
		return v.(*threadEntry).w
	}

	w := wakeup.New(ids.alloc(), gid, cfg.MaxHeld)
	contexts.Store(gid, &threadEntry{w: w, born: registrations.Add(1)})
	threads.Store(ThreadID(w.ID()), w)
	maybeReclaim()
	return w
}

// maybeReclaim scans for dead goroutines every ReclaimInterval new contexts.
// The scan runs in the background.
func maybeReclaim() {
	n := allocCounter.Add(1)
	if interval := uint32(cfg.ReclaimInterval); interval > 0 && n%interval == 0 {
		go reclaimDeadGoroutines()
	}
}

// reclaimDeadGoroutines frees the contexts of goroutines that have exited.
//
// Only entries registered before the goroutine snapshot are candidates: their
// goroutine was running before the snapshot, so its absence from it means it
// has exited, and goroutine IDs are never reused. Newer entries wait for the
// next scan.
//
// A context that still owns locks is kept: its identity is what the lock
// records as owner, and reusing it would hand those locks to a stranger.
func reclaimDeadGoroutines() int {
	reclaimMu.Lock()
	defer reclaimMu.Unlock()

	horizon := registrations.Load()
	live := make(map[int64]struct{})
	for _, gid := range liveGoroutineIDs() {
		live[gid] = struct{}{}
	}

	reclaimed := 0
	contexts.Range(func(key, value any) bool {
		gid := key.(int64)
		e := value.(*threadEntry)
		if e.born > horizon {
			return true
		}
		if _, ok := live[gid]; ok {
			return true
		}
		if e.w.Held().Owned() > 0 {
			return true
		}
		if !contexts.CompareAndDelete(gid, e) {
			return true
		}
		threads.Delete(ThreadID(e.w.ID()))
		ids.release(e.w.ID())
		reclaimed++
		return true
	})
	if reclaimed > 0 {
		logger.WithField("reclaimed", reclaimed).Debug("reclaimed dead goroutine contexts")
	}
	return reclaimed
}

// Reclaim frees the contexts of exited goroutines that hold no locks and
// returns how many were freed.
func Reclaim() int {
	return reclaimDeadGoroutines()
}

// CurrentThread returns the calling goroutine's thread ID.
func CurrentThread() ThreadID {
	return ThreadID(currentThread().ID())
}

// Threads returns the number of live Wait Contexts.
func Threads() int {
	n := 0
	contexts.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// HeldCount returns the number of locks the calling goroutine owns.
func HeldCount() int {
	return currentThread().Held().Len()
}

// Interrupt requests a one-shot interruption of the thread's current or
// next interruptible wait.
func Interrupt(id ThreadID) error {
	w, err := thread(id)
	if err != nil {
		return err
	}
	w.Cancel().Interrupt()
	return nil
}

// Abort requests a sticky abort of the thread's blocking operations.
func Abort(id ThreadID) error {
	w, err := thread(id)
	if err != nil {
		return err
	}
	w.Cancel().Abort()
	return nil
}

func thread(id ThreadID) (*wakeup.Wakeup, error) {
	v, ok := threads.Load(id)
	if !ok {
		return nil, ErrUnknownThread
	}
	return v.(*wakeup.Wakeup), nil
}

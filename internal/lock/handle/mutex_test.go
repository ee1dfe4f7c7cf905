package handle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marusama/cyclicbarrier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/syncore/internal/lock/wakeup"
)

var threadIDs atomic.Uint32

func newThread() *wakeup.Wakeup {
	id := threadIDs.Add(1)
	return wakeup.New(id, int64(id), 0)
}

// queued waits until n threads are blocked in m's entry queue.
func queued(t *testing.T, m *Mutex, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return m.QueueLen() == n }, 2*time.Second, time.Millisecond)
}

// TestMutexReentrancy covers enter twice, release twice.
func TestMutexReentrancy(t *testing.T) {
	self := newThread()
	m, err := NewMutex(nil, self, false)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		st, err := m.Enter(self, wakeup.Infinite)
		require.NoError(t, err)
		require.Equal(t, StatusOK, st)
	}
	assert.Equal(t, uint32(2), m.Owner().Count)
	assert.True(t, self.Held().Contains(m.ID()))

	assert.Equal(t, ReleaseStillOwns, m.Release(self))
	assert.True(t, self.Held().Contains(m.ID()))
	assert.Equal(t, ReleaseSuccess, m.Release(self))
	assert.False(t, self.Held().Contains(m.ID()))
	assert.Nil(t, m.Owner().Owner)
	assert.Equal(t, ReleaseFail, m.Release(self))
}

func TestMutexInitiallyOwned(t *testing.T) {
	self := newThread()
	m, err := NewMutex(nil, self, true)
	require.NoError(t, err)

	own := m.Owner()
	assert.Same(t, self, own.Owner)
	assert.Equal(t, uint32(1), own.Count)
	assert.Equal(t, self.ID(), own.OwnerID())
	assert.Equal(t, KindMutex, m.Kind())
	assert.Equal(t, CloseOwned, m.Close())
	assert.Equal(t, ReleaseSuccess, m.Release(self))
	assert.Equal(t, CloseFree, m.Close())
}

// TestMutexReleaseByStranger checks a non-owner release changes nothing.
func TestMutexReleaseByStranger(t *testing.T) {
	a, b := newThread(), newThread()
	m, err := NewMutex(nil, a, true)
	require.NoError(t, err)

	assert.Equal(t, ReleaseFail, m.Release(b))
	own := m.Owner()
	assert.Same(t, a, own.Owner)
	assert.Equal(t, uint32(1), own.Count)
}

func TestMutexTryEnterBusy(t *testing.T) {
	a, b := newThread(), newThread()
	m, err := NewMutex(nil, a, true)
	require.NoError(t, err)

	st, err := m.TryEnter(b)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, st)
	assert.Equal(t, 0, m.QueueLen())

	st, err = m.TryEnter(a)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, st)
	assert.Equal(t, uint32(2), m.Owner().Count)
}

func TestMutexTimeout(t *testing.T) {
	a, b := newThread(), newThread()
	m, err := NewMutex(nil, a, true)
	require.NoError(t, err)

	start := time.Now()
	st, err := m.Enter(b, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, st)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, m.QueueLen(), "timed out waiter must leave the queue")
	assert.False(t, b.Held().Contains(m.ID()))
}

// TestMutexHandoff checks that Release passes ownership directly to the
// queued thread.
func TestMutexHandoff(t *testing.T) {
	a, b := newThread(), newThread()
	m, err := NewMutex(nil, a, true)
	require.NoError(t, err)

	done := make(chan Status)
	go func() {
		st, _ := m.Enter(b, wakeup.Infinite)
		done <- st
	}()
	queued(t, m, 1)

	require.Equal(t, ReleaseSuccess, m.Release(a))
	assert.Same(t, b, m.Owner().Owner, "successor is chosen inside Release")

	// A third thread cannot barge in between the release and the wake-up.
	c := newThread()
	st, err := m.TryEnter(c)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, st)

	assert.Equal(t, StatusOK, <-done)
	assert.True(t, b.Held().Contains(m.ID()))
	assert.Equal(t, ReleaseSuccess, m.Release(b))
}

func TestMutexInterruptWhileBlocked(t *testing.T) {
	a, b := newThread(), newThread()
	m, err := NewMutex(nil, a, true)
	require.NoError(t, err)

	done := make(chan Status)
	go func() {
		st, _ := m.Enter(b, wakeup.Infinite)
		done <- st
	}()
	queued(t, m, 1)

	b.Cancel().Interrupt()
	assert.Equal(t, StatusInterrupted, <-done)
	assert.False(t, b.Cancel().Interrupted(), "interrupt is consumed")
	assert.Equal(t, 0, m.QueueLen())
	assert.Same(t, a, m.Owner().Owner)
}

// TestMutexPendingCancellation covers the pre-block check.
func TestMutexPendingCancellation(t *testing.T) {
	a, b := newThread(), newThread()
	m, err := NewMutex(nil, a, true)
	require.NoError(t, err)

	b.Cancel().Interrupt()
	st, err := m.Enter(b, wakeup.Infinite)
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, st)
	assert.False(t, b.Cancel().Interrupted())

	b.Cancel().Abort()
	for i := 0; i < 2; i++ {
		st, err = m.Enter(b, wakeup.Infinite)
		require.NoError(t, err)
		assert.Equal(t, StatusAborted, st, "abort is sticky")
	}

	// A free mutex is claimed without looking at cancellation.
	free, err := NewMutex(nil, b, false)
	require.NoError(t, err)
	st, err = free.Enter(b, wakeup.Infinite)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, st)
}

// TestMutexHeldLimit checks that a refused held-locks insert leaves the
// mutex unowned.
func TestMutexHeldLimit(t *testing.T) {
	self := wakeup.New(threadIDs.Add(1), 1, 1)
	first, err := NewMutex(nil, self, true)
	require.NoError(t, err)

	second, err := NewMutex(nil, self, false)
	require.NoError(t, err)
	st, err := second.Enter(self, wakeup.Infinite)
	assert.Equal(t, StatusFailed, st)
	assert.True(t, errors.Is(err, ErrNoMemory))
	assert.True(t, errors.Is(err, wakeup.ErrHeldLimit))
	assert.Nil(t, second.Owner().Owner)

	_, err = NewMutex(nil, self, true)
	assert.ErrorIs(t, err, ErrNoMemory)

	assert.Equal(t, ReleaseSuccess, first.Release(self))
	st, err = second.Enter(self, wakeup.Infinite)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, st)
}

func TestMutexQueueLimit(t *testing.T) {
	env := &Env{QueueLimit: 1}
	a, b, c := newThread(), newThread(), newThread()
	m, err := NewMutex(env, a, true)
	require.NoError(t, err)

	done := make(chan Status)
	go func() {
		st, _ := m.Enter(b, wakeup.Infinite)
		done <- st
	}()
	queued(t, m, 1)

	st, err := m.Enter(c, wakeup.Infinite)
	assert.Equal(t, StatusFailed, st)
	assert.ErrorIs(t, err, ErrNoMemory)
	assert.Equal(t, 1, m.QueueLen())

	m.Release(a)
	assert.Equal(t, StatusOK, <-done)
}

// TestMutexMutualExclusion hammers one mutex from many goroutines released
// at the same instant.
func TestMutexMutualExclusion(t *testing.T) {
	const workers, rounds = 8, 200

	m, err := NewMutex(nil, newThread(), false)
	require.NoError(t, err)

	var inside, counter int32
	barrier := cyclicbarrier.New(workers)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			self := newThread()
			if err := barrier.Await(ctx); err != nil {
				return err
			}
			for r := 0; r < rounds; r++ {
				if st, err := m.Enter(self, wakeup.Infinite); err != nil || st != StatusOK {
					return errors.New("enter failed")
				}
				if atomic.AddInt32(&inside, 1) != 1 {
					return errors.New("two owners inside the critical section")
				}
				counter++
				atomic.AddInt32(&inside, -1)
				if m.Release(self) != ReleaseSuccess {
					return errors.New("release failed")
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(workers*rounds), counter)
	assert.Nil(t, m.Owner().Owner)
	assert.Equal(t, CloseFree, m.Close())
}

// TestMutexStarvationFreedom checks that every queued thread eventually gets
// the lock while a hog keeps re-entering.
func TestMutexStarvationFreedom(t *testing.T) {
	const waiters = 4

	hog := newThread()
	m, err := NewMutex(nil, hog, true)
	require.NoError(t, err)

	var got atomic.Int32
	var g errgroup.Group
	for i := 0; i < waiters; i++ {
		g.Go(func() error {
			self := newThread()
			if st, err := m.Enter(self, 5*time.Second); err != nil || st != StatusOK {
				return errors.New("waiter starved")
			}
			got.Add(1)
			m.Release(self)
			return nil
		})
	}
	queued(t, m, waiters)

	// The hog releases and immediately competes again; FIFO handoff means
	// it queues behind the others.
	for got.Load() < waiters {
		m.Release(hog)
		st, err := m.Enter(hog, 5*time.Second)
		require.NoError(t, err)
		require.Equal(t, StatusOK, st)
	}
	require.NoError(t, g.Wait())
	m.Release(hog)
}

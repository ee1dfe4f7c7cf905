package handle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marusama/cyclicbarrier"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/syncore/internal/lock/wakeup"
)

func waiting(t *testing.T, mon *Monitor, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return mon.Waiters() == n }, 2*time.Second, time.Millisecond)
}

func mustEnter(t *testing.T, h Handle, self *wakeup.Wakeup) {
	t.Helper()
	st, err := h.Enter(self, wakeup.Infinite)
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
}

func TestMonitorNotOwned(t *testing.T) {
	mon := NewMonitor(nil)
	self := newThread()

	st, err := mon.Wait(self, wakeup.Infinite)
	assert.Equal(t, StatusFailed, st)
	assert.ErrorIs(t, err, ErrNotOwned)
	assert.ErrorIs(t, mon.Pulse(self), ErrNotOwned)
	assert.ErrorIs(t, mon.PulseAll(self), ErrNotOwned)
	assert.Equal(t, ReleaseFail, mon.Release(self))
}

// TestMonitorProducerConsumer: consumer waits, producer pulses under the
// lock, consumer wakes owning the monitor with its count restored.
func TestMonitorProducerConsumer(t *testing.T) {
	mon := NewMonitor(nil)
	consumer, producer := newThread(), newThread()

	var item int
	done := make(chan error)
	go func() {
		mon.Enter(consumer, wakeup.Infinite)
		mon.Enter(consumer, wakeup.Infinite)
		for item == 0 {
			st, err := mon.Wait(consumer, wakeup.Infinite)
			if err != nil {
				done <- err
				return
			}
			if st != StatusOK {
				done <- errors.New(st.String())
				return
			}
		}
		if c := mon.Owner().Count; c != 2 {
			done <- errors.New("recursion count not restored")
			return
		}
		mon.Release(consumer)
		mon.Release(consumer)
		done <- nil
	}()
	waiting(t, mon, 1)

	mustEnter(t, mon, producer)
	assert.False(t, consumer.Held().Contains(mon.ID()), "waiter gave up the monitor")
	item = 42
	require.NoError(t, mon.Pulse(producer))
	assert.Equal(t, ReleaseSuccess, mon.Release(producer))

	require.NoError(t, <-done)
	assert.Equal(t, 42, item)
	assert.Equal(t, 0, mon.Waiters())
	assert.Equal(t, CloseFree, mon.Close())
}

func TestMonitorWaitTimeout(t *testing.T) {
	mon := NewMonitor(nil)
	self := newThread()
	mustEnter(t, mon, self)
	mustEnter(t, mon, self)

	st, err := mon.Wait(self, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, st)

	own := mon.Owner()
	assert.Same(t, self, own.Owner)
	assert.Equal(t, uint32(2), own.Count)
	assert.True(t, self.Held().Contains(mon.ID()))
}

// TestMonitorWaitZeroTimeout releases and re-acquires in one step.
func TestMonitorWaitZeroTimeout(t *testing.T) {
	mon := NewMonitor(nil)
	self := newThread()
	mustEnter(t, mon, self)

	st, err := mon.Wait(self, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, st)
	assert.Same(t, self, mon.Owner().Owner)
}

func TestMonitorWaitInterrupted(t *testing.T) {
	mon := NewMonitor(nil)
	self := newThread()

	done := make(chan Status)
	go func() {
		mon.Enter(self, wakeup.Infinite)
		st, _ := mon.Wait(self, wakeup.Infinite)
		mon.Release(self)
		done <- st
	}()
	waiting(t, mon, 1)

	self.Cancel().Interrupt()
	assert.Equal(t, StatusInterrupted, <-done)
	assert.False(t, self.Cancel().Interrupted())
}

// TestMonitorPulseBeatsInterrupt checks a pulsed waiter reports OK and keeps
// a concurrent interrupt pending.
func TestMonitorPulseBeatsInterrupt(t *testing.T) {
	mon := NewMonitor(nil)
	waiter, pulser := newThread(), newThread()

	done := make(chan Status)
	go func() {
		mon.Enter(waiter, wakeup.Infinite)
		st, _ := mon.Wait(waiter, wakeup.Infinite)
		mon.Release(waiter)
		done <- st
	}()
	waiting(t, mon, 1)

	// Pulse and interrupt while the pulser owns the monitor, so the waiter
	// cannot finish its wait before both have happened.
	mustEnter(t, mon, pulser)
	require.NoError(t, mon.Pulse(pulser))
	waiter.Cancel().Interrupt()
	mon.Release(pulser)

	assert.Equal(t, StatusOK, <-done)
	assert.True(t, waiter.Cancel().Interrupted(), "interrupt stays pending")
}

func TestMonitorPulseAll(t *testing.T) {
	const n = 5
	mon := NewMonitor(nil)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			self := newThread()
			if st, err := mon.Enter(self, wakeup.Infinite); err != nil || st != StatusOK {
				return errors.New("enter failed")
			}
			st, err := mon.Wait(self, 5*time.Second)
			mon.Release(self)
			if err != nil {
				return err
			}
			if st != StatusOK {
				return errors.New("waiter not pulsed: " + st.String())
			}
			return nil
		})
	}
	waiting(t, mon, n)

	owner := newThread()
	mustEnter(t, mon, owner)
	require.NoError(t, mon.PulseAll(owner))
	mon.Release(owner)
	require.NoError(t, g.Wait())
}

// TestMonitorPulseWithoutWaiters is a no-op that still requires ownership.
func TestMonitorPulseWithoutWaiters(t *testing.T) {
	mon := NewMonitor(nil)
	self := newThread()
	mustEnter(t, mon, self)
	assert.NoError(t, mon.Pulse(self))
	assert.NoError(t, mon.PulseAll(self))
}

func TestMonitorClose(t *testing.T) {
	mon := NewMonitor(nil)
	self := newThread()
	mustEnter(t, mon, self)
	assert.Equal(t, CloseFree, mon.Close(), "owned monitor without waiters may close")
	mon.Release(self)

	done := make(chan struct{})
	go func() {
		defer close(done)
		mon.Enter(self, wakeup.Infinite)
		mon.Wait(self, wakeup.Infinite)
		mon.Release(self)
	}()
	waiting(t, mon, 1)
	assert.Equal(t, CloseOwned, mon.Close())

	other := newThread()
	mustEnter(t, mon, other)
	require.NoError(t, mon.Pulse(other))
	mon.Release(other)
	<-done
	assert.Equal(t, CloseFree, mon.Close())
}

// TestMonitorWaitersDoNotBlockEntry checks a waiting thread really gives the
// lock up, so others can enter while it waits.
func TestMonitorWaitersDoNotBlockEntry(t *testing.T) {
	const n = 4
	mon := NewMonitor(nil)
	barrier := cyclicbarrier.New(n)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			self := newThread()
			if err := barrier.Await(ctx); err != nil {
				return err
			}
			if st, err := mon.Enter(self, 5*time.Second); err != nil || st != StatusOK {
				return errors.New("enter failed")
			}
			defer mon.Release(self)
			if mon.Waiters() == n-1 {
				return mon.PulseAll(self)
			}
			st, err := mon.Wait(self, 5*time.Second)
			if err != nil {
				return err
			}
			if st != StatusOK {
				return errors.New("wait ended with " + st.String())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// TestMonitorWaitReacquireFullQueue: a pulsed waiter finds the entry queue
// full, backs off with one warning, and re-acquires once the queue drains.
func TestMonitorWaitReacquireFullQueue(t *testing.T) {
	log, hook := test.NewNullLogger()
	mon := NewMonitor(&Env{Log: log, QueueLimit: 1})
	w, a, b := newThread(), newThread(), newThread()

	waited := make(chan Status, 1)
	go func() {
		mon.Enter(w, wakeup.Infinite)
		st, _ := mon.Wait(w, wakeup.Infinite)
		waited <- st
		mon.Release(w)
	}()
	waiting(t, mon, 1)
	mustEnter(t, mon, a)

	releaseB := make(chan struct{})
	go func() {
		if st, _ := mon.Enter(b, wakeup.Infinite); st == StatusOK {
			<-releaseB
			mon.Release(b)
		}
	}()
	queued(t, &mon.mu, 1)

	require.NoError(t, mon.Pulse(a))
	require.Eventually(t, func() bool {
		e := hook.LastEntry()
		return e != nil && e.Level == logrus.WarnLevel
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, ReleaseSuccess, mon.Release(a))
	close(releaseB)
	assert.Equal(t, StatusOK, <-waited)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

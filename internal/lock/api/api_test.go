package api

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marusama/cyclicbarrier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/syncore/internal/lock/audit"
	"github.com/kolkov/syncore/internal/lock/config"
	"github.com/kolkov/syncore/internal/lock/handle"
)

func TestMain(m *testing.M) {
	SetOutput(io.Discard)
	os.Exit(m.Run())
}

// TestMutexContention: T1 and T2 contend on M; T1 enters twice, releases
// once (StillOwns) and once (Success); T2 then gets the mutex.
func TestMutexContention(t *testing.T) {
	Reset()
	h, err := MutexCreate(false)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		st, err := MutexEnter(h, Infinite)
		require.NoError(t, err)
		require.Equal(t, handle.StatusOK, st)
	}
	assert.Equal(t, 1, HeldCount())

	result := make(chan handle.Status)
	go func() {
		st, _ := MutexEnter(h, Infinite)
		MutexRelease(h)
		result <- st
	}()

	st, err := MutexRelease(h)
	require.NoError(t, err)
	assert.Equal(t, handle.ReleaseStillOwns, st)
	select {
	case <-result:
		t.Fatal("second thread got the mutex while it was still owned")
	case <-time.After(20 * time.Millisecond):
	}

	st, err = MutexRelease(h)
	require.NoError(t, err)
	assert.Equal(t, handle.ReleaseSuccess, st)
	assert.Equal(t, handle.StatusOK, <-result)
	assert.Equal(t, 0, HeldCount())

	cs, err := MutexClose(h)
	require.NoError(t, err)
	assert.Equal(t, handle.CloseFree, cs)
	assert.Equal(t, 0, Handles())
}

// TestMonitorProducerConsumer: the consumer waits, the producer pulses, the
// consumer wakes owning the monitor with its count restored.
func TestMonitorProducerConsumer(t *testing.T) {
	Reset()
	h, err := MonitorCreate()
	require.NoError(t, err)

	var queue []int
	got := make(chan int)
	go func() {
		MonitorEnter(h, Infinite)
		MonitorEnter(h, Infinite)
		for len(queue) == 0 {
			if _, err := MonitorWait(h, Infinite); err != nil {
				got <- -1
				return
			}
		}
		item := queue[0]
		queue = queue[1:]
		MonitorExit(h)
		if st, _ := MonitorExit(h); st != handle.ReleaseSuccess {
			item = -2
		}
		got <- item
	}()

	time.Sleep(20 * time.Millisecond)
	st, err := MonitorEnter(h, Infinite)
	require.NoError(t, err)
	require.Equal(t, handle.StatusOK, st)
	queue = append(queue, 7)
	require.NoError(t, MonitorPulse(h))
	_, err = MonitorExit(h)
	require.NoError(t, err)

	assert.Equal(t, 7, <-got)
	cs, err := MonitorClose(h)
	require.NoError(t, err)
	assert.Equal(t, handle.CloseFree, cs)
}

// TestMonitorThroughMutexCalls runs the producer/consumer exchange entering
// and releasing the monitor with the mutex calls.
func TestMonitorThroughMutexCalls(t *testing.T) {
	Reset()
	h, err := MonitorCreate()
	require.NoError(t, err)

	var queue []int
	got := make(chan int)
	go func() {
		MutexEnter(h, Infinite)
		MutexEnter(h, Infinite)
		for len(queue) == 0 {
			if _, err := MonitorWait(h, Infinite); err != nil {
				got <- -1
				return
			}
		}
		item := queue[0]
		queue = queue[1:]
		if st, _ := MutexRelease(h); st != handle.ReleaseStillOwns {
			item = -2
		}
		if st, _ := MutexRelease(h); st != handle.ReleaseSuccess {
			item = -3
		}
		got <- item
	}()

	time.Sleep(20 * time.Millisecond)
	st, err := MutexTryEnter(h)
	for err == nil && st == handle.StatusTimedOut {
		time.Sleep(time.Millisecond)
		st, err = MutexTryEnter(h)
	}
	require.NoError(t, err)
	require.Equal(t, handle.StatusOK, st)
	queue = append(queue, 9)
	require.NoError(t, MonitorPulse(h))
	rs, err := MutexRelease(h)
	require.NoError(t, err)
	require.Equal(t, handle.ReleaseSuccess, rs)

	assert.Equal(t, 9, <-got)
	assert.Equal(t, 0, Violations())
	cs, err := MonitorClose(h)
	require.NoError(t, err)
	assert.Equal(t, handle.CloseFree, cs)
}

// TestNamedMutexSharing: A creates "X" owned; B opens it without ownership;
// B's TryEnter is busy until A releases; two closes free it.
func TestNamedMutexSharing(t *testing.T) {
	Reset()
	a, gotA, err := NamedMutexCreate("X", true)
	require.NoError(t, err)
	assert.True(t, gotA)

	type opened struct {
		h   Handle
		got bool
		st  handle.Status
	}
	ch := make(chan opened)
	release := make(chan struct{})
	finished := make(chan handle.Status)
	go func() {
		b, gotB, _ := NamedMutexCreate("X", false)
		st, _ := MutexTryEnter(b)
		ch <- opened{b, gotB, st}
		<-release
		st, _ = MutexEnter(b, 2000)
		MutexRelease(b)
		cs, _ := MutexClose(b)
		if cs != handle.CloseDontFree {
			st = handle.StatusFailed
		}
		finished <- st
	}()

	b := <-ch
	assert.NotEqual(t, a, b.h, "each open gets its own handle")
	assert.False(t, b.got)
	assert.Equal(t, handle.StatusTimedOut, b.st)

	_, err = MutexRelease(a)
	require.NoError(t, err)
	close(release)
	assert.Equal(t, handle.StatusOK, <-finished)

	cs, err := MutexClose(a)
	require.NoError(t, err)
	assert.Equal(t, handle.CloseFree, cs)

	_, err = MutexEnter(a, 0)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestProtocolViolations(t *testing.T) {
	Reset()
	m, err := MutexCreate(false)
	require.NoError(t, err)
	mon, err := MonitorCreate()
	require.NoError(t, err)

	_, err = MutexRelease(m)
	var v *audit.Violation
	require.True(t, errors.As(err, &v))
	assert.ErrorIs(t, err, handle.ErrNotOwned)
	assert.Equal(t, audit.OpRelease, v.Op)
	assert.Equal(t, uint32(CurrentThread()), v.Thread)

	_, err = MonitorWait(mon, 0)
	assert.ErrorIs(t, err, handle.ErrNotOwned)
	assert.ErrorIs(t, MonitorPulse(mon), handle.ErrNotOwned)
	assert.ErrorIs(t, MonitorPulseAll(mon), handle.ErrNotOwned)

	_, err = MonitorWait(m, 0)
	assert.ErrorIs(t, err, handle.ErrWrongKind)
	assert.ErrorIs(t, MonitorPulse(m), handle.ErrWrongKind)

	_, err = MutexEnter(Handle(999), 0)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	assert.Equal(t, 6, Violations())

	// Repeats of a reported violation are not counted again.
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, MonitorPulse(mon), handle.ErrNotOwned)
	}
	assert.Equal(t, 6, Violations())
}

// TestCloseOwnedKeepsHandle checks a refused close leaves the handle usable.
func TestCloseOwnedKeepsHandle(t *testing.T) {
	Reset()
	h, err := MutexCreate(true)
	require.NoError(t, err)

	cs, err := MutexClose(h)
	require.NoError(t, err)
	assert.Equal(t, handle.CloseOwned, cs)

	rs, err := MutexRelease(h)
	require.NoError(t, err)
	assert.Equal(t, handle.ReleaseSuccess, rs)
	cs, err = MutexClose(h)
	require.NoError(t, err)
	assert.Equal(t, handle.CloseFree, cs)
}

func TestInterruptBlockedEnter(t *testing.T) {
	Reset()
	h, err := MutexCreate(true)
	require.NoError(t, err)

	tid := make(chan ThreadID)
	result := make(chan handle.Status)
	go func() {
		tid <- CurrentThread()
		st, _ := MutexEnter(h, Infinite)
		result <- st
	}()
	id := <-tid
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, Interrupt(id))
	assert.Equal(t, handle.StatusInterrupted, <-result)
}

func TestAbortIsSticky(t *testing.T) {
	Reset()
	h, err := MonitorCreate()
	require.NoError(t, err)
	_, err = MonitorEnter(h, Infinite)
	require.NoError(t, err)

	require.NoError(t, Abort(CurrentThread()))
	for i := 0; i < 2; i++ {
		st, err := MonitorWait(h, Infinite)
		require.NoError(t, err)
		assert.Equal(t, handle.StatusAborted, st)
	}
	rs, err := MonitorExit(h)
	require.NoError(t, err)
	assert.Equal(t, handle.ReleaseSuccess, rs)
}

// TestMutualExclusionThroughAPI releases many goroutines at once against one
// mutex and checks no two are ever inside together.
func TestMutualExclusionThroughAPI(t *testing.T) {
	Reset()
	const workers, rounds = 8, 100
	h, err := MutexCreate(false)
	require.NoError(t, err)

	var inside atomic.Int32
	barrier := cyclicbarrier.New(workers)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			if err := barrier.Await(ctx); err != nil {
				return err
			}
			for r := 0; r < rounds; r++ {
				if _, err := MutexEnter(h, Infinite); err != nil {
					return err
				}
				if inside.Add(1) != 1 {
					return errors.New("mutual exclusion violated")
				}
				inside.Add(-1)
				if _, err := MutexRelease(h); err != nil {
					return err
				}
			}
			if HeldCount() != 0 {
				return errors.New("orphaned ownership")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestObjectInflates(t *testing.T) {
	Reset()
	o := NewObject()
	st, err := o.Enter(Infinite)
	require.NoError(t, err)
	require.Equal(t, handle.StatusOK, st)
	assert.False(t, o.Inflated())

	require.NoError(t, o.Pulse())
	st, err = o.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, handle.StatusTimedOut, st)
	assert.True(t, o.Inflated())

	rs, err := o.Exit()
	require.NoError(t, err)
	assert.Equal(t, handle.ReleaseSuccess, rs)
	_, err = o.Exit()
	assert.ErrorIs(t, err, handle.ErrNotOwned)
}

func TestInitOptions(t *testing.T) {
	defer func() { require.NoError(t, Init()) }()

	require.NoError(t, Init(config.WithOwnerTracking(true), config.WithMaxHeld(1)))
	assert.True(t, Config().TrackOwners)

	a, err := MutexCreate(true)
	require.NoError(t, err)
	_, err = MutexCreate(true)
	assert.ErrorIs(t, err, handle.ErrNoMemory)
	MutexRelease(a)

	assert.Error(t, Init(config.WithSpinLimit(-1)))
	assert.True(t, Config().TrackOwners, "failed Init keeps the previous state")
}

func TestFiniSummary(t *testing.T) {
	Reset()
	Fini()
	assert.Equal(t, 0, Violations())
}

// Package api is the runtime surface of the synchronization core.
//
// It keeps the process-wide state: the goroutine -> Wait Context table, the
// thread ID pool, the handle table, the named mutex registry, the auditor and
// the logger. Every exported operation resolves the calling goroutine's Wait
// Context itself, so callers never pass thread identity around.
//
// The state is created by init from SYNCORE_OPTIONS and can be rebuilt with
// Init. Init, Reset and Fini must not run concurrently with other calls.
package api

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/syncore/internal/lock/audit"
	"github.com/kolkov/syncore/internal/lock/config"
	"github.com/kolkov/syncore/internal/lock/handle"
	"github.com/kolkov/syncore/internal/lock/registry"
	"github.com/kolkov/syncore/internal/lock/stackdepot"
	"github.com/kolkov/syncore/internal/lock/wakeup"
)

// Infinite as a millisecond timeout blocks without limit.
const Infinite uint32 = 0xFFFFFFFF

var (
	// ErrInvalidHandle is returned for handles that were never issued or
	// have been closed.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrUnknownThread is returned by Interrupt and Abort for thread IDs
	// with no live context.
	ErrUnknownThread = errors.New("unknown thread")
)

// hiddenFrames are left out of owner-site stacks.
var hiddenFrames = []string{
	"github.com/kolkov/syncore/internal/lock/handle.",
	"github.com/kolkov/syncore/internal/lock/thinlock.",
	"github.com/kolkov/syncore/internal/lock/registry.",
	"github.com/kolkov/syncore/internal/lock/api.",
	"github.com/kolkov/syncore/lock.",
}

// Global runtime state, rebuilt by setup.
var (
	cfg     config.Config
	logger  *logrus.Logger
	env     *handle.Env
	depot   *stackdepot.Depot
	auditor *audit.Auditor

	// reports receives violation reports and the Fini summary.
	reports io.Writer = os.Stderr

	// contexts maps goroutine IDs to their Wait Contexts.
	// Key: int64 (goroutine ID), Value: *threadEntry.
	contexts sync.Map

	// registrations numbers context registrations; reclaimMu serializes
	// reclaim scans.
	registrations atomic.Uint64
	reclaimMu     sync.Mutex

	// threads maps thread IDs to Wait Contexts for Interrupt and Abort.
	// Key: ThreadID, Value: *wakeup.Wakeup.
	threads sync.Map

	ids          idPool
	allocCounter atomic.Uint32
	table        handleTable
)

func init() {
	c, err := config.Load()
	setup(c)
	if err != nil {
		logger.WithError(err).Warn("invalid configuration, using defaults")
	}
}

func setup(c config.Config) {
	cfg = c
	logger = c.Logger()
	if reports != os.Stderr {
		logger.SetOutput(reports)
	}
	depot = nil
	if c.TrackOwners {
		depot = stackdepot.New(hiddenFrames...)
	}
	env = &handle.Env{
		Log:        logger,
		Trace:      logger.IsLevelEnabled(logrus.DebugLevel),
		Depot:      depot,
		QueueLimit: c.MaxQueue,
	}
	auditor = audit.New(logger, depot, reports)

	registry.ResetDefault()
	registry.Default().SetEnv(env)

	contexts = sync.Map{}
	threads = sync.Map{}
	ids.reset()
	allocCounter.Store(0)
	registrations.Store(0)
	table.reset()
}

// Init rebuilds the runtime from SYNCORE_OPTIONS and opts, dropping every
// handle and thread context. On a configuration error the previous state is
// kept.
func Init(opts ...config.Option) error {
	c, err := config.Load(opts...)
	if err != nil {
		return err
	}
	setup(c)
	logger.WithFields(logrus.Fields{
		"track_owners": c.TrackOwners,
		"max_queue":    c.MaxQueue,
		"max_held":     c.MaxHeld,
		"spin_limit":   c.SpinLimit,
	}).Debug("synchronization runtime initialized")
	return nil
}

// Reset rebuilds the runtime with the current configuration. For tests.
func Reset() {
	setup(cfg)
}

// SetOutput redirects logs, violation reports and the Fini summary.
func SetOutput(w io.Writer) {
	reports = w
	logger.SetOutput(w)
	auditor = audit.New(logger, depot, w)
}

// Config returns the active configuration.
func Config() config.Config {
	return cfg
}

// Fini logs the end-of-run statistics and writes the violation summary.
func Fini() {
	logger.WithFields(logrus.Fields{
		"threads":    Threads(),
		"handles":    Handles(),
		"named":      registry.Default().Len(),
		"violations": auditor.Count(),
	}).Info("synchronization runtime finished")
	auditor.Summary(reports)
}

// Violations returns the number of distinct protocol violations reported.
func Violations() int {
	return auditor.Count()
}

func toDuration(ms uint32) time.Duration {
	if ms == Infinite {
		return wakeup.Infinite
	}
	return time.Duration(ms) * time.Millisecond
}

// resolve looks up h and checks its kind.
func resolve(h Handle, op audit.Op, self *wakeup.Wakeup, kinds ...handle.Kind) (handle.Handle, error) {
	obj, ok := table.get(h)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %d", op, ErrInvalidHandle, h)
	}
	for _, k := range kinds {
		if obj.Kind() == k {
			return obj, nil
		}
	}
	return nil, report(op, handle.ErrWrongKind, h, obj, self)
}

// report records a protocol violation by self on obj.
func report(op audit.Op, reason error, h Handle, obj handle.Handle, self *wakeup.Wakeup) error {
	v := &audit.Violation{
		Op:     op,
		Err:    reason,
		Handle: uint64(h),
		Kind:   obj.Kind().String(),
		Thread: self.ID(),
	}
	if depot != nil {
		v.Site = depot.Capture(1)
	}
	own := obj.Owner()
	v.Owner = own.OwnerID()
	v.OwnerSite = own.Site
	return auditor.Report(v)
}

// === Mutex API ===

// MutexCreate creates a mutex, owned once by the caller if initiallyOwned.
func MutexCreate(initiallyOwned bool) (Handle, error) {
	m, err := handle.NewMutex(env, currentThread(), initiallyOwned)
	if err != nil {
		return 0, err
	}
	return table.put(m), nil
}

// NamedMutexCreate opens the named mutex called name, creating it if needed.
// Each call returns a distinct handle that must be closed separately.
// gotOwnership reports whether the caller owns the mutex on return.
func NamedMutexCreate(name string, initiallyOwned bool) (h Handle, gotOwnership bool, err error) {
	nm, got, err := registry.Default().Lookup(currentThread(), name, initiallyOwned)
	if err != nil {
		return 0, false, err
	}
	return table.put(nm), got, nil
}

// lockKinds are the handle kinds that can be entered and released.
var lockKinds = []handle.Kind{handle.KindMutex, handle.KindNamedMutex, handle.KindMonitor}

// MutexEnter acquires a mutex, named mutex or monitor, waiting at most
// timeoutMs.
func MutexEnter(h Handle, timeoutMs uint32) (handle.Status, error) {
	self := currentThread()
	obj, err := resolve(h, audit.OpEnter, self, lockKinds...)
	if err != nil {
		return handle.StatusFailed, err
	}
	return obj.Enter(self, toDuration(timeoutMs))
}

// MutexTryEnter acquires h only if no waiting is needed.
func MutexTryEnter(h Handle) (handle.Status, error) {
	return MutexEnter(h, 0)
}

// MutexRelease releases one level of ownership of a mutex, named mutex or
// monitor.
func MutexRelease(h Handle) (handle.ReleaseStatus, error) {
	self := currentThread()
	obj, err := resolve(h, audit.OpRelease, self, lockKinds...)
	if err != nil {
		return handle.ReleaseFail, err
	}
	return release(h, obj, self)
}

func release(h Handle, obj handle.Handle, self *wakeup.Wakeup) (handle.ReleaseStatus, error) {
	st := obj.Release(self)
	if st == handle.ReleaseFail {
		return st, report(audit.OpRelease, handle.ErrNotOwned, h, obj, self)
	}
	return st, nil
}

// MutexClose closes a mutex or named mutex handle. On CloseOwned the handle
// stays valid.
func MutexClose(h Handle) (handle.CloseStatus, error) {
	self := currentThread()
	obj, err := resolve(h, audit.OpClose, self, handle.KindMutex, handle.KindNamedMutex)
	if err != nil {
		return handle.CloseOwned, err
	}

	var st handle.CloseStatus
	if nm, ok := obj.(*handle.NamedMutex); ok {
		st = registry.Default().Close(nm)
	} else {
		st = obj.Close()
	}
	return closed(h, obj, st), nil
}

func closed(h Handle, obj handle.Handle, st handle.CloseStatus) handle.CloseStatus {
	if st != handle.CloseOwned {
		table.remove(h)
		return st
	}
	fields := logrus.Fields{
		"handle": uint64(h),
		"kind":   obj.Kind().String(),
	}
	own := obj.Owner()
	if own.Owner != nil {
		fields["owner"] = own.OwnerID()
		if depot != nil && own.Site != 0 {
			fields["owner_site"] = depot.Top(own.Site)
		}
	}
	logger.WithFields(fields).Warn("close refused: handle in use")
	return st
}

// === Monitor API ===

// MonitorCreate creates an unowned monitor.
func MonitorCreate() (Handle, error) {
	return table.put(handle.NewMonitor(env)), nil
}

// MonitorEnter is MutexEnter.
func MonitorEnter(h Handle, timeoutMs uint32) (handle.Status, error) {
	return MutexEnter(h, timeoutMs)
}

// MonitorTryEnter acquires a monitor only if no waiting is needed.
func MonitorTryEnter(h Handle) (handle.Status, error) {
	return MonitorEnter(h, 0)
}

// MonitorExit is MutexRelease.
func MonitorExit(h Handle) (handle.ReleaseStatus, error) {
	return MutexRelease(h)
}

// MonitorWait releases the monitor, waits for a pulse or timeoutMs, and
// re-acquires it before returning.
func MonitorWait(h Handle, timeoutMs uint32) (handle.Status, error) {
	self := currentThread()
	obj, err := resolve(h, audit.OpWait, self, handle.KindMonitor)
	if err != nil {
		return handle.StatusFailed, err
	}
	st, err := obj.(*handle.Monitor).Wait(self, toDuration(timeoutMs))
	if errors.Is(err, handle.ErrNotOwned) {
		return st, report(audit.OpWait, err, h, obj, self)
	}
	return st, err
}

// MonitorPulse wakes one waiter. A nil error means the caller owned the
// monitor.
func MonitorPulse(h Handle) error {
	return pulse(h, audit.OpPulse, (*handle.Monitor).Pulse)
}

// MonitorPulseAll wakes every waiter.
func MonitorPulseAll(h Handle) error {
	return pulse(h, audit.OpPulseAll, (*handle.Monitor).PulseAll)
}

func pulse(h Handle, op audit.Op, fn func(*handle.Monitor, *wakeup.Wakeup) error) error {
	self := currentThread()
	obj, err := resolve(h, op, self, handle.KindMonitor)
	if err != nil {
		return err
	}
	if err := fn(obj.(*handle.Monitor), self); err != nil {
		return report(op, err, h, obj, self)
	}
	return nil
}

// MonitorClose closes a monitor handle. On CloseOwned (threads are waiting)
// the handle stays valid.
func MonitorClose(h Handle) (handle.CloseStatus, error) {
	self := currentThread()
	obj, err := resolve(h, audit.OpClose, self, handle.KindMonitor)
	if err != nil {
		return handle.CloseOwned, err
	}
	return closed(h, obj, obj.Close()), nil
}

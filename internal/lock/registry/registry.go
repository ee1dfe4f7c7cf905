// Package registry maps names to named mutexes shared across the process.
//
// Lock order: the registry lock is always taken before the internal lock of
// a named mutex. Enter and Release never touch the registry.
package registry

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/syncore/internal/lock/handle"
	"github.com/kolkov/syncore/internal/lock/wakeup"
)

// Registry is a name -> named mutex table with reference counting.
//
// Every successful Lookup adds a reference that the caller gives back with
// Close. The entry leaves the table when its last reference is closed while
// the mutex is idle.
type Registry struct {
	mu     sync.Mutex
	env    *handle.Env
	byName map[string]*handle.NamedMutex
}

// New returns an empty registry whose mutexes use env.
func New(env *handle.Env) *Registry {
	return &Registry{env: env, byName: make(map[string]*handle.NamedMutex)}
}

// SetEnv changes the environment used for mutexes created from now on.
func (r *Registry) SetEnv(env *handle.Env) {
	r.mu.Lock()
	r.env = env
	r.mu.Unlock()
}

// Lookup returns the named mutex called name, creating it if needed.
//
// For a new mutex, initiallyOwned makes self its owner. For an existing one,
// initiallyOwned attempts a non-blocking acquire; gotOwnership reports
// whether self owns the mutex on return. A failed Lookup adds no reference.
func (r *Registry) Lookup(self *wakeup.Wakeup, name string, initiallyOwned bool) (nm *handle.NamedMutex, gotOwnership bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if nm, ok := r.byName[name]; ok {
		nm.AddRef()
		if !initiallyOwned {
			return nm, false, nil
		}
		st, err := nm.TryEnter(self)
		if err != nil {
			nm.DropRef()
			return nil, false, err
		}
		return nm, st == handle.StatusOK, nil
	}

	nm, err = handle.NewNamedMutex(r.env, self, name, initiallyOwned)
	if err != nil {
		return nil, false, err
	}
	r.byName[name] = nm
	r.trace(nm, "named mutex created")
	return nm, initiallyOwned, nil
}

// Close drops one reference to nm.
//
// It returns CloseDontFree while other references remain, CloseFree when the
// last reference went away and the entry was removed, and CloseOwned when the
// last reference is closed while the mutex is owned or has waiters. In that
// case the reference is kept, the caller's handle stays valid and the name
// stays registered, so later lookups of it still reach this mutex. The entry
// is removed by the Close that finds the mutex idle, not when the owner
// finally releases it.
func (r *Registry) Close(nm *handle.NamedMutex) handle.CloseStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if nm.DropRef() > 0 {
		return handle.CloseDontFree
	}
	if !nm.Idle() {
		nm.AddRef()
		return handle.CloseOwned
	}
	if r.byName[nm.Name()] == nm {
		delete(r.byName, nm.Name())
	}
	r.trace(nm, "named mutex destroyed")
	return handle.CloseFree
}

// Get returns the mutex registered as name without adding a reference.
func (r *Registry) Get(name string) (*handle.NamedMutex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nm, ok := r.byName[name]
	return nm, ok
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) trace(nm *handle.NamedMutex, msg string) {
	if r.env == nil || !r.env.Trace || r.env.Log == nil {
		return
	}
	r.env.Log.WithFields(logrus.Fields{
		"handle": nm.ID(),
		"name":   nm.Name(),
		"refs":   nm.Refs(),
	}).Debug(msg)
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultMu   sync.Mutex
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOnce.Do(func() {
		defaultReg = New(nil)
	})
	return defaultReg
}

// ResetDefault discards the process-wide registry. The next Default call
// creates a fresh one. Only for tests and runtime teardown.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOnce = sync.Once{}
	defaultReg = nil
}

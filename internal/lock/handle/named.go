package handle

import "github.com/kolkov/syncore/internal/lock/wakeup"

// NamedMutex is a Mutex that lives in the registry under a name.
//
// The reference count is guarded by the registry lock, not by the mutex.
type NamedMutex struct {
	Mutex
	name string
	refs int
}

// NewNamedMutex creates a named mutex with one reference. The registry is the
// only caller.
func NewNamedMutex(env *Env, self *wakeup.Wakeup, name string, initiallyOwned bool) (*NamedMutex, error) {
	nm := &NamedMutex{name: name, refs: 1}
	nm.Mutex.init(env, KindNamedMutex, nm)
	if initiallyOwned {
		if err := nm.claimLocked(self); err != nil {
			return nil, err
		}
	}
	return nm, nil
}

// Name returns the registry key.
func (nm *NamedMutex) Name() string { return nm.name }

// Refs returns the reference count. The caller holds the registry lock.
func (nm *NamedMutex) Refs() int { return nm.refs }

// AddRef adds a reference and returns the new count. The caller holds the
// registry lock.
func (nm *NamedMutex) AddRef() int {
	nm.refs++
	return nm.refs
}

// DropRef removes a reference and returns the new count. The caller holds the
// registry lock.
func (nm *NamedMutex) DropRef() int {
	nm.refs--
	return nm.refs
}

// Idle reports whether the mutex is unowned with nobody queued. The caller
// holds the registry lock; this takes the internal lock after it.
func (nm *NamedMutex) Idle() bool {
	nm.spin.Lock()
	defer nm.spin.Unlock()
	return nm.closeableLocked()
}

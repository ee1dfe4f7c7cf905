package api

import (
	"sync"

	"github.com/kolkov/syncore/internal/lock/handle"
)

// Handle is the opaque reference returned by the create calls. Zero is never
// a valid handle.
type Handle uint64

// handleTable maps opaque handles to wait handles. Each named-mutex lookup
// gets its own entry, so every reference can be closed independently.
type handleTable struct {
	mu   sync.RWMutex
	next Handle
	m    map[Handle]handle.Handle
}

func (t *handleTable) put(obj handle.Handle) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[Handle]handle.Handle)
	}
	t.next++
	t.m[t.next] = obj
	return t.next
}

func (t *handleTable) get(h Handle) (handle.Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	obj, ok := t.m[h]
	return obj, ok
}

func (t *handleTable) remove(h Handle) {
	t.mu.Lock()
	delete(t.m, h)
	t.mu.Unlock()
}

func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

func (t *handleTable) reset() {
	t.mu.Lock()
	t.next = 0
	t.m = make(map[Handle]handle.Handle)
	t.mu.Unlock()
}

// Handles returns the number of open handles.
func Handles() int {
	return table.len()
}

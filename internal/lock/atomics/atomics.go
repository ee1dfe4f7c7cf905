package atomics

import "sync/atomic"

// Order is the memory ordering requested for a single atomic operation.
type Order uint8

const (
	// Relaxed only guarantees atomicity of the access itself.
	Relaxed Order = iota

	// Acquire keeps later memory operations from moving before the access.
	Acquire

	// Release keeps earlier memory operations from moving after the access.
	Release

	// Full is a two-way barrier.
	Full
)

// String returns the ordering name.
func (o Order) String() string {
	switch o {
	case Relaxed:
		return "relaxed"
	case Acquire:
		return "acquire"
	case Release:
		return "release"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Uint32 is an atomically accessed uint32.
type Uint32 struct {
	v atomic.Uint32
}

// Load returns the current value.
func (a *Uint32) Load(_ Order) uint32 { return a.v.Load() }

// Store sets the value.
func (a *Uint32) Store(val uint32, _ Order) { a.v.Store(val) }

// Swap stores val and returns the previous value.
func (a *Uint32) Swap(val uint32, _ Order) uint32 { return a.v.Swap(val) }

// CompareAndSwap stores val if the current value is old.
func (a *Uint32) CompareAndSwap(old, val uint32, _ Order) bool {
	return a.v.CompareAndSwap(old, val)
}

// Add adds delta and returns the new value.
func (a *Uint32) Add(delta uint32, _ Order) uint32 { return a.v.Add(delta) }

// Int32 is an atomically accessed int32.
type Int32 struct {
	v atomic.Int32
}

// Load returns the current value.
func (a *Int32) Load(_ Order) int32 { return a.v.Load() }

// Store sets the value.
func (a *Int32) Store(val int32, _ Order) { a.v.Store(val) }

// Swap stores val and returns the previous value.
func (a *Int32) Swap(val int32, _ Order) int32 { return a.v.Swap(val) }

// CompareAndSwap stores val if the current value is old.
func (a *Int32) CompareAndSwap(old, val int32, _ Order) bool {
	return a.v.CompareAndSwap(old, val)
}

// Add adds delta and returns the new value.
func (a *Int32) Add(delta int32, _ Order) int32 { return a.v.Add(delta) }

// Uint64 is an atomically accessed uint64.
type Uint64 struct {
	v atomic.Uint64
}

// Load returns the current value.
func (a *Uint64) Load(_ Order) uint64 { return a.v.Load() }

// Store sets the value.
func (a *Uint64) Store(val uint64, _ Order) { a.v.Store(val) }

// Swap stores val and returns the previous value.
func (a *Uint64) Swap(val uint64, _ Order) uint64 { return a.v.Swap(val) }

// CompareAndSwap stores val if the current value is old.
func (a *Uint64) CompareAndSwap(old, val uint64, _ Order) bool {
	return a.v.CompareAndSwap(old, val)
}

// Add adds delta and returns the new value.
func (a *Uint64) Add(delta uint64, _ Order) uint64 { return a.v.Add(delta) }

// Int64 is an atomically accessed int64.
type Int64 struct {
	v atomic.Int64
}

// Load returns the current value.
func (a *Int64) Load(_ Order) int64 { return a.v.Load() }

// Store sets the value.
func (a *Int64) Store(val int64, _ Order) { a.v.Store(val) }

// Swap stores val and returns the previous value.
func (a *Int64) Swap(val int64, _ Order) int64 { return a.v.Swap(val) }

// CompareAndSwap stores val if the current value is old.
func (a *Int64) CompareAndSwap(old, val int64, _ Order) bool {
	return a.v.CompareAndSwap(old, val)
}

// Add adds delta and returns the new value.
func (a *Int64) Add(delta int64, _ Order) int64 { return a.v.Add(delta) }

// Uintptr is an atomically accessed uintptr.
type Uintptr struct {
	v atomic.Uintptr
}

// Load returns the current value.
func (a *Uintptr) Load(_ Order) uintptr { return a.v.Load() }

// Store sets the value.
func (a *Uintptr) Store(val uintptr, _ Order) { a.v.Store(val) }

// Swap stores val and returns the previous value.
func (a *Uintptr) Swap(val uintptr, _ Order) uintptr { return a.v.Swap(val) }

// CompareAndSwap stores val if the current value is old.
func (a *Uintptr) CompareAndSwap(old, val uintptr, _ Order) bool {
	return a.v.CompareAndSwap(old, val)
}

// Add adds delta and returns the new value.
func (a *Uintptr) Add(delta uintptr, _ Order) uintptr { return a.v.Add(delta) }

// Pointer is an atomically accessed *T.
type Pointer[T any] struct {
	v atomic.Pointer[T]
}

// Load returns the current pointer.
func (a *Pointer[T]) Load(_ Order) *T { return a.v.Load() }

// Store sets the pointer.
func (a *Pointer[T]) Store(val *T, _ Order) { a.v.Store(val) }

// Swap stores val and returns the previous pointer.
func (a *Pointer[T]) Swap(val *T, _ Order) *T { return a.v.Swap(val) }

// CompareAndSwap stores val if the current pointer is old.
func (a *Pointer[T]) CompareAndSwap(old, val *T, _ Order) bool {
	return a.v.CompareAndSwap(old, val)
}

// Bool is an atomically accessed bool.
type Bool struct {
	v atomic.Bool
}

// Load returns the current value.
func (a *Bool) Load(_ Order) bool { return a.v.Load() }

// Store sets the value.
func (a *Bool) Store(val bool, _ Order) { a.v.Store(val) }

// Swap stores val and returns the previous value.
func (a *Bool) Swap(val bool, _ Order) bool { return a.v.Swap(val) }

// CompareAndSwap stores val if the current value is old.
func (a *Bool) CompareAndSwap(old, val bool, _ Order) bool {
	return a.v.CompareAndSwap(old, val)
}

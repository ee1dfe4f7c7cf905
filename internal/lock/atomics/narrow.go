package atomics

import "sync/atomic"

// Uint8 is an atomically accessed uint8.
//
// sync/atomic has no sub-word operations, so the value lives in the low byte
// of a 32 bit cell. Arithmetic wraps at 8 bits.
type Uint8 struct {
	v atomic.Uint32
}

// Load returns the current value.
func (a *Uint8) Load(_ Order) uint8 { return uint8(a.v.Load()) }

// Store sets the value.
func (a *Uint8) Store(val uint8, _ Order) { a.v.Store(uint32(val)) }

// Swap stores val and returns the previous value.
func (a *Uint8) Swap(val uint8, _ Order) uint8 { return uint8(a.v.Swap(uint32(val))) }

// CompareAndSwap stores val if the current value is old.
func (a *Uint8) CompareAndSwap(old, val uint8, _ Order) bool {
	return a.v.CompareAndSwap(uint32(old), uint32(val))
}

// Add adds delta and returns the new value, wrapping at 8 bits.
func (a *Uint8) Add(delta uint8, _ Order) uint8 {
	for {
		old := a.v.Load()
		next := uint32(uint8(old) + delta)
		if a.v.CompareAndSwap(old, next) {
			return uint8(next)
		}
	}
}

// Uint16 is an atomically accessed uint16 stored in a 32 bit cell.
type Uint16 struct {
	v atomic.Uint32
}

// Load returns the current value.
func (a *Uint16) Load(_ Order) uint16 { return uint16(a.v.Load()) }

// Store sets the value.
func (a *Uint16) Store(val uint16, _ Order) { a.v.Store(uint32(val)) }

// Swap stores val and returns the previous value.
func (a *Uint16) Swap(val uint16, _ Order) uint16 { return uint16(a.v.Swap(uint32(val))) }

// CompareAndSwap stores val if the current value is old.
func (a *Uint16) CompareAndSwap(old, val uint16, _ Order) bool {
	return a.v.CompareAndSwap(uint32(old), uint32(val))
}

// Add adds delta and returns the new value, wrapping at 16 bits.
func (a *Uint16) Add(delta uint16, _ Order) uint16 {
	for {
		old := a.v.Load()
		next := uint32(uint16(old) + delta)
		if a.v.CompareAndSwap(old, next) {
			return uint16(next)
		}
	}
}

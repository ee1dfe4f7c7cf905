// Package atomics adapts sync/atomic to the ordered atomic-primitive interface
// the lock core is written against.
//
// Every operation takes an Order (Relaxed, Acquire, Release or Full). The Go
// memory model gives all sync/atomic operations sequentially consistent
// semantics, so every order is implemented by the same instruction; the
// parameter is kept so that call sites document the ordering they rely on:
//
//	owner := w.Load(atomics.Acquire)   // pairs with the releasing Store
//	w.Store(0, atomics.Release)
//
// Widths:
//   - 32 and 64 bit cells map directly onto sync/atomic
//   - 8 and 16 bit cells occupy a full 32 bit word and wrap at their width
//   - Pointer[T] and Uintptr cover pointer-sized values
//
// The package also provides the two building blocks derived from these
// primitives: Flags (an atomic bit set used for per-thread interrupt and abort
// bits) and SpinLock (the short-held internal lock of every wait handle).
package atomics

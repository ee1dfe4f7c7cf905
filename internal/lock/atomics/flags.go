package atomics

// Flags is an atomic bit set.
//
// It backs the per-thread cancellation bits: Set and Clear are single
// read-modify-write loops, and TestAndClear lets exactly one observer consume
// a bit.
type Flags struct {
	bits Uint32
}

// Set turns on the given bits and returns the previous bit set.
func (f *Flags) Set(mask uint32) uint32 {
	for {
		old := f.bits.Load(Relaxed)
		if old&mask == mask {
			return old
		}
		if f.bits.CompareAndSwap(old, old|mask, Full) {
			return old
		}
	}
}

// Clear turns off the given bits and returns the previous bit set.
func (f *Flags) Clear(mask uint32) uint32 {
	for {
		old := f.bits.Load(Relaxed)
		if old&mask == 0 {
			return old
		}
		if f.bits.CompareAndSwap(old, old&^mask, Full) {
			return old
		}
	}
}

// Has reports whether any of the given bits is set.
func (f *Flags) Has(mask uint32) bool {
	return f.bits.Load(Acquire)&mask != 0
}

// TestAndClear clears mask and reports whether any of its bits were set.
// When several goroutines race, only one of them observes true.
func (f *Flags) TestAndClear(mask uint32) bool {
	return f.Clear(mask)&mask != 0
}

// Load returns the whole bit set.
func (f *Flags) Load() uint32 {
	return f.bits.Load(Acquire)
}

package wakeup

import (
	"errors"
	"sync/atomic"
)

// ErrHeldLimit is returned when the held-locks set would grow past its limit.
var ErrHeldLimit = errors.New("wakeup: held-locks set limit reached")

const (
	// initialHeldCapacity is the first table size; a prime.
	initialHeldCapacity = 7

	// tombstone marks a deleted slot so probe chains stay intact.
	tombstone = ^uint64(0)

	// golden is the 64 bit Fibonacci hashing multiplier.
	golden = 0x9E3779B97F4A7C15
)

// HeldSet is the set of reentrant locks a thread currently owns, keyed by
// lock identity.
//
// It is an open-addressed table with linear probing. The capacity is always
// prime; when the load factor passes 3/4 the table is rehashed into the next
// prime at least twice as large. Deleted slots leave tombstones which are
// dropped on the next rehash.
//
// The set is owned by one goroutine and is not safe for concurrent use,
// except Owned.
type HeldSet struct {
	keys   []uint64
	vals   []Held
	used   int // live entries
	filled int // live entries plus tombstones
	limit  int // maximum live entries, 0 for none

	owned atomic.Int32 // mirrors used for other goroutines
}

// Len returns the number of locks held.
func (s *HeldSet) Len() int {
	return s.used
}

// Owned returns the number of locks held. Unlike Len it may be called from
// any goroutine.
func (s *HeldSet) Owned() int {
	return int(s.owned.Load())
}

// Cap returns the current table capacity.
func (s *HeldSet) Cap() int {
	return len(s.keys)
}

// Contains reports whether the lock with the given identity is held.
func (s *HeldSet) Contains(id uint64) bool {
	_, ok := s.find(id)
	return ok
}

// Get returns the held lock with the given identity, or nil.
func (s *HeldSet) Get(id uint64) Held {
	if i, ok := s.find(id); ok {
		return s.vals[i]
	}
	return nil
}

// Insert adds h. Inserting a lock already present is a no-op. On error the
// set is unchanged.
func (s *HeldSet) Insert(h Held) error {
	id := h.ID()
	if id == 0 || id == tombstone {
		panic("wakeup: invalid lock identity")
	}
	if s.Contains(id) {
		return nil
	}
	if s.limit > 0 && s.used >= s.limit {
		return ErrHeldLimit
	}
	if len(s.keys) == 0 || (s.filled+1)*4 > len(s.keys)*3 {
		next := len(s.keys)
		if s.used*2 >= len(s.keys) {
			next = nextPrime(2*len(s.keys) + 1)
		}
		if next < initialHeldCapacity {
			next = initialHeldCapacity
		}
		s.rehash(next)
	}
	s.place(id, h)
	s.owned.Add(1)
	return nil
}

// Remove deletes the lock with the given identity and reports whether it
// was present.
func (s *HeldSet) Remove(id uint64) bool {
	i, ok := s.find(id)
	if !ok {
		return false
	}
	s.keys[i] = tombstone
	s.vals[i] = nil
	s.used--
	s.owned.Add(-1)
	return true
}

// Range calls fn for every held lock until fn returns false.
func (s *HeldSet) Range(fn func(Held) bool) {
	for i, k := range s.keys {
		if k == 0 || k == tombstone {
			continue
		}
		if !fn(s.vals[i]) {
			return
		}
	}
}

// Snapshot returns the held locks in table order.
func (s *HeldSet) Snapshot() []Held {
	out := make([]Held, 0, s.used)
	s.Range(func(h Held) bool {
		out = append(out, h)
		return true
	})
	return out
}

func (s *HeldSet) slot(id uint64) int {
	return int((id * golden) % uint64(len(s.keys)))
}

func (s *HeldSet) find(id uint64) (int, bool) {
	if len(s.keys) == 0 {
		return 0, false
	}
	n := len(s.keys)
	for i, probes := s.slot(id), 0; probes < n; i, probes = (i+1)%n, probes+1 {
		switch s.keys[i] {
		case 0:
			return 0, false
		case id:
			return i, true
		}
	}
	return 0, false
}

// place stores id in the first empty or deleted slot of its probe chain.
// The caller guarantees id is absent and a free slot exists.
func (s *HeldSet) place(id uint64, h Held) {
	n := len(s.keys)
	for i := s.slot(id); ; i = (i + 1) % n {
		switch s.keys[i] {
		case 0:
			s.filled++
			fallthrough
		case tombstone:
			s.keys[i] = id
			s.vals[i] = h
			s.used++
			return
		}
	}
}

func (s *HeldSet) rehash(capacity int) {
	oldKeys, oldVals := s.keys, s.vals
	s.keys = make([]uint64, capacity)
	s.vals = make([]Held, capacity)
	s.used, s.filled = 0, 0
	for i, k := range oldKeys {
		if k != 0 && k != tombstone {
			s.place(k, oldVals[i])
		}
	}
}

// nextPrime returns the smallest prime >= n.
func nextPrime(n int) int {
	if n <= 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for ; ; n += 2 {
		if isPrime(n) {
			return n
		}
	}
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := 3; d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

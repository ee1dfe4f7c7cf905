// Package stackdepot records where locks were acquired.
//
// When owner tracking is enabled, every successful acquisition of a wait
// handle captures its caller's stack into a Depot and remembers the returned
// Site. Close refusals ("still owned") and protocol-violation reports then
// print where the current owner took the lock.
//
// Stacks are deduplicated: a Site is the FNV-1a hash of the captured program
// counters, so a lock taken in a loop costs one stored trace.
//
//	d := stackdepot.New()
//	site := d.Capture(1)      // caller of the acquiring function
//	...
//	fmt.Print(d.Format(site)) // "  pkg.fn()\n      file.go:12\n"
package stackdepot

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"
	"sync"
)

// MaxFrames is the number of frames kept per acquisition site. It leaves
// room for the lock core's own frames above the application's.
const MaxFrames = 16

// Site identifies a captured stack. The zero Site means "not recorded".
type Site uint64

// trace is one stored stack.
type trace struct {
	pcs [MaxFrames]uintptr
	n   int
}

// Depot stores deduplicated acquisition stacks. It is safe for concurrent use.
type Depot struct {
	traces sync.Map // Site -> *trace
	hidden []string
}

// New returns an empty depot. Frames whose function name starts with one of
// the hidden prefixes are left out of Format and Top, which keeps the lock
// core's own frames out of reports.
func New(hidden ...string) *Depot {
	return &Depot{hidden: hidden}
}

// Capture records the stack of the goroutine calling Capture, skipping skip
// frames above the caller, and returns its Site.
func (d *Depot) Capture(skip int) Site {
	var t trace
	// +2 skips runtime.Callers and Capture itself.
	t.n = runtime.Callers(skip+2, t.pcs[:])
	if t.n == 0 {
		return 0
	}
	site := hashPCs(t.pcs[:t.n])
	if _, ok := d.traces.Load(site); !ok {
		d.traces.LoadOrStore(site, &t)
	}
	return site
}

// Frames returns the program counters of site, or nil if it is unknown.
func (d *Depot) Frames(site Site) []uintptr {
	if site == 0 {
		return nil
	}
	v, ok := d.traces.Load(site)
	if !ok {
		return nil
	}
	t := v.(*trace)
	out := make([]uintptr, t.n)
	copy(out, t.pcs[:t.n])
	return out
}

// Format renders site one frame per two lines, skipping runtime frames.
func (d *Depot) Format(site Site) string {
	pcs := d.Frames(site)
	if len(pcs) == 0 {
		return "  <unknown>\n"
	}
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	for {
		frame, more := frames.Next()
		if frame.PC != 0 && d.visible(frame.Function) {
			fmt.Fprintf(&b, "  %s()\n      %s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	if b.Len() == 0 {
		return "  <runtime internal>\n"
	}
	return b.String()
}

// Top returns "function file:line" of the innermost non-runtime frame of
// site, for single-line log fields.
func (d *Depot) Top(site Site) string {
	pcs := d.Frames(site)
	if len(pcs) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		if frame.PC != 0 && d.visible(frame.Function) {
			return fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line)
		}
		if !more {
			return ""
		}
	}
}

// Len returns the number of distinct sites stored.
func (d *Depot) Len() int {
	n := 0
	d.traces.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (d *Depot) visible(function string) bool {
	if strings.HasPrefix(function, "runtime.") {
		return false
	}
	for _, p := range d.hidden {
		if strings.HasPrefix(function, p) {
			return false
		}
	}
	return true
}

func hashPCs(pcs []uintptr) Site {
	h := fnv.New64a()
	var buf [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(buf[:], uint64(pc))
		_, _ = h.Write(buf[:])
	}
	s := Site(h.Sum64())
	if s == 0 {
		s = 1
	}
	return s
}

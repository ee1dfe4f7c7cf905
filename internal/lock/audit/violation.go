package audit

import (
	"fmt"
	"io"
	"strings"

	"github.com/kolkov/syncore/internal/lock/stackdepot"
)

// Op names the operation that was refused.
type Op string

// Operations that can be refused.
const (
	OpEnter    Op = "enter"
	OpRelease  Op = "release"
	OpWait     Op = "wait"
	OpPulse    Op = "pulse"
	OpPulseAll Op = "pulse all"
	OpClose    Op = "close"
)

// Violation describes one refused call. It implements error and unwraps to
// the sentinel error explaining the refusal.
type Violation struct {
	Op     Op
	Err    error
	Handle uint64
	Kind   string

	// Thread is the caller's context identity; Owner the current owner's,
	// or 0 if the handle is unowned.
	Thread uint32
	Owner  uint32

	// Site is where the refused call was made; OwnerSite where the current
	// owner acquired the handle. Either may be zero when tracking is off.
	Site      stackdepot.Site
	OwnerSite stackdepot.Site
}

// Error implements the error interface.
//
// Format: "<op> of <kind> <handle> by thread <n>: <reason>".
func (v *Violation) Error() string {
	msg := fmt.Sprintf("%s of %s %d by thread %d: %v", v.Op, v.Kind, v.Handle, v.Thread, v.Err)
	if v.Owner != 0 {
		msg += fmt.Sprintf(" (owned by thread %d)", v.Owner)
	}
	return msg
}

// Unwrap returns the reason, so errors.Is works against sentinel errors.
func (v *Violation) Unwrap() error {
	return v.Err
}

// key identifies a violation site for deduplication.
func (v *Violation) key() string {
	return fmt.Sprintf("%s:%d:%d:%x", v.Op, v.Handle, v.Thread, uint64(v.Site))
}

// Format writes the report, resolving stacks through depot (which may be nil).
//
//nolint:errcheck // Report output is best effort.
func (v *Violation) Format(w io.Writer, depot *stackdepot.Depot) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "WARNING: SYNCHRONIZATION PROTOCOL VIOLATION\n")
	fmt.Fprintf(w, "%s of %s 0x%016x by thread %d: %v\n", v.Op, v.Kind, v.Handle, v.Thread, v.Err)
	if depot != nil && v.Site != 0 {
		fmt.Fprint(w, depot.Format(v.Site))
	} else {
		fmt.Fprintf(w, "  (stack not recorded)\n")
	}
	if v.Owner != 0 {
		fmt.Fprintf(w, "\nCurrent owner: thread %d, acquired at:\n", v.Owner)
		if depot != nil && v.OwnerSite != 0 {
			fmt.Fprint(w, depot.Format(v.OwnerSite))
		} else {
			fmt.Fprintf(w, "  (enable track_owners to record acquisition sites)\n")
		}
	}
	fmt.Fprintf(w, "==================\n")
}

// String returns the formatted report without stacks.
func (v *Violation) String() string {
	var b strings.Builder
	v.Format(&b, nil)
	return b.String()
}

package audit

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/syncore/internal/lock/stackdepot"
)

// Auditor collects violations. It is safe for concurrent use.
type Auditor struct {
	log   logrus.FieldLogger
	depot *stackdepot.Depot
	out   io.Writer

	reported sync.Map // dedup key -> struct{}

	// mu serializes report output and guards count.
	mu    sync.Mutex
	count int
	total int
}

// New returns an auditor logging through log and writing full reports to
// out (nil disables reports). depot resolves stacks and may be nil.
func New(log logrus.FieldLogger, depot *stackdepot.Depot, out io.Writer) *Auditor {
	return &Auditor{log: log, depot: depot, out: out}
}

// Report records v and returns it, so callers can write
//
//	return StatusFail, a.Report(v)
//
// Repeated reports of the same site are counted in Total but logged and
// written only once.
func (a *Auditor) Report(v *Violation) *Violation {
	_, seen := a.reported.LoadOrStore(v.key(), struct{}{})

	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if seen {
		return v
	}
	a.count++

	fields := logrus.Fields{
		"op":     string(v.Op),
		"handle": v.Handle,
		"kind":   v.Kind,
		"thread": v.Thread,
	}
	if v.Owner != 0 {
		fields["owner"] = v.Owner
		if a.depot != nil && v.OwnerSite != 0 {
			fields["owner_site"] = a.depot.Top(v.OwnerSite)
		}
	}
	a.log.WithFields(fields).Warn(v.Err.Error())
	if a.out != nil {
		v.Format(a.out, a.depot)
	}
	return v
}

// Count returns the number of distinct violations reported.
func (a *Auditor) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Total returns the number of violations including repeats.
func (a *Auditor) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Summary writes the end-of-run report.
//
//nolint:errcheck // Summary output is best effort.
func (a *Auditor) Summary(w io.Writer) {
	count, total := a.Count(), a.Total()
	fmt.Fprintf(w, "\n==================\n")
	fmt.Fprintf(w, "Synchronization Report\n")
	fmt.Fprintf(w, "==================\n")
	if count == 0 {
		fmt.Fprintf(w, "No protocol violations.\n")
	} else {
		fmt.Fprintf(w, "WARNING: %d protocol violation(s) at distinct sites (%d in total).\n", count, total)
	}
	fmt.Fprintf(w, "==================\n\n")
}

// Reset forgets every recorded violation. Not safe while reports are being
// made concurrently.
func (a *Auditor) Reset() {
	a.reported = sync.Map{}
	a.mu.Lock()
	a.count, a.total = 0, 0
	a.mu.Unlock()
}

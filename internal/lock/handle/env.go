package handle

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/syncore/internal/lock/atomics"
	"github.com/kolkov/syncore/internal/lock/stackdepot"
)

// Env carries what every handle shares: logging, owner-site recording and
// resource limits. A nil *Env means defaults with logging discarded.
type Env struct {
	// Log receives debug events (contention, handoff, refused close).
	Log logrus.FieldLogger

	// Trace enables the debug events. It is checked before building log
	// fields so that quiet runs pay nothing.
	Trace bool

	// Depot records where each owner acquired a handle. Nil disables it.
	Depot *stackdepot.Depot

	// QueueLimit bounds every entry and signal queue; 0 means unbounded.
	QueueLimit int
}

var defaultEnv = func() *Env {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Env{Log: log}
}()

func (e *Env) orDefault() *Env {
	if e == nil {
		return defaultEnv
	}
	if e.Log == nil {
		cp := *e
		cp.Log = defaultEnv.Log
		return &cp
	}
	return e
}

func (e *Env) capture() stackdepot.Site {
	if e.Depot == nil {
		return 0
	}
	return e.Depot.Capture(2)
}

// nextID hands out handle identities. Zero is never used.
var nextID atomics.Uint64

func newID() uint64 {
	return nextID.Add(1, atomics.Relaxed)
}

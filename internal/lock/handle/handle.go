package handle

import (
	"time"

	"github.com/kolkov/syncore/internal/lock/stackdepot"
	"github.com/kolkov/syncore/internal/lock/wakeup"
)

// Handle is the common surface of every wait handle.
type Handle interface {
	// ID returns the process-unique identity used as the held-locks key.
	ID() uint64
	Kind() Kind
	Enter(self *wakeup.Wakeup, timeout time.Duration) (Status, error)
	Release(self *wakeup.Wakeup) ReleaseStatus
	Close() CloseStatus
	Owner() Ownership
}

// Ownership is a snapshot of who holds a handle.
type Ownership struct {
	Owner *wakeup.Wakeup // nil when unowned
	Count uint32
	Site  stackdepot.Site
}

// OwnerID returns the owner's thread identity, or 0 when unowned.
func (o Ownership) OwnerID() uint32 {
	if o.Owner == nil {
		return 0
	}
	return o.Owner.ID()
}

var (
	_ Handle = (*Mutex)(nil)
	_ Handle = (*NamedMutex)(nil)
	_ Handle = (*Monitor)(nil)
)

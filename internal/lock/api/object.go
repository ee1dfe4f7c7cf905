package api

import (
	"github.com/kolkov/syncore/internal/lock/handle"
	"github.com/kolkov/syncore/internal/lock/thinlock"
)

// Object is a lockable object: a thin lock word that inflates into a monitor
// under contention or on the first wait.
type Object struct {
	hdr *thinlock.Header
}

// NewObject returns an unlocked object.
func NewObject() *Object {
	return &Object{hdr: thinlock.New(env, cfg.SpinLimit)}
}

// Enter locks o, waiting at most timeoutMs.
func (o *Object) Enter(timeoutMs uint32) (handle.Status, error) {
	return o.hdr.Enter(currentThread(), toDuration(timeoutMs))
}

// Exit releases one level of ownership of o.
func (o *Object) Exit() (handle.ReleaseStatus, error) {
	st := o.hdr.Exit(currentThread())
	if st == handle.ReleaseFail {
		return st, handle.ErrNotOwned
	}
	return st, nil
}

// Wait waits for a pulse on o, which the caller must own.
func (o *Object) Wait(timeoutMs uint32) (handle.Status, error) {
	return o.hdr.Wait(currentThread(), toDuration(timeoutMs))
}

// Pulse wakes one thread waiting on o.
func (o *Object) Pulse() error {
	return o.hdr.Pulse(currentThread())
}

// PulseAll wakes every thread waiting on o.
func (o *Object) PulseAll() error {
	return o.hdr.PulseAll(currentThread())
}

// Inflated reports whether o has been promoted to a full monitor.
func (o *Object) Inflated() bool {
	return o.hdr.Load().Inflated()
}

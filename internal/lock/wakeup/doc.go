// Package wakeup implements the per-thread Wait Context of the lock core.
//
// A Wakeup is the identity used as the unit of ownership and blocking. The
// runtime creates one for every goroutine that touches a wait handle and
// hands it to every Mutex and Monitor operation as the "self" argument.
// Each Wakeup stores:
//   - ID: small non-zero identity, reused after the goroutine is gone
//   - the held-locks set: every reentrant lock this goroutine owns
//   - the primitive wait endpoint: Arm, Wait and Signal
//   - the Cancellation state: one-shot interrupt and sticky abort bits
//
// Ownership rules:
//   - A Wakeup is exclusively owned by its goroutine. Only that goroutine
//     mutates its held-locks set.
//   - Wait handles keep *Wakeup values purely as identity back-references
//     (owner fields, queue entries); they never read or write the held set
//     of another goroutine.
//   - Signal and the Cancellation setters are the only methods other
//     goroutines call.
//
// Primitive wait protocol:
//
//	w.Arm(1)                  // under the handle's internal lock
//	queue.Add(w, id)          // publish ourselves as a waiter
//	unlock internal lock
//	res := w.Wait(timeout, wakeup.Interruptible)
//
// and on the signalling side, still under the same internal lock:
//
//	if next := queue.WakeOne(); next != nil {
//	    next.Signal()
//	}
//
// Because both sides hold the handle's internal lock while touching the queue,
// a waiter that has removed itself from the queue can never receive a late
// signal from it.
package wakeup

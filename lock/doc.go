// Package lock provides reentrant mutexes, named mutexes and monitors with
// exact ownership, timeouts and cooperative cancellation.
//
// Every goroutine that calls into the package gets its own thread identity
// (see [CurrentThread]). Ownership belongs to that identity: a mutex entered
// on one goroutine must be released on the same goroutine.
//
// # Quick Start
//
//	func main() {
//		lock.Init()
//		defer lock.Fini()
//
//		m, _ := lock.MutexCreate(false)
//		if st, _ := lock.MutexEnter(m, lock.Infinite); st == lock.StatusOK {
//			// critical section
//			lock.MutexRelease(m)
//		}
//		lock.MutexClose(m)
//	}
//
// # API Overview
//
//   - Lifecycle: [Init], [Fini], [Reset]
//   - Mutexes: [MutexCreate], [NamedMutexCreate], [MutexEnter],
//     [MutexTryEnter], [MutexRelease], [MutexClose]
//   - Monitors: [MonitorCreate], [MonitorEnter], [MonitorTryEnter],
//     [MonitorExit], [MonitorWait], [MonitorPulse], [MonitorPulseAll],
//     [MonitorClose]
//   - Lockable objects with a lock-free uncontended path: [NewObject]
//   - Cancellation: [CurrentThread], [Interrupt], [Abort]
//   - Version information: [GetInfo], [Version], [Compatible]
//
// # Outcomes and Errors
//
// Contention and cancellation are reported as statuses, never as errors:
// [StatusTimedOut] (also the "busy" answer of the TryEnter calls),
// [StatusInterrupted] and [StatusAborted]. An interrupt is consumed by the
// first blocking call that observes it; an abort stays set.
//
// Protocol misuse (releasing, waiting on or pulsing a handle the caller does
// not own, passing a monitor where a mutex is expected) returns an error that
// matches [ErrNotOwned] or [ErrWrongKind] with errors.Is. Each distinct misuse
// is logged once and counted in the [Fini] summary.
//
// # Configuration
//
// The SYNCORE_OPTIONS environment variable and the options passed to [Init]
// control logging, owner-site tracking and resource limits:
//
//	SYNCORE_OPTIONS="log_level=debug track_owners=1" ./myprogram
//
// With track_owners enabled, refused closes and protocol violations print
// the call stack at which the current owner acquired the handle.
package lock

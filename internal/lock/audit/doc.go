// Package audit records protocol violations against wait handles.
//
// A protocol violation is a call the synchronization core refuses because the
// caller broke the ownership rules: releasing, waiting on or pulsing a handle
// the calling thread does not own, or using a handle of the wrong kind. Such
// calls never change lock state. They are surfaced to the runtime as a
// *Violation error (which the runtime turns into a managed exception such as
// "synchronization object not owned") and are recorded here:
//   - each distinct violation site is logged once at warn level
//   - a human readable report is written to the auditor's output
//   - a running count feeds the end-of-run summary printed by Fini
//
// Example report:
//
//	==================
//	WARNING: SYNCHRONIZATION PROTOCOL VIOLATION
//	release of mutex 0x0000000000000007 by thread 4: synchronization object not owned
//	  main.worker()
//	      /src/app/main.go:41
//
//	Current owner: thread 2, acquired at:
//	  main.main()
//	      /src/app/main.go:30
//	==================
package audit

// Package main implements the lockstress CLI tool.
//
// lockstress drives the synchronization core with many goroutines and checks
// its guarantees while doing so: mutual exclusion, reentrancy, no lost
// pulses, named mutex sharing and thin lock inflation.
//
// Usage:
//
//	lockstress run -scenario all            # Run every scenario
//	lockstress run -scenario monitor -workers 16 -rounds 5000
//	lockstress version -require v0.3.0      # Check runtime compatibility
package main

import (
	"fmt"
	"os"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		os.Exit(runCommand(os.Args[2:]))
	case "version", "--version", "-v":
		os.Exit(versionCommand(os.Args[2:]))
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`lockstress - stress tool for the syncore synchronization core

USAGE:
    lockstress <command> [arguments]

COMMANDS:
    run        Run stress scenarios
    version    Show version information
    help       Show this help message

RUN FLAGS:
    -scenario NAME    mutex, monitor, named, thin or all (default all)
    -workers N        concurrent goroutines (default 8)
    -rounds N         iterations per worker (default 1000)
    -timeout D        overall time limit (default 1m)
    -track-owners     record acquisition sites
    -json             JSON log output

VERSION FLAGS:
    -require VERSION  exit 1 unless the runtime is compatible

EXAMPLES:
    # Everything, with owner tracking
    lockstress run -track-owners

    # Producer/consumer monitor stress
    lockstress run -scenario monitor -workers 16 -rounds 10000

ENVIRONMENT:
    SYNCORE_OPTIONS   runtime options, e.g. "log_level=debug max_queue=64"

`)
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kolkov/syncore/lock"
)

// versionCommand implements 'lockstress version'.
func versionCommand(args []string) int {
	return printVersion(os.Stdout, os.Stderr, args)
}

func printVersion(stdout, stderr io.Writer, args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	fs.SetOutput(stderr)
	require := fs.String("require", "", "minimum runtime version")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	info := lock.GetInfo()
	fmt.Fprintf(stdout, "lockstress version %s (syncore runtime %s, %s wake order)\n", version, info.Version, info.WakeOrder)
	if *require != "" && !lock.Compatible(*require) {
		fmt.Fprintf(stderr, "Error: runtime %s does not satisfy %s\n", info.Version, *require)
		return 1
	}
	return 0
}

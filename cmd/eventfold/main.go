// eventfold is the command-line interface for the eventfold engine.
//
// Usage:
//
//	eventfold <command> [flags]
//
// Commands:
//
//	init        Write a default configuration file
//	initdb      Create the event store schema and tables
//	recover     Republish events missed by a crash
//	diagnose    Check configuration and connectivity
//	version     Show version information
package main

import (
	"os"

	"github.com/eventfold/eventfold/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

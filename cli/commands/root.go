// Package commands provides the CLI command implementations for eventfold.
package commands

import (
	"fmt"

	"github.com/eventfold/eventfold/cli/styles"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// configPath is the --config flag value shared by all subcommands.
var configPath string

// NewRootCommand creates the root command for the eventfold CLI.
func NewRootCommand() *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "eventfold",
		Short: "Event-sourced command engine for Go",
		Long: `Eventfold runs the write side of event-sourced applications: it loads
aggregates by replaying their history, handles commands against them and
publishes the resulting events at least once.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("eventfold init") + `        Write a default configuration file
  ` + styles.Code.Render("eventfold initdb") + `      Create the event store schema
  ` + styles.Code.Render("eventfold recover") + `     Republish events missed by a crash
  ` + styles.Code.Render("eventfold diagnose") + `    Check your setup`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				styles.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewInitDBCommand())
	rootCmd.AddCommand(NewRecoverCommand())
	rootCmd.AddCommand(NewDiagnoseCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(styles.FormatError(err.Error()))
		return err
	}

	return nil
}

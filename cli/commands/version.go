package commands

import (
	"fmt"

	"github.com/eventfold/eventfold/cli/styles"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(styles.Title.Render("eventfold"))
			fmt.Println(styles.FormatKeyValue("version", Version))
			fmt.Println(styles.FormatKeyValue("commit", Commit))
			fmt.Println(styles.FormatKeyValue("built", BuildDate))
		},
	}
}

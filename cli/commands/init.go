package commands

import (
	"fmt"

	"github.com/eventfold/eventfold/cli/styles"
	"github.com/eventfold/eventfold/config"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command, which writes a default
// configuration file into the current directory.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.Exists(".") && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", config.ConfigFileName)
			}

			cfg := config.DefaultConfig()
			if err := cfg.Save("."); err != nil {
				return fmt.Errorf("failed to write configuration: %w", err)
			}

			fmt.Println(styles.FormatSuccess("wrote " + config.ConfigFileName))
			fmt.Println(styles.Muted.Render("  edit store.url before running initdb"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")

	return cmd
}

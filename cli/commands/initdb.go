package commands

import (
	"fmt"

	"github.com/eventfold/eventfold/cli/styles"
	"github.com/spf13/cobra"
)

// NewInitDBCommand creates the initdb command, which creates the event
// store schema and tables.
func NewInitDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Create the event store schema and tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Initialize(cmd.Context()); err != nil {
				return fmt.Errorf("failed to initialize the event store: %w", err)
			}

			fmt.Println(styles.FormatSuccess("event store initialized"))
			fmt.Println(styles.FormatKeyValue("driver", cfg.Store.Driver))
			if cfg.Store.Schema != "" {
				fmt.Println(styles.FormatKeyValue("schema", cfg.Store.Schema))
			}
			return nil
		},
	}

	return cmd
}

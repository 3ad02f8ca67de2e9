package commands

import (
	"fmt"

	"github.com/eventfold/eventfold/adapters"
	"github.com/eventfold/eventfold/cli/styles"
	"github.com/spf13/cobra"
)

// NewDiagnoseCommand creates the diagnose command, which validates the
// configuration and checks the event store connection.
func NewDiagnoseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check configuration and event store connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(styles.Title.Render("Diagnostics"))

			cfg, err := loadConfig(configPath)
			if err != nil {
				fmt.Println(styles.FormatError("configuration: " + err.Error()))
				return err
			}
			fmt.Println(styles.FormatSuccess("configuration loaded"))

			problems := cfg.Validate()
			for _, problem := range problems {
				fmt.Println(styles.FormatWarning(problem))
			}
			if len(problems) == 0 {
				fmt.Println(styles.FormatSuccess("configuration valid"))
			}

			store, err := openStore(cfg)
			if err != nil {
				fmt.Println(styles.FormatError("event store: " + err.Error()))
				return err
			}
			defer func() { _ = store.Close() }()

			if checker, ok := store.(adapters.HealthChecker); ok {
				if err := checker.Ping(cmd.Context()); err != nil {
					fmt.Println(styles.FormatError("event store unreachable: " + err.Error()))
					return err
				}
				fmt.Println(styles.FormatSuccess("event store reachable"))
			}

			if len(problems) > 0 {
				return fmt.Errorf("%d configuration problem(s)", len(problems))
			}
			return nil
		},
	}

	return cmd
}

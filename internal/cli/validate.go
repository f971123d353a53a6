package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the workflow config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "config is valid")
			return nil
		}

		for _, e := range errs {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", e.Field, e.Message)
		}
		cmd.SilenceUsage = true
		return fmt.Errorf("%d validation errors", len(errs))
	},
}

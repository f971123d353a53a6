package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Event database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the event database (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("yes")
		if !confirm {
			return fmt.Errorf("refusing to reset without --yes")
		}

		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := d.Reset(); err != nil {
			return fmt.Errorf("reset db: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "event database reset")
		return nil
	},
}

func init() {
	dbResetCmd.Flags().Bool("yes", false, "Confirm the destructive reset")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show recorded runs, or the detail of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, database, cleanup, err := openRunDeps()
		if err != nil {
			return err
		}
		defer cleanup()

		format, _ := cmd.Flags().GetString("format")

		if len(args) == 1 {
			rs, err := st.Get(args[0])
			if err != nil {
				return err
			}
			if format == "json" {
				data, _ := json.MarshalIndent(rs, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printRun(cmd, rs)

			events, err := database.GetRunEvents(rs.ID)
			if err != nil {
				return err
			}
			if len(events) > 0 {
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, "\nEvents:")
				for _, e := range events {
					line := fmt.Sprintf("  %s  %s", e.Timestamp, e.Event)
					if e.Detail != "" {
						line += "  " + e.Detail
					}
					fmt.Fprintln(w, line)
				}
			}
			return nil
		}

		statusFilter, _ := cmd.Flags().GetString("status")
		runs, err := st.List(statusFilter)
		if err != nil {
			return err
		}

		if format == "json" {
			data, _ := json.MarshalIndent(runs, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-28s %-14s %-10s %-12s %s\n", "RUN", "EVENT", "STATUS", "PUBLISH", "REF")
		fmt.Fprintln(w, strings.Repeat("-", 78))
		for _, rs := range runs {
			pub := rs.PublishOutcome
			if pub == "" {
				pub = "-"
			}
			fmt.Fprintf(w, "%-28s %-14s %-10s %-12s %s\n",
				rs.ID, rs.Event.Kind, rs.Status, pub, rs.Event.Ref)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
	statusCmd.Flags().String("status", "", "Filter runs by status")
}

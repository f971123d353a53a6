package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/internal/matrix"
)

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Show the expanded run matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		instances := matrix.Expand(cfg.Workflow.Matrix)

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(instances, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-16s %-8s %-8s %s\n", "INSTANCE", "OS", "PYTHON", "ENV FILE")
		for _, in := range instances {
			fmt.Fprintf(w, "%-16s %-8s %-8s %s\n", in.Name(), in.OS, in.Python, in.EnvironmentFile)
		}
		fmt.Fprintf(w, "\n%d instances\n", len(instances))
		return nil
	},
}

func init() {
	matrixCmd.Flags().String("format", "text", "Output format: text or json")
}

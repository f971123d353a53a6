package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/db"
	"github.com/conveyorci/conveyor/internal/store"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "conveyor",
	Short: "conveyor — a matrix build, test, and publish pipeline",
	Long: `conveyor runs a build-test matrix across operating systems and Python
versions, then builds and pushes a container image when the whole matrix is green.

All state is stored in ~/.conveyor/ (SQLite for events, JSON for run state).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the workflow config (default: ./conveyor.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(matrixCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads the workflow config from --config or the default locations.
func loadConfig(cmd *cobra.Command) (*config.WorkflowConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

// openDB opens and migrates the DB, returning it with a cleanup func.
func openDB() (*db.DB, func(), error) {
	dbPath, err := db.DefaultDBPath()
	if err != nil {
		return nil, nil, err
	}
	d, err := db.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

// openRunDeps opens the run store and DB together.
func openRunDeps() (*store.Store, *db.DB, func(), error) {
	d, cleanup, err := openDB()
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.DefaultStore()
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("open run store: %w", err)
	}
	return st, d, cleanup, nil
}

package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local status API",
	Long: `Start a read-only JSON API on localhost exposing run state, instance
results, the event log, and per-axis pass rates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		st, database, cleanup, err := openRunDeps()
		if err != nil {
			return err
		}
		defer cleanup()

		log := logrus.New()
		log.SetOutput(cmd.ErrOrStderr())
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

		return web.NewServer(st, database, port, log).Start()
	},
}

func init() {
	serveCmd.Flags().Int("port", 8990, "Port to listen on")
}

package cli

import (
	"github.com/daryltucker/fleet-sim/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var addrOverride string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the simulator over HTTP",
	Long: `Loads the dataset once and serves the JSON API:

  GET  /healthz
  GET  /api/v1/dataset
  POST /api/v1/simulate
  POST /api/v1/fleet-size

The server stops gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Server.Addr
		if addrOverride != "" {
			addr = addrOverride
		}

		ds, err := loadDataset()
		if err != nil {
			return err
		}

		if cfg.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := server.New(ds, server.Options{
			Addr:          addr,
			MaxOperations: cfg.Search.MaxOperations,
			Percentiles:   cfg.Simulation.Percentiles,
			Percentile:    cfg.Search.Percentile,
		})

		return srv.Start(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&addrOverride, "addr", "", "Listen address (overrides config)")
}

/*
PURPOSE:
  Defines the root Cobra command for the fleet-sim CLI.
  Handles global flags, configuration loading and logger setup.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Every subcommand needs the same loaded config, so it is loaded once in
    PersistentPreRunE.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/fleet-sim/main.go
  - Calls: Child commands (simulate, search, summary, serve)
  - Modifies: Package-level cfg (loaded config, overridden by flags).

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root is usually empty or helps.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/fleet-sim/main.go
  - internal/config/config.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/daryltucker/fleet-sim/internal/config"
	"github.com/daryltucker/fleet-sim/internal/output"
	"github.com/spf13/cobra"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	logLevel  string
	logFormat string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "fleet-sim",
		Short: "Monte Carlo simulator for bus fleet electrification",
		Long: `Estimates the emissions avoided by electrifying bus fleets and the fleet size
needed to meet pollution-reduction targets. Use 'simulate --help' or 'search --help'.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

// Execute executes the root command. SIGINT and SIGTERM cancel the
// command context, which stops simulations and the HTTP server.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./fleet_sim.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if logFormat != "" {
		loaded.LogFormat = logFormat
	}

	logger, err := output.NewLogger(os.Stderr, loaded.LogLevel, loaded.LogFormat)
	if err != nil {
		return err
	}
	output.SetLogger(logger)

	cfg = loaded
	return nil
}

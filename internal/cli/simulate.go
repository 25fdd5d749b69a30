/*
PURPOSE:
  Defines the 'simulate' subcommand.
  Runs the Resample Estimator for one fleet size.

REQUIREMENTS:
  User-specified:
  - Estimate daily and multi-day avoided emissions for N new electric buses.
  - Specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config.
  - Raw samples feed the dashboard's density plots, so they can be exported.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Simulate()
  - Uses: internal/config, internal/output

ERROR HANDLING:
  - Returns error if config load, dataset load or simulation fails.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Load Dataset -> Simulate -> Output.

USAGE:
  fleet-sim simulate --size 50 --days 30

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/daryltucker/fleet-sim/internal/engine"
	"github.com/daryltucker/fleet-sim/internal/output"
	"github.com/spf13/cobra"
)

var (
	sizeOverride        int
	pollutantsOverride  []string
	trialsOverride      int
	daysOverride        int
	percentilesOverride []float64
	seedOverride        uint64
	samplesCSV          string
	noHistory           bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Estimate avoided emissions for a fleet size",
	Long: `Draws the requested number of buses without replacement from the dataset,
many times over, and reports the distribution of total daily avoided emissions:
mean, percentile bounds, the theoretical maximum (the largest emitters) and the
cumulative projection over the horizon.

The statistics table is printed to stdout as CSV. Every run is also appended to
simulations.jsonl in the output directory.`,
	Example: `  # 50 new electric buses, 30-day horizon
  fleet-sim simulate --size 50 --days 30

  # Reproducible run on CO2 and NOx with 5000 trials
  fleet-sim simulate --size 50 --pollutants co2,nox --trials 5000 --seed 42

  # Export raw samples for a density plot
  fleet-sim simulate --size 50 --samples-csv samples.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := cfg.SimulationRequest()
		if cmd.Flags().Changed("size") {
			req.SampleSize = sizeOverride
		}
		if len(pollutantsOverride) > 0 {
			req.Pollutants = pollutantsOverride
		}
		if cmd.Flags().Changed("trials") {
			req.Trials = trialsOverride
		}
		if cmd.Flags().Changed("days") {
			req.Days = daysOverride
		}
		if len(percentilesOverride) > 0 {
			req.Percentiles = percentilesOverride
		}
		if cmd.Flags().Changed("seed") {
			req.Seed = &seedOverride
		}

		ds, err := loadDataset()
		if err != nil {
			return err
		}

		output.Logger.Info("Running simulation...",
			"size", req.SampleSize,
			"pollutants", req.Pollutants,
			"trials", req.Trials,
			"days", req.Days,
		)
		res, err := engine.Simulate(cmd.Context(), ds, req)
		if err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}
		for _, st := range res.Stats {
			output.Logger.Info("Simulation Success",
				"pollutant", st.Pollutant,
				"mean", st.Mean,
				"max", st.Max,
				"cumulative_mean", st.CumulativeMean,
				"seed", res.Seed,
			)
		}

		if samplesCSV != "" {
			if err := output.WriteSamples(samplesCSV, res); err != nil {
				return err
			}
			output.Logger.Info("Samples written", "path", samplesCSV)
		}
		if !noHistory {
			if err := appendHistory("simulations.jsonl", res); err != nil {
				output.Logger.Error("Failed to write run history", "error", err)
			}
		}

		return output.WriteStats(cmd.OutOrStdout(), res)
	},
}

// appendHistory appends v to name inside the configured output directory.
func appendHistory(name string, v any) error {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}
	jw, err := output.NewJSONWriter(filepath.Join(cfg.OutputDir, name))
	if err != nil {
		return err
	}
	defer jw.Close()
	return jw.Write(v)
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().IntVarP(&sizeOverride, "size", "n", 0, "Number of buses drawn per trial")
	simulateCmd.Flags().StringSliceVar(&pollutantsOverride, "pollutants", nil, "Comma-separated list of pollutant keys")
	simulateCmd.Flags().IntVar(&trialsOverride, "trials", 0, "Number of Monte Carlo trials")
	simulateCmd.Flags().IntVar(&daysOverride, "days", 0, "Projection horizon in days")
	simulateCmd.Flags().Float64SliceVar(&percentilesOverride, "percentiles", nil, "Comma-separated percentiles to report (e.g. 2.5,97.5)")
	simulateCmd.Flags().Uint64Var(&seedOverride, "seed", 0, "Random seed for a reproducible run")
	simulateCmd.Flags().StringVar(&samplesCSV, "samples-csv", "", "Write the raw trial totals to this CSV file")
	simulateCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not append the run to simulations.jsonl")
}

package cli

import (
	"fmt"

	"github.com/daryltucker/fleet-sim/internal/engine"
	"github.com/daryltucker/fleet-sim/internal/output"
	"github.com/spf13/cobra"
)

var scenarioSizes []int

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Compare several fleet sizes in one run",
	Long: `Runs the simulation once per fleet size with a shared seed and writes
scenarios.csv and scenarios.jsonl to the output directory. A size that cannot
be simulated is logged and recorded, and the sweep continues.`,
	Example: `  fleet-sim sweep --sizes 10,50,100,200 --days 365`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := cfg.SimulationRequest()
		sizes := cfg.Simulation.Scenarios
		if len(scenarioSizes) > 0 {
			sizes = scenarioSizes
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

		outcomes, err := engine.RunScenarios(cmd.Context(), ds, req, sizes, cfg.OutputDir)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		failed := 0
		for _, o := range outcomes {
			if o.Error != "" {
				failed++
			}
		}
		output.Logger.Info("Sweep complete", "scenarios", len(outcomes), "failed", failed, "output_dir", cfg.OutputDir)
		fmt.Fprintf(cmd.OutOrStdout(), "%d scenarios written to %s (%d failed)\n", len(outcomes), cfg.OutputDir, failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().IntSliceVar(&scenarioSizes, "sizes", nil, "Comma-separated fleet sizes to compare")
	sweepCmd.Flags().StringSliceVar(&pollutantsOverride, "pollutants", nil, "Comma-separated list of pollutant keys")
	sweepCmd.Flags().IntVar(&trialsOverride, "trials", 0, "Number of Monte Carlo trials per scenario")
	sweepCmd.Flags().IntVar(&daysOverride, "days", 0, "Projection horizon in days")
	sweepCmd.Flags().Float64SliceVar(&percentilesOverride, "percentiles", nil, "Comma-separated percentiles to report")
	sweepCmd.Flags().Uint64Var(&seedOverride, "seed", 0, "Random seed shared by every scenario")
}

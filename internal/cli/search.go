/*
PURPOSE:
  Defines the 'search' subcommand.
  Finds the smallest fleet that meets daily reduction targets.

REQUIREMENTS:
  User-specified:
  - Targets per pollutant, a reliability percentile and search bounds.

  Implementation-discovered:
  - Unreachable targets are a normal outcome; report them, exit 0.
  - Large populations need --max and --max-ops to keep runtime predictable.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.FindMinimumFleetSize()
  - Uses: internal/config, internal/output

ERROR HANDLING:
  - Returns error for invalid targets or bounds.

IMPLEMENTATION RULES:
  - Setup flags in init().

USAGE:
  fleet-sim search --target co2=120 --percentile 75

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/search.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/daryltucker/fleet-sim/internal/engine"
	"github.com/daryltucker/fleet-sim/internal/model"
	"github.com/daryltucker/fleet-sim/internal/output"
	"github.com/spf13/cobra"
)

var (
	targetsOverride    map[string]string
	percentileOverride float64
	minSizeOverride    int
	maxSizeOverride    int
	stepOverride       int
	maxOpsOverride     int64
	searchCSV          string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the minimum fleet size meeting reduction targets",
	Long: `Grows the fleet from --min to --max in steps of --step, re-running the
simulation at each size, and stops at the first size whose chosen percentile of
simulated daily avoided emissions meets every non-zero target.

The percentile is the reliability criterion: with --percentile 75 the target is
met in at least 25% of simulated scenarios. Lower it for a more conservative
answer. The table of attempts is printed to stdout as CSV.`,
	Example: `  # Smallest fleet avoiding 120 t CO2 per day
  fleet-sim search --target co2=120

  # Two pollutants, coarse steps, bounded work
  fleet-sim search --target co2=120,nox=0.4 --step 10 --max 500 --max-ops 500000000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := cfg.SearchRequest()
		if len(targetsOverride) > 0 {
			targets, err := parseTargets(targetsOverride)
			if err != nil {
				return err
			}
			req.Targets = targets
			if len(pollutantsOverride) == 0 {
				req.Pollutants = nil
			}
		}
		if len(pollutantsOverride) > 0 {
			req.Pollutants = pollutantsOverride
		}
		if cmd.Flags().Changed("trials") {
			req.Trials = trialsOverride
		}
		if cmd.Flags().Changed("percentile") {
			req.Percentile = percentileOverride
		}
		if cmd.Flags().Changed("min") {
			req.MinSize = minSizeOverride
		}
		if cmd.Flags().Changed("max") {
			req.MaxSize = maxSizeOverride
		}
		if cmd.Flags().Changed("step") {
			req.Step = stepOverride
		}
		if cmd.Flags().Changed("max-ops") {
			req.MaxOperations = maxOpsOverride
		}
		if cmd.Flags().Changed("seed") {
			req.Seed = &seedOverride
		}
		if len(req.Targets) == 0 {
			return fmt.Errorf("no targets given: use --target pollutant=value or search.targets in config")
		}

		ds, err := loadDataset()
		if err != nil {
			return err
		}

		output.Logger.Info("Searching fleet size...",
			"targets", req.Targets,
			"percentile", req.Percentile,
			"min", req.MinSize,
			"max", req.MaxSize,
			"step", req.Step,
		)
		res, err := engine.FindMinimumFleetSize(cmd.Context(), ds, req)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if res.Met {
			output.Logger.Info("Target met", "size", res.Size, "attempts", len(res.Rows), "seed", res.Seed)
		} else {
			last, _ := res.Last()
			output.Logger.Warn("Target unreachable within bounds", "max_tested", last.Size, "attempts", len(res.Rows))
		}

		keys := searchKeys(req, res)
		if searchCSV != "" {
			w, err := output.NewCSVWriter(searchCSV, output.SearchHeader(keys))
			if err != nil {
				return fmt.Errorf("failed to init CSV writer at %s: %w", searchCSV, err)
			}
			for _, row := range res.Rows {
				if err := w.Write(output.SearchRecord(row, keys)); err != nil {
					output.Logger.Error("Failed to write row to CSV", "error", err)
				}
			}
			if err := w.Close(); err != nil {
				return err
			}
		}
		if !noHistory {
			if err := appendHistory("searches.jsonl", res); err != nil {
				output.Logger.Error("Failed to write run history", "error", err)
			}
		}

		return output.WriteSearch(cmd.OutOrStdout(), res, keys)
	},
}

// parseTargets converts pollutant=value flag pairs.
func parseTargets(raw map[string]string) (model.FleetTarget, error) {
	targets := make(model.FleetTarget, len(raw))
	for key, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid target %s=%s: %w", key, v, err)
		}
		targets[key] = f
	}
	return targets, nil
}

// searchKeys returns the evaluated pollutants in a stable order.
func searchKeys(req model.SearchRequest, res *model.FleetSizeSearchResult) []string {
	if len(req.Pollutants) > 0 {
		var keys []string
		for _, k := range req.Pollutants {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
		return keys
	}
	var keys []string
	if row, ok := res.Last(); ok {
		for k := range row.Values {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringToStringVar(&targetsOverride, "target", nil, "Daily target per pollutant, e.g. co2=120,nox=0.4")
	searchCmd.Flags().StringSliceVar(&pollutantsOverride, "pollutants", nil, "Comma-separated list of pollutant keys to evaluate")
	searchCmd.Flags().IntVar(&trialsOverride, "trials", 0, "Number of Monte Carlo trials per candidate size")
	searchCmd.Flags().Float64Var(&percentileOverride, "percentile", 0, "Percentile of the simulated distribution compared to targets")
	searchCmd.Flags().IntVar(&minSizeOverride, "min", 0, "Smallest fleet size tested")
	searchCmd.Flags().IntVar(&maxSizeOverride, "max", 0, "Largest fleet size tested (default: population size)")
	searchCmd.Flags().IntVar(&stepOverride, "step", 0, "Fleet size increment between candidates")
	searchCmd.Flags().Int64Var(&maxOpsOverride, "max-ops", 0, "Refuse searches whose worst-case cost exceeds this many sampling operations")
	searchCmd.Flags().Uint64Var(&seedOverride, "seed", 0, "Random seed for a reproducible search")
	searchCmd.Flags().StringVar(&searchCSV, "csv", "", "Also write the table of attempts to this CSV file")
	searchCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not append the search to searches.jsonl")
}

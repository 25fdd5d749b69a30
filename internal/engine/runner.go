/*
PURPOSE:
  High-level runner that orchestrates a scenario sweep.
  Loops through fleet sizes, runs Simulate for each and records results.

REQUIREMENTS:
  User-specified:
  - Compare several electrification scenarios in one run.
  - Log results to CSV/JSON.

  Implementation-discovered:
  - Needs to report progress to CLI.
  - One infeasible size (larger than the population) must not abort the
    remaining scenarios.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (sweep)
  - Uses: internal/engine.Simulate, internal/output

ERROR HANDLING:
  - Logs per-scenario errors but continues (resilience).
  - Context cancellation stops the sweep and is returned.

IMPLEMENTATION RULES:
  - Every scenario shares the base request; only SampleSize changes.
  - A fixed base seed is reused per scenario so rows are comparable.

USAGE:
  engine.RunScenarios(ctx, ds, base, sizes, outputDir)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/simulate.go
  - internal/output/csv.go

MAINTENANCE:
  - Update iteration logic if parallelism is introduced.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daryltucker/fleet-sim/internal/model"
	"github.com/daryltucker/fleet-sim/internal/output"
)

// Output files written by RunScenarios.
const (
	ScenarioCSV  = "scenarios.csv"
	ScenarioJSON = "scenarios.jsonl"
)

// ScenarioOutcome is the result of one fleet size in a sweep.
type ScenarioOutcome struct {
	Size   int                     `json:"size"`
	Result *model.SimulationResult `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// RunScenarios runs base once per size and writes every outcome to
// ScenarioCSV and ScenarioJSON inside outputDir. Samples are not persisted.
func RunScenarios(ctx context.Context, ds *model.Dataset, base model.SimulationRequest, sizes []int, outputDir string) ([]ScenarioOutcome, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: no scenario sizes given", ErrInvalidParameter)
	}
	if len(base.Percentiles) == 0 {
		return nil, fmt.Errorf("%w: at least one percentile is required", ErrInvalidParameter)
	}
	if base.Seed == nil {
		seed := resolveSeed(nil)
		base.Seed = &seed
	}

	// Ensure output directory exists
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	csvPath := filepath.Join(outputDir, ScenarioCSV)
	header := append([]string{"scenario"}, output.StatsHeader(&model.SimulationResult{
		Stats: []model.PollutantStats{{Percentiles: percentileSlots(base.Percentiles)}},
	})...)
	csvWriter, err := output.NewCSVWriter(csvPath, header)
	if err != nil {
		return nil, fmt.Errorf("failed to init CSV writer at %s: %w", csvPath, err)
	}
	defer csvWriter.Close()

	jsonPath := filepath.Join(outputDir, ScenarioJSON)
	jsonWriter, err := output.NewJSONWriter(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init JSON writer at %s: %w", jsonPath, err)
	}
	defer jsonWriter.Close()

	outcomes := make([]ScenarioOutcome, 0, len(sizes))
	for i, size := range sizes {
		req := base
		req.SampleSize = size
		output.Logger.Info("Running scenario", "scenario", i+1, "size", size)

		res, err := Simulate(ctx, ds, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return outcomes, err
			}
			output.Logger.Error("Scenario failed", "size", size, "error", err)
			outcome := ScenarioOutcome{Size: size, Error: err.Error()}
			outcomes = append(outcomes, outcome)
			if err := jsonWriter.Write(outcome); err != nil {
				output.Logger.Error("Failed to write partial result to JSON", "error", err)
			}
			continue
		}
		for j := range res.Stats {
			res.Stats[j].Samples = nil
		}

		for _, st := range res.Stats {
			output.Logger.Info("Scenario Success", "size", size, "pollutant", st.Pollutant, "mean", st.Mean, "max", st.Max)
			record := append([]string{fmt.Sprint(i + 1)}, output.StatsRecord(res, st)...)
			if err := csvWriter.Write(record); err != nil {
				output.Logger.Error("Failed to write result to CSV", "error", err)
			}
		}

		outcome := ScenarioOutcome{Size: size, Result: res}
		outcomes = append(outcomes, outcome)
		if err := jsonWriter.Write(outcome); err != nil {
			output.Logger.Error("Failed to write result to JSON", "error", err)
		}
	}

	return outcomes, nil
}

func percentileSlots(ps []float64) []model.PercentileValue {
	slots := make([]model.PercentileValue, len(ps))
	for i, p := range ps {
		slots[i].Percentile = p
	}
	return slots
}

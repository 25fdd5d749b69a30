/*
PURPOSE:
  Defines the core data structures shared across fleet-sim.
  Records and datasets describe the emission population; requests and results
  describe one Monte Carlo run or one fleet-size search.

REQUIREMENTS:
  User-specified:
  - Record per-bus / per-trip pollutant quantities in tonnes.
  - Carry every sample array produced by a simulation run.

  Implementation-discovered:
  - Need JSON tags for the HTTP API and JSON Lines output.
  - Results must carry the effective seed so runs can be replayed.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/dataset, internal/summary,
    internal/output, internal/server, internal/cli
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs). Dataset validation lives in dataset.go.

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Results are owned by the caller; nothing here is cached or shared.

USAGE:
  req := model.SimulationRequest{SampleSize: 10, Pollutants: []string{"co2"}}

SELF-HEALING INSTRUCTIONS:
  - If new statistics are needed, add the field and update the CSV writer.

RELATED FILES:
  - internal/model/dataset.go
  - internal/output/csv.go

MAINTENANCE:
  - Update when adding new statistics to capture.
*/

package model

import (
	"time"
)

// EmissionRecord is one vehicle, trip or observation of the population.
type EmissionRecord struct {
	ID       string             `json:"id"`
	Electric bool               `json:"electric"`
	Model    string             `json:"model,omitempty"`
	Start    time.Time          `json:"start,omitzero"`
	Values   map[string]float64 `json:"values"` // tonnes, keyed by pollutant
}

// SimulationRequest parameterizes one Resample Estimator run.
type SimulationRequest struct {
	SampleSize int      `json:"sample_size"`
	Pollutants []string `json:"pollutants"`
	// Trials defaults to DefaultTrials when zero.
	Trials int `json:"trials,omitempty"`
	// Days defaults to 1 when zero.
	Days        int       `json:"days,omitempty"`
	Percentiles []float64 `json:"percentiles"`
	Seed        *uint64   `json:"seed,omitempty"`
	// MaxOperations bounds trials x sample size. Zero means unbounded.
	MaxOperations int64 `json:"max_operations,omitempty"`
}

// DefaultTrials is the number of Monte Carlo trials used when none is given.
const DefaultTrials = 2000

// Hard ceilings on request sizes; samples and projections are allocated up
// front.
const (
	MaxTrials = 10_000_000
	MaxDays   = 36_500
)

// PercentileValue is one percentile of an empirical distribution.
type PercentileValue struct {
	Percentile float64 `json:"percentile"`
	Value      float64 `json:"value"`
}

// ProjectionPoint is the cumulative outlook after Day days.
type ProjectionPoint struct {
	Day         int               `json:"day"`
	Mean        float64           `json:"mean"`
	Percentiles []PercentileValue `json:"percentiles"`
}

// PollutantStats summarizes the empirical distribution of one pollutant.
type PollutantStats struct {
	Pollutant string    `json:"pollutant"`
	Samples   []float64 `json:"samples,omitempty"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	SampleMin float64   `json:"sample_min"`
	SampleMax float64   `json:"sample_max"`
	// Max is the exact sum of the SampleSize largest values in the population.
	Max            float64           `json:"max"`
	Percentiles    []PercentileValue `json:"percentiles"`
	CumulativeMean float64           `json:"cumulative_mean"`
	Projection     []ProjectionPoint `json:"projection"`
}

// Percentile returns the value recorded for p, if it was requested.
func (s *PollutantStats) Percentile(p float64) (float64, bool) {
	for _, pv := range s.Percentiles {
		if pv.Percentile == p {
			return pv.Value, true
		}
	}
	return 0, false
}

// SimulationResult is the outcome of one Resample Estimator run.
type SimulationResult struct {
	SampleSize int              `json:"sample_size"`
	Population int              `json:"population"`
	Trials     int              `json:"trials"`
	Days       int              `json:"days"`
	Seed       uint64           `json:"seed"`
	Stats      []PollutantStats `json:"stats"` // request order
}

// Stat returns the statistics for one pollutant.
func (r *SimulationResult) Stat(pollutant string) (*PollutantStats, bool) {
	for i := range r.Stats {
		if r.Stats[i].Pollutant == pollutant {
			return &r.Stats[i], true
		}
	}
	return nil, false
}

// FleetTarget maps a pollutant to its minimum required daily avoided
// emissions. Zero means the pollutant is unconstrained.
type FleetTarget map[string]float64

// SearchRequest parameterizes a Fleet-Size Search.
type SearchRequest struct {
	Targets    FleetTarget `json:"targets"`
	Pollutants []string    `json:"pollutants"`
	Trials     int         `json:"trials,omitempty"`
	Percentile float64     `json:"percentile"`
	MinSize    int         `json:"min_size,omitempty"`
	MaxSize    int         `json:"max_size,omitempty"`
	Step       int         `json:"step,omitempty"`
	Seed       *uint64     `json:"seed,omitempty"`
	// MaxOperations bounds the sum of trials x size over all candidates.
	// Zero means unbounded.
	MaxOperations int64 `json:"max_operations,omitempty"`
}

// SearchRow is one tested fleet size.
type SearchRow struct {
	Size   int                `json:"size"`
	Values map[string]float64 `json:"values"`
}

// FleetSizeSearchResult is the table of attempts of a Fleet-Size Search.
type FleetSizeSearchResult struct {
	Rows       []SearchRow `json:"rows"`
	Met        bool        `json:"met"`
	Size       int         `json:"size"` // zero when Met is false
	Percentile float64     `json:"percentile"`
	Trials     int         `json:"trials"`
	Seed       uint64      `json:"seed"`
}

// Last returns the final row tested.
func (r *FleetSizeSearchResult) Last() (SearchRow, bool) {
	if len(r.Rows) == 0 {
		return SearchRow{}, false
	}
	return r.Rows[len(r.Rows)-1], true
}

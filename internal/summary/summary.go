/*
PURPOSE:
  Descriptive fleet statistics shown next to the simulation: fleet
  composition, mean avoided emissions per electric bus, the linear
  "N more buses" projection and cumulative emissions through the day.

REQUIREMENTS:
  User-specified:
  - Count buses once per ID, split electric vs combustion.
  - Break electric buses down by vehicle model.
  - Accumulate emissions by time of day for both fleet segments.

  Implementation-discovered:
  - Records are trips; several rows can share a bus ID.
  - Records without a start time cannot be placed on the time axis.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (summary), internal/server (/api/v1/dataset)
  - Uses: internal/model

ERROR HANDLING:
  - Unknown pollutant keys return an error; empty segments return zero values.

IMPLEMENTATION RULES:
  - Pure functions over the read-only dataset.

USAGE:
  c := summary.Composition(ds)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/simulate.go

MAINTENANCE:
  - Update when the dashboard needs new descriptive tables.
*/

package summary

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/daryltucker/fleet-sim/internal/model"
)

// ErrUnknownPollutant is returned when the dataset does not carry the key.
var ErrUnknownPollutant = errors.New("unknown pollutant")

// DefaultTimeLayout buckets records by hour and minute.
const DefaultTimeLayout = "15:04"

// ModelCount is the number of electric buses of one vehicle model.
type ModelCount struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

// FleetComposition counts unique buses.
type FleetComposition struct {
	Records    int          `json:"records"`
	Buses      int          `json:"buses"`
	Electric   int          `json:"electric"`
	Combustion int          `json:"combustion"`
	ByModel    []ModelCount `json:"electric_by_model"`
}

// Composition counts unique bus IDs in ds. A bus is electric if its first
// record says so.
func Composition(ds *model.Dataset) FleetComposition {
	c := FleetComposition{Records: ds.Len()}
	seen := make(map[string]bool)
	models := make(map[string]int)

	for _, r := range ds.Records() {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		c.Buses++
		if !r.Electric {
			c.Combustion++
			continue
		}
		c.Electric++
		name := r.Model
		if name == "" {
			name = "unknown"
		}
		models[name]++
	}

	for name, n := range models {
		c.ByModel = append(c.ByModel, ModelCount{Model: name, Count: n})
	}
	slices.SortFunc(c.ByModel, func(a, b ModelCount) int {
		if n := cmp.Compare(b.Count, a.Count); n != 0 {
			return n
		}
		return cmp.Compare(a.Model, b.Model)
	})
	return c
}

// MeanImpact returns the mean pollutant value over electric records, i.e.
// the average emissions each electric bus avoids in the analysed period.
// It returns 0 when the dataset has no electric record.
func MeanImpact(ds *model.Dataset, pollutant string) (float64, error) {
	col, ok := ds.Column(pollutant)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPollutant, pollutant)
	}
	sum, n := 0.0, 0
	for i, r := range ds.Records() {
		if r.Electric {
			sum += col[i]
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

// LinearProjection returns the emissions avoided by newBuses more electric
// buses at the given mean impact.
func LinearProjection(meanImpact float64, newBuses int) (float64, error) {
	if newBuses < 1 {
		return 0, fmt.Errorf("number of new buses must be >= 1, got %d", newBuses)
	}
	return float64(newBuses) * meanImpact, nil
}

// TimePoint is the running total up to and including Bucket.
type TimePoint struct {
	Bucket     string  `json:"bucket"`
	Total      float64 `json:"total"`
	Cumulative float64 `json:"cumulative"`
}

// CumulativeByTime groups the records of one fleet segment by start time
// formatted with layout (DefaultTimeLayout when empty), sums pollutant per
// bucket and accumulates the sums in bucket order. Records without a start
// time are skipped.
func CumulativeByTime(ds *model.Dataset, pollutant string, electric bool, layout string) ([]TimePoint, error) {
	col, ok := ds.Column(pollutant)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPollutant, pollutant)
	}
	if layout == "" {
		layout = DefaultTimeLayout
	}

	totals := make(map[string]float64)
	for i, r := range ds.Records() {
		if r.Electric != electric || r.Start.IsZero() {
			continue
		}
		totals[r.Start.Format(layout)] += col[i]
	}

	buckets := make([]string, 0, len(totals))
	for b := range totals {
		buckets = append(buckets, b)
	}
	slices.Sort(buckets)

	points := make([]TimePoint, len(buckets))
	running := 0.0
	for i, b := range buckets {
		running += totals[b]
		points[i] = TimePoint{Bucket: b, Total: totals[b], Cumulative: running}
	}
	return points, nil
}

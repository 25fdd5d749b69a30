/*
PURPOSE:
  Fleet-Size Search. Finds the smallest fleet whose simulated percentile of
  daily avoided emissions meets every per-pollutant target.

REQUIREMENTS:
  User-specified:
  - Grow the fleet from MinSize to MaxSize by Step, re-running the estimator.
  - Stop at the first size meeting all non-zero targets.
  - Never fail when the targets are unreachable; return every attempt.

  Implementation-discovered:
  - Every seeded candidate reuses the request seed, so a row does not depend
    on the candidates that preceded it.
  - Worst-case cost is known up front and can be capped with MaxOperations.
  - MaxSize is always tested when nothing smaller meets the targets, even if
    (MaxSize-MinSize) is not a multiple of Step.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli, internal/server
  - Uses: internal/engine/simulate.go sampling primitives

ERROR HANDLING:
  - Parameter errors are returned before any sampling.
  - An unmet target is Met == false, not an error.

IMPLEMENTATION RULES:
  - Population columns are prepared once per search, not per candidate.

USAGE:
  res, err := engine.FindMinimumFleetSize(ctx, ds, model.SearchRequest{...})

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/simulate.go

MAINTENANCE:
  - Update if the candidate sequence changes (e.g. bisection).
*/

package engine

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/daryltucker/fleet-sim/internal/model"
)

// FindMinimumFleetSize runs the Fleet-Size Search over ds.
// When req.Pollutants is empty the target keys are evaluated. Candidates are
// MinSize, MinSize+Step, ... followed by MaxSize if the steps skip it.
func FindMinimumFleetSize(ctx context.Context, ds *model.Dataset, req model.SearchRequest) (*model.FleetSizeSearchResult, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	m := ds.Len()

	minSize, maxSize, step := req.MinSize, req.MaxSize, req.Step
	if minSize == 0 {
		minSize = 1
	}
	if maxSize == 0 {
		maxSize = m
	}
	if step == 0 {
		step = 1
	}
	if err := checkSampleSize(minSize, m); err != nil {
		return nil, fmt.Errorf("min size: %w", err)
	}
	if err := checkSampleSize(maxSize, m); err != nil {
		return nil, fmt.Errorf("max size: %w", err)
	}
	if minSize > maxSize {
		return nil, fmt.Errorf("%w: min size %d is greater than max size %d", ErrInvalidParameter, minSize, maxSize)
	}
	if step < 0 {
		return nil, fmt.Errorf("%w: step must be >= 1, got %d", ErrInvalidParameter, req.Step)
	}

	trials, err := resolveTrials(req.Trials)
	if err != nil {
		return nil, err
	}
	if err := checkPercentile(req.Percentile); err != nil {
		return nil, err
	}

	requested := req.Pollutants
	if len(requested) == 0 {
		for key := range req.Targets {
			requested = append(requested, key)
		}
		slices.Sort(requested)
	}
	keys, err := resolvePollutants(ds, requested)
	if err != nil {
		return nil, err
	}
	for key, target := range req.Targets {
		if !slices.Contains(keys, key) {
			return nil, fmt.Errorf("%w: target for %q is not among the evaluated pollutants %v", ErrUnknownPollutant, key, keys)
		}
		if math.IsNaN(target) || target < 0 {
			return nil, fmt.Errorf("%w: target for %q must be >= 0, got %v", ErrInvalidParameter, key, target)
		}
	}

	if err := checkBudget(req.MaxOperations, SearchCost(minSize, maxSize, step, trials)); err != nil {
		return nil, fmt.Errorf("worst case: %w", err)
	}

	seed := resolveSeed(req.Seed)
	pop := newPopulation(ds, keys)
	res := &model.FleetSizeSearchResult{
		Percentile: req.Percentile,
		Trials:     trials,
		Seed:       seed,
	}

	for _, size := range candidateSizes(minSize, maxSize, step) {
		samples, err := pop.run(ctx, newRand(seed), size, trials)
		if err != nil {
			return nil, err
		}

		row := model.SearchRow{Size: size, Values: make(map[string]float64, len(keys))}
		for k, key := range keys {
			row.Values[key] = Percentile(samples[k], req.Percentile)
		}
		res.Rows = append(res.Rows, row)

		if targetsMet(req.Targets, row.Values) {
			res.Met = true
			res.Size = size
			break
		}
	}

	return res, nil
}

// targetsMet reports whether every non-zero target is reached.
func targetsMet(targets model.FleetTarget, values map[string]float64) bool {
	for key, target := range targets {
		if target == 0 {
			continue
		}
		if values[key] < target {
			return false
		}
	}
	return true
}

// candidateSizes returns minSize, minSize+step, ... and always ends with
// maxSize, so the last gap may be shorter than step.
func candidateSizes(minSize, maxSize, step int) []int {
	if step < 1 || minSize > maxSize {
		return nil
	}
	var sizes []int
	for size := minSize; size <= maxSize; size += step {
		sizes = append(sizes, size)
	}
	if sizes[len(sizes)-1] != maxSize {
		sizes = append(sizes, maxSize)
	}
	return sizes
}

// SearchCost returns the worst-case number of sampling operations
// (trials x size summed over all candidates) of a search.
func SearchCost(minSize, maxSize, step, trials int) float64 {
	if step < 1 || minSize > maxSize {
		return 0
	}
	k := float64((maxSize-minSize)/step + 1)
	sizes := k*float64(minSize) + float64(step)*k*(k-1)/2
	if (maxSize-minSize)%step != 0 {
		sizes += float64(maxSize)
	}
	return sizes * float64(trials)
}

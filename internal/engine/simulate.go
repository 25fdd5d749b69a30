/*
PURPOSE:
  Resample Estimator. Builds the Monte Carlo distribution of total daily
  emissions avoided by a fleet of a given size, drawn without replacement
  from the population of emission records.

REQUIREMENTS:
  User-specified:
  - Sample Y records per trial, no record twice within a trial.
  - Report mean, percentiles, the exact top-Y maximum and a D-day projection.
  - Same seed and dataset ordering must reproduce identical results.

  Implementation-discovered:
  - Totals are summed in dataset order so that equal subsets produce
    bit-identical sums (Y = M gives a point mass at the exact total).
  - The effective seed is reported even when the caller omits it.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli, internal/server, engine.FindMinimumFleetSize
  - Uses: internal/model

ERROR HANDLING:
  - All parameters are validated before any sampling (fail fast).
  - Returns the context error if ctx is cancelled between trials.

IMPLEMENTATION RULES:
  - One *rand.Rand per call. Never touch a process-wide generator while sampling.
  - Never mutate the dataset.

USAGE:
  res, err := engine.Simulate(ctx, ds, model.SimulationRequest{...})

SELF-HEALING INSTRUCTIONS:
  - If results stop being reproducible, check that nothing iterates a map
    while drawing random numbers.

RELATED FILES:
  - internal/engine/search.go
  - internal/engine/stats.go

MAINTENANCE:
  - Update when adding statistics to model.PollutantStats.
*/

package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/daryltucker/fleet-sim/internal/model"
)

// ctxCheckEvery is how many trials run between cancellation checks.
const ctxCheckEvery = 64

// population is the read-only view of the dataset used while sampling.
type population struct {
	size    int
	keys    []string
	columns [][]float64
	rank    [][]int // per column, indices by value descending
}

func newPopulation(ds *model.Dataset, keys []string) *population {
	p := &population{
		size: ds.Len(),
		keys: keys,
	}
	for _, key := range keys {
		col, _ := ds.Column(key)
		p.columns = append(p.columns, col)
		p.rank = append(p.rank, rankDesc(col))
	}
	return p
}

// sampler draws index subsets without replacement with a partial
// Fisher-Yates shuffle. The permutation is carried over between draws; any
// starting permutation yields a uniform subset.
type sampler struct {
	rng  *rand.Rand
	perm []int
	pick []int
}

func newSampler(rng *rand.Rand, populationSize int) *sampler {
	s := &sampler{
		rng:  rng,
		perm: make([]int, populationSize),
	}
	for i := range s.perm {
		s.perm[i] = i
	}
	return s
}

// draw returns k distinct indices in ascending order. The slice is reused by
// the next call.
func (s *sampler) draw(k int) []int {
	n := len(s.perm)
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(n-i)
		s.perm[i], s.perm[j] = s.perm[j], s.perm[i]
	}
	s.pick = append(s.pick[:0], s.perm[:k]...)
	slices.Sort(s.pick)
	return s.pick
}

// run executes trials draws of size indices and returns one sample array per
// pollutant, in p.keys order.
func (p *population) run(ctx context.Context, rng *rand.Rand, size, trials int) ([][]float64, error) {
	samples := make([][]float64, len(p.keys))
	for i := range samples {
		samples[i] = make([]float64, trials)
	}

	s := newSampler(rng, p.size)
	for t := 0; t < trials; t++ {
		if t%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		idx := s.draw(size)
		for k, col := range p.columns {
			samples[k][t] = sumAt(col, idx)
		}
	}
	return samples, nil
}

// newRand returns a generator owned by a single call.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// resolveSeed returns the requested seed, or a fresh one when none is given.
func resolveSeed(seed *uint64) uint64 {
	if seed != nil {
		return *seed
	}
	return rand.Uint64()
}

// Simulate runs the Resample Estimator over ds.
func Simulate(ctx context.Context, ds *model.Dataset, req model.SimulationRequest) (*model.SimulationResult, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	if err := checkSampleSize(req.SampleSize, ds.Len()); err != nil {
		return nil, err
	}

	trials, err := resolveTrials(req.Trials)
	if err != nil {
		return nil, err
	}
	days := req.Days
	if days == 0 {
		days = 1
	}
	if days < 0 || days > model.MaxDays {
		return nil, fmt.Errorf("%w: days must be within [1, %d], got %d", ErrInvalidParameter, model.MaxDays, req.Days)
	}
	if err := checkBudget(req.MaxOperations, float64(trials)*float64(req.SampleSize)); err != nil {
		return nil, err
	}
	if len(req.Percentiles) == 0 {
		return nil, fmt.Errorf("%w: at least one percentile is required", ErrInvalidParameter)
	}
	for _, pc := range req.Percentiles {
		if err := checkPercentile(pc); err != nil {
			return nil, err
		}
	}
	keys, err := resolvePollutants(ds, req.Pollutants)
	if err != nil {
		return nil, err
	}

	seed := resolveSeed(req.Seed)
	pop := newPopulation(ds, keys)
	samples, err := pop.run(ctx, newRand(seed), req.SampleSize, trials)
	if err != nil {
		return nil, err
	}

	res := &model.SimulationResult{
		SampleSize: req.SampleSize,
		Population: ds.Len(),
		Trials:     trials,
		Days:       days,
		Seed:       seed,
		Stats:      make([]model.PollutantStats, len(keys)),
	}
	for k, key := range keys {
		res.Stats[k] = summarize(key, samples[k], pop.maxTotal(k, req.SampleSize), req.Percentiles, days)
	}
	return res, nil
}

func summarize(key string, samples []float64, maxTotal float64, percentiles []float64, days int) model.PollutantStats {
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	// Rounding must not move the mean outside the sampled range or the
	// maximum below a sampled total.
	lo, hi := sorted[0], sorted[len(sorted)-1]
	st := model.PollutantStats{
		Pollutant:   key,
		Samples:     samples,
		Mean:        min(max(Mean(samples), lo), hi),
		StdDev:      StdDev(samples),
		SampleMin:   lo,
		SampleMax:   hi,
		Max:         max(maxTotal, hi),
		Percentiles: make([]model.PercentileValue, len(percentiles)),
	}
	for i, pc := range percentiles {
		st.Percentiles[i] = model.PercentileValue{Percentile: pc, Value: percentileSorted(sorted, pc)}
	}
	st.CumulativeMean = st.Mean * float64(days)

	st.Projection = make([]model.ProjectionPoint, days)
	for d := 1; d <= days; d++ {
		pt := model.ProjectionPoint{
			Day:         d,
			Mean:        st.Mean * float64(d),
			Percentiles: make([]model.PercentileValue, len(st.Percentiles)),
		}
		for i, pv := range st.Percentiles {
			pt.Percentiles[i] = model.PercentileValue{Percentile: pv.Percentile, Value: pv.Value * float64(d)}
		}
		st.Projection[d-1] = pt
	}
	return st
}

// maxTotal is the exact top-K sum of column k, added in dataset order like
// every sampled total.
func (p *population) maxTotal(k, size int) float64 {
	return sumAt(p.columns[k], topK(p.rank[k], size))
}

// checkBudget rejects work above a positive limit. Zero means unbounded.
func checkBudget(limit int64, cost float64) error {
	if limit < 0 {
		return fmt.Errorf("%w: max operations must be >= 0, got %d", ErrInvalidParameter, limit)
	}
	if limit > 0 && cost > float64(limit) {
		return fmt.Errorf("%w: %.0f sampling operations, budget %d", ErrBudgetExceeded, cost, limit)
	}
	return nil
}

func checkSampleSize(size, populationSize int) error {
	if size < 1 || size > populationSize {
		return fmt.Errorf("%w: requested %d, population %d", ErrInvalidSampleSize, size, populationSize)
	}
	return nil
}

func resolveTrials(trials int) (int, error) {
	if trials == 0 {
		return model.DefaultTrials, nil
	}
	if trials < 0 || trials > model.MaxTrials {
		return 0, fmt.Errorf("%w: trials must be within [1, %d], got %d", ErrInvalidParameter, model.MaxTrials, trials)
	}
	return trials, nil
}

func checkPercentile(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return fmt.Errorf("%w: percentile must be within [0, 100], got %v", ErrInvalidParameter, p)
	}
	return nil
}

// resolvePollutants validates keys against the schema and drops duplicates,
// keeping the first occurrence.
func resolvePollutants(ds *model.Dataset, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyPollutantSet
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if !ds.HasPollutant(key) {
			return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownPollutant, key, ds.Pollutants())
		}
		if !slices.Contains(out, key) {
			out = append(out, key)
		}
	}
	return out, nil
}

package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/daryltucker/fleet-sim/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(v uint64) *uint64 { return &v }

// fiveBuses is the population {10, 20, 30, 40, 50} t of CO2.
func fiveBuses(t *testing.T) *model.Dataset {
	t.Helper()
	var recs []model.EmissionRecord
	for i, v := range []float64{10, 20, 30, 40, 50} {
		recs = append(recs, model.EmissionRecord{
			ID:     fmt.Sprintf("bus-%d", i+1),
			Values: map[string]float64{"co2": v},
		})
	}
	ds, err := model.NewDataset(recs)
	require.NoError(t, err)
	return ds
}

// linearFleet has n buses with co2 = i and nox = i/10 for i in 1..n.
func linearFleet(t *testing.T, n int) *model.Dataset {
	t.Helper()
	recs := make([]model.EmissionRecord, n)
	for i := range recs {
		v := float64(i + 1)
		recs[i] = model.EmissionRecord{
			ID:     fmt.Sprintf("bus-%d", i+1),
			Values: map[string]float64{"co2": v, "nox": v / 10},
		}
	}
	ds, err := model.NewDataset(recs)
	require.NoError(t, err)
	return ds
}

func TestSimulateTwoOfFive(t *testing.T) {
	ds := fiveBuses(t)
	res, err := Simulate(context.Background(), ds, model.SimulationRequest{
		SampleSize:  2,
		Pollutants:  []string{"co2"},
		Trials:      1,
		Percentiles: []float64{2.5, 97.5},
		Seed:        seed(42),
	})
	require.NoError(t, err)

	st, ok := res.Stat("co2")
	require.True(t, ok)
	require.Len(t, st.Samples, 1)

	pairSums := map[float64]bool{}
	values := []float64{10, 20, 30, 40, 50}
	for i := range values {
		for j := i + 1; j < len(values); j++ {
			pairSums[values[i]+values[j]] = true
		}
	}
	assert.True(t, pairSums[st.Samples[0]], "sum %v is not the sum of two distinct records", st.Samples[0])
	assert.Equal(t, 90.0, st.Max)
	assert.Equal(t, uint64(42), res.Seed)
	assert.Equal(t, 5, res.Population)
}

func TestSimulateFullPopulationIsPointMass(t *testing.T) {
	ds := fiveBuses(t)
	res, err := Simulate(context.Background(), ds, model.SimulationRequest{
		SampleSize:  5,
		Pollutants:  []string{"co2"},
		Trials:      500,
		Percentiles: []float64{2.5, 97.5},
		Seed:        seed(1),
	})
	require.NoError(t, err)

	st, _ := res.Stat("co2")
	assert.Equal(t, 150.0, st.Mean)
	assert.Equal(t, 150.0, st.Max)
	assert.Equal(t, 0.0, st.StdDev)
	assert.Equal(t, st.SampleMin, st.SampleMax)
	for _, v := range st.Samples {
		assert.Equal(t, 150.0, v)
	}
	for _, pv := range st.Percentiles {
		assert.Equal(t, 150.0, pv.Value)
	}
}

func TestSimulateFullPopulationIsPointMassForFractionalValues(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for round := 0; round < 50; round++ {
		n := 2 + rng.IntN(30)
		recs := make([]model.EmissionRecord, n)
		for i := range recs {
			recs[i] = model.EmissionRecord{
				ID:     fmt.Sprintf("bus-%d", i+1),
				Values: map[string]float64{"co2": rng.Float64() * 10},
			}
		}
		ds, err := model.NewDataset(recs)
		require.NoError(t, err)

		res, err := Simulate(context.Background(), ds, model.SimulationRequest{
			SampleSize:  n,
			Pollutants:  []string{"co2"},
			Trials:      2000,
			Percentiles: []float64{2.5, 97.5},
			Seed:        seed(uint64(round)),
		})
		require.NoError(t, err)

		st, _ := res.Stat("co2")
		total := st.Samples[0]
		assert.Equal(t, total, st.Mean, "n=%d", n)
		assert.Equal(t, total, st.Max, "n=%d", n)
		assert.Equal(t, total, st.SampleMax, "n=%d", n)
		assert.Equal(t, total, st.SampleMin, "n=%d", n)
		assert.Zero(t, st.StdDev, "n=%d", n)
		for _, pv := range st.Percentiles {
			assert.Equal(t, total, pv.Value, "n=%d", n)
		}
	}
}

func TestSimulateMaxNeverBelowMean(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 9))
	recs := make([]model.EmissionRecord, 40)
	for i := range recs {
		recs[i] = model.EmissionRecord{
			ID:     fmt.Sprintf("bus-%d", i+1),
			Values: map[string]float64{"co2": rng.Float64() * 10},
		}
	}
	ds, err := model.NewDataset(recs)
	require.NoError(t, err)

	for _, size := range []int{1, 20, 39, 40} {
		res, err := Simulate(context.Background(), ds, model.SimulationRequest{
			SampleSize:  size,
			Pollutants:  []string{"co2"},
			Trials:      500,
			Percentiles: []float64{50, 100},
			Seed:        seed(1),
		})
		require.NoError(t, err)

		st, _ := res.Stat("co2")
		assert.GreaterOrEqual(t, st.Max, st.Mean, "size %d", size)
		assert.GreaterOrEqual(t, st.Max, st.SampleMax, "size %d", size)
		assert.LessOrEqual(t, st.Mean, st.SampleMax, "size %d", size)
		assert.GreaterOrEqual(t, st.Mean, st.SampleMin, "size %d", size)
	}
}

func TestSimulateRejectsOversizedFleetBeforeSampling(t *testing.T) {
	ds := fiveBuses(t)

	// A cancelled context would abort the first trial; getting the sample size
	// error instead shows validation runs first.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Simulate(ctx, ds, model.SimulationRequest{
		SampleSize:  6,
		Pollutants:  []string{"co2"},
		Percentiles: []float64{75},
	})
	assert.ErrorIs(t, err, ErrInvalidSampleSize)

	_, err = Simulate(ctx, ds, model.SimulationRequest{
		SampleSize:  0,
		Pollutants:  []string{"co2"},
		Percentiles: []float64{75},
	})
	assert.ErrorIs(t, err, ErrInvalidSampleSize)
}

func TestSimulateValidation(t *testing.T) {
	ds := fiveBuses(t)
	empty, err := model.NewDataset(nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		ds   *model.Dataset
		req  model.SimulationRequest
		want error
	}{
		{"empty dataset", empty, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"co2"}, Percentiles: []float64{50}}, ErrEmptyDataset},
		{"nil dataset", nil, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"co2"}, Percentiles: []float64{50}}, ErrEmptyDataset},
		{"no pollutants", ds, model.SimulationRequest{SampleSize: 1, Percentiles: []float64{50}}, ErrEmptyPollutantSet},
		{"unknown pollutant", ds, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"nox"}, Percentiles: []float64{50}}, ErrUnknownPollutant},
		{"no percentile", ds, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"co2"}}, ErrInvalidParameter},
		{"percentile out of range", ds, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"co2"}, Percentiles: []float64{101}}, ErrInvalidParameter},
		{"negative trials", ds, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"co2"}, Trials: -1, Percentiles: []float64{50}}, ErrInvalidParameter},
		{"negative days", ds, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"co2"}, Days: -2, Percentiles: []float64{50}}, ErrInvalidParameter},
		{"too many days", ds, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"co2"}, Days: model.MaxDays + 1, Percentiles: []float64{50}}, ErrInvalidParameter},
		{"too many trials", ds, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"co2"}, Trials: math.MaxInt, Percentiles: []float64{50}}, ErrInvalidParameter},
		{"over budget", ds, model.SimulationRequest{SampleSize: 5, Pollutants: []string{"co2"}, Trials: 100, MaxOperations: 499, Percentiles: []float64{50}}, ErrBudgetExceeded},
		{"negative budget", ds, model.SimulationRequest{SampleSize: 1, Pollutants: []string{"co2"}, MaxOperations: -1, Percentiles: []float64{50}}, ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Simulate(context.Background(), tt.ds, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSimulateDefaults(t *testing.T) {
	ds := fiveBuses(t)
	res, err := Simulate(context.Background(), ds, model.SimulationRequest{
		SampleSize:  3,
		Pollutants:  []string{"co2", "co2"},
		Percentiles: []float64{75},
	})
	require.NoError(t, err)

	assert.Equal(t, model.DefaultTrials, res.Trials)
	assert.Equal(t, 1, res.Days)
	require.Len(t, res.Stats, 1, "duplicate pollutant keys are evaluated once")
	assert.Len(t, res.Stats[0].Samples, model.DefaultTrials)
}

func TestSimulateIsDeterministicForASeed(t *testing.T) {
	ds := linearFleet(t, 40)
	req := model.SimulationRequest{
		SampleSize:  12,
		Pollutants:  []string{"co2", "nox"},
		Trials:      300,
		Percentiles: []float64{2.5, 97.5},
		Seed:        seed(2024),
	}

	a, err := Simulate(context.Background(), ds, req)
	require.NoError(t, err)
	b, err := Simulate(context.Background(), ds, req)
	require.NoError(t, err)

	assert.Equal(t, a.Stats, b.Stats)

	req.Seed = seed(2025)
	c, err := Simulate(context.Background(), ds, req)
	require.NoError(t, err)
	assert.NotEqual(t, a.Stats[0].Samples, c.Stats[0].Samples)
}

func TestSimulateUnseededReportsSeed(t *testing.T) {
	ds := linearFleet(t, 30)
	req := model.SimulationRequest{
		SampleSize:  10,
		Pollutants:  []string{"co2"},
		Trials:      50,
		Percentiles: []float64{50},
	}

	a, err := Simulate(context.Background(), ds, req)
	require.NoError(t, err)

	req.Seed = seed(a.Seed)
	replay, err := Simulate(context.Background(), ds, req)
	require.NoError(t, err)
	assert.Equal(t, a.Stats[0].Samples, replay.Stats[0].Samples)
}

func TestSimulateMaxBoundsMeanAndGrowsWithSize(t *testing.T) {
	ds := linearFleet(t, 25)
	prevMax := 0.0
	for size := 1; size <= ds.Len(); size++ {
		res, err := Simulate(context.Background(), ds, model.SimulationRequest{
			SampleSize:  size,
			Pollutants:  []string{"co2"},
			Trials:      100,
			Percentiles: []float64{50},
			Seed:        seed(uint64(size)),
		})
		require.NoError(t, err)

		st, _ := res.Stat("co2")
		col, _ := ds.Column("co2")
		assert.Equal(t, TopKSum(col, size), st.Max)
		assert.GreaterOrEqual(t, st.Max, st.Mean)
		assert.GreaterOrEqual(t, st.Max, st.SampleMax)
		assert.GreaterOrEqual(t, st.Max, prevMax)
		prevMax = st.Max
	}
}

func TestSimulateProjection(t *testing.T) {
	ds := fiveBuses(t)
	res, err := Simulate(context.Background(), ds, model.SimulationRequest{
		SampleSize:  5,
		Pollutants:  []string{"co2"},
		Trials:      10,
		Days:        30,
		Percentiles: []float64{2.5, 97.5},
		Seed:        seed(3),
	})
	require.NoError(t, err)

	st, _ := res.Stat("co2")
	assert.Equal(t, 4500.0, st.CumulativeMean)
	require.Len(t, st.Projection, 30)
	assert.Equal(t, 1, st.Projection[0].Day)
	assert.Equal(t, 150.0, st.Projection[0].Mean)
	assert.Equal(t, 4500.0, st.Projection[29].Mean)
	assert.Equal(t, 4500.0, st.Projection[29].Percentiles[1].Value)
}

func TestSimulateHonoursCancellation(t *testing.T) {
	ds := linearFleet(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Simulate(ctx, ds, model.SimulationRequest{
		SampleSize:  5,
		Pollutants:  []string{"co2"},
		Percentiles: []float64{50},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSamplerDrawsDistinctIndices(t *testing.T) {
	const m = 17
	s := newSampler(newRand(99), m)
	seen := make([]int, m)

	for trial := 0; trial < 2000; trial++ {
		k := trial%m + 1
		idx := s.draw(k)
		require.Len(t, idx, k)

		unique := map[int]bool{}
		for _, i := range idx {
			require.GreaterOrEqual(t, i, 0)
			require.Less(t, i, m)
			unique[i] = true
			seen[i]++
		}
		require.Len(t, unique, k, "trial %d drew a duplicate index", trial)
	}

	for i, n := range seen {
		assert.Positive(t, n, "index %d never drawn", i)
	}
}

func TestSearchFindsFirstSatisfyingSize(t *testing.T) {
	ds := linearFleet(t, 20)
	targets := model.FleetTarget{"co2": 50, "nox": 4}

	res, err := FindMinimumFleetSize(context.Background(), ds, model.SearchRequest{
		Targets:    targets,
		Pollutants: []string{"co2", "nox"},
		Trials:     200,
		Percentile: 75,
		Seed:       seed(11),
	})
	require.NoError(t, err)
	require.True(t, res.Met)
	require.NotEmpty(t, res.Rows)

	last, _ := res.Last()
	assert.Equal(t, res.Size, last.Size)
	assert.GreaterOrEqual(t, last.Values["co2"], 50.0)
	assert.GreaterOrEqual(t, last.Values["nox"], 4.0)

	for i, row := range res.Rows {
		assert.Equal(t, 1+i, row.Size)
		if i < len(res.Rows)-1 {
			assert.False(t, targetsMet(targets, row.Values), "size %d already met the targets", row.Size)
		}
	}
}

func TestSearchUnreachableTargetReturnsAllAttempts(t *testing.T) {
	ds := linearFleet(t, 20)

	res, err := FindMinimumFleetSize(context.Background(), ds, model.SearchRequest{
		Targets:    model.FleetTarget{"co2": 1000},
		Trials:     20,
		Percentile: 75,
		Step:       3,
		Seed:       seed(5),
	})
	require.NoError(t, err)
	assert.False(t, res.Met)
	assert.Zero(t, res.Size)

	var sizes []int
	for _, row := range res.Rows {
		sizes = append(sizes, row.Size)
	}
	assert.Equal(t, []int{1, 4, 7, 10, 13, 16, 19, 20}, sizes, "the population size closes the table")
}

func TestSearchZeroTargetsNeverBlock(t *testing.T) {
	ds := linearFleet(t, 20)

	res, err := FindMinimumFleetSize(context.Background(), ds, model.SearchRequest{
		Targets:    model.FleetTarget{"co2": 0, "nox": 0},
		Trials:     10,
		Percentile: 75,
		MinSize:    4,
		Seed:       seed(5),
	})
	require.NoError(t, err)
	assert.True(t, res.Met)
	assert.Equal(t, 4, res.Size)
	assert.Len(t, res.Rows, 1)
}

func TestSearchRowsIndependentOfStart(t *testing.T) {
	ds := linearFleet(t, 20)
	base := model.SearchRequest{
		Targets:    model.FleetTarget{"co2": 1000},
		Trials:     50,
		Percentile: 75,
		MaxSize:    8,
		Seed:       seed(8),
	}

	full, err := FindMinimumFleetSize(context.Background(), ds, base)
	require.NoError(t, err)

	base.MinSize = 5
	tail, err := FindMinimumFleetSize(context.Background(), ds, base)
	require.NoError(t, err)

	assert.Equal(t, full.Rows[4:], tail.Rows)
}

func TestSearchValidation(t *testing.T) {
	ds := linearFleet(t, 10)

	tests := []struct {
		name string
		req  model.SearchRequest
		want error
	}{
		{"max beyond population", model.SearchRequest{Targets: model.FleetTarget{"co2": 1}, Percentile: 75, MaxSize: 11}, ErrInvalidSampleSize},
		{"negative min", model.SearchRequest{Targets: model.FleetTarget{"co2": 1}, Percentile: 75, MinSize: -1}, ErrInvalidSampleSize},
		{"min above max", model.SearchRequest{Targets: model.FleetTarget{"co2": 1}, Percentile: 75, MinSize: 8, MaxSize: 4}, ErrInvalidParameter},
		{"negative step", model.SearchRequest{Targets: model.FleetTarget{"co2": 1}, Percentile: 75, Step: -1}, ErrInvalidParameter},
		{"bad percentile", model.SearchRequest{Targets: model.FleetTarget{"co2": 1}, Percentile: -5}, ErrInvalidParameter},
		{"no pollutants", model.SearchRequest{Percentile: 75}, ErrEmptyPollutantSet},
		{"unknown target", model.SearchRequest{Targets: model.FleetTarget{"pm10": 1}, Percentile: 75}, ErrUnknownPollutant},
		{"target outside pollutants", model.SearchRequest{Targets: model.FleetTarget{"nox": 1}, Pollutants: []string{"co2"}, Percentile: 75}, ErrUnknownPollutant},
		{"negative target", model.SearchRequest{Targets: model.FleetTarget{"co2": -1}, Percentile: 75}, ErrInvalidParameter},
		{"over budget", model.SearchRequest{Targets: model.FleetTarget{"co2": 1}, Percentile: 75, Trials: 100, MaxOperations: 1000}, ErrBudgetExceeded},
		{"negative budget", model.SearchRequest{Targets: model.FleetTarget{"co2": 1}, Percentile: 75, MaxOperations: -1}, ErrInvalidParameter},
		{"too many trials", model.SearchRequest{Targets: model.FleetTarget{"co2": 1}, Percentile: 75, Trials: model.MaxTrials + 1}, ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FindMinimumFleetSize(context.Background(), ds, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSearchCost(t *testing.T) {
	// sizes 1..10 sum to 55
	assert.Equal(t, 5500.0, SearchCost(1, 10, 1, 100))
	// sizes 2, 5, 8, 9
	assert.Equal(t, 24.0, SearchCost(2, 9, 3, 1))
	// sizes 2, 5, 8
	assert.Equal(t, 15.0, SearchCost(2, 8, 3, 1))
	assert.Zero(t, SearchCost(5, 1, 1, 10))
}

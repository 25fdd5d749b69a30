package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/daryltucker/fleet-sim/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recs := make([]model.EmissionRecord, 20)
	for i := range recs {
		v := float64(i + 1)
		recs[i] = model.EmissionRecord{
			ID:       fmt.Sprintf("%d", i+1),
			Electric: i%2 == 0,
			Model:    "BYD",
			Values:   map[string]float64{"co2": v, "nox": v / 10},
		}
	}
	ds, err := model.NewDataset(recs)
	require.NoError(t, err)

	return New(ds, Options{Percentiles: []float64{2.5, 97.5}, Percentile: 75, MaxOperations: 1_000_000})
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, testServer(t), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDatasetInfo(t *testing.T) {
	w := do(t, testServer(t), http.MethodGet, "/api/v1/dataset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var info DatasetInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 20, info.Population)
	assert.Equal(t, []string{"co2", "nox"}, info.Pollutants)
	assert.Equal(t, 10, info.Composition.Electric)
	// electric buses carry 1, 3, ..., 19
	assert.Equal(t, 10.0, info.MeanImpact["co2"])
}

func TestSimulateEndpoint(t *testing.T) {
	s := testServer(t)
	seed := uint64(3)

	w := do(t, s, http.MethodPost, "/api/v1/simulate", model.SimulationRequest{
		SampleSize: 20,
		Pollutants: []string{"co2"},
		Trials:     10,
		Seed:       &seed,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res model.SimulationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	st, ok := res.Stat("co2")
	require.True(t, ok)
	assert.Equal(t, 210.0, st.Mean)
	assert.Equal(t, 210.0, st.Max)
	assert.Empty(t, st.Samples)
	assert.Len(t, st.Percentiles, 2, "server default percentiles apply")

	w = do(t, s, http.MethodPost, "/api/v1/simulate", SimulateRequest{
		SimulationRequest: model.SimulationRequest{SampleSize: 2, Pollutants: []string{"co2"}, Trials: 10, Percentiles: []float64{50}},
		IncludeSamples:    true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Stats[0].Samples, 10)
}

func TestSimulateErrors(t *testing.T) {
	s := testServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/simulate", model.SimulationRequest{SampleSize: 21, Pollutants: []string{"co2"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "fleet size exceeds available population")

	w = do(t, s, http.MethodPost, "/api/v1/simulate", model.SimulationRequest{SampleSize: 2, Pollutants: []string{"so2"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFleetSizeEndpoint(t *testing.T) {
	s := testServer(t)
	seed := uint64(1)

	w := do(t, s, http.MethodPost, "/api/v1/fleet-size", FleetSizeRequest{SearchRequest: model.SearchRequest{
		Targets: model.FleetTarget{"co2": 40},
		Trials:  100,
		Seed:    &seed,
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res model.FleetSizeSearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Met)
	assert.Equal(t, 75.0, res.Percentile)
	last, _ := res.Last()
	assert.GreaterOrEqual(t, last.Values["co2"], 40.0)

	w = do(t, s, http.MethodPost, "/api/v1/fleet-size", FleetSizeRequest{SearchRequest: model.SearchRequest{
		Targets: model.FleetTarget{"co2": 1e9},
		Trials:  100_000,
	}})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestFleetSizeKeepsExplicitZeroPercentile(t *testing.T) {
	s := testServer(t)
	w := do(t, s, http.MethodPost, "/api/v1/fleet-size", map[string]any{
		"targets":    map[string]float64{"co2": 1},
		"trials":     10,
		"percentile": 0,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res model.FleetSizeSearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 0.0, res.Percentile)
}

func TestServerBudgetCannotBeBypassed(t *testing.T) {
	s := testServer(t)

	// sizes 1..20 with 100 trials cost 21000 operations; 1000 is the cap
	s.opts.MaxOperations = 1000
	for _, requested := range []int64{0, -1, 5000} {
		w := do(t, s, http.MethodPost, "/api/v1/fleet-size", map[string]any{
			"targets":        map[string]float64{"co2": 1e9},
			"trials":         100,
			"max_operations": requested,
		})
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, "max_operations=%d", requested)
	}

	// trials x size on a single simulation
	for _, requested := range []int64{0, -1} {
		w := do(t, s, http.MethodPost, "/api/v1/simulate", map[string]any{
			"sample_size":    20,
			"pollutants":     []string{"co2"},
			"trials":         1_000_000,
			"max_operations": requested,
		})
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, "max_operations=%d", requested)
	}

	w := do(t, s, http.MethodPost, "/api/v1/simulate", map[string]any{
		"sample_size": 20,
		"pollutants":  []string{"co2"},
		"trials":      10,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSimulateRejectsOversizedHorizon(t *testing.T) {
	w := do(t, testServer(t), http.MethodPost, "/api/v1/simulate", map[string]any{
		"sample_size": 2,
		"pollutants":  []string{"co2"},
		"trials":      10,
		"days":        model.MaxDays + 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConcurrentSeededRequestsAgree(t *testing.T) {
	s := testServer(t)
	seed := uint64(77)
	body := SimulateRequest{
		SimulationRequest: model.SimulationRequest{SampleSize: 7, Pollutants: []string{"co2", "nox"}, Trials: 200, Percentiles: []float64{50}, Seed: &seed},
		IncludeSamples:    true,
	}

	const n = 8
	bodies := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			_ = json.NewEncoder(&buf).Encode(body)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate", &buf)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			bodies[i] = w.Body.String()
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, bodies[0], bodies[i])
	}
}

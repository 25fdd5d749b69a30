/*
PURPOSE:
  HTTP API exposing the simulator to the dashboard front end:
  dataset summary, Resample Estimator and Fleet-Size Search.

REQUIREMENTS:
  User-specified:
  - Serve several dashboard sessions at once.
  - Never share a random source between requests.

  Implementation-discovered:
  - Sample arrays are large; only return them on request.
  - Long searches must stop when the client goes away.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (serve)
  - Uses: internal/engine, internal/summary, internal/output

ERROR HANDLING:
  - Domain errors map to 4xx with a JSON {"error": ...} body.
  - Anything else is a 500.

IMPLEMENTATION RULES:
  - The dataset is loaded once and only read afterwards.
  - Handlers run the engine with the request context.

USAGE:
  srv := server.New(ds, server.Options{Addr: ":8080"})
  srv.Start(ctx)

SELF-HEALING INSTRUCTIONS:
  - If responses time out, lower MaxOperations rather than raising timeouts.

RELATED FILES:
  - internal/engine/simulate.go
  - internal/engine/search.go

MAINTENANCE:
  - Update when adding endpoints.
*/

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/daryltucker/fleet-sim/internal/engine"
	"github.com/daryltucker/fleet-sim/internal/model"
	"github.com/daryltucker/fleet-sim/internal/output"
	"github.com/daryltucker/fleet-sim/internal/summary"
	"github.com/gin-gonic/gin"
)

// Options configures the HTTP server.
type Options struct {
	Addr string
	// MaxOperations caps the sampling work of every request served, trials x
	// size for a simulation and the worst case of a search. Zero means the
	// request's own bound applies.
	MaxOperations int64
	// Defaults fill fields the request leaves empty.
	Percentiles []float64
	Percentile  float64
}

// Server serves the simulator over HTTP.
type Server struct {
	ds     *model.Dataset
	opts   Options
	router *gin.Engine
}

// New builds a Server over ds.
func New(ds *model.Dataset, opts Options) *Server {
	s := &Server{ds: ds, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/healthz", s.health)

	v1 := r.Group("/api/v1")
	v1.GET("/dataset", s.datasetInfo)
	v1.POST("/simulate", s.simulate)
	v1.POST("/fleet-size", s.fleetSize)

	s.router = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on opts.Addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		output.Logger.Info("Listening", "addr", s.opts.Addr, "population", s.ds.Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		output.Logger.Info("Shutting down", "addr", s.opts.Addr)
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		output.Logger.Info("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DatasetInfo is the body of GET /api/v1/dataset.
type DatasetInfo struct {
	Population  int                      `json:"population"`
	Pollutants  []string                 `json:"pollutants"`
	Composition summary.FleetComposition `json:"composition"`
	MeanImpact  map[string]float64       `json:"mean_impact"`
}

func (s *Server) datasetInfo(c *gin.Context) {
	info := DatasetInfo{
		Population:  s.ds.Len(),
		Pollutants:  s.ds.Pollutants(),
		Composition: summary.Composition(s.ds),
		MeanImpact:  make(map[string]float64),
	}
	for _, key := range info.Pollutants {
		mean, err := summary.MeanImpact(s.ds, key)
		if err != nil {
			s.fail(c, err)
			return
		}
		info.MeanImpact[key] = mean
	}
	c.JSON(http.StatusOK, info)
}

// SimulateRequest is the body of POST /api/v1/simulate.
type SimulateRequest struct {
	model.SimulationRequest
	IncludeSamples bool `json:"include_samples"`
}

func (s *Server) simulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Percentiles) == 0 {
		req.Percentiles = s.opts.Percentiles
	}
	req.MaxOperations = s.capOperations(req.MaxOperations)

	res, err := engine.Simulate(c.Request.Context(), s.ds, req.SimulationRequest)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !req.IncludeSamples {
		for i := range res.Stats {
			res.Stats[i].Samples = nil
		}
	}
	c.JSON(http.StatusOK, res)
}

// FleetSizeRequest is the body of POST /api/v1/fleet-size. An absent
// percentile takes the server default; an explicit 0 is kept.
type FleetSizeRequest struct {
	model.SearchRequest
	Percentile *float64 `json:"percentile,omitempty"`
}

func (s *Server) fleetSize(c *gin.Context) {
	var body FleetSizeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := body.SearchRequest
	req.Percentile = s.opts.Percentile
	if body.Percentile != nil {
		req.Percentile = *body.Percentile
	}
	req.MaxOperations = s.capOperations(req.MaxOperations)

	res, err := engine.FindMinimumFleetSize(c.Request.Context(), s.ds, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// capOperations applies the server-wide budget. Requests may only lower it;
// zero and negative values take the cap.
func (s *Server) capOperations(requested int64) int64 {
	if s.opts.MaxOperations > 0 && (requested <= 0 || requested > s.opts.MaxOperations) {
		return s.opts.MaxOperations
	}
	return requested
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		output.Logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidSampleSize):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrEmptyPollutantSet),
		errors.Is(err, engine.ErrUnknownPollutant),
		errors.Is(err, engine.ErrInvalidParameter),
		errors.Is(err, summary.ErrUnknownPollutant):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrBudgetExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, engine.ErrEmptyDataset):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

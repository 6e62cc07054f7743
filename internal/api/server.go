// Package api wires the HTTP surface: pass prediction endpoints, TLE
// metadata, health probes and Prometheus metrics, behind a shared
// middleware chain.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/skypass/skypass/internal/auth"
	"github.com/skypass/skypass/internal/cache"
	"github.com/skypass/skypass/internal/health"
	"github.com/skypass/skypass/internal/metrics"
	"github.com/skypass/skypass/internal/passes"
	"github.com/skypass/skypass/internal/stream"
	"github.com/skypass/skypass/internal/tle"
)

// ErrNoTLEData is returned when a prediction is requested before any TLE
// dataset has been loaded.
var ErrNoTLEData = errors.New("no TLE data loaded")

// Deps collects everything the HTTP server needs.
type Deps struct {
	Logger   *slog.Logger
	Auth     auth.Config
	Store    *tle.Store
	Cache    *cache.ResultCache
	Observer passes.Observer
	Params   passes.Params // defaults; individual fields can be overridden per request
	Workers  int
	Stream   stream.Config
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{deps: deps, logger: deps.Logger}

	streamHandler := stream.NewHandler(s.streamRunner, deps.Store, deps.Stream, deps.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool {
		return deps.Store.Get() != nil
	}))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/passes", s.handlePasses)
	mux.HandleFunc("GET /api/v1/passes/stream", streamHandler.HandlePassStream)
	mux.HandleFunc("GET /api/v1/tle/metadata", s.handleTLEMetadata)
	mux.HandleFunc("GET /api/v1/cache/stats", s.handleCacheStats)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(deps.Auth)(handler)
	handler = loggingMiddleware(deps.Logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// handlePasses serves a pass forecast for the configured observer.
// GET /api/v1/passes?min_elevation=10&max_distance=1500&hours=24&tz=2
//
// Results are cached per parameter set; a cached dataset is served as long as
// the TLE catalogue it was computed from is still current.
func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	params, err := s.requestParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := cache.Key(s.deps.Observer, params)
	if ds := s.deps.Cache.Get(key); ds != nil {
		writeJSON(w, http.StatusOK, ds)
		return
	}

	ds, err := s.predict(r, params, nil)
	if err != nil {
		if errors.Is(err, ErrNoTLEData) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.deps.Cache.Put(key, ds)
	writeJSON(w, http.StatusOK, ds)
}

// streamRunner adapts predict to the SSE handler. Cached results are served
// directly; the stream then carries no progress events, only the dataset.
func (s *Server) streamRunner(r *http.Request, progress passes.ProgressFunc) (*passes.Dataset, error) {
	params, err := s.requestParams(r)
	if err != nil {
		return nil, err
	}

	key := cache.Key(s.deps.Observer, params)
	if ds := s.deps.Cache.Get(key); ds != nil {
		return ds, nil
	}

	ds, err := s.predict(r, params, progress)
	if err != nil {
		return nil, err
	}
	s.deps.Cache.Put(key, ds)
	return ds, nil
}

// predict runs the full catalogue search for one request.
func (s *Server) predict(r *http.Request, params passes.Params, progress passes.ProgressFunc) (*passes.Dataset, error) {
	src := s.deps.Store.Get()
	if src == nil {
		return nil, ErrNoTLEData
	}

	finder := passes.NewFinder(s.deps.Observer, params, s.deps.Workers, s.logger)
	found, _ := finder.FindPasses(r.Context(), src.Satellites, time.Now().UTC(), progress)
	if err := r.Context().Err(); err != nil {
		return nil, fmt.Errorf("prediction cancelled: %w", err)
	}
	return passes.BuildDataset(s.deps.Observer, params, found), nil
}

// requestParams applies query overrides to the configured defaults.
func (s *Server) requestParams(r *http.Request) (passes.Params, error) {
	params := s.deps.Params

	if v, ok, err := floatParam(r, "min_elevation", 0, 90); err != nil {
		return params, err
	} else if ok {
		params.MinElevationDeg = v
	}
	if v, ok, err := floatParam(r, "max_distance", 100, 50000); err != nil {
		return params, err
	} else if ok {
		params.MaxDistanceKm = v
	}
	if v, ok, err := floatParam(r, "hours", 1, 72); err != nil {
		return params, err
	} else if ok {
		params.HorizonHours = v
	}
	if v, ok, err := intParam(r, "tz", -12, 14); err != nil {
		return params, err
	} else if ok {
		params.TZOffsetHours = v
	}

	return params, nil
}

func floatParam(r *http.Request, name string, min, max float64) (float64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < min || v > max {
		return 0, false, fmt.Errorf("invalid %s parameter, must be a number in [%g, %g]", name, min, max)
	}
	return v, true, nil
}

func intParam(r *http.Request, name string, min, max int) (int, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, false, fmt.Errorf("invalid %s parameter, must be an integer in [%d, %d]", name, min, max)
	}
	return v, true, nil
}

// handleTLEMetadata reports the catalogue the predictions are based on.
// GET /api/v1/tle/metadata
func (s *Server) handleTLEMetadata(w http.ResponseWriter, r *http.Request) {
	ds := s.deps.Store.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "no TLE data loaded")
		return
	}

	writeJSON(w, http.StatusOK, tleMetadata{
		Source:      ds.Source,
		FetchedAt:   ds.FetchedAt.UTC().Format(time.RFC3339),
		AgeSeconds:  int(time.Since(ds.FetchedAt).Seconds()),
		Satellites:  len(ds.Satellites),
		EpochOldest: ds.EpochRange.Min.UTC().Format(time.RFC3339),
		EpochNewest: ds.EpochRange.Max.UTC().Format(time.RFC3339),
	})
}

type tleMetadata struct {
	Source      string `json:"source"`
	FetchedAt   string `json:"fetched_at"`
	AgeSeconds  int    `json:"age_seconds"`
	Satellites  int    `json:"satellites"`
	EpochOldest string `json:"epoch_oldest"`
	EpochNewest string `json:"epoch_newest"`
}

// handleCacheStats exposes result cache counters.
// GET /api/v1/cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Cache.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// SSE endpoint needs for flushing and write deadline control.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}

// Package metrics defines the Prometheus instrumentation for the service:
// HTTP request middleware plus counters and gauges for prediction runs,
// the TLE dataset, the result cache, and SSE streaming.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skypass_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	predictionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skypass_prediction_duration_seconds",
			Help:    "Wall-clock duration of a full pass-prediction run.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	predictionSatellitesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_prediction_satellites_total",
			Help: "Satellites processed across all prediction runs.",
		},
	)

	predictionPassesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_prediction_passes_total",
			Help: "Passes found across all prediction runs.",
		},
	)

	tleDatasetCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_tle_dataset_satellites",
			Help: "Number of satellites in the current TLE dataset.",
		},
	)

	tleDatasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_tle_dataset_age_seconds",
			Help: "Age of the current TLE dataset in seconds.",
		},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_result_cache_hits_total",
			Help: "Pass dataset cache hits.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_result_cache_misses_total",
			Help: "Pass dataset cache misses.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_result_cache_evictions_total",
			Help: "Pass dataset cache entries evicted.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_result_cache_entries",
			Help: "Pass dataset cache entries currently held.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_stream_connections_total",
			Help: "SSE stream connect/disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_streams_active",
			Help: "Currently connected SSE streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_stream_errors_total",
			Help: "SSE stream errors by kind.",
		},
		[]string{"kind"},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_stream_messages_total",
			Help: "SSE messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_stream_bytes_total",
			Help: "SSE payload bytes sent.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		predictionDurationSeconds,
		predictionSatellitesTotal,
		predictionPassesTotal,
		tleDatasetCount,
		tleDatasetAgeSeconds,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		streamConnectionsTotal,
		streamsActive,
		streamErrorsTotal,
		streamMessagesTotal,
		streamBytesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPrediction records the outcome of one full prediction run.
func RecordPrediction(d time.Duration, satellites, passesFound int) {
	predictionDurationSeconds.Observe(d.Seconds())
	predictionSatellitesTotal.Add(float64(satellites))
	predictionPassesTotal.Add(float64(passesFound))
}

// SetTLEDatasetCount publishes the satellite count of the current dataset.
func SetTLEDatasetCount(n int) {
	tleDatasetCount.Set(float64(n))
}

// SetTLEDatasetAge publishes the current dataset age in seconds.
func SetTLEDatasetAge(seconds float64) {
	tleDatasetAgeSeconds.Set(seconds)
}

// IncCacheHits increments the result cache hit counter.
func IncCacheHits() { cacheHitsTotal.Inc() }

// IncCacheMisses increments the result cache miss counter.
func IncCacheMisses() { cacheMissesTotal.Inc() }

// AddCacheEvictions adds to the result cache eviction counter.
func AddCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }

// SetCacheEntries publishes the current result cache size.
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

// IncStreamConnections counts a stream lifecycle event ("connect"/"disconnect").
func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }

// IncStreamsActive increments the active stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the active stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamErrors counts a stream error by kind.
func IncStreamErrors(kind string) { streamErrorsTotal.WithLabelValues(kind).Inc() }

// IncStreamMessages counts one sent SSE message.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes adds sent payload bytes.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(duration)
	})
}

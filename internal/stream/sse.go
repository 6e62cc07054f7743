// Package stream implements Server-Sent Events (SSE) streaming for pass
// prediction runs. Clients connect via GET /api/v1/passes/stream and receive
// progress events while the catalogue is being searched, followed by the
// finished pass dataset.
//
// SSE message format:
//
//	data: {"type":"progress","processed":120,"total":7000,"passes_found":3,"satellite":"STARLINK-1007"}\n\n
//	data: {"type":"dataset","dataset":{...}}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","dataset_epoch":"...","tle_age_seconds":1800,"satellites":7000}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval so proxies do
// not drop the connection while a large catalogue is still being processed.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/skypass/skypass/internal/httputil"
	"github.com/skypass/skypass/internal/metrics"
	"github.com/skypass/skypass/internal/passes"
	"github.com/skypass/skypass/internal/tle"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 4).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 15s).
	TrustProxy         bool          // Honor X-Forwarded-For for rate limiting.
}

// Runner starts a prediction and reports progress over ch. It must close ch
// (or send the final result) when the run completes. The API server supplies
// the implementation; the stream handler only knows how to ship events.
type Runner func(r *http.Request, progress passes.ProgressFunc) (*passes.Dataset, error)

// Handler manages SSE prediction streams.
type Handler struct {
	run     Runner
	store   *tle.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(run Runner, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 4
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 15 * time.Second
	}
	return &Handler{
		run:     run,
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

// HandlePassStream serves the SSE prediction stream.
// GET /api/v1/passes/stream
func (h *Handler) HandlePassStream(w http.ResponseWriter, r *http.Request) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// ResponseController reaches through middleware wrappers for flushing and
	// write deadlines.
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		metrics.IncStreamErrors("flush_unsupported")
		h.logger.Warn("streaming not supported by connection", "remote_ip", ip, "error", err)
		return
	}

	// Long-lived response: clear the server's default WriteTimeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:      w,
		rc:     rc,
		ip:     ip,
		logger: h.logger,
	}

	// Jittered retry interval (3-7s) to spread reconnection storms after a
	// server restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	rc.Flush()

	if ds := h.store.Get(); ds != nil {
		meta := metadataMessage{
			Type:         "metadata",
			DatasetEpoch: ds.FetchedAt.UTC().Format(time.RFC3339),
			TLEAge:       int(time.Since(ds.FetchedAt).Seconds()),
			Satellites:   len(ds.Satellites),
		}
		if err := c.sendJSON(meta); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	// Run the prediction in the background; its progress callback feeds a
	// channel so the SSE loop can interleave keepalives.
	progressCh := make(chan passes.Progress, 64)
	type runResult struct {
		dataset *passes.Dataset
		err     error
	}
	resultCh := make(chan runResult, 1)

	go func() {
		ds, err := h.run(r, func(p passes.Progress) {
			select {
			case progressCh <- p:
			default: // Never block the prediction on a slow client.
			}
		})
		close(progressCh)
		resultCh <- runResult{dataset: ds, err: err}
	}()

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case p, ok := <-progressCh:
			if !ok {
				progressCh = nil // Drained; await the final result.
				continue
			}
			msg := progressMessage{
				Type:        "progress",
				Processed:   p.Processed,
				Total:       p.Total,
				PassesFound: p.PassesFound,
				Satellite:   p.Satellite,
			}
			if err := c.sendJSON(msg); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case res := <-resultCh:
			// The runner closed progressCh before reporting; flush any
			// queued snapshots so the dataset is always the last message.
			if progressCh != nil {
				for p := range progressCh {
					msg := progressMessage{
						Type:        "progress",
						Processed:   p.Processed,
						Total:       p.Total,
						PassesFound: p.PassesFound,
						Satellite:   p.Satellite,
					}
					if err := c.sendJSON(msg); err != nil {
						metrics.IncStreamErrors("send_error")
						h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
						return
					}
				}
			}
			if res.err != nil {
				metrics.IncStreamErrors("prediction_error")
				c.sendJSON(errorMessage{Type: "error", Error: res.err.Error()})
				return
			}
			if err := c.sendJSON(datasetMessage{Type: "dataset", Dataset: res.dataset}); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error (dataset)", "remote_ip", ip, "error", err)
			}
			return

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type         string `json:"type"`
	DatasetEpoch string `json:"dataset_epoch"`
	TLEAge       int    `json:"tle_age_seconds"`
	Satellites   int    `json:"satellites"`
}

type progressMessage struct {
	Type        string `json:"type"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	PassesFound int    `json:"passes_found"`
	Satellite   string `json:"satellite,omitempty"`
}

type datasetMessage struct {
	Type    string          `json:"type"`
	Dataset *passes.Dataset `json:"dataset"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Package cache provides an in-memory cache for computed pass datasets.
//
// Pass prediction over a full catalogue is expensive, so finished datasets are
// kept keyed by observer location and search parameters. Entries expire after
// a TTL, and the whole cache is swept when the TLE dataset changes so stale
// orbits never serve another request.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypass/skypass/internal/metrics"
	"github.com/skypass/skypass/internal/passes"
	"github.com/skypass/skypass/internal/tle"
)

// Config holds cache configuration loaded from environment variables.
type Config struct {
	TTL        time.Duration // How long a computed dataset stays valid (default: 600s)
	MaxEntries int           // Upper bound on cached datasets (default: 256)
	SweepEvery time.Duration // Maintenance interval (default: 30s)
}

type entry struct {
	dataset  *passes.Dataset
	storedAt time.Time
	tleEpoch time.Time // FetchedAt of the TLE dataset the result was computed from
}

// ResultCache is an in-memory cache of computed pass datasets.
// Safe for concurrent use by multiple goroutines.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	config Config
	store  *tle.Store
	logger *slog.Logger

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a result cache backed by the given TLE store.
func New(config Config, store *tle.Store, logger *slog.Logger) *ResultCache {
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 256
	}
	if config.SweepEvery <= 0 {
		config.SweepEvery = 30 * time.Second
	}

	logger.Info("result cache initialized",
		"ttl_seconds", config.TTL.Seconds(),
		"max_entries", config.MaxEntries,
		"sweep_seconds", config.SweepEvery.Seconds(),
	)

	return &ResultCache{
		entries: make(map[string]*entry),
		config:  config,
		store:   store,
		logger:  logger,
	}
}

// Key derives the cache key for an observer and parameter set. Identical
// requests map to the same key regardless of struct field ordering.
func Key(obs passes.Observer, params passes.Params) string {
	return fmt.Sprintf("%.4f,%.4f,%.0f|%.1f,%.0f,%.1f,%d",
		obs.Latitude, obs.Longitude, obs.ElevationM,
		params.MinElevationDeg, params.MaxDistanceKm,
		params.HorizonHours, params.TZOffsetHours,
	)
}

// Get returns the cached dataset for key, or nil when absent or expired.
func (c *ResultCache) Get(key string) *passes.Dataset {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		metrics.IncCacheMisses()
		return nil
	}

	if time.Since(e.storedAt) > c.config.TTL || c.datasetChangedSince(e.tleEpoch) {
		c.remove(key)
		c.misses.Add(1)
		metrics.IncCacheMisses()
		return nil
	}

	c.hits.Add(1)
	metrics.IncCacheHits()
	return e.dataset
}

// Put stores a computed dataset under key, stamped with the TLE dataset it
// was derived from.
func (c *ResultCache) Put(key string, ds *passes.Dataset) {
	var tleEpoch time.Time
	if src := c.store.Get(); src != nil {
		tleEpoch = src.FetchedAt
	}

	c.mu.Lock()
	if len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &entry{
		dataset:  ds,
		storedAt: time.Now(),
		tleEpoch: tleEpoch,
	}
	count := len(c.entries)
	c.mu.Unlock()

	metrics.SetCacheEntries(count)
}

// Start runs the maintenance loop until ctx is cancelled: expired entries and
// entries computed from a superseded TLE dataset are swept periodically.
func (c *ResultCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("result cache sweeper stopped")
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// Stats returns current cache statistics.
func (c *ResultCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Entries:   count,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

func (c *ResultCache) datasetChangedSince(epoch time.Time) bool {
	ds := c.store.Get()
	if ds == nil {
		return false
	}
	return !ds.FetchedAt.Equal(epoch)
}

func (c *ResultCache) remove(key string) {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.evictions.Add(1)
		metrics.AddCacheEvictions(1)
	}
	count := len(c.entries)
	c.mu.Unlock()
	metrics.SetCacheEntries(count)
}

// evictOldestLocked drops the oldest entry. Caller holds mu.
func (c *ResultCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions.Add(1)
		metrics.AddCacheEvictions(1)
	}
}

// sweep removes expired entries and entries stamped with a superseded TLE
// dataset.
func (c *ResultCache) sweep() {
	cutoff := time.Now().Add(-c.config.TTL)
	var current time.Time
	if ds := c.store.Get(); ds != nil {
		current = ds.FetchedAt
	}

	var removed int
	c.mu.Lock()
	for k, e := range c.entries {
		stale := !current.IsZero() && !e.tleEpoch.Equal(current)
		if e.storedAt.Before(cutoff) || stale {
			delete(c.entries, k)
			removed++
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		metrics.SetCacheEntries(count)
		c.logger.Debug("cache sweep", "entries_removed", removed)
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/skypass/skypass/internal/api"
	"github.com/skypass/skypass/internal/auth"
	"github.com/skypass/skypass/internal/cache"
	"github.com/skypass/skypass/internal/metrics"
	"github.com/skypass/skypass/internal/passes"
	"github.com/skypass/skypass/internal/stream"
	"github.com/skypass/skypass/internal/tle"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	addr := os.Getenv("SKYPASS_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	observer := loadObserver(logger)
	params := loadParams(logger)

	tleCfg := loadTLEConfig(logger)
	store := tle.NewStore()
	diskCache := tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles)

	// Attempt to load cached TLE data on startup so predictions work before
	// the first fetch completes.
	if data, ts, err := diskCache.LoadLatest(); err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	} else if entries, err := tle.Parse(bytes.NewReader(data), logger); err != nil {
		logger.Warn("failed to parse cached TLE data", "error", err)
	} else if len(entries) > 0 {
		store.Set(tle.NewDataset("cache", ts, entries))
		metrics.SetTLEDatasetCount(len(entries))
		logger.Info("loaded TLE data from cache", "count", len(entries), "cached_at", ts.Format(time.RFC3339))
	}

	resultCache := cache.New(loadCacheConfig(logger), store, logger)
	streamCfg := loadStreamConfig(logger)

	workers := runtime.NumCPU()
	if v := os.Getenv("SKYPASS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workers = n
		} else {
			logger.Warn("invalid SKYPASS_WORKERS value, using CPU count", "value", v)
		}
	}

	srv := api.NewServer(addr, api.Deps{
		Logger:   logger,
		Auth:     authCfg,
		Store:    store,
		Cache:    resultCache,
		Observer: observer,
		Params:   params,
		Workers:  workers,
		Stream:   streamCfg,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go resultCache.Start(ctx)

	if tleCfg.EnableFetch {
		go tleRefreshLoop(ctx, tleCfg, store, diskCache, logger)
	}

	// Background goroutine to update the TLE dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetTLEDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"tle_fetch_enabled", tleCfg.EnableFetch,
			"observer", observer.Name,
			"workers", workers,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// tleConfig holds catalogue fetch and disk cache settings.
type tleConfig struct {
	EnableFetch bool
	SourceURL   string
	CacheDir    string
	MaxFiles    int
	Refresh     time.Duration
}

// tleRefreshLoop fetches the catalogue immediately when the store is empty
// or stale, then on every refresh tick.
func tleRefreshLoop(ctx context.Context, cfg tleConfig, store *tle.Store, diskCache *tle.Cache, logger *slog.Logger) {
	fetcher := tle.NewFetcher(cfg.SourceURL)

	if ds := store.Get(); ds == nil || time.Since(ds.FetchedAt) > cfg.Refresh {
		refreshTLE(ctx, fetcher, store, diskCache, logger)
	}

	ticker := time.NewTicker(cfg.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("TLE refresh loop stopped")
			return
		case <-ticker.C:
			refreshTLE(ctx, fetcher, store, diskCache, logger)
		}
	}
}

func refreshTLE(ctx context.Context, fetcher *tle.Fetcher, store *tle.Store, diskCache *tle.Cache, logger *slog.Logger) {
	store.Lock()
	defer store.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	data, err := fetcher.Fetch(fetchCtx)
	if err != nil {
		logger.Warn("TLE fetch failed", "source", fetcher.SourceURL(), "error", err)
		return
	}

	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		logger.Warn("TLE parse failed", "source", fetcher.SourceURL(), "error", err)
		return
	}
	if len(entries) == 0 {
		logger.Warn("TLE fetch returned no usable records", "source", fetcher.SourceURL())
		return
	}

	fetchedAt := time.Now()
	if err := diskCache.Write(data, fetchedAt); err != nil {
		logger.Warn("TLE disk cache write failed", "error", err)
	}

	store.Set(tle.NewDataset(fetcher.SourceURL(), fetchedAt, entries))
	metrics.SetTLEDatasetCount(len(entries))
	metrics.SetTLEDatasetAge(0)

	logger.Info("TLE dataset refreshed",
		"source", fetcher.SourceURL(),
		"count", len(entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func logLevel() slog.Level {
	switch os.Getenv("SKYPASS_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("SKYPASS_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("SKYPASS_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SKYPASS_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SKYPASS_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadObserver(logger *slog.Logger) passes.Observer {
	obs := passes.Observer{
		Latitude:   62.2426,
		Longitude:  25.7473,
		ElevationM: 117,
		Name:       "Jyväskylä, Finland",
	}

	if v := os.Getenv("SKYPASS_OBSERVER_LAT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= -90 && f <= 90 {
			obs.Latitude = f
		} else {
			logger.Warn("invalid SKYPASS_OBSERVER_LAT value, using default", "value", v)
		}
	}
	if v := os.Getenv("SKYPASS_OBSERVER_LON"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= -180 && f <= 180 {
			obs.Longitude = f
		} else {
			logger.Warn("invalid SKYPASS_OBSERVER_LON value, using default", "value", v)
		}
	}
	if v := os.Getenv("SKYPASS_OBSERVER_ELEVATION_M"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			obs.ElevationM = f
		} else {
			logger.Warn("invalid SKYPASS_OBSERVER_ELEVATION_M value, using default", "value", v)
		}
	}
	if v := os.Getenv("SKYPASS_OBSERVER_NAME"); v != "" {
		obs.Name = v
	}

	logger.Info("observer config", "name", obs.Name, "lat", obs.Latitude, "lon", obs.Longitude)
	return obs
}

func loadParams(logger *slog.Logger) passes.Params {
	cfg := passes.Params{
		MinElevationDeg: 10,
		MaxDistanceKm:   1500,
		HorizonHours:    24,
		TZOffsetHours:   2,
	}

	if v := os.Getenv("SKYPASS_MIN_ELEVATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 90 {
			cfg.MinElevationDeg = f
		} else {
			logger.Warn("invalid SKYPASS_MIN_ELEVATION value, using default", "value", v, "default", 10)
		}
	}
	if v := os.Getenv("SKYPASS_MAX_DISTANCE_KM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.MaxDistanceKm = f
		} else {
			logger.Warn("invalid SKYPASS_MAX_DISTANCE_KM value, using default", "value", v, "default", 1500)
		}
	}
	if v := os.Getenv("SKYPASS_HOURS_AHEAD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 72 {
			cfg.HorizonHours = f
		} else {
			logger.Warn("invalid SKYPASS_HOURS_AHEAD value, using default", "value", v, "default", 24)
		}
	}
	if v := os.Getenv("SKYPASS_TZ_OFFSET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= -12 && n <= 14 {
			cfg.TZOffsetHours = n
		} else {
			logger.Warn("invalid SKYPASS_TZ_OFFSET value, using default", "value", v, "default", 2)
		}
	}

	logger.Info("prediction defaults",
		"min_elevation", cfg.MinElevationDeg,
		"max_distance_km", cfg.MaxDistanceKm,
		"hours_ahead", cfg.HorizonHours,
		"tz_offset", cfg.TZOffsetHours,
	)
	return cfg
}

func loadCacheConfig(logger *slog.Logger) cache.Config {
	cfg := cache.Config{
		TTL:        10 * time.Minute,
		MaxEntries: 256,
		SweepEvery: 30 * time.Second,
	}

	if v := os.Getenv("SKYPASS_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TTL = time.Duration(n) * time.Second
		} else {
			logger.Warn("invalid SKYPASS_CACHE_TTL value, using default", "value", v, "default", 600)
		}
	}
	if v := os.Getenv("SKYPASS_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxEntries = n
		} else {
			logger.Warn("invalid SKYPASS_CACHE_MAX_ENTRIES value, using default", "value", v, "default", 256)
		}
	}

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 4,
		KeepaliveInterval:  15 * time.Second,
	}

	if v := os.Getenv("SKYPASS_STREAM_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentPerIP = n
		} else {
			logger.Warn("invalid SKYPASS_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 4)
		}
	}
	if v := os.Getenv("SKYPASS_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		} else {
			logger.Warn("invalid SKYPASS_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 15)
		}
	}
	if v := os.Getenv("SKYPASS_TRUST_PROXY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TrustProxy = b
		} else {
			logger.Warn("invalid SKYPASS_TRUST_PROXY value, using default", "value", v)
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
	)

	return cfg
}

func loadTLEConfig(logger *slog.Logger) tleConfig {
	cfg := tleConfig{
		EnableFetch: true,
		CacheDir:    "/tmp/skypass/tle",
		MaxFiles:    5,
		Refresh:     6 * time.Hour,
	}

	if v := os.Getenv("SKYPASS_ENABLE_TLE_FETCH"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.EnableFetch = enabled
		} else {
			logger.Warn("invalid SKYPASS_ENABLE_TLE_FETCH value, defaulting to false", "value", v)
			cfg.EnableFetch = false
		}
	}
	if v := os.Getenv("SKYPASS_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}
	if v := os.Getenv("SKYPASS_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("SKYPASS_TLE_MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxFiles = n
		} else {
			logger.Warn("invalid SKYPASS_TLE_MAX_FILES value, using default", "value", v, "default", 5)
		}
	}
	if v := os.Getenv("SKYPASS_TLE_REFRESH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 300 {
			cfg.Refresh = time.Duration(n) * time.Second
		} else {
			logger.Warn("invalid SKYPASS_TLE_REFRESH_INTERVAL value, using default", "value", v, "default", 21600)
		}
	}

	logger.Info("TLE config",
		"source_url", cfg.SourceURL,
		"cache_dir", cfg.CacheDir,
		"refresh_seconds", cfg.Refresh.Seconds(),
	)

	return cfg
}

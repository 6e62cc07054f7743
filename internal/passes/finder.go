// Package passes finds satellite visibility windows over an observer: a
// coarse elevation scan over the forecast horizon detects candidate
// windows, a fine re-scan pins down rise/peak/set, and each refined window
// is scored for viewing quality and labeled with compass directions.
package passes

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/skypass/skypass/internal/geo"
	"github.com/skypass/skypass/internal/metrics"
	"github.com/skypass/skypass/internal/propagation"
	"github.com/skypass/skypass/internal/tle"
)

const (
	coarseStep   = 5 * time.Minute  // detection scan step
	fineStep     = 10 * time.Second // refinement scan step
	refineMargin = 2 * time.Minute  // window expansion on each side before refinement
)

// Finder computes passes for one observer and parameter set. Stateless per
// invocation; safe for concurrent FindPasses calls.
type Finder struct {
	observer Observer
	params   Params
	workers  int
	logger   *slog.Logger
}

// NewFinder creates a Finder. workers bounds the per-satellite parallelism;
// values below 1 default to the CPU count.
func NewFinder(observer Observer, params Params, workers int, logger *slog.Logger) *Finder {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Finder{
		observer: observer,
		params:   params,
		workers:  workers,
		logger:   logger,
	}
}

// satResult is the output of one satellite's scan.
type satResult struct {
	name   string
	passes []Pass
}

// FindPasses scans every entry over [start, start+horizon] and returns all
// detected passes (unsorted) plus the final progress snapshot.
//
// Satellites are processed by a bounded worker pool; the collector invokes
// the progress callback serially after each satellite completes. Bad
// records and propagation failures contribute zero passes and never abort
// the batch. Cancelling ctx stops feeding work; satellites already in
// flight finish.
func (f *Finder) FindPasses(ctx context.Context, entries []tle.Entry, start time.Time, progress ProgressFunc) ([]Pass, Progress) {
	begin := time.Now()
	start = start.UTC()
	end := start.Add(time.Duration(f.params.HorizonHours * float64(time.Hour)))

	jobs := make(chan *propagation.Propagator, f.workers)
	results := make(chan satResult, f.workers)

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for prop := range jobs {
				results <- satResult{
					name:   prop.Name(),
					passes: f.scanSatellite(ctx, prop, start, end),
				}
			}
		}()
	}

	// Feed candidates. Invalid or geometrically impossible satellites are
	// skipped up front but still count as processed.
	skipped := make(chan satResult, len(entries))
	go func() {
		defer close(jobs)
		defer close(skipped)
		for _, entry := range entries {
			prop := propagation.New(entry)
			if !prop.IsValid() || !prop.CouldBeVisible(f.observer.Latitude) {
				if !prop.IsValid() {
					f.logger.Warn("skipping unparseable TLE", "norad_id", entry.NORADID, "name", entry.Name)
				}
				skipped <- satResult{name: entry.Name}
				continue
			}
			select {
			case jobs <- prop:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect: fold worker results and pre-filtered skips into one pass
	// list, reporting progress serially after each satellite.
	state := Progress{Total: len(entries)}
	var all []Pass

	report := func(r satResult) {
		state.Processed++
		state.PassesFound += len(r.passes)
		state.Satellite = r.name
		all = append(all, r.passes...)
		if progress != nil {
			progress(state)
		}
	}

	for results != nil || skipped != nil {
		select {
		case r, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			report(r)
		case r, ok := <-skipped:
			if !ok {
				skipped = nil
				continue
			}
			report(r)
		}
	}

	duration := time.Since(begin)
	metrics.RecordPrediction(duration, state.Processed, state.PassesFound)
	f.logger.Info("pass search complete",
		"satellites", state.Processed,
		"passes", state.PassesFound,
		"horizon_hours", f.params.HorizonHours,
		"duration_ms", duration.Milliseconds(),
	)

	return all, state
}

// scanSatellite runs the coarse detection scan for one satellite and
// refines every window it finds.
func (f *Finder) scanSatellite(ctx context.Context, prop *propagation.Propagator, start, end time.Time) []Pass {
	var passes []Pass

	var (
		inRun    bool
		runStart time.Time
		runEnd   time.Time
	)

	for t := start; !t.After(end); t = t.Add(coarseStep) {
		if ctx.Err() != nil {
			return passes
		}

		state, ok := prop.Propagate(t, f.observer.Latitude, f.observer.Longitude)
		if !ok {
			// No data at this instant. Not a crossing: the current run
			// stays open.
			continue
		}

		if state.Elevation >= f.params.MinElevationDeg {
			if !inRun {
				inRun = true
				runStart = t
			}
			runEnd = t
			continue
		}

		if inRun {
			if p := f.refineWindow(ctx, prop, runStart, runEnd); p != nil {
				passes = append(passes, *p)
			}
			inRun = false
		}
	}

	// A window still open at the horizon is refined with the horizon as
	// its provisional end rather than discarded.
	if inRun {
		if p := f.refineWindow(ctx, prop, runStart, end); p != nil {
			passes = append(passes, *p)
		}
	}

	return passes
}

// refineWindow re-scans a coarse window, expanded by the refinement margin
// on each side, at the fine step. Returns nil when the window does not
// survive refinement (fewer than 2 qualifying samples, or the peak is out
// of range).
func (f *Finder) refineWindow(ctx context.Context, prop *propagation.Propagator, windowStart, windowEnd time.Time) *Pass {
	scanStart := windowStart.Add(-refineMargin)
	scanEnd := windowEnd.Add(refineMargin)

	var samples []propagation.State
	peakIdx := -1

	for t := scanStart; !t.After(scanEnd); t = t.Add(fineStep) {
		if ctx.Err() != nil {
			return nil
		}
		state, ok := prop.Propagate(t, f.observer.Latitude, f.observer.Longitude)
		if !ok || state.Elevation < f.params.MinElevationDeg {
			continue
		}
		samples = append(samples, state)
		if peakIdx < 0 || state.Elevation > samples[peakIdx].Elevation {
			peakIdx = len(samples) - 1
		}
	}

	if len(samples) < 2 || peakIdx < 0 {
		return nil
	}

	peak := samples[peakIdx]
	if peak.RangeKm > f.params.MaxDistanceKm {
		return nil
	}

	first := samples[0]
	last := samples[len(samples)-1]

	// Movement direction comes from an interior sample: the middle one
	// when available, so short near-overhead passes don't report two
	// nearly identical azimuths.
	var movement *Direction
	switch {
	case len(samples) >= 3:
		movement = newDirection(samples[len(samples)/2].Azimuth)
	case len(samples) >= 2:
		movement = newDirection(last.Azimuth)
	}

	assessment := prop.Assess(peak, f.observer.Latitude, f.observer.Longitude)
	local := f.params.Location()

	return &Pass{
		Satellite: prop.Name(),
		NORADID:   prop.NORADID(),

		StartUTC:   first.Time,
		StartLocal: first.Time.In(local),
		PeakUTC:    peak.Time,
		PeakLocal:  peak.Time.In(local),
		EndUTC:     last.Time,
		EndLocal:   last.Time.In(local),

		PeakElevationDeg: int(math.Round(peak.Elevation)),
		PeakRangeKm:      int(math.Round(peak.RangeKm)),
		DurationSeconds:  int(math.Round(last.Time.Sub(first.Time).Seconds())),

		VisibilityRating:   assessment.Rating,
		VisibilityCategory: assessment.Category,
		Sunlit:             assessment.Illuminated,

		Rise:     *newDirection(first.Azimuth),
		Movement: movement,
	}
}

// newDirection rounds an azimuth to whole degrees and labels it. The label
// is derived from the rounded value so the pair stays mutually consistent.
func newDirection(azimuth float64) *Direction {
	deg := int(math.Round(azimuth)) % 360
	return &Direction{
		AzimuthDeg: deg,
		Compass:    geo.CompassLabel(float64(deg)),
	}
}

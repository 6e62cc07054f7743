package passes

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/skypass/skypass/internal/geo"
	"github.com/skypass/skypass/internal/tle"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// Jyväskylä, Finland.
var jyvaskyla = Observer{
	Latitude:   62.2426,
	Longitude:  25.7473,
	ElevationM: 117,
	Name:       "Jyväskylä, Finland",
}

var defaultParams = Params{
	MinElevationDeg: 10,
	MaxDistanceKm:   1500,
	HorizonHours:    24,
	TZOffsetHours:   2,
}

// Circular 53°-inclination constellation orbit, epoch 2025-02-14 12:00 UTC.
var constellationEntry = tle.Entry{
	NORADID: 44713,
	Name:    "STARLINK-1007",
	Line1:   "1 44713U 19074A   25045.50000000  .00001000  00000-0  10000-4 0  9997",
	Line2:   "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07",
	Epoch:   time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC),
}

// Near-equatorial orbit: can never rise over Jyväskylä.
var equatorialEntry = tle.Entry{
	NORADID: 90001,
	Name:    "EQ TEST",
	Line1:   "1 90001U 20001A   25045.50000000  .00000100  00000+0  70000-4 0  9995",
	Line2:   "2 90001   5.0000 340.0000 0001000  90.0000 270.0000 15.10000000    00",
	Epoch:   time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC),
}

// Well-formed lines whose line1 checksum digit does not match the body.
var unparseableEntry = tle.Entry{
	NORADID: 99999,
	Name:    "CHECKSUM WRECK",
	Line1:   "1 99999U 20001A   25045.50000000  .00000100  00000+0  70000-4 0  9994",
	Line2:   "2 99999   5.0000 340.0000 0001000  90.0000 270.0000 15.10000000    05",
}

var searchStart = time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

func TestFindPassesConstellationOverFinland(t *testing.T) {
	f := NewFinder(jyvaskyla, defaultParams, 2, testLogger)

	passes, prog := f.FindPasses(context.Background(), []tle.Entry{constellationEntry}, searchStart, nil)

	if prog.Processed != 1 || prog.Total != 1 {
		t.Errorf("progress = %d/%d, want 1/1", prog.Processed, prog.Total)
	}
	if len(passes) == 0 {
		t.Fatal("expected at least one pass over 24h for a 53° orbit from 62.2°N")
	}

	for i, p := range passes {
		if p.StartUTC.After(p.PeakUTC) || p.PeakUTC.After(p.EndUTC) {
			t.Errorf("pass %d: time ordering violated: start=%v peak=%v end=%v",
				i, p.StartUTC, p.PeakUTC, p.EndUTC)
		}
		wantDur := int(math.Round(p.EndUTC.Sub(p.StartUTC).Seconds()))
		if p.DurationSeconds != wantDur {
			t.Errorf("pass %d: duration %d s, want %d", i, p.DurationSeconds, wantDur)
		}
		if p.DurationSeconds < 0 {
			t.Errorf("pass %d: negative duration", i)
		}
		if float64(p.PeakElevationDeg) < defaultParams.MinElevationDeg-0.5 {
			t.Errorf("pass %d: peak elevation %d below threshold %.0f",
				i, p.PeakElevationDeg, defaultParams.MinElevationDeg)
		}
		if float64(p.PeakRangeKm) > defaultParams.MaxDistanceKm+0.5 {
			t.Errorf("pass %d: peak range %d km exceeds limit %.0f",
				i, p.PeakRangeKm, defaultParams.MaxDistanceKm)
		}
		if p.VisibilityRating < 0 || p.VisibilityRating > 100 {
			t.Errorf("pass %d: rating %d out of [0,100]", i, p.VisibilityRating)
		}
		if !p.Sunlit && p.VisibilityRating != 0 {
			t.Errorf("pass %d: shadowed pass rated %d, want 0", i, p.VisibilityRating)
		}

		// Azimuth/label round-trip consistency.
		if p.Rise.AzimuthDeg < 0 || p.Rise.AzimuthDeg >= 360 {
			t.Errorf("pass %d: rise azimuth %d out of range", i, p.Rise.AzimuthDeg)
		}
		if got := geo.CompassLabel(float64(p.Rise.AzimuthDeg)); got != p.Rise.Compass {
			t.Errorf("pass %d: rise label %q inconsistent with azimuth %d (want %q)",
				i, p.Rise.Compass, p.Rise.AzimuthDeg, got)
		}
		if p.Movement != nil {
			if got := geo.CompassLabel(float64(p.Movement.AzimuthDeg)); got != p.Movement.Compass {
				t.Errorf("pass %d: movement label %q inconsistent with azimuth %d",
					i, p.Movement.Compass, p.Movement.AzimuthDeg)
			}
		}

		// Local timestamps carry the configured fixed offset but denote the
		// same instants.
		if _, off := p.StartLocal.Zone(); off != defaultParams.TZOffsetHours*3600 {
			t.Errorf("pass %d: local offset %d s, want %d", i, off, defaultParams.TZOffsetHours*3600)
		}
		if !p.StartLocal.Equal(p.StartUTC) || !p.EndLocal.Equal(p.EndUTC) {
			t.Errorf("pass %d: local timestamps denote different instants", i)
		}

		t.Logf("pass %d: start=%v peakEl=%d° range=%dkm dur=%ds rise=%s vis=%d/%s",
			i, p.StartUTC.Format(time.RFC3339), p.PeakElevationDeg, p.PeakRangeKm,
			p.DurationSeconds, p.Rise.Compass, p.VisibilityRating, p.VisibilityCategory)
	}
}

func TestFindPassesExcludesImpossibleInclination(t *testing.T) {
	f := NewFinder(jyvaskyla, defaultParams, 2, testLogger)

	passes, prog := f.FindPasses(context.Background(), []tle.Entry{equatorialEntry}, searchStart, nil)

	if len(passes) != 0 {
		t.Errorf("equatorial orbit produced %d passes from 62.2°N, want 0", len(passes))
	}
	// The satellite still counts as processed.
	if prog.Processed != 1 || prog.Total != 1 {
		t.Errorf("progress = %d/%d, want 1/1", prog.Processed, prog.Total)
	}
}

func TestFindPassesBadRecordIsolated(t *testing.T) {
	f := NewFinder(jyvaskyla, defaultParams, 2, testLogger)

	entries := []tle.Entry{unparseableEntry, constellationEntry}
	passes, prog := f.FindPasses(context.Background(), entries, searchStart, nil)

	if prog.Processed != 2 {
		t.Errorf("processed = %d, want 2 (bad record still counted)", prog.Processed)
	}
	if len(passes) == 0 {
		t.Error("good record should still produce passes alongside a bad one")
	}
	for _, p := range passes {
		if p.Satellite == unparseableEntry.Name {
			t.Error("unparseable record must contribute zero passes")
		}
	}
}

func TestFindPassesProgressCallback(t *testing.T) {
	f := NewFinder(jyvaskyla, defaultParams, 1, testLogger)

	entries := []tle.Entry{constellationEntry, equatorialEntry, unparseableEntry}

	var mu sync.Mutex
	var snapshots []Progress
	_, final := f.FindPasses(context.Background(), entries, searchStart, func(p Progress) {
		mu.Lock()
		snapshots = append(snapshots, p)
		mu.Unlock()
	})

	if len(snapshots) != len(entries) {
		t.Fatalf("got %d progress snapshots, want %d", len(snapshots), len(entries))
	}
	for i, s := range snapshots {
		if s.Processed != i+1 {
			t.Errorf("snapshot %d: processed = %d, want %d", i, s.Processed, i+1)
		}
		if s.Total != len(entries) {
			t.Errorf("snapshot %d: total = %d, want %d", i, s.Total, len(entries))
		}
		if s.Satellite == "" {
			t.Errorf("snapshot %d: empty satellite name", i)
		}
	}

	last := snapshots[len(snapshots)-1]
	if final.Processed != last.Processed || final.PassesFound != last.PassesFound {
		t.Errorf("returned progress %+v does not match last snapshot %+v", final, last)
	}
}

func TestFindPassesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFinder(jyvaskyla, defaultParams, 2, testLogger)
	entries := make([]tle.Entry, 50)
	for i := range entries {
		entries[i] = constellationEntry
		entries[i].NORADID = 44713 + i
	}

	// Must return without panicking; in-flight satellites may complete.
	passes, prog := f.FindPasses(ctx, entries, searchStart, nil)
	if prog.Processed > len(entries) {
		t.Errorf("processed %d exceeds entry count", prog.Processed)
	}
	_ = passes
}

func TestFindPassesHigherThresholdFindsFewer(t *testing.T) {
	low := defaultParams
	low.MinElevationDeg = 10
	high := defaultParams
	high.MinElevationDeg = 45

	entries := []tle.Entry{constellationEntry}

	pLow, _ := NewFinder(jyvaskyla, low, 2, testLogger).FindPasses(context.Background(), entries, searchStart, nil)
	pHigh, _ := NewFinder(jyvaskyla, high, 2, testLogger).FindPasses(context.Background(), entries, searchStart, nil)

	if len(pHigh) > len(pLow) {
		t.Errorf("min elevation 45° found %d passes, more than 10° found (%d)", len(pHigh), len(pLow))
	}
}

func TestBuildDataset(t *testing.T) {
	base := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	unsorted := []Pass{
		{Satellite: "B", StartUTC: base.Add(2 * time.Hour)},
		{Satellite: "A", StartUTC: base},
		{Satellite: "C", StartUTC: base.Add(time.Hour)},
	}

	ds := BuildDataset(jyvaskyla, defaultParams, unsorted)

	if ds.TotalPasses != 3 {
		t.Errorf("TotalPasses = %d, want 3", ds.TotalPasses)
	}
	if ds.RunID == "" {
		t.Error("RunID should be set")
	}
	if ds.GeneratedAt.IsZero() {
		t.Error("GeneratedAt should be set")
	}
	for i := 1; i < len(ds.Passes); i++ {
		if ds.Passes[i].StartUTC.Before(ds.Passes[i-1].StartUTC) {
			t.Errorf("passes not sorted at index %d", i)
		}
	}
	if ds.Passes[0].Satellite != "A" {
		t.Errorf("first pass = %s, want A", ds.Passes[0].Satellite)
	}
}

func BenchmarkFindPasses50Sats(b *testing.B) {
	entries := make([]tle.Entry, 50)
	for i := range entries {
		entries[i] = constellationEntry
		entries[i].NORADID = 44713 + i
	}

	f := NewFinder(jyvaskyla, defaultParams, 0, testLogger)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.FindPasses(context.Background(), entries, searchStart, nil)
	}
}

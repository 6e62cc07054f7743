// Command diag runs a pass prediction against a local TLE file and prints
// the result, for checking orbit data and search parameters without
// standing up the HTTP server.
//
//	diag -file /tmp/skypass/tle/tle_1770838763.txt -lat 62.2426 -lon 25.7473 -hours 24
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/skypass/skypass/internal/passes"
	"github.com/skypass/skypass/internal/tle"
)

func main() {
	var (
		file        = flag.String("file", "", "TLE file to load (required)")
		lat         = flag.Float64("lat", 62.2426, "observer latitude in degrees")
		lon         = flag.Float64("lon", 25.7473, "observer longitude in degrees")
		name        = flag.String("name", "Jyväskylä, Finland", "observer location name")
		minEl       = flag.Float64("min-elevation", 10, "minimum peak elevation in degrees")
		maxDist     = flag.Float64("max-distance", 1500, "maximum peak range in km")
		hours       = flag.Float64("hours", 24, "forecast window in hours")
		tzOffset    = flag.Int("tz", 2, "timezone offset in hours for local times")
		limit       = flag.Int("limit", 0, "only process the first N satellites (0 = all)")
		jsonOut     = flag.Bool("json", false, "print the dataset as JSON instead of text")
		showSkipped = flag.Bool("progress", false, "print per-satellite progress to stderr")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR reading TLE file:", err)
		os.Exit(1)
	}

	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR parsing TLE:", err)
		os.Exit(1)
	}
	if *limit > 0 && *limit < len(entries) {
		entries = entries[:*limit]
	}

	observer := passes.Observer{Latitude: *lat, Longitude: *lon, Name: *name}
	params := passes.Params{
		MinElevationDeg: *minEl,
		MaxDistanceKm:   *maxDist,
		HorizonHours:    *hours,
		TZOffsetHours:   *tzOffset,
	}

	var progress passes.ProgressFunc
	if *showSkipped {
		progress = func(p passes.Progress) {
			fmt.Fprintf(os.Stderr, "\r%d/%d satellites, %d passes", p.Processed, p.Total, p.PassesFound)
			if p.Processed == p.Total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	finder := passes.NewFinder(observer, params, 0, logger)
	start := time.Now().UTC()
	found, prog := finder.FindPasses(context.Background(), entries, start, progress)
	ds := passes.BuildDataset(observer, params, found)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ds); err != nil {
			fmt.Fprintln(os.Stderr, "ERROR encoding JSON:", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Loaded %d TLE entries from %s\n", prog.Total, *file)
	fmt.Printf("Observer: %s (%.4f, %.4f)\n", observer.Name, observer.Latitude, observer.Longitude)
	fmt.Printf("Window: %v + %.0fh, min elevation %.0f°, max range %.0f km\n\n",
		start.Format(time.RFC3339), params.HorizonHours, params.MinElevationDeg, params.MaxDistanceKm)

	if ds.TotalPasses == 0 {
		fmt.Println("No passes found.")
		return
	}

	for i, p := range ds.Passes {
		fmt.Printf("Pass %d: %s (NORAD %d)\n", i+1, p.Satellite, p.NORADID)
		fmt.Printf("  start    %s local  (%s UTC)\n",
			p.StartLocal.Format("2006-01-02 15:04:05"), p.StartUTC.Format("15:04:05"))
		fmt.Printf("  peak     %s local, elevation %d°, range %d km\n",
			p.PeakLocal.Format("15:04:05"), p.PeakElevationDeg, p.PeakRangeKm)
		fmt.Printf("  duration %ds, rises in %s (%d°)", p.DurationSeconds, p.Rise.Compass, p.Rise.AzimuthDeg)
		if p.Movement != nil {
			fmt.Printf(", moving %s", p.Movement.Compass)
		}
		fmt.Println()
		fmt.Printf("  visibility %d/100 (%s)", p.VisibilityRating, p.VisibilityCategory)
		if !p.Sunlit {
			fmt.Print(", in Earth shadow")
		}
		fmt.Println()
		fmt.Println()
	}
	fmt.Printf("Total passes found: %d\n", ds.TotalPasses)
}

// Package propagation wraps the SGP4 orbital model for a single satellite
// and converts raw orbital state into observer-relative geometry.
//
// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Selected for: most community adoption, pure Go (no CGO), battle-tested
// since 2016, explicit TEME output.
//
// Note: Propagate() takes Satellite by value so SGP4 error codes are not
// visible to the caller. We detect propagation failures by checking output
// for NaN/Inf and unreasonable position magnitudes.
package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/skypass/skypass/internal/geo"
	"github.com/skypass/skypass/internal/solar"
	"github.com/skypass/skypass/internal/tle"
)

// State is the satellite's condition at a single instant: the sub-satellite
// geodetic point plus the observer-relative look geometry it was computed for.
type State struct {
	Time       time.Time
	Latitude   float64 // sub-satellite point, degrees
	Longitude  float64 // sub-satellite point, degrees
	AltitudeKm float64
	Elevation  float64 // degrees above the observer's horizon
	Azimuth    float64 // degrees, 0 = North, clockwise
	RangeKm    float64 // observer-to-satellite slant range
}

// Propagator wraps the SGP4 model for one TLE entry.
//
// A Propagator built from an unparseable entry is permanently invalid:
// every method degrades to "no result" instead of failing, so one bad
// record can never take down a batch.
type Propagator struct {
	entry tle.Entry
	sat   satellite.Satellite
	valid bool
}

// New creates a Propagator for the given entry. Construction never fails;
// parse or SGP4 initialization problems leave the instance invalid.
func New(entry tle.Entry) *Propagator {
	p := &Propagator{entry: entry}

	if err := validateLines(entry.Line1, entry.Line2); err != nil {
		return p
	}

	// go-satellite calls log.Fatal on malformed input, which is why the
	// format pre-validation above must run first.
	sat := satellite.TLEToSat(entry.Line1, entry.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return p
	}

	p.sat = sat
	p.valid = true
	return p
}

// validateLines performs basic format validation on TLE lines.
func validateLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got %q", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got %q", line2[0])
	}
	if err := verifyChecksum(line1); err != nil {
		return fmt.Errorf("line1: %w", err)
	}
	if err := verifyChecksum(line2); err != nil {
		return fmt.Errorf("line2: %w", err)
	}
	return nil
}

// verifyChecksum checks the mod-10 checksum in column 69 of a TLE line.
// Digits count at face value, minus signs count as 1, everything else
// counts as 0.
func verifyChecksum(line string) error {
	sum := 0
	for _, c := range line[:68] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	want := line[68]
	if want < '0' || want > '9' {
		return fmt.Errorf("checksum column %q is not a digit", want)
	}
	if got := byte('0' + sum%10); got != want {
		return fmt.Errorf("checksum mismatch: computed %c, line has %c", got, want)
	}
	return nil
}

// IsValid reports whether the underlying TLE parsed and the SGP4 model
// initialized.
func (p *Propagator) IsValid() bool {
	return p.valid
}

// Name returns the satellite name from the TLE entry.
func (p *Propagator) Name() string {
	return p.entry.Name
}

// NORADID returns the satellite catalog number.
func (p *Propagator) NORADID() int {
	return p.entry.NORADID
}

// InclinationDeg returns the orbital inclination in degrees, or 0 for an
// invalid instance.
func (p *Propagator) InclinationDeg() float64 {
	if !p.valid {
		return 0
	}
	return geo.RadiansToDegrees(p.sat.Inclo)
}

// coverageSlackDeg widens the inclination filter by the ground arc over
// which a LEO satellite still clears a low elevation threshold. At 550 km
// altitude a 10° elevation is reached ~2000 km (18° of arc) from the
// sub-satellite track, so a satellite never crossing the observer's
// latitude can still be visible from it.
const coverageSlackDeg = 20.0

// CouldBeVisible is a cheap admissibility filter: the orbit's inclination,
// widened by the coverage slack, must reach the observer's absolute
// latitude for the satellite to ever rise above the horizon there, with
// inclinations near 180−|lat| accepted to cover retrograde orbits.
// Deliberately over-inclusive: false positives are caught by propagation,
// false negatives would silently drop real passes.
func (p *Propagator) CouldBeVisible(observerLat float64) bool {
	if !p.valid {
		return false
	}
	absLat := math.Abs(observerLat)
	inc := geo.RadiansToDegrees(p.sat.Inclo)
	return inc+coverageSlackDeg >= absLat || inc >= 180.0-absLat-coverageSlackDeg
}

// Propagate runs the orbital model at t and returns the satellite's state
// relative to the observer. ok is false when the instance is invalid or the
// model breaks down numerically (decayed orbit, NaN output); the sample is
// then simply "no data".
func (p *Propagator) Propagate(t time.Time, observerLat, observerLon float64) (State, bool) {
	if !p.valid {
		return State{}, false
	}

	t = t.UTC()
	pos, _ := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return State{}, false
	}

	// Sanity check: position magnitude should be between ~6200km and ~50000km.
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return State{}, false
	}

	// Rotate the inertial position into an Earth-fixed frame by sidereal
	// time, then read off the spherical sub-satellite point.
	theta := geo.GMSTAt(t)
	cosT := math.Cos(theta)
	sinT := math.Sin(theta)

	xe := pos.X*cosT + pos.Y*sinT
	ye := -pos.X*sinT + pos.Y*cosT
	ze := pos.Z

	lat := geo.RadiansToDegrees(math.Atan2(ze, math.Sqrt(xe*xe+ye*ye)))
	lon := geo.RadiansToDegrees(math.Atan2(ye, xe))
	alt := mag - geo.EarthRadiusKm

	return State{
		Time:       t,
		Latitude:   lat,
		Longitude:  lon,
		AltitudeKm: alt,
		Elevation:  geo.Elevation(lat, lon, alt, observerLat, observerLon),
		Azimuth:    geo.Azimuth(lat, lon, observerLat, observerLon),
		RangeKm:    geo.SlantRange(lat, lon, alt, observerLat, observerLon),
	}, true
}

// Assess combines solar geometry at the state's time with the satellite's
// altitude and elevation into a visibility assessment.
func (p *Propagator) Assess(s State, observerLat, observerLon float64) solar.Assessment {
	sunElevation, _ := solar.Position(s.Time, observerLat, observerLon)
	illuminated := solar.Illuminated(s.AltitudeKm, sunElevation)
	return solar.Rate(sunElevation, illuminated, s.Elevation)
}

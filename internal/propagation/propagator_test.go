package propagation

import (
	"math"
	"testing"
	"time"

	"github.com/skypass/skypass/internal/tle"
)

// Real ISS TLE (epoch Feb 2025, valid for testing pass geometry).
var issEntry = tle.Entry{
	NORADID: 25544,
	Name:    "ISS (ZARYA)",
	Line1:   "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996",
	Line2:   "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057",
	Epoch:   time.Date(2025, 2, 14, 4, 19, 40, 0, time.UTC),
}

var badEntry = tle.Entry{
	NORADID: 99999,
	Name:    "BAD SAT",
	Line1:   "1 garbage",
	Line2:   "2 garbage",
}

func TestNewValidTLE(t *testing.T) {
	p := New(issEntry)
	if !p.IsValid() {
		t.Fatal("ISS TLE should produce a valid propagator")
	}
	if math.Abs(p.InclinationDeg()-51.6412) > 0.001 {
		t.Errorf("inclination = %.4f, want 51.6412", p.InclinationDeg())
	}
}

func TestNewInvalidTLENeverPanics(t *testing.T) {
	p := New(badEntry)
	if p.IsValid() {
		t.Fatal("garbage TLE should produce an invalid propagator")
	}
	if p.CouldBeVisible(62.0) {
		t.Error("invalid propagator must fail the visibility filter")
	}
	if _, ok := p.Propagate(time.Now(), 62.0, 25.0); ok {
		t.Error("invalid propagator must return no result")
	}
}

func TestCouldBeVisible(t *testing.T) {
	p := New(issEntry) // inclination 51.64°

	tests := []struct {
		name        string
		observerLat float64
		want        bool
	}{
		{"equator", 0, true},
		{"mid latitude under inclination", 45, true},
		{"at inclination", 51.6, true},
		{"northern Finland within slack", 62.2426, true},
		{"arctic beyond slack", 80, false},
		{"southern hemisphere symmetric", -45, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.CouldBeVisible(tt.observerLat); got != tt.want {
				t.Errorf("CouldBeVisible(%.1f) = %v, want %v", tt.observerLat, got, tt.want)
			}
		})
	}
}

func TestCouldBeVisibleExcludesEquatorialFromHighLatitude(t *testing.T) {
	// Near-equatorial orbit: never visible from northern Finland.
	equatorial := tle.Entry{
		NORADID: 90001,
		Name:    "EQ TEST",
		Line1:   "1 90001U 20001A   25045.50000000  .00000100  00000+0  70000-4 0  9995",
		Line2:   "2 90001   5.0000 340.0000 0001000  90.0000 270.0000 15.10000000    00",
	}
	p := New(equatorial)
	if !p.IsValid() {
		t.Fatal("equatorial TLE should be valid")
	}
	if p.CouldBeVisible(62.2426) {
		t.Error("5° inclination orbit should be excluded at 62.2° latitude")
	}
	if !p.CouldBeVisible(0) {
		t.Error("5° inclination orbit should pass the filter at the equator")
	}
}

func TestCouldBeVisibleRetrograde(t *testing.T) {
	// Sun-synchronous style retrograde orbit, inclination ~97.6°.
	sso := tle.Entry{
		NORADID: 43013,
		Name:    "NOAA 20",
		Line1:   "1 43013U 17073A   25045.50000000  .00000100  00000+0  70000-4 0  9991",
		Line2:   "2 43013  98.7200 340.0000 0001000  90.0000 270.0000 14.19500000    05",
	}
	p := New(sso)
	if !p.IsValid() {
		t.Fatal("SSO TLE should be valid")
	}
	// 98.72° inclination covers every latitude up to 90.
	for _, lat := range []float64{0, 45, 62.2426, 85, -85} {
		if !p.CouldBeVisible(lat) {
			t.Errorf("polar orbit should pass the filter at lat %.1f", lat)
		}
	}
}

func TestPropagateNearEpoch(t *testing.T) {
	p := New(issEntry)
	at := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

	s, ok := p.Propagate(at, 40.7128, -74.006)
	if !ok {
		t.Fatal("propagation near epoch should succeed")
	}

	if s.Latitude < -52 || s.Latitude > 52 {
		t.Errorf("sub-satellite latitude %.2f outside ±inclination", s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		t.Errorf("sub-satellite longitude %.2f out of range", s.Longitude)
	}
	// ISS altitude is ~420 km; the spherical model tolerates some spread.
	if s.AltitudeKm < 350 || s.AltitudeKm > 500 {
		t.Errorf("altitude %.1f km outside ISS range", s.AltitudeKm)
	}
	if s.RangeKm <= 0 {
		t.Errorf("range %.1f km must be positive", s.RangeKm)
	}
	if s.Azimuth < 0 || s.Azimuth >= 360 {
		t.Errorf("azimuth %.2f out of [0,360)", s.Azimuth)
	}
	if !s.Time.Equal(at) {
		t.Errorf("state time = %v, want %v", s.Time, at)
	}
}

func TestPropagateIdempotent(t *testing.T) {
	p := New(issEntry)
	at := time.Date(2025, 2, 14, 18, 30, 0, 0, time.UTC)

	s1, ok1 := p.Propagate(at, 62.2426, 25.7473)
	s2, ok2 := p.Propagate(at, 62.2426, 25.7473)

	if ok1 != ok2 {
		t.Fatal("repeated propagation changed outcome")
	}
	if s1 != s2 {
		t.Errorf("repeated propagation differs:\n%+v\n%+v", s1, s2)
	}
}

func TestAssessUsesStateTime(t *testing.T) {
	p := New(issEntry)

	// Winter evening in Finland: sun far below horizon.
	night := time.Date(2025, 2, 14, 20, 0, 0, 0, time.UTC)
	s, ok := p.Propagate(night, 62.2426, 25.7473)
	if !ok {
		t.Fatal("propagation failed")
	}

	a := p.Assess(s, 62.2426, 25.7473)
	if a.SunElevation >= 0 {
		t.Errorf("sun elevation %.1f at 20:00 UTC February in Finland should be negative", a.SunElevation)
	}
	if !a.Illuminated && a.Rating != 0 {
		t.Errorf("shadowed satellite rated %d, want 0", a.Rating)
	}
}

func TestValidateLines(t *testing.T) {
	tests := []struct {
		name    string
		line1   string
		line2   string
		wantErr bool
	}{
		{"valid", issEntry.Line1, issEntry.Line2, false},
		{"short line1", "1 25544", issEntry.Line2, true},
		{"short line2", issEntry.Line1, "2 25544", true},
		{"swapped prefixes", issEntry.Line2, issEntry.Line1, true},
		{"line1 checksum off by one", corruptChecksum(issEntry.Line1), issEntry.Line2, true},
		{"line2 checksum off by one", issEntry.Line1, corruptChecksum(issEntry.Line2), true},
		{"line2 checksum not a digit", issEntry.Line1, issEntry.Line2[:68] + "X", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLines(tt.line1, tt.line2)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateLines error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// corruptChecksum bumps the mod-10 digit in column 69 so the line body
// no longer matches its stated checksum.
func corruptChecksum(line string) string {
	d := line[68] - '0'
	return line[:68] + string('0'+(d+1)%10)
}

func TestNewRejectsChecksumError(t *testing.T) {
	entry := issEntry
	entry.Line1 = corruptChecksum(entry.Line1)

	p := New(entry)
	if p.IsValid() {
		t.Fatal("entry with corrupted checksum reported valid")
	}
	if _, ok := p.Propagate(time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC), 62.2426, 25.7473); ok {
		t.Error("Propagate succeeded for entry with corrupted checksum")
	}
}

func BenchmarkPropagate(b *testing.B) {
	p := New(issEntry)
	at := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Propagate(at.Add(time.Duration(i)*time.Second), 62.2426, 25.7473)
	}
}

package passes

import (
	"fmt"
	"time"

	"github.com/skypass/skypass/internal/solar"
)

// Observer is a ground location passes are computed for.
type Observer struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ElevationM float64 `json:"elevation_m"`
	Name       string  `json:"location_name"`
}

// Params configures a pass search.
type Params struct {
	MinElevationDeg float64 `json:"min_elevation_deg"` // below this a satellite does not count as visible
	MaxDistanceKm   float64 `json:"max_distance_km"`   // passes whose peak range exceeds this are discarded
	HorizonHours    float64 `json:"hours_ahead"`       // forecast window length
	TZOffsetHours   int     `json:"timezone_offset"`   // fixed offset for local timestamps
}

// Location returns the fixed-offset zone used for local timestamps.
func (p Params) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", p.TZOffsetHours), p.TZOffsetHours*3600)
}

// Direction pairs a whole-degree azimuth with its compass label.
type Direction struct {
	AzimuthDeg int    `json:"azimuth"`
	Compass    string `json:"direction"`
}

// Pass describes one satellite visibility window over the observer.
// Immutable once emitted; ordering within a dataset is by start time.
type Pass struct {
	Satellite string `json:"satellite"`
	NORADID   int    `json:"norad_id"`

	StartUTC   time.Time `json:"start_time_utc"`
	StartLocal time.Time `json:"start_time_local"`
	PeakUTC    time.Time `json:"peak_time_utc"`
	PeakLocal  time.Time `json:"peak_time_local"`
	EndUTC     time.Time `json:"end_time_utc"`
	EndLocal   time.Time `json:"end_time_local"`

	PeakElevationDeg int `json:"peak_elevation"`
	PeakRangeKm      int `json:"peak_range_km"`
	DurationSeconds  int `json:"duration_seconds"`

	VisibilityRating   int            `json:"visibility_rating"`
	VisibilityCategory solar.Category `json:"visibility_category"`
	Sunlit             bool           `json:"sunlit"`

	Rise Direction `json:"rise"`
	// Movement is the direction of an interior sample; nil when the
	// refined window is too short to pick one.
	Movement *Direction `json:"movement,omitempty"`
}

// Progress is the state reported after each satellite finishes processing.
type Progress struct {
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	PassesFound int    `json:"passes_found"`
	Satellite   string `json:"satellite"`
}

// ProgressFunc receives a snapshot after each satellite completes.
// Invoked serially from the collecting goroutine.
type ProgressFunc func(Progress)

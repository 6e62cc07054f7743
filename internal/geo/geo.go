// Package geo provides the geometric and time math used by the pass finder:
// angular conversions, great-circle distance, observer-relative look angles
// against a sub-satellite point, Julian Date, and sidereal time.
//
// All functions treat the Earth as a sphere of radius 6371 km. Slant range
// and elevation use the ground-distance/altitude right-triangle
// approximation rather than a full ECEF vector difference, which is accurate
// enough for pass timing and direction labels.
package geo

import (
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used throughout (spherical model).
const EarthRadiusKm = 6371.0

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// DegreesToRadians converts degrees to radians.
func DegreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadiansToDegrees converts radians to degrees.
func RadiansToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Haversine returns the great-circle distance in km between two geodetic
// points given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := DegreesToRadians(lat1)
	φ2 := DegreesToRadians(lat2)
	dφ := DegreesToRadians(lat2 - lat1)
	dλ := DegreesToRadians(lon2 - lon1)

	a := math.Sin(dφ/2)*math.Sin(dφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return EarthRadiusKm * c
}

// SlantRange returns the observer-to-satellite distance in km, treating the
// satellite altitude as a vertical leg over the ground-distance chord.
func SlantRange(satLat, satLon, satAltKm, obsLat, obsLon float64) float64 {
	ground := Haversine(satLat, satLon, obsLat, obsLon)
	return math.Sqrt(ground*ground + satAltKm*satAltKm)
}

// Elevation returns the elevation angle in degrees of a satellite above the
// observer's horizon. Returns 90 when the sub-satellite point is within
// 0.1 km of the observer to avoid a degenerate atan2 near zero.
func Elevation(satLat, satLon, satAltKm, obsLat, obsLon float64) float64 {
	ground := Haversine(satLat, satLon, obsLat, obsLon)
	if ground < 0.1 {
		return 90.0
	}
	return RadiansToDegrees(math.Atan2(satAltKm, ground))
}

// Azimuth returns the compass bearing in degrees from the observer to the
// sub-satellite point, normalized to [0, 360). 0 = North, clockwise.
func Azimuth(satLat, satLon, obsLat, obsLon float64) float64 {
	φo := DegreesToRadians(obsLat)
	φs := DegreesToRadians(satLat)
	dλ := DegreesToRadians(satLon - obsLon)

	y := math.Sin(dλ) * math.Cos(φs)
	x := math.Cos(φo)*math.Sin(φs) - math.Sin(φo)*math.Cos(φs)*math.Cos(dλ)

	az := math.Mod(RadiansToDegrees(math.Atan2(y, x))+360.0, 360.0)
	return az
}

// compassLabels are the 8 sector labels, 45° wide, centered on each point.
var compassLabels = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// CompassLabel maps an azimuth in degrees to one of the 8 compass labels.
// Sector 0 is centered on north, so azimuths within ±22.5° of 0 map to "N".
func CompassLabel(azimuth float64) string {
	idx := int((azimuth+22.5)/45.0) % 8
	if idx < 0 {
		idx += 8
	}
	return compassLabels[idx]
}

// JulianDate converts a time.Time (UTC) to Julian Date.
// Uses the standard astronomical algorithm valid for dates after March 1, 4801 BC.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Adjust year/month for Jan/Feb (treat as months 13/14 of previous year).
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// GMST calculates Greenwich Mean Sidereal Time in radians for a given
// Julian Date. Uses the IAU-82 model as described in Vallado
// "Fundamentals of Astrodynamics".
//
// Formula (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// where T is Julian centuries of UT1 from J2000.0, result is in seconds of time.
func GMST(jd float64) float64 {
	tUT1 := (jd - j2000) / 36525.0

	// GMST in seconds of time.
	// 876600h = 876600 * 3600 = 3155760000 seconds.
	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	// Normalize to [0, 86400) seconds, then convert to radians.
	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2.0 * math.Pi
}

// GMSTAt is a convenience wrapper computing GMST for a UTC instant.
func GMSTAt(t time.Time) float64 {
	return GMST(JulianDate(t))
}

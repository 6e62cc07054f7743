// Package solar provides a low-precision solar ephemeris and the
// satellite-illumination and visibility-rating rules built on it.
//
// Position accuracy is on the order of 0.01°, which is sufficient for
// classifying twilight and illumination but not for precision ephemeris use.
package solar

import (
	"math"
	"time"

	"github.com/skypass/skypass/internal/geo"
)

// Position returns the topocentric solar elevation and azimuth in degrees
// for an observer at the given geodetic latitude/longitude.
//
// Method: mean longitude plus equation-of-center correction for the
// ecliptic longitude, mean obliquity for the equatorial conversion, and a
// GMST-derived local hour angle for the horizontal conversion.
func Position(t time.Time, lat, lon float64) (elevation, azimuth float64) {
	jd := geo.JulianDate(t)

	// Days from J2000.0.
	n := jd - 2451545.0

	// Mean longitude and mean anomaly of the Sun (degrees).
	L := math.Mod(280.460+0.9856474*n, 360.0)
	g := geo.DegreesToRadians(math.Mod(357.528+0.9856003*n, 360.0))

	// Ecliptic longitude with equation of center.
	λ := L + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)

	// Mean obliquity of the ecliptic.
	ε := geo.DegreesToRadians(23.439 - 0.0000004*n)

	// Equatorial coordinates.
	λrad := geo.DegreesToRadians(λ)
	α := geo.RadiansToDegrees(math.Atan2(math.Cos(ε)*math.Sin(λrad), math.Cos(λrad)))
	δ := math.Asin(math.Sin(ε) * math.Sin(λrad))

	// Local hour angle from GMST.
	gmstDeg := math.Mod(geo.RadiansToDegrees(geo.GMST(jd)), 360.0)
	lha := geo.DegreesToRadians(math.Mod(gmstDeg+lon-α+360.0, 360.0))

	// Horizontal coordinates.
	φ := geo.DegreesToRadians(lat)
	sinAlt := math.Sin(φ)*math.Sin(δ) + math.Cos(φ)*math.Cos(δ)*math.Cos(lha)
	elevation = geo.RadiansToDegrees(math.Asin(sinAlt))

	cosAz := (math.Sin(δ) - math.Sin(φ)*sinAlt) /
		(math.Cos(φ) * math.Cos(math.Asin(sinAlt)))
	cosAz = math.Max(-1, math.Min(1, cosAz))
	azimuth = geo.RadiansToDegrees(math.Acos(cosAz))

	if math.Sin(lha) > 0 {
		azimuth = 360.0 - azimuth
	}

	return elevation, azimuth
}

// Illuminated reports whether a satellite at the given altitude (km) is
// sunlit for the given solar elevation at the observer (degrees).
//
// The Earth's shadow cone half-angle as seen from the satellite is
// −asin(Re/(Re+alt)); the satellite sees the Sun while the solar elevation
// exceeds this negative threshold. Spherical Earth, no refraction, no
// penumbra.
func Illuminated(satAltKm, sunElevation float64) bool {
	shadowAngle := -geo.RadiansToDegrees(math.Asin(geo.EarthRadiusKm / (geo.EarthRadiusKm + satAltKm)))
	return sunElevation > shadowAngle
}

// Category is the four-level visibility classification.
type Category string

const (
	CategoryExcellent Category = "Excellent"
	CategoryGood      Category = "Good"
	CategoryFair      Category = "Fair"
	CategoryPoor      Category = "Poor"
)

// Assessment is the visibility quality derived from solar geometry and a
// satellite's elevation.
type Assessment struct {
	Rating       int // 0-100, 100 = best
	Category     Category
	Illuminated  bool
	SunElevation float64 // degrees, at the observer
}

// Rate scores viewing conditions 0-100. A satellite that is not sunlit
// rates 0/Poor regardless of geometry. Otherwise the score is a darkness
// component stepped at the civil/nautical/astronomical twilight thresholds
// plus a component linear in the satellite's elevation, each capped at 50.
func Rate(sunElevation float64, illuminated bool, satElevation float64) Assessment {
	a := Assessment{
		Illuminated:  illuminated,
		SunElevation: sunElevation,
		Category:     CategoryPoor,
	}

	if !illuminated {
		return a
	}

	var darkness float64
	switch {
	case sunElevation > 0:
		darkness = 0 // daylight
	case sunElevation > -6:
		darkness = 15 // civil twilight
	case sunElevation > -12:
		darkness = 30 // nautical twilight
	case sunElevation > -18:
		darkness = 40 // astronomical twilight
	default:
		darkness = 50 // full darkness
	}

	height := math.Min(satElevation/90.0*50.0, 50.0)
	if height < 0 {
		height = 0
	}

	a.Rating = int(math.Min(darkness+height, 100.0))
	a.Category = categoryFor(a.Rating)
	return a
}

func categoryFor(rating int) Category {
	switch {
	case rating >= 75:
		return CategoryExcellent
	case rating >= 50:
		return CategoryGood
	case rating >= 25:
		return CategoryFair
	default:
		return CategoryPoor
	}
}

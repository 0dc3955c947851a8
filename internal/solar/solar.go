// Package solar computes the daily solar snapshot the scheduler anchors
// events to: sunrise, sunset, civil dawn, and civil dusk, all as UTC
// minute-of-day values for a given calendar date and location.
//
// Sunrise/sunset reuse github.com/nathan-osman/go-sunrise, the same
// library wheelibin's schedule service uses for its day/night transitions.
// That library only exposes the standard −0.833° horizon, so civil dawn
// and dusk (−6°) are computed here with the same underlying hour-angle
// solver at the different depression angle — there is no third-party
// package in the reference corpus that parameterizes the angle.
package solar

import (
	"math"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

const civilDepressionDegrees = 6.0

// Compute returns the four UTC minute-of-day anchors for the given
// calendar date and location. tz is accepted for signature parity with
// the spec's solar_compute(y, mo, d, lat, lon, tz=0) contract but the core
// always calls this with tz=0; a non-zero value is rejected to keep the
// strictly-UTC invariant visible at the call site.
func Compute(y int, mo time.Month, d int, lat, lon float64, tz int) (model SnapshotMinutes, ok bool) {
	if tz != 0 {
		return SnapshotMinutes{}, false
	}

	sunriseT, sunsetT := sunrise.SunriseSunset(lat, lon, y, mo, d)
	if sunriseT.IsZero() || sunsetT.IsZero() {
		return SnapshotMinutes{}, false
	}

	dawnT, duskT, ok := civilTwilight(y, mo, d, lat, lon)
	if !ok {
		return SnapshotMinutes{}, false
	}

	return SnapshotMinutes{
		SunriseMinute:   minuteOfDay(sunriseT),
		SunsetMinute:    minuteOfDay(sunsetT),
		CivilDawnMinute: minuteOfDay(dawnT),
		CivilDuskMinute: minuteOfDay(duskT),
	}, true
}

// SnapshotMinutes mirrors model.SolarSnapshot; kept distinct so this
// package has no dependency on internal/model, preserving it as a leaf.
type SnapshotMinutes struct {
	SunriseMinute   int
	SunsetMinute    int
	CivilDawnMinute int
	CivilDuskMinute int
}

func minuteOfDay(t time.Time) int {
	u := t.UTC()
	return u.Hour()*60 + u.Minute()
}

// civilTwilight computes the morning (dawn) and evening (dusk) crossing
// of the −6° solar altitude, using the same NOAA/Meeus hour-angle formula
// go-sunrise applies at −0.833°, generalized to an arbitrary depression
// angle. Returns ok=false for locations experiencing polar day/night at
// this depression, mirroring go-sunrise's own zero-time convention.
func civilTwilight(y int, mo time.Month, d int, lat, lon float64) (dawn, dusk time.Time, ok bool) {
	date := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	jday := julianDay(date)

	meanAnomaly := 0.9856*(jday-2451545.0) - 3.289
	meanAnomalyRad := deg2rad(meanAnomaly)

	trueLongitude := meanAnomaly + 1.916*math.Sin(meanAnomalyRad) + 0.020*math.Sin(2*meanAnomalyRad) + 282.634
	trueLongitude = normalizeDegrees(trueLongitude)

	sinDecl := 0.39782 * math.Sin(deg2rad(trueLongitude))
	decl := math.Asin(clamp(sinDecl, -1, 1))

	cosH := (math.Sin(deg2rad(-civilDepressionDegrees)) - math.Sin(deg2rad(lat))*math.Sin(decl)) /
		(math.Cos(deg2rad(lat)) * math.Cos(decl))

	if cosH < -1 || cosH > 1 {
		return time.Time{}, time.Time{}, false
	}
	hourAngle := rad2deg(math.Acos(cosH))

	// Equation of time correction, same approximation go-sunrise-style
	// solvers use, expressed in minutes.
	eqTime := 229.18 * (0.000075 + 0.001868*math.Cos(meanAnomalyRad) - 0.032077*math.Sin(meanAnomalyRad) -
		0.014615*math.Cos(2*meanAnomalyRad) - 0.040849*math.Sin(2*meanAnomalyRad))

	solarNoonUTCMinutes := 720.0 - 4.0*lon - eqTime

	dawnMinutes := solarNoonUTCMinutes - 4.0*hourAngle
	duskMinutes := solarNoonUTCMinutes + 4.0*hourAngle

	dawn = minutesToTime(date, dawnMinutes)
	dusk = minutesToTime(date, duskMinutes)
	return dawn, dusk, true
}

func minutesToTime(day time.Time, minutes float64) time.Time {
	wrapped := math.Mod(minutes, 1440)
	if wrapped < 0 {
		wrapped += 1440
	}
	return day.Add(time.Duration(wrapped * float64(time.Minute)))
}

func julianDay(t time.Time) float64 {
	return float64(t.Unix())/86400.0 + 2440587.5
}

func deg2rad(d float64) float64 { return d * math.Pi / 180.0 }
func rad2deg(r float64) float64 { return r * 180.0 / math.Pi }

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

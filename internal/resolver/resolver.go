// Package resolver implements the pure time-resolution function (§4.2):
// resolving a When expression against an optional SolarSnapshot to a UTC
// minute-of-day. Grounded on original_source/firmware/src/resolve_when.cpp
// — no I/O, no globals, no hardware access, stateless and deterministic.
package resolver

import "github.com/thatsimonsguy/coopd/internal/model"

// Resolve maps when against snapshot to a minute of day in [0,1439], or
// ok=false if the When is disabled or anchored to a solar reference with
// no snapshot available.
func Resolve(when model.When, snapshot *model.SolarSnapshot) (minute int, ok bool) {
	base, ok := baseMinute(when.Ref, snapshot)
	if !ok {
		return 0, false
	}
	return normalize(base + int(when.OffsetMinutes)), true
}

func baseMinute(ref model.SolarRef, snapshot *model.SolarSnapshot) (int, bool) {
	switch ref {
	case model.RefNone:
		return 0, false
	case model.RefMidnight:
		return 0, true
	case model.RefSolarSunrise:
		if snapshot == nil {
			return 0, false
		}
		return snapshot.SunriseMinute, true
	case model.RefSolarSunset:
		if snapshot == nil {
			return 0, false
		}
		return snapshot.SunsetMinute, true
	case model.RefCivilDawn:
		if snapshot == nil {
			return 0, false
		}
		return snapshot.CivilDawnMinute, true
	case model.RefCivilDusk:
		if snapshot == nil {
			return 0, false
		}
		return snapshot.CivilDuskMinute, true
	default:
		return 0, false
	}
}

func normalize(m int) int {
	m %= 1440
	if m < 0 {
		m += 1440
	}
	return m
}

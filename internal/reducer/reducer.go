// Package reducer implements the backward-looking state reducer (§4.3):
// given the full event table and the current UTC minute, compute each
// device's governing action and the absolute epoch of the event that set
// it. Grounded on original_source/firmware/src/state_reducer.cpp.
package reducer

import (
	"github.com/thatsimonsguy/coopd/internal/model"
	"github.com/thatsimonsguy/coopd/internal/resolver"
)

// Reduce iterates the full capacity of events (callers MUST pass the raw
// table, not a compacted view — empty slots are skipped by refnum, never
// by position) and returns the governing action per device as of
// nowMinute. todayMidnightEpoch is the UTC epoch of 00:00 on the current
// date, used to convert the governing minute into an absolute epoch.
func Reduce(events []model.Event, snapshot *model.SolarSnapshot, nowMinute int, todayMidnightEpoch int64) model.ReducedState {
	var out model.ReducedState
	var bestMinute [model.MaxDevices]int
	var haveBest [model.MaxDevices]bool

	for _, ev := range events {
		if ev.Refnum == 0 {
			continue
		}
		if int(ev.DeviceID) >= model.MaxDevices {
			continue
		}

		minute, ok := resolver.Resolve(ev.When, snapshot)
		if !ok {
			continue
		}
		if minute > nowMinute {
			continue
		}

		id := ev.DeviceID
		if !haveBest[id] || minute >= bestMinute[id] {
			bestMinute[id] = minute
			haveBest[id] = true
			out.HasAction[id] = true
			out.Action[id] = ev.Action
			out.WhenEpoch[id] = todayMidnightEpoch + int64(minute)*60
		}
	}

	return out
}

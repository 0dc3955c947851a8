package reducer

import (
	"testing"

	"github.com/thatsimonsguy/coopd/internal/model"
)

func TestReduce_EmptyTableYieldsNoAction(t *testing.T) {
	out := Reduce(make([]model.Event, model.MaxEvents), nil, 500, 0)
	for i := 0; i < model.MaxDevices; i++ {
		if out.HasAction[i] {
			t.Errorf("device %d has action with empty table", i)
		}
	}
}

func TestReduce_FutureEventsIgnored(t *testing.T) {
	events := make([]model.Event, model.MaxEvents)
	events[0] = model.Event{
		Refnum: 1, DeviceID: model.DeviceDoor, Action: model.ActionOn,
		When: model.When{Ref: model.RefMidnight, OffsetMinutes: 600},
	}
	out := Reduce(events, nil, 500, 0) // now_minute 500 < event minute 600
	if out.HasAction[model.DeviceDoor] {
		t.Errorf("future event should not govern")
	}
}

func TestReduce_LatestPastEventWins(t *testing.T) {
	events := make([]model.Event, model.MaxEvents)
	events[0] = model.Event{
		Refnum: 1, DeviceID: model.DeviceRelay1, Action: model.ActionOn,
		When: model.When{Ref: model.RefMidnight, OffsetMinutes: 100},
	}
	events[1] = model.Event{
		Refnum: 2, DeviceID: model.DeviceRelay1, Action: model.ActionOff,
		When: model.When{Ref: model.RefMidnight, OffsetMinutes: 300},
	}
	out := Reduce(events, nil, 500, 86400)
	if !out.HasAction[model.DeviceRelay1] {
		t.Fatalf("expected a governing action")
	}
	if out.Action[model.DeviceRelay1] != model.ActionOff {
		t.Errorf("action = %v, want Off (the later event)", out.Action[model.DeviceRelay1])
	}
	wantEpoch := int64(86400) + 300*60
	if out.WhenEpoch[model.DeviceRelay1] != wantEpoch {
		t.Errorf("when epoch = %d, want %d", out.WhenEpoch[model.DeviceRelay1], wantEpoch)
	}
}

func TestReduce_TiesResolveToLaterIterationOrder(t *testing.T) {
	events := make([]model.Event, model.MaxEvents)
	events[0] = model.Event{
		Refnum: 1, DeviceID: model.DeviceLED, Action: model.ActionOn,
		When: model.When{Ref: model.RefMidnight, OffsetMinutes: 200},
	}
	events[1] = model.Event{
		Refnum: 2, DeviceID: model.DeviceLED, Action: model.ActionOff,
		When: model.When{Ref: model.RefMidnight, OffsetMinutes: 200},
	}
	out := Reduce(events, nil, 500, 0)
	if out.Action[model.DeviceLED] != model.ActionOff {
		t.Errorf("tie should resolve to the later-encountered event (refnum 2), got %v", out.Action[model.DeviceLED])
	}
}

func TestReduce_InclusiveAtNowMinute(t *testing.T) {
	events := make([]model.Event, model.MaxEvents)
	events[0] = model.Event{
		Refnum: 1, DeviceID: model.DeviceDoor, Action: model.ActionOn,
		When: model.When{Ref: model.RefMidnight, OffsetMinutes: 500},
	}
	out := Reduce(events, nil, 500, 0)
	if !out.HasAction[model.DeviceDoor] {
		t.Errorf("event resolving exactly to now_minute must govern")
	}
}

func TestReduce_DeviceIDOutOfRangeIgnored(t *testing.T) {
	events := make([]model.Event, model.MaxEvents)
	events[0] = model.Event{
		Refnum: 1, DeviceID: model.DeviceID(model.MaxDevices + 5), Action: model.ActionOn,
		When: model.When{Ref: model.RefMidnight, OffsetMinutes: 0},
	}
	out := Reduce(events, nil, 500, 0)
	for i := 0; i < model.MaxDevices; i++ {
		if out.HasAction[i] {
			t.Errorf("out-of-range device id should never set an action (slot %d)", i)
		}
	}
}

func TestReduce_SkipsResolverNoMinute(t *testing.T) {
	events := make([]model.Event, model.MaxEvents)
	events[0] = model.Event{
		Refnum: 1, DeviceID: model.DeviceRelay2, Action: model.ActionOn,
		When: model.When{Ref: model.RefSolarSunrise, OffsetMinutes: 0},
	}
	out := Reduce(events, nil, 500, 0) // no snapshot -> resolver returns None
	if out.HasAction[model.DeviceRelay2] {
		t.Errorf("a solar-anchored event with no snapshot must be silently skipped")
	}
}

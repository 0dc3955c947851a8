package relay

import (
	"testing"
	"time"

	"github.com/thatsimonsguy/coopd/internal/gpio"
	"github.com/thatsimonsguy/coopd/internal/model"
	"github.com/thatsimonsguy/coopd/internal/timesource"
)

func newTestRelay(clock timesource.Source) (*Relay, *gpio.FakeChip) {
	chip := gpio.NewFakeChip()
	set, _ := chip.RequestOutput(1, "relay1_set", true)
	rst, _ := chip.RequestOutput(2, "relay1_rst", true)
	return New("relay1", model.DeviceRelay1, set, rst, clock), chip
}

func TestInit_ForcesOffAndIsIdempotent(t *testing.T) {
	clock := timesource.NewFake(time.Unix(0, 0))
	r, chip := newTestRelay(clock)

	r.Init()
	r.Init()

	if r.GetState() != model.StateOff {
		t.Errorf("state = %v, want Off", r.GetState())
	}
	if len(chip.Lines["relay1_rst"].WriteHistory) != 1 {
		t.Errorf("duplicate Init should not re-issue hardware writes, history: %v", chip.Lines["relay1_rst"].WriteHistory)
	}
}

func TestScheduledState_IgnoredWhenStaleRelativeToOverride(t *testing.T) {
	clock := timesource.NewFake(timesource.EpochBase.Add(1000 * time.Second))
	r, _ := newTestRelay(clock)
	r.Init()

	r.SetState(model.StateOn) // override epoch = 1000

	r.ScheduledState(model.StateOff, 500) // stale: 500 <= 1000
	if r.GetState() != model.StateOn {
		t.Errorf("stale scheduled command should be ignored, got %v", r.GetState())
	}

	r.ScheduledState(model.StateOff, 2000) // fresh: 2000 > 1000
	if r.GetState() != model.StateOff {
		t.Errorf("fresh scheduled command should apply, got %v", r.GetState())
	}
}

func TestSetState_DuplicateCommandIssuesNoHardwareWrite(t *testing.T) {
	clock := timesource.NewFake(time.Unix(0, 0))
	r, chip := newTestRelay(clock)
	r.Init() // -> Off, 1 write to rst

	r.SetState(model.StateOff) // duplicate: no new writes
	if len(chip.Lines["relay1_rst"].WriteHistory) != 1 {
		t.Errorf("duplicate SetState should not issue hardware writes, history: %v", chip.Lines["relay1_rst"].WriteHistory)
	}
}

func TestIsBusy_AlwaysFalse(t *testing.T) {
	clock := timesource.NewFake(time.Unix(0, 0))
	r, _ := newTestRelay(clock)
	if r.IsBusy() {
		t.Errorf("relay should never report busy")
	}
}

package device

import (
	"testing"

	"github.com/thatsimonsguy/coopd/internal/model"
)

type stubDevice struct {
	id   model.DeviceID
	busy bool
}

func (s *stubDevice) Name() string                                     { return s.id.String() }
func (s *stubDevice) ID() model.DeviceID                               { return s.id }
func (s *stubDevice) Init()                                            {}
func (s *stubDevice) GetState() model.State                            { return model.StateUnknown }
func (s *stubDevice) SetState(model.State)                             {}
func (s *stubDevice) ScheduledState(model.State, int64)                {}
func (s *stubDevice) StateString(st model.State) string                { return st.String() }
func (s *stubDevice) Tick(int64)                                       {}
func (s *stubDevice) IsBusy() bool                                     { return s.busy }

func TestRegistry_LookupAndEnumerate(t *testing.T) {
	r := NewRegistry()
	door := &stubDevice{id: model.DeviceDoor}
	led := &stubDevice{id: model.DeviceLED}
	r.Register(door)
	r.Register(led)

	if r.Lookup(model.DeviceDoor) != door {
		t.Errorf("Lookup(door) did not return registered door device")
	}
	if r.Lookup(model.DeviceLock) != nil {
		t.Errorf("Lookup of unregistered device should be nil")
	}

	ids := r.Enumerate()
	if len(ids) != 2 {
		t.Fatalf("Enumerate returned %d ids, want 2", len(ids))
	}
	if ids[0] != model.DeviceDoor || ids[1] != model.DeviceLED {
		t.Errorf("Enumerate order = %v, want [door, led] in id order", ids)
	}
}

func TestRegistry_DevicesBusyIsOrOfAll(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDevice{id: model.DeviceDoor, busy: false})
	r.Register(&stubDevice{id: model.DeviceLock, busy: false})
	if r.DevicesBusy() {
		t.Errorf("no device busy, DevicesBusy should be false")
	}

	r.Register(&stubDevice{id: model.DeviceLED, busy: true})
	if !r.DevicesBusy() {
		t.Errorf("one device busy, DevicesBusy should be true")
	}
}

func TestRegistry_LookupOutOfRangeIsNil(t *testing.T) {
	r := NewRegistry()
	if r.Lookup(model.DeviceID(200)) != nil {
		t.Errorf("out-of-range lookup should return nil, not panic")
	}
}

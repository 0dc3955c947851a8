// Package device defines the device abstraction (§4.6) and the static
// registry that enumerates, looks up, ticks, and aggregates busy state
// across the fixed set of actuators (§9: "Hardware-driver virtual table").
//
// The spec's function-pointer struct is expressed here as a Go interface
// with a small fixed set of implementations (door, lock, relay, LED) —
// "a tagged variant per device kind or a trait/interface with a small
// fixed set of implementations," per the design note — rather than a
// dynamic-dispatch plugin system. The registry is a sparse array indexed
// directly by model.DeviceID, generalizing the teacher's
// internal/controller.Device struct-with-func-vars shape to an interface
// so door/lock/relay/LED can each own very different tick behavior.
package device

import "github.com/thatsimonsguy/coopd/internal/model"

// Device is the capability set every actuator implements. ScheduledState
// and Tick are documented as optional in the spec; Go expresses that as a
// no-op default rather than a nil-checked function pointer, so every
// implementation provides all methods and simply no-ops where the spec
// allows omission.
type Device interface {
	Name() string
	ID() model.DeviceID
	Init()
	GetState() model.State
	SetState(s model.State)
	ScheduledState(s model.State, whenEpoch int64)
	StateString(s model.State) string
	Tick(nowMs int64)
	IsBusy() bool
}

// Registry is the static sparse id-indexed device table (§4.6, §9).
type Registry struct {
	devices [model.MaxDevices]Device
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs d at its own ID's slot.
func (r *Registry) Register(d Device) {
	r.devices[d.ID()] = d
}

// Lookup returns the device at id, or nil if no device is registered
// there.
func (r *Registry) Lookup(id model.DeviceID) Device {
	if int(id) >= model.MaxDevices {
		return nil
	}
	return r.devices[id]
}

// Enumerate yields the IDs of registered devices only, in ID order.
func (r *Registry) Enumerate() []model.DeviceID {
	var ids []model.DeviceID
	for i, d := range r.devices {
		if d != nil {
			ids = append(ids, model.DeviceID(i))
		}
	}
	return ids
}

// Tick advances every registered device's non-blocking state machine.
func (r *Registry) Tick(nowMs int64) {
	for _, d := range r.devices {
		if d != nil {
			d.Tick(nowMs)
		}
	}
}

// DevicesBusy is the single authority gating sleep entry: true if any
// registered device must keep the CPU awake.
func (r *Registry) DevicesBusy() bool {
	for _, d := range r.devices {
		if d != nil && d.IsBusy() {
			return true
		}
	}
	return false
}

// InitAll runs one-shot hardware and state-machine initialization for
// every registered device.
func (r *Registry) InitAll() {
	for _, d := range r.devices {
		if d != nil {
			d.Init()
		}
	}
}

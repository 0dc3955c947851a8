// Package relay implements the two latching-relay devices (§4.9): relay1
// and relay2. Each tracks the epoch of its last manual override; scheduled
// commands older than that override are stale and ignored. Override
// lifetime is purely time-based — there is no boolean override flag to
// clear or expire.
//
// Grounded on original_source/firmware/src/devices/relay_device.cpp.
package relay

import (
	"github.com/rs/zerolog/log"
	"github.com/thatsimonsguy/coopd/internal/gpio"
	"github.com/thatsimonsguy/coopd/internal/model"
	"github.com/thatsimonsguy/coopd/internal/timesource"
)

// Relay drives a single latching relay via separate set/reset coil lines.
type Relay struct {
	name     string
	id       model.DeviceID
	set, rst gpio.Line
	clock    timesource.Source

	state             model.State
	lastOverrideEpoch int64
}

// New constructs a Relay. set and rst are the coil-drive lines for the
// latching relay's two directions; clock supplies the override epoch for
// manual SetState calls.
func New(name string, id model.DeviceID, set, rst gpio.Line, clock timesource.Source) *Relay {
	return &Relay{name: name, id: id, set: set, rst: rst, clock: clock, state: model.StateUnknown}
}

func (r *Relay) Name() string      { return r.name }
func (r *Relay) ID() model.DeviceID { return r.id }

// Init forces the relay to a known OFF state, safe to call multiple times.
// The original's relay_device_init() goes through relayX_set_state(), which
// also records the override epoch via rtc_get_epoch(); this calls the
// hardware layer directly instead, since at boot the RTC epoch is either
// unset or 0 either way and there is no prior override state to protect.
func (r *Relay) Init() {
	r.setStateInternal(model.StateOff)
}

func (r *Relay) GetState() model.State {
	return r.state
}

// SetState is the manual/immediate control path. It records the override
// epoch unconditionally, then applies the hardware transition.
func (r *Relay) SetState(s model.State) {
	epoch, _ := r.clock.GetEpoch()
	r.setOverride(int64(epoch))
	r.setStateInternal(s)
}

// SetStateAt is SetState with an explicit override epoch, used by callers
// (e.g. the console) that already know the current RTC time and want to
// avoid a second clock read.
func (r *Relay) SetStateAt(s model.State, overrideEpoch int64) {
	r.setOverride(overrideEpoch)
	r.setStateInternal(s)
}

// ScheduledState is the scheduled-control path. Commands whose epoch is at
// or before the last manual override are stale and ignored; the override
// expires automatically the first time a later schedule event arrives.
func (r *Relay) ScheduledState(s model.State, whenEpoch int64) {
	if whenEpoch <= r.lastOverrideEpoch {
		return
	}
	r.setStateInternal(s)
}

func (r *Relay) setOverride(epoch int64) {
	r.lastOverrideEpoch = epoch
}

// setStateInternal is the hardware layer: it never touches override state,
// applies duplicate-state filtering, and drives the coil only on an actual
// transition.
func (r *Relay) setStateInternal(s model.State) {
	if s == r.state {
		return
	}
	r.state = s

	switch s {
	case model.StateOn:
		r.set.Write(true)
		r.rst.Write(false)
	case model.StateOff:
		r.rst.Write(true)
		r.set.Write(false)
	}
	log.Debug().Str("relay", r.name).Str("state", r.StateString(s)).Msg("relay transitioned")
}

func (r *Relay) StateString(s model.State) string {
	return s.String()
}

// Tick is a no-op: relays have no non-blocking motion to advance.
func (r *Relay) Tick(nowMs int64) {}

// IsBusy is always false: relay transitions are instantaneous from the
// control loop's perspective.
func (r *Relay) IsBusy() bool { return false }

// Package lock implements the lock state machine (§4.8): a pulse engine
// with a hard-bounded energize time, enforced independent of config.
// Grounded on original_source/firmware/src/devices/relay_device.cpp's
// sibling lock-pulse calls in main_firmware.cpp, and on the teacher's
// func-var GPIO seam (internal/controller/device.go) for the hardware
// boundary.
package lock

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thatsimonsguy/coopd/internal/gpio"
	"github.com/thatsimonsguy/coopd/internal/model"
)

// MaxPulseMs is the hard cap on lock-actuator energize time, enforced by
// this module regardless of any configured lock_pulse_ms.
const MaxPulseMs = 1500

type motionState uint8

const (
	stateIdle motionState = iota
	stateEngaging
	stateReleasing
)

// Lock drives a single electromechanical lock via a direction+enable pair
// of GPIO lines, pulsed for a configured (capped) duration.
type Lock struct {
	name               string
	id                 model.DeviceID
	dirA, dirB, enable gpio.Line
	pulseMs            int64

	state   motionState
	t0      int64
	armed   bool
	settled model.State
}

// New constructs a Lock. pulseMs is the configured pulse duration; it is
// clamped to MaxPulseMs regardless of the caller's value, per the safety
// requirement that the cap "MUST be enforced by the module itself and
// MUST NOT depend on higher-level scheduling."
func New(name string, id model.DeviceID, dirA, dirB, enable gpio.Line, pulseMs int64) *Lock {
	if pulseMs > MaxPulseMs {
		pulseMs = MaxPulseMs
	}
	return &Lock{name: name, id: id, dirA: dirA, dirB: dirB, enable: enable, pulseMs: pulseMs, settled: model.StateUnknown}
}

func (l *Lock) Name() string      { return l.name }
func (l *Lock) ID() model.DeviceID { return l.id }

// Init forces the lock to Idle with hardware de-energized; it does not
// actuate a pulse, since the settled state at power-up is unknown without
// position sensing (explicitly out of scope).
func (l *Lock) Init() {
	l.forceDeenergize()
	l.settled = model.StateUnknown
}

// SetState maps the generic Device.SetState contract onto Engage (On =
// locked) / Release (Off = unlocked), run as a blocking pulse so the
// settled state is observable immediately after the call returns — the
// same bring-up-variant guarantee EngageBlocking/ReleaseBlocking provide.
func (l *Lock) SetState(s model.State) {
	if s == model.StateOn {
		l.EngageBlocking()
	} else {
		l.ReleaseBlocking()
	}
}

// ScheduledState applies the governing schedule action unconditionally;
// the lock has no override-vs-schedule arbitration of its own (that is
// the relay's concern) — it simply tracks the door's commands.
func (l *Lock) ScheduledState(s model.State, whenEpoch int64) {
	l.SetState(s)
}

func (l *Lock) StateString(s model.State) string {
	return s.String()
}

// Engage energizes the lock in the locking direction. Ignored unless Idle.
func (l *Lock) Engage() {
	l.start(stateEngaging)
}

// Release energizes the lock in the unlocking direction. Ignored unless
// Idle.
func (l *Lock) Release() {
	l.start(stateReleasing)
}

func (l *Lock) start(target motionState) {
	if l.state != stateIdle {
		return
	}
	l.state = target
	l.armed = false

	locking := target == stateEngaging
	l.dirA.Write(locking)
	l.dirB.Write(!locking)
	l.enable.Write(true)

	log.Debug().Str("target", l.stateName(target)).Msg("lock pulse started")
}

// Tick advances the pulse timer. On expiry (hard-capped at MaxPulseMs
// regardless of configuration) it de-energizes the hardware, records the
// settled state, and returns to Idle.
func (l *Lock) Tick(nowMs int64) {
	if l.state == stateIdle {
		return
	}
	if !l.armed {
		l.t0 = nowMs
		l.armed = true
		return
	}

	limit := l.pulseMs
	if limit > MaxPulseMs {
		limit = MaxPulseMs
	}
	if nowMs-l.t0 >= limit {
		l.deenergize()
	}
}

func (l *Lock) deenergize() {
	l.enable.Write(false)
	l.dirA.Write(false)
	l.dirB.Write(false)

	if l.state == stateEngaging {
		l.settled = model.StateOn
	} else {
		l.settled = model.StateOff
	}
	l.state = stateIdle
	l.armed = false
	log.Debug().Str("settled", l.settled.String()).Msg("lock pulse complete")
}

// EngageBlocking is the bring-up variant's blocking call: it guarantees
// on return that either the lock has engaged and de-energized, or the
// actuator has been de-energized regardless. This is one of the two
// operations in the spec explicitly required to stall the main loop
// (§5): "the pulse function must guarantee that on return the actuator
// is de-energized even on any internal failure path."
func (l *Lock) EngageBlocking() {
	l.blockingPulse(l.Engage)
}

// ReleaseBlocking is EngageBlocking's counterpart for unlocking.
func (l *Lock) ReleaseBlocking() {
	l.blockingPulse(l.Release)
}

func (l *Lock) blockingPulse(start func()) {
	start()
	deadline := time.Now().Add(time.Duration(MaxPulseMs+50) * time.Millisecond)
	t0 := nowMillis()
	l.t0 = t0
	l.armed = true
	for l.state != stateIdle {
		if time.Now().After(deadline) {
			l.forceDeenergize()
			return
		}
		l.Tick(nowMillis())
		time.Sleep(time.Millisecond)
	}
}

// forceDeenergize guarantees de-energization on any internal failure
// path, independent of which motion state the lock believed it was in.
func (l *Lock) forceDeenergize() {
	l.enable.Write(false)
	l.dirA.Write(false)
	l.dirB.Write(false)
	l.state = stateIdle
	l.armed = false
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (l *Lock) GetState() model.State {
	return l.settled
}

func (l *Lock) IsBusy() bool {
	return l.state != stateIdle
}

func (l *Lock) stateName(s motionState) string {
	switch s {
	case stateEngaging:
		return "engaging"
	case stateReleasing:
		return "releasing"
	default:
		return "idle"
	}
}

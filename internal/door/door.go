// Package door implements the door motion state machine (§4.7):
// safety-sequenced blocking unlock-before-move, travel-time dead
// reckoning, post-close lock engagement, and manual mid-motion reversal
// with electrical dead-time.
//
// Grounded on original_source/code/src/devices/door_state_machine.cpp for
// the motion states and LED-mode-per-state mapping, with one deliberate
// departure: the original's PREOPEN_UNLOCK/PRECLOSE_UNLOCK states poll
// lock_sm_busy() non-blockingly. This implementation instead calls the
// lock's blocking release/engage directly from request(), per the design
// note's explicit "door always unlocks before moving via a blocking
// lock-release call" — those two states are intentionally absent here.
package door

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thatsimonsguy/coopd/internal/gpio"
	"github.com/thatsimonsguy/coopd/internal/led"
	"github.com/thatsimonsguy/coopd/internal/lock"
	"github.com/thatsimonsguy/coopd/internal/model"
)

// Motion is the door's motion state.
type Motion uint8

const (
	MotionIdleUnknown Motion = iota
	MotionIdleOpen
	MotionIdleClosed
	MotionMovingOpen
	MotionMovingClose
	MotionPostcloseLock
)

func (m Motion) String() string {
	switch m {
	case MotionIdleOpen:
		return "idle_open"
	case MotionIdleClosed:
		return "idle_closed"
	case MotionMovingOpen:
		return "moving_open"
	case MotionMovingClose:
		return "moving_close"
	case MotionPostcloseLock:
		return "postclose_lock"
	default:
		return "idle_unknown"
	}
}

// deadTime is the fixed electrical dead-time inserted between a hard stop
// and a reversed direction command, preventing H-bridge shoot-through.
const deadTime = 100 * time.Millisecond

const (
	minSettleMs = 250
	maxSettleMs = 5000
)

// Motor is the door's direction+enable hardware seam.
type Motor struct {
	dirOpen, dirClose, enable gpio.Line
}

func NewMotor(dirOpen, dirClose, enable gpio.Line) *Motor {
	return &Motor{dirOpen: dirOpen, dirClose: dirClose, enable: enable}
}

func (m *Motor) setOpenDir() {
	m.dirClose.Write(false)
	m.dirOpen.Write(true)
}

func (m *Motor) setCloseDir() {
	m.dirOpen.Write(false)
	m.dirClose.Write(true)
}

func (m *Motor) enableDrive() {
	m.enable.Write(true)
}

func (m *Motor) stop() {
	m.enable.Write(false)
	m.dirOpen.Write(false)
	m.dirClose.Write(false)
}

// Door is the door motion state machine.
type Door struct {
	name string
	id   model.DeviceID

	motor *Motor
	lock  *lock.Lock
	led   *led.LED

	travelMs int64
	settleMs int64

	motion  Motion
	settled model.State
	t0      int64
	armed   bool

	reversals uint64
}

// New constructs a Door. travelMs is the dead-reckoned motor travel time;
// settleMs is the post-close settle window before lock engagement, clamped
// to [250, 5000] ms.
func New(name string, id model.DeviceID, motor *Motor, l *lock.Lock, statusLED *led.LED, travelMs, settleMs int64) *Door {
	if settleMs < minSettleMs {
		settleMs = minSettleMs
	}
	if settleMs > maxSettleMs {
		settleMs = maxSettleMs
	}
	return &Door{
		name: name, id: id,
		motor: motor, lock: l, led: statusLED,
		travelMs: travelMs, settleMs: settleMs,
		settled: model.StateUnknown,
	}
}

func (d *Door) Name() string      { return d.name }
func (d *Door) ID() model.DeviceID { return d.id }

func (d *Door) Init() {
	d.motor.stop()
	d.settled = model.StateUnknown
	d.t0 = 0
	d.armed = false
	d.setMotion(MotionIdleUnknown)
}

func (d *Door) GetState() model.State {
	return d.settled
}

// SetState maps the generic Device.SetState contract onto request: On
// means open, Off means closed.
func (d *Door) SetState(s model.State) {
	d.request(s)
}

// ScheduledState is treated identically to SetState: the spec's
// schedule(state, when_epoch) is "treated as request(state)."
func (d *Door) ScheduledState(s model.State, whenEpoch int64) {
	d.request(s)
}

func (d *Door) StateString(s model.State) string {
	return s.String()
}

// request aborts any active motion, then blocks on unlocking the door
// before committing to the requested direction.
func (d *Door) request(s model.State) {
	switch d.motion {
	case MotionMovingOpen, MotionMovingClose:
		d.motor.stop()
		d.setMotion(MotionIdleUnknown)
	}

	d.t0 = 0
	d.armed = false
	d.settled = model.StateUnknown

	d.lock.ReleaseBlocking()

	if s == model.StateOn {
		d.motor.setOpenDir()
		d.motor.enableDrive()
		d.setMotion(MotionMovingOpen)
	} else {
		d.motor.setCloseDir()
		d.motor.enableDrive()
		d.setMotion(MotionMovingClose)
	}
}

// Tick advances travel-time dead reckoning and the post-close settle/lock
// sequence.
func (d *Door) Tick(nowMs int64) {
	switch d.motion {
	case MotionMovingOpen:
		if !d.armed {
			d.t0 = nowMs
			d.armed = true
			return
		}
		if nowMs-d.t0 >= d.travelMs {
			d.motor.stop()
			d.t0 = 0
			d.armed = false
			d.settled = model.StateOn
			d.setMotion(MotionIdleOpen)
		}

	case MotionMovingClose:
		if !d.armed {
			d.t0 = nowMs
			d.armed = true
			return
		}
		if nowMs-d.t0 >= d.travelMs {
			d.motor.stop()
			d.t0 = nowMs
			d.armed = true
			d.setMotion(MotionPostcloseLock)
		}

	case MotionPostcloseLock:
		if nowMs-d.t0 >= d.settleMs {
			d.lock.EngageBlocking()
			d.settled = model.StateOff
			d.armed = false
			d.setMotion(MotionIdleClosed)
		}
	}
}

// Toggle is the manual reversal path consumed by the door-switch debounce
// handler in the main control loop. If locking is in progress it is a
// no-op: the lock pulse must finish before the door can move again.
func (d *Door) Toggle() {
	if d.motion == MotionPostcloseLock {
		return
	}

	var target model.State
	switch d.motion {
	case MotionIdleOpen, MotionMovingOpen:
		target = model.StateOff
	case MotionIdleClosed, MotionMovingClose:
		target = model.StateOn
	default: // MotionIdleUnknown
		target = model.StateOff
	}

	if d.motion == MotionMovingOpen || d.motion == MotionMovingClose {
		d.reversals++
	}

	d.motor.stop()
	d.t0 = 0
	d.armed = false
	time.Sleep(deadTime)

	d.request(target)
}

// ReversalCount reports the running total of mid-motion reversals Toggle
// has performed since construction, polled by the periodic metrics
// reporter.
func (d *Door) ReversalCount() uint64 {
	return d.reversals
}

// IsBusy is true in every motion state except the three idle states.
func (d *Door) IsBusy() bool {
	switch d.motion {
	case MotionIdleOpen, MotionIdleClosed, MotionIdleUnknown:
		return false
	default:
		return true
	}
}

func (d *Door) Motion() Motion {
	return d.motion
}

func (d *Door) setMotion(m Motion) {
	if d.motion == m {
		return
	}
	d.motion = m
	d.updateLED(m)
	log.Debug().Str("door", d.name).Str("motion", m.String()).Msg("door motion transitioned")
}

// updateLED publishes the motion-to-LED-mode mapping: pulse-green while
// opening, pulse-red while closing, solid red during locking, off when
// idle, blink-red on unknown.
func (d *Door) updateLED(m Motion) {
	switch m {
	case MotionIdleOpen, MotionIdleClosed:
		d.led.Set(led.ModeOff, led.ColorGreen, 0)
	case MotionMovingOpen:
		d.led.Set(led.ModePulse, led.ColorGreen, 0)
	case MotionMovingClose:
		d.led.Set(led.ModePulse, led.ColorRed, 0)
	case MotionPostcloseLock:
		d.led.Set(led.ModeOn, led.ColorRed, 0)
	default:
		d.led.Set(led.ModeBlink, led.ColorRed, 0)
	}
}

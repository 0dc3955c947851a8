// Package led implements the bi-color door status LED state machine
// (§4.10): steady on/off, a 500ms-period blink square wave, and a
// carrier-paced perceptual-brightness pulse, all with optional
// finite-cycle auto-return to Off.
//
// Grounded on original_source/firmware/src/devices/led_state_machine.cpp.
package led

import (
	"github.com/thatsimonsguy/coopd/internal/gpio"
	"github.com/thatsimonsguy/coopd/internal/model"
)

// Mode selects the LED's presentation.
type Mode uint8

const (
	ModeOff Mode = iota
	ModeOn
	ModeBlink
	ModePulse
)

// Color selects which channel a Blink/Pulse/On command drives.
type Color uint8

const (
	ColorGreen Color = iota
	ColorRed
)

const (
	blinkPeriodMs   = 250
	pulsePeriodMs   = 2800
	pwmTicksPerMs   = 128
	maxTicksPerCall = 10 * pwmTicksPerMs
)

// pulseLUTGreen and pulseLUTRed are fixed perceptual-brightness breathing
// envelopes, traversed as a triangle wave (bounce at both ends rather than
// wrap) so a "cycle" is one full decay-then-rise.
var pulseLUTGreen = []uint8{
	1, 1, 2, 3, 5, 8, 12, 17,
	23, 30, 38, 47, 57, 68, 80, 93,
	107, 122, 138, 155, 173, 192, 212, 233, 255,
	233, 212, 192, 173, 155, 138, 122, 107,
	93, 80, 68, 57, 47, 38, 30, 23,
	17, 12, 8, 5, 3, 2, 1,
}

var pulseLUTRed = []uint8{
	1, 2, 4, 7, 11, 16, 22, 29,
	37, 46, 56, 67, 79, 92, 106, 121,
	137, 154, 172, 191, 211, 232, 248, 255,
	248, 232, 211, 191, 172, 154, 137, 121,
	106, 92, 79, 67, 56, 46, 37, 29,
	22, 16, 11, 7, 4, 2, 1,
}

// Hardware is the small color-routing abstraction over the raw channel
// lines (led_off/led_red_pwm/led_green_pwm in the original interface).
type Hardware interface {
	Off()
	RedPWM(duty uint8)
	GreenPWM(duty uint8)
}

// GPIOHardware drives red/green channels as software-PWM outputs over two
// GPIO lines, thresholding duty against the line's on/off state since this
// package owns no timer-driven PWM peripheral abstraction in the reference
// corpus; door_led_tick()'s carrier pacing lives in Tick below.
type GPIOHardware struct {
	Red, Green gpio.Line
}

func (h *GPIOHardware) Off() {
	h.Red.Write(false)
	h.Green.Write(false)
}

func (h *GPIOHardware) RedPWM(duty uint8) {
	h.Green.Write(false)
	h.Red.Write(duty > 0)
}

func (h *GPIOHardware) GreenPWM(duty uint8) {
	h.Red.Write(false)
	h.Green.Write(duty > 0)
}

// LED is the door status LED device.
type LED struct {
	name string
	id   model.DeviceID
	hw   Hardware

	mode  Mode
	color Color

	cyclesRemaining uint16
	cycleCounter    uint16

	on bool

	blinkT0Ms int64

	pulseLastTicks uint32
	pulseStep      int
	pwmTicks       uint32
	pulseErr       uint32
	pulseDir       int

	lastTickMs int64
}

// New constructs an LED device, initially Off.
func New(name string, id model.DeviceID, hw Hardware) *LED {
	return &LED{name: name, id: id, hw: hw, color: ColorGreen}
}

func (l *LED) Name() string       { return l.name }
func (l *LED) ID() model.DeviceID { return l.id }

func (l *LED) Init() {
	l.Set(ModeOff, ColorGreen, 0)
}

// GetState reports On if the LED is currently illuminated at all (steady,
// mid-blink-high, or mid-pulse), Off otherwise. The LED has no SetState in
// the Device sense; presentation is driven by Set.
func (l *LED) GetState() model.State {
	if l.on {
		return model.StateOn
	}
	return model.StateOff
}

// SetState maps the generic Device.SetState contract onto a steady on/off
// in the LED's current color; device-registry fanout callers needing mode
// control use Set directly.
func (l *LED) SetState(s model.State) {
	if s == model.StateOn {
		l.Set(ModeOn, l.color, 0)
	} else {
		l.Set(ModeOff, l.color, 0)
	}
}

func (l *LED) ScheduledState(s model.State, whenEpoch int64) {
	l.SetState(s)
}

func (l *LED) StateString(s model.State) string {
	return s.String()
}

// Set selects a new mode, color, and finite cycle count (0 = infinite),
// resetting all phase state. Grounded on led_state_machine_set.
func (l *LED) Set(mode Mode, color Color, cycles uint16) {
	l.mode = mode
	l.color = color
	l.cyclesRemaining = cycles
	l.cycleCounter = 0

	l.blinkT0Ms = 0
	l.on = false

	l.pulseLastTicks = 0
	l.pulseStep = 0
	l.pulseErr = 0
	l.pulseDir = -1

	switch mode {
	case ModeOff:
		l.hw.Off()
	case ModeOn:
		l.on = true
		l.apply(true, 255)
	case ModePulse:
		l.on = true
		l.pulseStep = len(l.lut()) - 1
		l.pulseLastTicks = l.pwmTicks
		l.pulseErr = 0
		l.pulseDir = -1
	}
}

func (l *LED) lut() []uint8 {
	if l.color == ColorGreen {
		return pulseLUTGreen
	}
	return pulseLUTRed
}

func (l *LED) apply(on bool, duty uint8) {
	if !on {
		l.hw.Off()
		return
	}
	if l.color == ColorGreen {
		l.hw.GreenPWM(duty)
	} else {
		l.hw.RedPWM(duty)
	}
}

// Tick advances the PWM carrier and the active mode's phase. Must be
// called periodically (every main-loop iteration).
func (l *LED) Tick(nowMs int64) {
	l.servicePWM(nowMs)

	switch l.mode {
	case ModeOff:
		l.on = false
		l.apply(false, 0)
	case ModeOn:
		l.on = true
		l.apply(true, 255)
	case ModeBlink:
		l.tickBlink(nowMs)
	case ModePulse:
		l.tickPulse()
	}
}

func (l *LED) servicePWM(nowMs int64) {
	elapsed := nowMs - l.lastTickMs
	if elapsed <= 0 {
		return
	}
	l.lastTickMs = nowMs

	ticks := uint32(elapsed) * pwmTicksPerMs
	if ticks > maxTicksPerCall {
		ticks = maxTicksPerCall
	}
	l.pwmTicks += ticks
}

func (l *LED) tickBlink(nowMs int64) {
	if l.blinkT0Ms == 0 {
		l.blinkT0Ms = nowMs
	}
	if nowMs-l.blinkT0Ms >= blinkPeriodMs {
		l.on = !l.on
		l.blinkT0Ms = nowMs

		if !l.on && l.cyclesRemaining > 0 {
			l.cycleCounter++
			if l.cycleCounter >= l.cyclesRemaining {
				l.mode = ModeOff
				l.hw.Off()
				return
			}
		}
	}
	l.apply(l.on, 255)
}

func (l *LED) tickPulse() {
	lut := l.lut()
	steps := uint32(len(lut))

	periodTicks := uint32(pulsePeriodMs) * pwmTicksPerMs
	baseStepTicks := periodTicks / steps
	remStepTicks := periodTicks % steps

	if l.pulseLastTicks == 0 {
		l.pulseLastTicks = l.pwmTicks
		l.pulseStep = 0
		l.pulseErr = 0
		l.pulseDir = 1
	}

	for {
		elapsed := l.pwmTicks - l.pulseLastTicks

		stepTicks := baseStepTicks
		l.pulseErr += remStepTicks
		if l.pulseErr >= steps {
			l.pulseErr -= steps
			stepTicks++
		}

		if elapsed < stepTicks {
			break
		}
		l.pulseLastTicks += stepTicks

		l.pulseStep += l.pulseDir

		if l.pulseStep == 0 || l.pulseStep == int(steps)-1 {
			l.pulseDir = -l.pulseDir

			if l.pulseStep == 0 && l.cyclesRemaining > 0 {
				l.cycleCounter++
				if l.cycleCounter >= l.cyclesRemaining {
					l.mode = ModeOff
					l.hw.Off()
					return
				}
			}
		}
	}

	l.on = true
	l.apply(true, lut[l.pulseStep])
}

// IsBusy is always false: the LED never blocks the control loop's sleep
// gate, even mid-blink or mid-pulse.
func (l *LED) IsBusy() bool { return false }

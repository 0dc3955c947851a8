// Package pins names the physical GPIO offsets this controller drives,
// shared between the live gpiocdev-backed device wiring in cmd/coopd and
// the boot-time/shutdown pinctrl safe-state scripts in system/startup and
// system/shutdown. Keeping one source of truth for pin numbers avoids the
// two scripts drifting apart, which is exactly the failure mode
// original_source's "PREOPEN_UNLOCK"-vs-main_firmware drift warns about
// at the schedule level.
package pins

import "github.com/thatsimonsguy/coopd/internal/model"

// Map is the full set of physical lines a coop controller board wires up:
// two H-bridges (door, lock), two latching-relay coil pairs, a bi-color
// LED, and three input lines.
type Map struct {
	DoorDirOpen  model.GPIOPin
	DoorDirClose model.GPIOPin
	DoorEnable   model.GPIOPin

	LockDirA   model.GPIOPin
	LockDirB   model.GPIOPin
	LockEnable model.GPIOPin

	Relay1Set   model.GPIOPin
	Relay1Reset model.GPIOPin
	Relay2Set   model.GPIOPin
	Relay2Reset model.GPIOPin

	LEDRed   model.GPIOPin
	LEDGreen model.GPIOPin

	DoorSwitch   model.GPIOPin
	ConfigSwitch model.GPIOPin
	RTCAlarm     model.GPIOPin
}

// Default is the reference wiring for the bring-up board. Every pin is
// active-high except the two switches and the RTC alarm line, which are
// wired to internal/external pull-ups per §6 ("Inputs: RTC interrupt
// line (external pull-up), door switch (internal pull-up), configuration
// slide switch") and read active-low.
func Default() Map {
	return Map{
		DoorDirOpen:  model.GPIOPin{Number: 5, ActiveHigh: true},
		DoorDirClose: model.GPIOPin{Number: 6, ActiveHigh: true},
		DoorEnable:   model.GPIOPin{Number: 13, ActiveHigh: true},

		LockDirA:   model.GPIOPin{Number: 16, ActiveHigh: true},
		LockDirB:   model.GPIOPin{Number: 19, ActiveHigh: true},
		LockEnable: model.GPIOPin{Number: 20, ActiveHigh: true},

		Relay1Set:   model.GPIOPin{Number: 21, ActiveHigh: true},
		Relay1Reset: model.GPIOPin{Number: 26, ActiveHigh: true},
		Relay2Set:   model.GPIOPin{Number: 12, ActiveHigh: true},
		Relay2Reset: model.GPIOPin{Number: 7, ActiveHigh: true},

		LEDRed:   model.GPIOPin{Number: 8, ActiveHigh: true},
		LEDGreen: model.GPIOPin{Number: 25, ActiveHigh: true},

		DoorSwitch:   model.GPIOPin{Number: 27, ActiveHigh: false},
		ConfigSwitch: model.GPIOPin{Number: 22, ActiveHigh: false},
		RTCAlarm:     model.GPIOPin{Number: 17, ActiveHigh: false},
	}
}

// SafeStates lists every output pin this board owns alongside the value
// it must be driven to at boot and at shutdown: de-energized, direction
// lines low, nothing latched. Consumed by system/startup to render a
// pinctrl boot script and by system/shutdown to de-energize on exit.
func (m Map) SafeStates() []struct {
	Label string
	Pin   model.GPIOPin
} {
	return []struct {
		Label string
		Pin   model.GPIOPin
	}{
		{"door.dir_open", m.DoorDirOpen},
		{"door.dir_close", m.DoorDirClose},
		{"door.enable", m.DoorEnable},
		{"lock.dir_a", m.LockDirA},
		{"lock.dir_b", m.LockDirB},
		{"lock.enable", m.LockEnable},
		{"relay1.set", m.Relay1Set},
		{"relay1.reset", m.Relay1Reset},
		{"relay2.set", m.Relay2Set},
		{"relay2.reset", m.Relay2Reset},
		{"led.red", m.LEDRed},
		{"led.green", m.LEDGreen},
	}
}

// Package applier implements the schedule applier (§4.4): it translates
// reducer output into device commands, idempotently, without ever
// touching hardware directly.
//
// Grounded on original_source/firmware/src/schedule_apply.cpp.
package applier

import (
	"github.com/thatsimonsguy/coopd/internal/device"
	"github.com/thatsimonsguy/coopd/internal/model"
)

// Apply walks every device with a governing action in reduced and, for
// each whose current state does not already match the desired one,
// invokes the device's scheduled-state hook with the governing action's
// absolute epoch. Devices with no action are left untouched. The applier
// never calls SetState or any hardware primitive directly — every
// implementation of device.Device provides ScheduledState (the spec's
// optional scheduled-state hook is expressed here as a method every
// device implements, no-opping internally where it has nothing special
// to do), so there is no plain-set-state fallback to express.
func Apply(reg *device.Registry, reduced model.ReducedState) {
	for _, id := range reg.Enumerate() {
		if !reduced.HasAction[id] {
			continue
		}
		d := reg.Lookup(id)
		if d == nil {
			continue
		}

		desired := model.StateFromAction(reduced.Action[id])
		if d.GetState() == desired {
			continue
		}
		d.ScheduledState(desired, reduced.WhenEpoch[id])
	}
}

// Package shutdown de-energizes every actuator output pin via pinctrl
// and exits the process. Grounded on the teacher's system/shutdown
// package: same "drive every owned pin to its rest state, then os.Exit"
// shape, generalized from the teacher's single main-power relay to this
// board's full door/lock/relay/LED pin set (internal/pins).
package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/thatsimonsguy/coopd/internal/gpio"
	"github.com/thatsimonsguy/coopd/internal/pins"
	"github.com/thatsimonsguy/coopd/internal/pinctrl"
)

// Now de-energizes every owned output pin and exits 0. A no-op under
// gpio.SafeMode beyond logging, matching the teacher's safe-mode
// short-circuit on the equivalent path.
func Now(m pins.Map) {
	if gpio.SafeMode() {
		log.Warn().Msg("safe mode enabled, skipping GPIO de-energize on shutdown")
		os.Exit(0)
	}

	for _, s := range m.SafeStates() {
		drive := "dl"
		if !s.Pin.ActiveHigh {
			drive = "dh"
		}
		if err := pinctrl.SetPin(s.Pin.Number, "op", "pn", drive); err != nil {
			log.Error().Err(err).Str("pin", s.Label).Msg("failed to de-energize pin on shutdown")
		}
	}
	log.Info().Msg("all actuator outputs de-energized")
	os.Exit(0)
}

// WithError logs err at error level, then de-energizes and exits via Now.
func WithError(m pins.Map, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Now(m)
}

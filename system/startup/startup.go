// Package startup renders and installs the boot-time GPIO safe-state
// script: every actuator output pin this controller owns is driven to
// its de-energized rest state before the daemon itself ever opens the
// GPIO chip, so a crash-and-restart never leaves a motor or lock coil
// energized between the two.
//
// Grounded on the teacher's system/startup package: same pinctrl-shelling
// approach (a rendered bash script plus a oneshot systemd unit that runs
// it before the main service starts), generalized from the teacher's
// heat-pump/air-handler/boiler pin enumeration to this board's door,
// lock, relay, and LED pin set (internal/pins).
package startup

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/thatsimonsguy/coopd/internal/pins"
)

// WriteStartupScript renders a bash script that drives every actuator
// output pin to its de-energized rest state, and writes it to path.
func WriteStartupScript(path string, m pins.Map) error {
	lines := []string{"#!/bin/bash", "", "# coop controller GPIO safe-state at boot", ""}

	for _, s := range m.SafeStates() {
		drive := "dl" // active-high rest state is logic low
		if !s.Pin.ActiveHigh {
			drive = "dh" // active-low rest state is logic high
		}
		lines = append(lines, fmt.Sprintf("# %s", s.Label))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", s.Pin.Number, drive))
		lines = append(lines, "")
	}

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(path, []byte(contents), 0755)
}

// InstallStartupService writes a oneshot systemd unit that runs the
// rendered script before the main daemon unit starts.
func InstallStartupService(unitPath, scriptPath string) error {
	unit := fmt.Sprintf(`[Unit]
Description=Configure coop controller GPIO pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, scriptPath)

	return os.WriteFile(unitPath, []byte(unit), 0644)
}

// InstallDaemonService writes the systemd unit for the daemon itself,
// ordered after the GPIO safe-state oneshot.
func InstallDaemonService(unitPath, gpioUnitName, user, workdir, execCmd string) error {
	unit := fmt.Sprintf(`[Unit]
Description=Coop controller daemon
After=%s
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
Environment=PATH=/usr/local/go/bin:/usr/local/bin:/usr/bin:/bin
ExecStart=/bin/bash -lc '%s'
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, gpioUnitName, gpioUnitName, user, workdir, execCmd)

	return os.WriteFile(unitPath, []byte(unit), 0644)
}

// RunStartupScript executes the rendered script directly, used by
// cmd/coopd at boot as an alternative to the systemd oneshot path (e.g.
// during development or when the daemon manages its own GPIO safe-state
// rather than delegating it to a separate unit).
func RunStartupScript(path string) error {
	cmd := exec.Command("/bin/bash", path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

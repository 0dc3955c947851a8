// coopd is the daemon entrypoint: it loads persisted configuration, opens
// the GPIO chip, wires every device and collaborator described in
// internal/controlloop, and runs the main loop until terminated.
//
// Flag parsing follows bureau-viewer's github.com/spf13/pflag shape
// (NewFlagSet with ContinueOnError, explicit --help handling) rather than
// the teacher's own stdlib flag-based cmd/hvac-controller, since this is
// the daemon's primary operator-facing surface and the richer pflag API
// (short flags, BoolP) earns its keep here more than it does in
// cmd/debug's much smaller surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/thatsimonsguy/coopd/internal/config"
	"github.com/thatsimonsguy/coopd/internal/console"
	"github.com/thatsimonsguy/coopd/internal/controlloop"
	"github.com/thatsimonsguy/coopd/internal/device"
	"github.com/thatsimonsguy/coopd/internal/door"
	"github.com/thatsimonsguy/coopd/internal/drift"
	"github.com/thatsimonsguy/coopd/internal/eventstore"
	"github.com/thatsimonsguy/coopd/internal/gpio"
	"github.com/thatsimonsguy/coopd/internal/led"
	"github.com/thatsimonsguy/coopd/internal/lock"
	"github.com/thatsimonsguy/coopd/internal/logging"
	"github.com/thatsimonsguy/coopd/internal/metrics"
	"github.com/thatsimonsguy/coopd/internal/model"
	"github.com/thatsimonsguy/coopd/internal/notifications"
	"github.com/thatsimonsguy/coopd/internal/pins"
	"github.com/thatsimonsguy/coopd/internal/relay"
	"github.com/thatsimonsguy/coopd/internal/scheduler"
	"github.com/thatsimonsguy/coopd/internal/timesource"
	"github.com/thatsimonsguy/coopd/system/shutdown"
	"github.com/thatsimonsguy/coopd/system/startup"
)

type options struct {
	chipName    string
	blobPath    string
	yamlPath    string
	logPath     string
	logLevel    string
	safeMode    bool
	ntfyTopic   string
	statsdAddr  string
	driftDBPath string
	writeStartupScript string
	runStartupScript   bool
}

func parseFlags() (*options, error) {
	o := &options{}
	fs := pflag.NewFlagSet("coopd", pflag.ContinueOnError)
	fs.StringVar(&o.chipName, "gpio-chip", "gpiochip0", "Linux GPIO character device to open")
	fs.StringVar(&o.blobPath, "config", "/var/lib/coopd/config.bin", "path to the persisted binary config blob")
	fs.StringVar(&o.yamlPath, "bootstrap", "/etc/coopd/bootstrap.yaml", "path to the YAML bootstrap seed used when the blob is absent or invalid")
	fs.StringVar(&o.logPath, "log-file", "/var/log/coopd.log", "path to the daemon's log file")
	fs.StringVar(&o.logLevel, "log-level", "info", "zerolog level: debug, info, warn, error")
	fs.BoolVar(&o.safeMode, "safe-mode", false, "disable all GPIO writes system-wide")
	fs.StringVar(&o.ntfyTopic, "ntfy-topic", "", "ntfy.sh topic for failure notifications (empty disables)")
	fs.StringVar(&o.statsdAddr, "statsd-addr", "127.0.0.1:8125", "DogStatsD listen address")
	fs.StringVar(&o.driftDBPath, "drift-db", "/var/lib/coopd/drift.db", "path to the sqlite RTC drift log")
	fs.StringVar(&o.writeStartupScript, "write-startup-script", "", "render the boot-time GPIO safe-state script to this path and exit")
	fs.BoolVar(&o.runStartupScript, "run-startup-script", false, "run the rendered boot-time safe-state script before opening the GPIO chip")
	help := fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}
	if *help {
		fmt.Fprintln(os.Stderr, "coopd — chicken coop controller daemon")
		fs.PrintDefaults()
		os.Exit(0)
	}
	return o, nil
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	pinMap := pins.Default()

	if opts.writeStartupScript != "" {
		if err := startup.WriteStartupScript(opts.writeStartupScript, pinMap); err != nil {
			fmt.Fprintln(os.Stderr, "failed to write startup script:", err)
			os.Exit(1)
		}
		return
	}

	logging.Init(parseLevel(opts.logLevel), opts.logPath)
	log.Info().Str("gpio_chip", opts.chipName).Msg("starting coopd")

	gpio.SetSafeMode(opts.safeMode)
	if opts.safeMode {
		log.Warn().Msg("SAFE MODE ENABLED — GPIO Write() is disabled system-wide")
	}

	if opts.runStartupScript {
		if err := startup.RunStartupScript("/etc/coopd/startup.sh"); err != nil {
			log.Warn().Err(err).Msg("failed to run boot-time safe-state script")
		}
	}

	notifier := notifications.New(opts.ntfyTopic)

	cfg, ok := config.Load(opts.blobPath, opts.yamlPath)
	notifier.Report(notifications.ConfigCorrupt, !ok)
	if !ok {
		log.Warn().Msg("config blob missing or invalid; started from bootstrap defaults")
	}

	driftStore, err := drift.Open(opts.driftDBPath)
	if err != nil {
		log.Warn().Err(err).Msg("failed to open drift log; drift recording disabled")
		driftStore = nil
	}

	chip, err := gpio.NewRealChip(opts.chipName)
	if err != nil {
		shutdown.WithError(pinMap, err, "failed to open gpio chip")
		return
	}
	defer chip.Close()

	lines, err := requestLines(chip, pinMap)
	if err != nil {
		shutdown.WithError(pinMap, err, "failed to request gpio lines")
		return
	}

	clock := timesource.NewHostClock()
	sched := scheduler.New()
	store := eventstore.New(sched.Touch)
	store.LoadFrom(cfg.Events)

	registry := device.NewRegistry()

	statusLED := led.New("led", model.DeviceLED, &led.GPIOHardware{Red: lines.ledRed, Green: lines.ledGreen})
	registry.Register(statusLED)

	lockSM := lock.New("lock", model.DeviceLock, lines.lockDirA, lines.lockDirB, lines.lockEnable, int64(cfg.LockPulseMs))
	registry.Register(lockSM)

	motor := door.NewMotor(lines.doorDirOpen, lines.doorDirClose, lines.doorEnable)
	doorSM := door.New("door", model.DeviceDoor, motor, lockSM, statusLED, int64(cfg.DoorTravelMs), int64(cfg.DoorSettleMs))
	registry.Register(doorSM)

	relay1 := relay.New("relay1", model.DeviceRelay1, lines.relay1Set, lines.relay1Reset, clock)
	registry.Register(relay1)
	relay2 := relay.New("relay2", model.DeviceRelay2, lines.relay2Set, lines.relay2Reset, clock)
	registry.Register(relay2)

	registry.InitAll()
	if !ok {
		// Surface the config-blob failure on the LED immediately, before the
		// main loop's first iteration — don't wait on the unrelated
		// RTC-invalid gate to also be blinking red for a different reason.
		statusLED.Set(led.ModeBlink, led.ColorRed, 0)
	}

	doorEvent := controlloop.NewDoorEventLatch()
	doorEventCh := make(chan struct{}, 1)
	if err := lines.doorSwitch.WatchEdges(func(asserted bool) {
		if asserted {
			doorEvent.Set()
			select {
			case doorEventCh <- struct{}{}:
			default:
			}
		}
	}); err != nil {
		log.Warn().Err(err).Msg("failed to watch door switch edges")
	}

	configSwitch := &gpioConfigSwitch{line: lines.configSwitch}

	metricsEmitter := metrics.New(opts.statsdAddr, "coopd", nil)

	loc := controlloop.Location{
		Latitude:  float64(cfg.LatitudeE4) / 1e4,
		Longitude: float64(cfg.LongitudeE4) / 1e4,
	}

	loop := controlloop.New(
		clock, sched, store, registry, doorSM, statusLED,
		func() bool { v, _ := lines.doorSwitch.Read(); return v },
		doorEvent, configSwitch, nil, loc,
	)
	con := console.New(registry, store, clock, sched, loop, driftStore, notifier, cfg, opts.blobPath)
	loop.SetConsole(con)
	loop.SetNotifier(notifier)
	loop.SetMetrics(metricsEmitter)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	go reportMetricsPeriodically(ctx, metricsEmitter, sched, registry, doorSM)

	loop.Run(ctx, doorEventCh)

	log.Info().Msg("control loop exiting")
	if driftStore != nil {
		driftStore.Close()
	}
	shutdown.Now(pinMap)
}

// gpioConfigSwitch adapts a raw input line to controlloop.ConfigSwitch.
type gpioConfigSwitch struct {
	line gpio.Line
}

func (s *gpioConfigSwitch) State() bool {
	v, err := s.line.Read()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read configuration switch")
		return false
	}
	return v
}

// requestedLines is every hardware line the daemon opens at boot.
type requestedLines struct {
	doorDirOpen, doorDirClose, doorEnable gpio.Line
	lockDirA, lockDirB, lockEnable        gpio.Line
	relay1Set, relay1Reset                gpio.Line
	relay2Set, relay2Reset                gpio.Line
	ledRed, ledGreen                      gpio.Line
	doorSwitch                            gpio.EdgeWatcher
	configSwitch                          gpio.Line
}

func requestLines(chip gpio.Chip, m pins.Map) (*requestedLines, error) {
	var l requestedLines
	var err error

	req := func(pin model.GPIOPin, name string) (gpio.Line, error) {
		return chip.RequestOutput(pin.Number, name, pin.ActiveHigh)
	}

	if l.doorDirOpen, err = req(m.DoorDirOpen, "door.dir_open"); err != nil {
		return nil, err
	}
	if l.doorDirClose, err = req(m.DoorDirClose, "door.dir_close"); err != nil {
		return nil, err
	}
	if l.doorEnable, err = req(m.DoorEnable, "door.enable"); err != nil {
		return nil, err
	}
	if l.lockDirA, err = req(m.LockDirA, "lock.dir_a"); err != nil {
		return nil, err
	}
	if l.lockDirB, err = req(m.LockDirB, "lock.dir_b"); err != nil {
		return nil, err
	}
	if l.lockEnable, err = req(m.LockEnable, "lock.enable"); err != nil {
		return nil, err
	}
	if l.relay1Set, err = req(m.Relay1Set, "relay1.set"); err != nil {
		return nil, err
	}
	if l.relay1Reset, err = req(m.Relay1Reset, "relay1.reset"); err != nil {
		return nil, err
	}
	if l.relay2Set, err = req(m.Relay2Set, "relay2.set"); err != nil {
		return nil, err
	}
	if l.relay2Reset, err = req(m.Relay2Reset, "relay2.reset"); err != nil {
		return nil, err
	}
	if l.ledRed, err = req(m.LEDRed, "led.red"); err != nil {
		return nil, err
	}
	if l.ledGreen, err = req(m.LEDGreen, "led.green"); err != nil {
		return nil, err
	}
	if l.doorSwitch, err = chip.RequestEdgeInput(m.DoorSwitch.Number, "door.switch", m.DoorSwitch.ActiveHigh); err != nil {
		return nil, err
	}
	if l.configSwitch, err = chip.RequestInput(m.ConfigSwitch.Number, "config.switch", m.ConfigSwitch.ActiveHigh); err != nil {
		return nil, err
	}
	return &l, nil
}

// reportMetricsPeriodically emits the schedule ETag, per-device busy
// state, and the door's running reversal count on a fixed cadence.
// AwakeSeconds is not polled here since it is a per-wake-cycle duration
// the control loop itself measures and reports (SetMetrics).
func reportMetricsPeriodically(ctx context.Context, m *metrics.Emitter, sched *scheduler.Facade, registry *device.Registry, doorSM *door.Door) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ScheduleEtag(sched.ScheduleEtag())
			m.DoorReversalCount(float64(doorSM.ReversalCount()))
			for _, id := range registry.Enumerate() {
				d := registry.Lookup(id)
				if d.IsBusy() {
					m.DeviceBusyDuration(d.Name(), 30)
				}
			}
		}
	}
}

// Package controlloop implements the main control loop (§4.11): a
// minute-tick, ETag-driven scheduling re-evaluation loop with RTC alarm
// arming, deep-sleep entry, and door-switch/RTC-alarm wake classification
// with debounce.
//
// Grounded directly on original_source/firmware/main_firmware.cpp's
// for(;;) loop — Step and Sleep port its body section by section,
// adapted to the process model this module actually has: no real
// interrupt controller exists in a Go daemon, so the door switch
// interrupt is modeled as a goroutine driven by a gpiocdev edge callback
// that does the minimum possible work — set an atomic flag — mirroring
// the original's "ISRs perform the minimum work required... and return"
// (§5), and the RTC alarm interrupt is modeled as a timer inside Sleep.
// "Deep sleep" is a select on that wake timer and the door-event channel
// rather than a CPU sleep mode.
package controlloop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thatsimonsguy/coopd/internal/applier"
	"github.com/thatsimonsguy/coopd/internal/device"
	"github.com/thatsimonsguy/coopd/internal/door"
	"github.com/thatsimonsguy/coopd/internal/eventstore"
	"github.com/thatsimonsguy/coopd/internal/led"
	"github.com/thatsimonsguy/coopd/internal/metrics"
	"github.com/thatsimonsguy/coopd/internal/model"
	"github.com/thatsimonsguy/coopd/internal/notifications"
	"github.com/thatsimonsguy/coopd/internal/reducer"
	"github.com/thatsimonsguy/coopd/internal/scheduler"
	"github.com/thatsimonsguy/coopd/internal/solar"
	"github.com/thatsimonsguy/coopd/internal/timesource"
)

// doorDebounceMs is the confirmation window for a latched door-switch
// event before Door.Toggle() is invoked.
const doorDebounceMs = 20

// iterationPace bounds how fast Run spins when Step reports no sleep is
// due. The original firmware runs its for(;;) body at full MCU clock
// speed with no artificial pacing; a host daemon has no such excuse to
// burn a full CPU core, so iterations are paced to this interval instead.
const iterationPace = 10 * time.Millisecond

// configSwitchConfirmMs is the stable-change confirmation window for the
// configuration slide switch.
const configSwitchConfirmMs = 75

// ConfigSwitch abstracts the two-position slide switch that gates console
// mode. Sampled every iteration; debounced internally by the loop.
type ConfigSwitch interface {
	State() bool
}

// Console is the out-of-scope interactive collaborator (§6); the loop
// only inits/polls/shuts it down, never reaching into its internals.
type Console interface {
	Init()
	Poll()
	Shutdown()
}

// DoorEventLatch is the application-side half of the door-switch "ISR":
// an edge-detector goroutine calls Set from a gpiocdev event callback;
// the main loop consumes it with TestAndClear. Modeled on the original's
// volatile g_door_event flag.
type DoorEventLatch struct {
	pending atomic.Bool
}

// NewDoorEventLatch constructs an empty latch.
func NewDoorEventLatch() *DoorEventLatch { return &DoorEventLatch{} }

// Set latches a pending event; safe to call from the edge-detector
// goroutine.
func (l *DoorEventLatch) Set() { l.pending.Store(true) }

// TestAndClear reports and clears the pending flag; called only from the
// main loop, which is this process's sole application-logic goroutine.
func (l *DoorEventLatch) TestAndClear() bool {
	return l.pending.Swap(false)
}

// Peek reports the pending flag without clearing it.
func (l *DoorEventLatch) Peek() bool { return l.pending.Load() }

// Location is the fixed latitude/longitude the daily solar snapshot is
// computed for.
type Location struct {
	Latitude, Longitude float64
}

// Loop holds every piece of state the spec's §4.11 names explicitly, plus
// the collaborators it drives.
type Loop struct {
	clock    timesource.Source
	sched    *scheduler.Facade
	store    *eventstore.Store
	registry *device.Registry
	doorSM   *door.Door
	led      *led.LED

	doorSwitchAsserted func() bool
	doorEvent          *DoorEventLatch

	configSwitch ConfigSwitch
	console      Console
	notifier     *notifications.Notifier
	metrics      *metrics.Emitter

	loc Location

	lastMinute int
	lastEtag   uint32
	lastY      int
	lastMo     int
	lastD      int
	haveSolar  bool

	inConfigMode           bool
	configSwitchLastRaw    bool
	configSwitchChangedAt  int64
	configSwitchPending    bool

	doorDebounceActive  bool
	doorDebounceStartMs int64
}

// New constructs a Loop. doorSwitchAsserted reports the live (debounced
// by hardware, not yet by this loop) state of the door-switch line.
func New(
	clock timesource.Source,
	sched *scheduler.Facade,
	store *eventstore.Store,
	registry *device.Registry,
	doorSM *door.Door,
	statusLED *led.LED,
	doorSwitchAsserted func() bool,
	doorEvent *DoorEventLatch,
	configSwitch ConfigSwitch,
	console Console,
	loc Location,
) *Loop {
	return &Loop{
		clock: clock, sched: sched, store: store, registry: registry,
		doorSM: doorSM, led: statusLED,
		doorSwitchAsserted: doorSwitchAsserted, doorEvent: doorEvent,
		configSwitch: configSwitch, console: console,
		loc:        loc,
		lastMinute: 0xFFFF,
		lastY:      -1, lastMo: -1, lastD: -1,
	}
}

// SetLocation updates the latitude/longitude the daily solar snapshot is
// computed for and invalidates the cached snapshot, forcing a recompute
// on the next Step. Called by the console's location-edit command; the
// console never touches the scheduler ETag directly (§6), so this is the
// one seam it uses instead.
func (l *Loop) SetLocation(loc Location) {
	l.loc = loc
	l.sched.InvalidateSolar()
}

// SetConsole installs the console collaborator after construction, used at
// boot when the console itself needs a reference back to the loop (for
// SetLocation) and so cannot be built before the loop exists.
func (l *Loop) SetConsole(c Console) {
	l.console = c
}

// SetNotifier installs the failure notifier. A nil notifier (the zero
// value default) leaves Report calls as no-ops via a nil check, so tests
// that don't care about notifications can omit it.
func (l *Loop) SetNotifier(n *notifications.Notifier) {
	l.notifier = n
}

// SetMetrics installs the metrics emitter used to report AwakeSeconds each
// wake cycle. A nil emitter (the zero value default) makes Run skip the
// gauge call via its own nil check.
func (l *Loop) SetMetrics(m *metrics.Emitter) {
	l.metrics = m
}

// Step runs exactly one main-loop iteration (§4.11 steps 1-8) and reports
// whether the loop should proceed to the sleep-entry step (true) or
// continue immediately without sleeping (false, mirroring the original's
// several `continue` escape points).
func (l *Loop) Step(nowMs int64) bool {
	l.registry.Tick(nowMs)

	l.sampleConfigSwitch(nowMs)
	if l.inConfigMode {
		l.console.Poll()
	}

	l.handleDoorEvent(nowMs)

	timeIsSet := l.clock.TimeIsSet()
	if l.notifier != nil {
		l.notifier.Report(notifications.RTCInvalid, !timeIsSet)
	}
	if !timeIsSet {
		l.led.Set(led.ModeBlink, led.ColorRed, 0)
		return false
	}

	nowMinute, _ := l.clock.MinutesSinceMidnight()
	curEtag := l.sched.ScheduleEtag()

	minuteChanged := nowMinute != l.lastMinute
	scheduleDirty := curEtag != l.lastEtag

	if minuteChanged || scheduleDirty {
		l.lastMinute = nowMinute
		l.lastEtag = curEtag
		l.refreshSchedule(nowMinute)
	}

	if l.inConfigMode || l.registry.DevicesBusy() || l.doorDebounceActive || l.doorEvent.Peek() {
		return false
	}
	return true
}

// sampleConfigSwitch implements step 2: a stable-change confirmation
// window before toggling console mode.
func (l *Loop) sampleConfigSwitch(nowMs int64) {
	raw := l.configSwitch.State()

	if raw != l.inConfigMode && !l.configSwitchPending {
		l.configSwitchPending = true
		l.configSwitchChangedAt = nowMs
		l.configSwitchLastRaw = raw
		return
	}

	if l.configSwitchPending {
		if nowMs-l.configSwitchChangedAt < configSwitchConfirmMs {
			return
		}
		l.configSwitchPending = false

		if l.configSwitch.State() != l.configSwitchLastRaw {
			return // changed again during confirmation; drop it
		}

		l.inConfigMode = l.configSwitchLastRaw
		if l.inConfigMode {
			l.console.Init()
		} else {
			l.console.Shutdown()
		}
	}
}

// handleDoorEvent implements step 4: latch consumption, debounce, toggle
// dispatch, and re-arming.
func (l *Loop) handleDoorEvent(nowMs int64) {
	if l.doorEvent.TestAndClear() && !l.doorDebounceActive {
		l.doorDebounceActive = true
		l.doorDebounceStartMs = nowMs
	}

	if l.doorDebounceActive {
		if nowMs-l.doorDebounceStartMs >= doorDebounceMs {
			l.doorDebounceActive = false
			if l.doorSwitchAsserted() {
				l.doorSM.Toggle()
			}
		}
	}
}

// refreshSchedule implements step 7: solar recompute on date change, then
// reduce + apply.
func (l *Loop) refreshSchedule(nowMinute int) {
	t, _ := l.clock.GetTime()
	y, mo, d := t.Year(), t.Month(), t.Day()

	if y != l.lastY || int(mo) != l.lastMo || d != l.lastD {
		var snapshot *model.SolarSnapshot
		have := false

		if l.loc.Latitude != 0 || l.loc.Longitude != 0 {
			if mins, ok := solar.Compute(y, mo, d, l.loc.Latitude, l.loc.Longitude, 0); ok {
				snapshot = &model.SolarSnapshot{
					SunriseMinute:   mins.SunriseMinute,
					SunsetMinute:    mins.SunsetMinute,
					CivilDawnMinute: mins.CivilDawnMinute,
					CivilDuskMinute: mins.CivilDuskMinute,
				}
				have = true
			}
		}

		l.sched.UpdateDay(y, int(mo), d, snapshot, have)
		l.haveSolar = have
		l.lastY, l.lastMo, l.lastD = y, int(mo), d
	}

	events, _ := l.store.EventsView()
	midnightEpoch := todayMidnightEpoch(t)
	reduced := reducer.Reduce(events[:], l.sched.Snapshot(), nowMinute, midnightEpoch)
	applier.Apply(l.registry, reduced)
}

func todayMidnightEpoch(t time.Time) int64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Unix()
}

// NextWakeMinute implements step 9's wake-minute computation: the next
// scheduled minute if one exists, bumped to strictly after now, else
// simply now+1.
func (l *Loop) NextWakeMinute(nowMinute int) int {
	events, _ := l.store.EventsView()
	if next, ok := l.sched.NextEventMinute(events[:]); ok {
		return StrictlyFutureMinute(nowMinute, next)
	}
	return NextMinute(nowMinute)
}

// NextMinute wraps nowMin forward by exactly one minute, modulo 1440.
func NextMinute(nowMin int) int {
	return (nowMin + 1) % 1440
}

// StrictlyFutureMinute bumps target to NextMinute(nowMin) if it would
// otherwise be at or before now, guaranteeing the RTC alarm is always
// armed for a genuinely future minute.
func StrictlyFutureMinute(nowMin, target int) int {
	if target <= nowMin {
		return NextMinute(nowMin)
	}
	return target
}

// Sleep implements steps 9-10: arm the RTC alarm for wakeMin, then block
// until either the alarm's wall-clock deadline elapses or a door event
// latches — whichever comes first — then clear the alarm flag and report
// what woke the loop.
func (l *Loop) Sleep(ctx context.Context, nowMinute int, doorEventCh <-chan struct{}) {
	wakeMin := l.NextWakeMinute(nowMinute)
	l.clock.AlarmSetMinuteOfDay(wakeMin)

	minutesOut := wakeMin - nowMinute
	if minutesOut <= 0 {
		minutesOut += 1440
	}
	timer := time.NewTimer(time.Duration(minutesOut) * time.Minute)
	defer timer.Stop()

	select {
	case <-timer.C:
		log.Debug().Int("wake_minute", wakeMin).Msg("woke on RTC alarm")
	case <-doorEventCh:
		log.Debug().Msg("woke on door event")
	case <-ctx.Done():
		return
	}

	l.clock.AlarmClearFlag()
}

// Run drives Step/Sleep indefinitely until ctx is canceled. doorEventCh
// is signaled by the same edge-detector goroutine that calls
// DoorEventLatch.Set, letting a door event cut deep sleep short.
func (l *Loop) Run(ctx context.Context, doorEventCh <-chan struct{}) {
	awakeStart := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		nowMs := time.Now().UnixMilli()
		shouldSleep := l.Step(nowMs)
		if !shouldSleep {
			time.Sleep(iterationPace)
			continue
		}

		if l.metrics != nil {
			l.metrics.AwakeSeconds(time.Since(awakeStart).Seconds())
		}

		nowMinute, _ := l.clock.MinutesSinceMidnight()
		l.Sleep(ctx, nowMinute, doorEventCh)
		awakeStart = time.Now()
	}
}

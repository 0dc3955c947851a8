// Package console implements the interactive line-oriented interface
// (§6, SPEC_FULL §4.15) entered when the configuration slide switch is
// asserted: date/time view/set, location view/set, event list/add/delete,
// manual door/lock/relay/LED toggles, and a local-time schedule preview.
//
// Built on github.com/charmbracelet/bubbletea, github.com/charmbracelet/bubbles
// (list, textinput), and github.com/charmbracelet/lipgloss, the same stack
// bureau-foundation-bureau's ticketui uses for its own terminal UI.
//
// The console's bubbletea program runs its own read/render loop on a
// dedicated goroutine — genuine non-blocking polling of bubbletea's
// internal input loop from the main control-loop goroutine isn't a
// pattern the library exposes, so this is the narrowest deviation from
// SPEC_FULL §5's "same goroutine" suggestion available. To preserve the
// substance of that requirement — no locking discipline needed at the
// application layer — the console never touches a device, the clock, or
// the scheduler directly. Every mutation is queued as a Request and
// applied exclusively by Poll, which the control loop calls from its own
// goroutine once per iteration (§4.11 step 3); the UI goroutine only ever
// reads back an immutable Snapshot published by that same Poll call. The
// event store is the sole exception, since it already owns a mutex and
// is documented as tolerating concurrent readers and a single external
// mutator (§5); persisting the config blob after an event-table edit
// piggybacks on that same exception, guarded by cfgMu below rather than
// routed through Poll.
package console

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/coopd/internal/config"
	"github.com/thatsimonsguy/coopd/internal/controlloop"
	"github.com/thatsimonsguy/coopd/internal/device"
	"github.com/thatsimonsguy/coopd/internal/drift"
	"github.com/thatsimonsguy/coopd/internal/eventstore"
	"github.com/thatsimonsguy/coopd/internal/model"
	"github.com/thatsimonsguy/coopd/internal/notifications"
	"github.com/thatsimonsguy/coopd/internal/scheduler"
	"github.com/thatsimonsguy/coopd/internal/timesource"
)

// requestKind names the console-goroutine-originated mutations Poll
// applies on the main-loop goroutine.
type requestKind int

const (
	reqSetTime requestKind = iota
	reqSetLocation
	reqSetDevice
)

type request struct {
	kind requestKind

	t time.Time

	lat, lon float64
	tzHours  int32
	honorDST bool

	deviceID model.DeviceID
	state    model.State
}

// Snapshot is the immutable view of controller state the UI goroutine
// renders from. Published fresh by every Poll call.
type Snapshot struct {
	Now       time.Time
	TimeValid bool

	Lat, Lon float64
	TZHours  int32
	HonorDST bool

	Solar *model.SolarSnapshot

	Events [model.MaxEvents]model.Event

	DeviceStates map[model.DeviceID]model.State
	DeviceBusy   map[model.DeviceID]bool
}

// Console owns the bubbletea program and the request/snapshot channel
// pair that keep it isolated from the hardware-owning goroutine.
type Console struct {
	registry *device.Registry
	store    *eventstore.Store
	clock    timesource.Source
	sched    *scheduler.Facade
	loop     *controlloop.Loop
	drift    *drift.Store             // optional; nil disables drift recording
	notifier *notifications.Notifier  // optional; nil disables notifications

	blobPath string
	cfgMu    sync.Mutex
	cfg      config.Config

	reqCh chan request
	snap  atomic.Pointer[Snapshot]

	program *tea.Program
	done    chan struct{}
}

// New constructs a Console from the Config the daemon loaded at boot.
// cfg is the console's own mutable copy: every edit that scenario 5
// ("save writes new checksummed blob and load on next boot succeeds")
// covers — date/time, location, and the event table — is folded back
// into cfg and written to blobPath via persist after it's applied.
func New(registry *device.Registry, store *eventstore.Store, clock timesource.Source, sched *scheduler.Facade, loop *controlloop.Loop, driftStore *drift.Store, notifier *notifications.Notifier, cfg config.Config, blobPath string) *Console {
	return &Console{
		registry: registry,
		store:    store,
		clock:    clock,
		sched:    sched,
		loop:     loop,
		drift:    driftStore,
		notifier: notifier,
		cfg:      cfg,
		blobPath: blobPath,
		reqCh:    make(chan request, 16),
	}
}

// Init starts the bubbletea program on its own goroutine. Called by the
// control loop when the configuration switch's debounced state goes true
// (§4.11 step 2).
func (c *Console) Init() {
	c.done = make(chan struct{})
	m := newModel(c)
	c.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		defer close(c.done)
		if _, err := c.program.Run(); err != nil {
			log.Warn().Err(err).Msg("console program exited with error")
		}
	}()
	log.Info().Msg("console entered")
}

// Poll drains queued requests and applies them to the real devices,
// clock, and scheduler, then republishes a fresh Snapshot for the UI
// goroutine to render. Called once per main-loop iteration while the
// console is active (§4.11 step 3): "poll the console (non-blocking)."
func (c *Console) Poll() {
drain:
	for {
		select {
		case req := <-c.reqCh:
			c.apply(req)
		default:
			break drain
		}
	}
	c.publishSnapshot()
}

// Shutdown tears down the bubbletea program and waits (briefly) for its
// goroutine to exit. Called on the configuration switch's debounced
// de-assertion (§4.11 step 2).
func (c *Console) Shutdown() {
	if c.program == nil {
		return
	}
	c.program.Quit()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		c.program.Kill()
	}
	c.program = nil
	log.Info().Msg("console exited")
}

func (c *Console) apply(req request) {
	switch req.kind {
	case reqSetTime:
		prior, _ := c.clock.GetEpoch()
		if err := c.clock.SetTime(req.t); err != nil {
			log.Warn().Err(err).Msg("console: failed to set RTC time")
			return
		}
		newEpoch, _ := c.clock.GetEpoch()
		if c.drift != nil {
			if err := c.drift.RecordSet(prior, newEpoch); err != nil {
				log.Warn().Err(err).Msg("console: failed to record drift sample")
			}
		}
		c.cfgMu.Lock()
		c.cfg.RTCSetEpoch = newEpoch
		c.cfgMu.Unlock()
		c.persist()

	case reqSetLocation:
		c.loop.SetLocation(controlloop.Location{Latitude: req.lat, Longitude: req.lon})
		c.cfgMu.Lock()
		c.cfg.LatitudeE4 = int32(req.lat * 1e4)
		c.cfg.LongitudeE4 = int32(req.lon * 1e4)
		c.cfgMu.Unlock()
		c.persist()

	case reqSetDevice:
		d := c.registry.Lookup(req.deviceID)
		if d == nil {
			return
		}
		d.SetState(req.state)
	}
}

// persist re-encodes cfg with the event store's current contents and
// writes it to blobPath, so a config edit made through the console
// survives the next boot's config.Load the same way the boot sequence
// itself requires (§9). Called after every mutation that touches a
// persisted field: time-set, location-set, and event add/delete.
func (c *Console) persist() {
	c.cfgMu.Lock()
	c.cfg.Events, _ = c.store.EventsView()
	cfg := c.cfg
	c.cfgMu.Unlock()

	if err := config.Save(c.blobPath, cfg); err != nil {
		log.Warn().Err(err).Msg("console: failed to persist config")
	}
}

// tzConfig returns the presentation-only TZ/DST fields (§3) the UI
// goroutine needs to convert between local civil time and UTC, without
// exposing the rest of cfg outside this file.
func (c *Console) tzConfig() (tzHours int32, honorDST bool) {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	return c.cfg.TZHours, c.cfg.HonorDST
}

func (c *Console) publishSnapshot() {
	now, _ := c.clock.GetTime()
	events, _ := c.store.EventsView()

	states := make(map[model.DeviceID]model.State)
	busy := make(map[model.DeviceID]bool)
	for _, id := range c.registry.Enumerate() {
		d := c.registry.Lookup(id)
		states[id] = d.GetState()
		busy[id] = d.IsBusy()
	}

	c.cfgMu.Lock()
	lat := float64(c.cfg.LatitudeE4) / 1e4
	lon := float64(c.cfg.LongitudeE4) / 1e4
	tzHours := c.cfg.TZHours
	honorDST := c.cfg.HonorDST
	c.cfgMu.Unlock()

	c.snap.Store(&Snapshot{
		Now:          now,
		TimeValid:    c.clock.TimeIsSet(),
		Lat:          lat,
		Lon:          lon,
		TZHours:      tzHours,
		HonorDST:     honorDST,
		Solar:        c.sched.Snapshot(),
		Events:       events,
		DeviceStates: states,
		DeviceBusy:   busy,
	})
}

// currentSnapshot is read by the UI goroutine; it may briefly see a
// snapshot one Poll interval stale, which is acceptable for a display
// refreshed many times a second against a schedule that changes at
// minute granularity.
func (c *Console) currentSnapshot() *Snapshot {
	if s := c.snap.Load(); s != nil {
		return s
	}
	return &Snapshot{DeviceStates: map[model.DeviceID]model.State{}, DeviceBusy: map[model.DeviceID]bool{}}
}

func (c *Console) enqueue(req request) {
	select {
	case c.reqCh <- req:
	default:
		log.Warn().Msg("console: request queue full, dropping command")
	}
}

// requestSetTime queues a UTC time-set from local civil time already
// converted by the caller — the console is the sole place TZ/DST
// conversion happens (§6).
func (c *Console) requestSetTime(utc time.Time) {
	c.enqueue(request{kind: reqSetTime, t: utc})
}

func (c *Console) requestSetLocation(lat, lon float64) {
	c.enqueue(request{kind: reqSetLocation, lat: lat, lon: lon})
}

func (c *Console) requestSetDevice(id model.DeviceID, s model.State) {
	c.enqueue(request{kind: reqSetDevice, deviceID: id, state: s})
}

// addEvent and deleteEvent call the event-store mutators directly — the
// one collaborator boundary in §6 the console is explicitly permitted to
// touch without routing through Poll, since eventstore.Store already
// guards itself with a mutex. Each persists the updated event table to
// the config blob on success, same as apply's persisted request kinds.
func (c *Console) addEvent(deviceID model.DeviceID, action model.Action, when model.When) (uint8, error) {
	refnum, err := c.store.Add(model.Event{DeviceID: deviceID, Action: action, When: when})
	if c.notifier != nil {
		c.notifier.Report(notifications.EventTableFull, errors.Is(err, eventstore.ErrTableFull))
	}
	if err != nil {
		return 0, err
	}
	c.persist()
	return refnum, nil
}

func (c *Console) deleteEvent(refnum uint8) error {
	if err := c.store.DeleteByRefnum(refnum); err != nil {
		return err
	}
	c.persist()
	return nil
}

// formatWhen renders a When in its raw symbolic form (reference plus
// signed offset) for the events list. The resolved local-time preview
// lives in model.go's viewPreview, which calls resolver.Resolve and
// converts the result with the console's own tzConfig — §6 requires
// local-time display only in that rendering layer, never in scheduling
// data itself.
func formatWhen(w model.When) string {
	sign := "+"
	off := w.OffsetMinutes
	if off < 0 {
		sign = "-"
		off = -off
	}
	return fmt.Sprintf("%s %s%dm", w.Ref.String(), sign, off)
}

package console

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thatsimonsguy/coopd/internal/model"
	"github.com/thatsimonsguy/coopd/internal/resolver"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	sectionStyle = lipgloss.NewStyle().MarginTop(1)
)

// screen names one of the console's views. Grounded on the menu-driven
// shape of the original interactive console: a root menu of commands,
// each opening a focused sub-view, escape always returning to the menu.
type screen int

const (
	screenMenu screen = iota
	screenDateTime
	screenLocation
	screenEvents
	screenAddEvent
	screenDevices
	screenPreview
)

type menuItem struct {
	title, desc string
	target      screen
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

type deviceItem struct {
	id    model.DeviceID
	state model.State
	busy  bool
}

func (i deviceItem) Title() string {
	tag := ""
	if i.busy {
		tag = " (busy)"
	}
	return fmt.Sprintf("%s — %s%s", i.id.String(), i.state.String(), tag)
}
func (i deviceItem) Description() string { return "enter to toggle on/off" }
func (i deviceItem) FilterValue() string { return i.id.String() }

type eventItem struct {
	ev model.Event
}

func (i eventItem) Title() string {
	return fmt.Sprintf("#%d  %s  %s  %s", i.ev.Refnum, i.ev.DeviceID.String(), i.ev.Action.String(), formatWhen(i.ev.When))
}
func (i eventItem) Description() string { return "d to delete" }
func (i eventItem) FilterValue() string { return i.ev.DeviceID.String() }

// consoleModel is the bubbletea root model. It never touches a device,
// the clock, or the scheduler directly — every mutation is queued on the
// owning Console and applied by Poll on the main-loop goroutine.
type consoleModel struct {
	console *Console
	screen  screen
	width   int
	height  int
	errMsg  string

	menu list.Model

	dateInputs []textinput.Model // Y M D h m
	focusIdx   int

	latInput, lonInput textinput.Model

	events list.Model

	addDevice textinput.Model
	addAction textinput.Model
	addRef    textinput.Model
	addOffset textinput.Model
	addFocus  int

	devices list.Model
}

func newModel(c *Console) *consoleModel {
	items := []list.Item{
		menuItem{"Date & Time", "view or set the RTC's UTC time from local civil time", screenDateTime},
		menuItem{"Location", "view or set latitude/longitude for solar events", screenLocation},
		menuItem{"Events", "list, add, or delete scheduled events", screenEvents},
		menuItem{"Devices", "manually toggle door, lock, relays, and LED", screenDevices},
		menuItem{"Schedule preview", "today's resolved events in local time", screenPreview},
	}
	menu := list.New(items, list.NewDefaultDelegate(), 60, 14)
	menu.Title = "coop console"

	mk := func(ph string, width int) textinput.Model {
		ti := textinput.New()
		ti.Placeholder = ph
		ti.Width = width
		ti.CharLimit = 12
		return ti
	}

	dateInputs := []textinput.Model{
		mk("YYYY", 6), mk("MM", 4), mk("DD", 4), mk("hh", 4), mk("mm", 4),
	}

	m := &consoleModel{
		console:    c,
		screen:     screenMenu,
		menu:       menu,
		dateInputs: dateInputs,
		latInput:   mk("latitude e.g. 34.4653", 20),
		lonInput:   mk("longitude e.g. -93.3628", 20),
		addDevice:  mk("device: door|lock|relay1|relay2|led", 30),
		addAction:  mk("action: on|off", 10),
		addRef:     mk("ref: none|midnight|sunrise|sunset|civil_dawn|civil_dusk", 40),
		addOffset:  mk("offset minutes, e.g. -15", 10),
	}
	m.devices = list.New(nil, list.NewDefaultDelegate(), 60, 14)
	m.devices.Title = "devices"
	m.events = list.New(nil, list.NewDefaultDelegate(), 60, 14)
	m.events.Title = "events"
	return m
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, tick())
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.menu.SetSize(msg.Width-4, msg.Height-6)
		m.events.SetSize(msg.Width-4, msg.Height-6)
		m.devices.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tickMsg:
		m.refreshLists()
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *consoleModel) refreshLists() {
	snap := m.console.currentSnapshot()

	var devItems []list.Item
	for _, id := range []model.DeviceID{model.DeviceDoor, model.DeviceLock, model.DeviceLED, model.DeviceRelay1, model.DeviceRelay2} {
		devItems = append(devItems, deviceItem{id: id, state: snap.DeviceStates[id], busy: snap.DeviceBusy[id]})
	}
	m.devices.SetItems(devItems)

	var evItems []list.Item
	for _, ev := range snap.Events {
		if ev.Empty() {
			continue
		}
		evItems = append(evItems, eventItem{ev: ev})
	}
	m.events.SetItems(evItems)
}

func (m *consoleModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.screen {
	case screenMenu:
		return m.updateMenu(msg)
	case screenDateTime:
		return m.updateDateTime(msg)
	case screenLocation:
		return m.updateLocation(msg)
	case screenEvents:
		return m.updateEvents(msg)
	case screenAddEvent:
		return m.updateAddEvent(msg)
	case screenDevices:
		return m.updateDevices(msg)
	case screenPreview:
		if msg.String() == "esc" || msg.String() == "q" {
			m.screen = screenMenu
		}
		return m, nil
	}
	return m, nil
}

func (m *consoleModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		if it, ok := m.menu.SelectedItem().(menuItem); ok {
			m.errMsg = ""
			m.screen = it.target
			if it.target == screenDevices || it.target == screenEvents {
				m.refreshLists()
			}
		}
		return m, nil
	}
	if msg.String() == "q" {
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.menu, cmd = m.menu.Update(msg)
	return m, cmd
}

func (m *consoleModel) updateDateTime(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenMenu
		m.errMsg = ""
		return m, nil
	case "tab":
		m.focusIdx = (m.focusIdx + 1) % len(m.dateInputs)
		m.focusInputs()
		return m, nil
	case "enter":
		t, err := m.parseDateTime()
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.console.requestSetTime(t)
		m.errMsg = ""
		m.screen = screenMenu
		return m, nil
	}
	var cmd tea.Cmd
	m.dateInputs[m.focusIdx], cmd = m.dateInputs[m.focusIdx].Update(msg)
	return m, cmd
}

func (m *consoleModel) focusInputs() {
	for i := range m.dateInputs {
		if i == m.focusIdx {
			m.dateInputs[i].Focus()
		} else {
			m.dateInputs[i].Blur()
		}
	}
}

// localOffset computes the fixed offset from UTC implied by tzHours and
// honorDST. Both fields are documented (§3) as presentation-only values
// the operator sets directly rather than an IANA zone name, so this is a
// flat hour offset plus a one-hour bump when honorDST is set, not a
// calendar-based DST transition rule.
func localOffset(tzHours int32, honorDST bool) time.Duration {
	off := time.Duration(tzHours) * time.Hour
	if honorDST {
		off += time.Hour
	}
	return off
}

// parseDateTime interprets the five fields as local civil time (the
// console is the sole place TZ/DST conversion happens per §6) and
// converts to UTC using the loaded Config's tz_hours/honor_dst before
// returning, so the RTC always stores UTC regardless of what the
// operator typed.
func (m *consoleModel) parseDateTime() (time.Time, error) {
	vals := make([]int, len(m.dateInputs))
	for i, ti := range m.dateInputs {
		v, err := strconv.Atoi(strings.TrimSpace(ti.Value()))
		if err != nil {
			return time.Time{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	local := time.Date(vals[0], time.Month(vals[1]), vals[2], vals[3], vals[4], 0, 0, time.UTC)
	tzHours, honorDST := m.console.tzConfig()
	return local.Add(-localOffset(tzHours, honorDST)), nil
}

func (m *consoleModel) updateLocation(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenMenu
		m.errMsg = ""
		return m, nil
	case "tab":
		if m.latInput.Focused() {
			m.latInput.Blur()
			m.lonInput.Focus()
		} else {
			m.lonInput.Blur()
			m.latInput.Focus()
		}
		return m, nil
	case "enter":
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(m.latInput.Value()), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(m.lonInput.Value()), 64)
		if err1 != nil || err2 != nil {
			m.errMsg = "latitude and longitude must be decimal numbers"
			return m, nil
		}
		m.console.requestSetLocation(lat, lon)
		m.errMsg = ""
		m.screen = screenMenu
		return m, nil
	}
	var cmd tea.Cmd
	if m.latInput.Focused() {
		m.latInput, cmd = m.latInput.Update(msg)
	} else {
		m.lonInput, cmd = m.lonInput.Update(msg)
	}
	return m, cmd
}

func (m *consoleModel) updateEvents(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenMenu
		return m, nil
	case "a":
		m.screen = screenAddEvent
		m.addFocus = 0
		m.addDevice.Focus()
		return m, nil
	case "d":
		if it, ok := m.events.SelectedItem().(eventItem); ok {
			if err := m.console.deleteEvent(it.ev.Refnum); err != nil {
				m.errMsg = "ERROR: " + err.Error()
			} else {
				m.errMsg = ""
				m.refreshLists()
			}
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.events, cmd = m.events.Update(msg)
	return m, cmd
}

var addInputs = 4

func (m *consoleModel) updateAddEvent(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenEvents
		m.errMsg = ""
		return m, nil
	case "tab":
		m.blurAdd()
		m.addFocus = (m.addFocus + 1) % addInputs
		m.focusAdd()
		return m, nil
	case "enter":
		ev, err := m.parseAddEvent()
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		if _, err := m.console.addEvent(ev.DeviceID, ev.Action, ev.When); err != nil {
			m.errMsg = "ERROR: " + err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.screen = screenEvents
		m.refreshLists()
		return m, nil
	}

	var cmd tea.Cmd
	switch m.addFocus {
	case 0:
		m.addDevice, cmd = m.addDevice.Update(msg)
	case 1:
		m.addAction, cmd = m.addAction.Update(msg)
	case 2:
		m.addRef, cmd = m.addRef.Update(msg)
	case 3:
		m.addOffset, cmd = m.addOffset.Update(msg)
	}
	return m, cmd
}

func (m *consoleModel) focusAdd() {
	switch m.addFocus {
	case 0:
		m.addDevice.Focus()
	case 1:
		m.addAction.Focus()
	case 2:
		m.addRef.Focus()
	case 3:
		m.addOffset.Focus()
	}
}

func (m *consoleModel) blurAdd() {
	m.addDevice.Blur()
	m.addAction.Blur()
	m.addRef.Blur()
	m.addOffset.Blur()
}

func (m *consoleModel) parseAddEvent() (model.Event, error) {
	deviceID, err := parseDeviceID(strings.TrimSpace(m.addDevice.Value()))
	if err != nil {
		return model.Event{}, err
	}
	action, err := parseAction(strings.TrimSpace(m.addAction.Value()))
	if err != nil {
		return model.Event{}, err
	}
	ref, err := parseSolarRef(strings.TrimSpace(m.addRef.Value()))
	if err != nil {
		return model.Event{}, err
	}
	offsetStr := strings.TrimSpace(m.addOffset.Value())
	var offset int
	if offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return model.Event{}, fmt.Errorf("offset must be an integer: %w", err)
		}
	}
	return model.Event{DeviceID: deviceID, Action: action, When: model.When{Ref: ref, OffsetMinutes: int16(offset)}}, nil
}

func parseDeviceID(s string) (model.DeviceID, error) {
	switch strings.ToLower(s) {
	case "door":
		return model.DeviceDoor, nil
	case "lock":
		return model.DeviceLock, nil
	case "led":
		return model.DeviceLED, nil
	case "relay1":
		return model.DeviceRelay1, nil
	case "relay2":
		return model.DeviceRelay2, nil
	default:
		return 0, fmt.Errorf("unknown device %q", s)
	}
}

func parseAction(s string) (model.Action, error) {
	switch strings.ToLower(s) {
	case "on":
		return model.ActionOn, nil
	case "off":
		return model.ActionOff, nil
	default:
		return 0, fmt.Errorf("action must be on|off, got %q", s)
	}
}

func parseSolarRef(s string) (model.SolarRef, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return model.RefNone, nil
	case "midnight":
		return model.RefMidnight, nil
	case "sunrise":
		return model.RefSolarSunrise, nil
	case "sunset":
		return model.RefSolarSunset, nil
	case "civil_dawn":
		return model.RefCivilDawn, nil
	case "civil_dusk":
		return model.RefCivilDusk, nil
	default:
		return 0, fmt.Errorf("unknown reference %q", s)
	}
}

func (m *consoleModel) updateDevices(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenMenu
		return m, nil
	case "enter":
		if it, ok := m.devices.SelectedItem().(deviceItem); ok {
			desired := model.StateOn
			if it.state == model.StateOn {
				desired = model.StateOff
			}
			m.console.requestSetDevice(it.id, desired)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.devices, cmd = m.devices.Update(msg)
	return m, cmd
}

func (m *consoleModel) View() string {
	var body string
	switch m.screen {
	case screenMenu:
		body = m.menu.View()
	case screenDateTime:
		body = m.viewDateTime()
	case screenLocation:
		body = m.viewLocation()
	case screenEvents:
		body = m.events.View() + "\n" + helpStyle.Render("a: add   d: delete   esc: back")
	case screenAddEvent:
		body = m.viewAddEvent()
	case screenDevices:
		body = m.devices.View() + "\n" + helpStyle.Render("enter: toggle   esc: back")
	case screenPreview:
		body = m.viewPreview()
	}

	header := titleStyle.Render("coop console")
	footer := ""
	if m.errMsg != "" {
		footer = "\n" + errorStyle.Render(m.errMsg)
	}
	snap := m.console.currentSnapshot()
	status := statusStyle.Render(fmt.Sprintf("UTC %s   time_valid=%v", snap.Now.Format("2006-01-02 15:04:05"), snap.TimeValid))
	return header + "\n" + status + "\n\n" + body + footer
}

func (m *consoleModel) viewDateTime() string {
	labels := []string{"Year", "Month", "Day", "Hour", "Minute"}
	var b strings.Builder
	b.WriteString("Set RTC time from local civil time, tab between fields, enter to apply:\n\n")
	for i, ti := range m.dateInputs {
		b.WriteString(fmt.Sprintf("%-7s %s\n", labels[i], ti.View()))
	}
	b.WriteString(helpStyle.Render("\nesc: back"))
	return b.String()
}

func (m *consoleModel) viewLocation() string {
	var b strings.Builder
	b.WriteString("Set scheduling location (decimal degrees), tab to switch, enter to apply:\n\n")
	b.WriteString(fmt.Sprintf("Latitude   %s\n", m.latInput.View()))
	b.WriteString(fmt.Sprintf("Longitude  %s\n", m.lonInput.View()))
	b.WriteString(helpStyle.Render("\nesc: back"))
	return b.String()
}

func (m *consoleModel) viewAddEvent() string {
	var b strings.Builder
	b.WriteString("Add event, tab between fields, enter to submit:\n\n")
	b.WriteString(fmt.Sprintf("Device  %s\n", m.addDevice.View()))
	b.WriteString(fmt.Sprintf("Action  %s\n", m.addAction.View()))
	b.WriteString(fmt.Sprintf("Ref     %s\n", m.addRef.View()))
	b.WriteString(fmt.Sprintf("Offset  %s\n", m.addOffset.View()))
	b.WriteString(helpStyle.Render("\nesc: back"))
	return b.String()
}

// viewPreview renders today's events resolved against the cached solar
// snapshot and converted to local civil time via the loaded Config's
// tz_hours/honor_dst — display only; the resolver and reducer themselves
// never see anything but UTC minutes, per §9's "time model purity" note.
func (m *consoleModel) viewPreview() string {
	snap := m.console.currentSnapshot()
	offset := localOffset(snap.TZHours, snap.HonorDST)

	var b strings.Builder
	b.WriteString("Today's events, resolved and shown in local time:\n\n")
	any := false
	for _, ev := range snap.Events {
		if ev.Empty() {
			continue
		}
		any = true
		timeStr := "unresolved"
		if minute, ok := resolver.Resolve(ev.When, snap.Solar); ok {
			utcClock := time.Date(0, 1, 1, minute/60, minute%60, 0, 0, time.UTC)
			timeStr = utcClock.Add(offset).Format("15:04")
		}
		b.WriteString(fmt.Sprintf("#%-3d %-8s %-4s %-6s %s\n", ev.Refnum, ev.DeviceID.String(), ev.Action.String(), timeStr, formatWhen(ev.When)))
	}
	if !any {
		b.WriteString("(no events scheduled)\n")
	}
	b.WriteString(sectionStyle.Render(helpStyle.Render("esc: back")))
	return b.String()
}

// Package scheduler implements the scheduler facade (§4.5): it caches the
// daily solar snapshot, exposes a monotonic ETag for change detection, and
// computes the next scheduled minute over the current event table.
//
// Grounded on the teacher's internal/env global-pointer pattern — this is
// process-wide state with an explicit lifecycle, not a value threaded
// through every call site.
package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/thatsimonsguy/coopd/internal/model"
	"github.com/thatsimonsguy/coopd/internal/resolver"
)

// Facade is the process-wide scheduler cache.
type Facade struct {
	etag uint32

	mu       sync.RWMutex
	snapshot *model.SolarSnapshot
	y, mo, d int
}

func New() *Facade {
	return &Facade{}
}

// ScheduleEtag returns the current ETag. Strictly increases on every
// Touch call; unaffected by reads.
func (f *Facade) ScheduleEtag() uint32 {
	return atomic.LoadUint32(&f.etag)
}

// Touch invalidates caches and bumps the ETag. Wired as the event store's
// TouchFunc, and called directly by InvalidateSolar on location/date
// changes.
func (f *Facade) Touch() {
	atomic.AddUint32(&f.etag, 1)
}

// UpdateDay stores today's snapshot (or marks it absent if ok is false)
// and the date it was computed for.
func (f *Facade) UpdateDay(y, mo, d int, snapshot *model.SolarSnapshot, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.y, f.mo, f.d = y, mo, d
	if ok {
		f.snapshot = snapshot
	} else {
		f.snapshot = nil
	}
}

// Snapshot returns the currently cached solar snapshot, or nil if absent.
func (f *Facade) Snapshot() *model.SolarSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot
}

// CachedDate returns the calendar date the cached snapshot was computed
// for, used by the main loop to detect a date rollover.
func (f *Facade) CachedDate() (y, mo, d int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.y, f.mo, f.d
}

// InvalidateSolar drops the cached snapshot and bumps the ETag — called
// when the configured location changes.
func (f *Facade) InvalidateSolar() {
	f.mu.Lock()
	f.snapshot = nil
	f.mu.Unlock()
	f.Touch()
}

// NextEventMinute scans events against the cached snapshot and returns
// the lowest resolved minute today, or ok=false if no event resolves.
// Per the spec's Open Question resolution, this never applies a
// strict-future guard — that responsibility belongs solely to the main
// loop (§4.11 step 9), its only caller that needs it.
func (f *Facade) NextEventMinute(events []model.Event) (minute int, ok bool) {
	snapshot := f.Snapshot()
	best := -1
	for _, ev := range events {
		if ev.Refnum == 0 {
			continue
		}
		m, resolved := resolver.Resolve(ev.When, snapshot)
		if !resolved {
			continue
		}
		if best == -1 || m < best {
			best = m
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// Reset returns the facade to its zero-value lifecycle state, satisfying
// the "tests require a reset hook on each [global module]" design note.
func (f *Facade) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	atomic.StoreUint32(&f.etag, 0)
	f.snapshot = nil
	f.y, f.mo, f.d = 0, 0, 0
}

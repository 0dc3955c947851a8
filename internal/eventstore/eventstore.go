// Package eventstore holds declarative schedule intent in a sparse,
// fixed-capacity table and publishes change notifications (§4.1). Mutated
// only through Add/DeleteByRefnum/UpdateByRefnum/Clear, each of which
// calls a single touch hook; read-only views never do.
//
// Grounded on the teacher's internal/state package for its
// explicitly-initialized, process-wide lifecycle, generalized here to a
// fixed-capacity array instead of a JSON-backed slice: "nothing in the
// core allocates memory at runtime" (§3) rules out growing a slice after
// construction.
package eventstore

import (
	"errors"
	"sync"

	"github.com/samber/lo"
	"github.com/thatsimonsguy/coopd/internal/model"
)

var (
	ErrTableFull     = errors.New("event table full")
	ErrRefnumNotFound = errors.New("refnum not found")
)

// TouchFunc is called once per mutation; the scheduler facade supplies
// its own touch implementation (ETag bump + cache invalidation).
type TouchFunc func()

// Store is the process-wide event table. Tests get a fresh instance via
// New; production wiring (cmd/coopd) constructs a single instance with New.
type Store struct {
	mu     sync.RWMutex
	events [model.MaxEvents]model.Event
	touch  TouchFunc
}

func New(touch TouchFunc) *Store {
	if touch == nil {
		touch = func() {}
	}
	return &Store{touch: touch}
}

// EventsView returns a read-only copy of the full capacity table. Callers
// MUST iterate every slot and test Refnum == 0 for emptiness; the second
// return value is informational only and MUST NOT be used as a bound.
func (s *Store) EventsView() ([model.MaxEvents]model.Event, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := lo.CountBy(s.events[:], func(e model.Event) bool { return !e.Empty() })
	return s.events, count
}

// Add places ev into the first empty slot, assigns Refnum = index+1, and
// notifies. Returns ErrTableFull if no slot is free.
func (s *Store) Add(ev model.Event) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].Empty() {
			ev.Refnum = uint8(i + 1)
			s.events[i] = ev
			s.touch()
			return ev.Refnum, nil
		}
	}
	return 0, ErrTableFull
}

// DeleteByRefnum fully zeroes the slot holding refnum, preserving the
// empty-slot invariant, and notifies. Returns ErrRefnumNotFound if no
// slot currently holds that refnum.
func (s *Store) DeleteByRefnum(refnum uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, idx, found := lo.FindIndexOf(s.events[:], func(e model.Event) bool { return e.Refnum == refnum })
	if !found {
		return ErrRefnumNotFound
	}
	s.events[idx] = model.Event{}
	s.touch()
	return nil
}

// UpdateByRefnum overwrites the slot holding refnum with ev, preserving
// the original refnum regardless of what ev.Refnum is set to, and
// notifies. Returns ErrRefnumNotFound if no slot currently holds refnum.
func (s *Store) UpdateByRefnum(refnum uint8, ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, idx, found := lo.FindIndexOf(s.events[:], func(e model.Event) bool { return e.Refnum == refnum })
	if !found {
		return ErrRefnumNotFound
	}
	ev.Refnum = refnum
	s.events[idx] = ev
	s.touch()
	return nil
}

// Clear zeroes the entire table and notifies once.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = [model.MaxEvents]model.Event{}
	s.touch()
}

// LoadFrom replaces the table wholesale from a persisted blob without
// notifying — used once at boot when hydrating from config, where there
// is no prior scheduler state to invalidate.
func (s *Store) LoadFrom(events [model.MaxEvents]model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
}

// Reset clears the table and leaves the installed touch hook in place,
// satisfying the "tests require a reset hook on each [global module]"
// design note (§9).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = [model.MaxEvents]model.Event{}
}

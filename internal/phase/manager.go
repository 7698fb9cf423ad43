// Package phase implements the phase manager and phase transition
// handler: a pure function of wall time and configuration mapping to a
// named market regime, plus an edge detector that fires the
// auction-clear and cancel-all actions when the regime changes.
//
// No teacher analog exists in fenrir (which has no trading-session
// concept); the window/weekday shape is grounded on original_source's
// phase test suite naming (test_phase_manager.py, test_transition_handler.py).
// The clock is never read directly — callers inject "now" into every
// public entry point, keeping phase decisions replayable in tests.
package phase

import (
	"fmt"
	"time"

	"intern-exchange/internal/domain"
)

// Window is one named schedule entry: the phase is in effect between
// Start and End time-of-day, on the given weekdays, in the configured
// timezone.
type Window struct {
	Phase    domain.PhaseType
	Start    time.Duration // offset since midnight
	End      time.Duration
	Weekdays map[time.Weekday]bool
}

func (w Window) active(now time.Time) bool {
	if !w.Weekdays[now.Weekday()] {
		return false
	}
	sinceMidnight := now.Sub(startOfDay(now))
	return sinceMidnight >= w.Start && sinceMidnight < w.End
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// recognizedPhases is the exact set of phase names configuration may
// name. Anything else is a fatal load error.
var recognizedPhases = map[domain.PhaseType]bool{
	domain.PhaseClosed:         true,
	domain.PhasePreOpen:        true,
	domain.PhaseOpeningAuction: true,
	domain.PhaseContinuous:     true,
}

// Manager maps wall time to a market phase and its capability state.
type Manager struct {
	loc     *time.Location
	windows []Window
	states  map[domain.PhaseType]domain.PhaseState
}

// NewManager validates the schedule and state table and builds a
// Manager. Returns an error (the configuration's fatal load error) if
// any phase name is unrecognized.
func NewManager(loc *time.Location, windows []Window, states map[domain.PhaseType]domain.PhaseState) (*Manager, error) {
	for _, w := range windows {
		if !recognizedPhases[w.Phase] {
			return nil, fmt.Errorf("unrecognized phase name in schedule: %q", w.Phase)
		}
	}
	for name := range states {
		if !recognizedPhases[name] {
			return nil, fmt.Errorf("unrecognized phase name in phase-state table: %q", name)
		}
	}
	return &Manager{loc: loc, windows: windows, states: states}, nil
}

// CurrentPhase returns the phase whose window matches now, or
// PhaseClosed when no window matches.
func (m *Manager) CurrentPhase(now time.Time) domain.PhaseType {
	now = now.In(m.loc)
	for _, w := range m.windows {
		if w.active(now) {
			return w.Phase
		}
	}
	return domain.PhaseClosed
}

// CurrentState returns the full capability struct for now's phase.
func (m *Manager) CurrentState(now time.Time) domain.PhaseState {
	p := m.CurrentPhase(now)
	if s, ok := m.states[p]; ok {
		return s
	}
	// A recognized phase with no configured state behaves as fully
	// closed — conservative default, never silently permissive.
	return domain.PhaseState{Phase: p}
}

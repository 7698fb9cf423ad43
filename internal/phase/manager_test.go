package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intern-exchange/internal/domain"
)

func allWeekdays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Monday: true, time.Tuesday: true, time.Wednesday: true,
		time.Thursday: true, time.Friday: true,
	}
}

func testWindows() []Window {
	return []Window{
		{Phase: domain.PhasePreOpen, Start: 9 * time.Hour, End: 9*time.Hour + 30*time.Minute, Weekdays: allWeekdays()},
		{Phase: domain.PhaseOpeningAuction, Start: 9*time.Hour + 30*time.Minute, End: 9*time.Hour + 31*time.Minute, Weekdays: allWeekdays()},
		{Phase: domain.PhaseContinuous, Start: 9*time.Hour + 31*time.Minute, End: 16 * time.Hour, Weekdays: allWeekdays()},
	}
}

func testStates() map[domain.PhaseType]domain.PhaseState {
	return map[domain.PhaseType]domain.PhaseState{
		domain.PhaseClosed:         {Phase: domain.PhaseClosed},
		domain.PhasePreOpen:        {Phase: domain.PhasePreOpen, SubmissionAllowed: true, CancellationAllowed: true, ExecutionStyle: domain.ExecutionNone},
		domain.PhaseOpeningAuction: {Phase: domain.PhaseOpeningAuction, SubmissionAllowed: false, CancellationAllowed: false, MatchingEnabled: true, ExecutionStyle: domain.ExecutionBatch},
		domain.PhaseContinuous:     {Phase: domain.PhaseContinuous, SubmissionAllowed: true, CancellationAllowed: true, MatchingEnabled: true, ExecutionStyle: domain.ExecutionContinuous},
	}
}

func at(hour, minute int) time.Time {
	// A Wednesday.
	return time.Date(2026, time.July, 29, hour, minute, 0, 0, time.UTC)
}

func TestManager_CurrentPhase_MatchesWindow(t *testing.T) {
	m, err := NewManager(time.UTC, testWindows(), testStates())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseClosed, m.CurrentPhase(at(8, 0)))
	assert.Equal(t, domain.PhasePreOpen, m.CurrentPhase(at(9, 15)))
	assert.Equal(t, domain.PhaseOpeningAuction, m.CurrentPhase(at(9, 30)))
	assert.Equal(t, domain.PhaseContinuous, m.CurrentPhase(at(10, 0)))
	assert.Equal(t, domain.PhaseClosed, m.CurrentPhase(at(17, 0)))
}

func TestManager_CurrentPhase_OutsideWeekdaysIsClosed(t *testing.T) {
	m, err := NewManager(time.UTC, testWindows(), testStates())
	require.NoError(t, err)

	saturday := time.Date(2026, time.August, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, domain.PhaseClosed, m.CurrentPhase(saturday))
}

func TestManager_CurrentState_ReflectsCapabilities(t *testing.T) {
	m, err := NewManager(time.UTC, testWindows(), testStates())
	require.NoError(t, err)

	state := m.CurrentState(at(10, 0))
	assert.True(t, state.SubmissionAllowed)
	assert.Equal(t, domain.ExecutionContinuous, state.ExecutionStyle)
}

func TestManager_CurrentState_UnconfiguredRecognizedPhaseDefaultsClosed(t *testing.T) {
	states := testStates()
	delete(states, domain.PhaseContinuous)
	m, err := NewManager(time.UTC, testWindows(), states)
	require.NoError(t, err)

	state := m.CurrentState(at(10, 0))
	assert.False(t, state.SubmissionAllowed)
	assert.False(t, state.CancellationAllowed)
}

func TestNewManager_RejectsUnrecognizedPhaseInSchedule(t *testing.T) {
	windows := []Window{{Phase: domain.PhaseType("lunch_break"), Weekdays: allWeekdays()}}
	_, err := NewManager(time.UTC, windows, testStates())
	assert.Error(t, err)
}

func TestNewManager_RejectsUnrecognizedPhaseInStateTable(t *testing.T) {
	states := map[domain.PhaseType]domain.PhaseState{domain.PhaseType("lunch_break"): {}}
	_, err := NewManager(time.UTC, testWindows(), states)
	assert.Error(t, err)
}

type fakeActions struct {
	auctionClears int
	massCancels   int
}

func (f *fakeActions) TriggerAuctionClear() { f.auctionClears++ }
func (f *fakeActions) CancelAllResting()    { f.massCancels++ }

func TestTransitionHandler_FirstObservationNeverFires(t *testing.T) {
	actions := &fakeActions{}
	h := NewTransitionHandler(actions)

	fired := h.Check(domain.PhasePreOpen)
	assert.False(t, fired)
	assert.Zero(t, actions.auctionClears)
}

func TestTransitionHandler_FiresExactlyOncePerEdge(t *testing.T) {
	actions := &fakeActions{}
	h := NewTransitionHandler(actions)

	h.Check(domain.PhasePreOpen)
	fired := h.Check(domain.PhaseOpeningAuction)
	assert.True(t, fired)
	assert.Equal(t, 1, actions.auctionClears)

	// Repeated checks against the same phase must not re-fire.
	for i := 0; i < 5; i++ {
		assert.False(t, h.Check(domain.PhaseOpeningAuction))
	}
	assert.Equal(t, 1, actions.auctionClears)
}

func TestTransitionHandler_ContinuousToClosedFiresMassCancel(t *testing.T) {
	actions := &fakeActions{}
	h := NewTransitionHandler(actions)

	h.Check(domain.PhaseContinuous)
	fired := h.Check(domain.PhaseClosed)
	assert.True(t, fired)
	assert.Equal(t, 1, actions.massCancels)
	assert.Zero(t, actions.auctionClears)
}

func TestTransitionHandler_UnrecognizedEdgeFiresNothing(t *testing.T) {
	actions := &fakeActions{}
	h := NewTransitionHandler(actions)

	h.Check(domain.PhaseClosed)
	fired := h.Check(domain.PhasePreOpen)
	assert.True(t, fired)
	assert.Zero(t, actions.auctionClears)
	assert.Zero(t, actions.massCancels)
}

package venue

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intern-exchange/internal/domain"
	"intern-exchange/internal/matching"
	"intern-exchange/internal/phase"
)

func allWeekdays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Monday: true, time.Tuesday: true, time.Wednesday: true,
		time.Thursday: true, time.Friday: true,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2026, time.July, 29, hour, minute, 0, 0, time.UTC) // a Wednesday
}

func continuousOnlyManager(t *testing.T) *phase.Manager {
	windows := []phase.Window{
		{Phase: domain.PhaseContinuous, Start: 0, End: 24 * time.Hour, Weekdays: allWeekdays()},
	}
	states := map[domain.PhaseType]domain.PhaseState{
		domain.PhaseContinuous: {Phase: domain.PhaseContinuous, SubmissionAllowed: true, CancellationAllowed: true, MatchingEnabled: true, ExecutionStyle: domain.ExecutionContinuous},
	}
	m, err := phase.NewManager(time.UTC, windows, states)
	require.NoError(t, err)
	return m
}

func auctionThenContinuousManager(t *testing.T) *phase.Manager {
	windows := []phase.Window{
		{Phase: domain.PhasePreOpen, Start: 8*time.Hour + 30*time.Minute, End: 9 * time.Hour, Weekdays: allWeekdays()},
		{Phase: domain.PhaseOpeningAuction, Start: 9 * time.Hour, End: 9*time.Hour + 30*time.Minute, Weekdays: allWeekdays()},
		{Phase: domain.PhaseContinuous, Start: 9*time.Hour + 30*time.Minute, End: 16 * time.Hour, Weekdays: allWeekdays()},
	}
	states := map[domain.PhaseType]domain.PhaseState{
		domain.PhasePreOpen:        {Phase: domain.PhasePreOpen, SubmissionAllowed: true, CancellationAllowed: true, ExecutionStyle: domain.ExecutionBatch},
		domain.PhaseOpeningAuction: {Phase: domain.PhaseOpeningAuction, SubmissionAllowed: true, CancellationAllowed: true, MatchingEnabled: true, ExecutionStyle: domain.ExecutionBatch},
		domain.PhaseContinuous:     {Phase: domain.PhaseContinuous, SubmissionAllowed: true, CancellationAllowed: true, MatchingEnabled: true, ExecutionStyle: domain.ExecutionContinuous},
	}
	m, err := phase.NewManager(time.UTC, windows, states)
	require.NoError(t, err)
	return m
}

func limitOrder(id, trader, instrumentID string, side domain.Side, price float64, qty uint64) *domain.Order {
	return &domain.Order{
		OrderID: id, TraderID: trader, InstrumentID: instrumentID,
		Side: side, OrderType: domain.LimitOrder, Price: price, HasPrice: true,
		Quantity: qty, RemainingQty: qty,
	}
}

func TestSubmit_RoutesToContinuousAndFills(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))
	v := New([]string{"AAPL"}, continuousOnlyManager(t), batch, nil, nil)

	_, err := v.Submit(limitOrder("o1", "maker", "AAPL", domain.Sell, 100, 10), at(10, 0))
	require.NoError(t, err)

	result, err := v.Submit(limitOrder("o2", "taker", "AAPL", domain.Buy, 100, 4), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, result.Status)
}

func TestSubmit_UnknownInstrumentIsRejected(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))
	v := New([]string{"AAPL"}, continuousOnlyManager(t), batch, nil, nil)

	_, err := v.Submit(limitOrder("o1", "trader", "MSFT", domain.Buy, 100, 1), at(10, 0))
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestSubmit_ClosedPhaseRejectsSubmission(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))
	v := New([]string{"AAPL"}, continuousOnlyManager(t), batch, nil, nil)

	// Saturday: no window is active, so the phase is closed.
	saturday := time.Date(2026, time.August, 1, 10, 0, 0, 0, time.UTC)
	_, err := v.Submit(limitOrder("o1", "trader", "AAPL", domain.Buy, 100, 1), saturday)
	assert.ErrorIs(t, err, ErrSubmissionClosed)
}

func TestSubmit_DuringOpeningAuctionPendsUntilClear(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))
	v := New([]string{"AAPL"}, auctionThenContinuousManager(t), batch, nil, nil)

	result, err := v.Submit(limitOrder("o1", "trader", "AAPL", domain.Buy, 100, 10), at(9, 15))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingNew, result.Status)
}

func TestCancel_RestingContinuousOrderSucceeds(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))
	v := New([]string{"AAPL"}, continuousOnlyManager(t), batch, nil, nil)

	_, err := v.Submit(limitOrder("o1", "trader", "AAPL", domain.Buy, 100, 10), at(10, 0))
	require.NoError(t, err)

	assert.NoError(t, v.Cancel("AAPL", "o1", "trader", at(10, 0)))
}

func TestCancel_FallsBackToBatchPendingPool(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))
	v := New([]string{"AAPL"}, auctionThenContinuousManager(t), batch, nil, nil)

	_, err := v.Submit(limitOrder("o1", "trader", "AAPL", domain.Buy, 100, 10), at(9, 15))
	require.NoError(t, err)

	assert.NoError(t, v.Cancel("AAPL", "o1", "trader", at(9, 15)))
}

func TestCancel_UnknownInstrumentIsRejected(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))
	v := New([]string{"AAPL"}, continuousOnlyManager(t), batch, nil, nil)

	err := v.Cancel("MSFT", "o1", "trader", at(10, 0))
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestCheckPhaseTransitions_FiresAuctionClearOnEnteringOpeningAuction(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))

	var cleared map[string]map[string]domain.OrderResult
	onCleared := func(r map[string]map[string]domain.OrderResult) { cleared = r }

	v := New([]string{"AAPL"}, auctionThenContinuousManager(t), batch, onCleared, nil)

	_, err := v.Submit(limitOrder("b1", "buyer", "AAPL", domain.Buy, 101, 10), at(8, 45))
	require.NoError(t, err)
	_, err = v.Submit(limitOrder("s1", "seller", "AAPL", domain.Sell, 99, 10), at(8, 45))
	require.NoError(t, err)

	v.CheckPhaseTransitions(at(8, 45))
	assert.Nil(t, cleared)

	v.CheckPhaseTransitions(at(9, 15))
	require.NotNil(t, cleared)
	assert.Len(t, cleared["AAPL"], 2)
}

func TestCheckPhaseTransitions_FiresCancelAllOnEnteringClosed(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))

	var cancelled map[string][]*domain.Order
	onCancelled := func(c map[string][]*domain.Order) { cancelled = c }

	v := New([]string{"AAPL"}, continuousOnlyManager(t), batch, nil, onCancelled)

	_, err := v.Submit(limitOrder("o1", "trader", "AAPL", domain.Buy, 100, 10), at(10, 0))
	require.NoError(t, err)

	v.CheckPhaseTransitions(at(10, 0))
	assert.Nil(t, cancelled)

	saturday := time.Date(2026, time.August, 1, 10, 0, 0, 0, time.UTC)
	v.CheckPhaseTransitions(saturday)
	require.NotNil(t, cancelled)
	assert.Len(t, cancelled["AAPL"], 1)
}

func TestBook_ReturnsFalseForUnknownInstrument(t *testing.T) {
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))
	v := New([]string{"AAPL"}, continuousOnlyManager(t), batch, nil, nil)

	_, ok := v.Book("MSFT")
	assert.False(t, ok)

	_, ok = v.Book("AAPL")
	assert.True(t, ok)
}

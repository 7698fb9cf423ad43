package pipeline

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intern-exchange/internal/domain"
	"intern-exchange/internal/matching"
	"intern-exchange/internal/phase"
	"intern-exchange/internal/venue"
)

func allWeekdays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Monday: true, time.Tuesday: true, time.Wednesday: true,
		time.Thursday: true, time.Friday: true,
	}
}

func continuousVenue(t *testing.T) *venue.Venue {
	windows := []phase.Window{
		{Phase: domain.PhaseContinuous, Start: 0, End: 24 * time.Hour, Weekdays: allWeekdays()},
	}
	states := map[domain.PhaseType]domain.PhaseState{
		domain.PhaseContinuous: {Phase: domain.PhaseContinuous, SubmissionAllowed: true, CancellationAllowed: true, MatchingEnabled: true, ExecutionStyle: domain.ExecutionContinuous},
	}
	m, err := phase.NewManager(time.UTC, windows, states)
	require.NoError(t, err)
	batch := matching.NewBatch(rand.New(rand.NewSource(1)))
	return venue.New([]string{"AAPL"}, m, batch, nil, nil)
}

func wednesday() time.Time {
	return time.Date(2026, time.July, 29, 10, 0, 0, 0, time.UTC)
}

func TestMatchingWorker_HandleOrder_ForwardsResultToMatchedQueue(t *testing.T) {
	matched := make(chan MatchedTask, 4)
	w := &MatchingWorker{
		Matched: matched,
		Venue:   continuousVenue(t),
		Now:     wednesday,
	}

	order := &domain.Order{
		OrderID: "o1", TraderID: "team-a", InstrumentID: "AAPL",
		Side: domain.Buy, OrderType: domain.LimitOrder, Price: 100, HasPrice: true,
		Quantity: 10, RemainingQty: 10,
	}
	w.handleOrder(ValidatedTask{Order: order, TeamID: "team-a", Role: "trader", RequestID: "req_1"})

	task := <-matched
	require.NoError(t, task.Err)
	assert.Equal(t, domain.StatusNew, task.Result.Status)
	assert.Equal(t, "req_1", task.RequestID)
}

func TestMatchingWorker_HandleOrder_UnknownInstrumentReportsError(t *testing.T) {
	matched := make(chan MatchedTask, 4)
	w := &MatchingWorker{
		Matched: matched,
		Venue:   continuousVenue(t),
		Now:     wednesday,
	}

	order := &domain.Order{
		OrderID: "o1", TraderID: "team-a", InstrumentID: "MSFT",
		Side: domain.Buy, OrderType: domain.LimitOrder, Price: 100, HasPrice: true,
		Quantity: 10, RemainingQty: 10,
	}
	w.handleOrder(ValidatedTask{Order: order, TeamID: "team-a", Role: "trader", RequestID: "req_1"})

	task := <-matched
	assert.ErrorIs(t, task.Err, venue.ErrUnknownInstrument)
}

func TestMatchingWorker_HandleCancel_ForwardsOutcomeToCancelQueue(t *testing.T) {
	cancelOut := make(chan CancelResultTask, 4)
	v := continuousVenue(t)
	w := &MatchingWorker{
		CancelOut: cancelOut,
		Venue:     v,
		Now:       wednesday,
	}

	_, err := v.Submit(&domain.Order{
		OrderID: "o1", TraderID: "team-a", InstrumentID: "AAPL",
		Side: domain.Buy, OrderType: domain.LimitOrder, Price: 100, HasPrice: true,
		Quantity: 10, RemainingQty: 10,
	}, wednesday())
	require.NoError(t, err)

	w.handleCancel(ValidatedCancel{CancelOrderTask{InstrumentID: "AAPL", OrderID: "o1", TraderID: "team-a", RequestID: "req_1"}})

	task := <-cancelOut
	assert.NoError(t, task.Err)
	assert.Equal(t, "o1", task.OrderID)
}

package pipeline

import (
	"time"

	tomb "gopkg.in/tomb.v2"

	"intern-exchange/internal/venue"
)

// phaseCheckInterval bounds how long the matching worker can go
// between phase-transition checks when no order arrives to wake it —
// an opening auction or close-of-trading edge must still fire even
// during a quiet market.
const phaseCheckInterval = 100 * time.Millisecond

// MatchingWorker drains the validated queue, submits each order or
// cancel to the venue, and forwards the outcome to the trade
// processor. It also polls the venue's phase transitions on a bounded
// interval so that wall-clock-driven edges (opening auction, close)
// fire even when no traffic is flowing.
type MatchingWorker struct {
	Validated <-chan ValidatedTask
	Cancels   <-chan ValidatedCancel
	Matched   chan<- MatchedTask
	CancelOut chan<- CancelResultTask

	Venue *venue.Venue
	Now   func() time.Time
}

func (w *MatchingWorker) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(phaseCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			w.Venue.CheckPhaseTransitions(w.Now())
		case task := <-w.Validated:
			w.Venue.CheckPhaseTransitions(w.Now())
			w.handleOrder(task)
		case task := <-w.Cancels:
			w.Venue.CheckPhaseTransitions(w.Now())
			w.handleCancel(task)
		}
	}
}

func (w *MatchingWorker) handleOrder(task ValidatedTask) {
	now := w.Now()
	result, err := w.Venue.Submit(task.Order, now)
	w.Matched <- MatchedTask{
		Order:     task.Order,
		TeamID:    task.TeamID,
		Role:      task.Role,
		RequestID: task.RequestID,
		Result:    result,
		Err:       err,
		Now:       now,
	}
}

func (w *MatchingWorker) handleCancel(task ValidatedCancel) {
	err := w.Venue.Cancel(task.InstrumentID, task.OrderID, task.TraderID, w.Now())
	w.CancelOut <- CancelResultTask{
		RequestID: task.RequestID,
		TeamID:    task.TraderID,
		OrderID:   task.OrderID,
		Err:       err,
	}
}

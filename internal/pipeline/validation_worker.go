package pipeline

import (
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"intern-exchange/internal/coordinator"
	"intern-exchange/internal/positions"
	"intern-exchange/internal/ratelimit"
	"intern-exchange/internal/validation"
)

// ValidationWorker drains the intake queue, runs each new order
// through the constraint chain and rate limiter for its team's role,
// and forwards survivors to the matching queue. A rejection completes
// the request immediately — it never reaches matching.
type ValidationWorker struct {
	Intake    <-chan IntakeTask
	Validated chan<- ValidatedTask
	Cancels   chan<- ValidatedCancel

	Validator   *validation.Validator
	RateLimiter *ratelimit.Limiter
	Positions   *positions.Book
	Coordinator *coordinator.Coordinator
	Now         func() time.Time
}

// Run drains the intake queue until the tomb is dying or a Shutdown
// sentinel arrives.
func (w *ValidationWorker) Run(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-w.Intake:
			if task.Shutdown {
				return nil
			}
			w.handle(task)
		}
	}
}

func (w *ValidationWorker) handle(task IntakeTask) {
	switch {
	case task.NewOrder != nil:
		w.handleNewOrder(task.NewOrder)
	case task.Cancel != nil:
		w.Cancels <- ValidatedCancel{CancelOrderTask: *task.Cancel}
	}
}

func (w *ValidationWorker) handleNewOrder(t *NewOrderTask) {
	now := w.Now()

	ctx := validation.Context{
		Order:             t.Order,
		TraderRole:        t.Role,
		CurrentPositions:  w.Positions.Snapshot(t.TeamID),
		OrdersThisSecond:  w.RateLimiter.Count(t.TeamID, now),
	}

	result := w.Validator.Validate(ctx)
	if !result.Valid {
		w.reject(t, result)
		return
	}

	w.RateLimiter.Record(t.TeamID, now)

	if err := w.Coordinator.UpdateStatus(t.RequestID, coordinator.StatusValidating); err != nil {
		log.Error().Err(err).Str("request_id", t.RequestID).Msg("update status after validation failed")
	}

	w.Validated <- ValidatedTask{
		Order:     t.Order,
		TeamID:    t.TeamID,
		Role:      t.Role,
		RequestID: t.RequestID,
	}
}

func (w *ValidationWorker) reject(t *NewOrderTask, result validation.Result) {
	if err := w.Coordinator.Complete(t.RequestID, RejectionResponse{
		OrderID:      t.Order.OrderID,
		ErrorCode:    result.ErrorCode,
		ErrorMessage: result.ErrorMessage,
	}); err != nil {
		log.Error().Err(err).Str("request_id", t.RequestID).Msg("complete rejection failed")
	}
}

// RejectionResponse is the terminal coordinator value for an order
// that never made it past validation.
type RejectionResponse struct {
	OrderID      string
	ErrorCode    string
	ErrorMessage string
}

// Package pipeline wires the tomb-supervised worker stages that carry
// an order from intake through validation, matching, and settlement,
// completing the caller's response coordinator entry at the end.
//
// Grounded on fenrir/internal/worker.go's WorkerPool (tomb-supervised,
// bounded channel of tasks), generalized from one generic task queue
// into three typed stage queues per original_source's
// test_validator_thread.py / test_matching_thread_phase_integration.py
// staged-thread shape.
package pipeline

import (
	"time"

	"intern-exchange/internal/domain"
)

// NewOrderTask carries a new order submission through the pipeline.
type NewOrderTask struct {
	Order     *domain.Order
	TeamID    string
	Role      string
	RequestID string
}

// CancelOrderTask carries a cancel request through the pipeline.
type CancelOrderTask struct {
	InstrumentID string
	OrderID      string
	TraderID     string
	RequestID    string
}

// IntakeTask is the tagged union the validation worker drains: exactly
// one of NewOrder or Cancel is set, or Shutdown is true as the
// sentinel telling the worker to stop pulling further work.
type IntakeTask struct {
	NewOrder *NewOrderTask
	Cancel   *CancelOrderTask
	Shutdown bool
}

// ValidatedTask is what the validation worker hands the matching
// worker once a new order clears every constraint.
type ValidatedTask struct {
	Order     *domain.Order
	TeamID    string
	Role      string
	RequestID string
}

// ValidatedCancel is what the validation worker hands the matching
// worker for a cancel request (cancels bypass constraint validation
// but still flow through the same staged pipeline).
type ValidatedCancel struct {
	CancelOrderTask
}

// MatchedTask is what the matching worker hands the trade processor:
// the venue's result for one order, plus enough context to compute
// fees, positions, and the final coordinator response.
type MatchedTask struct {
	Order     *domain.Order
	TeamID    string
	Role      string
	RequestID string
	Result    domain.OrderResult
	Err       error
	Now       time.Time
}

// CancelResultTask is what the matching worker hands the trade
// processor after a cancel attempt.
type CancelResultTask struct {
	RequestID string
	TeamID    string
	OrderID   string
	Err       error
}

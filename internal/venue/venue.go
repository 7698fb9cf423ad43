// Package venue implements the exchange venue: the instrument registry
// binding one order book per instrument, plus one continuous and one
// batch engine shared across all instruments, to the phase manager, and dispatching
// submissions and cancels according to the phase's capability flags.
//
// Grounded on fenrir/internal/engine/engine.go's `Engine.Books
// map[AssetType]OrderBook` registry shape, generalized from a single
// no-op PlaceOrder into full phase-gated routing across two matching
// disciplines.
package venue

import (
	"errors"
	"sync"
	"time"

	"intern-exchange/internal/book"
	"intern-exchange/internal/domain"
	"intern-exchange/internal/matching"
	"intern-exchange/internal/phase"
)

var (
	ErrUnknownInstrument  = errors.New("unknown instrument")
	ErrSubmissionClosed   = errors.New("order submission not allowed in current phase")
	ErrCancellationClosed = errors.New("cancellation not allowed in current phase")
)

// Venue owns every instrument's book and routes traffic to the
// matching discipline the current phase calls for.
type Venue struct {
	mu          sync.RWMutex
	books       map[string]*book.Book
	continuous  *matching.Continuous
	batch       *matching.Batch
	phases      *phase.Manager
	transitions *phase.TransitionHandler

	onAuctionCleared func(map[string]map[string]domain.OrderResult)
	onCancelledAll   func(map[string][]*domain.Order)
}

// New builds a venue over the given instruments, sharing one
// continuous engine and one batch engine across all of them — the
// book per instrument is what varies, not the matching discipline.
// onAuctionCleared and onCancelledAll are notified with the results of
// the corresponding phase-edge action; pass nil to ignore either.
func New(instrumentIDs []string, phases *phase.Manager, batch *matching.Batch,
	onAuctionCleared func(map[string]map[string]domain.OrderResult),
	onCancelledAll func(map[string][]*domain.Order),
) *Venue {
	v := &Venue{
		books:            make(map[string]*book.Book, len(instrumentIDs)),
		continuous:       matching.NewContinuous(),
		batch:            batch,
		phases:           phases,
		onAuctionCleared: onAuctionCleared,
		onCancelledAll:   onCancelledAll,
	}
	for _, id := range instrumentIDs {
		v.books[id] = book.New(id)
	}
	v.transitions = phase.NewTransitionHandler(v)
	return v
}

// CheckPhaseTransitions observes the phase at now and fires any edge
// action (auction clear entering opening_auction, cancel-all entering
// closed from continuous). Intended to be polled periodically by the
// matching worker.
func (v *Venue) CheckPhaseTransitions(now time.Time) {
	current := v.phases.CurrentPhase(now)
	v.transitions.Check(current)
}

// TriggerAuctionClear implements phase.Actions: it executes the batch
// engine's pending pool across every instrument and forwards the
// results to the configured callback.
func (v *Venue) TriggerAuctionClear() {
	v.mu.RLock()
	books := make(map[string]*book.Book, len(v.books))
	for id, b := range v.books {
		books[id] = b
	}
	v.mu.RUnlock()

	results := v.batch.ExecuteBatch(books)
	if v.onAuctionCleared != nil {
		v.onAuctionCleared(results)
	}
}

// CancelAllResting implements phase.Actions: it cancels every resting
// order across every instrument, used on the continuous-to-closed
// edge, and forwards the cancelled orders to the configured callback.
func (v *Venue) CancelAllResting() {
	v.mu.RLock()
	out := make(map[string][]*domain.Order, len(v.books))
	for id, b := range v.books {
		out[id] = b.CancelAll()
	}
	v.mu.RUnlock()

	if v.onCancelledAll != nil {
		v.onCancelledAll(out)
	}
}

// Submit routes an order to the matching discipline the current
// phase's execution style selects, gated by whether submission is
// allowed at all.
func (v *Venue) Submit(order *domain.Order, now time.Time) (domain.OrderResult, error) {
	state := v.phases.CurrentState(now)
	if !state.SubmissionAllowed {
		return domain.OrderResult{}, ErrSubmissionClosed
	}

	v.mu.RLock()
	b, ok := v.books[order.InstrumentID]
	v.mu.RUnlock()
	if !ok {
		return domain.OrderResult{}, ErrUnknownInstrument
	}

	engine := v.engineFor(state)
	return engine.SubmitOrder(order, b)
}

// Cancel routes a cancel request to whichever engine currently holds
// the order: the book (continuous/resting) or the batch pool
// (pre-clear auction). Both are consulted because an order's resting
// location depends on which phase it was submitted under, not the
// current phase.
func (v *Venue) Cancel(instrumentID, orderID, traderID string, now time.Time) error {
	state := v.phases.CurrentState(now)
	if !state.CancellationAllowed {
		return ErrCancellationClosed
	}

	v.mu.RLock()
	b, ok := v.books[instrumentID]
	v.mu.RUnlock()
	if !ok {
		return ErrUnknownInstrument
	}

	if err := b.Cancel(orderID, traderID); err == nil {
		return nil
	} else if !errors.Is(err, book.ErrOrderNotFound) {
		return err
	}
	return v.batch.CancelPending(orderID, traderID)
}

// Book exposes an instrument's book for read-only queries (depth,
// best bid/ask). Returns ok=false for an unknown instrument.
func (v *Venue) Book(instrumentID string) (*book.Book, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.books[instrumentID]
	return b, ok
}

func (v *Venue) engineFor(state domain.PhaseState) matching.Engine {
	if state.ExecutionStyle == domain.ExecutionBatch {
		return v.batch
	}
	return v.continuous
}

// Package matching implements the two matching disciplines: a thin
// continuous engine that delegates straight to the order book, and a
// batch/auction engine that collects a pool of orders and clears them
// at a single fair price.
//
// Grounded on original_source's matching_engine.py (ContinuousMatchingEngine,
// BatchMatchingEngine, BatchContext), translated into a tagged-variant
// interface in place of that class hierarchy. The clearing price is
// the maximum-volume price (midpoint on ties), not the original's
// sell-side-price shortcut.
package matching

import (
	"intern-exchange/internal/book"
	"intern-exchange/internal/domain"
)

// Engine is the sum type of matching disciplines the venue dispatches
// to, keyed by a phase's execution style.
type Engine interface {
	// SubmitOrder processes one order under this engine's discipline.
	SubmitOrder(order *domain.Order, b *book.Book) (domain.OrderResult, error)
	// ExecuteBatch clears any pending pool. A no-op for the continuous
	// engine; the auction clear for the batch engine.
	ExecuteBatch(books map[string]*book.Book) map[string]map[string]domain.OrderResult
	Mode() string
}

// Continuous is the immediate-match-on-arrival engine. It holds no
// state of its own — each order is processed independently against
// the book handed to it.
type Continuous struct{}

func NewContinuous() *Continuous { return &Continuous{} }

func (c *Continuous) SubmitOrder(order *domain.Order, b *book.Book) (domain.OrderResult, error) {
	trades, err := b.AddOrder(order)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return domain.OrderResult{
		OrderID:      order.OrderID,
		Status:       statusFor(order, trades),
		Fills:        trades,
		RemainingQty: order.RemainingQty,
	}, nil
}

func (c *Continuous) ExecuteBatch(map[string]*book.Book) map[string]map[string]domain.OrderResult {
	return map[string]map[string]domain.OrderResult{}
}

func (c *Continuous) Mode() string { return "continuous" }

func statusFor(order *domain.Order, trades []domain.Trade) domain.OrderStatus {
	switch {
	case order.IsFilled():
		return domain.StatusFilled
	case len(trades) > 0:
		return domain.StatusPartiallyFilled
	default:
		return domain.StatusNew
	}
}

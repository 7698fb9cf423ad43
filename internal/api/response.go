package api

import (
	"time"

	"github.com/shopspring/decimal"

	"intern-exchange/internal/domain"
	"intern-exchange/internal/pipeline"
)

// FillView is one trade rendered for display: price as a decimal
// rather than a raw float64, everything else passed through.
type FillView struct {
	InstrumentID  string          `json:"instrument_id"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id"`
	BuyerOrderID  string          `json:"buyer_order_id"`
	SellerOrderID string          `json:"seller_order_id"`
	Price         decimal.Decimal `json:"price"`
	Quantity      uint64          `json:"quantity"`
	Aggressor     string          `json:"aggressor"`
	Timestamp     time.Time       `json:"timestamp"`
}

// OrderResponseView is the decimal-rendered wire shape of an order
// submission's terminal outcome.
type OrderResponseView struct {
	OrderID      string          `json:"order_id"`
	Status       string          `json:"status"`
	RemainingQty uint64          `json:"remaining_qty"`
	Fills        []FillView      `json:"fills,omitempty"`
	TotalFees    decimal.Decimal `json:"total_fees"`
	Liquidity    string          `json:"liquidity,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// RenderOrderResponse converts a pipeline.OrderResponse into its
// decimal-rendered wire shape.
func RenderOrderResponse(r pipeline.OrderResponse) OrderResponseView {
	view := OrderResponseView{
		OrderID:      r.OrderID,
		Status:       r.Status.String(),
		RemainingQty: r.RemainingQty,
		TotalFees:    decimal.NewFromFloat(r.TotalFees).Round(2),
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.ErrorMessage,
	}
	if r.LiquidityType != nil {
		view.Liquidity = r.LiquidityType.String()
	}
	for _, f := range r.Fills {
		view.Fills = append(view.Fills, renderFill(f))
	}
	return view
}

// RenderRejection converts a pipeline.RejectionResponse (a validation
// failure that never reached the matching engine) into the same
// OrderResponseView shape, so callers only ever need one response
// reader regardless of where in the pipeline an order was turned away.
func RenderRejection(r pipeline.RejectionResponse) OrderResponseView {
	return OrderResponseView{
		OrderID:      r.OrderID,
		Status:       domain.StatusRejected.String(),
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.ErrorMessage,
	}
}

// CancelResponseView is the wire shape of a cancel request's terminal
// outcome.
type CancelResponseView struct {
	OrderID      string `json:"order_id"`
	Cancelled    bool   `json:"cancelled"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func RenderCancelResponse(r pipeline.CancelResponse) CancelResponseView {
	return CancelResponseView{
		OrderID:      r.OrderID,
		Cancelled:    r.Cancelled,
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.ErrorMessage,
	}
}

func renderFill(t domain.Trade) FillView {
	return FillView{
		InstrumentID:  t.InstrumentID,
		BuyerID:       t.BuyerID,
		SellerID:      t.SellerID,
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
		Price:         decimal.NewFromFloat(t.Price).Round(2),
		Quantity:      t.Quantity,
		Aggressor:     aggressorString(t.AggressorSide),
		Timestamp:     t.Timestamp,
	}
}

func aggressorString(a domain.AggressorSide) string {
	switch a {
	case domain.AggressorBuy:
		return "buy"
	case domain.AggressorSell:
		return "sell"
	default:
		return "none"
	}
}

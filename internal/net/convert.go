package net

import (
	"encoding/json"
	"fmt"

	"intern-exchange/internal/book"
	"intern-exchange/internal/domain"
)

// DepthSnapshot is the wire shape for a query_depth response.
type DepthSnapshot struct {
	InstrumentID string          `json:"instrument_id"`
	Bids         []book.PriceQty `json:"bids"`
	Asks         []book.PriceQty `json:"asks"`
}

func decodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(env.Payload, v)
}

// toDomainOrder validates and converts a wire new_order request into a
// domain.Order. Price and HasPrice are reconciled here: market orders
// carry no price regardless of what the client sent; limit orders
// require a strictly positive one.
func toDomainOrder(req NewOrderRequest, teamID, orderID string) (*domain.Order, error) {
	side, err := parseSide(req.Side)
	if err != nil {
		return nil, err
	}
	orderType, err := parseOrderType(req.OrderType)
	if err != nil {
		return nil, err
	}
	if req.InstrumentID == "" {
		return nil, fmt.Errorf("instrument_id is required")
	}
	if req.Quantity == 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	order := &domain.Order{
		OrderID:       orderID,
		ClientOrderID: req.ClientOrderID,
		InstrumentID:  req.InstrumentID,
		Side:          side,
		OrderType:     orderType,
		Quantity:      req.Quantity,
		RemainingQty:  req.Quantity,
		TraderID:      teamID,
	}

	if orderType == domain.LimitOrder {
		if req.Price <= 0 {
			return nil, fmt.Errorf("limit orders require a positive price")
		}
		order.Price = req.Price
		order.HasPrice = true
	}

	return order, nil
}

func parseSide(s string) (domain.Side, error) {
	switch s {
	case "buy":
		return domain.Buy, nil
	case "sell":
		return domain.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func parseOrderType(s string) (domain.OrderType, error) {
	switch s {
	case "limit":
		return domain.LimitOrder, nil
	case "market":
		return domain.MarketOrder, nil
	default:
		return 0, fmt.Errorf("unknown order_type %q", s)
	}
}

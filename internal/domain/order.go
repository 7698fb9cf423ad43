package domain

import "time"

// Order is a single resting or transient instruction to trade. It is
// owned by exactly one place at a time: the intake queue, a worker's
// stack frame, a book level, or a batch engine's pending pool.
type Order struct {
	OrderID          string // system-assigned, unique for process lifetime
	ClientOrderID    string // opaque caller tag, optional
	InstrumentID     string
	Side             Side
	OrderType        OrderType
	Quantity         uint64 // original quantity requested
	RemainingQty     uint64 // monotonically non-increasing
	Price            float64
	HasPrice         bool // false iff market order
	TraderID         string
	Timestamp        time.Time
}

// IsFilled reports whether the order has no remaining quantity.
func (o *Order) IsFilled() bool {
	return o.RemainingQty == 0
}

// Trade is an immutable record of one match. Created only by a
// matching engine.
type Trade struct {
	InstrumentID    string
	BuyerID         string
	SellerID        string
	BuyerOrderID    string
	SellerOrderID   string
	Price           float64
	Quantity        uint64
	AggressorSide   AggressorSide
	Timestamp       time.Time
}

// OrderResult is a matching engine's output for one submission.
type OrderResult struct {
	OrderID          string
	Status           OrderStatus
	Fills            []Trade
	RemainingQty     uint64
	ErrorCode        string
	ErrorMessage     string
}

// Instrument is a tradeable product. Descriptive fields are used only
// for display; matching only cares about the symbol.
type Instrument struct {
	Symbol     string
	Underlying string
	Strike     float64
	Expiry     time.Time
	OptionType string
}

// Team is a trading participant. Role drives constraints and fees.
type Team struct {
	TeamID string
	Role   string
}

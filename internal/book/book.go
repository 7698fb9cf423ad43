// Package book implements price-time priority order books: one book
// per instrument, maintaining bid/ask price levels and matching
// crossing orders in strict price-time priority.
//
// Grounded on fenrir/internal/engine/orderbook.go's btree-backed price
// levels and sweep loop, generalized with owner-checked cancellation,
// depth snapshots, and a no-liquidity rejection for market orders that
// find no counter side at all.
package book

import (
	"errors"
	"sync"
	"time"

	"github.com/tidwall/btree"

	"intern-exchange/internal/domain"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOwnerMismatch  = errors.New("order not owned by requesting trader")
	ErrNoLiquidity    = errors.New("no counter liquidity available")
)

// Level holds every resting order at one price, in strict FIFO
// insertion order.
type Level struct {
	Price  float64
	Orders []*domain.Order
}

type levels = btree.BTreeG[*Level]

type entry struct {
	side  domain.Side
	level *Level
}

// Book is the order book for a single instrument.
type Book struct {
	mu           sync.Mutex
	instrumentID string
	bids         *levels // descending by price
	asks         *levels // ascending by price
	byID         map[string]*entry
}

// New creates an empty book for an instrument.
func New(instrumentID string) *Book {
	bids := btree.NewBTreeG(func(a, b *Level) bool { return a.Price > b.Price })
	asks := btree.NewBTreeG(func(a, b *Level) bool { return a.Price < b.Price })
	return &Book{
		instrumentID: instrumentID,
		bids:         bids,
		asks:         asks,
		byID:         make(map[string]*entry),
	}
}

// PriceQty is an aggregated price level, used for top-of-book and
// depth queries.
type PriceQty struct {
	Price    float64
	Quantity uint64
}

// BestBid returns the best bid price and aggregate quantity, or ok=false
// if the bid side is empty.
func (b *Book) BestBid() (PriceQty, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lvl, ok := b.bids.Min()
	if !ok {
		return PriceQty{}, false
	}
	return PriceQty{Price: lvl.Price, Quantity: levelQty(lvl)}, true
}

// BestAsk returns the best ask price and aggregate quantity, or ok=false
// if the ask side is empty.
func (b *Book) BestAsk() (PriceQty, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lvl, ok := b.asks.Min()
	if !ok {
		return PriceQty{}, false
	}
	return PriceQty{Price: lvl.Price, Quantity: levelQty(lvl)}, true
}

// DepthSnapshot returns both sides, aggregated per level, bids
// descending and asks ascending.
func (b *Book) DepthSnapshot() (bids, asks []PriceQty) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids.Scan(func(lvl *Level) bool {
		bids = append(bids, PriceQty{Price: lvl.Price, Quantity: levelQty(lvl)})
		return true
	})
	b.asks.Scan(func(lvl *Level) bool {
		asks = append(asks, PriceQty{Price: lvl.Price, Quantity: levelQty(lvl)})
		return true
	})
	return bids, asks
}

func levelQty(lvl *Level) uint64 {
	var total uint64
	for _, o := range lvl.Orders {
		total += o.RemainingQty
	}
	return total
}

// AddOrder places a new order. If it crosses the opposite side it is
// matched greedily, level by level, until the incoming side is
// exhausted or the opposite side no longer crosses (limit) or is
// empty (market). Any remainder of a limit order rests; any remainder
// of a market order is discarded unfilled. A market order that finds
// no counter liquidity whatsoever is rejected with ErrNoLiquidity
// rather than resting or silently doing nothing.
func (b *Book) AddOrder(order *domain.Order) ([]domain.Trade, error) {
	order.Timestamp = timestampOrNow(order.Timestamp)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch order.OrderType {
	case domain.MarketOrder:
		return b.matchMarket(order)
	default:
		return b.matchLimit(order)
	}
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// matchLimit matches a limit order against the crossing side, then
// rests any remainder on its own side.
func (b *Book) matchLimit(order *domain.Order) ([]domain.Trade, error) {
	var trades []domain.Trade

	restingLevels, ownLevels := b.sidesFor(order.Side)

	for order.RemainingQty > 0 {
		top, ok := restingLevels.Min()
		if !ok || !crosses(order, top.Price) {
			break
		}
		trades = append(trades, b.consumeLevel(order, top, restingLevels)...)
	}

	if order.RemainingQty > 0 {
		b.rest(order, ownLevels, order.Side)
	}
	return trades, nil
}

// matchMarket sweeps the opposite side until the order is filled or
// the opposite side is exhausted. A remainder is discarded. If not a
// single trade occurs, the order is rejected for lack of liquidity.
func (b *Book) matchMarket(order *domain.Order) ([]domain.Trade, error) {
	var trades []domain.Trade

	restingLevels, _ := b.sidesFor(order.Side)

	for order.RemainingQty > 0 {
		top, ok := restingLevels.Min()
		if !ok {
			break
		}
		trades = append(trades, b.consumeLevel(order, top, restingLevels)...)
	}

	if len(trades) == 0 {
		return nil, ErrNoLiquidity
	}
	// Any remainder of a market order is discarded unfilled.
	order.RemainingQty = 0
	return trades, nil
}

// sidesFor returns (the side the order would cross against, the side
// it would rest on) for the order's side.
func (b *Book) sidesFor(side domain.Side) (restingLevels, ownLevels *levels) {
	if side == domain.Buy {
		return b.asks, b.bids
	}
	return b.bids, b.asks
}

// crosses reports whether a resting limit order at restingPrice would
// cross the incoming limit order. Only called for limit orders; a
// market order always crosses and never reaches this check.
func crosses(order *domain.Order, restingPrice float64) bool {
	if order.Side == domain.Buy {
		return order.Price >= restingPrice
	}
	return order.Price <= restingPrice
}

// consumeLevel matches the incoming order against the resting orders
// at one level, in FIFO order, producing one trade per resting order
// touched. Fully consumed resting orders are dropped; the level is
// deleted if emptied.
func (b *Book) consumeLevel(order *domain.Order, lvl *Level, side *levels) []domain.Trade {
	var trades []domain.Trade

	consumed := 0
	for _, resting := range lvl.Orders {
		if order.RemainingQty == 0 {
			break
		}
		qty := min(order.RemainingQty, resting.RemainingQty)
		order.RemainingQty -= qty
		resting.RemainingQty -= qty

		trades = append(trades, domain.Trade{
			InstrumentID:  b.instrumentID,
			Price:         lvl.Price,
			Quantity:      qty,
			AggressorSide: aggressorFor(order.Side),
			Timestamp:     time.Now(),
		})
		assignParties(&trades[len(trades)-1], order, resting)

		if resting.RemainingQty == 0 {
			consumed++
			delete(b.byID, resting.OrderID)
		}
	}

	if consumed > 0 {
		lvl.Orders = lvl.Orders[consumed:]
	}
	if len(lvl.Orders) == 0 {
		side.Delete(lvl)
	}
	return trades
}

func aggressorFor(side domain.Side) domain.AggressorSide {
	if side == domain.Buy {
		return domain.AggressorBuy
	}
	return domain.AggressorSell
}

// assignParties fills in the buyer/seller identity fields of a trade
// given the aggressor order and the resting (passive) order it
// matched against. Trade price is always the resting order's price.
func assignParties(t *domain.Trade, aggressor, resting *domain.Order) {
	if aggressor.Side == domain.Buy {
		t.BuyerID, t.BuyerOrderID = aggressor.TraderID, aggressor.OrderID
		t.SellerID, t.SellerOrderID = resting.TraderID, resting.OrderID
	} else {
		t.SellerID, t.SellerOrderID = aggressor.TraderID, aggressor.OrderID
		t.BuyerID, t.BuyerOrderID = resting.TraderID, resting.OrderID
	}
}

// rest appends an order onto its own side, creating the price level
// if it does not yet exist, and indexes it for owner-checked cancel.
func (b *Book) rest(order *domain.Order, side *levels, s domain.Side) {
	lvl, ok := side.GetMut(&Level{Price: order.Price})
	if ok {
		lvl.Orders = append(lvl.Orders, order)
	} else {
		lvl = &Level{Price: order.Price, Orders: []*domain.Order{order}}
		side.Set(lvl)
	}
	b.byID[order.OrderID] = &entry{side: s, level: lvl}
}

// Cancel removes a resting order if it is owned by traderID. Fails
// with ErrOrderNotFound when the order is absent (already filled or
// never rested). A present order owned by someone else is a hard
// fault (ErrOwnerMismatch), surfaced to the caller rather than masked
// as not-found — the caller boundary decides how much to reveal.
func (b *Book) Cancel(orderID, traderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.byID[orderID]
	if !ok {
		return ErrOrderNotFound
	}

	idx := -1
	for i, o := range e.level.Orders {
		if o.OrderID == orderID {
			idx = i
			break
		}
	}
	if idx == -1 {
		// Indexed but not found on its level: treat as not-found, the
		// index is stale relative to the level's own bookkeeping.
		delete(b.byID, orderID)
		return ErrOrderNotFound
	}
	if e.level.Orders[idx].TraderID != traderID {
		return ErrOwnerMismatch
	}

	e.level.Orders = append(e.level.Orders[:idx], e.level.Orders[idx+1:]...)
	delete(b.byID, orderID)

	if len(e.level.Orders) == 0 {
		if e.side == domain.Buy {
			b.bids.Delete(e.level)
		} else {
			b.asks.Delete(e.level)
		}
	}
	return nil
}

// CancelAll removes every resting order in the book, returning the
// orders that were cancelled. Used on the continuous→closed phase
// edge.
func (b *Book) CancelAll() []*domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	var cancelled []*domain.Order
	b.bids.Scan(func(lvl *Level) bool {
		cancelled = append(cancelled, lvl.Orders...)
		return true
	})
	b.asks.Scan(func(lvl *Level) bool {
		cancelled = append(cancelled, lvl.Orders...)
		return true
	})

	b.bids = btree.NewBTreeG(func(a, b *Level) bool { return a.Price > b.Price })
	b.asks = btree.NewBTreeG(func(a, b *Level) bool { return a.Price < b.Price })
	b.byID = make(map[string]*entry)
	return cancelled
}

// Crossed reports whether the book violates price-time priority's
// book-integrity invariant: best_bid must be strictly less than
// best_ask whenever both sides are non-empty.
func (b *Book) Crossed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bid, bidOk := b.bids.Min()
	ask, askOk := b.asks.Min()
	if !bidOk || !askOk {
		return false
	}
	return bid.Price >= ask.Price
}

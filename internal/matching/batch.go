package matching

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"intern-exchange/internal/book"
	"intern-exchange/internal/domain"
)

// Batch is the collect-then-clear auction engine. Orders are pooled
// per instrument on submit and cleared all at once on ExecuteBatch,
// with fresh uniform randomization among orders tied on price so that
// no caller enjoys a timing advantage within a level.
//
// The random source is injected rather than drawn from a package-level
// default, so that tests can seed a deterministic generator.
type Batch struct {
	mu      sync.Mutex
	pending map[string][]*domain.Order // instrument -> pool
	byID    map[string]string         // order id -> instrument, for pending cancels
	rng     *rand.Rand
}

// NewBatch builds a batch engine using the given random source. Pass
// rand.New(rand.NewSource(time.Now().UnixNano())) in production, and a
// fixed seed in tests.
func NewBatch(rng *rand.Rand) *Batch {
	return &Batch{
		pending: make(map[string][]*domain.Order),
		byID:    make(map[string]string),
		rng:     rng,
	}
}

func (e *Batch) SubmitOrder(order *domain.Order, _ *book.Book) (domain.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending[order.InstrumentID] = append(e.pending[order.InstrumentID], order)
	e.byID[order.OrderID] = order.InstrumentID

	return domain.OrderResult{
		OrderID:      order.OrderID,
		Status:       domain.StatusPendingNew,
		RemainingQty: order.RemainingQty,
	}, nil
}

// CancelPending removes an order from the pending pool if it is owned
// by traderID and has not yet been swept into a clearing pass. The
// pool snapshot taken at clearing time makes this present-or-absent
// check atomic relative to ExecuteBatch.
func (e *Batch) CancelPending(orderID, traderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	instrumentID, ok := e.byID[orderID]
	if !ok {
		return book.ErrOrderNotFound
	}
	pool := e.pending[instrumentID]
	for i, o := range pool {
		if o.OrderID != orderID {
			continue
		}
		if o.TraderID != traderID {
			return book.ErrOwnerMismatch
		}
		e.pending[instrumentID] = append(pool[:i], pool[i+1:]...)
		delete(e.byID, orderID)
		return nil
	}
	return book.ErrOrderNotFound
}

func (e *Batch) Mode() string { return "batch" }

// PendingCount reports how many orders are queued for an instrument;
// exposed for tests and monitoring, mirroring the original's
// get_pending_count.
func (e *Batch) PendingCount(instrumentID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending[instrumentID])
}

// ExecuteBatch clears every instrument's pool independently via the
// maximum-volume rule, matches crossing orders at the single clearing
// price, and releases any remainder into the book.
func (e *Batch) ExecuteBatch(books map[string]*book.Book) map[string]map[string]domain.OrderResult {
	e.mu.Lock()
	snapshot := e.pending
	e.pending = make(map[string][]*domain.Order)
	e.byID = make(map[string]string)
	e.mu.Unlock()

	results := make(map[string]map[string]domain.OrderResult)

	for instrumentID, orders := range snapshot {
		b, ok := books[instrumentID]
		if !ok {
			continue
		}
		results[instrumentID] = e.clear(instrumentID, orders, b)
	}
	return results
}

func (e *Batch) clear(instrumentID string, orders []*domain.Order, b *book.Book) map[string]domain.OrderResult {
	result := make(map[string]domain.OrderResult, len(orders))
	ensure := func(o *domain.Order) domain.OrderResult {
		r, ok := result[o.OrderID]
		if !ok {
			r = domain.OrderResult{OrderID: o.OrderID, RemainingQty: o.RemainingQty}
		}
		return r
	}

	var buys, sells []*domain.Order
	for _, o := range orders {
		if o.Side == domain.Buy {
			buys = append(buys, o)
		} else {
			sells = append(sells, o)
		}
	}

	price, volume, cleared := e.clearingPrice(buys, sells)

	if cleared && volume > 0 {
		buys = e.sortByPriceThenRandom(buys, true)
		sells = e.sortByPriceThenRandom(sells, false)

		bi, si := 0, 0
		for bi < len(buys) && si < len(sells) {
			buy, sell := buys[bi], sells[si]
			if !crosses(buy, sell) {
				break
			}
			qty := min(buy.RemainingQty, sell.RemainingQty)
			buy.RemainingQty -= qty
			sell.RemainingQty -= qty

			trade := domain.Trade{
				InstrumentID:  instrumentID,
				BuyerID:       buy.TraderID,
				SellerID:      sell.TraderID,
				BuyerOrderID:  buy.OrderID,
				SellerOrderID: sell.OrderID,
				Price:         price,
				Quantity:      qty,
				AggressorSide: domain.AggressorNone,
				Timestamp:     time.Now(),
			}

			br, sr := ensure(buy), ensure(sell)
			br.Fills = append(br.Fills, trade)
			sr.Fills = append(sr.Fills, trade)
			result[buy.OrderID], result[sell.OrderID] = br, sr

			if buy.RemainingQty == 0 {
				bi++
			}
			if sell.RemainingQty == 0 {
				si++
			}
		}
	}

	// Release every order with positive remaining quantity into the
	// book; the continuous engine that follows will simply rest them.
	for _, o := range orders {
		r := ensure(o)
		if o.RemainingQty > 0 {
			fills, _ := b.AddOrder(o)
			r.Fills = append(r.Fills, fills...)
		}
		r.RemainingQty = o.RemainingQty
		r.Status = finalStatus(o, r.Fills)
		result[o.OrderID] = r
	}
	return result
}

func finalStatus(o *domain.Order, fills []domain.Trade) domain.OrderStatus {
	switch {
	case o.IsFilled():
		return domain.StatusFilled
	case len(fills) > 0:
		return domain.StatusPartiallyFilled
	default:
		return domain.StatusNew
	}
}

func crosses(buy, sell *domain.Order) bool {
	if buy.OrderType == domain.MarketOrder || sell.OrderType == domain.MarketOrder {
		return true
	}
	return buy.Price >= sell.Price
}

// clearingPrice implements the maximum-volume rule: for every distinct
// limit price present, the executable volume is the minimum of
// cumulative buy demand at that price or higher and cumulative sell
// supply at that price or lower. The price(s) maximizing that volume
// win; a tied contiguous range clears at its midpoint.
func (e *Batch) clearingPrice(buys, sells []*domain.Order) (price float64, volume uint64, ok bool) {
	priceSet := make(map[float64]struct{})
	for _, o := range buys {
		if o.OrderType == domain.LimitOrder {
			priceSet[o.Price] = struct{}{}
		}
	}
	for _, o := range sells {
		if o.OrderType == domain.LimitOrder {
			priceSet[o.Price] = struct{}{}
		}
	}
	if len(priceSet) == 0 {
		return 0, 0, false
	}

	distinct := make([]float64, 0, len(priceSet))
	for p := range priceSet {
		distinct = append(distinct, p)
	}
	sort.Float64s(distinct)

	buyDemand := func(p float64) uint64 {
		var total uint64
		for _, o := range buys {
			if o.OrderType == domain.MarketOrder || o.Price >= p {
				total += o.RemainingQty
			}
		}
		return total
	}
	sellSupply := func(p float64) uint64 {
		var total uint64
		for _, o := range sells {
			if o.OrderType == domain.MarketOrder || o.Price <= p {
				total += o.RemainingQty
			}
		}
		return total
	}

	var best uint64
	for _, p := range distinct {
		if v := min(buyDemand(p), sellSupply(p)); v > best {
			best = v
		}
	}
	if best == 0 {
		return 0, 0, false
	}

	lo, hi := distinct[len(distinct)-1], distinct[0]
	for _, p := range distinct {
		if min(buyDemand(p), sellSupply(p)) != best {
			continue
		}
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	return (lo + hi) / 2, best, true
}

// sortByPriceThenRandom orders by price priority (buys descending,
// sells ascending) with a fresh random value as the tiebreak, so
// orders at the same price level are uniformly shuffled at clearing
// time rather than by arrival order.
func (e *Batch) sortByPriceThenRandom(orders []*domain.Order, descending bool) []*domain.Order {
	type keyed struct {
		order *domain.Order
		tie   float64
	}
	e.mu.Lock()
	ks := make([]keyed, len(orders))
	for i, o := range orders {
		ks[i] = keyed{order: o, tie: e.rng.Float64()}
	}
	e.mu.Unlock()

	sort.SliceStable(ks, func(i, j int) bool {
		pi, pj := effectivePrice(ks[i].order, descending), effectivePrice(ks[j].order, descending)
		if pi != pj {
			if descending {
				return pi > pj
			}
			return pi < pj
		}
		return ks[i].tie < ks[j].tie
	})

	out := make([]*domain.Order, len(orders))
	for i, k := range ks {
		out[i] = k.order
	}
	return out
}

// effectivePrice gives market orders maximal priority on their side so
// they always sort first against the book's price priority.
func effectivePrice(o *domain.Order, descending bool) float64 {
	if o.OrderType == domain.MarketOrder {
		if descending {
			return math.Inf(1)
		}
		return math.Inf(-1)
	}
	return o.Price
}

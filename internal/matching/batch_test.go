package matching

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intern-exchange/internal/book"
	"intern-exchange/internal/domain"
)

func newTestBatch() *Batch {
	return NewBatch(rand.New(rand.NewSource(1)))
}

func TestBatch_SubmitOrder_PendsUntilCleared(t *testing.T) {
	e := newTestBatch()
	b := book.New("AAPL")

	result, err := e.SubmitOrder(limitOrder("o1", "a", domain.Buy, 100.0, 10), b)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingNew, result.Status)
	assert.Equal(t, 1, e.PendingCount("AAPL"))
}

func TestBatch_CancelPending_RemovesBeforeClear(t *testing.T) {
	e := newTestBatch()
	b := book.New("AAPL")
	_, err := e.SubmitOrder(limitOrder("o1", "owner", domain.Buy, 100.0, 10), b)
	require.NoError(t, err)

	assert.ErrorIs(t, e.CancelPending("o1", "someone-else"), book.ErrOwnerMismatch)
	assert.NoError(t, e.CancelPending("o1", "owner"))
	assert.Equal(t, 0, e.PendingCount("AAPL"))
	assert.ErrorIs(t, e.CancelPending("o1", "owner"), book.ErrOrderNotFound)
}

func TestBatch_ExecuteBatch_ClearsAtCrossingPrice(t *testing.T) {
	e := newTestBatch()
	b := book.New("AAPL")

	orders := []*domain.Order{
		limitOrder("buy-1", "buyer", domain.Buy, 101.0, 10),
		limitOrder("sell-1", "seller", domain.Sell, 99.0, 10),
	}
	for _, o := range orders {
		_, err := e.SubmitOrder(o, b)
		require.NoError(t, err)
	}

	results := e.ExecuteBatch(map[string]*book.Book{"AAPL": b})
	byOrder := results["AAPL"]
	require.Len(t, byOrder, 2)

	buyResult := byOrder["buy-1"]
	assert.Equal(t, domain.StatusFilled, buyResult.Status)
	require.Len(t, buyResult.Fills, 1)
	// Clearing price is the midpoint of the single tied price range
	// [99, 101] since both prices tie for the maximum executable
	// volume of 10.
	assert.Equal(t, 100.0, buyResult.Fills[0].Price)
	assert.EqualValues(t, 10, buyResult.Fills[0].Quantity)

	assert.Equal(t, 0, e.PendingCount("AAPL"))
}

func TestBatch_ExecuteBatch_ReleasesUnfilledRemainderToBook(t *testing.T) {
	e := newTestBatch()
	b := book.New("AAPL")

	orders := []*domain.Order{
		limitOrder("buy-1", "buyer", domain.Buy, 101.0, 10),
		limitOrder("sell-1", "seller", domain.Sell, 99.0, 4),
	}
	for _, o := range orders {
		_, err := e.SubmitOrder(o, b)
		require.NoError(t, err)
	}

	results := e.ExecuteBatch(map[string]*book.Book{"AAPL": b})
	buyResult := results["AAPL"]["buy-1"]
	assert.Equal(t, domain.StatusPartiallyFilled, buyResult.Status)
	assert.EqualValues(t, 6, buyResult.RemainingQty)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.EqualValues(t, 6, bid.Quantity)
}

// TestBatch_ClearingPrice_MaximumVolumeWithMidpointTiebreak exercises
// the literal maximum-volume rule over a staggered book (buys
// 100@102/20@101/10@100, sells 20@99/20@98/20@97). Cumulative sell
// supply saturates at 60 for any clearing price >= 99, while cumulative
// buy demand still exceeds 60 everywhere in [99, 102], so every price
// in that whole range ties for the maximum volume of 60 and the rule
// clears at its midpoint, 100.50 — not 99.00, which a naive reading of
// a single worked example might suggest. See DESIGN.md for the full
// derivation.
func TestBatch_ClearingPrice_MaximumVolumeWithMidpointTiebreak(t *testing.T) {
	e := newTestBatch()
	buys := []*domain.Order{
		limitOrder("b1", "buyer-1", domain.Buy, 102.0, 100),
		limitOrder("b2", "buyer-2", domain.Buy, 101.0, 20),
		limitOrder("b3", "buyer-3", domain.Buy, 100.0, 10),
	}
	sells := []*domain.Order{
		limitOrder("s1", "seller-1", domain.Sell, 99.0, 20),
		limitOrder("s2", "seller-2", domain.Sell, 98.0, 20),
		limitOrder("s3", "seller-3", domain.Sell, 97.0, 20),
	}

	price, volume, ok := e.clearingPrice(buys, sells)
	require.True(t, ok)
	assert.EqualValues(t, 60, volume)
	assert.InDelta(t, 100.50, price, 1e-9)
}

func TestBatch_ClearingPrice_NoLimitOrdersMeansNoClear(t *testing.T) {
	e := newTestBatch()
	_, _, ok := e.clearingPrice(nil, nil)
	assert.False(t, ok)
}

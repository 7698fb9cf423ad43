package pipeline

import (
	"errors"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"intern-exchange/internal/book"
	"intern-exchange/internal/coordinator"
	"intern-exchange/internal/domain"
	"intern-exchange/internal/events"
	"intern-exchange/internal/fees"
	"intern-exchange/internal/positions"
	"intern-exchange/internal/venue"
)

// OrderResponse is the terminal coordinator value for a completed
// order submission: status, any fills, fees charged, and the
// aggregate liquidity classification across those fills.
type OrderResponse struct {
	OrderID       string
	Status        domain.OrderStatus
	RemainingQty  uint64
	Fills         []domain.Trade
	TotalFees     float64
	LiquidityType *domain.LiquidityType // nil if no fills occurred
	ErrorCode     string
	ErrorMessage  string
}

// CancelResponse is the terminal coordinator value for a cancel
// request.
type CancelResponse struct {
	OrderID      string
	Cancelled    bool
	ErrorCode    string
	ErrorMessage string
}

// TradeProcessor is the pipeline's settlement stage: for every fill it
// updates both counterparties' positions, computes each side's fee,
// classifies liquidity, completes the submitting team's coordinator
// entry, and pushes execution-report events to both teams.
type TradeProcessor struct {
	Matched   <-chan MatchedTask
	CancelIn  <-chan CancelResultTask

	Positions   *positions.Book
	Fees        *fees.Service
	Coordinator *coordinator.Coordinator
	Publisher   *events.Publisher
	RoleOf      func(teamID string) (string, bool)
}

// Run drains both the matched-order and cancel-result queues until
// the tomb is dying.
func (p *TradeProcessor) Run(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.Matched:
			p.processMatched(task)
		case task := <-p.CancelIn:
			p.processCancel(task)
		}
	}
}

func (p *TradeProcessor) processMatched(task MatchedTask) {
	if task.Err != nil {
		p.completeRejected(task)
		return
	}

	ownFee, liquidity := p.settleOwnFills(task.Order, task.Role, task.Result.Fills)
	p.settleCounterpartyFills(task.Order, task.Result.Fills)

	resp := OrderResponse{
		OrderID:       task.Result.OrderID,
		Status:        task.Result.Status,
		RemainingQty:  task.Result.RemainingQty,
		Fills:         task.Result.Fills,
		TotalFees:     ownFee,
		LiquidityType: liquidity,
	}
	if err := p.Coordinator.Complete(task.RequestID, resp); err != nil {
		log.Error().Err(err).Str("request_id", task.RequestID).Msg("complete order response failed")
	}
	p.Publisher.Publish(task.TeamID, events.KindOrderAck, resp)
}

func (p *TradeProcessor) completeRejected(task MatchedTask) {
	resp := OrderResponse{
		OrderID:      task.Order.OrderID,
		Status:       domain.StatusRejected,
		ErrorCode:    rejectCodeFor(task.Err),
		ErrorMessage: task.Err.Error(),
	}
	if err := p.Coordinator.Complete(task.RequestID, resp); err != nil {
		log.Error().Err(err).Str("request_id", task.RequestID).Msg("complete rejection failed")
	}
	p.Publisher.Publish(task.TeamID, events.KindOrderReject, resp)
}

// ProcessAuctionClear settles every fill produced by an opening
// auction sweep. Auction trades have no aggressor: both sides
// provided resting liquidity to the same clear, so both are
// classified as makers.
func (p *TradeProcessor) ProcessAuctionClear(results map[string]map[string]domain.OrderResult) {
	seen := make(map[string]bool)
	for _, byOrder := range results {
		for _, result := range byOrder {
			for _, trade := range result.Fills {
				key := trade.BuyerOrderID + "|" + trade.SellerOrderID + "|" + trade.Timestamp.String()
				if seen[key] {
					continue
				}
				seen[key] = true
				p.settleAuctionSide(trade.BuyerID, trade.BuyerOrderID, trade, domain.Buy)
				p.settleAuctionSide(trade.SellerID, trade.SellerOrderID, trade, domain.Sell)
			}
		}
	}
}

func (p *TradeProcessor) settleAuctionSide(teamID, orderID string, trade domain.Trade, side domain.Side) {
	role, ok := p.RoleOf(teamID)
	if !ok {
		log.Error().Str("team_id", teamID).Msg("unknown role for auction participant")
		return
	}

	signed := int64(trade.Quantity)
	if side == domain.Sell {
		signed = -signed
	}
	p.Positions.Apply(teamID, trade.InstrumentID, signed)

	fee, err := p.Fees.Calculate(trade.Quantity, role, domain.LiquidityMaker)
	if err != nil {
		log.Error().Err(err).Str("team_id", teamID).Msg("auction fee calculation failed")
		return
	}

	maker := domain.LiquidityMaker
	p.Publisher.Publish(teamID, events.KindExecutionReport, OrderResponse{
		OrderID:       orderID,
		Status:        domain.StatusFilled,
		Fills:         []domain.Trade{trade},
		TotalFees:     fee,
		LiquidityType: &maker,
	})
}

// ProcessMassCancel pushes a cancel-ack event for every order swept
// off the book on the continuous-to-closed phase edge.
func (p *TradeProcessor) ProcessMassCancel(cancelled map[string][]*domain.Order) {
	for _, orders := range cancelled {
		for _, o := range orders {
			p.Publisher.Publish(o.TraderID, events.KindCancelAck, CancelResponse{
				OrderID:   o.OrderID,
				Cancelled: true,
			})
		}
	}
}

func (p *TradeProcessor) processCancel(task CancelResultTask) {
	resp := CancelResponse{OrderID: task.OrderID, Cancelled: task.Err == nil}
	if task.Err != nil {
		resp.ErrorCode = "CANCEL_FAILED"
		resp.ErrorMessage = "unable to cancel order"
	}
	if err := p.Coordinator.Complete(task.RequestID, resp); err != nil {
		log.Error().Err(err).Str("request_id", task.RequestID).Msg("complete cancel response failed")
	}
	p.Publisher.Publish(task.TeamID, events.KindCancelAck, resp)
}

// settleOwnFills applies position deltas and fees for the
// submitting order's own side of every fill and pushes one
// execution-report event per fill to the submitting team, returning
// the total fee and the aggregate liquidity classification (nil if
// there were no fills).
func (p *TradeProcessor) settleOwnFills(order *domain.Order, role string, fills []domain.Trade) (float64, *domain.LiquidityType) {
	if len(fills) == 0 {
		return 0, nil
	}

	var total float64
	kinds := make([]domain.LiquidityType, 0, len(fills))
	for i, trade := range fills {
		signed := int64(trade.Quantity)
		if order.Side == domain.Sell {
			signed = -signed
		}
		p.Positions.Apply(order.TraderID, order.InstrumentID, signed)

		kind := liquidityFor(order.Side, trade.AggressorSide)
		kinds = append(kinds, kind)
		fee, err := p.Fees.Calculate(trade.Quantity, role, kind)
		if err == nil {
			total += fee
		} else {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("fee calculation failed")
		}

		status := domain.StatusPartiallyFilled
		if i == len(fills)-1 && order.IsFilled() {
			status = domain.StatusFilled
		}
		p.Publisher.Publish(order.TraderID, events.KindExecutionReport, OrderResponse{
			OrderID:       order.OrderID,
			Status:        status,
			Fills:         []domain.Trade{trade},
			TotalFees:     fee,
			LiquidityType: &kind,
		})
	}

	agg := aggregateLiquidity(kinds)
	return total, &agg
}

// settleCounterpartyFills applies position deltas, fees, and an
// execution-report push for the resting side of every fill — the
// counterparty's original request has already completed, so this is a
// push-only notification rather than a coordinator completion.
func (p *TradeProcessor) settleCounterpartyFills(aggressor *domain.Order, fills []domain.Trade) {
	for _, trade := range fills {
		counterTeam, counterOrderID, counterSide := counterparty(aggressor, trade)
		if counterTeam == "" {
			continue
		}
		role, ok := p.RoleOf(counterTeam)
		if !ok {
			log.Error().Str("team_id", counterTeam).Msg("unknown role for counterparty team")
			continue
		}

		signed := int64(trade.Quantity)
		if counterSide == domain.Sell {
			signed = -signed
		}
		p.Positions.Apply(counterTeam, trade.InstrumentID, signed)

		kind := liquidityFor(counterSide, trade.AggressorSide)
		fee, err := p.Fees.Calculate(trade.Quantity, role, kind)
		if err != nil {
			log.Error().Err(err).Str("team_id", counterTeam).Msg("counterparty fee calculation failed")
			continue
		}

		p.Publisher.Publish(counterTeam, events.KindExecutionReport, OrderResponse{
			OrderID:       counterOrderID,
			Status:        domain.StatusPartiallyFilled,
			Fills:         []domain.Trade{trade},
			TotalFees:     fee,
			LiquidityType: &kind,
		})
	}
}

// counterparty returns the team, order id, and side opposite the
// aggressor for a trade.
func counterparty(aggressor *domain.Order, trade domain.Trade) (teamID, orderID string, side domain.Side) {
	if aggressor.Side == domain.Buy {
		return trade.SellerID, trade.SellerOrderID, domain.Sell
	}
	return trade.BuyerID, trade.BuyerOrderID, domain.Buy
}

func liquidityFor(side domain.Side, aggressor domain.AggressorSide) domain.LiquidityType {
	if aggressor == domain.AggressorNone {
		return domain.LiquidityMaker
	}
	tookLiquidity := (aggressor == domain.AggressorBuy && side == domain.Buy) ||
		(aggressor == domain.AggressorSell && side == domain.Sell)
	if tookLiquidity {
		return domain.LiquidityTaker
	}
	return domain.LiquidityMaker
}

func aggregateLiquidity(kinds []domain.LiquidityType) domain.LiquidityType {
	allMaker, allTaker := true, true
	for _, k := range kinds {
		if k != domain.LiquidityMaker {
			allMaker = false
		}
		if k != domain.LiquidityTaker {
			allTaker = false
		}
	}
	switch {
	case allMaker:
		return domain.LiquidityMaker
	case allTaker:
		return domain.LiquidityTaker
	default:
		return domain.LiquidityMixed
	}
}

func rejectCodeFor(err error) string {
	switch {
	case errors.Is(err, book.ErrNoLiquidity):
		return "NO_LIQUIDITY"
	case errors.Is(err, venue.ErrSubmissionClosed):
		return "MARKET_CLOSED"
	case errors.Is(err, venue.ErrUnknownInstrument):
		return "UNKNOWN_INSTRUMENT"
	default:
		return "EXCHANGE_ERROR"
	}
}

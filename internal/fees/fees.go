// Package fees computes per-fill trading fees from a role's configured
// maker/taker rates. Grounded on original_source's TradingFeeService
// (test_fee_calculation_integration.py): a taker fill costs money (a
// negative fee), a maker fill may earn a rebate (a positive fee), and
// the sign lives entirely in the configured rate, not in this code.
package fees

import (
	"fmt"
	"sync"

	"intern-exchange/internal/domain"
)

// RoleRates is one role's fee schedule: signed currency per contract
// for each liquidity type. A positive rate is a rebate paid to the
// trader; a negative rate is a cost charged to the trader.
type RoleRates struct {
	Maker float64
	Taker float64
}

// Service looks up a role's configured rates and applies them to
// filled quantity. Unknown roles are a hard fault: fee tables are
// configuration, never silently defaulted.
type Service struct {
	mu    sync.RWMutex
	rates map[string]RoleRates
}

func NewService(rates map[string]RoleRates) *Service {
	cp := make(map[string]RoleRates, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	return &Service{rates: cp}
}

// Calculate returns the signed fee for filling quantity contracts as
// the given liquidity type under role's schedule. Mixed liquidity
// (a single order filled partly as maker, partly as taker across
// several resting counterparties) is the caller's responsibility to
// split before calling; Calculate only ever sees one liquidity type at
// a time.
func (s *Service) Calculate(quantity uint64, role string, liquidity domain.LiquidityType) (float64, error) {
	s.mu.RLock()
	r, ok := s.rates[role]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("no fee schedule configured for role %q", role)
	}
	switch liquidity {
	case domain.LiquidityMaker:
		return float64(quantity) * r.Maker, nil
	case domain.LiquidityTaker:
		return float64(quantity) * r.Taker, nil
	default:
		return 0, fmt.Errorf("cannot calculate a single fee for mixed liquidity; split fills by type first")
	}
}

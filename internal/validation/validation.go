// Package validation implements the constraint-based order validator:
// a pluggable, short-circuiting chain of named constraint kinds, each
// configured per role rather than hardcoded to a specific trader.
//
// Grounded on original_source's order_validator.py
// (ConstraintBasedOrderValidator, ConstraintConfig, ConstraintType and
// the individual Constraint implementations), translated from its
// ABC-subclass-per-kind shape into a closure-based Constraint func type
// matching fenrir's preference for small interfaces over inheritance.
package validation

import (
	"fmt"

	"intern-exchange/internal/domain"
)

// ConstraintKind names a recognized constraint type.
type ConstraintKind string

const (
	PositionLimit    ConstraintKind = "position_limit"
	PortfolioLimit   ConstraintKind = "portfolio_limit"
	OrderSize        ConstraintKind = "order_size"
	OrderRate        ConstraintKind = "order_rate"
	OrderTypeAllowed ConstraintKind = "order_type_allowed"
	PriceRange       ConstraintKind = "price_range"
	InstrumentAllowed ConstraintKind = "instrument_allowed"
)

// Context carries everything a constraint needs to judge one order,
// without the validator needing to know where any of it came from.
type Context struct {
	Order            *domain.Order
	TraderRole       string
	CurrentPositions map[string]int64 // instrument -> signed position
	OrdersThisSecond int
}

// Result is a constraint's verdict.
type Result struct {
	Valid        bool
	ErrorCode    string
	ErrorMessage string
}

func ok() Result { return Result{Valid: true} }

func reject(code, msg string) Result {
	return Result{Valid: false, ErrorCode: code, ErrorMessage: msg}
}

// Config binds a constraint kind to its parameters and the error a
// violation reports, scoped to one role.
type Config struct {
	Kind         ConstraintKind
	Parameters   map[string]any
	ErrorCode    string
	ErrorMessage string
}

// Constraint checks one order against one configured rule.
type Constraint func(ctx Context, cfg Config) Result

var registry = map[ConstraintKind]Constraint{
	PositionLimit:     checkPositionLimit,
	PortfolioLimit:    checkPortfolioLimit,
	OrderSize:         checkOrderSize,
	OrderRate:         checkOrderRate,
	OrderTypeAllowed:  checkOrderTypeAllowed,
	PriceRange:        checkPriceRange,
	InstrumentAllowed: checkInstrumentAllowed,
}

// Validator runs a role's configured constraint chain against an
// order, stopping at the first violation.
type Validator struct {
	byRole map[string][]Config
}

func NewValidator() *Validator {
	return &Validator{byRole: make(map[string][]Config)}
}

// LoadConstraints replaces the constraint chain for a role.
func (v *Validator) LoadConstraints(role string, constraints []Config) {
	v.byRole[role] = constraints
}

// Validate runs every constraint configured for ctx.TraderRole, in
// order, returning the first violation. An order that passes every
// constraint (or whose role has none configured) is valid.
func (v *Validator) Validate(ctx Context) Result {
	for _, cfg := range v.byRole[ctx.TraderRole] {
		check, ok := registry[cfg.Kind]
		if !ok {
			return reject("INTERNAL_ERROR", fmt.Sprintf("unregistered constraint kind %q", cfg.Kind))
		}
		if r := check(ctx, cfg); !r.Valid {
			return r
		}
	}
	return ok()
}

func paramInt(p map[string]any, key string, def int64) int64 {
	v, found := p[key]
	if !found {
		return def
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return def
	}
}

func paramFloat(p map[string]any, key string, def float64) float64 {
	v, found := p[key]
	if !found {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func paramBool(p map[string]any, key string, def bool) bool {
	v, found := p[key]
	if !found {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func signedQty(o *domain.Order) int64 {
	q := int64(o.Quantity)
	if o.Side == domain.Sell {
		return -q
	}
	return q
}

func checkPositionLimit(ctx Context, cfg Config) Result {
	maxPos := paramInt(cfg.Parameters, "max_position", 0)
	symmetric := paramBool(cfg.Parameters, "symmetric", true)

	resulting := ctx.CurrentPositions[ctx.Order.InstrumentID] + signedQty(ctx.Order)

	if symmetric {
		if resulting > maxPos || resulting < -maxPos {
			return reject(cfg.ErrorCode, fmt.Sprintf("%s: %d outside ±%d", cfg.ErrorMessage, resulting, maxPos))
		}
		return ok()
	}
	if resulting > maxPos {
		return reject(cfg.ErrorCode, fmt.Sprintf("%s: %d exceeds %d", cfg.ErrorMessage, resulting, maxPos))
	}
	return ok()
}

// checkPortfolioLimit bounds the sum of absolute position magnitudes
// across every instrument a team holds, after the hypothetical fill.
// An order that reduces that total (moves a position toward flat) is
// always allowed, regardless of max_total — only orders that grow net
// exposure can trip the limit.
func checkPortfolioLimit(ctx Context, cfg Config) Result {
	maxTotal := paramInt(cfg.Parameters, "max_total", 0)

	var currentTotal int64
	for _, qty := range ctx.CurrentPositions {
		currentTotal += absInt64(qty)
	}

	currentPos := ctx.CurrentPositions[ctx.Order.InstrumentID]
	newPos := currentPos + signedQty(ctx.Order)
	projected := currentTotal - absInt64(currentPos) + absInt64(newPos)

	if projected <= currentTotal {
		return ok()
	}
	if projected > maxTotal {
		return reject(cfg.ErrorCode, fmt.Sprintf("%s: %d exceeds %d", cfg.ErrorMessage, projected, maxTotal))
	}
	return ok()
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func checkOrderSize(ctx Context, cfg Config) Result {
	minSize := paramInt(cfg.Parameters, "min_size", 1)
	maxSize := paramInt(cfg.Parameters, "max_size", 1<<62)
	q := int64(ctx.Order.Quantity)
	if q < minSize || q > maxSize {
		return reject(cfg.ErrorCode, fmt.Sprintf("%s: %d not in [%d, %d]", cfg.ErrorMessage, q, minSize, maxSize))
	}
	return ok()
}

func checkOrderRate(ctx Context, cfg Config) Result {
	maxPerSecond := paramInt(cfg.Parameters, "max_per_second", 1<<62)
	if int64(ctx.OrdersThisSecond) >= maxPerSecond {
		return reject(cfg.ErrorCode, fmt.Sprintf("%s: rate %d/s at or above limit %d", cfg.ErrorMessage, ctx.OrdersThisSecond, maxPerSecond))
	}
	return ok()
}

func checkOrderTypeAllowed(ctx Context, cfg Config) Result {
	allowed, _ := cfg.Parameters["allowed_types"].([]string)
	want := ctx.Order.OrderType.String()
	for _, t := range allowed {
		if t == want {
			return ok()
		}
	}
	return reject(cfg.ErrorCode, fmt.Sprintf("%s: order type %q not permitted", cfg.ErrorMessage, want))
}

func checkPriceRange(ctx Context, cfg Config) Result {
	if ctx.Order.OrderType == domain.MarketOrder {
		return ok()
	}
	minPrice := paramFloat(cfg.Parameters, "min_price", 0)
	maxPrice := paramFloat(cfg.Parameters, "max_price", 1e18)
	if ctx.Order.Price < minPrice || ctx.Order.Price > maxPrice {
		return reject(cfg.ErrorCode, fmt.Sprintf("%s: %.2f not in [%.2f, %.2f]", cfg.ErrorMessage, ctx.Order.Price, minPrice, maxPrice))
	}
	return ok()
}

func checkInstrumentAllowed(ctx Context, cfg Config) Result {
	allowed, _ := cfg.Parameters["allowed_instruments"].([]string)
	if len(allowed) == 0 {
		return ok()
	}
	for _, id := range allowed {
		if id == ctx.Order.InstrumentID {
			return ok()
		}
	}
	return reject(cfg.ErrorCode, fmt.Sprintf("%s: instrument %q not permitted for role", cfg.ErrorMessage, ctx.Order.InstrumentID))
}

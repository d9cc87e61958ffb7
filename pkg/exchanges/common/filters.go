package common

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fallbacks used when the exchange does not report filters for a symbol.
const (
	DefaultMinQty      = 0.0001
	DefaultMinNotional = 5.0
)

// SymbolFilters are the order-size limits the exchange enforces for one symbol.
type SymbolFilters struct {
	Symbol      string
	MinQty      float64
	StepSize    float64
	TickSize    float64
	MinNotional float64
	Defaulted   bool
}

// DefaultFilters returns the fallback limits for a symbol.
func DefaultFilters(symbol string) SymbolFilters {
	return SymbolFilters{
		Symbol:      symbol,
		MinQty:      DefaultMinQty,
		MinNotional: DefaultMinNotional,
		Defaulted:   true,
	}
}

// SizeCheck is the verdict of an order-size validation and the limits it used.
type SizeCheck struct {
	Valid       bool
	Qty         float64
	Price       float64
	Notional    float64
	MinQty      float64
	MinNotional float64
	Reason      string
}

// Check validates qty at price: qty >= MinQty and qty*price >= MinNotional.
// Comparisons are decimal so 0.1 and 0.3/3 compare equal.
func (f SymbolFilters) Check(qty, price float64) SizeCheck {
	q := decimal.NewFromFloat(qty)
	notional := q.Mul(decimal.NewFromFloat(price))
	c := SizeCheck{
		Qty:         qty,
		Price:       price,
		Notional:    notional.InexactFloat64(),
		MinQty:      f.MinQty,
		MinNotional: f.MinNotional,
	}
	switch {
	case q.LessThan(decimal.NewFromFloat(f.MinQty)):
		c.Reason = fmt.Sprintf("quantity %g below minimum %g", qty, f.MinQty)
	case notional.LessThan(decimal.NewFromFloat(f.MinNotional)):
		c.Reason = fmt.Sprintf("notional %.4f below minimum %.4f", c.Notional, f.MinNotional)
	default:
		c.Valid = true
	}
	return c
}

// MaxLegs is how many equal legs of total clear both minimums at price.
func (c SizeCheck) MaxLegs(total float64) int {
	if c.Price <= 0 {
		return 0
	}
	perLeg := decimal.Max(
		decimal.NewFromFloat(c.MinQty),
		decimal.NewFromFloat(c.MinNotional).Div(decimal.NewFromFloat(c.Price)),
	)
	if !perLeg.IsPositive() {
		return 0
	}
	return int(decimal.NewFromFloat(total).Div(perLeg).Floor().IntPart())
}

package order

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"signal-executor/pkg/exchanges/common"
)

// LadderIndices picks the 1st, 3rd and 5th take-profit levels.
var LadderIndices = []int{0, 2, 4}

// SelectLadder returns the working take-profit levels.
func SelectLadder(tps []float64) []float64 {
	out := make([]float64, 0, len(LadderIndices))
	for _, i := range LadderIndices {
		if i < len(tps) {
			out = append(out, tps[i])
		}
	}
	return out
}

// LadderPlan is the take-profit legs to place.
type LadderPlan struct {
	Prices []float64
	Qtys   []float64
	Reason string // why legs were reduced or skipped
}

// Legs is the number of take-profit orders in the plan.
func (p LadderPlan) Legs() int { return len(p.Prices) }

// PlanLadder splits size across the ladder. When one leg would fail the size
// check at the first ladder price, only the first floor(size/minLeg) legs are kept.
func PlanLadder(ladder []float64, size float64, precision int, filters common.SymbolFilters) LadderPlan {
	if len(ladder) == 0 || size <= 0 {
		return LadderPlan{}
	}
	legs := len(ladder)
	check := filters.Check(legQty(size, legs, precision), ladder[0])
	var reason string
	if !check.Valid {
		affordable := check.MaxLegs(size)
		if affordable == 0 {
			minLeg := math.Max(check.MinQty, check.MinNotional/ladder[0])
			return LadderPlan{Reason: fmt.Sprintf("position size %g too small for any take profit (need ≥%.6f per order)", size, minLeg)}
		}
		if affordable < legs {
			reason = fmt.Sprintf("take profits reduced from %d to %d (min notional %g, min qty %g)", legs, affordable, check.MinNotional, check.MinQty)
			legs = affordable
		}
	}
	return LadderPlan{
		Prices: append([]float64(nil), ladder[:legs]...),
		Qtys:   splitQty(size, legs, precision),
		Reason: reason,
	}
}

// legQty is one equal leg of size, truncated to precision.
func legQty(size float64, n, precision int) float64 {
	return decimal.NewFromFloat(size).Div(decimal.NewFromInt(int64(n))).Truncate(int32(precision)).InexactFloat64()
}

// splitQty divides size into n legs truncated to precision; the last leg takes the remainder.
func splitQty(size float64, n, precision int) []float64 {
	total := decimal.NewFromFloat(size)
	leg := total.Div(decimal.NewFromInt(int64(n))).Truncate(int32(precision))
	out := make([]float64, n)
	for i := 0; i < n-1; i++ {
		out[i] = leg.InexactFloat64()
	}
	out[n-1] = total.Sub(leg.Mul(decimal.NewFromInt(int64(n - 1)))).InexactFloat64()
	return out
}

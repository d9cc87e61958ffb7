package common

import "github.com/shopspring/decimal"

// Quantity precision per market.
const (
	FuturesQtyPrecision = 6
	SpotQtyPrecision    = 8
)

// QtyPrecision returns the decimal places quantities are truncated to.
func QtyPrecision(m MarketType) int {
	if m == MarketSpot {
		return SpotQtyPrecision
	}
	return FuturesQtyPrecision
}

// TruncateQty rounds v toward zero to places decimals.
func TruncateQty(v float64, places int) float64 {
	return decimal.NewFromFloat(v).Truncate(int32(places)).InexactFloat64()
}

// Round rounds v half away from zero to places decimals.
func Round(v float64, places int) float64 {
	return decimal.NewFromFloat(v).Round(int32(places)).InexactFloat64()
}

// FormatDecimal renders v without exponent or trailing zeros.
func FormatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}

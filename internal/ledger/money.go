package ledger

import (
	"math"

	"github.com/shopspring/decimal"
)

// Money converts a request amount to cents precision. ok is false for
// NaN and infinities.
func Money(v float64) (d decimal.Decimal, ok bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v).Round(2), true
}

// MoneyPtr is Money for optional fields; nil maps to zero.
func MoneyPtr(v *float64) (decimal.Decimal, bool) {
	if v == nil {
		return decimal.Zero, true
	}
	return Money(*v)
}

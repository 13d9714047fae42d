// Package money centralises the decimal conventions for monetary amounts:
// USD, two fractional digits, round half to even at the edges.
package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Amounts serialise as JSON numbers, not strings, across the whole API.
func init() { decimal.MarshalJSONWithoutQuotes = true }

// Round returns d at 2 decimal places, half to even.
func Round(d decimal.Decimal) decimal.Decimal { return d.RoundBank(2) }

// Coerce converts an untrusted float (typically straight out of external
// JSON) into a valid amount: NaN, infinities and negatives become zero,
// everything else is rounded to 2 decimals.
func Coerce(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f).RoundBank(2)
}

// Parse reads a decimal amount from text and rejects negatives.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q is negative", s)
	}
	return d, nil
}

package core

import "github.com/shopspring/decimal"

// Qty is a stock quantity. Unlike money.Amount it is not rounded to 2 dp —
// fractional quantities (weight, volume) are valid — but it always
// participates in WAC arithmetic that itself rounds to 2 dp at the money
// boundary (§4.1).
type Qty = decimal.Decimal

// ZeroQty is the additive identity for Qty.
var ZeroQty = decimal.Zero

// ParseQty parses a quantity string, failing on non-numeric input.
func ParseQty(s string) (Qty, error) {
	return decimal.NewFromString(s)
}

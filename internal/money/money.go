// Package money implements fixed-point decimal arithmetic at 2 fractional
// digits, the unit every stored ledger and inventory amount is expressed in.
// It wraps github.com/shopspring/decimal rather than binary floating point.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value. The zero Amount is 0.00. Every Amount returned
// from a public function in this package is already rounded to 2 dp; "-0.00"
// is normalized to "0.00" by decimal's own Round/StringFixed behavior once
// combined with Zero-comparison below.
type Amount struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Amount{}

// Parse reads a decimal string (e.g. "100.00", "-3.5") into an Amount,
// rounding to 2 dp. A non-numeric input fails with an apperr.Validation-class
// error described by the returned error's message; callers that need the
// Kind wrap this with apperr.Wrap(apperr.Validation, ...).
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return New(d), nil
}

// New builds an Amount from a decimal.Decimal, rounding to 2 dp.
func New(d decimal.Decimal) Amount {
	return normalize(d.Round(2))
}

// FromInt builds an Amount representing a whole number of currency units.
func FromInt(n int64) Amount {
	return Amount{d: decimal.NewFromInt(n)}
}

func normalize(d decimal.Decimal) Amount {
	if d.IsZero() {
		return Amount{d: decimal.Zero}
	}
	return Amount{d: d}
}

// String renders the amount with exactly 2 fractional digits.
func (a Amount) String() string { return a.d.StringFixed(2) }

// MarshalJSON renders the amount as a quoted 2 dp string, avoiding the
// binary-float round-trip a bare JSON number would invite on the wire.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a quoted string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	*a = New(d)
	return nil
}

// Decimal exposes the underlying decimal.Decimal for callers (e.g. pgx scan
// targets) that need it directly.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Add returns a+b rounded to 2 dp.
func (a Amount) Add(b Amount) Amount { return New(a.d.Add(b.d)) }

// Sub returns a-b rounded to 2 dp.
func (a Amount) Sub(b Amount) Amount { return New(a.d.Sub(b.d)) }

// Neg returns -a.
func (a Amount) Neg() Amount { return New(a.d.Neg()) }

// Abs returns |a|.
func (a Amount) Abs() Amount { return New(a.d.Abs()) }

// MulDec multiplies by an arbitrary-precision decimal factor (e.g. a
// quantity) and rounds the product to 2 dp. Used for quantity × unit cost.
func (a Amount) MulDec(factor decimal.Decimal) Amount { return New(a.d.Mul(factor)) }

// DivDec divides by an arbitrary-precision decimal divisor, rounding
// half-away-from-zero to 2 dp. Used for total value / quantity (WAC).
// Returns an error if divisor is zero.
func (a Amount) DivDec(divisor decimal.Decimal) (Amount, error) {
	if divisor.IsZero() {
		return Amount{}, fmt.Errorf("division by zero")
	}
	// DivRound rounds half-away-from-zero to the given number of places.
	q := a.d.DivRound(divisor, 2)
	return New(q), nil
}

// Cmp compares a to b: -1, 0, 1.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports whether a and b are the same amount (to 2 dp).
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// IsZero reports whether a is 0.00.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// Sum adds a sequence of Amounts, rounding once at the end.
func Sum(amounts ...Amount) Amount {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a.d)
	}
	return New(total)
}

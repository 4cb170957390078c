package money_test

import (
	"testing"

	"ledgercore/internal/money"

	"github.com/shopspring/decimal"
)

func TestParse_RoundsToTwoDP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"100", "100.00"},
		{"100.005", "100.01"},
		{"100.004", "100.00"},
		{"-0.001", "0.00"},
		{"-0", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := money.Parse(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := a.String(); got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_InvalidAmount(t *testing.T) {
	if _, err := money.Parse("not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric input")
	}
}

func TestDivDec_HalfAwayFromZero(t *testing.T) {
	v, _ := money.Parse("90.00")
	a, err := v.DivDec(decimal.NewFromInt(15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.String() != "6.00" {
		t.Errorf("got %s, want 6.00", a.String())
	}

	// 82.00 / 9 = 9.1111... -> rounds to 9.11
	v2, _ := money.Parse("82.00")
	a2, err := v2.DivDec(decimal.NewFromInt(9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a2.String() != "9.11" {
		t.Errorf("got %s, want 9.11", a2.String())
	}
}

func TestDivDec_ByZero(t *testing.T) {
	v, _ := money.Parse("10.00")
	if _, err := v.DivDec(decimal.Zero); err == nil {
		t.Fatal("expected error dividing by zero")
	}
}

func TestMulDec(t *testing.T) {
	v, _ := money.Parse("6.00")
	got := v.MulDec(decimal.NewFromInt(15))
	if got.String() != "90.00" {
		t.Errorf("got %s, want 90.00", got.String())
	}
}

func TestSum(t *testing.T) {
	a, _ := money.Parse("10.00")
	b, _ := money.Parse("20.50")
	c, _ := money.Parse("-5.50")
	if got := money.Sum(a, b, c); got.String() != "25.00" {
		t.Errorf("got %s, want 25.00", got.String())
	}
}

func TestAddSubNegAbs(t *testing.T) {
	a, _ := money.Parse("10.00")
	b, _ := money.Parse("3.00")
	if got := a.Add(b).String(); got != "13.00" {
		t.Errorf("Add: got %s", got)
	}
	if got := a.Sub(b).String(); got != "7.00" {
		t.Errorf("Sub: got %s", got)
	}
	if got := a.Neg().String(); got != "-10.00" {
		t.Errorf("Neg: got %s", got)
	}
	if got := a.Neg().Abs().String(); got != "10.00" {
		t.Errorf("Abs: got %s", got)
	}
}

func TestComparisons(t *testing.T) {
	a, _ := money.Parse("5.00")
	b, _ := money.Parse("10.00")
	if !a.LessThan(b) {
		t.Error("expected 5 < 10")
	}
	if !b.GreaterThan(a) {
		t.Error("expected 10 > 5")
	}
	if a.Equal(b) {
		t.Error("5 should not equal 10")
	}
	if money.Zero.IsPositive() || money.Zero.IsNegative() {
		t.Error("zero should be neither positive nor negative")
	}
	if !money.Zero.IsZero() {
		t.Error("zero should be zero")
	}
}

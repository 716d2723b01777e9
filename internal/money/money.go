package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidLineItem is returned for a non-positive quantity or a negative unit price.
var ErrInvalidLineItem = errors.New("invalid line item")

// DefaultSurchargeRate is the shipping & handling fee applied to the subtotal.
var DefaultSurchargeRate = decimal.RequireFromString("0.20")

// Line is a single priced row. UnitPrice is in minor currency units (cents).
type Line struct {
	UnitPrice int64
	Quantity  int
}

// Totals holds the price breakdown in minor currency units.
type Totals struct {
	Subtotal  int64 `json:"subtotal"`
	Surcharge int64 `json:"surcharge"`
	Total     int64 `json:"total"`
}

// Calculator computes totals for a fixed surcharge rate.
type Calculator struct {
	rate decimal.Decimal
}

func NewCalculator(rate decimal.Decimal) (*Calculator, error) {
	if rate.IsNegative() {
		return nil, fmt.Errorf("money: surcharge rate must not be negative, got %s", rate)
	}
	return &Calculator{rate: rate}, nil
}

// Rate returns the configured surcharge rate.
func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}

// ComputeTotals sums the lines and applies the surcharge. The surcharge is
// rounded once, to whole cents, with round-half-even.
func (c *Calculator) ComputeTotals(lines []Line) (Totals, error) {
	return ComputeTotals(lines, c.rate)
}

func ComputeTotals(lines []Line, rate decimal.Decimal) (Totals, error) {
	subtotal := decimal.Zero
	for i, l := range lines {
		if l.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: line %d has quantity %d", ErrInvalidLineItem, i, l.Quantity)
		}
		if l.UnitPrice < 0 {
			return Totals{}, fmt.Errorf("%w: line %d has unit price %d", ErrInvalidLineItem, i, l.UnitPrice)
		}
		subtotal = subtotal.Add(decimal.NewFromInt(l.UnitPrice).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	surcharge := subtotal.Mul(rate).RoundBank(0)

	return Totals{
		Subtotal:  subtotal.IntPart(),
		Surcharge: surcharge.IntPart(),
		Total:     subtotal.Add(surcharge).IntPart(),
	}, nil
}

// FromDecimal converts a major-unit amount (e.g. 25.00 dollars) to cents.
func FromDecimal(amount decimal.Decimal) int64 {
	return amount.Shift(2).RoundBank(0).IntPart()
}

// ToDecimal converts cents to a major-unit amount.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents as a dollar string, e.g. "$60.00".
func Format(cents int64) string {
	return "$" + ToDecimal(cents).StringFixed(2)
}

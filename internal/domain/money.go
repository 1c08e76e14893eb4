package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitsPerMajor is the scale of the supported currencies (cents).
const minorUnitsPerMajor = 100

// Money represents a monetary value in a specific currency.
// Amount is stored in integer minor units (cents) to avoid floating point errors.
type Money struct {
	Amount   int64  // minor units
	Currency string // ISO 4217, lower case as the gateway expects
}

// NewMoney creates a new Money instance from minor units.
func NewMoney(amount int64, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: NormalizeCurrency(currency),
	}
}

// NormalizeCurrency lower-cases and trims an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

// ToDecimal converts the int64 minor units to a shopspring/decimal.Decimal.
func (m Money) ToDecimal() decimal.Decimal {
	return MinorToDecimal(m.Amount)
}

// MinorToDecimal converts minor units to a major-unit decimal.
func MinorToDecimal(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// ToMinorUnits converts a decimal to minor units, rounding half away from zero.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(minorUnitsPerMajor)).Round(0).IntPart()
}

// ParseAmount parses a major-unit amount such as "250.00" and rejects more than two decimals.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	return d, nil
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.ToDecimal().StringFixed(2), strings.ToUpper(m.Currency))
}

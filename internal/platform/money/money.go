// Package money converts between wire amounts in major units and the int64
// minor units stored in the ledger.
package money

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/modern-bank-ledger/internal/domain/shared"
)

// Scale is the number of fractional digits of the ledger currency
const Scale = 2

var (
	minorPerMajor = decimal.New(1, Scale)
	maxMinor      = decimal.NewFromInt(math.MaxInt64)

	ErrTooPrecise = shared.NewValidationError("amount", "Amount must have at most 2 decimal places")
	ErrTooLarge   = shared.NewValidationError("amount", "Amount is too large")
)

// ToMinor converts a major-unit amount to minor units. Sign is preserved;
// positivity is the ledger's decision.
func ToMinor(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(minorPerMajor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, ErrTooLarge
	}
	return minor.IntPart(), nil
}

// FromMinor converts minor units back to a major-unit decimal
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// String renders minor units with exactly two fractional digits
func String(minor int64) string {
	return FromMinor(minor).StringFixed(Scale)
}

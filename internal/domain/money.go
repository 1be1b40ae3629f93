package domain

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// Monetary amounts are stored as TEXT and carried as shopspring decimals.
// Float64 never touches money.

// ParseDecimal parses a stored decimal column value. Empty means zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// ScanDecimal converts a nullable decimal column to a value, NULL = zero.
func ScanDecimal(ns sql.NullString) (decimal.Decimal, error) {
	if !ns.Valid {
		return decimal.Zero, nil
	}
	return ParseDecimal(ns.String)
}

// ScanDecimalPtr converts a nullable decimal column to a pointer, NULL = nil.
func ScanDecimalPtr(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := ParseDecimal(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Percent applies pct (expressed as a whole-number percentage, e.g. 15) to
// the amount and rounds to cents.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
}

// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount conversion errors
var (
	ErrEmptyAmount     = errors.New("empty amount string")
	ErrExcessPrecision = errors.New("amount has more decimal places than the coin supports")
	ErrAmountOverflow  = errors.New("amount overflows int64")
)

// Rounding selects what MakeInt does with digits beyond the coin's precision.
type Rounding int

const (
	RoundExact Rounding = iota // reject excess precision
	RoundFloor                 // truncate toward negative infinity
	RoundCeil                  // round toward positive infinity
)

// MakeInt converts a decimal display amount into integer smallest units.
// For example, MakeInt("1.23456789", 8, RoundExact) returns 123456789.
// The conversion is exact; no floating point is involved.
func MakeInt(s string, decimals uint8, rounding Rounding) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		switch rounding {
		case RoundFloor:
			scaled = scaled.Floor()
		case RoundCeil:
			scaled = scaled.Ceil()
		default:
			return 0, fmt.Errorf("%w: %s (%d decimals)", ErrExcessPrecision, s, decimals)
		}
	}

	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, s)
	}
	return bi.Int64(), nil
}

// FormatAmount formats an amount in smallest units as a fixed-precision decimal string.
// For example, FormatAmount(100000, 8) returns "0.00100000".
func FormatAmount(amount int64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", amount)
	}
	return decimal.New(amount, -int32(decimals)).StringFixed(int32(decimals))
}

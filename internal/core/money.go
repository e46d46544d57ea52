// Package core provides money parsing and handling utilities.
//
// Amounts are kept as float64 magnitudes on the records (that is what the
// backup format carries); parsing and arithmetic go through decimal so the
// rounding is predictable.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user supplied amount into a non-negative magnitude
// rounded half-up to two decimals.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Negative
// values are rejected; the sign of a transaction is carried by its type.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	f, _ := d.Round(2).Float64()
	return f, nil
}

// ParseSignedAmount parses an amount that may carry a sign, as found in bank
// exports. It returns the magnitude and whether the value was negative.
func ParseSignedAmount(s string) (float64, bool, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "'", "")
	if s == "" {
		return 0, false, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false, ErrInvalidAmount
	}
	f, _ := d.Abs().Round(2).Float64()
	return f, d.IsNegative(), nil
}

// FormatAmount renders an amount with two decimals and the currency code.
func FormatAmount(amount float64, currency string) string {
	out := decimal.NewFromFloat(amount).StringFixed(2)
	if currency == "" {
		return out
	}
	return out + " " + currency
}

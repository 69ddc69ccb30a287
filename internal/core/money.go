// Package core provides the canonical domain model for utility billing:
// providers, tenants, raw and consolidated bills, and money handling.
//
// This file contains functions for parsing monetary amounts out of email
// message bodies and converting between cents and dollar representations.
package core

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// currencyPattern matches dollar amounts as they appear in provider
// emails: an optional $ sign, digits with optional thousands separators,
// and an optional cents part, e.g. "$1,234.56", "$87", "123.45".
var currencyPattern = regexp.MustCompile(`\$\s?\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?|\b\d{1,3}(?:,\d{3})+\.\d{2}\b`)

// ParseCurrencyToCents converts a currency string to cents with half-up
// rounding on the third decimal place. Currency symbols and thousands
// separators are stripped before parsing. Returns ErrInvalidAmount for
// malformed input, negative values, or zero amounts.
//
// Examples:
//
//	ParseCurrencyToCents("$1,234.56") -> 123456, nil
//	ParseCurrencyToCents("87.5")      -> 8750, nil
//	ParseCurrencyToCents("$0.00")     -> 0, ErrInvalidAmount
func ParseCurrencyToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; half-up rounding on the third
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ScanAmounts extracts every currency amount from a message body and
// returns their sum. Malformed matches are skipped rather than aborting
// the scan; the skipped count is reported so callers can log it.
func ScanAmounts(body string) (total Money, skipped int) {
	for _, match := range currencyPattern.FindAllString(body, -1) {
		cents, err := ParseCurrencyToCents(match)
		if err != nil {
			skipped++
			continue
		}
		total.Cents += cents
	}
	return total, skipped
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns the sum of two amounts.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Percentage returns pct percent of the amount, half-up rounded to cents.
func (m Money) Percentage(pct float64) Money {
	raw := float64(m.Cents) * pct / 100.0
	if raw >= 0 {
		return Money{Cents: int64(raw + 0.5)}
	}
	return Money{Cents: int64(raw - 0.5)}
}

// Dollars returns the dollar value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Dollars() float64 {
	return float64(m.Cents) / 100.0
}

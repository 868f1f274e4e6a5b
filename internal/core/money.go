// Package core holds the domain model: users, expenses, money, and the
// pure filtering engine over expense sequences.
//
// This file contains the dollars/cents boundary conversions. Stored and
// compared amounts are always integer cents; the string forms here exist
// only for presentation and form input.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseDollarsToCents converts a decimal dollars string to integer cents
// with half-up rounding on the third decimal place.
//
// Examples:
//
//	ParseDollarsToCents("12.99") -> 1299, nil
//	ParseDollarsToCents("0")     -> 0, nil
//	ParseDollarsToCents("1.005") -> 101, nil (rounds up)
//
// Signs, empty strings, and non-numeric input are rejected with a
// field-level error that unwraps to ErrInvalidInput.
func ParseDollarsToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &FieldError{Field: "amount", Message: "amount is required"}
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, &FieldError{Field: "amount", Message: "amount must be a non-negative number"}
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, &FieldError{Field: "amount", Message: "amount must be a decimal number"}
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		if fracPart == "" {
			return 0, &FieldError{Field: "amount", Message: "amount must be a decimal number"}
		}
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, &FieldError{Field: "amount", Message: "amount must be a decimal number"}
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, &FieldError{Field: "amount", Message: "amount must be a decimal number"}
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, &FieldError{Field: "amount", Message: "amount out of range"}
	}
	const maxSafe = (1<<63 - 1) / 100
	if iv > maxSafe {
		return 0, &FieldError{Field: "amount", Message: "amount out of range"}
	}
	// First two fractional digits are cents; the third drives half-up rounding.
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// FormatDollars renders cents as a fixed two-decimal dollars string, e.g.
// 1299 -> "12.99". Negative cents keep the leading minus sign.
func FormatDollars(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if neg {
		return "-" + s
	}
	return s
}

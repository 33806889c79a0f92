package utils

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// safely dereference pointer of type T, nil pointer return zero value or optional default
func DereferencePtr[T any](ptr *T, defaults ...T) T {
	var defaultValue T
	if len(defaults) > 0 {
		defaultValue = defaults[0]
	}
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

func UniqueSlice[T comparable](slice []T) []T {
	keys := make(map[T]bool)
	list := []T{}
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			list = append(list, entry)
		}
	}
	return list
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	return decimal.NewFromString(value)
}

// NormalizeDecimalText turns a locale formatted amount into plain "1234.56". Spaces are
// dropped. When both separators appear the last one is the decimal mark ("1.234,56",
// "1,234.56"); a separator repeated on its own is a thousands mark ("1.234.567").
// A single comma is a French decimal comma.
func NormalizeDecimalText(value string) string {
	value = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(value))

	lastComma := strings.LastIndex(value, ",")
	lastDot := strings.LastIndex(value, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			value = strings.ReplaceAll(value, ".", "")
			value = strings.ReplaceAll(value, ",", ".")
		} else {
			value = strings.ReplaceAll(value, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(value, ",") > 1 {
			value = strings.ReplaceAll(value, ",", "")
		} else {
			value = strings.Replace(value, ",", ".", 1)
		}
	case strings.Count(value, ".") > 1:
		value = strings.ReplaceAll(value, ".", "")
	}
	return value
}

// ParseAmount reads a user or spreadsheet amount. Empty input is zero without error;
// unparsable input is zero with an error the caller may log and recover from.
func ParseAmount(value string) (decimal.Decimal, error) {
	normalized := NormalizeDecimalText(value)
	if normalized == "" {
		return decimal.Zero, nil
	}
	d, err := ParseDecimal(normalized)
	if err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// AmountOrZero is ParseAmount without the error.
func AmountOrZero(value string) decimal.Decimal {
	d, _ := ParseAmount(value)
	return d
}

// FormatAmount renders money with two decimals, half away from zero.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// RoundCents rounds to two decimals.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithinCents reports |a-b| < tolerance.
func WithinCents(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tolerance)
}

// Package utils holds small decimal-arithmetic helpers shared across
// stages, grounded on the teacher's pkg/utils helpers of the same
// name; everything here that had no caller in the council pipeline
// (symbol parsing, backtest performance stats, retry/batch generics,
// EMA/SMA) was dropped rather than carried along unused.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RoundToTickSize rounds price down to the nearest multiple of
// tickSize, the way an exchange would reject an order priced between
// ticks.
func RoundToTickSize(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return price
	}
	return price.Div(tickSize).Floor().Mul(tickSize)
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the larger of a and b.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// ClampDecimal restricts value to the closed interval [min, max].
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}

// FormatMoney formats a decimal amount with the conventional symbol
// or suffix for currency, used in log lines and event payload
// summaries.
func FormatMoney(d decimal.Decimal, currency string) string {
	switch strings.ToUpper(currency) {
	case "USD", "USDT", "USDC":
		return "$" + d.StringFixed(2)
	case "GBP":
		return "£" + d.StringFixed(2)
	case "EUR":
		return "€" + d.StringFixed(2)
	default:
		return d.String() + " " + currency
	}
}

// Package pricing computes reservation prices from a per-minute rate.
//
// Durations are counted in whole elapsed minutes (truncated) and prices are
// rounded half-up to two decimal places. Invalid inputs yield a zero price;
// callers validate windows on their own before persisting anything.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

const pricePlaces = 2

var hundred = decimal.NewFromInt(100)

// CalculateTotalPrice returns rate * whole minutes in [start, end).
func CalculateTotalPrice(ratePerMinute decimal.Decimal, start, end time.Time) decimal.Decimal {
	if ratePerMinute.IsZero() || start.IsZero() || end.IsZero() || !start.Before(end) {
		return decimal.Zero
	}
	minutes := decimal.NewFromInt(DurationMinutes(start, end))
	return ratePerMinute.Mul(minutes).Round(pricePlaces)
}

// DurationMinutes returns the whole minutes elapsed between start and end.
func DurationMinutes(start, end time.Time) int64 {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return 0
	}
	return int64(end.Sub(start) / time.Minute)
}

// DurationHours returns the whole hours elapsed between start and end.
func DurationHours(start, end time.Time) int64 {
	return DurationMinutes(start, end) / 60
}

// FormatPrice renders a price with two decimals and a currency suffix, e.g. "45.00 EUR".
func FormatPrice(price decimal.Decimal, currency string) string {
	s := price.Round(pricePlaces).StringFixed(pricePlaces)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

// ApplyDiscount returns price * (1 - pct/100). Percentages outside (0, 100)
// leave the price unchanged.
func ApplyDiscount(price, pct decimal.Decimal) decimal.Decimal {
	if pct.LessThanOrEqual(decimal.Zero) || pct.GreaterThanOrEqual(hundred) {
		return price
	}
	factor := decimal.NewFromInt(1).Sub(pct.Div(hundred))
	return price.Mul(factor).Round(pricePlaces)
}

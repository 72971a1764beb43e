package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Storage limits for free-text columns. Oversized input is truncated, not
// rejected.
const (
	MaxCustomerName = 128
	MaxItemTitle    = 256
)

var hundred = decimal.NewFromInt(100)

// Amount parses a platform money string into the canonical 2-digit scale.
// Upstreams omit zero components, so the empty string means zero.
func Amount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.Round(2), nil
}

// SubtotalFromComponents recovers a missing subtotal as
// total - tax - delivery + discount. The arithmetic runs in integer cents so
// that float-tainted inputs cannot drift the result by a rounding step.
func SubtotalFromComponents(total, tax, delivery, discount decimal.Decimal) decimal.Decimal {
	cents := cents(total) - cents(tax) - cents(delivery) + cents(discount)
	return decimal.New(cents, -2)
}

func cents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func CustomerName(s string) string { return truncate(s, MaxCustomerName) }

func ItemTitle(s string) string { return truncate(s, MaxItemTitle) }

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// UTCStamp strips the trailing zone marker the upstreams append to their UTC
// timestamps; the store keeps bare ISO-8601.
func UTCStamp(s string) string {
	return strings.TrimSuffix(s, "Z")
}

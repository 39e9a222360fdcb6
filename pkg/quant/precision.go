package quant

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RoundMode selects how Normalize treats the digits past the requested precision.
type RoundMode int

const (
	RoundDown RoundMode = iota
	RoundUp
	RoundNearest
)

// String returns the string representation of RoundMode
func (m RoundMode) String() string {
	switch m {
	case RoundDown:
		return "DOWN"
	case RoundUp:
		return "UP"
	case RoundNearest:
		return "NEAREST"
	default:
		return "UNKNOWN"
	}
}

// Normalize fixes value to exactly digits decimal places.
//
//   - RoundDown: truncation.
//   - RoundUp: truncation, plus one unit in the last kept digit when anything non-zero was cut.
//   - RoundNearest: half away from zero.
//
// Every price and quantity sent to the exchange goes through here.
func Normalize(value decimal.Decimal, digits int32, mode RoundMode) decimal.Decimal {
	if digits < 0 {
		digits = 0
	}

	var out decimal.Decimal
	switch mode {
	case RoundUp:
		out = value.Truncate(digits)
		if !out.Equal(value) && value.IsPositive() {
			out = out.Add(Unit(digits))
		}
	case RoundNearest:
		out = value.Round(digits)
	default:
		out = value.Truncate(digits)
	}

	// Re-quantize so the exponent is exactly -digits.
	return out.Round(digits)
}

// Unit returns one unit in the given decimal place (10^-digits).
func Unit(digits int32) decimal.Decimal {
	return decimal.New(1, -digits)
}

// DigitsOf returns the number of significant decimal places of a step or tick size.
// "0.01000000" -> 2, "1.00000000" -> 0.
func DigitsOf(step decimal.Decimal) int32 {
	s := step.String()
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return int32(len(s) - i - 1)
}

// Format renders value with exactly digits decimal places for the wire.
func Format(value decimal.Decimal, digits int32) string {
	return value.StringFixed(digits)
}

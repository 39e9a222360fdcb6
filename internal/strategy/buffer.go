package strategy

import "github.com/shopspring/decimal"

// PriceBuffer holds trade prices, most recent first.
// A positive max caps the length; zero keeps everything until the sizer truncates it.
type PriceBuffer struct {
	prices []decimal.Decimal
	max    int
}

// NewPriceBuffer creates an empty buffer.
func NewPriceBuffer(max int) *PriceBuffer {
	return &PriceBuffer{max: max}
}

// Push records the newest trade price.
func (b *PriceBuffer) Push(price decimal.Decimal) {
	b.prices = append(b.prices, decimal.Zero)
	copy(b.prices[1:], b.prices)
	b.prices[0] = price
	if b.max > 0 && len(b.prices) > b.max {
		b.prices = b.prices[:b.max]
	}
}

// Len returns the number of buffered prices.
func (b *PriceBuffer) Len() int { return len(b.prices) }

// Latest returns the current tick, zero when empty.
func (b *PriceBuffer) Latest() decimal.Decimal {
	if len(b.prices) == 0 {
		return decimal.Zero
	}
	return b.prices[0]
}

// Window returns the n most recent prices. The slice aliases the buffer.
func (b *PriceBuffer) Window(n int) []decimal.Decimal {
	if n > len(b.prices) {
		n = len(b.prices)
	}
	return b.prices[:n]
}

// Truncate drops everything older than the n most recent prices.
func (b *PriceBuffer) Truncate(n int) {
	if n < len(b.prices) {
		clear(b.prices[n:])
		b.prices = b.prices[:n]
	}
}

// Values returns a copy, most recent first.
func (b *PriceBuffer) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(b.prices))
	copy(out, b.prices)
	return out
}

package strategy

import (
	"scalper_go/internal/domain"
	"scalper_go/internal/pricing"

	"github.com/shopspring/decimal"
)

// Sizer prices an entry at a channel bound. Implemented by *pricing.Calculator.
type Sizer interface {
	Plan(side domain.Side, price decimal.Decimal, funds domain.Funds) pricing.Quote
}

// Result is the outcome of one channel evaluation.
type Result struct {
	Tick      decimal.Decimal
	Channel   domain.Channel
	Buy       pricing.Quote
	Sell      pricing.Quote
	EnterBuy  bool
	EnterSell bool
	Window    int // buffer length after truncation
}

// Entering reports whether either side may enter.
func (r Result) Entering() bool {
	return r.EnterBuy || r.EnterSell
}

package strategy

import (
	"scalper_go/internal/domain"
	"scalper_go/pkg/quant"

	"github.com/shopspring/decimal"
)

// BoundCalculator derives the channel from window quantiles, pushed at least
// one tick away from the current price on each side.
type BoundCalculator struct {
	tickSize       decimal.Decimal
	tickDigits     int32
	quotePrecision int32
	lowerQ         decimal.Decimal
	upperQ         decimal.Decimal
}

// NewBoundCalculator uses the market's price filter and the given quantiles.
func NewBoundCalculator(market *domain.Market, lowerQ, upperQ decimal.Decimal) *BoundCalculator {
	return &BoundCalculator{
		tickSize:       market.TickSize(),
		tickDigits:     market.TickDigits(),
		quotePrecision: market.Quote.Precision,
		lowerQ:         lowerQ,
		upperQ:         upperQ,
	}
}

// Bounds computes the channel of the accumulated window around tick.
func (bc *BoundCalculator) Bounds(acc *quant.Accumulator, tick decimal.Decimal) domain.Channel {
	lower := decimal.Min(
		quant.Normalize(acc.Quantile(bc.lowerQ), bc.quotePrecision, quant.RoundDown),
		quant.Normalize(tick.Sub(bc.tickSize), bc.tickDigits, quant.RoundDown),
	)
	upper := decimal.Max(
		quant.Normalize(acc.Quantile(bc.upperQ), bc.quotePrecision, quant.RoundUp),
		quant.Normalize(tick.Add(bc.tickSize), bc.tickDigits, quant.RoundUp),
	)
	return domain.Channel{Lower: lower, Upper: upper}
}

// EntryPrices are the channel bounds on the tick grid: buy at lower, sell at upper.
func (bc *BoundCalculator) EntryPrices(ch domain.Channel) (buy, sell decimal.Decimal) {
	buy = quant.Normalize(ch.Lower, bc.tickDigits, quant.RoundDown)
	sell = quant.Normalize(ch.Upper, bc.tickDigits, quant.RoundUp)
	return buy, sell
}

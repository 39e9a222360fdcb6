package domain

import (
	"fmt"

	"scalper_go/pkg/quant"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeSchedule holds fee rates in percent (0.1 means 0.1%).
type FeeSchedule struct {
	Maker decimal.Decimal `json:"maker"`
	Taker decimal.Decimal `json:"taker"`
}

// MakerFactor returns the share of a fill kept after the maker fee: (100 - maker) / 100.
func (f FeeSchedule) MakerFactor() decimal.Decimal {
	return hundred.Sub(f.Maker).Div(hundred)
}

// AssetSpec describes one side of the pair.
// For the base asset Min/Max/Increment are the lot-size filter (quantity);
// for the quote asset they are the price filter (tick size).
type AssetSpec struct {
	Name      string          `json:"name"`
	Precision int32           `json:"precision"`
	Min       decimal.Decimal `json:"min"`
	Max       decimal.Decimal `json:"max"`
	Increment decimal.Decimal `json:"increment"`
}

// Market holds the exchange rules for the traded pair. Immutable for the run.
type Market struct {
	Symbol      string          `json:"symbol"`
	Base        AssetSpec       `json:"base"`
	Quote       AssetSpec       `json:"quote"`
	MinNotional decimal.Decimal `json:"min_notional"`
	Fees        FeeSchedule     `json:"fees"`
}

func (m *Market) TickSize() decimal.Decimal { return m.Quote.Increment }
func (m *Market) StepSize() decimal.Decimal { return m.Base.Increment }
func (m *Market) MinPrice() decimal.Decimal { return m.Quote.Min }

// TickDigits is the number of decimals allowed in a price.
func (m *Market) TickDigits() int32 { return quant.DigitsOf(m.Quote.Increment) }

// StepDigits is the number of decimals allowed in a quantity.
func (m *Market) StepDigits() int32 { return quant.DigitsOf(m.Base.Increment) }

// Validate rejects rule sets the sizing math cannot work with.
func (m *Market) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("market symbol is empty")
	}
	if !m.Quote.Increment.IsPositive() {
		return fmt.Errorf("%s: tick size must be positive", m.Symbol)
	}
	if !m.Base.Increment.IsPositive() {
		return fmt.Errorf("%s: step size must be positive", m.Symbol)
	}
	if m.Base.Max.IsPositive() && m.Base.Max.LessThan(m.Base.Min) {
		return fmt.Errorf("%s: max quantity %s below min quantity %s", m.Symbol, m.Base.Max, m.Base.Min)
	}
	if !m.Fees.MakerFactor().IsPositive() {
		return fmt.Errorf("%s: maker fee %s%% leaves nothing", m.Symbol, m.Fees.Maker)
	}
	return nil
}

// Channel is the entry-price band.
type Channel struct {
	Lower decimal.Decimal `json:"lower"`
	Upper decimal.Decimal `json:"upper"`
}

// Package pricing turns a channel bound into an exchange-legal order:
// quantity under lot rules and a take-profit that survives maker fees on both legs.
package pricing

import (
	"scalper_go/internal/domain"
	"scalper_go/pkg/quant"

	"github.com/shopspring/decimal"
)

// Params are the strategy constants that affect sizing and take-profit.
type Params struct {
	SpendFraction      decimal.Decimal
	MinTakeProfitPips  int64
	MinTakeProfitTicks int64
}

// Calculator is pure: all inputs are passed in, nothing is mutated.
type Calculator struct {
	market     *domain.Market
	params     Params
	fee        decimal.Decimal // maker factor f
	fee2       decimal.Decimal // f²
	tickDigits int32
	stepDigits int32
}

// NewCalculator builds a calculator for the given market rules.
func NewCalculator(market *domain.Market, params Params) *Calculator {
	f := market.Fees.MakerFactor()
	return &Calculator{
		market:     market,
		params:     params,
		fee:        f,
		fee2:       f.Mul(f),
		tickDigits: market.TickDigits(),
		stepDigits: market.StepDigits(),
	}
}

// Market returns the rules the calculator was built with.
func (c *Calculator) Market() *domain.Market { return c.market }

// MinProfit is the profit target of a round trip opened on side.
// Buy legs earn quote units, sell legs earn base units.
func (c *Calculator) MinProfit(side domain.Side) decimal.Decimal {
	pips := decimal.NewFromInt(c.params.MinTakeProfitPips)
	if side == domain.SideBuy {
		return quant.Unit(c.market.Quote.Precision).Mul(pips)
	}
	return quant.Unit(c.market.Base.Precision).Mul(pips)
}

// FormatQuantity makes qty legal at price: min notional (padded by one step),
// [minQty, maxQty], rounded up to step digits. Returns zero when no legal quantity exists.
func (c *Calculator) FormatQuantity(qty, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || qty.IsNegative() {
		return decimal.Zero
	}
	base := c.market.Base
	minNotional := c.market.MinNotional

	q := qty
	if q.Mul(price).LessThan(minNotional) {
		q = minNotional.Div(price).Add(base.Increment)
	}
	if q.LessThan(base.Min) {
		q = base.Min
	}
	if base.Max.IsPositive() && q.GreaterThan(base.Max) {
		q = base.Max
	}
	q = quant.Normalize(q, c.stepDigits, quant.RoundUp)
	if base.Max.IsPositive() && q.GreaterThan(base.Max) {
		q = quant.Normalize(base.Max, c.stepDigits, quant.RoundDown)
	}

	if !q.IsPositive() || q.Mul(price).LessThan(minNotional) || q.LessThan(base.Min) {
		return decimal.Zero
	}
	return q
}

// EntryQuantity sizes an entry at price from the free balances.
// Zero means do not trade: the paying asset cannot cover the formatted quantity.
func (c *Calculator) EntryQuantity(side domain.Side, price decimal.Decimal, funds domain.Funds) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	switch side {
	case domain.SideBuy:
		q := c.FormatQuantity(funds.Quote.Mul(c.params.SpendFraction).Div(price), price)
		if q.Mul(price).GreaterThan(funds.Quote) {
			return decimal.Zero
		}
		return q
	case domain.SideSell:
		q := c.FormatQuantity(funds.Base.Mul(c.params.SpendFraction), price)
		if q.GreaterThan(funds.Base) {
			return decimal.Zero
		}
		return q
	}
	return decimal.Zero
}

// LiquidationPrice returns the take-profit for volume entered at entry on side.
//
//	buy:  X = (m_q + V·P) / (V·f²), rounded up to tick digits
//	sell: X = V·P·f² / (m_b + V),  rounded down to tick digits
//
// The exit is kept at least MinTakeProfitTicks ticks away from entry.
func (c *Calculator) LiquidationPrice(side domain.Side, entry, volume decimal.Decimal) (decimal.Decimal, bool) {
	if !volume.IsPositive() || !entry.IsPositive() {
		return decimal.Zero, false
	}
	gap := c.market.TickSize().Mul(decimal.NewFromInt(c.params.MinTakeProfitTicks))
	m := c.MinProfit(side)

	switch side {
	case domain.SideBuy:
		x := m.Add(volume.Mul(entry)).Div(volume.Mul(c.fee2))
		x = quant.Normalize(x, c.tickDigits, quant.RoundUp)
		if floor := quant.Normalize(entry.Add(gap), c.tickDigits, quant.RoundUp); x.LessThan(floor) {
			x = floor
		}
		if !x.GreaterThan(entry) {
			return decimal.Zero, false
		}
		return x, true
	case domain.SideSell:
		x := volume.Mul(entry).Mul(c.fee2).Div(m.Add(volume))
		x = quant.Normalize(x, c.tickDigits, quant.RoundDown)
		if ceil := quant.Normalize(entry.Sub(gap), c.tickDigits, quant.RoundDown); x.GreaterThan(ceil) {
			x = ceil
		}
		if !x.IsPositive() || !x.LessThan(entry) {
			return decimal.Zero, false
		}
		return x, true
	}
	return decimal.Zero, false
}

// ConfirmEntryExit re-derives the exit quantity after the first leg's fee and the
// entry quantity that produces it. Both come back formatted.
//
//	buy:  exit = q·f            entry = exit / f
//	sell: exit = q·P·f / X      entry = exit·X / (P·f)
func (c *Calculator) ConfirmEntryExit(side domain.Side, entry, exit, qty decimal.Decimal) (entryQty, exitQty decimal.Decimal) {
	if !entry.IsPositive() || !exit.IsPositive() || !qty.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	if side == domain.SideBuy {
		exitQty = c.FormatQuantity(qty.Mul(c.fee), exit)
		entryQty = c.FormatQuantity(exitQty.Div(c.fee), entry)
		return entryQty, exitQty
	}
	exitQty = c.FormatQuantity(qty.Mul(entry).Mul(c.fee).Div(exit), exit)
	entryQty = c.FormatQuantity(exitQty.Mul(exit).Div(entry.Mul(c.fee)), entry)
	return entryQty, exitQty
}

// Quote is a fully priced entry with its take-profit.
type Quote struct {
	Side     domain.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Exit     domain.ExitPlan
}

// Ready reports whether the quote can be traded.
func (q Quote) Ready() bool {
	return q.Quantity.IsPositive() && q.Exit.Price.IsPositive() && q.Exit.Quantity.IsPositive()
}

// Move is the absolute distance between entry and exit.
func (q Quote) Move() decimal.Decimal {
	return q.Exit.Price.Sub(q.Price).Abs()
}

// Plan prices an entry at price: size, take-profit, confirmed quantities.
// The returned quote has zero quantity when any step fails or the confirmed
// entry no longer fits the free balance.
func (c *Calculator) Plan(side domain.Side, price decimal.Decimal, funds domain.Funds) Quote {
	q := Quote{Side: side, Price: price}

	qty := c.EntryQuantity(side, price, funds)
	if qty.IsZero() {
		return q
	}
	exit, ok := c.LiquidationPrice(side, price, qty)
	if !ok {
		return q
	}
	entryQty, exitQty := c.ConfirmEntryExit(side, price, exit, qty)
	if entryQty.IsZero() || exitQty.IsZero() {
		return q
	}
	if side == domain.SideBuy && entryQty.Mul(price).GreaterThan(funds.Quote) {
		return q
	}
	if side == domain.SideSell && entryQty.GreaterThan(funds.Base) {
		return q
	}

	q.Quantity = entryQty
	q.Exit = domain.ExitPlan{Price: exit, Quantity: exitQty}
	return q
}

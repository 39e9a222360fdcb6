package pricing

import (
	"testing"

	"scalper_go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testMarket() *domain.Market {
	return &domain.Market{
		Symbol: "BTCUSDT",
		Base: domain.AssetSpec{
			Name: "BTC", Precision: 8,
			Min: d("0.001"), Max: d("100"), Increment: d("0.001"),
		},
		Quote: domain.AssetSpec{
			Name: "USDT", Precision: 8,
			Min: d("0.01"), Max: d("1000000"), Increment: d("0.01"),
		},
		MinNotional: d("10"),
		Fees:        domain.FeeSchedule{Maker: d("0.1"), Taker: d("0.1")},
	}
}

func testParams() Params {
	return Params{SpendFraction: d("0.1"), MinTakeProfitPips: 1, MinTakeProfitTicks: 1}
}

func TestEntryQuantityScenario(t *testing.T) {
	c := NewCalculator(testMarket(), testParams())

	q := c.EntryQuantity(domain.SideBuy, d("100"), domain.Funds{Quote: d("1000")})
	assert.Equal(t, "1.000", q.StringFixed(3))
	assert.Equal(t, int32(-3), q.Exponent())
	assert.True(t, q.Mul(d("100")).LessThanOrEqual(d("1000")))
}

func TestEntryQuantityInsufficientBalance(t *testing.T) {
	c := NewCalculator(testMarket(), testParams())

	// 5 USDT cannot cover the 10 USDT min notional.
	q := c.EntryQuantity(domain.SideBuy, d("100"), domain.Funds{Quote: d("5")})
	assert.True(t, q.IsZero())

	q = c.EntryQuantity(domain.SideSell, d("100"), domain.Funds{Base: d("0.05")})
	assert.True(t, q.IsZero())

	q = c.EntryQuantity(domain.SideSell, d("100"), domain.Funds{Base: d("10")})
	assert.Equal(t, "1.000", q.StringFixed(3))
}

func TestFormatQuantityPadsMinNotional(t *testing.T) {
	c := NewCalculator(testMarket(), testParams())

	// 0.05·100 = 5 < 10 → 10/100 + 0.001 = 0.101
	q := c.FormatQuantity(d("0.05"), d("100"))
	assert.Equal(t, "0.101", q.StringFixed(3))
}

func TestFormatQuantityBounds(t *testing.T) {
	m := testMarket()
	c := NewCalculator(m, testParams())

	prices := []string{"0.5", "3.33", "100", "2500.07", "68000.01"}
	qtys := []string{"0", "0.0001", "0.0123456", "1", "7.7777", "99.9999", "250"}
	for _, p := range prices {
		for _, q := range qtys {
			price := d(p)
			got := c.FormatQuantity(d(q), price)
			if got.IsZero() {
				continue
			}
			assert.True(t, got.GreaterThanOrEqual(m.Base.Min), "qty %s price %s: %s below min", q, p, got)
			assert.True(t, got.LessThanOrEqual(m.Base.Max), "qty %s price %s: %s above max", q, p, got)
			assert.True(t, got.Mul(price).GreaterThanOrEqual(m.MinNotional), "qty %s price %s: notional", q, p)
			assert.LessOrEqual(t, -got.Exponent(), int32(3))
		}
	}
}

func TestFormatQuantityImpossible(t *testing.T) {
	m := testMarket()
	m.Base.Max = d("0.01")
	c := NewCalculator(m, testParams())

	// max 0.01 at price 100 is 1 USDT, below the 10 USDT min notional.
	assert.True(t, c.FormatQuantity(d("0.005"), d("100")).IsZero())
	assert.True(t, c.FormatQuantity(d("1"), decimal.Zero).IsZero())
}

func TestLiquidationPrice(t *testing.T) {
	c := NewCalculator(testMarket(), testParams())

	// (1e-8 + 100) / 0.999² = 100.2003..., rounded up.
	x, ok := c.LiquidationPrice(domain.SideBuy, d("100"), d("1"))
	require.True(t, ok)
	assert.Equal(t, "100.21", x.StringFixed(2))

	x, ok = c.LiquidationPrice(domain.SideSell, d("100"), d("1"))
	require.True(t, ok)
	assert.Equal(t, "99.80", x.StringFixed(2))

	_, ok = c.LiquidationPrice(domain.SideBuy, d("100"), decimal.Zero)
	assert.False(t, ok)
}

func TestLiquidationPriceTickFloor(t *testing.T) {
	m := testMarket()
	m.Fees = domain.FeeSchedule{}
	p := testParams()
	p.MinTakeProfitTicks = 5
	c := NewCalculator(m, p)

	x, ok := c.LiquidationPrice(domain.SideBuy, d("100"), d("1"))
	require.True(t, ok)
	assert.Equal(t, "100.05", x.StringFixed(2))

	x, ok = c.LiquidationPrice(domain.SideSell, d("100"), d("1"))
	require.True(t, ok)
	assert.Equal(t, "99.95", x.StringFixed(2))
}

func TestLiquidationPriceProfitable(t *testing.T) {
	m := testMarket()
	prices := []string{"0.25", "17.03", "100", "1999.99", "64000.5"}
	volumes := []string{"0.001", "0.37", "1", "12.5"}
	fees := []string{"0", "0.075", "0.1", "0.5"}

	for _, fee := range fees {
		m.Fees = domain.FeeSchedule{Maker: d(fee), Taker: d(fee)}
		c := NewCalculator(m, testParams())
		f2 := m.Fees.MakerFactor().Mul(m.Fees.MakerFactor())

		for _, ps := range prices {
			for _, vs := range volumes {
				p, v := d(ps), d(vs)

				x, ok := c.LiquidationPrice(domain.SideBuy, p, v)
				require.True(t, ok)
				assert.True(t, x.GreaterThan(p))
				profit := v.Mul(x).Mul(f2).Sub(v.Mul(p))
				assert.True(t, profit.GreaterThanOrEqual(c.MinProfit(domain.SideBuy)),
					"buy fee=%s p=%s v=%s x=%s profit=%s", fee, ps, vs, x, profit)

				x, ok = c.LiquidationPrice(domain.SideSell, p, v)
				if !ok {
					continue
				}
				assert.True(t, x.LessThan(p))
				baseProfit := v.Mul(p).Mul(f2).Div(x).Sub(v)
				assert.True(t, baseProfit.GreaterThanOrEqual(c.MinProfit(domain.SideSell)),
					"sell fee=%s p=%s v=%s x=%s profit=%s", fee, ps, vs, x, baseProfit)
			}
		}
	}
}

func TestConfirmEntryExit(t *testing.T) {
	c := NewCalculator(testMarket(), testParams())

	entry, exit := c.ConfirmEntryExit(domain.SideBuy, d("100"), d("100.21"), d("1"))
	assert.Equal(t, "1.000", entry.StringFixed(3))
	assert.Equal(t, "0.999", exit.StringFixed(3))

	// exit 1·100·0.999/99.8 = 1.001002 -> 1.002; entry 1.002·99.8/99.9 = 1.000996 -> 1.001
	entry, exit = c.ConfirmEntryExit(domain.SideSell, d("100"), d("99.80"), d("1"))
	assert.Equal(t, "1.002", exit.StringFixed(3))
	assert.Equal(t, "1.001", entry.StringFixed(3))
}

func TestPlan(t *testing.T) {
	c := NewCalculator(testMarket(), testParams())
	funds := domain.Funds{Base: d("10"), Quote: d("1000")}

	buy := c.Plan(domain.SideBuy, d("100"), funds)
	require.True(t, buy.Ready())
	assert.Equal(t, "100.21", buy.Exit.Price.StringFixed(2))
	assert.Equal(t, "0.999", buy.Exit.Quantity.StringFixed(3))
	assert.Equal(t, "0.21", buy.Move().String())

	sell := c.Plan(domain.SideSell, d("100"), funds)
	require.True(t, sell.Ready())
	assert.Equal(t, "99.80", sell.Exit.Price.StringFixed(2))
	assert.Equal(t, "1.001", sell.Quantity.StringFixed(3))
	assert.Equal(t, "1.002", sell.Exit.Quantity.StringFixed(3))

	// Spending the whole 1.001 base confirms to 1.002 (exit 1.003), more than the balance.
	all := testParams()
	all.SpendFraction = d("1")
	tight := NewCalculator(testMarket(), all).Plan(domain.SideSell, d("100"), domain.Funds{Base: d("1.001")})
	assert.False(t, tight.Ready())

	empty := c.Plan(domain.SideBuy, d("100"), domain.Funds{})
	assert.False(t, empty.Ready())
}

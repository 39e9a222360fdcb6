package binance

import (
	"fmt"

	"scalper_go/internal/domain"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const (
	filterLotSize     = "LOT_SIZE"
	filterPrice       = "PRICE_FILTER"
	filterMinNotional = "MIN_NOTIONAL"
	filterNotional    = "NOTIONAL"
)

// ParseMarket turns an exchangeInfo symbol entry into market rules. Fees are left zero.
func ParseMarket(sym binance.Symbol) (*domain.Market, error) {
	m := &domain.Market{
		Symbol: sym.Symbol,
		Base:   domain.AssetSpec{Name: sym.BaseAsset, Precision: int32(sym.BaseAssetPrecision)},
		Quote:  domain.AssetSpec{Name: sym.QuoteAsset, Precision: int32(sym.QuotePrecision)},
	}

	var err error
	for _, f := range sym.Filters {
		switch f["filterType"] {
		case filterLotSize:
			if m.Base.Min, err = filterValue(f, "minQty"); err != nil {
				return nil, err
			}
			if m.Base.Max, err = filterValue(f, "maxQty"); err != nil {
				return nil, err
			}
			if m.Base.Increment, err = filterValue(f, "stepSize"); err != nil {
				return nil, err
			}
		case filterPrice:
			if m.Quote.Min, err = filterValue(f, "minPrice"); err != nil {
				return nil, err
			}
			if m.Quote.Max, err = filterValue(f, "maxPrice"); err != nil {
				return nil, err
			}
			if m.Quote.Increment, err = filterValue(f, "tickSize"); err != nil {
				return nil, err
			}
		case filterMinNotional, filterNotional:
			// Newer listings only carry NOTIONAL.
			if m.MinNotional, err = filterValue(f, "minNotional"); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func filterValue(f map[string]interface{}, key string) (decimal.Decimal, error) {
	raw, ok := f[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("filter %v: missing %s", f["filterType"], key)
	}
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("filter %v: %s: %w", f["filterType"], key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, fmt.Errorf("filter %v: %s has type %T", f["filterType"], key, raw)
	}
}

// percentFromFraction converts a tradeFee commission ("0.001") to percent ("0.1").
func percentFromFraction(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Mul(decimal.NewFromInt(100)), nil
}

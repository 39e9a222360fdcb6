package strategy

import (
	"log/slog"

	"scalper_go/internal/domain"
	"scalper_go/pkg/quant"

	"github.com/shopspring/decimal"
)

var four = decimal.NewFromInt(4)

// Config holds the channel constants.
type Config struct {
	MinWindow             int
	ChannelLengthMultiple decimal.Decimal
	DistributionRatio     decimal.Decimal
}

// ChannelSizer finds the shortest window whose spread covers a round trip.
type ChannelSizer struct {
	cfg    Config
	bounds *BoundCalculator
	sizer  Sizer
	logger *slog.Logger
}

// NewChannelSizer wires the bound calculator and the position sizer together.
func NewChannelSizer(cfg Config, bounds *BoundCalculator, sizer Sizer) *ChannelSizer {
	if cfg.MinWindow < 1 {
		cfg.MinWindow = 1
	}
	if !cfg.ChannelLengthMultiple.IsPositive() {
		cfg.ChannelLengthMultiple = decimal.NewFromInt(1)
	}
	return &ChannelSizer{
		cfg:    cfg,
		bounds: bounds,
		sizer:  sizer,
		logger: slog.Default().With("module", "strategy"),
	}
}

// Evaluate scans window lengths 1..len(buf) and truncates buf to the length it stops at.
//
// A length is a candidate when it is at least MinWindow and evenly distributed. A side is
// ready when 2·σ >= |exit − entry|. The first ready length L₀ fixes the target
// ceil(L₀·multiple); the scan stops at the first candidate >= target that still has a ready
// side, and only then are the entry flags set.
func (cs *ChannelSizer) Evaluate(buf *PriceBuffer, funds domain.Funds) Result {
	n := buf.Len()
	if n == 0 {
		return Result{}
	}

	tick := buf.Latest()
	window := buf.Window(n)
	acc := quant.NewAccumulator(n)

	res := Result{Tick: tick, Window: n}
	target := 0
	stopped := false

	for l := 1; l <= n; l++ {
		acc.Add(window[l-1])
		if l < cs.cfg.MinWindow {
			continue
		}
		if !IsEvenlyDistributed(window[:l], cs.cfg.DistributionRatio) {
			continue
		}

		ch := cs.bounds.Bounds(acc, tick)
		buyPrice, sellPrice := cs.bounds.EntryPrices(ch)
		buy := cs.sizer.Plan(domain.SideBuy, buyPrice, funds)
		sell := cs.sizer.Plan(domain.SideSell, sellPrice, funds)

		buyReady := buy.Ready() && covers(acc, buy.Move())
		sellReady := sell.Ready() && covers(acc, sell.Move())
		if !buyReady && !sellReady {
			continue
		}

		if target == 0 {
			target = int(decimal.NewFromInt(int64(l)).Mul(cs.cfg.ChannelLengthMultiple).Ceil().IntPart())
		}
		if l >= target {
			res.Channel, res.Buy, res.Sell = ch, buy, sell
			res.EnterBuy, res.EnterSell = buyReady, sellReady
			res.Window = l
			stopped = true
			break
		}
	}

	if !stopped {
		res.Channel = cs.bounds.Bounds(acc, tick)
		buyPrice, sellPrice := cs.bounds.EntryPrices(res.Channel)
		res.Buy = cs.sizer.Plan(domain.SideBuy, buyPrice, funds)
		res.Sell = cs.sizer.Plan(domain.SideSell, sellPrice, funds)
	}

	buf.Truncate(res.Window)

	if res.Entering() {
		cs.logger.Debug("channel ready",
			"window", res.Window,
			"lower", res.Channel.Lower,
			"upper", res.Channel.Upper,
			"stddev", acc.StdDev(),
			"buy", res.EnterBuy,
			"sell", res.EnterSell,
		)
	}
	return res
}

// covers checks 2σ >= move exactly: 4·(L·Σx² − (Σx)²) >= move²·L².
func covers(acc *quant.Accumulator, move decimal.Decimal) bool {
	l := decimal.NewFromInt(int64(acc.Len()))
	lhs := acc.ScaledVariance().Mul(four)
	rhs := move.Mul(move).Mul(l).Mul(l)
	return lhs.GreaterThanOrEqual(rhs)
}

package execution

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"scalper_go/internal/domain"
	"scalper_go/internal/event"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeRules struct{}

func (fakeRules) LoadRules(_ context.Context, base, quote string) (*domain.Market, error) {
	return &domain.Market{
		Symbol:      base + quote,
		Base:        domain.AssetSpec{Name: base, Precision: 8, Min: d("0.001"), Max: d("100"), Increment: d("0.001")},
		Quote:       domain.AssetSpec{Name: quote, Precision: 8, Min: d("0.01"), Max: d("1000000"), Increment: d("0.01")},
		MinNotional: d("10"),
	}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *eventLog) deliver(_ context.Context, ev event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []event.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Type, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.GetType()
	}
	return out
}

func (l *eventLog) last(typ event.Type) event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].GetType() == typ {
			return l.events[i]
		}
	}
	return nil
}

func newTestPaper(t *testing.T) (*PaperExecution, *eventLog) {
	t.Helper()
	paper := NewPaperExecution(fakeRules{}, domain.FeeSchedule{Maker: d("0.1"), Taker: d("0.1")})
	_, err := paper.LoadMarket(context.Background(), "BTC", "USDT")
	require.NoError(t, err)
	require.NoError(t, paper.Deposit("USDT", d("1000")))
	require.NoError(t, paper.Deposit("BTC", d("1")))

	log := &eventLog{}
	paper.Bind(context.Background(), log.deliver)
	return paper, log
}

func limit(side domain.Side, qty, price, id string) domain.OrderRequest {
	return domain.OrderRequest{
		ClientOrderID: id,
		Symbol:        "BTCUSDT",
		Side:          side,
		Quantity:      d(qty),
		Price:         d(price),
		QtyDigits:     3,
		PriceDigits:   2,
	}
}

func TestPaperExecution_Buy(t *testing.T) {
	paper, log := newTestPaper(t)
	ctx := context.Background()

	id, err := paper.SubmitOrder(ctx, limit(domain.SideBuy, "1", "99.90", "scalp_aB-100x1-0x999"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	usdt := paper.GetBalance("USDT")
	assert.Equal(t, "900.10", usdt.Free.StringFixed(2))
	assert.Equal(t, "99.90", usdt.Locked.StringFixed(2))

	assert.Zero(t, paper.OnTrade("BTCUSDT", d("99.90")), "touching the limit does not fill")
	assert.Zero(t, paper.OnTrade("ETHUSDT", d("1")), "other symbols ignored")
	assert.Equal(t, 1, paper.OnTrade("BTCUSDT", d("99.89")))

	usdt = paper.GetBalance("USDT")
	assert.Equal(t, "900.10", usdt.Free.StringFixed(2))
	assert.True(t, usdt.Locked.IsZero())
	assert.Equal(t, "1.999", paper.GetBalance("BTC").Free.StringFixed(3), "maker fee taken from the bought asset")

	fills := paper.GetFills()
	require.Len(t, fills, 1)
	assert.Equal(t, domain.OrderStatusFilled, fills[0].Status)
	assert.Equal(t, "TRADE", fills[0].ExecutionType)
	assert.Equal(t, "scalp_aB-100x1-0x999", fills[0].ClientOrderID)

	assert.Equal(t, []event.Type{
		event.TypeExecutionReport, event.TypeBalance,
		event.TypeExecutionReport, event.TypeBalance,
	}, log.types())

	open, err := paper.OpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPaperExecution_Sell(t *testing.T) {
	paper, _ := newTestPaper(t)

	_, err := paper.SubmitOrder(context.Background(), limit(domain.SideSell, "0.5", "101", "scalp_aS-99x5-0x5"))
	require.NoError(t, err)
	btc := paper.GetBalance("BTC")
	assert.Equal(t, "0.500", btc.Free.StringFixed(3))
	assert.Equal(t, "0.500", btc.Locked.StringFixed(3))

	assert.Zero(t, paper.OnTrade("BTCUSDT", d("101")))
	assert.Equal(t, 1, paper.OnTrade("BTCUSDT", d("101.01")))

	assert.Equal(t, "1050.4495", paper.GetBalance("USDT").Free.StringFixed(4))
	assert.True(t, paper.GetBalance("BTC").Locked.IsZero())
}

func TestPaperExecution_InsufficientBalance(t *testing.T) {
	paper, log := newTestPaper(t)

	_, err := paper.SubmitOrder(context.Background(), limit(domain.SideBuy, "20", "100", "scalp_aB-1-1"))
	require.Error(t, err)

	var xe *domain.ExchangeError
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, int64(codeInsufficientBalance), xe.Code)
	assert.False(t, domain.IsRetriable(err))
	assert.Empty(t, log.types(), "rejected orders produce no events")
	assert.Equal(t, "1000", paper.GetBalance("USDT").Free.StringFixed(0))
}

func TestPaperExecution_Cancel(t *testing.T) {
	paper, log := newTestPaper(t)
	ctx := context.Background()

	_, err := paper.SubmitOrder(ctx, limit(domain.SideBuy, "1", "99", "scalp_aB-100x1-0x999"))
	require.NoError(t, err)
	_, err = paper.SubmitOrder(ctx, limit(domain.SideBuy, "1", "98", "scalp_aB-100x1-0x999"))
	require.Error(t, err, "duplicate client id")

	open, err := paper.OpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, paper.CancelOrder(ctx, domain.CancelRequest{Symbol: "BTCUSDT", OrigClientOrderID: "scalp_aB-100x1-0x999"}))
	assert.Equal(t, "1000.00", paper.GetBalance("USDT").Free.StringFixed(2))

	er, ok := log.last(event.TypeExecutionReport).(*event.ExecutionReportEvent)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusCanceled, er.Report.Status)
	assert.True(t, strings.HasPrefix(er.Report.ClientOrderID, "paper_"))
	assert.Equal(t, "scalp_aB-100x1-0x999", er.Report.OrigClientOrderID)
	assert.Equal(t, "scalp_aB-100x1-0x999", domain.ResolveClientID(er.Report.ClientOrderID, er.Report.OrigClientOrderID))

	err = paper.CancelOrder(ctx, domain.CancelRequest{Symbol: "BTCUSDT", OrderID: open[0].OrderID})
	var xe *domain.ExchangeError
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, int64(codeUnknownOrder), xe.Code)
}

func TestPaperExecution_Balances(t *testing.T) {
	paper, _ := newTestPaper(t)

	balances, err := paper.Balances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.Equal(t, "USDT", balances[1].Asset)
}

func TestPaperExecution_ImplementsInterface(t *testing.T) {
	var _ domain.Exchange = (*PaperExecution)(nil)
}

package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scalper_go/internal/domain"
	"scalper_go/internal/event"
	"scalper_go/internal/strategy"
)

func newTestSequencer(t testing.TB, inboxSize int, onUpdate func(Snapshot)) (*Sequencer, *fakeExec) {
	t.Helper()
	r, exec, calc := newTestReconciler()
	m := calc.Market()
	sizer := strategy.NewChannelSizer(strategy.Config{
		MinWindow:             3,
		ChannelLengthMultiple: d("1"),
		DistributionRatio:     d("0.4"),
	}, strategy.NewBoundCalculator(m, d("0.01"), d("0.99")), calc)

	balances := domain.NewBalanceBook()
	_ = balances.Set("USDT", d("1000"), d("0"), time.Now())
	_ = balances.Set("BTC", d("10"), d("0"), time.Now())

	state := &State{Buffer: strategy.NewPriceBuffer(0), Balances: balances}
	return NewSequencer(inboxSize, m, state, sizer, r, nil, onUpdate), exec
}

func trade(symbol, price string) *event.TradeEvent {
	ev := event.AcquireTradeEvent()
	ev.Symbol = symbol
	ev.Price = d(price)
	ev.Ts = 1000
	return ev
}

func TestSequencer_TradeUpdatesState(t *testing.T) {
	var mu sync.Mutex
	var last Snapshot
	seq, _ := newTestSequencer(t, 10, func(s Snapshot) {
		mu.Lock()
		last = s
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go seq.Run(ctx)

	seq.Inbox() <- trade("BTCUSDT", "100")
	seq.Inbox() <- trade("ETHUSDT", "5")

	// Wait for processing
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if last.Ticks != 1 {
		t.Errorf("Expected 1 tick, got %d", last.Ticks)
	}
	if !last.Tick.Equal(d("100")) {
		t.Errorf("Expected tick 100, got %s", last.Tick)
	}
	if last.Symbol != "BTCUSDT" {
		t.Errorf("Expected symbol BTCUSDT, got %s", last.Symbol)
	}
}

func TestSequencer_OscillatingTradesPlaceOrders(t *testing.T) {
	seq, exec := newTestSequencer(t, 10, nil)

	// [104, 97, 103] oscillates enough to cover a ~0.2 take-profit on either side.
	for _, p := range []string{"100", "103", "97", "104"} {
		seq.processEvent(trade("BTCUSDT", p))
	}

	snap := seq.Snapshot()
	if !snap.EnterBuy || !snap.EnterSell {
		t.Fatalf("Expected both entry flags, got buy=%v sell=%v", snap.EnterBuy, snap.EnterSell)
	}
	if len(exec.submits) != 2 {
		t.Fatalf("Expected 2 submits, got %d", len(exec.submits))
	}
	for _, req := range exec.submits {
		if req.Side == domain.SideBuy && !req.Price.LessThan(snap.Tick) {
			t.Errorf("buy %s not below tick %s", req.Price, snap.Tick)
		}
		if req.Side == domain.SideSell && !req.Price.GreaterThan(snap.Tick) {
			t.Errorf("sell %s not above tick %s", req.Price, snap.Tick)
		}
	}
	if snap.Window != 3 {
		t.Errorf("Expected buffer truncated to 3, got %d", snap.Window)
	}

	// The next tick moves both bounds: both orders are replaced.
	exec.reset()
	seq.processEvent(trade("BTCUSDT", "100"))
	if len(exec.cancels) != 2 || len(exec.submits) != 2 {
		t.Errorf("Expected 2 cancels and 2 submits, got %d and %d", len(exec.cancels), len(exec.submits))
	}
}

func TestSequencer_BalanceEvents(t *testing.T) {
	seq, _ := newTestSequencer(t, 10, nil)

	seq.processEvent(&event.BalanceEvent{
		BaseEvent: event.BaseEvent{Ts: 2000},
		Balances:  []domain.Balance{{Asset: "USDT", Free: d("500"), Locked: d("25")}},
	})
	seq.processEvent(&event.BalanceDeltaEvent{Asset: "BTC", Delta: d("-1.5")})

	snap := seq.Snapshot()
	if got := snap.Balances["USDT"].Free; !got.Equal(d("500")) {
		t.Errorf("USDT free = %s, want 500", got)
	}
	if got := snap.Balances["BTC"].Free; !got.Equal(d("8.5")) {
		t.Errorf("BTC free = %s, want 8.5", got)
	}
}

func TestSequencer_OfferTradeDropsWhenFull(t *testing.T) {
	seq, _ := newTestSequencer(t, 1, nil)

	if !seq.OfferTrade(trade("BTCUSDT", "100")) {
		t.Fatal("first trade should be accepted")
	}
	if seq.OfferTrade(trade("BTCUSDT", "101")) {
		t.Error("second trade should be dropped on a full inbox")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := seq.Deliver(ctx, &event.BalanceDeltaEvent{Asset: "BTC"}); err == nil {
		t.Error("Deliver should fail once the context is done and the inbox is full")
	}
}

func TestSequencer_DumpState(t *testing.T) {
	seq, _ := newTestSequencer(t, 10, nil)
	seq.processEvent(trade("BTCUSDT", "100"))

	path := filepath.Join(t.TempDir(), "dump.json")
	seq.DumpState(path)

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("dump not written: %v", err)
	}
	var dump struct {
		Symbol string   `json:"symbol"`
		Buffer []string `json:"buffer"`
	}
	if err := json.Unmarshal(b, &dump); err != nil {
		t.Fatalf("dump is not JSON: %v", err)
	}
	if dump.Symbol != "BTCUSDT" || len(dump.Buffer) != 1 {
		t.Errorf("unexpected dump: %+v", dump)
	}
}

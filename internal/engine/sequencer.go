package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"scalper_go/internal/domain"
	"scalper_go/internal/event"
	"scalper_go/internal/strategy"

	"github.com/shopspring/decimal"
)

// State is everything the trading loop mutates. Owned by the Sequencer goroutine.
type State struct {
	Buffer   *strategy.PriceBuffer
	Balances *domain.BalanceBook
	Last     strategy.Result
	Ticks    uint64
}

// Snapshot is a read-only copy of the state for external readers.
type Snapshot struct {
	Symbol     string                    `json:"symbol"`
	Tick       decimal.Decimal           `json:"tick"`
	Channel    domain.Channel            `json:"channel"`
	Window     int                       `json:"window"`
	EnterBuy   bool                      `json:"enter_buy"`
	EnterSell  bool                      `json:"enter_sell"`
	Orders     []domain.Order            `json:"orders"`
	Balances   map[string]domain.Balance `json:"balances"`
	Ticks      uint64                    `json:"ticks"`
	RoundTrips int                       `json:"round_trips"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// Sequencer is the core single-threaded event processor.
type Sequencer struct {
	inbox  chan event.Event
	market *domain.Market
	state  *State
	sizer  *strategy.ChannelSizer
	recon  *Reconciler
	obs    Observer
	logger *slog.Logger

	// Boundary: used to notify the status service of state changes
	onStateUpdate func(Snapshot)
}

// NewSequencer creates a new sequencer instance. state carries the balances loaded at boot.
func NewSequencer(inboxSize int, market *domain.Market, state *State, sizer *strategy.ChannelSizer, recon *Reconciler, obs Observer, onUpdate func(Snapshot)) *Sequencer {
	if obs == nil {
		obs = nopObserver{}
	}
	if state.Buffer == nil {
		state.Buffer = strategy.NewPriceBuffer(0)
	}
	if state.Balances == nil {
		state.Balances = domain.NewBalanceBook()
	}
	return &Sequencer{
		inbox:         make(chan event.Event, inboxSize),
		market:        market,
		state:         state,
		sizer:         sizer,
		recon:         recon,
		obs:           obs,
		logger:        slog.Default().With("module", "sequencer"),
		onStateUpdate: onUpdate,
	}
}

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// OfferTrade enqueues a trade without blocking. A full inbox drops the tick;
// the next one carries a fresher price anyway.
func (s *Sequencer) OfferTrade(ev *event.TradeEvent) bool {
	select {
	case s.inbox <- ev:
		return true
	default:
		s.obs.TickDropped()
		event.ReleaseTradeEvent(ev)
		return false
	}
}

// Deliver enqueues an account event, blocking until accepted or ctx ends.
func (s *Sequencer) Deliver(ctx context.Context, ev event.Event) error {
	select {
	case s.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	s.logger.Info("Sequencer started", "symbol", s.market.Symbol)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer stopping...")
			return
		case ev := <-s.inbox:
			s.processEvent(ev)
		}
	}
}

func (s *Sequencer) processEvent(ev event.Event) {
	switch e := ev.(type) {
	case *event.TradeEvent:
		s.handleTrade(e)
		event.ReleaseTradeEvent(e)
	case *event.ExecutionReportEvent:
		s.recon.OnExecutionReport(e.Report)
	case *event.BalanceEvent:
		s.handleBalances(e)
	case *event.BalanceDeltaEvent:
		if err := s.state.Balances.Apply(e.Asset, e.Delta, time.UnixMilli(e.Ts)); err != nil {
			s.logger.Warn("balance delta rejected", "asset", e.Asset, "delta", e.Delta, "error", err)
		}
	case *event.RequestFailedEvent:
		s.recon.OnRequestFailed(e)
	default:
		s.logger.Warn("Unknown event type", slog.Any("type", ev.GetType()))
		return
	}

	if s.onStateUpdate != nil {
		s.onStateUpdate(s.Snapshot())
	}
}

func (s *Sequencer) handleTrade(e *event.TradeEvent) {
	if e.Symbol != s.market.Symbol || !e.Price.IsPositive() {
		return
	}
	st := s.state
	st.Ticks++
	st.Buffer.Push(e.Price)

	funds := st.Balances.Funds(s.market.Base.Name, s.market.Quote.Name)
	res := s.sizer.Evaluate(st.Buffer, funds)
	st.Last = res

	s.recon.Evaluate(res)

	s.obs.TickProcessed()
	s.obs.ChannelEvaluated(res)
}

func (s *Sequencer) handleBalances(e *event.BalanceEvent) {
	at := time.UnixMilli(e.Ts)
	for _, b := range e.Balances {
		if err := s.state.Balances.Set(b.Asset, b.Free, b.Locked, at); err != nil {
			s.logger.Warn("balance rejected", "asset", b.Asset, "error", err)
		}
	}
}

// Snapshot copies the state. Call only from the loop goroutine or before Run.
func (s *Sequencer) Snapshot() Snapshot {
	st := s.state
	return Snapshot{
		Symbol:     s.market.Symbol,
		Tick:       st.Buffer.Latest(),
		Channel:    st.Last.Channel,
		Window:     st.Buffer.Len(),
		EnterBuy:   st.Last.EnterBuy,
		EnterSell:  st.Last.EnterSell,
		Orders:     s.recon.Orders(),
		Balances:   st.Balances.Snapshot(),
		Ticks:      st.Ticks,
		RoundTrips: s.recon.RoundTrips(),
		UpdatedAt:  time.Now(),
	}
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		Snapshot
		Buffer []decimal.Decimal `json:"buffer"`
	}{
		Snapshot: s.Snapshot(),
		Buffer:   s.state.Buffer.Values(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}

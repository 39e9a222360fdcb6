package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"scalper_go/internal/domain"
	"scalper_go/internal/engine"
	"scalper_go/internal/event"
	"scalper_go/internal/execution"
	"scalper_go/internal/infra"
	"scalper_go/internal/infra/binance"
	"scalper_go/internal/infra/storage"
	"scalper_go/internal/pricing"
	"scalper_go/internal/service"
	"scalper_go/internal/strategy"
)

// Startup stages reported in domain.StartupError.
const (
	StageConfig     = "config"
	StageJournal    = "journal"
	StageMarket     = "market"
	StageBalances   = "balances"
	StageOpenOrders = "open_orders"
	StageStreams    = "streams"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config     *infra.Config
	Metrics    *infra.Metrics
	Journal    *storage.Journal // nil when disabled
	REST       *binance.Client
	Paper      *execution.PaperExecution // nil in live mode
	Exchange   domain.Exchange
	Market     *domain.Market
	Status     *service.StatusService
	Dispatcher *execution.Dispatcher
	Sequencer  *engine.Sequencer

	streams map[string]domain.ExchangeWorker
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

func fail(stage string, err error) error {
	return &domain.StartupError{Stage: stage, Err: err}
}

// Initialize loads everything the trading loop needs before the first trade:
// config, logger, rules, balances and open orders. Any failure aborts startup.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	slog.Info("🚀 Bootstrapping scalper...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return fail(StageConfig, err)
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	b.Metrics = infra.NewMetrics()
	b.Status = service.NewStatusService()

	// 3. Journal (optional)
	if cfg.Journal.Path != "" {
		j, err := storage.NewJournal(cfg.Journal.Path)
		if err != nil {
			return fail(StageJournal, err)
		}
		b.Journal = j
		slog.Info("✅ Journal opened", slog.String("path", cfg.Journal.Path))
	}

	// 4. Exchange: live REST, or paper fills on live rules
	b.REST = binance.NewClient(cfg)
	b.Exchange = b.REST
	if cfg.IsPaper() {
		b.Paper = execution.NewPaperExecution(b.REST, domain.FeeSchedule{Maker: cfg.Paper.MakerFee, Taker: cfg.Paper.TakerFee})
		for asset, amount := range cfg.Paper.Balances {
			if err := b.Paper.Deposit(asset, amount); err != nil {
				return fail(StageBalances, err)
			}
		}
		b.Exchange = b.Paper
		slog.Info("📝 Paper mode: orders are simulated")
	}

	// 5. Market rules
	market, err := b.Exchange.LoadMarket(ctx, cfg.Pair.Base, cfg.Pair.Quote)
	if err != nil {
		return fail(StageMarket, err)
	}
	if err := market.Validate(); err != nil {
		return fail(StageMarket, err)
	}
	b.Market = market

	// 6. Balances
	balances, err := b.Exchange.Balances(ctx)
	if err != nil {
		return fail(StageBalances, err)
	}
	book := domain.NewBalanceBook()
	for _, bal := range balances {
		if err := book.Set(bal.Asset, bal.Free, bal.Locked, bal.UpdatedAt); err != nil {
			return fail(StageBalances, err)
		}
	}

	// 7. Open orders
	open, err := b.Exchange.OpenOrders(ctx, market.Symbol)
	if err != nil {
		return fail(StageOpenOrders, err)
	}

	b.assemble(ctx, book, open)
	slog.Info("✅ Engine ready",
		slog.String("symbol", market.Symbol),
		slog.String("mode", cfg.Exchange.Mode),
		slog.Int("open_orders", len(open)),
	)
	return nil
}

// assemble wires pricer, sizer, reconciler, dispatcher and sequencer.
func (b *Bootstrap) assemble(ctx context.Context, book *domain.BalanceBook, open []domain.Order) {
	cfg := b.Config
	s := cfg.Strategy

	calc := pricing.NewCalculator(b.Market, pricing.Params{
		SpendFraction:      s.SpendFraction,
		MinTakeProfitPips:  s.MinTakeProfitPips,
		MinTakeProfitTicks: s.MinTakeProfitTicks,
	})
	sizer := strategy.NewChannelSizer(strategy.Config{
		MinWindow:             s.MinWindow,
		ChannelLengthMultiple: s.ChannelLengthMultiple,
		DistributionRatio:     s.DistributionRatio,
	}, strategy.NewBoundCalculator(b.Market, s.LowerQuantile, s.UpperQuantile), calc)

	// The dispatcher reports back into the sequencer, which does not exist yet.
	var seq *engine.Sequencer
	deliver := func(ctx context.Context, ev event.Event) error { return seq.Deliver(ctx, ev) }

	dcfg := execution.DispatcherConfig{Timeout: cfg.RequestTimeout(), Errors: b.Metrics}
	opts := []engine.ReconcilerOption{
		engine.WithObserver(b.Metrics),
		engine.WithMaxRoundTrips(s.MaxRoundTrips),
	}
	if b.Journal != nil {
		dcfg.Journal = b.Journal
		opts = append(opts, engine.WithJournal(b.Journal))
	}
	b.Dispatcher = execution.NewDispatcher(ctx, b.Exchange, deliver, dcfg)

	recon := engine.NewReconciler(calc, domain.NewIDGenerator(time.Now), b.Dispatcher, opts...)
	recon.Seed(open)

	state := &engine.State{Buffer: strategy.NewPriceBuffer(s.MaxBuffer), Balances: book}
	seq = engine.NewSequencer(cfg.Engine.InboxSize, b.Market, state, sizer, recon, b.Metrics, b.Status.Update)
	b.Sequencer = seq

	if b.Paper != nil {
		b.Paper.Bind(ctx, seq.Deliver)
	}
}

// offerTrade feeds one trade to the paper exchange (when simulating) and then to the loop.
func (b *Bootstrap) offerTrade(ev *event.TradeEvent) bool {
	if b.Paper != nil {
		b.Paper.OnTrade(ev.Symbol, ev.Price)
	}
	return b.Sequencer.OfferTrade(ev)
}

// Run starts the loop, the streams and the ops server, and blocks until ctx ends.
func (b *Bootstrap) Run(ctx context.Context) error {
	cfg := b.Config
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start Sequencer in its own goroutine (The Hotpath Loop)
	go b.Sequencer.Run(ctx)
	slog.InfoContext(ctx, "✅ Sequencer (Hotpath) started")

	b.streams = map[string]domain.ExchangeWorker{
		"trades": binance.NewTradeStream(cfg.Exchange.WSURL, b.Market.Symbol, b.offerTrade, b.Metrics),
	}
	if b.Paper == nil {
		b.streams["account"] = binance.NewUserStream(cfg.Exchange.WSURL, b.REST, b.Sequencer.Deliver, b.Metrics)
	}
	for name, w := range b.streams {
		if err := w.Connect(ctx); err != nil {
			return fail(StageStreams, err)
		}
		slog.InfoContext(ctx, "✅ Stream started", slog.String("stream", name))
	}

	errCh := make(chan error, 1)
	if cfg.Server.Addr != "" {
		deps := service.Deps{
			Status:  b.Status,
			Metrics: b.Metrics.Handler(),
			Streams: b.streams,
		}
		if b.Journal != nil {
			deps.Journal = b.Journal
		}
		srv := service.NewServer(cfg.Server.Addr, service.NewRouter(deps), cfg.Server.AllowedOrigins)
		go func() { errCh <- srv.Run(ctx) }()
	}

	slog.InfoContext(ctx, "✨ Scalper fully operational. Press Ctrl+C to exit.")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	slog.Info("👋 Shutting down gracefully...")
	cancel()
	b.Shutdown()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// Shutdown stops the streams, waits for requests in flight and closes the journal.
func (b *Bootstrap) Shutdown() {
	for _, w := range b.streams {
		w.Disconnect()
	}
	if b.Dispatcher != nil {
		b.Dispatcher.Wait()
	}
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Error("Failed to close journal", slog.Any("error", err))
		}
	}
}

// Package execution sends orders to an exchange off the sequencer goroutine.
package execution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scalper_go/internal/domain"
	"scalper_go/internal/event"
)

// Trader is the order half of domain.Exchange.
type Trader interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (int64, error)
	CancelOrder(ctx context.Context, req domain.CancelRequest) error
}

// ErrorRecorder counts failed requests. Implemented by *infra.Metrics.
type ErrorRecorder interface {
	RecordError(op string)
}

// Deliver hands an event back to the sequencer inbox.
type Deliver func(ctx context.Context, ev event.Event) error

// Dispatcher runs each request on its own goroutine with a timeout.
// Outcomes are not awaited: failures come back as event.RequestFailedEvent.
type Dispatcher struct {
	ctx     context.Context
	trader  Trader
	deliver Deliver
	journal domain.Journal
	errs    ErrorRecorder
	timeout time.Duration
	sem     chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	Timeout     time.Duration // per request, default 10s
	MaxInFlight int           // default 8
	Journal     domain.Journal
	Errors      ErrorRecorder
}

// NewDispatcher creates a dispatcher bound to ctx; requests in flight are abandoned when ctx ends.
func NewDispatcher(ctx context.Context, trader Trader, deliver Deliver, cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	d := &Dispatcher{
		ctx:     ctx,
		trader:  trader,
		deliver: deliver,
		journal: cfg.Journal,
		errs:    cfg.Errors,
		timeout: cfg.Timeout,
		sem:     make(chan struct{}, cfg.MaxInFlight),
		logger:  slog.Default().With("module", "dispatcher"),
	}
	return d
}

// Submit places an order asynchronously.
func (d *Dispatcher) Submit(req domain.OrderRequest) {
	kind := domain.JournalSubmit
	if req.Liquidation {
		kind = domain.JournalLiquidation
	}
	d.record(domain.JournalEntry{
		Kind:          kind,
		Symbol:        req.Symbol,
		ClientOrderID: req.ClientOrderID,
		Side:          string(req.Side),
		Price:         req.Price.StringFixed(req.PriceDigits),
		Quantity:      req.Quantity.StringFixed(req.QtyDigits),
	})

	d.run(func(ctx context.Context) {
		id, err := d.trader.SubmitOrder(ctx, req)
		if err != nil {
			d.fail(&event.RequestFailedEvent{
				Op:            event.OpSubmit,
				ClientOrderID: req.ClientOrderID,
				Side:          req.Side,
				Liquidation:   req.Liquidation,
				Err:           err,
			}, "price", req.Price, "qty", req.Quantity)
			return
		}
		d.logger.Debug("order accepted", "client_id", req.ClientOrderID, "order_id", id)
	})
}

// Cancel cancels an order asynchronously.
func (d *Dispatcher) Cancel(req domain.CancelRequest) {
	d.record(domain.JournalEntry{
		Kind:          domain.JournalCancel,
		Symbol:        req.Symbol,
		ClientOrderID: req.OrigClientOrderID,
		OrderID:       req.OrderID,
		Side:          string(req.Side),
	})

	d.run(func(ctx context.Context) {
		if err := d.trader.CancelOrder(ctx, req); err != nil {
			d.fail(&event.RequestFailedEvent{
				Op:            event.OpCancel,
				ClientOrderID: req.OrigClientOrderID,
				OrderID:       req.OrderID,
				Side:          req.Side,
				Err:           err,
			})
		}
	})
}

// Wait blocks until every request issued so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			return
		}
		defer func() { <-d.sem }()

		ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (d *Dispatcher) fail(ev *event.RequestFailedEvent, attrs ...any) {
	ev.Ts = time.Now().UnixMilli()
	args := append([]any{
		"op", ev.Op,
		"client_id", ev.ClientOrderID,
		"order_id", ev.OrderID,
		"side", ev.Side,
		"liquidation", ev.Liquidation,
		"retriable", domain.IsRetriable(ev.Err),
		"error", ev.Err,
	}, attrs...)
	d.logger.Error("request failed", args...)

	if d.errs != nil {
		d.errs.RecordError(ev.Op)
	}
	d.record(domain.JournalEntry{
		Kind:          domain.JournalFailure,
		ClientOrderID: ev.ClientOrderID,
		OrderID:       ev.OrderID,
		Side:          string(ev.Side),
		Status:        ev.Op,
		Detail:        ev.Err.Error(),
	})

	if d.deliver != nil {
		if err := d.deliver(d.ctx, ev); err != nil {
			d.logger.Warn("failure not delivered", "client_id", ev.ClientOrderID, "error", err)
		}
	}
}

func (d *Dispatcher) record(e domain.JournalEntry) {
	if d.journal == nil {
		return
	}
	e.CreatedAt = time.Now()
	d.journal.Record(e)
}

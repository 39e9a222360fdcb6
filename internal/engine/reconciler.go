package engine

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"scalper_go/internal/domain"
	"scalper_go/internal/event"
	"scalper_go/internal/pricing"
	"scalper_go/internal/strategy"

	"github.com/shopspring/decimal"
)

// Executor issues outbound requests without waiting for them.
// Failures come back later as event.RequestFailedEvent.
type Executor interface {
	Submit(req domain.OrderRequest)
	Cancel(req domain.CancelRequest)
}

// Reconciler owns the local order mirror. Not safe for concurrent use:
// only the sequencer goroutine calls it.
type Reconciler struct {
	market  *domain.Market
	calc    *pricing.Calculator
	ids     *domain.IDGenerator
	exec    Executor
	obs     Observer
	journal domain.Journal
	logger  *slog.Logger

	orders     map[string]*domain.Order   // tracked entry orders by client id
	exits      map[string]domain.ExitPlan // take-profit per entry client id
	liquidated map[string]struct{}        // entries whose exit was already sent

	maxRoundTrips int
	roundTrips    int
	now           func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

func WithObserver(o Observer) ReconcilerOption {
	return func(r *Reconciler) {
		if o != nil {
			r.obs = o
		}
	}
}

func WithJournal(j domain.Journal) ReconcilerOption {
	return func(r *Reconciler) {
		if j != nil {
			r.journal = j
		}
	}
}

// WithMaxRoundTrips stops new entries after n liquidations. Zero is unlimited.
func WithMaxRoundTrips(n int) ReconcilerOption {
	return func(r *Reconciler) { r.maxRoundTrips = n }
}

func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates an empty mirror for the market.
func NewReconciler(calc *pricing.Calculator, ids *domain.IDGenerator, exec Executor, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		market:  calc.Market(),
		calc:    calc,
		ids:     ids,
		exec:    exec,
		obs:     nopObserver{},
		journal: nopJournal{},
		logger:  slog.Default().With("module", "reconciler"),
		orders:     make(map[string]*domain.Order),
		exits:      make(map[string]domain.ExitPlan),
		liquidated: make(map[string]struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed loads the open orders found at boot. Only tagged NEW or PARTIALLY_FILLED
// orders are tracked; their exit plan is decoded from the client id.
func (r *Reconciler) Seed(orders []domain.Order) {
	for _, o := range orders {
		if !o.Status.IsLive() || !domain.IsTagged(o.ClientOrderID) {
			continue
		}
		side, plan, err := domain.DecodeEntryID(o.ClientOrderID)
		switch {
		case err == nil:
			r.exits[o.ClientOrderID] = plan
		case errors.Is(err, domain.ErrNoEncodedExit):
			r.logger.Warn("open order without exit plan, will be replaced", "client_id", o.ClientOrderID)
		default:
			continue
		}
		if o.Side == "" {
			o.Side = side
		}
		o.State = domain.StateOpen
		order := o
		r.orders[o.ClientOrderID] = &order
	}
	r.obs.OpenOrders(r.openCount())
	r.logger.Info("seeded open orders", "tracked", len(r.orders))
}

// Evaluate reconciles the mirror with the orders the channel asks for.
// Running it twice without new events issues nothing the second time.
func (r *Reconciler) Evaluate(res strategy.Result) {
	desired := map[domain.Side]*pricing.Quote{}
	if res.EnterBuy && res.Buy.Ready() {
		q := res.Buy
		desired[domain.SideBuy] = &q
	}
	if res.EnterSell && res.Sell.Ready() {
		q := res.Sell
		desired[domain.SideSell] = &q
	}

	reused := map[domain.Side]bool{}
	for _, o := range r.Open() {
		want := desired[o.Side]
		if want != nil && !reused[o.Side] && r.matches(o, want) {
			reused[o.Side] = true
			continue
		}
		r.cancel(r.orders[o.ClientOrderID])
	}

	if r.capReached() {
		return
	}
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		want := desired[side]
		if want == nil || reused[side] || !r.submittable(want, res.Tick) {
			continue
		}
		r.submit(want)
	}
}

func (r *Reconciler) matches(o domain.Order, want *pricing.Quote) bool {
	plan, ok := r.exits[o.ClientOrderID]
	return ok && o.Price.Equal(want.Price) && plan.Price.Equal(want.Exit.Price)
}

// submittable: positive quantity, price at or above the exchange minimum, strictly off-market.
func (r *Reconciler) submittable(q *pricing.Quote, tick decimal.Decimal) bool {
	if !q.Quantity.IsPositive() || q.Price.LessThan(r.market.MinPrice()) {
		return false
	}
	if q.Side == domain.SideBuy {
		return q.Price.LessThan(tick)
	}
	return q.Price.GreaterThan(tick)
}

func (r *Reconciler) capReached() bool {
	return r.maxRoundTrips > 0 && r.roundTrips >= r.maxRoundTrips
}

func (r *Reconciler) submit(q *pricing.Quote) {
	id := r.ids.EntryID(q.Side, q.Exit)
	r.orders[id] = &domain.Order{
		ClientOrderID: id,
		Side:          q.Side,
		Price:         q.Price,
		Quantity:      q.Quantity,
		Status:        domain.OrderStatusNew,
		State:         domain.StateOpen,
		CreatedAt:     r.now(),
	}
	r.exits[id] = q.Exit

	r.logger.Info("submit entry",
		"client_id", id,
		"side", q.Side,
		"price", q.Price,
		"qty", q.Quantity,
		"exit_price", q.Exit.Price,
		"exit_qty", q.Exit.Quantity,
	)
	r.exec.Submit(domain.OrderRequest{
		ClientOrderID: id,
		Symbol:        r.market.Symbol,
		Side:          q.Side,
		Quantity:      q.Quantity,
		Price:         q.Price,
		QtyDigits:     r.market.StepDigits(),
		PriceDigits:   r.market.TickDigits(),
	})
	r.obs.OrderSubmitted(q.Side, false)
	r.obs.OpenOrders(r.openCount())
}

// cancel marks the order CancelPending before the request leaves.
func (r *Reconciler) cancel(o *domain.Order) {
	if o == nil || o.State != domain.StateOpen {
		return
	}
	o.State = domain.StateCancelPending
	r.logger.Info("cancel entry", "client_id", o.ClientOrderID, "order_id", o.OrderID, "side", o.Side, "price", o.Price)
	r.exec.Cancel(domain.CancelRequest{
		Symbol:            r.market.Symbol,
		OrderID:           o.OrderID,
		OrigClientOrderID: o.ClientOrderID,
		Side:              o.Side,
	})
	r.obs.OrderCanceled(o.Side)
	r.obs.OpenOrders(r.openCount())
}

// OnExecutionReport applies an exchange order update.
func (r *Reconciler) OnExecutionReport(rep domain.ExecutionReport) {
	if rep.Symbol != r.market.Symbol {
		return
	}
	id := domain.ResolveClientID(rep.ClientOrderID, rep.OrigClientOrderID)
	if !domain.IsTagged(id) {
		r.logger.Debug("ignoring untagged order", "client_id", id, "status", rep.Status)
		return
	}

	if rep.Status == domain.OrderStatusFilled {
		if _, done := r.liquidated[id]; done {
			r.logger.Debug("duplicate fill ignored", "client_id", id, "order_id", rep.OrderID)
			return
		}
		r.obs.OrderFilled(rep.Side)
		r.journal.Record(domain.JournalEntry{
			Kind:          domain.JournalFill,
			Symbol:        rep.Symbol,
			ClientOrderID: id,
			OrderID:       rep.OrderID,
			Side:          string(rep.Side),
			Price:         rep.Price.String(),
			Quantity:      rep.FilledQuantity.String(),
			Status:        string(rep.Status),
			CreatedAt:     r.now(),
		})
		r.liquidate(id, rep.Side)
	}

	o, tracked := r.orders[id]
	switch rep.Status {
	case domain.OrderStatusNew, domain.OrderStatusPartiallyFilled:
		if _, done := r.liquidated[id]; done && !tracked {
			break
		}
		if !tracked {
			o = &domain.Order{ClientOrderID: id, State: domain.StateOpen, CreatedAt: r.now()}
			r.orders[id] = o
			if _, ok := r.exits[id]; !ok {
				if _, plan, err := domain.DecodeEntryID(id); err == nil {
					r.exits[id] = plan
				}
			}
		}
		o.OrderID = rep.OrderID
		o.Side = rep.Side
		if !rep.Price.IsZero() {
			o.Price = rep.Price
		}
		o.StopPrice = rep.StopPrice
		o.Status = rep.Status
		if !rep.Quantity.IsZero() {
			o.Quantity = rep.Quantity
		}
		if rep.FilledQuantity.GreaterThan(o.Filled) {
			o.Filled = rep.FilledQuantity
		}
	default:
		if !tracked {
			break
		}
		// The take-profit covers the whole entry, so a partial that ends
		// without FILLED leaves its filled part unhedged.
		if rep.Status != domain.OrderStatusFilled && o.Filled.IsPositive() {
			r.logger.Warn("partially filled entry closed without exit",
				"client_id", id,
				"order_id", o.OrderID,
				"side", o.Side,
				"filled", o.Filled,
				"status", rep.Status,
			)
		}
		o.Status = rep.Status
		o.State = domain.StateClosed
		delete(r.orders, id)
	}

	if rep.Status.IsTerminal() {
		delete(r.exits, id)
	}
	r.obs.OpenOrders(r.openCount())
}

// liquidate submits the take-profit of a filled entry on the opposite side.
func (r *Reconciler) liquidate(id string, side domain.Side) {
	plan, ok := r.exits[id]
	if !ok {
		var err error
		if _, plan, err = domain.DecodeEntryID(id); err != nil {
			r.logger.Warn("filled order has no exit plan", "client_id", id, "error", err)
			return
		}
	}

	qty := r.calc.FormatQuantity(plan.Quantity, plan.Price)
	if qty.IsZero() {
		r.logger.Warn("exit quantity not tradeable", "client_id", id, "qty", plan.Quantity, "price", plan.Price)
		return
	}

	r.liquidated[id] = struct{}{}
	r.roundTrips++
	exitSide := side.Opposite()
	exitID := domain.NewExitID()
	r.logger.Info("liquidate",
		"entry_client_id", id,
		"client_id", exitID,
		"side", exitSide,
		"price", plan.Price,
		"qty", qty,
		"round_trips", r.roundTrips,
	)
	r.exec.Submit(domain.OrderRequest{
		ClientOrderID: exitID,
		Symbol:        r.market.Symbol,
		Side:          exitSide,
		Quantity:      qty,
		Price:         plan.Price,
		QtyDigits:     r.market.StepDigits(),
		PriceDigits:   r.market.TickDigits(),
		Liquidation:   true,
	})
	r.obs.OrderSubmitted(exitSide, true)
}

// OnRequestFailed rolls back the optimistic transition of a failed request.
func (r *Reconciler) OnRequestFailed(ev *event.RequestFailedEvent) {
	if ev.Liquidation {
		return
	}
	o, ok := r.orders[ev.ClientOrderID]
	if !ok {
		return
	}
	switch ev.Op {
	case event.OpSubmit:
		if o.OrderID == 0 {
			delete(r.orders, ev.ClientOrderID)
			delete(r.exits, ev.ClientOrderID)
		}
	case event.OpCancel:
		if o.State == domain.StateCancelPending {
			o.State = domain.StateOpen
		}
	}
	r.obs.OpenOrders(r.openCount())
}

// Open returns the orders eligible for reuse, oldest first.
func (r *Reconciler) Open() []domain.Order {
	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if o.IsOpen() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ClientOrderID < out[j].ClientOrderID
	})
	return out
}

// Orders returns every tracked order, including CancelPending ones.
func (r *Reconciler) Orders() []domain.Order {
	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientOrderID < out[j].ClientOrderID })
	return out
}

// ExitPlan returns the take-profit recorded for an entry.
func (r *Reconciler) ExitPlan(clientID string) (domain.ExitPlan, bool) {
	p, ok := r.exits[clientID]
	return p, ok
}

// RoundTrips is the number of liquidations submitted so far.
func (r *Reconciler) RoundTrips() int { return r.roundTrips }

func (r *Reconciler) openCount() int {
	n := 0
	for _, o := range r.orders {
		if o.IsOpen() {
			n++
		}
	}
	return n
}

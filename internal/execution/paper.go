package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"scalper_go/internal/domain"
	"scalper_go/internal/event"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Exchange reject codes mirrored by the paper exchange.
const (
	codeInsufficientBalance = -2010
	codeUnknownOrder        = -2011
)

// RulesSource loads trading rules without touching the account. Implemented by *binance.Client.
type RulesSource interface {
	LoadRules(ctx context.Context, base, quote string) (*domain.Market, error)
}

type paperOrder struct {
	domain.Order
	symbol string
}

// PaperExecution is an in-memory exchange for dry runs. Rules come from the
// real exchange, balances and fees from config. Resting limit orders fill
// when a trade crosses their price; every change is reported the way the
// account stream would report it.
type PaperExecution struct {
	rules    RulesSource
	fees     domain.FeeSchedule
	balances *domain.BalanceBook

	mu     sync.Mutex
	emitMu sync.Mutex // keeps events in the order they were produced
	market *domain.Market
	orders map[int64]*paperOrder
	nextID int64
	fills  []domain.ExecutionReport

	ctx     context.Context
	deliver Deliver
	logger  *slog.Logger
}

// NewPaperExecution creates a paper exchange charging fees (percent) on fills.
func NewPaperExecution(rules RulesSource, fees domain.FeeSchedule) *PaperExecution {
	return &PaperExecution{
		rules:    rules,
		fees:     fees,
		balances: domain.NewBalanceBook(),
		orders:   make(map[int64]*paperOrder),
		nextID:   1,
		ctx:      context.Background(),
		logger:   slog.Default().With("module", "paper"),
	}
}

// Bind sets where account events go. Events produced before Bind are discarded.
func (p *PaperExecution) Bind(ctx context.Context, deliver Deliver) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.ctx = ctx
	p.deliver = deliver
}

// Deposit credits free balance.
func (p *PaperExecution) Deposit(asset string, amount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances.Apply(asset, amount, time.Now())
}

// GetBalance returns one asset's balance.
func (p *PaperExecution) GetBalance(asset string) domain.Balance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances.Get(asset)
}

// GetFills returns every simulated fill so far.
func (p *PaperExecution) GetFills() []domain.ExecutionReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ExecutionReport, len(p.fills))
	copy(out, p.fills)
	return out
}

// LoadMarket takes the rules from the real exchange and the configured fees.
func (p *PaperExecution) LoadMarket(ctx context.Context, base, quote string) (*domain.Market, error) {
	m, err := p.rules.LoadRules(ctx, base, quote)
	if err != nil {
		return nil, err
	}
	m.Fees = p.fees

	p.mu.Lock()
	p.market = m
	p.mu.Unlock()
	return m, nil
}

// Balances returns the simulated balances, sorted by asset.
func (p *PaperExecution) Balances(_ context.Context) ([]domain.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.balances.Snapshot()
	out := make([]domain.Balance, 0, len(snap))
	for _, b := range snap {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// OpenOrders returns the resting orders of symbol, oldest first.
func (p *PaperExecution) OpenOrders(_ context.Context, symbol string) ([]domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Order
	for _, id := range p.sortedIDs() {
		if o := p.orders[id]; o.symbol == symbol {
			out = append(out, o.Order)
		}
	}
	return out, nil
}

// SubmitOrder rests a limit order and locks its funds.
func (p *PaperExecution) SubmitOrder(_ context.Context, req domain.OrderRequest) (int64, error) {
	p.mu.Lock()

	m := p.market
	if m == nil || req.Symbol != m.Symbol {
		p.mu.Unlock()
		return 0, &domain.ExchangeError{Op: "submit", Code: -1121, Message: "Invalid symbol."}
	}
	if !req.Quantity.IsPositive() || !req.Price.IsPositive() {
		p.mu.Unlock()
		return 0, &domain.ExchangeError{Op: "submit", Code: -1013, Message: "Invalid quantity or price."}
	}
	for _, o := range p.orders {
		if o.ClientOrderID == req.ClientOrderID {
			p.mu.Unlock()
			return 0, &domain.ExchangeError{Op: "submit", Code: -2010, Message: "Duplicate order sent."}
		}
	}

	asset, amount := m.Quote.Name, req.Quantity.Mul(req.Price)
	if req.Side == domain.SideSell {
		asset, amount = m.Base.Name, req.Quantity
	}
	now := time.Now()
	if err := p.lock(asset, amount, now); err != nil {
		p.mu.Unlock()
		return 0, &domain.ExchangeError{Op: "submit", Code: codeInsufficientBalance, Message: err.Error()}
	}

	id := p.nextID
	p.nextID++
	o := &paperOrder{
		Order: domain.Order{
			OrderID:       id,
			ClientOrderID: req.ClientOrderID,
			Side:          req.Side,
			Price:         req.Price,
			StopPrice:     req.StopPrice,
			Quantity:      req.Quantity,
			Status:        domain.OrderStatusNew,
			State:         domain.StateOpen,
			CreatedAt:     now,
		},
		symbol: req.Symbol,
	}
	p.orders[id] = o

	events := []event.Event{
		p.report(o, domain.OrderStatusNew, req.ClientOrderID, "", decimal.Zero, now),
		p.position(now, asset),
	}
	p.emit(events)
	return id, nil
}

// CancelOrder removes a resting order by exchange id, else by client id, and releases its funds.
func (p *PaperExecution) CancelOrder(_ context.Context, req domain.CancelRequest) error {
	p.mu.Lock()

	var o *paperOrder
	if req.OrderID > 0 {
		o = p.orders[req.OrderID]
	} else {
		for _, cand := range p.orders {
			if cand.ClientOrderID == req.OrigClientOrderID {
				o = cand
				break
			}
		}
	}
	if o == nil || o.symbol != req.Symbol {
		p.mu.Unlock()
		return &domain.ExchangeError{Op: "cancel", Code: codeUnknownOrder, Message: "Unknown order sent."}
	}
	delete(p.orders, o.OrderID)

	asset, amount := p.market.Quote.Name, o.Quantity.Mul(o.Price)
	if o.Side == domain.SideSell {
		asset, amount = p.market.Base.Name, o.Quantity
	}
	now := time.Now()
	p.unlock(asset, amount, now)

	// Cancels carry a fresh client id; the order's own id moves to the original id field.
	cancelID := "paper_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	p.emit([]event.Event{
		p.report(o, domain.OrderStatusCanceled, cancelID, o.ClientOrderID, decimal.Zero, now),
		p.position(now, asset),
	})
	return nil
}

// OnTrade fills every resting order the trade price crossed. Fills happen at the limit price.
func (p *PaperExecution) OnTrade(symbol string, price decimal.Decimal) int {
	p.mu.Lock()

	if p.market == nil || symbol != p.market.Symbol {
		p.mu.Unlock()
		return 0
	}
	m := p.market
	keep := p.fees.MakerFactor()
	now := time.Now()

	var events []event.Event
	for _, id := range p.sortedIDs() {
		o := p.orders[id]
		crossed := (o.Side == domain.SideBuy && price.LessThan(o.Price)) ||
			(o.Side == domain.SideSell && price.GreaterThan(o.Price))
		if !crossed {
			continue
		}
		delete(p.orders, id)

		notional := o.Quantity.Mul(o.Price)
		if o.Side == domain.SideBuy {
			p.settle(m.Quote.Name, notional, m.Base.Name, o.Quantity.Mul(keep), now)
		} else {
			p.settle(m.Base.Name, o.Quantity, m.Quote.Name, notional.Mul(keep), now)
		}

		r := p.report(o, domain.OrderStatusFilled, o.ClientOrderID, "", o.Quantity, now)
		p.fills = append(p.fills, r.Report)
		events = append(events, r, p.position(now, m.Base.Name, m.Quote.Name))
		p.logger.Info("Paper fill", "client_id", o.ClientOrderID, "side", o.Side, "price", o.Price, "qty", o.Quantity)
	}

	p.emit(events)
	return len(events) / 2
}

// lock moves amount of asset from free to locked. Caller holds p.mu.
func (p *PaperExecution) lock(asset string, amount decimal.Decimal, at time.Time) error {
	b := p.balances.Get(asset)
	if b.Free.LessThan(amount) {
		return fmt.Errorf("insufficient %s: need %s, free %s", asset, amount, b.Free)
	}
	return p.balances.Set(asset, b.Free.Sub(amount), b.Locked.Add(amount), at)
}

func (p *PaperExecution) unlock(asset string, amount decimal.Decimal, at time.Time) {
	b := p.balances.Get(asset)
	if err := p.balances.Set(asset, b.Free.Add(amount), b.Locked.Sub(amount), at); err != nil {
		p.logger.Error("Paper unlock broke balance", "asset", asset, "error", err)
	}
}

// settle spends locked paid and credits received to free.
func (p *PaperExecution) settle(paidAsset string, paid decimal.Decimal, gotAsset string, got decimal.Decimal, at time.Time) {
	b := p.balances.Get(paidAsset)
	if err := p.balances.Set(paidAsset, b.Free, b.Locked.Sub(paid), at); err != nil {
		p.logger.Error("Paper settle broke balance", "asset", paidAsset, "error", err)
	}
	if err := p.balances.Apply(gotAsset, got, at); err != nil {
		p.logger.Error("Paper settle broke balance", "asset", gotAsset, "error", err)
	}
}

func (p *PaperExecution) report(o *paperOrder, status domain.OrderStatus, clientID, origID string, filled decimal.Decimal, at time.Time) *event.ExecutionReportEvent {
	return &event.ExecutionReportEvent{
		BaseEvent: event.BaseEvent{Ts: at.UnixMilli()},
		Report: domain.ExecutionReport{
			Symbol:            o.symbol,
			OrderID:           o.OrderID,
			ClientOrderID:     clientID,
			OrigClientOrderID: origID,
			Status:            status,
			ExecutionType:     executionType(status),
			OrderType:         domain.OrderTypeLimit,
			Side:              o.Side,
			Price:             o.Price,
			StopPrice:         o.StopPrice,
			Quantity:          o.Quantity,
			FilledQuantity:    filled,
		},
	}
}

func (p *PaperExecution) position(at time.Time, assets ...string) *event.BalanceEvent {
	ev := &event.BalanceEvent{BaseEvent: event.BaseEvent{Ts: at.UnixMilli()}}
	for _, a := range assets {
		ev.Balances = append(ev.Balances, p.balances.Get(a))
	}
	return ev
}

func executionType(s domain.OrderStatus) string {
	switch s {
	case domain.OrderStatusFilled, domain.OrderStatusPartiallyFilled:
		return "TRADE"
	default:
		return string(s)
	}
}

func (p *PaperExecution) sortedIDs() []int64 {
	ids := make([]int64, 0, len(p.orders))
	for id := range p.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// emit releases p.mu and delivers events. emitMu is taken first so that a
// later state change cannot overtake these events.
func (p *PaperExecution) emit(events []event.Event) {
	p.emitMu.Lock()
	p.mu.Unlock()
	defer p.emitMu.Unlock()

	if p.deliver == nil {
		return
	}
	for _, ev := range events {
		if err := p.deliver(p.ctx, ev); err != nil {
			p.logger.Warn("Paper event not delivered", "type", ev.GetType(), "error", err)
			return
		}
	}
}

// Package binance connects the bot to Binance spot: REST snapshots and orders
// through go-binance, market and account streams over websockets.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scalper_go/internal/domain"
	"scalper_go/internal/infra"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

// codeInvalidSymbol is returned by exchangeInfo for unlisted symbols.
const codeInvalidSymbol = -1121

// Client is the Binance spot REST client (Boundary Layer).
type Client struct {
	api        *binance.Client
	recvWindow int64
	logger     *slog.Logger
}

// NewClient creates a REST client for cfg.Exchange. Keys may be empty for public calls.
func NewClient(cfg *infra.Config) *Client {
	api := binance.NewClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	api.BaseURL = strings.TrimRight(cfg.Exchange.RestURL, "/")
	api.HTTPClient = &http.Client{
		Timeout: cfg.RequestTimeout(),
		Transport: &http.Transport{
			MaxIdleConns:    10,
			IdleConnTimeout: 30 * time.Second,
		},
	}
	return &Client{
		api:        api,
		recvWindow: cfg.Exchange.RecvWindow,
		logger:     slog.Default().With("module", "binance_client"),
	}
}

func (c *Client) signed() []binance.RequestOption {
	if c.recvWindow <= 0 {
		return nil
	}
	return []binance.RequestOption{binance.WithRecvWindow(c.recvWindow)}
}

// LoadRules fetches the trading rules of base+quote without fees. Public endpoint.
func (c *Client) LoadRules(ctx context.Context, base, quote string) (*domain.Market, error) {
	symbol := strings.ToUpper(base + quote)
	info, err := c.api.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol {
			return nil, fmt.Errorf("%s: %w", symbol, domain.ErrSymbolNotFound)
		}
		return nil, wrapError("exchange_info", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return ParseMarket(s)
		}
	}
	return nil, fmt.Errorf("%s: %w", symbol, domain.ErrSymbolNotFound)
}

// LoadMarket fetches the rules and the account's fee schedule for base+quote.
func (c *Client) LoadMarket(ctx context.Context, base, quote string) (*domain.Market, error) {
	m, err := c.LoadRules(ctx, base, quote)
	if err != nil {
		return nil, err
	}

	// Signed by the SDK; this service takes no request options, so no recvWindow.
	fees, err := c.api.NewTradeFeeService().Symbol(m.Symbol).Do(ctx)
	if err != nil {
		return nil, wrapError("trade_fee", err)
	}
	for _, f := range fees {
		if f.Symbol != m.Symbol {
			continue
		}
		if m.Fees.Maker, err = percentFromFraction(f.MakerCommission); err != nil {
			return nil, fmt.Errorf("trade_fee: maker commission %q: %w", f.MakerCommission, err)
		}
		if m.Fees.Taker, err = percentFromFraction(f.TakerCommission); err != nil {
			return nil, fmt.Errorf("trade_fee: taker commission %q: %w", f.TakerCommission, err)
		}
		c.logger.Info("Market loaded", "symbol", m.Symbol, "tick", m.TickSize(), "step", m.StepSize(),
			"min_notional", m.MinNotional, "maker_fee", m.Fees.Maker)
		return m, nil
	}
	return nil, fmt.Errorf("%s: no trade fee: %w", m.Symbol, domain.ErrSymbolNotFound)
}

// Balances returns every non-empty account balance.
func (c *Client) Balances(ctx context.Context) ([]domain.Balance, error) {
	acct, err := c.api.NewGetAccountService().Do(ctx, c.signed()...)
	if err != nil {
		return nil, wrapError("account", err)
	}
	now := time.Now()
	out := make([]domain.Balance, 0, len(acct.Balances))
	for _, b := range acct.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("account: %s free %q: %w", b.Asset, b.Free, err)
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, fmt.Errorf("account: %s locked %q: %w", b.Asset, b.Locked, err)
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		out = append(out, domain.Balance{Asset: b.Asset, Free: free, Locked: locked, UpdatedAt: now})
	}
	return out, nil
}

// OpenOrders returns the open orders of symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	orders, err := c.api.NewListOpenOrdersService().Symbol(symbol).Do(ctx, c.signed()...)
	if err != nil {
		return nil, wrapError("open_orders", err)
	}
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, domain.Order{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Side:          domain.Side(o.Side),
			Price:         parseOrZero(o.Price),
			StopPrice:     parseOrZero(o.StopPrice),
			Quantity:      parseOrZero(o.OrigQuantity),
			Status:        domain.OrderStatus(o.Status),
			State:         domain.StateOpen,
			CreatedAt:     time.UnixMilli(o.Time),
		})
	}
	return out, nil
}

// SubmitOrder places a GTC limit order and returns the exchange order id.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (int64, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(req.Quantity.StringFixed(req.QtyDigits)).
		Price(req.Price.StringFixed(req.PriceDigits)).
		NewClientOrderID(req.ClientOrderID).
		NewOrderRespType(binance.NewOrderRespTypeACK)
	if req.StopPrice.IsPositive() {
		svc = svc.StopPrice(req.StopPrice.StringFixed(req.PriceDigits))
	}

	resp, err := svc.Do(ctx, c.signed()...)
	if err != nil {
		return 0, wrapError("submit", err)
	}
	c.logger.Debug("Order submitted", "client_id", req.ClientOrderID, "order_id", resp.OrderID)
	return resp.OrderID, nil
}

// CancelOrder cancels by exchange id when known, else by client id.
func (c *Client) CancelOrder(ctx context.Context, req domain.CancelRequest) error {
	svc := c.api.NewCancelOrderService().Symbol(req.Symbol)
	if req.OrderID > 0 {
		svc = svc.OrderID(req.OrderID)
	}
	if req.OrigClientOrderID != "" {
		svc = svc.OrigClientOrderID(req.OrigClientOrderID)
	}
	if _, err := svc.Do(ctx, c.signed()...); err != nil {
		return wrapError("cancel", err)
	}
	return nil
}

// StartUserStream opens a listen key for the account stream.
func (c *Client) StartUserStream(ctx context.Context) (string, error) {
	key, err := c.api.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return "", wrapError("listen_key", err)
	}
	return key, nil
}

// KeepaliveUserStream extends the listen key by 60 minutes.
func (c *Client) KeepaliveUserStream(ctx context.Context, key string) error {
	if err := c.api.NewKeepaliveUserStreamService().ListenKey(key).Do(ctx); err != nil {
		return wrapError("listen_key_keepalive", err)
	}
	return nil
}

// CloseUserStream invalidates the listen key.
func (c *Client) CloseUserStream(ctx context.Context, key string) error {
	if err := c.api.NewCloseUserStreamService().ListenKey(key).Do(ctx); err != nil {
		return wrapError("listen_key_close", err)
	}
	return nil
}

// wrapError maps exchange rejections to ExchangeError and everything else to NetworkError.
func wrapError(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &domain.ExchangeError{Op: op, Code: apiErr.Code, Message: apiErr.Message}
	}
	if errors.Is(err, context.Canceled) {
		return domain.NewFatalNetworkError(op, err)
	}
	return domain.NewNetworkError(op, err)
}

func parseOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

package domain

import (
	"context"
)

// Exchange is the REST surface the bot needs: startup snapshots plus order placement.
type Exchange interface {
	LoadMarket(ctx context.Context, base, quote string) (*Market, error)
	Balances(ctx context.Context) ([]Balance, error)
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (int64, error)
	CancelOrder(ctx context.Context, req CancelRequest) error
}

// ExchangeWorker defines the interface for exchange WebSocket connectors
type ExchangeWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// Journal records order activity for later audit. Writes must not block the caller.
type Journal interface {
	Record(entry JournalEntry)
	Close() error
}

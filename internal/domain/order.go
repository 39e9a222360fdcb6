package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Letter is the one-character tag used inside client order ids.
func (s Side) Letter() string {
	if s == SideBuy {
		return "B"
	}
	return "S"
}

// OrderStatus is the exchange-reported order status.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusPendingCancel   OrderStatus = "PENDING_CANCEL"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further fills can happen for the order.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// IsLive reports whether the order rests on the book: NEW or PARTIALLY_FILLED.
func (s OrderStatus) IsLive() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

const (
	OrderTypeLimit = "LIMIT"
	TimeInForceGTC = "GTC"
)

// LocalState is the reconciler's own view of an order.
// CancelPending is set before the cancel request leaves, and is never exchange-confirmed.
type LocalState int

const (
	StateOpen LocalState = iota
	StateCancelPending
	StateClosed
)

func (s LocalState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateCancelPending:
		return "CANCEL_PENDING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Order is the local mirror of an entry order placed by this bot.
// OrderID is 0 until the exchange acknowledges the order.
type Order struct {
	OrderID       int64           `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Filled        decimal.Decimal `json:"filled"`
	Status        OrderStatus     `json:"status"`
	State         LocalState      `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsOpen checks if the order belongs to the open view used for reconciliation.
func (o *Order) IsOpen() bool {
	return o.State == StateOpen
}

// ExitPlan is the take-profit attached to an entry order.
type ExitPlan struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderRequest is a limit order to submit.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	StopPrice     decimal.Decimal // zero when unused
	QtyDigits     int32
	PriceDigits   int32
	Liquidation   bool
}

// CancelRequest cancels by exchange id, or by client id while the id is still unknown.
type CancelRequest struct {
	Symbol            string
	OrderID           int64
	OrigClientOrderID string
	Side              Side
}

// ExecutionReport is an order update from the account stream or the paper client.
type ExecutionReport struct {
	Symbol            string
	OrderID           int64
	ClientOrderID     string
	OrigClientOrderID string
	Status            OrderStatus
	ExecutionType     string
	OrderType         string
	Side              Side
	Price             decimal.Decimal
	StopPrice         decimal.Decimal
	Quantity          decimal.Decimal
	FilledQuantity    decimal.Decimal
}

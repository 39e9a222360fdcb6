package event

import (
	"scalper_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Type identifies an event for logging and metrics.
type Type string

const (
	TypeTrade           Type = "TRADE"
	TypeExecutionReport Type = "EXECUTION_REPORT"
	TypeBalance         Type = "BALANCE"
	TypeBalanceDelta    Type = "BALANCE_DELTA"
	TypeRequestFailed   Type = "REQUEST_FAILED"
)

// Event is anything delivered to the sequencer inbox.
type Event interface {
	GetType() Type
	GetTs() int64
}

// BaseEvent carries the producer timestamp (unix millis).
type BaseEvent struct {
	Ts int64 `json:"ts"`
}

func (b *BaseEvent) GetTs() int64 { return b.Ts }

// TradeEvent is one aggregated trade of the configured pair.
type TradeEvent struct {
	BaseEvent
	Symbol string
	Price  decimal.Decimal
}

func (e *TradeEvent) GetType() Type { return TypeTrade }

// ExecutionReportEvent is an order update from the account stream.
type ExecutionReportEvent struct {
	BaseEvent
	Report domain.ExecutionReport
}

func (e *ExecutionReportEvent) GetType() Type { return TypeExecutionReport }

// BalanceEvent carries absolute balances (outboundAccountPosition).
type BalanceEvent struct {
	BaseEvent
	Balances []domain.Balance
}

func (e *BalanceEvent) GetType() Type { return TypeBalance }

// BalanceDeltaEvent is a deposit or withdrawal (balanceUpdate).
type BalanceDeltaEvent struct {
	BaseEvent
	Asset string
	Delta decimal.Decimal
}

func (e *BalanceDeltaEvent) GetType() Type { return TypeBalanceDelta }

// Request operations reported in RequestFailedEvent.
const (
	OpSubmit = "submit"
	OpCancel = "cancel"
)

// RequestFailedEvent reports an outbound request that never reached the book.
type RequestFailedEvent struct {
	BaseEvent
	Op            string
	ClientOrderID string
	OrderID       int64
	Side          domain.Side
	Liquidation   bool
	Err           error
}

func (e *RequestFailedEvent) GetType() Type { return TypeRequestFailed }

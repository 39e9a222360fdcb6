package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"scalper_go/internal/domain"
	"scalper_go/internal/event"

	"github.com/shopspring/decimal"
)

// Stream payloads use single-letter keys that differ only by case ("c" and "C").
// encoding/json matches keys case-insensitively unless an exact field exists, so
// every struct below declares both letters of each pair it could receive.

const (
	eventAggTrade        = "aggTrade"
	eventAccountPosition = "outboundAccountPosition"
	eventBalanceUpdate   = "balanceUpdate"
	eventExecutionReport = "executionReport"
)

type envelope struct {
	Type string `json:"e"`
	Time int64  `json:"E"`
}

type aggTradeMsg struct {
	Type         string          `json:"e"`
	Time         int64           `json:"E"`
	Symbol       string          `json:"s"`
	AggID        int64           `json:"a"`
	Price        decimal.Decimal `json:"p"`
	Quantity     decimal.Decimal `json:"q"`
	FirstTradeID int64           `json:"f"`
	LastTradeID  int64           `json:"l"`
	TradeTime    int64           `json:"T"`
	BuyerMaker   bool            `json:"m"`
	Ignore       bool            `json:"M"`
}

type accountPositionMsg struct {
	Type       string `json:"e"`
	Time       int64  `json:"E"`
	LastUpdate int64  `json:"u"`
	Balances   []struct {
		Asset  string          `json:"a"`
		Free   decimal.Decimal `json:"f"`
		Locked decimal.Decimal `json:"l"`
	} `json:"B"`
}

type balanceUpdateMsg struct {
	Type      string          `json:"e"`
	Time      int64           `json:"E"`
	Asset     string          `json:"a"`
	Delta     decimal.Decimal `json:"d"`
	ClearTime int64           `json:"T"`
}

type executionReportMsg struct {
	Type              string          `json:"e"`
	Time              int64           `json:"E"`
	Symbol            string          `json:"s"`
	ClientOrderID     string          `json:"c"`
	Side              string          `json:"S"`
	OrderType         string          `json:"o"`
	TimeInForce       string          `json:"f"`
	Quantity          decimal.Decimal `json:"q"`
	Price             decimal.Decimal `json:"p"`
	StopPrice         decimal.Decimal `json:"P"`
	IcebergQuantity   decimal.Decimal `json:"F"`
	OrderListID       int64           `json:"g"`
	OrigClientOrderID string          `json:"C"`
	ExecutionType     string          `json:"x"`
	Status            string          `json:"X"`
	RejectReason      string          `json:"r"`
	OrderID           int64           `json:"i"`
	LastQuantity      decimal.Decimal `json:"l"`
	FilledQuantity    decimal.Decimal `json:"z"`
	LastPrice         decimal.Decimal `json:"L"`
	Commission        decimal.Decimal `json:"n"`
	CommissionAsset   *string         `json:"N"`
	TransactTime      int64           `json:"T"`
	TradeID           int64           `json:"t"`
	Ignore            int64           `json:"I"`
	OnBook            bool            `json:"w"`
	Maker             bool            `json:"m"`
	IgnoreFlag        bool            `json:"M"`
	CreatedAt         int64           `json:"O"`
	CumulativeQuote   decimal.Decimal `json:"Z"`
	LastQuote         decimal.Decimal `json:"Y"`
	QuoteOrderQty     decimal.Decimal `json:"Q"`
	WorkingTime       int64           `json:"W"`
	STPMode           string          `json:"V"`
	PreventedMatchID  int64           `json:"v"`
}

// decodeTrade parses an aggTrade payload. ok is false for other payloads.
func decodeTrade(msg []byte) (*event.TradeEvent, bool, error) {
	var m aggTradeMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, false, err
	}
	if m.Type != eventAggTrade {
		return nil, false, nil
	}
	ev := event.AcquireTradeEvent()
	ev.Ts = m.TradeTime
	ev.Symbol = m.Symbol
	ev.Price = m.Price
	return ev, true, nil
}

// decodeUserEvent parses an account stream payload. Unknown event types return nil, nil.
func decodeUserEvent(msg []byte) (event.Event, error) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case eventExecutionReport:
		var m executionReportMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", env.Type, err)
		}
		return &event.ExecutionReportEvent{
			BaseEvent: event.BaseEvent{Ts: m.Time},
			Report: domain.ExecutionReport{
				Symbol:            m.Symbol,
				OrderID:           m.OrderID,
				ClientOrderID:     m.ClientOrderID,
				OrigClientOrderID: m.OrigClientOrderID,
				Status:            domain.OrderStatus(m.Status),
				ExecutionType:     m.ExecutionType,
				OrderType:         m.OrderType,
				Side:              domain.Side(m.Side),
				Price:             m.Price,
				StopPrice:         m.StopPrice,
				Quantity:          m.Quantity,
				FilledQuantity:    m.FilledQuantity,
			},
		}, nil

	case eventAccountPosition:
		var m accountPositionMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", env.Type, err)
		}
		at := time.UnixMilli(m.Time)
		balances := make([]domain.Balance, 0, len(m.Balances))
		for _, b := range m.Balances {
			balances = append(balances, domain.Balance{Asset: b.Asset, Free: b.Free, Locked: b.Locked, UpdatedAt: at})
		}
		return &event.BalanceEvent{BaseEvent: event.BaseEvent{Ts: m.Time}, Balances: balances}, nil

	case eventBalanceUpdate:
		var m balanceUpdateMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", env.Type, err)
		}
		return &event.BalanceDeltaEvent{BaseEvent: event.BaseEvent{Ts: m.Time}, Asset: m.Asset, Delta: m.Delta}, nil
	}
	return nil, nil
}

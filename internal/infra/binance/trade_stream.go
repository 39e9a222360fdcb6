package binance

import (
	"context"
	"log/slog"
	"strings"

	"scalper_go/internal/event"
)

// TradeOffer receives decoded trades. It must not block; false means dropped.
type TradeOffer func(ev *event.TradeEvent) bool

// TradeStream follows <symbol>@aggTrade.
type TradeStream struct {
	*stream
	offer TradeOffer
}

// NewTradeStream creates a worker for symbol on the websocket base URL wsURL.
func NewTradeStream(wsURL, symbol string, offer TradeOffer, metrics StreamMetrics) *TradeStream {
	url := strings.TrimRight(wsURL, "/") + "/ws/" + strings.ToLower(symbol) + "@aggTrade"
	t := &TradeStream{offer: offer}
	t.stream = newStream("trades", func(context.Context) (string, error) { return url, nil }, t.handleMessage, metrics)
	return t
}

func (t *TradeStream) handleMessage(_ context.Context, msg []byte) {
	ev, ok, err := decodeTrade(msg)
	if err != nil {
		t.logger.Warn("Undecodable trade", slog.Any("error", err))
		return
	}
	if !ok {
		return
	}
	t.offer(ev)
}

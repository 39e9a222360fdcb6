package event

import (
	"sync"

	"github.com/shopspring/decimal"
)

// EventPool provides sync.Pool for high-frequency event allocation.
// Trades are the only hot-path event; account events are rare enough to allocate.
//
// Usage:
//
//	ev := AcquireTradeEvent()
//	ev.Symbol = "BTCUSDT"
//	// ... use event ...
//	ReleaseTradeEvent(ev)  // Return to pool after processing
var tradePool = sync.Pool{
	New: func() interface{} {
		return &TradeEvent{}
	},
}

// AcquireTradeEvent gets a TradeEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireTradeEvent() *TradeEvent {
	return tradePool.Get().(*TradeEvent)
}

// ReleaseTradeEvent returns a TradeEvent to the pool.
func ReleaseTradeEvent(ev *TradeEvent) {
	if ev == nil {
		return
	}
	ev.Ts = 0
	ev.Symbol = ""
	ev.Price = decimal.Zero

	tradePool.Put(ev)
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 256

	evs := make([]*TradeEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireTradeEvent())
	}
	for _, ev := range evs {
		ReleaseTradeEvent(ev)
	}
}

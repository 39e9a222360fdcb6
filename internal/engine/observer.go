package engine

import (
	"scalper_go/internal/domain"
	"scalper_go/internal/strategy"
)

// Observer receives engine counters. Implemented by *infra.Metrics.
type Observer interface {
	TickProcessed()
	TickDropped()
	ChannelEvaluated(res strategy.Result)
	OrderSubmitted(side domain.Side, liquidation bool)
	OrderCanceled(side domain.Side)
	OrderFilled(side domain.Side)
	OpenOrders(n int)
}

type nopObserver struct{}

func (nopObserver) TickProcessed()                   {}
func (nopObserver) TickDropped()                     {}
func (nopObserver) ChannelEvaluated(strategy.Result) {}
func (nopObserver) OrderSubmitted(domain.Side, bool) {}
func (nopObserver) OrderCanceled(domain.Side)        {}
func (nopObserver) OrderFilled(domain.Side)          {}
func (nopObserver) OpenOrders(int)                   {}

type nopJournal struct{}

func (nopJournal) Record(domain.JournalEntry) {}
func (nopJournal) Close() error               { return nil }

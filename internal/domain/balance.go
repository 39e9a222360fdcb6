package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the free and locked amount of one asset.
type Balance struct {
	Asset     string          `json:"asset"`
	Free      decimal.Decimal `json:"free"`
	Locked    decimal.Decimal `json:"locked"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Total returns free + locked.
func (b *Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// VerifyInvariant checks that balance amounts are non-negative.
func (b *Balance) VerifyInvariant() error {
	if b.Free.IsNegative() {
		return fmt.Errorf("BALANCE_INVARIANT_NEGATIVE_FREE: %s = %s", b.Asset, b.Free)
	}
	if b.Locked.IsNegative() {
		return fmt.Errorf("BALANCE_INVARIANT_NEGATIVE_LOCKED: %s = %s", b.Asset, b.Locked)
	}
	return nil
}

// Funds is the free balance of the two traded assets.
type Funds struct {
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// BalanceBook holds the latest known balances, keyed by asset.
type BalanceBook struct {
	balances map[string]*Balance
}

// NewBalanceBook creates a new balance book.
func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		balances: make(map[string]*Balance),
	}
}

// Set overwrites the balance of an asset. Account streams report absolute values.
func (bb *BalanceBook) Set(asset string, free, locked decimal.Decimal, at time.Time) error {
	b := &Balance{Asset: asset, Free: free, Locked: locked, UpdatedAt: at}
	if err := b.VerifyInvariant(); err != nil {
		return err
	}
	bb.balances[asset] = b
	return nil
}

// Apply adds a signed delta to the free balance (balanceUpdate events).
func (bb *BalanceBook) Apply(asset string, delta decimal.Decimal, at time.Time) error {
	cur := bb.Get(asset)
	return bb.Set(asset, cur.Free.Add(delta), cur.Locked, at)
}

// Get returns the balance for an asset, zero if unknown.
func (bb *BalanceBook) Get(asset string) Balance {
	if b, ok := bb.balances[asset]; ok {
		return *b
	}
	return Balance{Asset: asset}
}

// Free returns the free balance of an asset.
func (bb *BalanceBook) Free(asset string) decimal.Decimal {
	return bb.Get(asset).Free
}

// Funds returns the free balances of the pair.
func (bb *BalanceBook) Funds(base, quote string) Funds {
	return Funds{Base: bb.Free(base), Quote: bb.Free(quote)}
}

// Snapshot returns a copy of all balances (for state dump).
func (bb *BalanceBook) Snapshot() map[string]Balance {
	result := make(map[string]Balance, len(bb.balances))
	for k, v := range bb.balances {
		result[k] = *v
	}
	return result
}

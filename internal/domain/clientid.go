package domain

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// EntryIDPrefix marks entry orders placed by this bot.
	EntryIDPrefix = "scalp_"
	// ExitIDPrefix starts liquidation ids. Liquidations are not monitored.
	ExitIDPrefix = "sx"
	// MaxClientIDLength is Binance's limit for newClientOrderId.
	MaxClientIDLength = 36
)

// IsTagged reports whether the id belongs to a monitored entry order.
func IsTagged(id string) bool {
	return strings.HasPrefix(id, EntryIDPrefix)
}

// ResolveClientID picks the id an execution report refers to.
// Cancel reports carry a fresh id in c and the original in C.
func ResolveClientID(current, original string) string {
	if IsTagged(original) {
		return original
	}
	return current
}

func encodeNumber(v decimal.Decimal) string {
	return strings.ReplaceAll(v.String(), ".", "x")
}

func decodeNumber(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Replace(s, "x", ".", 1))
}

// EncodeEntryID builds scalp_<stamp><B|S>-<exit>-<qty>.
// When the encoded form is longer than MaxClientIDLength only the stamp and side are kept.
func EncodeEntryID(stamp string, side Side, exit ExitPlan) string {
	head := EntryIDPrefix + stamp + side.Letter()
	full := head + "-" + encodeNumber(exit.Price) + "-" + encodeNumber(exit.Quantity)
	if len(full) <= MaxClientIDLength {
		return full
	}
	return head
}

// DecodeEntryID recovers the side and exit plan of a tagged id.
func DecodeEntryID(id string) (Side, ExitPlan, error) {
	if !IsTagged(id) {
		return "", ExitPlan{}, ErrForeignOrder
	}
	parts := strings.Split(strings.TrimPrefix(id, EntryIDPrefix), "-")
	head := parts[0]
	if head == "" {
		return "", ExitPlan{}, ErrForeignOrder
	}
	var side Side
	switch head[len(head)-1] {
	case 'B':
		side = SideBuy
	case 'S':
		side = SideSell
	default:
		return "", ExitPlan{}, ErrForeignOrder
	}
	if len(parts) != 3 {
		return side, ExitPlan{}, ErrNoEncodedExit
	}
	price, err := decodeNumber(parts[1])
	if err != nil || !price.IsPositive() {
		return side, ExitPlan{}, ErrNoEncodedExit
	}
	qty, err := decodeNumber(parts[2])
	if err != nil || !qty.IsPositive() {
		return side, ExitPlan{}, ErrNoEncodedExit
	}
	return side, ExitPlan{Price: price, Quantity: qty}, nil
}

// NewExitID returns an untagged id for a liquidation order.
func NewExitID() string {
	return ExitIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IDGenerator produces short, unique, time-ordered stamps.
type IDGenerator struct {
	mu      sync.Mutex
	now     func() time.Time
	counter uint64
}

// NewIDGenerator uses time.Now when now is nil.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Stamp returns base36 milliseconds followed by one base36 counter digit.
func (g *IDGenerator) Stamp() string {
	g.mu.Lock()
	n := g.counter % 36
	g.counter++
	g.mu.Unlock()
	return strconv.FormatInt(g.now().UnixMilli(), 36) + strconv.FormatUint(n, 36)
}

// EntryID encodes a fresh entry id.
func (g *IDGenerator) EntryID(side Side, exit ExitPlan) string {
	return EncodeEntryID(g.Stamp(), side, exit)
}

package domain

import (
	"time"
)

// Journal entry kinds.
const (
	JournalSubmit      = "submit"
	JournalCancel      = "cancel"
	JournalFill        = "fill"
	JournalLiquidation = "liquidation"
	JournalFailure     = "failure"
)

// JournalEntry is one row of the execution journal.
type JournalEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Kind          string    `gorm:"index" json:"kind"`
	Symbol        string    `json:"symbol"`
	ClientOrderID string    `gorm:"index" json:"client_order_id"`
	OrderID       int64     `json:"order_id"`
	Side          string    `json:"side"`
	Price         string    `json:"price"`
	Quantity      string    `json:"quantity"`
	Status        string    `json:"status"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is a persisted account balance row, used by the simulated gateway.
type Balance struct {
	ID      uint            `gorm:"primaryKey"`
	Symbol  string          `gorm:"index;not null"`
	Balance decimal.Decimal `gorm:"type:decimal(20,8);not null"`

	LastUpdated time.Time `gorm:"index;not null"`
}

// AccountState is an explicit snapshot of the exchange account, passed by value
// into whichever component needs it. A zero MarginLevel means the exchange did
// not report one (no open margin borrowings).
type AccountState struct {
	Equity      float64
	MarginUsed  float64
	MarginLevel float64
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is the audit row written for every executed order. All monetary
// values use shopspring/decimal, never float64.
type TradeRecord struct {
	ID            uint            `gorm:"primaryKey"`
	Ticker        string          `gorm:"index;not null"`
	Side          string          `gorm:"not null"`
	Action        string          `gorm:"not null"`
	Volume        float64         `gorm:"type:decimal(20,8);not null"`
	Price         decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Cost          decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Fee           decimal.Decimal `gorm:"type:decimal(20,8)"`
	Pnl           decimal.Decimal `gorm:"type:decimal(20,8)"`
	TransactionID string          `gorm:"index;not null"`

	ExecutedAt time.Time `gorm:"index;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

const (
	TradeActionOpen  = "open"
	TradeActionClose = "close"
)

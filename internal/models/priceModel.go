package models

import (
	"time"
)

// Price is a snapshot of all quoted prices for one ticker at one instant.
// Rows are immutable once recorded.
type Price struct {
	ID        uint      `gorm:"primaryKey"`
	Ticker    string    `gorm:"index:idx_ticker_time;not null"`
	Ask       float64   `gorm:"type:decimal(20,8);not null"`
	Bid       float64   `gorm:"type:decimal(20,8);not null"`
	VWAP      float64   `gorm:"type:decimal(20,8);not null"`
	High      float64   `gorm:"type:decimal(20,8)"`
	Low       float64   `gorm:"type:decimal(20,8)"`
	Timestamp time.Time `gorm:"index:idx_ticker_time;not null"`
}

// TableName sets the table name for Price model
func (Price) TableName() string {
	return "prices"
}

// MidPrice is the representative price of a snapshot: the mean of ask and bid.
func (p Price) MidPrice() float64 {
	return (p.Ask + p.Bid) / 2
}

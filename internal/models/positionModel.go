package models

import "time"

// Position is an open trade. It is created when an entry order is confirmed by
// the exchange and deleted exactly once when the closing order is confirmed.
type Position struct {
	ID            uint    `gorm:"primaryKey"`
	Ticker        string  `gorm:"index;not null"`
	Side          string  `gorm:"not null"`
	Leverage      int     `gorm:"not null"`
	Volume        float64 `gorm:"type:decimal(20,8);not null"`
	EntryPrice    float64 `gorm:"type:decimal(20,8);not null"`
	TransactionID string  `gorm:"uniqueIndex;not null"`
	MeanReverted  bool    `gorm:"not null;default:false"`

	OpenTime  time.Time `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

// ClosingSide returns the order side that exits this position.
func (p *Position) ClosingSide() string {
	if p.Side == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

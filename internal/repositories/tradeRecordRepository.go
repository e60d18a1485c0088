package repositories

import (
	"errors"
	"time"

	"CryptoSignalBot/internal/models"

	"gorm.io/gorm"
)

// TradeRecordRepository persists the audit trail of executed orders.
type TradeRecordRepository struct {
	db *gorm.DB
}

// NewTradeRecordRepository creates a new instance of TradeRecordRepository
func NewTradeRecordRepository(db *gorm.DB) *TradeRecordRepository {
	return &TradeRecordRepository{db: db}
}

// Record adds a new TradeRecord to the database
func (r *TradeRecordRepository) Record(record *models.TradeRecord) error {
	if record == nil {
		return errors.New("trade record cannot be nil")
	}
	return r.db.Create(record).Error
}

// FindSince retrieves all trade records executed at or after the given time
func (r *TradeRecordRepository) FindSince(since time.Time) ([]models.TradeRecord, error) {
	var records []models.TradeRecord
	err := r.db.Where("executed_at >= ?", since).
		Order("executed_at ASC").
		Find(&records).Error
	return records, err
}

// FindByTicker retrieves all trade records for a ticker
func (r *TradeRecordRepository) FindByTicker(ticker string) ([]models.TradeRecord, error) {
	if ticker == "" {
		return nil, errors.New("invalid ticker")
	}
	var records []models.TradeRecord
	err := r.db.Where("ticker = ?", ticker).
		Order("executed_at ASC").
		Find(&records).Error
	return records, err
}

package repositories

import (
	"errors"
	"time"

	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/services/analysis"

	"gorm.io/gorm"
)

// PriceRepository is the durable price history store.
type PriceRepository struct {
	db *gorm.DB
}

// NewPriceRepository creates a new instance of PriceRepository
func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// Create adds a new Price record to the database
func (r *PriceRepository) Create(price *models.Price) error {
	if price == nil {
		return errors.New("price cannot be nil")
	}
	return r.db.Create(price).Error
}

// GetPriceHistory gets price history for a ticker since the given time,
// ascending by timestamp. Returns analysis.ErrEmptyHistory when no data
// exists in range; callers treat that as skip-this-asset-this-cycle.
func (r *PriceRepository) GetPriceHistory(ticker string, since time.Time) ([]models.Price, error) {
	if ticker == "" {
		return nil, errors.New("invalid ticker")
	}
	var prices []models.Price
	err := r.db.Where("ticker = ? AND timestamp >= ?", ticker, since).
		Order("timestamp ASC").
		Find(&prices).Error
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, analysis.ErrEmptyHistory
	}
	return prices, nil
}

// GetLatestPrice gets the most recent price snapshot for a ticker
func (r *PriceRepository) GetLatestPrice(ticker string) (*models.Price, error) {
	if ticker == "" {
		return nil, errors.New("invalid ticker")
	}
	var price models.Price
	err := r.db.Where("ticker = ?", ticker).
		Order("timestamp DESC").
		First(&price).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &price, err
}

// HasSnapshotSince reports whether a snapshot already exists for the ticker
// at or after the given time
func (r *PriceRepository) HasSnapshotSince(ticker string, since time.Time) (bool, error) {
	if ticker == "" {
		return false, errors.New("invalid ticker")
	}
	var count int64
	err := r.db.Model(&models.Price{}).
		Where("ticker = ? AND timestamp >= ?", ticker, since).
		Count(&count).Error
	return count > 0, err
}

// PruneBefore deletes snapshots older than the cutoff
func (r *PriceRepository) PruneBefore(cutoff time.Time) error {
	return r.db.Where("timestamp < ?", cutoff).Delete(&models.Price{}).Error
}

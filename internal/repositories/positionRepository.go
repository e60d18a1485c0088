package repositories

import (
	"errors"

	"CryptoSignalBot/internal/models"

	"gorm.io/gorm"
)

// PositionRepository is the durable position ledger. All mutations are
// single-record, keyed by transaction ID; concurrency control is enforced by
// the scheduler never overlapping cycles.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new instance of PositionRepository
func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Insert adds a new Position record to the database
func (r *PositionRepository) Insert(position *models.Position) error {
	if position == nil {
		return errors.New("position cannot be nil")
	}
	if position.TransactionID == "" {
		return errors.New("position transaction id is required")
	}
	return r.db.Create(position).Error
}

// Delete removes the Position with the given transaction ID
func (r *PositionRepository) Delete(transactionID string) error {
	if transactionID == "" {
		return errors.New("invalid transaction id")
	}
	return r.db.Where("transaction_id = ?", transactionID).
		Delete(&models.Position{}).Error
}

// FindByTransactionID retrieves a Position record by its transaction ID
func (r *PositionRepository) FindByTransactionID(transactionID string) (*models.Position, error) {
	if transactionID == "" {
		return nil, errors.New("invalid transaction id")
	}
	var position models.Position
	err := r.db.Where("transaction_id = ?", transactionID).First(&position).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &position, err
}

// SetMeanReverted flips the mean-reverted flag on a Position
func (r *PositionRepository) SetMeanReverted(transactionID string, reverted bool) error {
	if transactionID == "" {
		return errors.New("invalid transaction id")
	}
	return r.db.Model(&models.Position{}).
		Where("transaction_id = ?", transactionID).
		Update("mean_reverted", reverted).Error
}

// FindAll retrieves all Position records
func (r *PositionRepository) FindAll() ([]models.Position, error) {
	var positions []models.Position
	err := r.db.Find(&positions).Error
	return positions, err
}

// FindOpenPositions retrieves all open Position records
func (r *PositionRepository) FindOpenPositions() ([]models.Position, error) {
	var positions []models.Position
	err := r.db.Order("open_time ASC").Find(&positions).Error
	return positions, err
}

// FindOpenPositionsByTicker retrieves all open Position records for a ticker
func (r *PositionRepository) FindOpenPositionsByTicker(ticker string) ([]models.Position, error) {
	if ticker == "" {
		return nil, errors.New("invalid ticker")
	}
	var positions []models.Position
	err := r.db.Where("ticker = ?", ticker).Order("open_time ASC").Find(&positions).Error
	return positions, err
}

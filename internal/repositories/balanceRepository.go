package repositories

import (
	"errors"
	"time"

	"CryptoSignalBot/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceRepository persists simulated account balances.
type BalanceRepository struct {
	db *gorm.DB
}

// NewBalanceRepository creates a new instance of BalanceRepository
func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// FindBySymbol retrieves the balance for a specific symbol
func (r *BalanceRepository) FindBySymbol(symbol string) (*models.Balance, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}
	var balance models.Balance
	err := r.db.Where("symbol = ?", symbol).First(&balance).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &balance, err
}

// Upsert creates or updates the balance for a symbol
func (r *BalanceRepository) Upsert(symbol string, amount decimal.Decimal) error {
	if symbol == "" {
		return errors.New("invalid symbol")
	}

	existing, err := r.FindBySymbol(symbol)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.Create(&models.Balance{
			Symbol:      symbol,
			Balance:     amount,
			LastUpdated: time.Now().UTC(),
		}).Error
	}

	existing.Balance = amount
	existing.LastUpdated = time.Now().UTC()
	return r.db.Save(existing).Error
}

// FindAll retrieves all Balance records
func (r *BalanceRepository) FindAll() ([]models.Balance, error) {
	var balances []models.Balance
	err := r.db.Find(&balances).Error
	return balances, err
}

package trading

import (
	"context"
	"errors"
	"time"

	"CryptoSignalBot/internal/models"

	"github.com/shopspring/decimal"
)

// ErrInsufficientMargin marks a policy skip, not a system fault: the account
// margin level is below the configured minimum for opening a leveraged short.
var ErrInsufficientMargin = errors.New("insufficient margin level")

// OrderRequest describes a single trade to place against the exchange.
type OrderRequest struct {
	Ticker   string
	Side     string
	Volume   float64
	Price    float64 // optional limit price, 0 for market
	Leverage int     // 0 for unleveraged spot
}

// OrderConfirmation is the exchange's acknowledgment of an executed order.
type OrderConfirmation struct {
	TransactionID string
	Ticker        string
	Side          string
	Volume        float64
	Price         float64
	Cost          decimal.Decimal
	Fee           decimal.Decimal
	ExecutedAt    time.Time
}

// ExchangeGateway is the narrow surface the core needs from an exchange.
// Every call is fallible and must never be assumed to succeed.
type ExchangeGateway interface {
	GetPrices(ctx context.Context, ticker string) (models.Price, error)
	Buy(ctx context.Context, req OrderRequest) (*OrderConfirmation, error)
	Sell(ctx context.Context, req OrderRequest) (*OrderConfirmation, error)
	GetAccountBalances(ctx context.Context) (models.AccountState, error)
	GetOrder(ctx context.Context, ticker, transactionID string) (string, error)
	MinimumVolume(ticker string) float64
}

// PositionLedger is the durable record of open positions. Single-record
// semantics, keyed by transaction ID.
type PositionLedger interface {
	Insert(position *models.Position) error
	Delete(transactionID string) error
	SetMeanReverted(transactionID string, reverted bool) error
	FindOpenPositions() ([]models.Position, error)
	FindOpenPositionsByTicker(ticker string) ([]models.Position, error)
}

// TradeRecorder persists the audit row for every executed order.
type TradeRecorder interface {
	Record(record *models.TradeRecord) error
}

// Result reports the outcome of an open or close attempt. A failed exchange
// call yields Success=false with a Reason and no Order; the ledger is left
// untouched so the next cycle naturally retries.
type Result struct {
	Success bool
	Reason  string
	Order   *OrderConfirmation

	// Profit is the realized profit of a close, zero for opens and failures.
	Profit float64
}

func failedResult(reason string) Result {
	return Result{Success: false, Reason: reason}
}

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

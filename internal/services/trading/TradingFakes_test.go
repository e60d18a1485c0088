package trading

import (
	"context"
	"fmt"
	"time"

	"CryptoSignalBot/internal/models"

	"github.com/shopspring/decimal"
)

// fakeGateway is an in-memory ExchangeGateway for exercising the traders
// without a network.
type fakeGateway struct {
	prices     map[string]models.Price
	priceErr   error
	buyErr     error
	sellErr    error
	account    models.AccountState
	accountErr error
	minimum    float64

	buys  []OrderRequest
	sells []OrderRequest
	seq   int
}

func (g *fakeGateway) GetPrices(ctx context.Context, ticker string) (models.Price, error) {
	if g.priceErr != nil {
		return models.Price{}, g.priceErr
	}
	return g.prices[ticker], nil
}

func (g *fakeGateway) Buy(ctx context.Context, req OrderRequest) (*OrderConfirmation, error) {
	if g.buyErr != nil {
		return nil, g.buyErr
	}
	g.buys = append(g.buys, req)
	return g.confirm(req), nil
}

func (g *fakeGateway) Sell(ctx context.Context, req OrderRequest) (*OrderConfirmation, error) {
	if g.sellErr != nil {
		return nil, g.sellErr
	}
	g.sells = append(g.sells, req)
	return g.confirm(req), nil
}

func (g *fakeGateway) confirm(req OrderRequest) *OrderConfirmation {
	g.seq++
	price := req.Price
	if price == 0 {
		price = g.prices[req.Ticker].Ask
	}
	return &OrderConfirmation{
		TransactionID: fmt.Sprintf("tx-%d", g.seq),
		Ticker:        req.Ticker,
		Side:          req.Side,
		Volume:        req.Volume,
		Price:         price,
		Cost:          decimal.NewFromFloat(price * req.Volume),
		Fee:           decimal.NewFromFloat(0.1),
		ExecutedAt:    time.Now().UTC(),
	}
}

func (g *fakeGateway) GetAccountBalances(ctx context.Context) (models.AccountState, error) {
	if g.accountErr != nil {
		return models.AccountState{}, g.accountErr
	}
	return g.account, nil
}

func (g *fakeGateway) GetOrder(ctx context.Context, ticker, transactionID string) (string, error) {
	return "filled", nil
}

func (g *fakeGateway) MinimumVolume(ticker string) float64 {
	return g.minimum
}

// fakeLedger keeps positions in a slice.
type fakeLedger struct {
	positions []models.Position
	insertErr error
	deleteErr error

	deleted  []string
	reverted map[string]bool
}

func (l *fakeLedger) Insert(position *models.Position) error {
	if l.insertErr != nil {
		return l.insertErr
	}
	l.positions = append(l.positions, *position)
	return nil
}

func (l *fakeLedger) Delete(transactionID string) error {
	if l.deleteErr != nil {
		return l.deleteErr
	}
	for i := range l.positions {
		if l.positions[i].TransactionID == transactionID {
			l.positions = append(l.positions[:i], l.positions[i+1:]...)
			break
		}
	}
	l.deleted = append(l.deleted, transactionID)
	return nil
}

func (l *fakeLedger) SetMeanReverted(transactionID string, isReverted bool) error {
	if l.reverted == nil {
		l.reverted = make(map[string]bool)
	}
	l.reverted[transactionID] = isReverted
	return nil
}

func (l *fakeLedger) FindOpenPositions() ([]models.Position, error) {
	return l.positions, nil
}

func (l *fakeLedger) FindOpenPositionsByTicker(ticker string) ([]models.Position, error) {
	var out []models.Position
	for _, p := range l.positions {
		if p.Ticker == ticker {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeRecorder collects trade records.
type fakeRecorder struct {
	records []models.TradeRecord
}

func (r *fakeRecorder) Record(record *models.TradeRecord) error {
	r.records = append(r.records, *record)
	return nil
}

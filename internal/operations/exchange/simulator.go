package exchange

import (
	"context"
	"fmt"
	"time"

	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/repositories"
	"CryptoSignalBot/internal/services/trading"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const simulatedQuoteSymbol = "USDT"

// SimulatedGateway is a paper-trading trading.ExchangeGateway. Quotes come
// from the latest recorded snapshots; balances live in an explicit account
// state persisted through the balance repository, never in globals.
type SimulatedGateway struct {
	priceRepo   *repositories.PriceRepository
	balanceRepo *repositories.BalanceRepository
	feeRate     decimal.Decimal
	marginLevel float64
	logger      *zap.Logger
}

func NewSimulatedGateway(
	priceRepo *repositories.PriceRepository,
	balanceRepo *repositories.BalanceRepository,
	initialBalance decimal.Decimal,
	logger *zap.Logger,
) (*SimulatedGateway, error) {
	g := &SimulatedGateway{
		priceRepo:   priceRepo,
		balanceRepo: balanceRepo,
		feeRate:     decimal.NewFromFloat(0.0026), // taker fee
		marginLevel: 10,                           // healthy simulated margin
		logger:      logger.Named("SimulatedGateway"),
	}

	// seed the quote balance on first run
	existing, err := balanceRepo.FindBySymbol(simulatedQuoteSymbol)
	if err != nil {
		return nil, fmt.Errorf("unable to read simulated balance: %w", err)
	}
	if existing == nil {
		if err := balanceRepo.Upsert(simulatedQuoteSymbol, initialBalance); err != nil {
			return nil, fmt.Errorf("unable to seed simulated balance: %w", err)
		}
	}
	return g, nil
}

func (g *SimulatedGateway) GetPrices(_ context.Context, ticker string) (models.Price, error) {
	latest, err := g.priceRepo.GetLatestPrice(ticker)
	if err != nil {
		return models.Price{}, fmt.Errorf("unable to fetch simulated prices for %s: %w", ticker, err)
	}
	if latest == nil {
		return models.Price{}, fmt.Errorf("no recorded prices for %s", ticker)
	}
	return *latest, nil
}

// Buy fills at the current ask and debits the quote balance.
func (g *SimulatedGateway) Buy(ctx context.Context, req trading.OrderRequest) (*trading.OrderConfirmation, error) {
	quote, err := g.GetPrices(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}
	return g.fill(req, models.OrderSideBuy, quote.Ask)
}

// Sell fills at the current bid and credits the quote balance.
func (g *SimulatedGateway) Sell(ctx context.Context, req trading.OrderRequest) (*trading.OrderConfirmation, error) {
	quote, err := g.GetPrices(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}
	return g.fill(req, models.OrderSideSell, quote.Bid)
}

func (g *SimulatedGateway) fill(req trading.OrderRequest, side string, price float64) (*trading.OrderConfirmation, error) {
	balance, err := g.balanceRepo.FindBySymbol(simulatedQuoteSymbol)
	if err != nil {
		return nil, fmt.Errorf("unable to read simulated balance: %w", err)
	}
	if balance == nil {
		return nil, fmt.Errorf("simulated balance not seeded")
	}

	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(req.Volume))
	fee := cost.Mul(g.feeRate)

	newBalance := balance.Balance
	if side == models.OrderSideBuy {
		total := cost.Add(fee)
		if total.GreaterThan(balance.Balance) {
			return nil, fmt.Errorf("insufficient simulated funds: need %s, have %s", total, balance.Balance)
		}
		newBalance = newBalance.Sub(total)
	} else {
		newBalance = newBalance.Add(cost).Sub(fee)
	}

	if err := g.balanceRepo.Upsert(simulatedQuoteSymbol, newBalance); err != nil {
		return nil, fmt.Errorf("unable to update simulated balance: %w", err)
	}

	order := &trading.OrderConfirmation{
		TransactionID: uuid.NewString(),
		Ticker:        req.Ticker,
		Side:          side,
		Volume:        req.Volume,
		Price:         price,
		Cost:          cost,
		Fee:           fee,
		ExecutedAt:    time.Now().UTC(),
	}
	g.logger.Info("simulated fill",
		zap.String("ticker", req.Ticker),
		zap.String("side", side),
		zap.Float64("price", price),
		zap.Float64("volume", req.Volume),
		zap.String("balance", newBalance.String()))
	return order, nil
}

func (g *SimulatedGateway) GetAccountBalances(context.Context) (models.AccountState, error) {
	balance, err := g.balanceRepo.FindBySymbol(simulatedQuoteSymbol)
	if err != nil {
		return models.AccountState{}, fmt.Errorf("unable to read simulated balance: %w", err)
	}
	state := models.AccountState{MarginLevel: g.marginLevel}
	if balance != nil {
		state.Equity, _ = balance.Balance.Float64()
	}
	return state, nil
}

func (g *SimulatedGateway) GetOrder(context.Context, string, string) (string, error) {
	// simulated fills are immediate
	return "filled", nil
}

func (g *SimulatedGateway) MinimumVolume(string) float64 {
	return defaultMinimumVolume
}

var _ trading.ExchangeGateway = (*SimulatedGateway)(nil)

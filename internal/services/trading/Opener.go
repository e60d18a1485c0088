package trading

import (
	"context"
	"time"

	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/services/analysis"

	"go.uber.org/zap"
)

// OpenerConfig holds the entry-side policy knobs.
type OpenerConfig struct {
	OpenThreshold      float64 // deviation threshold, in standard deviations
	BaseCostUSD        float64 // fixed notional per position
	DefaultLeverage    int     // leverage applied to shorts
	MarginLevelMinimum float64
	AllowMarginTrading bool
}

// Opener gates and executes entry trades from deviation reports.
type Opener struct {
	cfg      OpenerConfig
	gateway  ExchangeGateway
	ledger   PositionLedger
	recorder TradeRecorder
	logger   *zap.Logger
}

func NewOpener(cfg OpenerConfig, gateway ExchangeGateway, ledger PositionLedger, recorder TradeRecorder, logger *zap.Logger) *Opener {
	return &Opener{
		cfg:      cfg,
		gateway:  gateway,
		ledger:   ledger,
		recorder: recorder,
		logger:   logger.Named("Opener"),
	}
}

// ApprovesOpen reports whether a deviation clears the entry gates: the price
// deviation must exceed the open threshold, and the 24-hour price movement
// must be more extreme, in the same direction, than the VWAP movement. Moves
// driven by the VWAP itself are noise, not divergence. Shared by the live
// opener and the backtest engine so replay and live trade on one gate.
func ApprovesOpen(report *analysis.DeviationReport, openThreshold float64) bool {
	if report.CurrentPercentDeviation < openThreshold {
		return false
	}

	switch {
	case report.PriceChange24h > 0:
		return report.PriceChange24h > report.VWAPChange24h
	case report.PriceChange24h < 0:
		return report.PriceChange24h < report.VWAPChange24h
	default:
		// no 24-hour price change (unlikely)
		return false
	}
}

// Approves reports whether a position should be opened for this deviation.
func (o *Opener) Approves(report *analysis.DeviationReport) bool {
	return ApprovesOpen(report, o.cfg.OpenThreshold)
}

// Execute opens a position for the given ticker. The position is persisted
// only after the exchange confirms the order; an exchange failure leaves all
// state unchanged and the next cycle retries.
func (o *Opener) Execute(ctx context.Context, ticker string, report *analysis.DeviationReport) Result {
	side := models.OrderSideBuy
	leverage := 0

	if report.Baseline <= report.CurrentPrice {
		// price is above trend: short it
		side = models.OrderSideSell
		leverage = o.cfg.DefaultLeverage

		if !o.cfg.AllowMarginTrading {
			o.logger.Info("skipping short: margin trading is not allowed", zap.String("ticker", ticker))
			return failedResult("margin trading not allowed")
		}

		account, err := o.gateway.GetAccountBalances(ctx)
		if err != nil {
			o.logger.Warn("unable to fetch account balances", zap.String("ticker", ticker), zap.Error(err))
			return failedResult("account balances unavailable")
		}
		if account.MarginLevel > 0 && account.MarginLevel < o.cfg.MarginLevelMinimum {
			o.logger.Info("skipping short: insufficient margin",
				zap.String("ticker", ticker),
				zap.Float64("marginLevel", account.MarginLevel))
			return failedResult(ErrInsufficientMargin.Error())
		}
	}

	volume := o.cfg.BaseCostUSD / report.CurrentPrice
	if minimum := o.gateway.MinimumVolume(ticker); volume < minimum {
		volume = minimum
	}

	req := OrderRequest{Ticker: ticker, Side: side, Volume: volume, Leverage: leverage}
	o.logger.Info("executing entry order",
		zap.String("ticker", ticker),
		zap.String("side", side),
		zap.Float64("volume", volume),
		zap.Int("leverage", leverage))

	var (
		order *OrderConfirmation
		err   error
	)
	if side == models.OrderSideBuy {
		order, err = o.gateway.Buy(ctx, req)
	} else {
		order, err = o.gateway.Sell(ctx, req)
	}
	if err != nil {
		o.logger.Warn("unable to open position", zap.String("ticker", ticker), zap.Error(err))
		return failedResult(err.Error())
	}

	position := &models.Position{
		Ticker:        ticker,
		Side:          side,
		Leverage:      leverage,
		Volume:        order.Volume,
		EntryPrice:    order.Price,
		TransactionID: order.TransactionID,
		OpenTime:      order.ExecutedAt,
	}
	if err := o.ledger.Insert(position); err != nil {
		// money has already moved; the books are now stale
		o.logger.Error("order executed but ledger insert failed",
			zap.String("ticker", ticker),
			zap.String("transactionID", order.TransactionID),
			zap.Error(err))
		return Result{Success: false, Reason: "ledger insert failed", Order: order}
	}

	o.recordTrade(order, models.TradeActionOpen)
	o.logger.Info("position opened",
		zap.String("ticker", ticker),
		zap.String("transactionID", order.TransactionID))
	return Result{Success: true, Order: order}
}

func (o *Opener) recordTrade(order *OrderConfirmation, action string) {
	record := &models.TradeRecord{
		Ticker:        order.Ticker,
		Side:          order.Side,
		Action:        action,
		Volume:        order.Volume,
		Price:         decimalFromFloat(order.Price),
		Cost:          order.Cost,
		Fee:           order.Fee,
		TransactionID: order.TransactionID,
		ExecutedAt:    order.ExecutedAt,
	}
	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = time.Now().UTC()
	}
	if err := o.recorder.Record(record); err != nil {
		o.logger.Warn("unable to record trade", zap.String("transactionID", order.TransactionID), zap.Error(err))
	}
}

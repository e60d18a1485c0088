package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/services/analysis"
	"CryptoSignalBot/internal/services/trading"

	"go.uber.org/zap"
)

// PriceHistoryStore is the narrow surface the cycle needs from the price
// repository.
type PriceHistoryStore interface {
	Create(price *models.Price) error
	GetPriceHistory(ticker string, since time.Time) ([]models.Price, error)
	HasSnapshotSince(ticker string, since time.Time) (bool, error)
}

// TradeHistory is the narrow surface the summary needs from the trade record
// repository.
type TradeHistory interface {
	FindSince(since time.Time) ([]models.TradeRecord, error)
}

// CycleSummary reports what one trading cycle did. It is always produced,
// even when every asset failed.
type CycleSummary struct {
	StartedAt time.Time
	Evaluated int
	Opened    int
	Closed    int

	// Errors maps ticker to the failure that made the cycle skip it.
	Errors map[string]string
}

// DailySummary aggregates account state and the trades of the last 24 hours.
type DailySummary struct {
	Account models.AccountState
	Trades  []models.TradeRecord
}

// CycleHandler runs the trading cycle: close evaluations first, then open
// evaluations, so close orders free capital and margin before sizing runs.
type CycleHandler struct {
	tickers      []string
	lookbackDays int

	gateway      trading.ExchangeGateway
	ledger       trading.PositionLedger
	priceStore   PriceHistoryStore
	tradeHistory TradeHistory

	deviation *analysis.MeanReversionAnalyzer
	trailing  *analysis.TrailingStopAnalyzer
	opener    *trading.Opener
	closer    *trading.Closer

	logger *zap.Logger
}

func NewCycleHandler(
	tickers []string,
	lookbackDays int,
	gateway trading.ExchangeGateway,
	ledger trading.PositionLedger,
	priceStore PriceHistoryStore,
	tradeHistory TradeHistory,
	deviation *analysis.MeanReversionAnalyzer,
	trailing *analysis.TrailingStopAnalyzer,
	opener *trading.Opener,
	closer *trading.Closer,
	logger *zap.Logger,
) *CycleHandler {
	return &CycleHandler{
		tickers:      tickers,
		lookbackDays: lookbackDays,
		gateway:      gateway,
		ledger:       ledger,
		priceStore:   priceStore,
		tradeHistory: tradeHistory,
		deviation:    deviation,
		trailing:     trailing,
		opener:       opener,
		closer:       closer,
		logger:       logger.Named("CycleHandler"),
	}
}

// Trade runs one full cycle: evaluate closes for every open position, then
// evaluate opens for every configured ticker. Failures are isolated per
// asset and collected into the summary; the summary is always returned.
func (h *CycleHandler) Trade(ctx context.Context) *CycleSummary {
	summary := h.newSummary()
	h.closePositions(ctx, summary)
	h.openPositions(ctx, summary)
	h.logSummary(summary)
	return summary
}

// CloseOnly runs only the close half of the cycle (the stop-loss operation).
func (h *CycleHandler) CloseOnly(ctx context.Context) *CycleSummary {
	summary := h.newSummary()
	h.closePositions(ctx, summary)
	h.logSummary(summary)
	return summary
}

func (h *CycleHandler) newSummary() *CycleSummary {
	return &CycleSummary{
		StartedAt: time.Now().UTC(),
		Errors:    make(map[string]string),
	}
}

func (h *CycleHandler) closePositions(ctx context.Context, summary *CycleSummary) {
	positions, err := h.ledger.FindOpenPositions()
	if err != nil {
		h.logger.Error("unable to list open positions", zap.Error(err))
		summary.Errors["ledger"] = err.Error()
		return
	}

	for i := range positions {
		if ctx.Err() != nil {
			return
		}
		position := &positions[i]
		summary.Evaluated++

		if result, err := h.evaluateClose(ctx, position); err != nil {
			summary.Errors[position.Ticker] = err.Error()
		} else if result != nil && result.Success {
			summary.Closed++
		}
	}
}

func (h *CycleHandler) evaluateClose(ctx context.Context, position *models.Position) (*trading.Result, error) {
	quote, err := h.gateway.GetPrices(ctx, position.Ticker)
	if err != nil {
		h.logger.Warn("unable to fetch prices", zap.String("ticker", position.Ticker), zap.Error(err))
		return nil, err
	}

	// closing a buy sells into the bid; closing a sell buys at the ask
	currentPrice := quote.Bid
	if position.Side == models.OrderSideSell {
		currentPrice = quote.Ask
	}

	sinceEntry, err := h.priceStore.GetPriceHistory(position.Ticker, position.OpenTime)
	if err != nil && !errors.Is(err, analysis.ErrEmptyHistory) {
		return nil, err
	}

	report, err := h.trailing.Analyze(position, sinceEntry, currentPrice)
	if err != nil {
		// corrupted position record: skip and warn loudly, never crash the cycle
		h.logger.Error("unable to analyze position", zap.String("ticker", position.Ticker),
			zap.String("transactionID", position.TransactionID), zap.Error(err))
		return nil, err
	}

	if h.closer.MeanReverted(position, currentPrice, quote.VWAP) && !position.MeanReverted {
		if err := h.ledger.SetMeanReverted(position.TransactionID, true); err != nil {
			h.logger.Warn("unable to flag mean reversion",
				zap.String("transactionID", position.TransactionID), zap.Error(err))
		}
	}

	if !h.closer.Approves(position, report, currentPrice, quote.VWAP) {
		return nil, nil
	}
	result := h.closer.Execute(ctx, position, report, currentPrice)
	return &result, nil
}

func (h *CycleHandler) openPositions(ctx context.Context, summary *CycleSummary) {
	lookbackStart := time.Now().UTC().AddDate(0, 0, -h.lookbackDays)

	for _, ticker := range h.tickers {
		if ctx.Err() != nil {
			return
		}
		summary.Evaluated++

		if result, err := h.evaluateOpen(ctx, ticker, lookbackStart); err != nil {
			summary.Errors[ticker] = err.Error()
		} else if result != nil && result.Success {
			summary.Opened++
		}
	}
}

func (h *CycleHandler) evaluateOpen(ctx context.Context, ticker string, lookbackStart time.Time) (*trading.Result, error) {
	// one position per ticker at a time
	open, err := h.ledger.FindOpenPositionsByTicker(ticker)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, nil
	}

	quote, err := h.gateway.GetPrices(ctx, ticker)
	if err != nil {
		h.logger.Warn("unable to fetch prices", zap.String("ticker", ticker), zap.Error(err))
		return nil, err
	}

	history, err := h.priceStore.GetPriceHistory(ticker, lookbackStart)
	if err != nil {
		if errors.Is(err, analysis.ErrEmptyHistory) {
			h.logger.Info("no price history yet, skipping", zap.String("ticker", ticker))
		}
		return nil, err
	}

	report, err := h.deviation.Analyze(quote, history)
	if err != nil {
		return nil, err
	}

	if !h.opener.Approves(report) {
		return nil, nil
	}
	h.logger.Info("open approved",
		zap.String("ticker", ticker),
		zap.Float64("percentDeviation", report.CurrentPercentDeviation),
		zap.Float64("standardDeviation", report.StandardDeviation))
	result := h.opener.Execute(ctx, ticker, report)
	return &result, nil
}

// TradeTicker runs one cycle for a single ticker: close evaluation for its
// open positions first, then an open evaluation. Used by the worker-per-asset
// mode, where each worker owns exactly one ticker.
func (h *CycleHandler) TradeTicker(ctx context.Context, ticker string) *CycleSummary {
	summary := h.newSummary()

	positions, err := h.ledger.FindOpenPositionsByTicker(ticker)
	if err != nil {
		summary.Errors[ticker] = err.Error()
		h.logSummary(summary)
		return summary
	}
	for i := range positions {
		summary.Evaluated++
		if result, err := h.evaluateClose(ctx, &positions[i]); err != nil {
			summary.Errors[ticker] = err.Error()
		} else if result != nil && result.Success {
			summary.Closed++
		}
	}

	summary.Evaluated++
	lookbackStart := time.Now().UTC().AddDate(0, 0, -h.lookbackDays)
	if result, err := h.evaluateOpen(ctx, ticker, lookbackStart); err != nil {
		summary.Errors[ticker] = err.Error()
	} else if result != nil && result.Success {
		summary.Opened++
	}

	h.logSummary(summary)
	return summary
}

// Liquidate force-closes every open position for a ticker, bypassing the
// approval gates. Workers call this on shutdown.
func (h *CycleHandler) Liquidate(ctx context.Context, ticker string) error {
	positions, err := h.ledger.FindOpenPositionsByTicker(ticker)
	if err != nil {
		return err
	}

	for i := range positions {
		position := &positions[i]
		quote, err := h.gateway.GetPrices(ctx, position.Ticker)
		if err != nil {
			return err
		}
		currentPrice := quote.Bid
		if position.Side == models.OrderSideSell {
			currentPrice = quote.Ask
		}

		sinceEntry, err := h.priceStore.GetPriceHistory(position.Ticker, position.OpenTime)
		if err != nil && !errors.Is(err, analysis.ErrEmptyHistory) {
			return err
		}
		report, err := h.trailing.Analyze(position, sinceEntry, currentPrice)
		if err != nil {
			return err
		}

		h.logger.Info("liquidating position on shutdown",
			zap.String("ticker", position.Ticker),
			zap.String("transactionID", position.TransactionID))
		if result := h.closer.Execute(ctx, position, report, currentPrice); !result.Success {
			return fmt.Errorf("unable to liquidate %s: %s", position.Ticker, result.Reason)
		}
	}
	return nil
}

// Snapshot records a price snapshot for every configured ticker, skipping
// tickers that already have one inside the dedupe window.
func (h *CycleHandler) Snapshot(ctx context.Context, dedupeWindow time.Duration) *CycleSummary {
	summary := h.newSummary()

	for _, ticker := range h.tickers {
		if ctx.Err() != nil {
			break
		}
		summary.Evaluated++

		exists, err := h.priceStore.HasSnapshotSince(ticker, time.Now().UTC().Add(-dedupeWindow))
		if err != nil {
			summary.Errors[ticker] = err.Error()
			continue
		}
		if exists {
			continue
		}

		quote, err := h.gateway.GetPrices(ctx, ticker)
		if err != nil {
			h.logger.Warn("unable to fetch prices for snapshot", zap.String("ticker", ticker), zap.Error(err))
			summary.Errors[ticker] = err.Error()
			continue
		}
		if err := h.priceStore.Create(&quote); err != nil {
			h.logger.Warn("unable to store snapshot", zap.String("ticker", ticker), zap.Error(err))
			summary.Errors[ticker] = err.Error()
		}
	}

	h.logSummary(summary)
	return summary
}

// Summary collects account state and the last 24 hours of trades.
func (h *CycleHandler) Summary(ctx context.Context) (*DailySummary, error) {
	account, err := h.gateway.GetAccountBalances(ctx)
	if err != nil {
		return nil, err
	}
	trades, err := h.tradeHistory.FindSince(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		return nil, err
	}

	h.logger.Info("daily summary",
		zap.Float64("equity", account.Equity),
		zap.Float64("marginUsed", account.MarginUsed),
		zap.Float64("marginLevel", account.MarginLevel),
		zap.Int("trades24h", len(trades)))
	return &DailySummary{Account: account, Trades: trades}, nil
}

func (h *CycleHandler) logSummary(summary *CycleSummary) {
	h.logger.Info("cycle complete",
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("opened", summary.Opened),
		zap.Int("closed", summary.Closed),
		zap.Int("errors", len(summary.Errors)))
	for ticker, reason := range summary.Errors {
		h.logger.Warn("cycle error", zap.String("ticker", ticker), zap.String("reason", reason))
	}
}

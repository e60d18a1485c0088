package backtest

import (
	"fmt"
	"time"

	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/services/analysis"
	"CryptoSignalBot/internal/services/trading"

	"go.uber.org/zap"
)

// HistorySource is the slice of the price repository the engine reads.
type HistorySource interface {
	GetPriceHistory(ticker string, since time.Time) ([]models.Price, error)
}

// Engine replays recorded price history through the mean-reversion rules and
// reports what the strategy would have done. Positions live in memory only;
// nothing touches the real ledger or an exchange.
type Engine struct {
	priceSource HistorySource
	deviation   *analysis.MeanReversionAnalyzer
	trailing    *analysis.TrailingStopAnalyzer
	config      Config
	logger      *zap.Logger

	currentBalance float64
	maxBalance     float64
	maxDrawdown    float64
	trades         []Trade
	equityCurve    []EquityPoint
}

func NewEngine(priceSource HistorySource, config Config, logger *zap.Logger) *Engine {
	baseline := analysis.NewBaselineSource(config.BaselineSource)
	return &Engine{
		priceSource: priceSource,
		deviation:   analysis.NewMeanReversionAnalyzer(baseline, config.LookbackDays, config.OpenThreshold, logger),
		trailing:    analysis.NewTrailingStopAnalyzer(),
		config:      config,
		logger:      logger.Named("Backtest"),

		currentBalance: config.InitialBalance,
		maxBalance:     config.InitialBalance,
		trades:         make([]Trade, 0),
		equityCurve:    make([]EquityPoint, 0),
	}
}

// Run replays every configured ticker over the configured time range.
func (e *Engine) Run() (*Results, error) {
	for _, ticker := range e.config.Tickers {
		if err := e.runTicker(ticker); err != nil {
			return nil, fmt.Errorf("backtest failed for %s: %w", ticker, err)
		}
	}
	return e.calculateResults(), nil
}

func (e *Engine) runTicker(ticker string) error {
	lookback := time.Duration(e.config.LookbackDays) * 24 * time.Hour
	samples, err := e.priceSource.GetPriceHistory(ticker, e.config.StartTime.Add(-lookback))
	if err != nil {
		return err
	}
	e.logger.Info("replaying history", zap.String("ticker", ticker), zap.Int("samples", len(samples)))

	var (
		open       *models.Position
		entryIndex int
	)

	for i := range samples {
		sample := samples[i]
		if sample.Timestamp.Before(e.config.StartTime) {
			continue
		}
		if !e.config.EndTime.IsZero() && sample.Timestamp.After(e.config.EndTime) {
			break
		}

		windowStart := firstIndexSince(samples[:i], sample.Timestamp.Add(-lookback))
		history := samples[windowStart:i]
		if len(history) == 0 {
			continue
		}

		if open != nil {
			closed, err := e.evaluateClose(open, samples[entryIndex:i], sample)
			if err != nil {
				return err
			}
			if closed {
				open = nil
			}
			continue
		}

		position, err := e.evaluateOpen(ticker, sample, history)
		if err != nil {
			return err
		}
		if position != nil {
			open = position
			entryIndex = i
		}
	}

	// anything still open at the end is closed at the last price
	if open != nil && len(samples) > 0 {
		e.forceClose(open, samples[len(samples)-1])
	}
	return nil
}

func (e *Engine) evaluateOpen(ticker string, sample models.Price, history []models.Price) (*models.Position, error) {
	report, err := e.deviation.Analyze(sample, history)
	if err != nil {
		return nil, err
	}
	if !trading.ApprovesOpen(report, e.config.OpenThreshold) {
		return nil, nil
	}

	side := models.OrderSideBuy
	entryPrice := sample.Ask
	if report.Baseline <= report.CurrentPrice {
		side = models.OrderSideSell
		entryPrice = sample.Bid
	}

	return &models.Position{
		Ticker:     ticker,
		Side:       side,
		Volume:     e.config.BaseCostUSD / report.CurrentPrice,
		EntryPrice: entryPrice,
		OpenTime:   sample.Timestamp,
	}, nil
}

func (e *Engine) evaluateClose(position *models.Position, sinceEntry []models.Price, sample models.Price) (bool, error) {
	currentPrice := sample.Bid
	if position.Side == models.OrderSideSell {
		currentPrice = sample.Ask
	}

	report, err := e.trailing.Analyze(position, sinceEntry, currentPrice)
	if err != nil {
		return false, err
	}

	meanReverted := currentPrice >= sample.VWAP
	if position.Side == models.OrderSideSell {
		meanReverted = currentPrice <= sample.VWAP
	}
	stopLossMet := report.TrailingPercentage >= e.config.TrailingCloseThreshold
	if !meanReverted && !stopLossMet {
		return false, nil
	}

	reason := "mean_reverted"
	if !meanReverted {
		reason = "trailing_stop"
	}
	e.recordClose(position, sample, currentPrice, report.UnrealizedProfit, reason)
	return true, nil
}

func (e *Engine) forceClose(position *models.Position, last models.Price) {
	currentPrice := last.Bid
	profit := (currentPrice - position.EntryPrice) * position.Volume
	if position.Side == models.OrderSideSell {
		currentPrice = last.Ask
		profit = (position.EntryPrice - currentPrice) * position.Volume
	}
	e.recordClose(position, last, currentPrice, profit, "end_of_data")
}

func (e *Engine) recordClose(position *models.Position, sample models.Price, exitPrice, pnl float64, reason string) {
	e.currentBalance += pnl
	if e.currentBalance > e.maxBalance {
		e.maxBalance = e.currentBalance
	}
	if e.maxBalance > 0 {
		drawdown := (e.maxBalance - e.currentBalance) / e.maxBalance
		if drawdown > e.maxDrawdown {
			e.maxDrawdown = drawdown
		}
	}

	e.trades = append(e.trades, Trade{
		Ticker:     position.Ticker,
		EntryTime:  position.OpenTime,
		ExitTime:   sample.Timestamp,
		Side:       position.Side,
		EntryPrice: position.EntryPrice,
		ExitPrice:  exitPrice,
		Volume:     position.Volume,
		PnL:        pnl,
		Reason:     reason,
	})
	e.equityCurve = append(e.equityCurve, EquityPoint{
		Timestamp: sample.Timestamp,
		Balance:   e.currentBalance,
	})
}

func (e *Engine) calculateResults() *Results {
	results := &Results{
		TotalTrades:  len(e.trades),
		FinalBalance: e.currentBalance,
		MaxDrawdown:  e.maxDrawdown,
		Trades:       e.trades,
		EquityCurve:  e.equityCurve,
	}

	var pnlSum float64
	for _, trade := range e.trades {
		pnlSum += trade.PnL
		if trade.PnL > 0 {
			results.WinningTrades++
		} else {
			results.LosingTrades++
		}
	}
	if results.TotalTrades > 0 {
		results.WinRate = float64(results.WinningTrades) / float64(results.TotalTrades)
		results.AveragePnL = pnlSum / float64(results.TotalTrades)
	}
	return results
}

func firstIndexSince(samples []models.Price, since time.Time) int {
	for i := range samples {
		if !samples[i].Timestamp.Before(since) {
			return i
		}
	}
	return len(samples)
}

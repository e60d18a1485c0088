package trading

import (
	"context"

	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/services/analysis"

	"go.uber.org/zap"
)

// CloserConfig holds the exit-side policy knobs.
type CloserConfig struct {
	TrailingCloseThreshold float64 // retracement ratio that forces a close
}

// Closer gates and executes exit trades for open positions.
type Closer struct {
	cfg      CloserConfig
	gateway  ExchangeGateway
	ledger   PositionLedger
	recorder TradeRecorder
	logger   *zap.Logger
}

func NewCloser(cfg CloserConfig, gateway ExchangeGateway, ledger PositionLedger, recorder TradeRecorder, logger *zap.Logger) *Closer {
	return &Closer{
		cfg:      cfg,
		gateway:  gateway,
		ledger:   ledger,
		recorder: recorder,
		logger:   logger.Named("Closer"),
	}
}

// MeanReverted reports whether the price has crossed back through the VWAP
// baseline since the position was opened.
func (c *Closer) MeanReverted(position *models.Position, currentPrice, currentVWAP float64) bool {
	if position.Side == models.OrderSideBuy {
		return currentPrice >= currentVWAP
	}
	return currentPrice <= currentVWAP
}

// Approves reports whether an open position should be closed: either the
// mean reversion completed, or the trailing retracement exceeds the close
// threshold.
func (c *Closer) Approves(position *models.Position, report *analysis.TrailingStopReport, currentPrice, currentVWAP float64) bool {
	meanReverted := c.MeanReverted(position, currentPrice, currentVWAP)
	stopLossMet := report.TrailingPercentage >= c.cfg.TrailingCloseThreshold

	approved := meanReverted || stopLossMet
	if approved {
		c.logger.Info("close approved",
			zap.String("ticker", position.Ticker),
			zap.Bool("meanReverted", meanReverted),
			zap.Bool("stopLossMet", stopLossMet),
			zap.Float64("trailingPercentage", report.TrailingPercentage),
			zap.Float64("unrealizedProfit", report.UnrealizedProfit))
	}
	return approved
}

// Execute closes a position with the opposite trade of its entry, same volume
// and leverage. The ledger entry is deleted only after the exchange confirms
// the order; on exchange failure the position is left untouched for the next
// cycle to retry.
func (c *Closer) Execute(ctx context.Context, position *models.Position, report *analysis.TrailingStopReport, currentPrice float64) Result {
	side := position.ClosingSide()
	req := OrderRequest{
		Ticker:   position.Ticker,
		Side:     side,
		Volume:   position.Volume,
		Price:    currentPrice,
		Leverage: position.Leverage,
	}

	c.logger.Info("executing close order",
		zap.String("ticker", position.Ticker),
		zap.String("side", side),
		zap.Float64("volume", position.Volume))

	var (
		order *OrderConfirmation
		err   error
	)
	if side == models.OrderSideBuy {
		order, err = c.gateway.Buy(ctx, req)
	} else {
		order, err = c.gateway.Sell(ctx, req)
	}
	if err != nil {
		c.logger.Warn("unable to close position",
			zap.String("ticker", position.Ticker),
			zap.String("transactionID", position.TransactionID),
			zap.Error(err))
		return failedResult(err.Error())
	}

	if err := c.ledger.Delete(position.TransactionID); err != nil {
		// money has already moved; the books are now stale
		c.logger.Error("close executed but ledger delete failed",
			zap.String("ticker", position.Ticker),
			zap.String("transactionID", position.TransactionID),
			zap.Error(err))
		return Result{Success: false, Reason: "ledger delete failed", Order: order}
	}

	profit := report.UnrealizedProfit
	c.recordTrade(order, position, profit)
	c.logger.Info("position closed",
		zap.String("ticker", position.Ticker),
		zap.String("transactionID", position.TransactionID),
		zap.Float64("profit", profit))
	return Result{Success: true, Order: order, Profit: profit}
}

func (c *Closer) recordTrade(order *OrderConfirmation, position *models.Position, profit float64) {
	record := &models.TradeRecord{
		Ticker:        order.Ticker,
		Side:          order.Side,
		Action:        models.TradeActionClose,
		Volume:        order.Volume,
		Price:         decimalFromFloat(order.Price),
		Cost:          order.Cost,
		Fee:           order.Fee,
		Pnl:           decimalFromFloat(profit),
		TransactionID: order.TransactionID,
		ExecutedAt:    order.ExecutedAt,
	}
	if err := c.recorder.Record(record); err != nil {
		c.logger.Warn("unable to record trade",
			zap.String("transactionID", position.TransactionID),
			zap.Error(err))
	}
}

package price

import (
	"context"
	"time"

	"CryptoSignalBot/internal/repositories"
	"CryptoSignalBot/internal/services/trading"

	"go.uber.org/zap"
)

// PriceRecorder polls the exchange for snapshots of every configured ticker
// and persists them to the price history store.
type PriceRecorder struct {
	gateway   trading.ExchangeGateway
	priceRepo *repositories.PriceRepository
	tickers   []string
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

func NewPriceRecorder(
	gateway trading.ExchangeGateway,
	priceRepo *repositories.PriceRepository,
	tickers []string,
	interval time.Duration,
	retentionDays int,
	logger *zap.Logger,
) *PriceRecorder {
	return &PriceRecorder{
		gateway:   gateway,
		priceRepo: priceRepo,
		tickers:   tickers,
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger.Named("PriceRecorder"),
	}
}

// StartRecording polls until the context is cancelled.
func (r *PriceRecorder) StartRecording(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("starting price recording", zap.Duration("interval", r.interval))
	r.RecordOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping price recording")
			return
		case <-ticker.C:
			r.RecordOnce(ctx)
		}
	}
}

// RecordOnce records one snapshot per ticker and prunes expired history.
// Per-ticker failures are logged and do not stop the remaining tickers.
func (r *PriceRecorder) RecordOnce(ctx context.Context) {
	for _, ticker := range r.tickers {
		quote, err := r.gateway.GetPrices(ctx, ticker)
		if err != nil {
			r.logger.Warn("unable to fetch prices", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		if err := r.priceRepo.Create(&quote); err != nil {
			r.logger.Warn("unable to store price", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		r.logger.Debug("recorded price",
			zap.String("ticker", ticker),
			zap.Float64("ask", quote.Ask),
			zap.Float64("bid", quote.Bid))
	}

	if r.retention > 0 {
		cutoff := time.Now().UTC().Add(-r.retention)
		if err := r.priceRepo.PruneBefore(cutoff); err != nil {
			r.logger.Warn("unable to prune price history", zap.Error(err))
		}
	}
}

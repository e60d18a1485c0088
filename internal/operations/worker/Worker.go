package worker

import (
	"context"
	"time"

	"CryptoSignalBot/internal/handlers"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Worker owns one ticker and trades it independently on its own cadence. All
// of its mutable state is ticker-scoped; workers communicate only through the
// shared ledger and gateway behind the cycle handler.
type Worker struct {
	ticker   string
	interval time.Duration
	cycle    *handlers.CycleHandler
	logger   *zap.Logger
}

func NewWorker(ticker string, interval time.Duration, cycle *handlers.CycleHandler, logger *zap.Logger) *Worker {
	return &Worker{
		ticker:   ticker,
		interval: interval,
		cycle:    cycle,
		logger:   logger.Named("Worker").With(zap.String("ticker", ticker)),
	}
}

// Run loops until the context is cancelled, checking the kill signal once per
// sleep interval. On shutdown the worker liquidates its tracked position
// before exiting.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting", zap.Duration("interval", w.interval))
	timer := time.NewTicker(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.shutdown()
		case <-timer.C:
			w.cycle.TradeTicker(ctx, w.ticker)
		}
	}
}

func (w *Worker) shutdown() error {
	w.logger.Info("worker shutting down, liquidating")

	// the run context is already cancelled; give liquidation its own deadline
	liquidateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.cycle.Liquidate(liquidateCtx, w.ticker); err != nil {
		w.logger.Error("liquidation failed on shutdown", zap.Error(err))
		return err
	}
	w.logger.Info("worker stopped")
	return nil
}

// Pool supervises one worker per ticker with staggered startup so the
// exchange is not hit by every worker at once.
type Pool struct {
	workers []*Worker
	stagger time.Duration
	logger  *zap.Logger
}

func NewPool(tickers []string, interval time.Duration, cycle *handlers.CycleHandler, logger *zap.Logger) *Pool {
	workers := make([]*Worker, 0, len(tickers))
	for _, ticker := range tickers {
		workers = append(workers, NewWorker(ticker, interval, cycle, logger))
	}

	stagger := time.Duration(0)
	if len(tickers) > 0 {
		stagger = interval / time.Duration(len(tickers))
	}
	return &Pool{workers: workers, stagger: stagger, logger: logger.Named("WorkerPool")}
}

// Run starts every worker and blocks until all have exited. The returned
// error is the first liquidation failure, if any.
func (p *Pool) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for i, w := range p.workers {
		worker := w
		delay := time.Duration(i) * p.stagger
		group.Go(func() error {
			select {
			case <-groupCtx.Done():
				// cancelled before the first cycle; still honor liquidate-on-exit
				return worker.shutdown()
			case <-time.After(delay):
			}
			return worker.Run(groupCtx)
		})
	}

	p.logger.Info("worker pool started", zap.Int("workers", len(p.workers)))
	return group.Wait()
}

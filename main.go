package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"CryptoSignalBot/config"
	"CryptoSignalBot/internal/handlers"
	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/operations/exchange"
	"CryptoSignalBot/internal/operations/price"
	"CryptoSignalBot/internal/operations/worker"
	"CryptoSignalBot/internal/repositories"
	"CryptoSignalBot/internal/services/analysis"
	"CryptoSignalBot/internal/services/trading"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	// Setup database
	db := setupDatabase(cfg.Database)

	// Initialize repositories
	priceRepo := repositories.NewPriceRepository(db)
	positionRepo := repositories.NewPositionRepository(db)
	tradeRepo := repositories.NewTradeRecordRepository(db)
	balanceRepo := repositories.NewBalanceRepository(db)

	// Initialize exchange gateway
	var gateway trading.ExchangeGateway
	if cfg.Runtime.Simulation {
		gateway, err = exchange.NewSimulatedGateway(priceRepo, balanceRepo, decimal.NewFromInt(1000), logger)
		if err != nil {
			log.Fatal("Failed to create simulated gateway:", err)
		}
		logger.Info("running in simulation mode")
	} else {
		gateway = exchange.NewBinanceGateway(
			cfg.Exchange.APIKey,
			cfg.Exchange.SecretKey,
			cfg.Exchange.MinimumVolumes,
			logger,
		)
		logger.Info("running in live mode")
	}

	// Initialize analyzers and traders
	baseline := analysis.NewBaselineSource(cfg.Strategy.BaselineSource)
	deviation := analysis.NewMeanReversionAnalyzer(baseline, cfg.Strategy.LookbackDays, cfg.Strategy.OpenThreshold, logger)
	trailing := analysis.NewTrailingStopAnalyzer()

	opener := trading.NewOpener(trading.OpenerConfig{
		OpenThreshold:      cfg.Strategy.OpenThreshold,
		BaseCostUSD:        cfg.Strategy.BaseCostUSD,
		DefaultLeverage:    cfg.Strategy.DefaultLeverage,
		MarginLevelMinimum: cfg.Strategy.MarginLevelMinimum,
		AllowMarginTrading: cfg.Strategy.AllowMarginTrading,
	}, gateway, positionRepo, tradeRepo, logger)

	closer := trading.NewCloser(trading.CloserConfig{
		TrailingCloseThreshold: cfg.Strategy.TrailingCloseThreshold,
	}, gateway, positionRepo, tradeRepo, logger)

	cycle := handlers.NewCycleHandler(
		cfg.Tickers,
		cfg.Strategy.LookbackDays,
		gateway,
		positionRepo,
		priceRepo,
		tradeRepo,
		deviation,
		trailing,
		opener,
		closer,
		logger,
	)

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Record price snapshots in the background
	recorder := price.NewPriceRecorder(gateway, priceRepo, cfg.Tickers,
		cfg.Runtime.SnapshotInterval, cfg.Strategy.LookbackDays+1, logger)
	go recorder.StartRecording(ctx)

	if cfg.Runtime.WorkerPerAsset {
		pool := worker.NewPool(cfg.Tickers, cfg.Runtime.CycleInterval, cycle, logger)
		if err := pool.Run(ctx); err != nil {
			logger.Error("worker pool exited with error", zap.Error(err))
		}
	} else {
		runScheduler(ctx, cfg, cycle, logger)
	}

	logger.Info("shutdown complete")
}

// runScheduler drives the single-threaded cycle loop: a trade cycle every
// interval and a daily summary once a day. Cycles never overlap.
func runScheduler(ctx context.Context, cfg *config.Config, cycle *handlers.CycleHandler, logger *zap.Logger) {
	tradeTicker := time.NewTicker(cfg.Runtime.CycleInterval)
	defer tradeTicker.Stop()
	summaryTicker := time.NewTicker(24 * time.Hour)
	defer summaryTicker.Stop()

	logger.Info("scheduler started",
		zap.Duration("cycleInterval", cfg.Runtime.CycleInterval),
		zap.Strings("tickers", cfg.Tickers))

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopping")
			return
		case <-tradeTicker.C:
			cycle.Trade(ctx)
		case <-summaryTicker.C:
			if _, err := cycle.Summary(ctx); err != nil {
				logger.Warn("unable to produce daily summary", zap.Error(err))
			}
		}
	}
}

func setupDatabase(dbConfig config.DatabaseConfig) *gorm.DB {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto migrate database schemas
	err = db.AutoMigrate(&models.Price{}, &models.Position{}, &models.TradeRecord{}, &models.Balance{})
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	return db
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func Load() (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Exchange: ExchangeConfig{
			APIKey:         os.Getenv("BINANCE_API_KEY"),
			SecretKey:      os.Getenv("BINANCE_SECRET_KEY"),
			MinimumVolumes: defaultMinimumVolumes(),
		},
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     envToInt("DB_PORT", 5432),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
		},
		Strategy: StrategyConfig{
			LookbackDays:           envToInt("LOOKBACK_DAYS", 30),
			OpenThreshold:          envToFloat("PERCENT_DEVIATION_OPEN_THRESHOLD", 2.0),
			TrailingCloseThreshold: envToFloat("PERCENT_TRAILING_CLOSE_THRESHOLD", 0.02),
			BaseCostUSD:            envToFloat("BASE_COST_USD", 100),
			DefaultLeverage:        envToInt("DEFAULT_LEVERAGE", 2),
			MarginLevelMinimum:     envToFloat("MARGIN_LEVEL_MINIMUM", 2.0),
			AllowMarginTrading:     os.Getenv("ALLOW_MARGIN_TRADING") == "true",
			BaselineSource:         getEnvDefault("BASELINE_SOURCE", "current_vwap"),
		},
		Runtime: RuntimeConfig{
			Simulation:       getEnvDefault("TRADING_MODE", TradingModeSimulation) != TradingModeLive,
			WorkerPerAsset:   os.Getenv("WORKER_PER_ASSET") == "true",
			CycleInterval:    time.Duration(envToInt("CYCLE_INTERVAL_SECONDS", 300)) * time.Second,
			SnapshotInterval: time.Duration(envToInt("SNAPSHOT_INTERVAL_SECONDS", 3600)) * time.Second,
		},
		Tickers: getTickers(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Strategy.LookbackDays <= 0 {
		return fmt.Errorf("invalid configuration: LOOKBACK_DAYS must be positive, got %d", c.Strategy.LookbackDays)
	}
	if c.Strategy.OpenThreshold <= 0 {
		return fmt.Errorf("invalid configuration: PERCENT_DEVIATION_OPEN_THRESHOLD must be positive, got %f", c.Strategy.OpenThreshold)
	}
	if c.Strategy.TrailingCloseThreshold <= 0 {
		return fmt.Errorf("invalid configuration: PERCENT_TRAILING_CLOSE_THRESHOLD must be positive, got %f", c.Strategy.TrailingCloseThreshold)
	}
	if c.Strategy.BaseCostUSD <= 0 {
		return fmt.Errorf("invalid configuration: BASE_COST_USD must be positive, got %f", c.Strategy.BaseCostUSD)
	}
	if c.Strategy.DefaultLeverage < 0 {
		return fmt.Errorf("invalid configuration: DEFAULT_LEVERAGE must not be negative, got %d", c.Strategy.DefaultLeverage)
	}
	if len(c.Tickers) == 0 {
		return fmt.Errorf("invalid configuration: no trading tickers configured")
	}
	return nil
}

// helper env(string) to int with default
func envToInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return i
}

// helper env(string) to float with default
func envToFloat(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// helper to get tickers
func getTickers() []string {
	tickers := os.Getenv("TRADING_SYMBOLS")
	if tickers == "" {
		return []string{"BTCUSDT", "ETHUSDT"} // Default pairs if none specified
	}
	return strings.Split(tickers, ",")
}

func defaultMinimumVolumes() map[string]float64 {
	return map[string]float64{
		"BTCUSDT": 0.0001,
		"ETHUSDT": 0.001,
		"ADAUSDT": 1,
		"XRPUSDT": 1,
		"LTCUSDT": 0.01,
	}
}

package config

import "time"

type Config struct {
	Exchange ExchangeConfig
	Database DatabaseConfig
	Strategy StrategyConfig
	Runtime  RuntimeConfig
	Tickers  []string
}

type ExchangeConfig struct {
	APIKey    string
	SecretKey string

	// MinimumVolumes is the smallest tradeable volume per ticker.
	MinimumVolumes map[string]float64
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// StrategyConfig holds the numeric thresholds the analyzers and traders run
// under. Validated at startup; invalid values are fatal.
type StrategyConfig struct {
	LookbackDays           int
	OpenThreshold          float64 // standard deviations
	TrailingCloseThreshold float64 // retracement ratio
	BaseCostUSD            float64
	DefaultLeverage        int
	MarginLevelMinimum     float64
	AllowMarginTrading     bool
	BaselineSource         string
}

type RuntimeConfig struct {
	Simulation       bool
	WorkerPerAsset   bool
	CycleInterval    time.Duration
	SnapshotInterval time.Duration
}

const (
	TradingModeLive       = "live"
	TradingModeSimulation = "simulation"
)

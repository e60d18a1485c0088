package backtest

import (
	"time"
)

// Trade is one simulated round trip.
type Trade struct {
	Ticker     string
	EntryTime  time.Time
	ExitTime   time.Time
	Side       string // "buy" or "sell"
	EntryPrice float64
	ExitPrice  float64
	Volume     float64
	PnL        float64
	Reason     string // "mean_reverted" or "trailing_stop"
}

// EquityPoint tracks balance over simulated time.
type EquityPoint struct {
	Timestamp time.Time
	Balance   float64
}

// Results are the final backtest metrics.
type Results struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	AveragePnL    float64

	MaxDrawdown  float64
	FinalBalance float64

	Trades      []Trade
	EquityCurve []EquityPoint
}

// Config is the simulation setup.
type Config struct {
	InitialBalance float64
	BaseCostUSD    float64

	LookbackDays           int
	OpenThreshold          float64
	TrailingCloseThreshold float64
	BaselineSource         string

	Tickers   []string
	StartTime time.Time
	EndTime   time.Time
}

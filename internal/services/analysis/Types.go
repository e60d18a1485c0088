package analysis

import (
	"errors"
	"time"
)

var (
	// ErrEmptyHistory is returned when an analyzer is handed a price history
	// with no samples. Callers treat it as skip-this-asset, not as fatal.
	ErrEmptyHistory = errors.New("price history is empty")

	// ErrUnknownOrderType is returned for a position side other than buy/sell.
	ErrUnknownOrderType = errors.New("unknown order type")
)

// DeviationReport is the output of a mean-reversion analysis. Computed on
// demand and never persisted.
type DeviationReport struct {
	Baseline     float64
	CurrentPrice float64
	CurrentVWAP  float64
	LookbackDays int

	// CurrentDeviation is signed: currentPrice - baseline.
	CurrentDeviation float64

	// CurrentPercentDeviation is |CurrentDeviation| / StandardDeviation,
	// defined as 0 when StandardDeviation is 0.
	CurrentPercentDeviation float64

	StandardDeviation float64

	// 24-hour movement, used to filter out VWAP-driven noise.
	PriceChange24h float64
	VWAPChange24h  float64

	// Bands is the moving band series over the history, one point per sample,
	// for downstream visualization consumers.
	Bands []BollingerBand
}

// AbsoluteDeviation is the magnitude of the current deviation.
func (r *DeviationReport) AbsoluteDeviation() float64 {
	if r.CurrentDeviation < 0 {
		return -r.CurrentDeviation
	}
	return r.CurrentDeviation
}

// TrailingStopReport is the per-cycle output of trailing-extreme analysis for
// one open position.
type TrailingStopReport struct {
	// ActionablePrice is the best closing price seen since entry: the peak bid
	// for a buy position, the trough ask for a sell position.
	ActionablePrice float64
	ActionableTime  time.Time

	// TrailingPercentage is the signed retracement from the actionable price.
	// Positive means price has moved against the position since its extreme.
	TrailingPercentage float64

	UnrealizedProfit float64
}

// BollingerBand is one point of the moving band series that the deviation
// analyzer accumulates for downstream visualization consumers.
type BollingerBand struct {
	Upper float64
	Lower float64
}

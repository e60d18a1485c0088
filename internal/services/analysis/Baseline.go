package analysis

import "CryptoSignalBot/internal/models"

// BaselineSource computes the reference price that deviations are measured
// against, plus the per-sample reference used for the variance calculation.
type BaselineSource interface {
	Name() string

	// Baseline returns the reference price for the current sample set.
	Baseline(history []models.Price, currentVWAP float64) float64

	// SampleReference returns the per-sample value deviations are taken from
	// when accumulating variance.
	SampleReference(sample models.Price, runningMean float64) float64
}

const (
	BaselineCurrentVWAP   = "current_vwap"
	BaselineMovingAverage = "moving_average"
	BaselineLinearTrend   = "linear_trend"
)

// NewBaselineSource resolves a configured source name. Unrecognized names fall
// back to the current-VWAP source.
func NewBaselineSource(name string) BaselineSource {
	switch name {
	case BaselineMovingAverage:
		return &movingAverageBaseline{}
	case BaselineLinearTrend:
		return &linearTrendBaseline{}
	default:
		return &currentVWAPBaseline{}
	}
}

// currentVWAPBaseline measures deviation from the volume-weighted average
// price. Variance is accumulated against each sample's own VWAP.
type currentVWAPBaseline struct{}

func (b *currentVWAPBaseline) Name() string { return BaselineCurrentVWAP }

func (b *currentVWAPBaseline) Baseline(_ []models.Price, currentVWAP float64) float64 {
	return currentVWAP
}

func (b *currentVWAPBaseline) SampleReference(sample models.Price, _ float64) float64 {
	return sample.VWAP
}

// movingAverageBaseline measures deviation from the arithmetic mean of the
// representative prices over the lookback window.
type movingAverageBaseline struct{}

func (b *movingAverageBaseline) Name() string { return BaselineMovingAverage }

func (b *movingAverageBaseline) Baseline(history []models.Price, _ float64) float64 {
	var sum float64
	for _, p := range history {
		sum += p.MidPrice()
	}
	return sum / float64(len(history))
}

func (b *movingAverageBaseline) SampleReference(_ models.Price, runningMean float64) float64 {
	return runningMean
}

// linearTrendBaseline fits a least-squares line through the representative
// prices and predicts the next value on the trend.
type linearTrendBaseline struct{}

func (b *linearTrendBaseline) Name() string { return BaselineLinearTrend }

func (b *linearTrendBaseline) Baseline(history []models.Price, _ float64) float64 {
	n := float64(len(history))
	if len(history) == 1 {
		return history[0].MidPrice()
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range history {
		x := float64(i)
		y := p.MidPrice()
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return sumY / n
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	// predict one step past the final sample
	return intercept + slope*n
}

func (b *linearTrendBaseline) SampleReference(_ models.Price, runningMean float64) float64 {
	return runningMean
}

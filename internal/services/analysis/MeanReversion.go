package analysis

import (
	"math"
	"time"

	"CryptoSignalBot/internal/models"

	"go.uber.org/zap"
)

// MeanReversionAnalyzer measures how far the current price has wandered from
// its baseline, in units of standard deviation over the lookback window. It
// holds no per-call state, so one instance is safe to share across workers.
type MeanReversionAnalyzer struct {
	baseline      BaselineSource
	lookbackDays  int
	bandThreshold float64
	logger        *zap.Logger
}

func NewMeanReversionAnalyzer(baseline BaselineSource, lookbackDays int, bandThreshold float64, logger *zap.Logger) *MeanReversionAnalyzer {
	return &MeanReversionAnalyzer{
		baseline:      baseline,
		lookbackDays:  lookbackDays,
		bandThreshold: bandThreshold,
		logger:        logger.Named("MeanReversion"),
	}
}

// Analyze computes a DeviationReport for the current snapshot against the
// given history. History must be non-empty and ascending by timestamp.
func (a *MeanReversionAnalyzer) Analyze(current models.Price, history []models.Price) (*DeviationReport, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	currentPrice := current.MidPrice()
	currentVWAP := current.VWAP
	now := current.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var (
		priceSum        float64
		deviationsSqSum float64
		price24hAgo     float64
		vwap24hAgo      float64
		found24h        bool
	)
	bands := make([]BollingerBand, 0, len(history))

	for i, sample := range history {
		price := sample.MidPrice()
		priceSum += price
		runningMean := priceSum / float64(i+1)

		ref := a.baseline.SampleReference(sample, runningMean)
		deviation := price - ref
		deviationsSqSum += deviation * deviation

		// remember the oldest sample inside the 24-hour window
		if !found24h && now.Sub(sample.Timestamp) <= 24*time.Hour {
			price24hAgo = price
			vwap24hAgo = sample.VWAP
			found24h = true
		}

		movingStdDev := math.Sqrt(deviationsSqSum / float64(i+1))
		bands = append(bands, BollingerBand{
			Upper: ref + movingStdDev*a.bandThreshold,
			Lower: ref - movingStdDev*a.bandThreshold,
		})
	}

	stdDev := math.Sqrt(deviationsSqSum / float64(len(history)))
	baseline := a.baseline.Baseline(history, currentVWAP)

	currentDeviation := currentPrice - baseline
	percentDeviation := 0.0
	if stdDev > 0 {
		percentDeviation = math.Abs(currentDeviation) / stdDev
	}

	report := &DeviationReport{
		Baseline:                baseline,
		CurrentPrice:            currentPrice,
		CurrentVWAP:             currentVWAP,
		LookbackDays:            a.lookbackDays,
		CurrentDeviation:        currentDeviation,
		CurrentPercentDeviation: percentDeviation,
		StandardDeviation:       stdDev,
		Bands:                   bands,
	}
	if found24h {
		report.PriceChange24h = currentPrice - price24hAgo
		report.VWAPChange24h = currentVWAP - vwap24hAgo
	}

	a.logger.Debug("analyzed price deviations",
		zap.String("ticker", current.Ticker),
		zap.Int("samples", len(history)),
		zap.Float64("baseline", baseline),
		zap.Float64("percentDeviation", percentDeviation))
	return report, nil
}

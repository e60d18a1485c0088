package analysis

import (
	"fmt"

	"CryptoSignalBot/internal/models"
)

// TrailingStopAnalyzer tracks the most favorable price a position has seen
// since entry and measures how far the current price has retraced from it.
type TrailingStopAnalyzer struct{}

func NewTrailingStopAnalyzer() *TrailingStopAnalyzer {
	return &TrailingStopAnalyzer{}
}

// Analyze computes a TrailingStopReport for one open position. History holds
// the snapshots recorded since the position was opened, ascending by
// timestamp; an empty history leaves the actionable price at the entry price.
func (a *TrailingStopAnalyzer) Analyze(position *models.Position, history []models.Price, currentPrice float64) (*TrailingStopReport, error) {
	if position.Side != models.OrderSideBuy && position.Side != models.OrderSideSell {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrderType, position.Side)
	}

	// Actionable price starts at entry so a worse opening tick can never beat it.
	actionablePrice := position.EntryPrice
	actionableTime := position.OpenTime

	for _, sample := range history {
		if position.Side == models.OrderSideBuy {
			// best exit for a long is the peak bid
			if sample.Bid > actionablePrice {
				actionablePrice = sample.Bid
				actionableTime = sample.Timestamp
			}
		} else {
			// best exit for a short is the trough ask
			if sample.Ask < actionablePrice {
				actionablePrice = sample.Ask
				actionableTime = sample.Timestamp
			}
		}
	}

	var trailing, profit float64
	if position.Side == models.OrderSideBuy {
		trailing = (actionablePrice - currentPrice) / actionablePrice
		profit = (currentPrice - position.EntryPrice) * position.Volume
	} else {
		trailing = (currentPrice - actionablePrice) / actionablePrice
		profit = (position.EntryPrice - currentPrice) * position.Volume
	}

	return &TrailingStopReport{
		ActionablePrice:    actionablePrice,
		ActionableTime:     actionableTime,
		TrailingPercentage: trailing,
		UnrealizedProfit:   profit,
	}, nil
}

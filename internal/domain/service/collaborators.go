package service

import (
	"context"

	"SentiGate/internal/domain/models"
)

// Scorer turns article text into a raw sentiment score in [-1, 1]. The core
// never depends on which backend produced the score, only on this contract.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// TechnicalProvider supplies externally computed indicator conditions for one
// candle. Indicator math (RSI/EMA/MACD/Bollinger) lives outside the core.
type TechnicalProvider interface {
	Conditions(ctx context.Context, candle models.MarketCandle) (models.TechnicalConditions, error)
}

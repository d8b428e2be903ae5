package indicators

import (
	"context"
	"fmt"

	"smcbot/internal/domain"
)

// SMAConfig holds configuration for the Simple Moving Average indicator
type SMAConfig struct {
	IndicatorConfig
}

// SMA implements the Simple Moving Average over closing prices
type SMA struct {
	BaseIndicator
}

// NewSMA creates a new SMA indicator instance
func NewSMA(config SMAConfig) *SMA {
	return &SMA{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (s *SMA) Name() string {
	return "SMA"
}

// Calculate computes the average closing price over the configured period,
// using the most recent candles.
func (s *SMA) Calculate(ctx context.Context, candles []*domain.Candle) (float64, error) {
	period := s.Config.Period
	if len(candles) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate SMA for period %d", len(candles), period)
	}

	total := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		total += candles[i].Close
	}
	return total / float64(period), nil
}

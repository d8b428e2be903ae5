package indicators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/domain"
)

func candlesFromCloses(closes ...float64) []*domain.Candle {
	candles := make([]*domain.Candle, 0, len(closes))
	for i, close := range closes {
		candles = append(candles, &domain.Candle{
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 15 * time.Minute),
			Symbol:    "BTCUSDT",
			Interval:  "15m",
			Open:      close,
			High:      close + 1,
			Low:       close - 1,
			Close:     close,
		})
	}
	return candles
}

func TestSMACalculate(t *testing.T) {
	sma := NewSMA(SMAConfig{IndicatorConfig: IndicatorConfig{Period: 3}})

	// Uses only the most recent 3 closes.
	value, err := sma.Calculate(context.Background(), candlesFromCloses(1, 2, 3, 4, 5))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, value, 1e-9)
}

func TestSMANotEnoughData(t *testing.T) {
	sma := NewSMA(SMAConfig{IndicatorConfig: IndicatorConfig{Period: 3}})

	_, err := sma.Calculate(context.Background(), candlesFromCloses(1, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough data")
}

func TestSMAMetadata(t *testing.T) {
	sma := NewSMA(SMAConfig{IndicatorConfig: IndicatorConfig{Period: 20}})
	assert.Equal(t, "SMA", sma.Name())
	assert.Equal(t, 20, sma.RequiredDataPoints())
}

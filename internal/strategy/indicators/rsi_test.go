package indicators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRSI(period int) *RSI {
	return NewRSI(RSIConfig{
		IndicatorConfig: IndicatorConfig{Period: period},
		Overbought:      70,
		Oversold:        30,
	})
}

func TestRSIAllGains(t *testing.T) {
	rsi := newTestRSI(3)

	value, err := rsi.Calculate(context.Background(), candlesFromCloses(1, 2, 3, 4, 5))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, value, 1e-9)
}

func TestRSIAllLosses(t *testing.T) {
	rsi := newTestRSI(3)

	value, err := rsi.Calculate(context.Background(), candlesFromCloses(5, 4, 3, 2, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, value, 1e-9)
}

func TestRSIFlatSeriesIsNeutral(t *testing.T) {
	rsi := newTestRSI(3)

	value, err := rsi.Calculate(context.Background(), candlesFromCloses(5, 5, 5, 5, 5))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, value, 1e-9)
}

func TestRSIWilderSmoothing(t *testing.T) {
	rsi := newTestRSI(2)

	// Changes +1, -1, +1. Initial averages 0.5/0.5, then one smoothing step:
	// avgGain = (0.5 + 1)/2 = 0.75, avgLoss = 0.5/2 = 0.25, RS = 3, RSI = 75.
	value, err := rsi.Calculate(context.Background(), candlesFromCloses(10, 11, 10, 11))
	require.NoError(t, err)
	assert.InDelta(t, 75.0, value, 1e-9)
}

func TestRSINotEnoughData(t *testing.T) {
	rsi := newTestRSI(14)

	_, err := rsi.Calculate(context.Background(), candlesFromCloses(1, 2, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough data")
}

func TestRSIThresholds(t *testing.T) {
	rsi := newTestRSI(14)

	assert.True(t, rsi.IsOverbought(70))
	assert.True(t, rsi.IsOverbought(85))
	assert.False(t, rsi.IsOverbought(69.9))

	assert.True(t, rsi.IsOversold(30))
	assert.True(t, rsi.IsOversold(15))
	assert.False(t, rsi.IsOversold(30.1))
}

func TestRSIMetadata(t *testing.T) {
	rsi := newTestRSI(14)
	assert.Equal(t, "RSI", rsi.Name())
	assert.Equal(t, 15, rsi.RequiredDataPoints(), "looks one step further back than the period")
}

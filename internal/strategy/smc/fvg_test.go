package smc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/domain"
)

func TestDetectFairValueGapsBullish(t *testing.T) {
	// First candle's low (105) clears the third candle's high (102.5) with a
	// bullish middle candle, leaving the band [102.5, 105].
	candles := []*domain.Candle{
		tc(0, 106.0, 107.0, 105.0, 106.5),
		tc(1, 103.0, 104.5, 102.5, 104.0),
		tc(2, 102.0, 102.5, 101.5, 102.3),
	}

	gaps := DetectFairValueGaps(candles, 2)
	require.Len(t, gaps, 1)
	assert.Equal(t, domain.BullishGap, gaps[0].Kind)
	assert.Equal(t, 105.0, gaps[0].PriceHigh)
	assert.Equal(t, 102.5, gaps[0].PriceLow)
	assert.Equal(t, candles[1].Timestamp, gaps[0].Timestamp)
	assert.False(t, gaps[0].Filled, "no candles after the triplet")
}

func TestDetectFairValueGapsBearish(t *testing.T) {
	// First candle's high (101.5) sits below the third candle's low (104.5)
	// with a bearish middle candle, leaving the band [101.5, 104.5].
	candles := []*domain.Candle{
		tc(0, 101.0, 101.5, 100.0, 100.5),
		tc(1, 103.5, 104.0, 102.9, 103.0),
		tc(2, 105.0, 106.0, 104.5, 105.5),
	}

	gaps := DetectFairValueGaps(candles, 2)
	require.Len(t, gaps, 1)
	assert.Equal(t, domain.BearishGap, gaps[0].Kind)
	assert.Equal(t, 104.5, gaps[0].PriceHigh)
	assert.Equal(t, 101.5, gaps[0].PriceLow)
}

func TestDetectFairValueGapsFilled(t *testing.T) {
	base := []*domain.Candle{
		tc(0, 106.0, 107.0, 105.0, 106.5),
		tc(1, 103.0, 104.5, 102.5, 104.0),
		tc(2, 102.0, 102.5, 101.5, 102.3),
	}

	// A later candle trading inside the band marks the gap filled.
	filled := append(append([]*domain.Candle{}, base...),
		tc(3, 103.0, 104.0, 102.8, 103.5))
	gaps := DetectFairValueGaps(filled, 2)
	require.Len(t, gaps, 1)
	assert.True(t, gaps[0].Filled)

	// A later candle entirely above the band leaves it unfilled.
	unfilled := append(append([]*domain.Candle{}, base...),
		tc(3, 105.6, 106.0, 105.5, 105.8))
	gaps = DetectFairValueGaps(unfilled, 2)
	require.Len(t, gaps, 1)
	assert.False(t, gaps[0].Filled)
}

func TestDetectFairValueGapsKeepsMostRecent(t *testing.T) {
	// Two disjoint bullish gaps; keep=1 retains only the later one.
	candles := []*domain.Candle{
		tc(0, 106.0, 107.0, 105.0, 106.5),
		tc(1, 103.0, 104.5, 102.5, 104.0),
		tc(2, 102.0, 102.5, 101.5, 102.3),
		tc(3, 206.0, 207.0, 205.0, 206.5),
		tc(4, 203.0, 204.5, 202.5, 204.0),
		tc(5, 202.0, 202.5, 201.5, 202.3),
	}

	gaps := DetectFairValueGaps(candles, 1)
	require.Len(t, gaps, 1)
	assert.Equal(t, 205.0, gaps[0].PriceHigh, "oldest gap evicted first")
}

func TestDetectFairValueGapsGuards(t *testing.T) {
	candles := []*domain.Candle{
		tc(0, 106.0, 107.0, 105.0, 106.5),
		tc(1, 103.0, 104.5, 102.5, 104.0),
	}
	assert.Nil(t, DetectFairValueGaps(candles, 2))
	assert.Nil(t, DetectFairValueGaps(nil, 2))
	assert.Nil(t, DetectFairValueGaps(candles, 0))
}

func TestDetectFairValueGapsDeterministic(t *testing.T) {
	candles := []*domain.Candle{
		tc(0, 106.0, 107.0, 105.0, 106.5),
		tc(1, 103.0, 104.5, 102.5, 104.0),
		tc(2, 102.0, 102.5, 101.5, 102.3),
		tc(3, 103.0, 104.0, 102.8, 103.5),
	}
	assert.Equal(t, DetectFairValueGaps(candles, 2), DetectFairValueGaps(candles, 2))
}

package smc

import (
	"smcbot/internal/domain"
)

// DetectFairValueGaps scans every consecutive candle triplet for a three-candle
// imbalance: a bullish gap when the first candle's low sits above the third
// candle's high with a bullish middle candle, and the mirror case for bearish.
// The Filled flag is computed once at detection time by scanning the candles
// after the triplet for a trade through the band; history is never mutated, so
// re-running detection on the same window yields the same gaps.
// Only the most recent keep gaps are retained.
func DetectFairValueGaps(candles []*domain.Candle, keep int) []*domain.FairValueGap {
	if len(candles) < 3 || keep <= 0 {
		return nil
	}

	var gaps []*domain.FairValueGap
	for i := 1; i < len(candles)-1; i++ {
		before, middle, after := candles[i-1], candles[i], candles[i+1]

		var gap *domain.FairValueGap
		switch {
		case before.Low > after.High && middle.IsBullish():
			gap = &domain.FairValueGap{
				Kind:      domain.BullishGap,
				PriceHigh: before.Low,
				PriceLow:  after.High,
				Timestamp: middle.Timestamp,
			}
		case before.High < after.Low && middle.IsBearish():
			gap = &domain.FairValueGap{
				Kind:      domain.BearishGap,
				PriceHigh: after.Low,
				PriceLow:  before.High,
				Timestamp: middle.Timestamp,
			}
		default:
			continue
		}

		gap.Filled = gapFilled(gap, candles[i+2:])
		gaps = append(gaps, gap)
	}

	if len(gaps) > keep {
		gaps = gaps[len(gaps)-keep:]
	}
	return gaps
}

// gapFilled reports whether any later candle traded through the gap band.
func gapFilled(gap *domain.FairValueGap, later []*domain.Candle) bool {
	for _, c := range later {
		if c.Low <= gap.PriceLow && c.High >= gap.PriceLow ||
			c.Low <= gap.PriceHigh && c.High >= gap.PriceHigh ||
			c.Low >= gap.PriceLow && c.High <= gap.PriceHigh {
			return true
		}
	}
	return false
}

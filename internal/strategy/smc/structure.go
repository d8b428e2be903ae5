package smc

import (
	"smcbot/internal/domain"
)

// FindSwingPoints locates swing highs and lows: candles whose high (low) is the
// maximum (minimum) of a centered window of `window` candles on each side.
// Candles too close to either end of the series lack a full window and are
// never swing candidates. Results are in series order.
func FindSwingPoints(candles []*domain.Candle, window int) (highs, lows []domain.SwingPoint) {
	if window <= 0 || len(candles) < 2*window+1 {
		return nil, nil
	}

	for i := window; i < len(candles)-window; i++ {
		c := candles[i]
		isHigh, isLow := true, true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if candles[j].High > c.High {
				isHigh = false
			}
			if candles[j].Low < c.Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			highs = append(highs, domain.SwingPoint{Timestamp: c.Timestamp, Price: c.High, Kind: domain.SwingHigh})
		}
		if isLow {
			lows = append(lows, domain.SwingPoint{Timestamp: c.Timestamp, Price: c.Low, Kind: domain.SwingLow})
		}
	}
	return highs, lows
}

// AnalyzeMarketStructure classifies the trend bias from the two most recent
// swing highs and lows. A higher high plus a higher low is a bullish break of
// structure, the mirror case a bearish one. Fewer than two swings on either
// side is insufficient evidence and yields NEUTRAL, never an error.
func AnalyzeMarketStructure(candles []*domain.Candle, window int) domain.MarketStructure {
	highs, lows := FindSwingPoints(candles, window)
	if len(highs) < 2 || len(lows) < 2 {
		return domain.Neutral
	}

	latestHigh, prevHigh := highs[len(highs)-1].Price, highs[len(highs)-2].Price
	latestLow, prevLow := lows[len(lows)-1].Price, lows[len(lows)-2].Price

	switch {
	case latestHigh > prevHigh && latestLow > prevLow:
		return domain.BullishBOS
	case latestHigh < prevHigh && latestLow < prevLow:
		return domain.BearishBOS
	default:
		return domain.Neutral
	}
}

package smc

import (
	"math"

	"smcbot/internal/domain"
)

const (
	// Margin of candles excluded at each end of the series: the lookback for
	// the body-size baseline and the lookahead for impulse confirmation.
	obMargin = 5
	// Price must extend at least this fraction beyond the origin candle's
	// extreme within the lookahead window to confirm the impulse.
	obImpulsePct = 0.01
)

// DetectOrderBlocks finds origin candles whose body exceeds the standard
// deviation of the preceding 5 candles' bodies scaled by multiplier, confirmed
// by a >=1% impulsive extension in the same direction within the next 5
// candles. An origin without impulse confirmation is discarded outright.
// Only the most recent keep blocks are retained, oldest evicted first.
// Detection is a single forward pass over the series, so identical windows
// always produce identical results.
func DetectOrderBlocks(candles []*domain.Candle, multiplier float64, keep int) []*domain.OrderBlock {
	if len(candles) < 2*obMargin || multiplier <= 0 || keep <= 0 {
		return nil
	}

	var blocks []*domain.OrderBlock
	for i := obMargin; i < len(candles)-obMargin; i++ {
		c := candles[i]
		if c.Close == c.Open {
			continue
		}

		stdev := bodyStdev(candles[i-obMargin : i])
		if stdev <= 0 {
			continue
		}
		threshold := stdev * multiplier
		body := c.Body()
		if body <= threshold {
			continue
		}

		confirmed := false
		if c.IsBullish() {
			target := c.High * (1 + obImpulsePct)
			for j := i + 1; j <= i+obMargin; j++ {
				if candles[j].High > target {
					confirmed = true
					break
				}
			}
		} else {
			target := c.Low * (1 - obImpulsePct)
			for j := i + 1; j <= i+obMargin; j++ {
				if candles[j].Low < target {
					confirmed = true
					break
				}
			}
		}
		if !confirmed {
			continue
		}

		kind := domain.BullishBlock
		if c.IsBearish() {
			kind = domain.BearishBlock
		}
		blocks = append(blocks, &domain.OrderBlock{
			Kind:       kind,
			PriceHigh:  c.High,
			PriceLow:   c.Low,
			Timestamp:  c.Timestamp,
			Volume:     c.Volume,
			Confidence: math.Min(body/threshold, 1.0) * 100,
		})
	}

	if len(blocks) > keep {
		blocks = blocks[len(blocks)-keep:]
	}
	return blocks
}

// bodyStdev computes the sample standard deviation of candle body sizes.
func bodyStdev(candles []*domain.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	mean := 0.0
	for _, c := range candles {
		mean += c.Body()
	}
	mean /= float64(len(candles))

	variance := 0.0
	for _, c := range candles {
		d := c.Body() - mean
		variance += d * d
	}
	variance /= float64(len(candles) - 1)
	return math.Sqrt(variance)
}

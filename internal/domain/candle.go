package domain

import (
	"fmt"
	"time"
)

// Candle represents a single OHLCV candlestick. Immutable once produced.
type Candle struct {
	Timestamp time.Time // Start time of the interval
	Symbol    string    // Trading symbol (e.g., "BTCUSDT")
	Interval  string    // Candle interval (e.g., "15m")
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Traded volume
}

// Body returns the absolute size of the candle body.
func (c *Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// IsBullish reports whether the candle closed above its open.
func (c *Candle) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports whether the candle closed below its open.
func (c *Candle) IsBearish() bool { return c.Close < c.Open }

// Validate checks the OHLC invariant low <= min(open,close) <= max(open,close) <= high.
func (c *Candle) Validate() error {
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("candle at %s: low %f above open/close", c.Timestamp.Format(time.RFC3339), c.Low)
	}
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("candle at %s: high %f below open/close", c.Timestamp.Format(time.RFC3339), c.High)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle at %s: negative volume %f", c.Timestamp.Format(time.RFC3339), c.Volume)
	}
	return nil
}

// ValidateSeries checks every candle's OHLC invariant plus strict time ordering
// with no duplicate timestamps. A series failing any check must be rejected
// wholesale, never partially consumed.
func ValidateSeries(candles []*Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && !candles[i-1].Timestamp.Before(c.Timestamp) {
			return fmt.Errorf("series not strictly time-ordered at index %d (%s >= %s)",
				i, candles[i-1].Timestamp.Format(time.RFC3339), c.Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

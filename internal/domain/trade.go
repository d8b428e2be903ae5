package domain

import "time"

// Trade is an immutable fill record, appended to history on every fill.
type Trade struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Quantity   float64
	Price      float64
	Commission float64
	Timestamp  time.Time
	OrderID    string
}

// TradeResult is the realized outcome of a position-reducing fill: one closed
// (or partially closed) round trip. Results feed the Kelly sizing lookback and
// the performance accumulator.
type TradeResult struct {
	ID         string
	Symbol     string
	Side       OrderSide // side of the closed position
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	PNL        float64 // net of commission
	Commission float64
	EntryTime  time.Time
	ExitTime   time.Time
}

// IsWin reports whether the round trip realized a profit.
func (r *TradeResult) IsWin() bool { return r.PNL > 0 }

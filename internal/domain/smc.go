package domain

import "time"

// SwingKind distinguishes swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "HIGH"
	SwingLow  SwingKind = "LOW"
)

// SwingPoint is a local extremum over a centered rolling window. Derived per
// analysis pass, never persisted.
type SwingPoint struct {
	Timestamp time.Time
	Price     float64
	Kind      SwingKind
}

// MarketStructure classifies the trend bias from recent swing points.
type MarketStructure string

const (
	// BullishBOS: the latest swing high and swing low both exceed their predecessors.
	BullishBOS MarketStructure = "BULLISH_BOS"
	// BearishBOS: the latest swing high and swing low are both below their predecessors.
	BearishBOS MarketStructure = "BEARISH_BOS"
	// Neutral covers ranging markets and insufficient evidence (< 2 swings per side).
	Neutral MarketStructure = "NEUTRAL"
)

// BlockKind classifies an order block's direction.
type BlockKind string

const (
	BullishBlock BlockKind = "BULLISH"
	BearishBlock BlockKind = "BEARISH"
)

// OrderBlock marks a zone of concentrated order flow: a candle with an outsized
// body that was followed by an impulsive move in the same direction.
// Never mutated after creation; evicted from the bounded recent list when stale.
type OrderBlock struct {
	Kind       BlockKind
	PriceHigh  float64
	PriceLow   float64
	Timestamp  time.Time
	Volume     float64
	Confidence float64 // [0,100]
}

// Contains reports whether price sits inside the block's band.
func (ob *OrderBlock) Contains(price float64) bool {
	return price >= ob.PriceLow && price <= ob.PriceHigh
}

// GapKind classifies a fair value gap's direction.
type GapKind string

const (
	BullishGap GapKind = "BULLISH"
	BearishGap GapKind = "BEARISH"
)

// FairValueGap is a three-candle imbalance: the first and third candles' ranges
// do not overlap, leaving a band expected to attract future price action.
// Filled is informational at creation time only; current fill state is
// recomputed against live price rather than mutated in history.
type FairValueGap struct {
	Kind      GapKind
	PriceHigh float64
	PriceLow  float64
	Timestamp time.Time
	Filled    bool
}

// Contains reports whether price sits inside the gap band.
func (g *FairValueGap) Contains(price float64) bool {
	return price >= g.PriceLow && price <= g.PriceHigh
}

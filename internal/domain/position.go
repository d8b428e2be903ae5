package domain

import "time"

// Position is the net exposure on a symbol. Created on the first fill for a
// symbol with no existing position, destroyed when size reaches zero.
// EntryPrice is the size-weighted average of same-direction fills.
type Position struct {
	Symbol        string
	Side          OrderSide
	Size          float64
	EntryPrice    float64
	CurrentPrice  float64
	UnrealizedPNL float64
	StopLoss      float64 // 0 when not set
	TakeProfit    float64 // 0 when not set
	Timestamp     time.Time
}

// MarkPrice updates the current price and the unrealized PnL derived from it.
func (p *Position) MarkPrice(price float64) {
	p.CurrentPrice = price
	if p.Side == Buy {
		p.UnrealizedPNL = (price - p.EntryPrice) * p.Size
	} else {
		p.UnrealizedPNL = (p.EntryPrice - price) * p.Size
	}
}

// Notional returns the position value at the current price.
func (p *Position) Notional() float64 {
	return p.Size * p.CurrentPrice
}

package domain

import "time"

// Order is a tracked order submitted to (or simulated by) the execution sink.
// Owned exclusively by the order tracker.
type Order struct {
	ID             string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Quantity       float64
	Price          float64 // limit price, 0 for market orders
	Status         OrderStatus
	FilledQuantity float64
	AvgFillPrice   float64
	Timestamp      time.Time
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() float64 {
	return o.Quantity - o.FilledQuantity
}

package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the other side, used when reducing or closing exposure.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType represents the execution type of an order.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle state of an order.
// Transitions are monotonic: NEW -> PARTIALLY_FILLED* -> FILLED | CANCELLED | REJECTED.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status is final. A terminal order moves from
// the active set to the completed set and never transitions again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// SignalDirection is the direction of an emitted trading signal.
type SignalDirection string

const (
	Long  SignalDirection = "LONG"
	Short SignalDirection = "SHORT"
)

// Side maps the signal direction to the order side that opens the position.
func (d SignalDirection) Side() OrderSide {
	if d == Short {
		return Sell
	}
	return Buy
}

// TradingMode selects between simulated and live order execution.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

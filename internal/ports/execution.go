package ports

import (
	"context"

	"smcbot/internal/domain"
)

// OrderRequest describes an order submitted to the execution sink.
type OrderRequest struct {
	Symbol        string
	Side          domain.OrderSide
	Type          domain.OrderType
	Quantity      float64
	Price         float64 // required for limit orders
	StopPrice     float64 // trigger price for conditional orders
	ReduceOnly    bool    // may only decrease an existing position
	ClientOrderID string
}

// ExecutionSink places and manages orders on the exchange. Calls are fallible
// and rate-limited; callers route them through the bounded-retry wrapper.
type ExecutionSink interface {
	// PlaceOrder submits an order and returns the exchange-assigned order id.
	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)

	// CancelOrder cancels an open order by id.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// GetOrderStatus retrieves the current state of an order. Status is pulled
	// on demand, never pushed.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.Order, error)
}

package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"smcbot/internal/domain"
)

// placePaperOrder simulates an order without touching an exchange. The fill is
// synchronous and complete at the reference price, with commission charged at
// the configured rate on notional.
func (t *Tracker) placePaperOrder(ctx context.Context, symbol string, side domain.OrderSide, orderType domain.OrderType, quantity, price float64) (*domain.Order, error) {
	now := time.Now().UTC()
	order := &domain.Order{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Quantity:  quantity,
		Price:     price,
		Status:    domain.StatusNew,
		Timestamp: now,
	}

	commission := quantity * price * t.cfg.CommissionRate
	trade := &domain.Trade{
		ID:         ulid.Make().String(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
		Timestamp:  now,
		OrderID:    order.ID,
	}

	t.mu.Lock()
	order.Status = domain.StatusFilled
	order.FilledQuantity = quantity
	order.AvgFillPrice = price
	t.completed[order.ID] = order
	t.trades = append(t.trades, trade)

	result := t.applyFillLocked(trade)
	// Balance moves by the realized gross PnL minus the full fill commission.
	t.paperBalance -= commission
	if result != nil {
		t.paperBalance += result.PNL + result.Commission
	}
	t.mu.Unlock()

	t.publishResult(ctx, result)
	t.logger.Info(ctx, "Paper order filled", map[string]interface{}{
		"orderID":    order.ID,
		"symbol":     symbol,
		"side":       string(side),
		"quantity":   quantity,
		"price":      price,
		"commission": commission,
	})
	return order, nil
}

package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
)

// placeLiveMarketOrder submits a market order to the exchange, waits for fill
// confirmation bounded by the fill timeout, and then attaches reduce-only
// stop-loss and take-profit orders sized at the confirmed fill quantity. A
// fill that does not confirm within the bound leaves the order tracked as
// active and returns a timeout error.
func (t *Tracker) placeLiveMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopLoss, takeProfit float64) (*domain.Order, error) {
	order, err := t.submitLive(ctx, ports.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          domain.Market,
		Quantity:      quantity,
		ClientOrderID: uuid.New().String(),
	})
	if err != nil {
		return nil, err
	}

	filled, err := t.waitForFill(ctx, order)
	if err != nil {
		return order, err
	}
	if !filled {
		return order, nil
	}

	t.attachProtectiveOrders(ctx, order, stopLoss, takeProfit)
	return order, nil
}

// placeLiveLimitOrder submits a limit order and returns without waiting for a
// fill; limit orders rest on the book until filled or cancelled.
func (t *Tracker) placeLiveLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price float64) (*domain.Order, error) {
	return t.submitLive(ctx, ports.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          domain.Limit,
		Quantity:      quantity,
		Price:         price,
		ClientOrderID: uuid.New().String(),
	})
}

// submitLive places the order on the exchange through the retrier and starts
// tracking it in the active set.
func (t *Tracker) submitLive(ctx context.Context, req ports.OrderRequest) (*domain.Order, error) {
	var orderID string
	err := t.retrier.Do(ctx, "place_order", func(ctx context.Context) error {
		var placeErr error
		orderID, placeErr = t.sink.PlaceOrder(ctx, req)
		return placeErr
	})
	if err != nil {
		return nil, fmt.Errorf("place %s %s order: %w", req.Side, req.Type, err)
	}

	order := &domain.Order{
		ID:        orderID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    domain.StatusNew,
		Timestamp: time.Now().UTC(),
	}

	t.mu.Lock()
	t.active[order.ID] = order
	t.mu.Unlock()

	t.logger.Info(ctx, "Order submitted", map[string]interface{}{
		"orderID":  order.ID,
		"symbol":   order.Symbol,
		"side":     string(order.Side),
		"type":     string(order.Type),
		"quantity": order.Quantity,
	})
	return order, nil
}

// waitForFill polls the exchange for the order state until it reaches a
// terminal status or the fill timeout elapses. Returns true when the order
// filled and the fill has been applied to the position.
func (t *Tracker) waitForFill(ctx context.Context, order *domain.Order) (bool, error) {
	deadline := time.Now().Add(t.cfg.FillTimeout)
	ticker := time.NewTicker(t.cfg.FillPoll)
	defer ticker.Stop()

	for {
		var latest *domain.Order
		err := t.retrier.Do(ctx, "order_status", func(ctx context.Context) error {
			var statusErr error
			latest, statusErr = t.sink.GetOrderStatus(ctx, order.Symbol, order.ID)
			return statusErr
		})
		if err != nil {
			return false, fmt.Errorf("confirm fill of %s: %w", order.ID, err)
		}

		t.mu.Lock()
		order.Status = latest.Status
		order.FilledQuantity = latest.FilledQuantity
		order.AvgFillPrice = latest.AvgFillPrice
		t.mu.Unlock()

		if latest.Status.IsTerminal() {
			return t.settleLive(ctx, order), nil
		}

		if time.Now().After(deadline) {
			t.logger.Warn(ctx, "Fill confirmation timed out, order stays active", map[string]interface{}{
				"orderID": order.ID,
				"status":  string(order.Status),
			})
			return false, fmt.Errorf("order %s not filled within %s: %w", order.ID, t.cfg.FillTimeout, ports.ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return false, fmt.Errorf("confirm fill of %s: %w", order.ID, ports.ErrContextCanceled)
		case <-ticker.C:
		}
	}
}

// settleLive applies a terminal order to the tracker state. Filled orders
// produce a trade record and update the position; cancelled or rejected
// orders just move to the completed set.
func (t *Tracker) settleLive(ctx context.Context, order *domain.Order) bool {
	t.mu.Lock()
	t.completeLocked(order)

	if order.Status != domain.StatusFilled || order.FilledQuantity <= 0 {
		t.mu.Unlock()
		t.logger.Warn(ctx, "Order terminal without fill", map[string]interface{}{
			"orderID": order.ID,
			"status":  string(order.Status),
		})
		return false
	}

	trade := &domain.Trade{
		ID:         ulid.Make().String(),
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.FilledQuantity,
		Price:      order.AvgFillPrice,
		Commission: order.FilledQuantity * order.AvgFillPrice * t.cfg.CommissionRate,
		Timestamp:  time.Now().UTC(),
		OrderID:    order.ID,
	}
	t.trades = append(t.trades, trade)
	result := t.applyFillLocked(trade)
	t.mu.Unlock()

	t.publishResult(ctx, result)
	t.logger.Info(ctx, "Order filled", map[string]interface{}{
		"orderID":  order.ID,
		"symbol":   order.Symbol,
		"quantity": order.FilledQuantity,
		"price":    order.AvgFillPrice,
	})
	return true
}

// attachProtectiveOrders places reduce-only stop-loss and take-profit orders
// on the opposite side of a confirmed entry. Failures are logged and surfaced
// as warnings, not fatal: the entry already exists and the decision loop keeps
// managing it.
func (t *Tracker) attachProtectiveOrders(ctx context.Context, entry *domain.Order, stopLoss, takeProfit float64) {
	exitSide := entry.Side.Opposite()

	if stopLoss > 0 {
		err := t.retrier.Do(ctx, "place_stop_loss", func(ctx context.Context) error {
			_, placeErr := t.sink.PlaceOrder(ctx, ports.OrderRequest{
				Symbol:        entry.Symbol,
				Side:          exitSide,
				Type:          domain.Market,
				Quantity:      entry.FilledQuantity,
				StopPrice:     stopLoss,
				ReduceOnly:    true,
				ClientOrderID: uuid.New().String(),
			})
			return placeErr
		})
		if err != nil {
			t.logger.Error(ctx, err, "Failed to place stop-loss order", map[string]interface{}{"orderID": entry.ID})
		}
	}

	if takeProfit > 0 {
		err := t.retrier.Do(ctx, "place_take_profit", func(ctx context.Context) error {
			_, placeErr := t.sink.PlaceOrder(ctx, ports.OrderRequest{
				Symbol:        entry.Symbol,
				Side:          exitSide,
				Type:          domain.Limit,
				Quantity:      entry.FilledQuantity,
				Price:         takeProfit,
				ReduceOnly:    true,
				ClientOrderID: uuid.New().String(),
			})
			return placeErr
		})
		if err != nil {
			t.logger.Error(ctx, err, "Failed to place take-profit order", map[string]interface{}{"orderID": entry.ID})
		}
	}

	t.mu.Lock()
	if pos, ok := t.positions[entry.Symbol]; ok {
		pos.StopLoss = stopLoss
		pos.TakeProfit = takeProfit
	}
	t.mu.Unlock()
}

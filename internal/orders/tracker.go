package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
	"smcbot/internal/retry"
)

// resultBuffer bounds the trade-result channel. The decision loop drains it
// every cycle, so it never fills in practice.
const resultBuffer = 64

// Config holds configuration for the order tracker.
type Config struct {
	Mode           domain.TradingMode
	CommissionRate float64       // paper commission as fraction of notional, e.g. 0.0006
	PaperBalance   float64       // initial simulated balance, e.g. 10000
	FillTimeout    time.Duration // bound on the live fill-confirmation wait, e.g. 30s
	FillPoll       time.Duration // polling interval while waiting for a fill, e.g. 1s
}

// Tracker owns the order and position lifecycle. Orders transition
// NEW -> PARTIALLY_FILLED* -> FILLED | CANCELLED | REJECTED; terminal orders
// move from the active set to the completed set. The active-orders and
// open-positions collections are owned exclusively by the tracker; no other
// component mutates them.
type Tracker struct {
	cfg     Config
	logger  ports.Logger
	sink    ports.ExecutionSink
	retrier *retry.Retrier

	mu           sync.Mutex
	active       map[string]*domain.Order
	completed    map[string]*domain.Order
	positions    map[string]*domain.Position
	trades       []*domain.Trade
	paperBalance float64

	results chan *domain.TradeResult
}

// NewTracker creates an order tracker. The execution sink and retrier are
// required in live mode and unused in paper mode.
func NewTracker(cfg Config, logger ports.Logger, sink ports.ExecutionSink, retrier *retry.Retrier) (*Tracker, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for order tracker")
	}
	switch cfg.Mode {
	case domain.ModePaper:
	case domain.ModeLive:
		if sink == nil {
			return nil, fmt.Errorf("execution sink is required in live mode")
		}
		if retrier == nil {
			return nil, fmt.Errorf("retrier is required in live mode")
		}
	default:
		return nil, fmt.Errorf("unknown trading mode %q", cfg.Mode)
	}
	if cfg.CommissionRate < 0 {
		return nil, fmt.Errorf("commission rate cannot be negative")
	}
	if cfg.CommissionRate == 0 {
		cfg.CommissionRate = 0.0006
	}
	if cfg.PaperBalance <= 0 {
		cfg.PaperBalance = 10000
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = 30 * time.Second
	}
	if cfg.FillPoll <= 0 {
		cfg.FillPoll = time.Second
	}

	return &Tracker{
		cfg:          cfg,
		logger:       logger,
		sink:         sink,
		retrier:      retrier,
		active:       make(map[string]*domain.Order),
		completed:    make(map[string]*domain.Order),
		positions:    make(map[string]*domain.Position),
		paperBalance: cfg.PaperBalance,
		results:      make(chan *domain.TradeResult, resultBuffer),
	}, nil
}

// Results returns the channel carrying realized trade outcomes. The decision
// loop is the single consumer; it drains the channel each cycle and fans the
// results out to the risk manager, analytics and repository.
func (t *Tracker) Results() <-chan *domain.TradeResult {
	return t.results
}

// PlaceMarketOrder submits (or simulates) a market order. In paper mode the
// fill is synthesized immediately at refPrice; in live mode the order goes to
// the execution sink, the tracker waits for fill confirmation bounded by the
// fill timeout, and only then attaches reduce-only stop-loss/take-profit
// orders sized at the confirmed fill quantity.
func (t *Tracker) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, refPrice, stopLoss, takeProfit float64) (*domain.Order, error) {
	if err := validateOrderParams(symbol, quantity, refPrice); err != nil {
		return nil, err
	}
	if t.cfg.Mode == domain.ModePaper {
		return t.placePaperOrder(ctx, symbol, side, domain.Market, quantity, refPrice)
	}
	return t.placeLiveMarketOrder(ctx, symbol, side, quantity, stopLoss, takeProfit)
}

// PlaceLimitOrder submits (or simulates) a limit order at price. Paper limit
// orders fill immediately at their limit price.
func (t *Tracker) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price float64) (*domain.Order, error) {
	if err := validateOrderParams(symbol, quantity, price); err != nil {
		return nil, err
	}
	if t.cfg.Mode == domain.ModePaper {
		return t.placePaperOrder(ctx, symbol, side, domain.Limit, quantity, price)
	}
	return t.placeLiveLimitOrder(ctx, symbol, side, quantity, price)
}

// CancelOrder cancels an order in the active set. Cancelling a terminal or
// unknown order id is a failed no-op, not a fatal condition.
func (t *Tracker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	t.mu.Lock()
	order, ok := t.active[orderID]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel %s: %w", orderID, ports.ErrOrderNotFound)
	}

	if t.cfg.Mode == domain.ModeLive {
		err := t.retrier.Do(ctx, "cancel_order", func(ctx context.Context) error {
			return t.sink.CancelOrder(ctx, symbol, orderID)
		})
		if err != nil {
			return fmt.Errorf("cancel %s: %w", orderID, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	order.Status = domain.StatusCancelled
	t.completeLocked(order)
	t.logger.Info(ctx, "Order cancelled", map[string]interface{}{"orderID": orderID, "symbol": symbol})
	return nil
}

// Order returns a tracked order by id from either set.
func (t *Tracker) Order(orderID string) (*domain.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o, ok := t.active[orderID]; ok {
		return o, true
	}
	o, ok := t.completed[orderID]
	return o, ok
}

// Positions returns a snapshot of open positions, optionally filtered by
// symbol (empty string returns all).
func (t *Tracker) Positions(symbol string) []*domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Trades returns a copy of the fill history.
func (t *Tracker) Trades() []*domain.Trade {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*domain.Trade(nil), t.trades...)
}

// ActiveOrderCount returns the number of non-terminal tracked orders.
func (t *Tracker) ActiveOrderCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// MarkPrice updates the current price and unrealized PnL of an open position.
func (t *Tracker) MarkPrice(symbol string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos, ok := t.positions[symbol]; ok {
		pos.MarkPrice(price)
	}
}

// PaperAccount builds an account snapshot from the simulated balance and open
// positions. Only meaningful in paper mode.
func (t *Tracker) PaperAccount() *domain.AccountSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := &domain.AccountSnapshot{
		TotalBalance:     t.paperBalance,
		AvailableBalance: t.paperBalance,
		Timestamp:        time.Now().UTC(),
	}
	for _, p := range t.positions {
		cp := *p
		snap.OpenPositions = append(snap.OpenPositions, &cp)
		snap.UnrealizedPNL += p.UnrealizedPNL
	}
	return snap
}

// completeLocked moves an order from the active set to the completed set.
// Caller holds t.mu.
func (t *Tracker) completeLocked(order *domain.Order) {
	delete(t.active, order.ID)
	t.completed[order.ID] = order
}

// applyFillLocked updates the position for a fill and returns the realized
// result when the fill reduces or closes exposure. Caller holds t.mu.
//
// Rules: a same-direction fill raises the size and re-averages the entry
// price by size weight; an opposite fill smaller than the position reduces it
// with the entry unchanged; an equal fill closes it; a larger fill closes it
// and reopens in the new direction with the residual quantity (flip), so the
// net size is always the signed sum of fills.
func (t *Tracker) applyFillLocked(trade *domain.Trade) *domain.TradeResult {
	pos, ok := t.positions[trade.Symbol]
	if !ok {
		t.positions[trade.Symbol] = &domain.Position{
			Symbol:       trade.Symbol,
			Side:         trade.Side,
			Size:         trade.Quantity,
			EntryPrice:   trade.Price,
			CurrentPrice: trade.Price,
			Timestamp:    trade.Timestamp,
		}
		return nil
	}

	if pos.Side == trade.Side {
		totalValue := pos.Size*pos.EntryPrice + trade.Quantity*trade.Price
		pos.Size += trade.Quantity
		pos.EntryPrice = totalValue / pos.Size
		pos.MarkPrice(trade.Price)
		return nil
	}

	closed := trade.Quantity
	if closed > pos.Size {
		closed = pos.Size
	}
	result := t.realizeLocked(pos, trade, closed)

	switch {
	case trade.Quantity < pos.Size:
		pos.Size -= trade.Quantity
		pos.MarkPrice(trade.Price)
	case trade.Quantity == pos.Size:
		delete(t.positions, trade.Symbol)
	default:
		// Flip: the excess opens a fresh position in the fill's direction.
		residual := trade.Quantity - pos.Size
		t.positions[trade.Symbol] = &domain.Position{
			Symbol:       trade.Symbol,
			Side:         trade.Side,
			Size:         residual,
			EntryPrice:   trade.Price,
			CurrentPrice: trade.Price,
			Timestamp:    trade.Timestamp,
		}
	}
	return result
}

// realizeLocked computes the realized outcome for the closed part of a fill.
// Commission is attributed pro-rata to the closing quantity.
func (t *Tracker) realizeLocked(pos *domain.Position, trade *domain.Trade, closedQty float64) *domain.TradeResult {
	var gross float64
	if pos.Side == domain.Buy {
		gross = (trade.Price - pos.EntryPrice) * closedQty
	} else {
		gross = (pos.EntryPrice - trade.Price) * closedQty
	}
	commission := trade.Commission
	if trade.Quantity > 0 {
		commission = trade.Commission * closedQty / trade.Quantity
	}

	return &domain.TradeResult{
		ID:         ulid.Make().String(),
		Symbol:     trade.Symbol,
		Side:       pos.Side,
		Quantity:   closedQty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  trade.Price,
		PNL:        gross - commission,
		Commission: commission,
		EntryTime:  pos.Timestamp,
		ExitTime:   trade.Timestamp,
	}
}

// publishResult delivers a realized result without blocking the fill path.
func (t *Tracker) publishResult(ctx context.Context, result *domain.TradeResult) {
	if result == nil {
		return
	}
	select {
	case t.results <- result:
	default:
		t.logger.Warn(ctx, "Trade result channel full, dropping result", map[string]interface{}{"resultID": result.ID})
	}
}

func validateOrderParams(symbol string, quantity, price float64) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required: %w", ports.ErrInvalidRequest)
	}
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %f: %w", quantity, ports.ErrInvalidRequest)
	}
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %f: %w", price, ports.ErrInvalidRequest)
	}
	return nil
}

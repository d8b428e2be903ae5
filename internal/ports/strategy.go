package ports

import (
	"context"

	"smcbot/internal/domain"
)

// Strategy is the capability set a trading strategy implements. New strategies
// satisfy the same interface; there is no inheritance hierarchy.
type Strategy interface {
	// RequiredDataPoints returns the minimum candle history the strategy needs.
	RequiredDataPoints() int

	// Update ingests the latest candle series and ticker and recomputes the
	// strategy's internal state. Insufficient or degenerate data is absorbed:
	// Update only returns an error for contract violations (e.g. an unordered
	// series), never for "not enough history yet".
	Update(ctx context.Context, candles []*domain.Candle, ticker *domain.Ticker) error

	// GenerateSignal returns the current directional signal, or nil when no
	// decision is warranted. "No signal" is a normal outcome, not an error.
	GenerateSignal(ctx context.Context) *domain.TradingSignal
}

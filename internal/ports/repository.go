package ports

import (
	"context"

	"smcbot/internal/domain"
)

// TradeRepository persists trade fills and realized trade results.
type TradeRepository interface {
	// CreateTrade saves a fill record.
	CreateTrade(ctx context.Context, trade *domain.Trade) error
	// CreateResult saves a realized round-trip result.
	CreateResult(ctx context.Context, result *domain.TradeResult) error
	// RecentResults retrieves the most recent realized results for a symbol,
	// newest first, up to limit. Drives the Kelly sizing lookback.
	RecentResults(ctx context.Context, symbol string, limit int) ([]*domain.TradeResult, error)
	// CountTodayBySymbol counts fills executed today for the daily trade limit.
	CountTodayBySymbol(ctx context.Context, symbol string) (int, error)
}

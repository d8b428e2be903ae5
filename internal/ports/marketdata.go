package ports

import (
	"context"

	"smcbot/internal/domain"
)

// MarketDataSource supplies candles, tickers and account state from the
// exchange. All calls are fallible and rate-limited; callers route them
// through the bounded-retry wrapper.
type MarketDataSource interface {
	// GetCandles retrieves up to limit (max 1000) candles for the symbol and
	// interval, ascending by timestamp. A response failing the OHLC sanity
	// checks is rejected wholesale, never partially consumed.
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)

	// GetTicker retrieves the current top-of-book snapshot for a symbol.
	GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error)

	// GetBalance retrieves the account balance for the quote asset.
	GetBalance(ctx context.Context, asset string) (total, available float64, err error)

	// GetPositions retrieves open positions, optionally filtered by symbol
	// (empty string returns all).
	GetPositions(ctx context.Context, symbol string) ([]*domain.Position, error)
}

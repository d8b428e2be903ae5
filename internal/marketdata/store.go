package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
	"smcbot/internal/retry"
)

// Config holds configuration for the candle store.
type Config struct {
	Freshness time.Duration // how long a cached fetch stays fresh, e.g. 30s
}

// cacheKey identifies one cached candle fetch.
type cacheKey struct {
	symbol   string
	interval string
	limit    int
}

type cacheEntry struct {
	candles   []*domain.Candle
	fetchedAt time.Time
}

// Store caches candle fetches per (symbol, interval, limit) so multiple
// consumers within one decision cycle share a single exchange round trip.
// Every fetch is validated wholesale before it replaces the cached series; a
// response failing the OHLC or ordering checks never reaches consumers.
type Store struct {
	cfg    Config
	source ports.MarketDataSource
	logger ports.Logger

	retrier *retry.Retrier

	mu    sync.RWMutex
	cache map[cacheKey]*cacheEntry
}

// NewStore creates a validated candle cache in front of a market data source.
func NewStore(cfg Config, source ports.MarketDataSource, retrier *retry.Retrier, logger ports.Logger) (*Store, error) {
	if source == nil {
		return nil, fmt.Errorf("market data source is required for candle store")
	}
	if retrier == nil {
		return nil, fmt.Errorf("retrier is required for candle store")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for candle store")
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = 30 * time.Second
	}
	return &Store{
		cfg:     cfg,
		source:  source,
		logger:  logger,
		retrier: retrier,
		cache:   make(map[cacheKey]*cacheEntry),
	}, nil
}

// GetCandles returns the candle series for the symbol and interval, serving a
// cached copy while it is fresh and refetching once it expires. An empty
// exchange response yields ErrNoData so callers can distinguish a quiet
// market from a failing one.
func (s *Store) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("symbol and interval are required: %w", ports.ErrInvalidRequest)
	}
	if limit <= 0 || limit > 1000 {
		return nil, fmt.Errorf("limit must be in (0,1000], got %d: %w", limit, ports.ErrInvalidRequest)
	}

	key := cacheKey{symbol: symbol, interval: interval, limit: limit}
	if candles := s.cached(key); candles != nil {
		return candles, nil
	}

	var fetched []*domain.Candle
	err := s.retrier.Do(ctx, "get_candles", func(ctx context.Context) error {
		var fetchErr error
		fetched, fetchErr = s.source.GetCandles(ctx, symbol, interval, limit)
		return fetchErr
	})
	if err != nil {
		// A stale cache beats no data when the exchange is briefly unreachable.
		if stale := s.staleCached(key); stale != nil {
			s.logger.Warn(ctx, "Serving stale candles after fetch failure", map[string]interface{}{
				"symbol":   symbol,
				"interval": interval,
				"error":    err.Error(),
			})
			return stale, nil
		}
		return nil, fmt.Errorf("fetch candles %s %s: %w", symbol, interval, err)
	}
	if len(fetched) == 0 {
		return nil, fmt.Errorf("candles %s %s: %w", symbol, interval, ports.ErrNoData)
	}

	if err := domain.ValidateSeries(fetched); err != nil {
		return nil, fmt.Errorf("candles %s %s: %w: %w", symbol, interval, ports.ErrMalformedData, err)
	}

	s.mu.Lock()
	s.cache[key] = &cacheEntry{candles: fetched, fetchedAt: time.Now()}
	s.mu.Unlock()

	s.logger.Debug(ctx, "Candles refreshed", map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"count":    len(fetched),
	})
	return fetched, nil
}

// GetTicker proxies the ticker fetch through the retrier. Tickers are cheap
// and time-sensitive, so they are never cached.
func (s *Store) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	var ticker *domain.Ticker
	err := s.retrier.Do(ctx, "get_ticker", func(ctx context.Context) error {
		var fetchErr error
		ticker, fetchErr = s.source.GetTicker(ctx, symbol)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch ticker %s: %w", symbol, err)
	}
	if ticker == nil || ticker.LastPrice <= 0 {
		return nil, fmt.Errorf("ticker %s: %w", symbol, ports.ErrMalformedData)
	}
	return ticker, nil
}

// Invalidate drops the cached series for a symbol and interval, forcing the
// next read to hit the exchange.
func (s *Store) Invalidate(symbol, interval string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.cache {
		if key.symbol == symbol && key.interval == interval {
			delete(s.cache, key)
		}
	}
}

// cached returns the series for key if it is still fresh.
func (s *Store) cached(key cacheKey) []*domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || time.Since(entry.fetchedAt) > s.cfg.Freshness {
		return nil
	}
	return entry.candles
}

// staleCached returns the series for key regardless of age.
func (s *Store) staleCached(key cacheKey) []*domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.cache[key]; ok {
		return entry.candles
	}
	return nil
}

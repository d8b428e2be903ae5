package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
)

// Update is one polled market snapshot fanned out to feed subscribers.
type Update struct {
	Symbol   string
	Interval string
	Candles  []*domain.Candle
	Ticker   *domain.Ticker
}

// FeedConfig holds configuration for the polling feed.
type FeedConfig struct {
	Symbol       string
	Interval     string
	CandleLimit  int
	PollInterval time.Duration // e.g. 30s
}

// Feed polls the candle store on a fixed interval and fans the latest snapshot
// out to subscriber channels. Subscribers that fall behind miss snapshots
// rather than blocking the poll loop; each delivered update is complete, so a
// missed one is superseded by the next.
type Feed struct {
	cfg    FeedConfig
	store  *Store
	logger ports.Logger

	mu   sync.Mutex
	subs []chan Update

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewFeed creates a polling feed on top of a candle store.
func NewFeed(cfg FeedConfig, store *Store, logger ports.Logger) (*Feed, error) {
	if store == nil {
		return nil, fmt.Errorf("candle store is required for feed")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for feed")
	}
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("symbol and interval are required for feed")
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 200
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Feed{
		cfg:    cfg,
		store:  store,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Subscribe returns a channel receiving market updates. Must be called before
// Start.
func (f *Feed) Subscribe() <-chan Update {
	ch := make(chan Update, 1)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// Start launches the poll loop. It polls immediately, then on every tick,
// until Stop is called or the context is canceled.
func (f *Feed) Start(ctx context.Context) {
	go func() {
		defer close(f.done)

		ticker := time.NewTicker(f.cfg.PollInterval)
		defer ticker.Stop()

		f.poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.stop:
				return
			case <-ticker.C:
				f.poll(ctx)
			}
		}
	}()
}

// Stop shuts down the poll loop and waits for it to exit. Idempotent.
func (f *Feed) Stop() {
	f.once.Do(func() { close(f.stop) })
	<-f.done
}

// poll fetches one snapshot and fans it out. Fetch failures are absorbed
// here; the next tick retries from scratch.
func (f *Feed) poll(ctx context.Context) {
	candles, err := f.store.GetCandles(ctx, f.cfg.Symbol, f.cfg.Interval, f.cfg.CandleLimit)
	if err != nil {
		if errors.Is(err, ports.ErrNoData) {
			f.logger.Debug(ctx, "No candles available yet", map[string]interface{}{"symbol": f.cfg.Symbol})
		} else {
			f.logger.Error(ctx, err, "Candle poll failed", map[string]interface{}{"symbol": f.cfg.Symbol})
		}
		return
	}

	ticker, err := f.store.GetTicker(ctx, f.cfg.Symbol)
	if err != nil {
		f.logger.Error(ctx, err, "Ticker poll failed", map[string]interface{}{"symbol": f.cfg.Symbol})
		return
	}

	update := Update{
		Symbol:   f.cfg.Symbol,
		Interval: f.cfg.Interval,
		Candles:  candles,
		Ticker:   ticker,
	}

	f.mu.Lock()
	subs := append([]chan Update(nil), f.subs...)
	f.mu.Unlock()

	for _, ch := range subs {
		// Replace a pending update the subscriber has not consumed yet.
		select {
		case ch <- update:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- update:
			default:
			}
		}
	}
}

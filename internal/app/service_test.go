package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/analytics"
	"smcbot/internal/domain"
	"smcbot/internal/marketdata"
	"smcbot/internal/orders"
	"smcbot/internal/retry"
	"smcbot/internal/risk"
)

// --- Mocks ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockSource struct {
	candles   []*domain.Candle
	ticker    *domain.Ticker
	total     float64
	available float64
	positions []*domain.Position
}

func (m *mockSource) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	return m.candles, nil
}

func (m *mockSource) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	return m.ticker, nil
}

func (m *mockSource) GetBalance(ctx context.Context, asset string) (float64, float64, error) {
	return m.total, m.available, nil
}

func (m *mockSource) GetPositions(ctx context.Context, symbol string) ([]*domain.Position, error) {
	return m.positions, nil
}

type mockStrategy struct {
	signal     *domain.TradingSignal
	updates    int
	updateErr  error
	lastTicker *domain.Ticker
}

func (m *mockStrategy) RequiredDataPoints() int { return 10 }

func (m *mockStrategy) Update(ctx context.Context, candles []*domain.Candle, ticker *domain.Ticker) error {
	m.updates++
	m.lastTicker = ticker
	return m.updateErr
}

func (m *mockStrategy) GenerateSignal(ctx context.Context) *domain.TradingSignal {
	return m.signal
}

type mockRepo struct {
	trades     []*domain.Trade
	results    []*domain.TradeResult
	recent     []*domain.TradeResult
	todayCount int
}

func (m *mockRepo) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	m.trades = append(m.trades, trade)
	return nil
}

func (m *mockRepo) CreateResult(ctx context.Context, result *domain.TradeResult) error {
	m.results = append(m.results, result)
	return nil
}

func (m *mockRepo) RecentResults(ctx context.Context, symbol string, limit int) ([]*domain.TradeResult, error) {
	return m.recent, nil
}

func (m *mockRepo) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	return m.todayCount, nil
}

// --- Fixtures ---

func testSignal() *domain.TradingSignal {
	return &domain.TradingSignal{
		Direction:  domain.Long,
		Symbol:     "BTCUSDT",
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 105,
		Confidence: 80,
		Reason:     "Bullish BOS + Bullish OB",
		Timestamp:  time.Now().UTC(),
	}
}

func testUpdate() marketdata.Update {
	return marketdata.Update{
		Symbol:   "BTCUSDT",
		Interval: "15m",
		Ticker:   &domain.Ticker{Symbol: "BTCUSDT", LastPrice: 100, Timestamp: time.Now()},
	}
}

type serviceDeps struct {
	source   *mockSource
	strategy *mockStrategy
	repo     *mockRepo
	tracker  *orders.Tracker
	perf     *analytics.Accumulator
}

func newTestService(t *testing.T, cfg Config, strat *mockStrategy) (*TradingService, *serviceDeps) {
	t.Helper()
	logger := &mockLogger{}

	source := &mockSource{ticker: testUpdate().Ticker}
	retrier, err := retry.New(retry.Config{MaxAttempts: 1}, logger)
	require.NoError(t, err)
	store, err := marketdata.NewStore(marketdata.Config{}, source, retrier, logger)
	require.NoError(t, err)
	feed, err := marketdata.NewFeed(marketdata.FeedConfig{Symbol: "BTCUSDT", Interval: "15m"}, store, logger)
	require.NoError(t, err)

	riskMgr, err := risk.NewManager(risk.DefaultConfig(), logger)
	require.NoError(t, err)
	tracker, err := orders.NewTracker(orders.Config{Mode: domain.ModePaper}, logger, nil, nil)
	require.NoError(t, err)
	perf, err := analytics.NewAccumulator(10000)
	require.NoError(t, err)
	repo := &mockRepo{}

	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.Interval == "" {
		cfg.Interval = "15m"
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModePaper
	}
	if cfg.MaxTradesPerDay == 0 {
		cfg.MaxTradesPerDay = 10
	}

	svc, err := NewTradingService(cfg, logger, source, feed, strat, riskMgr, tracker, perf, repo)
	require.NoError(t, err)
	return svc, &serviceDeps{source: source, strategy: strat, repo: repo, tracker: tracker, perf: perf}
}

// --- Tests ---

func TestNewTradingServiceValidation(t *testing.T) {
	logger := &mockLogger{}
	_, err := NewTradingService(Config{}, logger, nil, nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required dependencies")
}

func TestRunCycleExecutesTrade(t *testing.T) {
	strat := &mockStrategy{signal: testSignal()}
	svc, deps := newTestService(t, Config{}, strat)
	ctx := context.Background()

	require.NoError(t, svc.runCycle(ctx, testUpdate()))

	assert.Equal(t, 1, strat.updates)
	positions := deps.tracker.Positions("BTCUSDT")
	require.Len(t, positions, 1)
	assert.Equal(t, domain.Buy, positions[0].Side)

	// Default risk config: 1% of 10000 over a stop distance of 2 -> qty 50,
	// then capped by 5x leverage to 10000*5/100 = 500. 50 < 500, so 50.
	assert.InDelta(t, 50.0, positions[0].Size, 1e-9)

	svc.mu.Lock()
	assert.Equal(t, 1, svc.tradesToday)
	svc.mu.Unlock()

	require.Len(t, deps.repo.trades, 1, "fill persisted")
	assert.Equal(t, 50.0, deps.repo.trades[0].Quantity)
}

func TestRunCycleNoSignal(t *testing.T) {
	strat := &mockStrategy{}
	svc, deps := newTestService(t, Config{}, strat)

	require.NoError(t, svc.runCycle(context.Background(), testUpdate()))
	assert.Empty(t, deps.tracker.Positions("BTCUSDT"))
	assert.Empty(t, deps.repo.trades)
}

func TestRunCycleDailyLimit(t *testing.T) {
	strat := &mockStrategy{signal: testSignal()}
	svc, deps := newTestService(t, Config{MaxTradesPerDay: 1}, strat)
	ctx := context.Background()

	require.NoError(t, svc.runCycle(ctx, testUpdate()))
	require.Len(t, deps.repo.trades, 1)

	// Second signal in the same day is skipped.
	require.NoError(t, svc.runCycle(ctx, testUpdate()))
	assert.Len(t, deps.repo.trades, 1)
}

func TestCanTradeCooldown(t *testing.T) {
	strat := &mockStrategy{signal: testSignal()}
	svc, _ := newTestService(t, Config{SignalCooldown: 5 * time.Minute}, strat)

	now := time.Now().UTC()
	svc.mu.Lock()
	svc.tradesDay = todayUTC()
	svc.lastSignalAt = now.Add(-time.Minute)
	svc.mu.Unlock()

	ok, reason := svc.canTrade(now)
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown")

	ok, _ = svc.canTrade(now.Add(5 * time.Minute))
	assert.True(t, ok)
}

func TestCanTradeTradingHours(t *testing.T) {
	strat := &mockStrategy{signal: testSignal()}
	svc, _ := newTestService(t, Config{TradingHourStart: 8, TradingHourEnd: 17}, strat)

	svc.mu.Lock()
	svc.tradesDay = todayUTC()
	svc.mu.Unlock()

	day := todayUTC()
	ok, reason := svc.canTrade(day.Add(3 * time.Hour))
	assert.False(t, ok)
	assert.Contains(t, reason, "outside trading hours")

	ok, _ = svc.canTrade(day.Add(12 * time.Hour))
	assert.True(t, ok)

	ok, _ = svc.canTrade(day.Add(17 * time.Hour))
	assert.False(t, ok, "end hour is exclusive")
}

func TestCanTradeDayRollover(t *testing.T) {
	strat := &mockStrategy{signal: testSignal()}
	svc, _ := newTestService(t, Config{MaxTradesPerDay: 1}, strat)

	svc.mu.Lock()
	svc.tradesToday = 1
	svc.tradesDay = todayUTC().AddDate(0, 0, -1) // counter belongs to yesterday
	svc.mu.Unlock()

	ok, _ := svc.canTrade(time.Now().UTC())
	assert.True(t, ok, "a new UTC day resets the counter")

	svc.mu.Lock()
	assert.Zero(t, svc.tradesToday)
	svc.mu.Unlock()
}

func TestDrainResultsFansOut(t *testing.T) {
	strat := &mockStrategy{}
	svc, deps := newTestService(t, Config{}, strat)
	ctx := context.Background()

	// A paper round trip emits one realized result.
	_, err := deps.tracker.PlaceMarketOrder(ctx, "BTCUSDT", domain.Buy, 1, 100, 0, 0)
	require.NoError(t, err)
	_, err = deps.tracker.PlaceMarketOrder(ctx, "BTCUSDT", domain.Sell, 1, 110, 0, 0)
	require.NoError(t, err)

	svc.drainResults(ctx)

	require.Len(t, deps.repo.results, 1)
	assert.Greater(t, deps.repo.results[0].PNL, 0.0)
	assert.Equal(t, 1, deps.perf.Report().TotalTrades)
}

func TestSyncInitialState(t *testing.T) {
	strat := &mockStrategy{}
	svc, deps := newTestService(t, Config{}, strat)
	deps.repo.todayCount = 4
	deps.repo.recent = []*domain.TradeResult{{ID: "b", PNL: 5}, {ID: "a", PNL: -3}}

	require.NoError(t, svc.syncInitialState(context.Background()))

	svc.mu.Lock()
	assert.Equal(t, 4, svc.tradesToday)
	svc.mu.Unlock()
}

func TestRunCycleStrategyError(t *testing.T) {
	strat := &mockStrategy{updateErr: assert.AnError}
	svc, deps := newTestService(t, Config{}, strat)

	err := svc.runCycle(context.Background(), testUpdate())
	require.Error(t, err)
	assert.Empty(t, deps.repo.trades)
}

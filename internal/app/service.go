package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"smcbot/internal/analytics"
	"smcbot/internal/domain"
	"smcbot/internal/marketdata"
	"smcbot/internal/orders"
	"smcbot/internal/ports"
	"smcbot/internal/risk"
)

// Config holds the service-level trading parameters.
type Config struct {
	Symbol          string
	Interval        string             // e.g. "15m"
	QuoteAsset      string             // balance asset in live mode, e.g. "USDT"
	Mode            domain.TradingMode
	MaxTradesPerDay int           // e.g. 10
	SignalCooldown  time.Duration // minimum gap between acted-on signals, e.g. 5m
	StatusInterval  time.Duration // cadence of the performance status log, e.g. 1h

	// Trading hours gate in UTC. Disabled when both are zero.
	TradingHourStart int
	TradingHourEnd   int
}

// TradingService runs the decision loop: each market update flows through the
// strategy, the risk sizer and the risk gate, then (at most) one order. Steps
// run strictly in sequence; there is no concurrent decision making, so each
// cycle sees a consistent snapshot of the world.
type TradingService struct {
	cfg       Config
	logger    ports.Logger
	source    ports.MarketDataSource
	feed      *marketdata.Feed
	strategy  ports.Strategy
	riskMgr   *risk.Manager
	tracker   *orders.Tracker
	perf      *analytics.Accumulator
	tradeRepo ports.TradeRepository

	mu           sync.Mutex
	tradesToday  int
	tradesDay    time.Time // UTC day the counter belongs to
	lastSignalAt time.Time
}

// NewTradingService wires the decision loop from its collaborators.
func NewTradingService(
	cfg Config,
	logger ports.Logger,
	source ports.MarketDataSource,
	feed *marketdata.Feed,
	strat ports.Strategy,
	riskMgr *risk.Manager,
	tracker *orders.Tracker,
	perf *analytics.Accumulator,
	tradeRepo ports.TradeRepository,
) (*TradingService, error) {
	if logger == nil || source == nil || feed == nil || strat == nil || riskMgr == nil || tracker == nil || perf == nil || tradeRepo == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("symbol and interval are required")
	}
	if cfg.MaxTradesPerDay <= 0 {
		return nil, fmt.Errorf("max trades per day must be positive")
	}
	if cfg.SignalCooldown < 0 {
		return nil, fmt.Errorf("signal cooldown cannot be negative")
	}
	if cfg.TradingHourStart < 0 || cfg.TradingHourStart > 23 || cfg.TradingHourEnd < 0 || cfg.TradingHourEnd > 24 {
		return nil, fmt.Errorf("trading hours must be within a UTC day")
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = time.Hour
	}
	return &TradingService{
		cfg:       cfg,
		logger:    logger,
		source:    source,
		feed:      feed,
		strategy:  strat,
		riskMgr:   riskMgr,
		tracker:   tracker,
		perf:      perf,
		tradeRepo: tradeRepo,
	}, nil
}

// Start runs the service until the context is canceled or a shutdown signal
// arrives. Per-cycle failures are logged and absorbed; the loop only exits on
// shutdown.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service", map[string]interface{}{
		"symbol":   s.cfg.Symbol,
		"interval": s.cfg.Interval,
		"mode":     string(s.cfg.Mode),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.syncInitialState(ctx); err != nil {
		return err
	}

	updates := s.feed.Subscribe()
	s.feed.Start(ctx)
	defer s.feed.Stop()

	statusTicker := time.NewTicker(s.cfg.StatusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Trading service stopped")
			return nil
		case <-statusTicker.C:
			s.logger.Info(ctx, "Performance status", s.perf.Fields())
		case update := <-updates:
			s.drainResults(ctx)
			if err := s.runCycle(ctx, update); err != nil {
				s.logger.Error(ctx, err, "Decision cycle failed", map[string]interface{}{"symbol": update.Symbol})
			}
		}
	}
}

// syncInitialState restores the daily trade counter and the Kelly lookback
// from the repository so a restart mid-day keeps its limits.
func (s *TradingService) syncInitialState(ctx context.Context) error {
	count, err := s.tradeRepo.CountTodayBySymbol(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("count today's trades: %w", err)
	}
	s.mu.Lock()
	s.tradesToday = count
	s.tradesDay = todayUTC()
	s.mu.Unlock()

	results, err := s.tradeRepo.RecentResults(ctx, s.cfg.Symbol, 100)
	if err != nil {
		return fmt.Errorf("load recent trade results: %w", err)
	}
	// RecentResults returns newest first; the sizer wants oldest first.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	s.riskMgr.SeedTradeResults(results)

	s.logger.Info(ctx, "Initial state synchronized", map[string]interface{}{
		"tradesToday":   count,
		"seededResults": len(results),
	})
	return nil
}

// runCycle makes one trading decision from one market update.
func (s *TradingService) runCycle(ctx context.Context, update marketdata.Update) error {
	s.tracker.MarkPrice(update.Symbol, update.Ticker.LastPrice)

	if err := s.strategy.Update(ctx, update.Candles, update.Ticker); err != nil {
		return fmt.Errorf("strategy update: %w", err)
	}

	signal := s.strategy.GenerateSignal(ctx)
	if signal == nil {
		return nil
	}
	s.logger.Info(ctx, "Signal generated", map[string]interface{}{
		"direction":  string(signal.Direction),
		"confidence": signal.Confidence,
		"reason":     signal.Reason,
	})

	if ok, reason := s.canTrade(time.Now().UTC()); !ok {
		s.logger.Info(ctx, "Signal skipped", map[string]interface{}{"reason": reason})
		return nil
	}

	// One snapshot feeds sizing and validation so both see the same balances.
	account, err := s.accountSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("account snapshot: %w", err)
	}

	quantity, decision, err := s.riskMgr.CalculatePositionSize(ctx, signal, account)
	if err != nil {
		return fmt.Errorf("position sizing: %w", err)
	}
	if quantity <= 0 {
		s.logger.Info(ctx, "Signal not sized", map[string]interface{}{"reason": decision.Reason})
		return nil
	}

	if ok, reason := s.riskMgr.ValidateRiskBeforeTrade(ctx, quantity, signal, account); !ok {
		s.logger.Info(ctx, "Trade vetoed by risk gate", map[string]interface{}{"reason": reason})
		return nil
	}

	order, err := s.tracker.PlaceMarketOrder(ctx, signal.Symbol, signal.Direction.Side(), quantity, signal.EntryPrice, signal.StopLoss, signal.TakeProfit)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	s.mu.Lock()
	s.tradesToday++
	s.lastSignalAt = time.Now().UTC()
	tradesToday := s.tradesToday
	s.mu.Unlock()

	s.logger.Info(ctx, "Trade executed", map[string]interface{}{
		"orderID":     order.ID,
		"direction":   string(signal.Direction),
		"quantity":    quantity,
		"method":      decision.Method,
		"riskPct":     decision.RiskPct,
		"tradesToday": tradesToday,
	})

	s.persistFills(ctx, order.ID)
	return nil
}

// canTrade applies the account-independent gates: daily limit (with UTC day
// rollover), signal cooldown and the trading-hours window.
func (s *TradingService) canTrade(now time.Time) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if day := todayUTC(); !day.Equal(s.tradesDay) {
		s.tradesDay = day
		s.tradesToday = 0
	}
	if s.tradesToday >= s.cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("daily trade limit reached (%d/%d)", s.tradesToday, s.cfg.MaxTradesPerDay)
	}

	if s.cfg.SignalCooldown > 0 && !s.lastSignalAt.IsZero() {
		if since := now.Sub(s.lastSignalAt); since < s.cfg.SignalCooldown {
			return false, fmt.Sprintf("signal cooldown active (%s remaining)", (s.cfg.SignalCooldown - since).Round(time.Second))
		}
	}

	if s.cfg.TradingHourStart != 0 || s.cfg.TradingHourEnd != 0 {
		hour := now.Hour()
		if hour < s.cfg.TradingHourStart || hour >= s.cfg.TradingHourEnd {
			return false, fmt.Sprintf("outside trading hours (%02d:00-%02d:00 UTC)", s.cfg.TradingHourStart, s.cfg.TradingHourEnd)
		}
	}

	return true, ""
}

// accountSnapshot fetches the account view for this cycle: the simulated
// ledger in paper mode, the exchange in live mode.
func (s *TradingService) accountSnapshot(ctx context.Context) (*domain.AccountSnapshot, error) {
	if s.cfg.Mode == domain.ModePaper {
		return s.tracker.PaperAccount(), nil
	}

	total, available, err := s.source.GetBalance(ctx, s.cfg.QuoteAsset)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	positions, err := s.source.GetPositions(ctx, s.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	snap := &domain.AccountSnapshot{
		TotalBalance:     total,
		AvailableBalance: available,
		OpenPositions:    positions,
		Timestamp:        time.Now().UTC(),
	}
	for _, p := range positions {
		snap.UnrealizedPNL += p.UnrealizedPNL
	}
	return snap, nil
}

// drainResults consumes realized trade outcomes accumulated since the last
// cycle and fans them out to the sizer, analytics and the repository.
func (s *TradingService) drainResults(ctx context.Context) {
	for {
		select {
		case result := <-s.tracker.Results():
			s.riskMgr.AddTradeResult(result)
			s.perf.AddResult(result)
			if err := s.tradeRepo.CreateResult(ctx, result); err != nil {
				s.logger.Error(ctx, err, "Failed to persist trade result", map[string]interface{}{"resultID": result.ID})
			}
			s.logger.Info(ctx, "Trade closed", map[string]interface{}{
				"resultID": result.ID,
				"pnl":      result.PNL,
				"win":      result.IsWin(),
			})
		default:
			return
		}
	}
}

// persistFills saves the fills belonging to an order. Persistence failures
// are logged, not fatal: the in-memory state is authoritative for the session.
func (s *TradingService) persistFills(ctx context.Context, orderID string) {
	for _, trade := range s.tracker.Trades() {
		if trade.OrderID != orderID {
			continue
		}
		if err := s.tradeRepo.CreateTrade(ctx, trade); err != nil {
			s.logger.Error(ctx, err, "Failed to persist trade fill", map[string]interface{}{"tradeID": trade.ID})
		}
	}
}

func todayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

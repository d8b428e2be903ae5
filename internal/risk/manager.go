package risk

import (
	"context"
	"fmt"
	"math"
	"sync"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
)

// Estimated risk fraction per already-open position when computing aggregate
// portfolio risk; open positions do not carry their own stop distance here.
const estimatedPositionRiskPct = 0.02

// Config holds configuration for risk management.
type Config struct {
	MaxRiskPerTradePct  float64 // max % of balance risked on one trade, e.g. 1.0
	MaxPortfolioRiskPct float64 // max aggregate % of balance at risk, e.g. 5.0
	MaxPositions        int     // max concurrent open positions, e.g. 3
	MaxDrawdownPct      float64 // max drawdown from peak balance before halting, e.g. 10.0
	MinAccountBalance   float64 // minimum balance required to trade, e.g. 100
	MaxLeverage         float64 // notional cap as multiple of balance, e.g. 5.0
	MinRiskReward       float64 // minimum reward:risk ratio, e.g. 2.0
	MinQuantity         float64 // minimum tradable quantity, e.g. 0.001

	// Kelly criterion sizing (opt-in, falls back to fixed-fractional when the
	// trade history is too short or one-sided).
	UseKelly         bool
	KellyLookback    int     // closed trades considered, e.g. 20
	MaxKellyFraction float64 // clamp on f*, e.g. 0.25
}

// DefaultConfig returns the standard risk parameter set.
func DefaultConfig() Config {
	return Config{
		MaxRiskPerTradePct:  1.0,
		MaxPortfolioRiskPct: 5.0,
		MaxPositions:        3,
		MaxDrawdownPct:      10.0,
		MinAccountBalance:   100,
		MaxLeverage:         5.0,
		MinRiskReward:       2.0,
		MinQuantity:         0.001,
		KellyLookback:       20,
		MaxKellyFraction:    0.25,
	}
}

// Decision is the outcome of sizing one signal. Ephemeral, produced once per
// signal. A zero PositionSize carries the reason in Reason.
type Decision struct {
	PositionSize     float64
	PositionValue    float64
	RiskAmount       float64
	RiskPct          float64
	PositionValuePct float64
	Method           string // "fixed" or "kelly"
	Reason           string
}

// Manager sizes positions under the risk budget and vetoes trades that breach
// account-level limits.
type Manager struct {
	cfg    Config
	logger ports.Logger

	mu          sync.Mutex
	results     []*domain.TradeResult // recent closed trades, newest last
	peakBalance float64
}

// NewManager creates a new risk manager instance.
func NewManager(cfg Config, logger ports.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for risk manager")
	}
	if cfg.MaxRiskPerTradePct <= 0 || cfg.MaxRiskPerTradePct > 100 {
		return nil, fmt.Errorf("max risk per trade must be in (0,100]")
	}
	if cfg.MaxLeverage <= 0 {
		return nil, fmt.Errorf("max leverage must be positive")
	}
	if cfg.MaxPositions <= 0 {
		return nil, fmt.Errorf("max positions must be positive")
	}
	if cfg.UseKelly && cfg.KellyLookback <= 0 {
		return nil, fmt.Errorf("kelly lookback must be positive when kelly sizing is enabled")
	}
	return &Manager{cfg: cfg, logger: logger}, nil
}

// CalculatePositionSize converts a signal plus account snapshot into a bounded
// position size. A signal with invalid geometry is a precondition violation
// from upstream and fails loudly; account-level problems (non-positive
// balances, degenerate stop distance) yield a zero quantity with the reason in
// the decision.
func (m *Manager) CalculatePositionSize(ctx context.Context, signal *domain.TradingSignal, account *domain.AccountSnapshot) (float64, *Decision, error) {
	if err := signal.Validate(); err != nil {
		return 0, nil, fmt.Errorf("invalid signal reached risk sizer: %w", err)
	}

	if account == nil || account.AvailableBalance <= 0 || account.TotalBalance <= 0 {
		return 0, &Decision{Reason: "non-positive account balance"}, nil
	}

	riskPerUnit := math.Abs(signal.EntryPrice - signal.StopLoss)
	if riskPerUnit <= 0 {
		return 0, &Decision{Reason: "zero stop distance"}, nil
	}

	balance := account.AvailableBalance
	var quantity float64
	method := "fixed"
	if m.cfg.UseKelly {
		if kellyQty, ok := m.kellySize(balance, riskPerUnit); ok {
			quantity = kellyQty
			method = "kelly"
		} else {
			quantity = m.fixedRiskSize(balance, riskPerUnit)
		}
	} else {
		quantity = m.fixedRiskSize(balance, riskPerUnit)
	}

	// Clamps, in order: minimum tradable quantity, then the leverage cap on
	// position notional.
	if quantity < m.cfg.MinQuantity {
		quantity = m.cfg.MinQuantity
	}
	maxNotional := balance * m.cfg.MaxLeverage
	if maxQty := maxNotional / signal.EntryPrice; quantity > maxQty {
		quantity = maxQty
	}

	riskAmount := quantity * riskPerUnit
	positionValue := quantity * signal.EntryPrice
	decision := &Decision{
		PositionSize:     quantity,
		PositionValue:    positionValue,
		RiskAmount:       riskAmount,
		RiskPct:          riskAmount / balance * 100,
		PositionValuePct: positionValue / balance * 100,
		Method:           method,
	}

	m.logger.Info(ctx, "Position sized", map[string]interface{}{
		"quantity":   quantity,
		"riskAmount": riskAmount,
		"riskPct":    decision.RiskPct,
		"method":     method,
	})
	return quantity, decision, nil
}

// fixedRiskSize risks a fixed fraction of the balance per trade.
func (m *Manager) fixedRiskSize(balance, riskPerUnit float64) float64 {
	riskAmount := balance * (m.cfg.MaxRiskPerTradePct / 100)
	return riskAmount / riskPerUnit
}

// kellySize derives a Kelly fraction from recent trade history. Returns false
// when the history is shorter than the lookback or contains no wins or no
// losses, in which case the caller falls back to fixed-fractional sizing.
func (m *Manager) kellySize(balance, riskPerUnit float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.results) < m.cfg.KellyLookback {
		return 0, false
	}
	recent := m.results[len(m.results)-m.cfg.KellyLookback:]

	var winCount, lossCount int
	var winSum, lossSum float64
	for _, r := range recent {
		if r.PNL > 0 {
			winCount++
			winSum += r.PNL
		} else if r.PNL < 0 {
			lossCount++
			lossSum += -r.PNL
		}
	}
	if winCount == 0 || lossCount == 0 {
		return 0, false
	}

	winRate := float64(winCount) / float64(len(recent))
	avgWin := winSum / float64(winCount)
	avgLoss := lossSum / float64(lossCount)

	// Kelly formula: f* = (b*p - q) / b where b = avgWin/avgLoss, q = 1-p.
	b := avgWin / avgLoss
	fraction := (b*winRate - (1 - winRate)) / b
	fraction = math.Max(0, math.Min(fraction, m.cfg.MaxKellyFraction))

	riskAmount := balance * fraction
	return riskAmount / riskPerUnit, true
}

// ValidateRiskBeforeTrade is the second, independent gate on an already-sized
// trade. Any failed condition returns (false, reason) and the caller must not
// submit the order. Unchanged inputs yield the identical verdict.
func (m *Manager) ValidateRiskBeforeTrade(ctx context.Context, quantity float64, signal *domain.TradingSignal, account *domain.AccountSnapshot) (bool, string) {
	if account.AvailableBalance < m.cfg.MinAccountBalance {
		return false, fmt.Sprintf("balance too low: $%.2f < $%.2f", account.AvailableBalance, m.cfg.MinAccountBalance)
	}

	if len(account.OpenPositions) >= m.cfg.MaxPositions {
		return false, fmt.Sprintf("too many positions: %d/%d", len(account.OpenPositions), m.cfg.MaxPositions)
	}

	drawdown := m.observeDrawdown(account.TotalBalance)
	if drawdown > m.cfg.MaxDrawdownPct {
		return false, fmt.Sprintf("drawdown too high: %.1f%% > %.1f%%", drawdown, m.cfg.MaxDrawdownPct)
	}

	riskPerUnit := math.Abs(signal.EntryPrice - signal.StopLoss)
	tradeRisk := quantity * riskPerUnit
	riskPct := tradeRisk / account.AvailableBalance * 100
	if riskPct > m.cfg.MaxRiskPerTradePct {
		return false, fmt.Sprintf("trade risk too high: %.1f%% > %.1f%%", riskPct, m.cfg.MaxRiskPerTradePct)
	}

	totalRiskPct := m.portfolioRiskPct(account, tradeRisk)
	if totalRiskPct > m.cfg.MaxPortfolioRiskPct {
		return false, fmt.Sprintf("portfolio risk too high: %.1f%% > %.1f%%", totalRiskPct, m.cfg.MaxPortfolioRiskPct)
	}

	if signal.TakeProfit != 0 {
		if rr := signal.RiskRewardRatio(); rr < m.cfg.MinRiskReward {
			return false, fmt.Sprintf("risk:reward too low: %.1f < %.1f", rr, m.cfg.MinRiskReward)
		}
	}

	return true, "risk validation passed"
}

// portfolioRiskPct estimates the aggregate risk of existing positions plus the
// proposed trade, as a percentage of total balance.
func (m *Manager) portfolioRiskPct(account *domain.AccountSnapshot, additionalRisk float64) float64 {
	if account.TotalBalance <= 0 {
		return 0
	}
	total := additionalRisk
	for _, pos := range account.OpenPositions {
		total += pos.Notional() * estimatedPositionRiskPct
	}
	return total / account.TotalBalance * 100
}

// observeDrawdown tracks the peak balance and returns the current drawdown
// percentage from that peak. The peak only ratchets upward, so repeated calls
// with the same balance return the same value.
func (m *Manager) observeDrawdown(totalBalance float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if totalBalance > m.peakBalance {
		m.peakBalance = totalBalance
	}
	if m.peakBalance <= 0 {
		return 0
	}
	return (m.peakBalance - totalBalance) / m.peakBalance * 100
}

// AddTradeResult records a realized trade outcome for the Kelly lookback.
func (m *Manager) AddTradeResult(result *domain.TradeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results = append(m.results, result)
	// Bound the history to twice the lookback.
	if limit := m.cfg.KellyLookback * 2; limit > 0 && len(m.results) > limit {
		m.results = m.results[len(m.results)-limit:]
	}
}

// SeedTradeResults preloads trade history (e.g. from the repository on
// startup), oldest first.
func (m *Manager) SeedTradeResults(results []*domain.TradeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append([]*domain.TradeResult(nil), results...)
}

package analytics

import (
	"fmt"
	"math"
	"sync"
	"time"

	"smcbot/internal/domain"
)

// Report is a snapshot of accumulated performance metrics.
type Report struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalPNL      float64
	TotalFees     float64
	AverageWin    float64
	AverageLoss   float64 // negative
	ProfitFactor  float64
	Expectancy    float64
	MaxDrawdown   float64 // fraction of peak equity
	SharpeRatio   float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	FirstTradeTime       time.Time
	LastTradeTime        time.Time
}

// Accumulator ingests realized trade results one at a time and maintains
// running performance metrics. Closed trades only enter once; unrealized PnL
// never contaminates the statistics.
type Accumulator struct {
	initialBalance float64

	mu        sync.Mutex
	report    Report
	winSum    float64
	lossSum   float64 // positive magnitude
	pnls      []float64
	equity    float64
	peak      float64
	curWins   int
	curLosses int
}

// NewAccumulator creates a performance accumulator seeded with the starting
// balance, used as the equity baseline for drawdown.
func NewAccumulator(initialBalance float64) (*Accumulator, error) {
	if initialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive, got %f", initialBalance)
	}
	return &Accumulator{
		initialBalance: initialBalance,
		equity:         initialBalance,
		peak:           initialBalance,
	}, nil
}

// AddResult folds one realized trade into the running metrics.
func (a *Accumulator) AddResult(result *domain.TradeResult) {
	if result == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &a.report
	r.TotalTrades++
	r.TotalPNL += result.PNL
	r.TotalFees += result.Commission
	a.pnls = append(a.pnls, result.PNL)

	if result.PNL > 0 {
		r.WinningTrades++
		a.winSum += result.PNL
		a.curWins++
		a.curLosses = 0
		if a.curWins > r.MaxConsecutiveWins {
			r.MaxConsecutiveWins = a.curWins
		}
	} else {
		r.LosingTrades++
		a.lossSum += -result.PNL
		a.curLosses++
		a.curWins = 0
		if a.curLosses > r.MaxConsecutiveLosses {
			r.MaxConsecutiveLosses = a.curLosses
		}
	}

	a.equity += result.PNL
	if a.equity > a.peak {
		a.peak = a.equity
	} else if a.peak > 0 {
		if dd := (a.peak - a.equity) / a.peak; dd > r.MaxDrawdown {
			r.MaxDrawdown = dd
		}
	}

	if r.FirstTradeTime.IsZero() || result.ExitTime.Before(r.FirstTradeTime) {
		r.FirstTradeTime = result.ExitTime
	}
	if result.ExitTime.After(r.LastTradeTime) {
		r.LastTradeTime = result.ExitTime
	}
}

// Report returns the current metrics with the derived ratios computed.
func (a *Accumulator) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.report
	if r.TotalTrades == 0 {
		return r
	}

	r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades)
	if r.WinningTrades > 0 {
		r.AverageWin = a.winSum / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = -a.lossSum / float64(r.LosingTrades)
	}
	if a.lossSum > 0 {
		r.ProfitFactor = a.winSum / a.lossSum
	} else if a.winSum > 0 {
		r.ProfitFactor = math.Inf(1)
	}
	r.Expectancy = r.WinRate*r.AverageWin + (1-r.WinRate)*r.AverageLoss
	r.SharpeRatio = sharpe(a.pnls)
	return r
}

// Fields flattens the report into structured-log fields.
func (a *Accumulator) Fields() map[string]interface{} {
	r := a.Report()
	return map[string]interface{}{
		"totalTrades":  r.TotalTrades,
		"winRate":      r.WinRate,
		"totalPNL":     r.TotalPNL,
		"totalFees":    r.TotalFees,
		"avgWin":       r.AverageWin,
		"avgLoss":      r.AverageLoss,
		"profitFactor": r.ProfitFactor,
		"expectancy":   r.Expectancy,
		"maxDrawdown":  r.MaxDrawdown,
		"sharpe":       r.SharpeRatio,
	}
}

// sharpe computes a per-trade Sharpe ratio: mean over sample standard
// deviation of trade PnLs. Needs at least two trades and non-zero variance.
func sharpe(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}
	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / float64(len(pnls))

	var variance float64
	for _, p := range pnls {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(pnls) - 1)
	if variance <= 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

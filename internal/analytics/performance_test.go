package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/domain"
)

func result(pnl float64, exit time.Time) *domain.TradeResult {
	return &domain.TradeResult{
		Symbol:     "BTCUSDT",
		Side:       domain.Buy,
		Quantity:   1,
		PNL:        pnl,
		Commission: 0.5,
		EntryTime:  exit.Add(-time.Hour),
		ExitTime:   exit,
	}
}

func TestNewAccumulator(t *testing.T) {
	_, err := NewAccumulator(0)
	require.Error(t, err)

	acc, err := NewAccumulator(10000)
	require.NoError(t, err)
	assert.Zero(t, acc.Report().TotalTrades)
}

func TestAccumulatorBasicMetrics(t *testing.T) {
	acc, err := NewAccumulator(10000)
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	pnls := []float64{100, -50, 200, -50, 100}
	for i, p := range pnls {
		acc.AddResult(result(p, base.Add(time.Duration(i)*time.Hour)))
	}

	r := acc.Report()
	assert.Equal(t, 5, r.TotalTrades)
	assert.Equal(t, 3, r.WinningTrades)
	assert.Equal(t, 2, r.LosingTrades)
	assert.InDelta(t, 0.6, r.WinRate, 1e-9)
	assert.InDelta(t, 300.0, r.TotalPNL, 1e-9)
	assert.InDelta(t, 2.5, r.TotalFees, 1e-9)

	assert.InDelta(t, 400.0/3, r.AverageWin, 1e-9)
	assert.InDelta(t, -50.0, r.AverageLoss, 1e-9)
	assert.InDelta(t, 4.0, r.ProfitFactor, 1e-9, "gross wins over gross losses")

	// Expectancy = winRate*avgWin + lossRate*avgLoss.
	assert.InDelta(t, 0.6*400.0/3+0.4*-50.0, r.Expectancy, 1e-9)

	assert.Equal(t, base, r.FirstTradeTime)
	assert.Equal(t, base.Add(4*time.Hour), r.LastTradeTime)
}

func TestAccumulatorDrawdown(t *testing.T) {
	acc, err := NewAccumulator(1000)
	require.NoError(t, err)

	base := time.Now()
	// Equity path: 1000 -> 1200 (peak) -> 900 -> 1100.
	for i, p := range []float64{200, -300, 200} {
		acc.AddResult(result(p, base.Add(time.Duration(i)*time.Hour)))
	}

	r := acc.Report()
	assert.InDelta(t, 300.0/1200.0, r.MaxDrawdown, 1e-9)
	assert.InDelta(t, 100.0, r.TotalPNL, 1e-9)
}

func TestAccumulatorConsecutiveRuns(t *testing.T) {
	acc, err := NewAccumulator(1000)
	require.NoError(t, err)

	base := time.Now()
	for i, p := range []float64{10, 10, 10, -5, -5, 10, -5, -5, -5, -5} {
		acc.AddResult(result(p, base.Add(time.Duration(i)*time.Minute)))
	}

	r := acc.Report()
	assert.Equal(t, 3, r.MaxConsecutiveWins)
	assert.Equal(t, 4, r.MaxConsecutiveLosses)
}

func TestAccumulatorAllWins(t *testing.T) {
	acc, err := NewAccumulator(1000)
	require.NoError(t, err)

	base := time.Now()
	acc.AddResult(result(10, base))
	acc.AddResult(result(20, base.Add(time.Hour)))

	r := acc.Report()
	assert.True(t, math.IsInf(r.ProfitFactor, 1))
	assert.Zero(t, r.MaxDrawdown)
	assert.Equal(t, 1.0, r.WinRate)
}

func TestAccumulatorSharpe(t *testing.T) {
	acc, err := NewAccumulator(1000)
	require.NoError(t, err)

	base := time.Now()
	// Identical PnLs have zero variance, Sharpe is defined as 0.
	acc.AddResult(result(10, base))
	acc.AddResult(result(10, base.Add(time.Hour)))
	assert.Zero(t, acc.Report().SharpeRatio)

	acc.AddResult(result(40, base.Add(2*time.Hour)))
	r := acc.Report()
	assert.Greater(t, r.SharpeRatio, 0.0)
}

func TestAccumulatorIgnoresNil(t *testing.T) {
	acc, err := NewAccumulator(1000)
	require.NoError(t, err)
	acc.AddResult(nil)
	assert.Zero(t, acc.Report().TotalTrades)
}

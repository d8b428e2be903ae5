package domain

import (
	"fmt"
	"time"
)

// TradingSignal is a directional signal produced by the confluence scorer.
// It is consumed exactly once by the risk sizer / order tracker and not
// persisted beyond one decision cycle.
type TradingSignal struct {
	Direction  SignalDirection
	Symbol     string
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Confidence float64 // [0,100]
	Reason     string
	Timestamp  time.Time
	Metadata   map[string]interface{}
}

// Validate checks the signal geometry invariant:
// LONG requires stop_loss < entry < take_profit, SHORT the reverse.
// A signal failing this reaching the sizer indicates an upstream bug.
func (s *TradingSignal) Validate() error {
	if s == nil {
		return fmt.Errorf("signal is nil")
	}
	if s.EntryPrice <= 0 {
		return fmt.Errorf("signal entry price must be positive, got %f", s.EntryPrice)
	}
	if s.StopLoss <= 0 {
		return fmt.Errorf("signal stop loss must be positive, got %f", s.StopLoss)
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("signal confidence %f outside [0,100]", s.Confidence)
	}
	switch s.Direction {
	case Long:
		if s.StopLoss >= s.EntryPrice {
			return fmt.Errorf("LONG signal: stop loss %f must be below entry %f", s.StopLoss, s.EntryPrice)
		}
		if s.TakeProfit != 0 && s.TakeProfit <= s.EntryPrice {
			return fmt.Errorf("LONG signal: take profit %f must be above entry %f", s.TakeProfit, s.EntryPrice)
		}
	case Short:
		if s.StopLoss <= s.EntryPrice {
			return fmt.Errorf("SHORT signal: stop loss %f must be above entry %f", s.StopLoss, s.EntryPrice)
		}
		if s.TakeProfit != 0 && s.TakeProfit >= s.EntryPrice {
			return fmt.Errorf("SHORT signal: take profit %f must be below entry %f", s.TakeProfit, s.EntryPrice)
		}
	default:
		return fmt.Errorf("unknown signal direction %q", s.Direction)
	}
	return nil
}

// RiskRewardRatio returns reward/risk, or 0 when no take profit is set or the
// risk distance is zero.
func (s *TradingSignal) RiskRewardRatio() float64 {
	if s.TakeProfit == 0 {
		return 0
	}
	var risk, reward float64
	if s.Direction == Long {
		risk = s.EntryPrice - s.StopLoss
		reward = s.TakeProfit - s.EntryPrice
	} else {
		risk = s.StopLoss - s.EntryPrice
		reward = s.EntryPrice - s.TakeProfit
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

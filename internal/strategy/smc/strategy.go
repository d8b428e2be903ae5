package smc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
	"smcbot/internal/strategy/indicators"
)

// confluenceFactors is the number of independent factors feeding the score.
const confluenceFactors = 5

// Config holds parameters for the SMC strategy.
type Config struct {
	RequiredHistory int     // minimum candle history, e.g. 200
	SwingWindow     int     // swing extremum window per side, e.g. 5
	OBStrengthMult  float64 // order block body threshold multiplier, e.g. 2.0
	OBKeep          int     // retained order blocks, e.g. 3
	FVGKeep         int     // retained fair value gaps, e.g. 2
	RSIPeriod       int     // e.g. 14
	RSIOverbought   float64 // e.g. 70.0
	RSIOversold     float64 // e.g. 30.0
	SMAShortPeriod  int     // e.g. 20
	SMALongPeriod   int     // e.g. 50
	MinConfidence   float64 // minimum confluence confidence to emit, e.g. 75.0
	StopLossPct     float64 // SL offset from entry in percent, e.g. 1.5
	TakeProfitPct   float64 // TP offset from entry in percent, e.g. 2.5
}

// DefaultConfig returns the standard SMC parameter set.
func DefaultConfig() Config {
	return Config{
		RequiredHistory: 200,
		SwingWindow:     5,
		OBStrengthMult:  2.0,
		OBKeep:          3,
		FVGKeep:         2,
		RSIPeriod:       14,
		RSIOverbought:   70.0,
		RSIOversold:     30.0,
		SMAShortPeriod:  20,
		SMALongPeriod:   50,
		MinConfidence:   75.0,
		StopLossPct:     1.5,
		TakeProfitPct:   2.5,
	}
}

// Strategy implements the Smart Money Concept trading logic: market structure
// breaks, order blocks and fair value gaps combined with RSI and SMA trend
// into a confluence-scored directional signal. Implements ports.Strategy.
//
// Stop loss and take profit on emitted signals are fixed percentage offsets
// from entry, deliberately decoupled from the detected structure levels.
type Strategy struct {
	cfg    Config
	logger ports.Logger

	rsi      *indicators.RSI
	smaShort *indicators.SMA
	smaLong  *indicators.SMA

	// State recomputed by each Update call, lifetime one decision cycle.
	symbol        string
	ready         bool
	currentPrice  float64
	currentRSI    float64
	smaShortValue float64
	smaLongValue  float64
	structure     domain.MarketStructure
	orderBlocks   []*domain.OrderBlock
	fairValueGaps []*domain.FairValueGap
}

// New creates a new SMC strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for SMC strategy")
	}
	if cfg.SwingWindow <= 0 || cfg.RSIPeriod <= 0 || cfg.SMAShortPeriod <= 0 || cfg.SMALongPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.SMAShortPeriod >= cfg.SMALongPeriod {
		return nil, fmt.Errorf("short SMA period must be less than long SMA period")
	}
	if cfg.OBStrengthMult <= 0 {
		return nil, fmt.Errorf("order block strength multiplier must be positive")
	}
	if cfg.MinConfidence <= 0 || cfg.MinConfidence > 100 {
		return nil, fmt.Errorf("minimum confidence must be in (0,100]")
	}
	if cfg.StopLossPct <= 0 || cfg.TakeProfitPct <= 0 {
		return nil, fmt.Errorf("stop loss and take profit percentages must be positive")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold || cfg.RSIOverbought > 100 || cfg.RSIOversold < 0 {
		return nil, fmt.Errorf("invalid RSI thresholds (overbought must be > oversold, between 0-100)")
	}

	return &Strategy{
		cfg:    cfg,
		logger: logger,
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
		smaShort:  indicators.NewSMA(indicators.SMAConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.SMAShortPeriod}}),
		smaLong:   indicators.NewSMA(indicators.SMAConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.SMALongPeriod}}),
		structure: domain.Neutral,
	}, nil
}

// RequiredDataPoints returns the minimum candle history the strategy needs.
func (s *Strategy) RequiredDataPoints() int {
	required := s.cfg.RequiredHistory
	if min := s.cfg.SMALongPeriod + 1; required < min {
		required = min
	}
	if min := s.cfg.RSIPeriod + 1; required < min {
		required = min
	}
	if min := 2*s.cfg.SwingWindow + 1; required < min {
		required = min
	}
	return required
}

// Update ingests the latest candle series and ticker and recomputes structure,
// order blocks, gaps and indicators. Insufficient history degrades to "not
// ready" (no signal), not an error; a malformed series is a contract violation.
func (s *Strategy) Update(ctx context.Context, candles []*domain.Candle, ticker *domain.Ticker) error {
	s.ready = false
	s.structure = domain.Neutral
	s.orderBlocks = nil
	s.fairValueGaps = nil

	if ticker == nil {
		return fmt.Errorf("ticker is required")
	}
	if err := domain.ValidateSeries(candles); err != nil {
		return fmt.Errorf("candle series rejected: %w", err)
	}

	required := s.RequiredDataPoints()
	if len(candles) < required {
		s.logger.Debug(ctx, "Not enough candle data for SMC evaluation",
			map[string]interface{}{"available": len(candles), "required": required})
		return nil
	}

	rsi, err := s.rsi.Calculate(ctx, candles)
	if err != nil {
		return fmt.Errorf("RSI calculation failed: %w", err)
	}
	smaShort, err := s.smaShort.Calculate(ctx, candles)
	if err != nil {
		return fmt.Errorf("short SMA calculation failed: %w", err)
	}
	smaLong, err := s.smaLong.Calculate(ctx, candles)
	if err != nil {
		return fmt.Errorf("long SMA calculation failed: %w", err)
	}

	s.symbol = ticker.Symbol
	s.currentPrice = ticker.LastPrice
	s.currentRSI = rsi
	s.smaShortValue = smaShort
	s.smaLongValue = smaLong
	s.structure = AnalyzeMarketStructure(candles, s.cfg.SwingWindow)
	s.orderBlocks = DetectOrderBlocks(candles, s.cfg.OBStrengthMult, s.cfg.OBKeep)
	s.fairValueGaps = DetectFairValueGaps(candles, s.cfg.FVGKeep)
	s.ready = true

	s.logger.Debug(ctx, "SMC state updated", map[string]interface{}{
		"structure":   s.structure,
		"orderBlocks": len(s.orderBlocks),
		"gaps":        len(s.fairValueGaps),
		"rsi":         rsi,
		"smaShort":    smaShort,
		"smaLong":     smaLong,
	})
	return nil
}

// GenerateSignal combines the five confluence factors into a directional
// signal. Returns nil when neither side reaches the minimum confidence or the
// sides tie. Identical inputs always yield the identical outcome.
func (s *Strategy) GenerateSignal(ctx context.Context) *domain.TradingSignal {
	if !s.ready {
		return nil
	}

	structBull, structBear := s.structureFactor()
	rsiBull, rsiBear := s.rsiFactor()
	trendBull, trendBear := s.trendFactor()
	obBull, obBear := s.orderBlockFactor()
	fvgBull, fvgBear := s.fvgFactor()

	longConfidence := (structBull + rsiBull + trendBull + obBull + fvgBull) / confluenceFactors * 100
	shortConfidence := (structBear + rsiBear + trendBear + obBear + fvgBear) / confluenceFactors * 100

	s.logger.Debug(ctx, "Confluence scored", map[string]interface{}{
		"long":  longConfidence,
		"short": shortConfidence,
		"min":   s.cfg.MinConfidence,
	})

	switch {
	case longConfidence >= s.cfg.MinConfidence && longConfidence > shortConfidence:
		return s.buildSignal(domain.Long, longConfidence)
	case shortConfidence >= s.cfg.MinConfidence && shortConfidence > longConfidence:
		return s.buildSignal(domain.Short, shortConfidence)
	default:
		return nil
	}
}

func (s *Strategy) structureFactor() (bullish, bearish float64) {
	switch s.structure {
	case domain.BullishBOS:
		return 1, 0
	case domain.BearishBOS:
		return 0, 1
	}
	return 0, 0
}

func (s *Strategy) rsiFactor() (bullish, bearish float64) {
	switch {
	case s.currentRSI < s.cfg.RSIOversold:
		return 1, 0
	case s.currentRSI > s.cfg.RSIOverbought:
		return 0, 1
	case s.currentRSI > s.cfg.RSIOversold && s.currentRSI < s.cfg.RSIOverbought:
		// Neutral zone: partial credit to both sides.
		return 0.5, 0.5
	}
	return 0, 0
}

func (s *Strategy) trendFactor() (bullish, bearish float64) {
	switch {
	case s.currentPrice > s.smaShortValue && s.smaShortValue > s.smaLongValue:
		return 1, 0
	case s.currentPrice < s.smaShortValue && s.smaShortValue < s.smaLongValue:
		return 0, 1
	}
	return 0, 0
}

func (s *Strategy) orderBlockFactor() (bullish, bearish float64) {
	var hasBullish, hasBearish, insideBullish, insideBearish bool
	for _, ob := range s.orderBlocks {
		switch ob.Kind {
		case domain.BullishBlock:
			hasBullish = true
			if ob.Contains(s.currentPrice) {
				insideBullish = true
			}
		case domain.BearishBlock:
			hasBearish = true
			if ob.Contains(s.currentPrice) {
				insideBearish = true
			}
		}
	}

	switch {
	case insideBullish:
		return 1, 0
	case insideBearish:
		return 0, 1
	case hasBullish && !hasBearish:
		return 0.5, 0
	case hasBearish && !hasBullish:
		return 0, 0.5
	}
	return 0, 0
}

func (s *Strategy) fvgFactor() (bullish, bearish float64) {
	for _, gap := range s.fairValueGaps {
		if gap.Filled || !gap.Contains(s.currentPrice) {
			continue
		}
		if gap.Kind == domain.BullishGap {
			return 1, 0
		}
		return 0, 1
	}
	return 0, 0
}

func (s *Strategy) buildSignal(direction domain.SignalDirection, confidence float64) *domain.TradingSignal {
	entry := s.currentPrice
	var stopLoss, takeProfit float64
	if direction == domain.Long {
		stopLoss = entry * (1 - s.cfg.StopLossPct/100)
		takeProfit = entry * (1 + s.cfg.TakeProfitPct/100)
	} else {
		stopLoss = entry * (1 + s.cfg.StopLossPct/100)
		takeProfit = entry * (1 - s.cfg.TakeProfitPct/100)
	}

	return &domain.TradingSignal{
		Direction:  direction,
		Symbol:     s.symbol,
		EntryPrice: entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Confidence: confidence,
		Reason:     s.buildReason(direction),
		Timestamp:  time.Now().UTC(),
		Metadata: map[string]interface{}{
			"market_structure": string(s.structure),
			"order_blocks":     len(s.orderBlocks),
			"fair_value_gaps":  len(s.fairValueGaps),
			"rsi":              s.currentRSI,
		},
	}
}

func (s *Strategy) buildReason(direction domain.SignalDirection) string {
	var parts []string
	if direction == domain.Long {
		if s.structure == domain.BullishBOS {
			parts = append(parts, "Bullish BOS")
		}
		for _, ob := range s.orderBlocks {
			if ob.Kind == domain.BullishBlock {
				parts = append(parts, "Bullish OB")
				break
			}
		}
		if s.smaShortValue > s.smaLongValue {
			parts = append(parts, "Uptrend")
		}
	} else {
		if s.structure == domain.BearishBOS {
			parts = append(parts, "Bearish BOS")
		}
		for _, ob := range s.orderBlocks {
			if ob.Kind == domain.BearishBlock {
				parts = append(parts, "Bearish OB")
				break
			}
		}
		if s.smaShortValue < s.smaLongValue {
			parts = append(parts, "Downtrend")
		}
	}
	if len(parts) == 0 {
		return "SMC Confluence"
	}
	return strings.Join(parts, " + ")
}

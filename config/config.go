package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"smcbot/internal/adapters/logger"
	"smcbot/internal/domain"
	"smcbot/internal/risk"
	"smcbot/internal/strategy/smc"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	Mode             domain.TradingMode
	Symbol           string
	Interval         string
	QuoteAsset       string
	MaxTradesPerDay  int
	SignalCooldown   time.Duration
	TradingHourStart int // UTC, 0 with TradingHourEnd=0 disables the gate
	TradingHourEnd   int

	// Paper trading
	PaperBalance   float64
	CommissionRate float64

	// Live fill confirmation
	FillTimeout time.Duration
	FillPoll    time.Duration

	// Strategy and risk parameter sets
	Strategy smc.Config
	Risk     risk.Config

	// Market data polling
	PollInterval time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Retry policy for exchange calls
	RetryMaxAttempts int
	RetryMinDelay    time.Duration
	RetryMaxDelay    time.Duration
}

// strategyFile is the optional YAML override for strategy and risk parameters,
// pointed to by STRATEGY_CONFIG_PATH. Zero values leave the default in place.
type strategyFile struct {
	Strategy struct {
		RequiredHistory int     `yaml:"required_history"`
		SwingWindow     int     `yaml:"swing_window"`
		OBStrengthMult  float64 `yaml:"ob_strength_mult"`
		OBKeep          int     `yaml:"ob_keep"`
		FVGKeep         int     `yaml:"fvg_keep"`
		RSIPeriod       int     `yaml:"rsi_period"`
		RSIOverbought   float64 `yaml:"rsi_overbought"`
		RSIOversold     float64 `yaml:"rsi_oversold"`
		SMAShortPeriod  int     `yaml:"sma_short_period"`
		SMALongPeriod   int     `yaml:"sma_long_period"`
		MinConfidence   float64 `yaml:"min_confidence"`
		StopLossPct     float64 `yaml:"stop_loss_pct"`
		TakeProfitPct   float64 `yaml:"take_profit_pct"`
	} `yaml:"strategy"`
	Risk struct {
		MaxRiskPerTradePct  float64 `yaml:"max_risk_per_trade_pct"`
		MaxPortfolioRiskPct float64 `yaml:"max_portfolio_risk_pct"`
		MaxPositions        int     `yaml:"max_positions"`
		MaxDrawdownPct      float64 `yaml:"max_drawdown_pct"`
		MinAccountBalance   float64 `yaml:"min_account_balance"`
		MaxLeverage         float64 `yaml:"max_leverage"`
		MinRiskReward       float64 `yaml:"min_risk_reward"`
		MinQuantity         float64 `yaml:"min_quantity"`
		UseKelly            bool    `yaml:"use_kelly"`
		KellyLookback       int     `yaml:"kelly_lookback"`
		MaxKellyFraction    float64 `yaml:"max_kelly_fraction"`
	} `yaml:"risk"`
}

// LoadConfig loads configuration from environment variables (.env file) plus
// an optional YAML strategy parameter file.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{
		Strategy: smc.DefaultConfig(),
		Risk:     risk.DefaultConfig(),
	}
	var errs []string

	// Mode first: paper mode works without API keys.
	modeStr := strings.ToLower(getEnv("TRADING_MODE", "paper"))
	switch domain.TradingMode(modeStr) {
	case domain.ModePaper:
		cfg.Mode = domain.ModePaper
	case domain.ModeLive:
		cfg.Mode = domain.ModeLive
	default:
		errs = append(errs, fmt.Sprintf("TRADING_MODE must be 'paper' or 'live', got %q", modeStr))
	}

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true)
	if cfg.Mode == domain.ModeLive {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set in live mode")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set in live mode")
		}
	}

	cfg.Symbol = getEnv("SYMBOL", "BTCUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.Interval = getEnv("INTERVAL", "15m")
	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")

	var err error
	cfg.MaxTradesPerDay, err = getEnvAsIntRequired("MAX_TRADES_PER_DAY", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_TRADES_PER_DAY: %v", err))
	} else if cfg.MaxTradesPerDay <= 0 {
		errs = append(errs, "MAX_TRADES_PER_DAY must be positive")
	}

	cooldownSeconds := getEnvAsInt("SIGNAL_COOLDOWN_SECONDS", 300)
	if cooldownSeconds < 0 {
		errs = append(errs, "SIGNAL_COOLDOWN_SECONDS cannot be negative")
	}
	cfg.SignalCooldown = time.Duration(cooldownSeconds) * time.Second

	cfg.TradingHourStart = getEnvAsInt("TRADING_HOUR_START", 0)
	cfg.TradingHourEnd = getEnvAsInt("TRADING_HOUR_END", 0)
	if cfg.TradingHourStart < 0 || cfg.TradingHourStart > 23 || cfg.TradingHourEnd < 0 || cfg.TradingHourEnd > 24 {
		errs = append(errs, "trading hours must be within a UTC day")
	}

	cfg.PaperBalance, err = getEnvAsFloatRequired("PAPER_BALANCE", 10000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_BALANCE: %v", err))
	} else if cfg.PaperBalance <= 0 {
		errs = append(errs, "PAPER_BALANCE must be positive")
	}

	cfg.CommissionRate, err = getEnvAsFloatRequired("COMMISSION_RATE", 0.0006)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COMMISSION_RATE: %v", err))
	} else if cfg.CommissionRate < 0 {
		errs = append(errs, "COMMISSION_RATE cannot be negative")
	}

	cfg.FillTimeout = time.Duration(getEnvAsInt("FILL_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.FillPoll = time.Duration(getEnvAsInt("FILL_POLL_SECONDS", 1)) * time.Second
	cfg.PollInterval = time.Duration(getEnvAsInt("POLL_INTERVAL_SECONDS", 30)) * time.Second
	if cfg.PollInterval <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}

	cfg.Risk.UseKelly = getEnvAsBool("USE_KELLY", false)

	cfg.DBPath = getEnv("DB_PATH", "./data/smcbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	cfg.RetryMaxAttempts = getEnvAsInt("RETRY_MAX_ATTEMPTS", 3)
	if cfg.RetryMaxAttempts <= 0 {
		errs = append(errs, "RETRY_MAX_ATTEMPTS must be positive")
	}
	cfg.RetryMinDelay = time.Duration(getEnvAsInt("RETRY_MIN_DELAY_MS", 500)) * time.Millisecond
	cfg.RetryMaxDelay = time.Duration(getEnvAsInt("RETRY_MAX_DELAY_MS", 5000)) * time.Millisecond

	// Optional YAML parameter file for strategy and risk tuning.
	if path := getEnv("STRATEGY_CONFIG_PATH", ""); path != "" {
		if err := applyStrategyFile(cfg, path); err != nil {
			errs = append(errs, fmt.Sprintf("strategy config file: %v", err))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// applyStrategyFile overlays non-zero values from the YAML file onto the
// defaults already in cfg.
func applyStrategyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var file strategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	s := file.Strategy
	if s.RequiredHistory > 0 {
		cfg.Strategy.RequiredHistory = s.RequiredHistory
	}
	if s.SwingWindow > 0 {
		cfg.Strategy.SwingWindow = s.SwingWindow
	}
	if s.OBStrengthMult > 0 {
		cfg.Strategy.OBStrengthMult = s.OBStrengthMult
	}
	if s.OBKeep > 0 {
		cfg.Strategy.OBKeep = s.OBKeep
	}
	if s.FVGKeep > 0 {
		cfg.Strategy.FVGKeep = s.FVGKeep
	}
	if s.RSIPeriod > 0 {
		cfg.Strategy.RSIPeriod = s.RSIPeriod
	}
	if s.RSIOverbought > 0 {
		cfg.Strategy.RSIOverbought = s.RSIOverbought
	}
	if s.RSIOversold > 0 {
		cfg.Strategy.RSIOversold = s.RSIOversold
	}
	if s.SMAShortPeriod > 0 {
		cfg.Strategy.SMAShortPeriod = s.SMAShortPeriod
	}
	if s.SMALongPeriod > 0 {
		cfg.Strategy.SMALongPeriod = s.SMALongPeriod
	}
	if s.MinConfidence > 0 {
		cfg.Strategy.MinConfidence = s.MinConfidence
	}
	if s.StopLossPct > 0 {
		cfg.Strategy.StopLossPct = s.StopLossPct
	}
	if s.TakeProfitPct > 0 {
		cfg.Strategy.TakeProfitPct = s.TakeProfitPct
	}

	r := file.Risk
	if r.MaxRiskPerTradePct > 0 {
		cfg.Risk.MaxRiskPerTradePct = r.MaxRiskPerTradePct
	}
	if r.MaxPortfolioRiskPct > 0 {
		cfg.Risk.MaxPortfolioRiskPct = r.MaxPortfolioRiskPct
	}
	if r.MaxPositions > 0 {
		cfg.Risk.MaxPositions = r.MaxPositions
	}
	if r.MaxDrawdownPct > 0 {
		cfg.Risk.MaxDrawdownPct = r.MaxDrawdownPct
	}
	if r.MinAccountBalance > 0 {
		cfg.Risk.MinAccountBalance = r.MinAccountBalance
	}
	if r.MaxLeverage > 0 {
		cfg.Risk.MaxLeverage = r.MaxLeverage
	}
	if r.MinRiskReward > 0 {
		cfg.Risk.MinRiskReward = r.MinRiskReward
	}
	if r.MinQuantity > 0 {
		cfg.Risk.MinQuantity = r.MinQuantity
	}
	if r.UseKelly {
		cfg.Risk.UseKelly = true
	}
	if r.KellyLookback > 0 {
		cfg.Risk.KellyLookback = r.KellyLookback
	}
	if r.MaxKellyFraction > 0 {
		cfg.Risk.MaxKellyFraction = r.MaxKellyFraction
	}
	return nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

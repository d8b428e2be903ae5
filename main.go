package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"smcbot/config"
	"smcbot/internal/adapters/binanceclient"
	"smcbot/internal/adapters/logger"
	"smcbot/internal/adapters/sqlite"
	"smcbot/internal/analytics"
	"smcbot/internal/app"
	"smcbot/internal/domain"
	"smcbot/internal/marketdata"
	"smcbot/internal/orders"
	"smcbot/internal/retry"
	"smcbot/internal/risk"
	"smcbot/internal/strategy/smc"
	"smcbot/internal/utils"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smcbot",
		Short: "Smart Money Concept trading bot for Binance futures",
	}
	rootCmd.AddCommand(runCmd(), exportTradesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}
}

func runBot(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		return fmt.Errorf("initialize database repository: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		return fmt.Errorf("initialize Binance client: %w", err)
	}

	retrier, err := retry.New(retry.Config{
		MaxAttempts: cfg.RetryMaxAttempts,
		MinDelay:    cfg.RetryMinDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}, appLogger)
	if err != nil {
		return fmt.Errorf("initialize retrier: %w", err)
	}

	store, err := marketdata.NewStore(marketdata.Config{}, binanceClient, retrier, appLogger)
	if err != nil {
		return fmt.Errorf("initialize candle store: %w", err)
	}

	strat, err := smc.New(cfg.Strategy, appLogger)
	if err != nil {
		return fmt.Errorf("initialize SMC strategy: %w", err)
	}

	feed, err := marketdata.NewFeed(marketdata.FeedConfig{
		Symbol:       cfg.Symbol,
		Interval:     cfg.Interval,
		CandleLimit:  strat.RequiredDataPoints(),
		PollInterval: cfg.PollInterval,
	}, store, appLogger)
	if err != nil {
		return fmt.Errorf("initialize market data feed: %w", err)
	}

	riskMgr, err := risk.NewManager(cfg.Risk, appLogger)
	if err != nil {
		return fmt.Errorf("initialize risk manager: %w", err)
	}

	tracker, err := orders.NewTracker(orders.Config{
		Mode:           cfg.Mode,
		CommissionRate: cfg.CommissionRate,
		PaperBalance:   cfg.PaperBalance,
		FillTimeout:    cfg.FillTimeout,
		FillPoll:       cfg.FillPoll,
	}, appLogger, binanceClient, retrier)
	if err != nil {
		return fmt.Errorf("initialize order tracker: %w", err)
	}

	initialBalance := cfg.PaperBalance
	if cfg.Mode == domain.ModeLive {
		total, _, err := binanceClient.GetBalance(ctx, cfg.QuoteAsset)
		if err != nil {
			return fmt.Errorf("fetch initial balance: %w", err)
		}
		initialBalance = total
	}
	perf, err := analytics.NewAccumulator(initialBalance)
	if err != nil {
		return fmt.Errorf("initialize performance accumulator: %w", err)
	}

	svc, err := app.NewTradingService(app.Config{
		Symbol:           cfg.Symbol,
		Interval:         cfg.Interval,
		QuoteAsset:       cfg.QuoteAsset,
		Mode:             cfg.Mode,
		MaxTradesPerDay:  cfg.MaxTradesPerDay,
		SignalCooldown:   cfg.SignalCooldown,
		TradingHourStart: cfg.TradingHourStart,
		TradingHourEnd:   cfg.TradingHourEnd,
	}, appLogger, binanceClient, feed, strat, riskMgr, tracker, perf, repo)
	if err != nil {
		return fmt.Errorf("initialize trading service: %w", err)
	}

	return svc.Start(ctx)
}

func exportTradesCmd() *cobra.Command {
	var (
		symbol string
		from   string
		to     string
		output string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "export-trades",
		Short: "Export realized trade results to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			appLogger := logger.NewStdLogger(logger.LevelWarn)
			repo, err := sqlite.NewRepository(sqlite.Config{DBPath: dbPath, Logger: appLogger})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer repo.Close()

			fromTime, err := time.Parse("2006-01-02", from)
			if err != nil {
				return fmt.Errorf("invalid --from date %q (want YYYY-MM-DD): %w", from, err)
			}
			toTime := time.Now().UTC()
			if to != "" {
				toTime, err = time.Parse("2006-01-02", to)
				if err != nil {
					return fmt.Errorf("invalid --to date %q (want YYYY-MM-DD): %w", to, err)
				}
			}

			results, err := repo.ResultsBetween(cmd.Context(), symbol, fromTime, toTime)
			if err != nil {
				return fmt.Errorf("query trade results: %w", err)
			}
			if err := utils.WriteResultsToCSV(results, output); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}

			fmt.Printf("Exported %d trade results to %s\n", len(results), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSDT", "trading symbol to export")
	cmd.Flags().StringVar(&from, "from", "1970-01-01", "start date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "end date (YYYY-MM-DD, exclusive, defaults to now)")
	cmd.Flags().StringVar(&output, "output", "trades.csv", "output CSV path")
	cmd.Flags().StringVar(&dbPath, "db", "./data/smcbot.db", "SQLite database path")

	return cmd
}

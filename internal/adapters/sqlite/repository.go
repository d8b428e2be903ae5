package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"smcbot/internal/domain"
	"smcbot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository using SQLite. Fills and realized
// results live in separate tables: a fill is one order execution, a result is
// one closed round trip.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (or creates) the database and prepares the schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/smcbot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the decision loop and exports.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		commission REAL NOT NULL,
		executed_at TIMESTAMP NOT NULL,
		order_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_results (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		pnl REAL NOT NULL,
		commission REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol_executed_at ON trades (symbol, executed_at);
	CREATE INDEX IF NOT EXISTS idx_trade_results_symbol_exit_time ON trade_results (symbol, exit_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// CreateTrade saves a fill record.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT INTO trades (id, symbol, side, quantity, price, commission, executed_at, order_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.Symbol, string(trade.Side), trade.Quantity, trade.Price,
		trade.Commission, trade.Timestamp, trade.OrderID)
	if err != nil {
		return fmt.Errorf("failed to insert trade %s: %w: %w", trade.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Trade saved", map[string]interface{}{"tradeID": trade.ID, "symbol": trade.Symbol})
	return nil
}

// CreateResult saves a realized round-trip result.
func (r *Repository) CreateResult(ctx context.Context, result *domain.TradeResult) error {
	const query = `
	INSERT INTO trade_results (id, symbol, side, quantity, entry_price, exit_price,
	                           pnl, commission, entry_time, exit_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		result.ID, result.Symbol, string(result.Side), result.Quantity,
		result.EntryPrice, result.ExitPrice, result.PNL, result.Commission,
		result.EntryTime, result.ExitTime)
	if err != nil {
		return fmt.Errorf("failed to insert trade result %s: %w: %w", result.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Trade result saved", map[string]interface{}{"resultID": result.ID, "pnl": result.PNL})
	return nil
}

// RecentResults retrieves the most recent realized results for a symbol,
// newest first, up to limit.
func (r *Repository) RecentResults(ctx context.Context, symbol string, limit int) ([]*domain.TradeResult, error) {
	const query = `
	SELECT id, symbol, side, quantity, entry_price, exit_price, pnl, commission, entry_time, exit_time
	FROM trade_results
	WHERE symbol = ? ORDER BY exit_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade results for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	results := make([]*domain.TradeResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade result: %w", err)
		}
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade result rows: %w", err)
	}
	return results, nil
}

// ResultsBetween retrieves realized results for a symbol within [from, to),
// oldest first. Feeds the CSV export.
func (r *Repository) ResultsBetween(ctx context.Context, symbol string, from, to time.Time) ([]*domain.TradeResult, error) {
	const query = `
	SELECT id, symbol, side, quantity, entry_price, exit_price, pnl, commission, entry_time, exit_time
	FROM trade_results
	WHERE symbol = ? AND exit_time >= ? AND exit_time < ?
	ORDER BY exit_time ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade results for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	results := make([]*domain.TradeResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade result: %w", err)
		}
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade result rows: %w", err)
	}
	return results, nil
}

// CountTodayBySymbol counts fills executed today (UTC) for the daily limit.
func (r *Repository) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE symbol = ? AND date(executed_at) = date('now')`
	var count int
	if err := r.db.QueryRowContext(ctx, query, symbol).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades today for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return count, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanResult scans a row into a domain.TradeResult struct.
func scanResult(s scanner) (*domain.TradeResult, error) {
	result := &domain.TradeResult{}
	var side string
	err := s.Scan(
		&result.ID, &result.Symbol, &side, &result.Quantity,
		&result.EntryPrice, &result.ExitPrice, &result.PNL, &result.Commission,
		&result.EntryTime, &result.ExitTime)
	if err != nil {
		return nil, err
	}
	result.Side = domain.OrderSide(side)
	return result, nil
}

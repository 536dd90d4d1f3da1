package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal implements the ports.TradeJournal interface using SQLite.
// It is an append-only audit trail; nothing in the trading path reads it back.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewJournal creates a new SQLite journal instance.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite journal")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_journal.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite journal connection established", map[string]interface{}{"path": dbPath})

	j := &Journal{db: db, logger: cfg.Logger}

	if err := j.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize journal schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	return j, nil
}

// initializeSchema creates tables if they don't exist.
func (j *Journal) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS position_opens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		stop REAL NOT NULL,
		backup_stop REAL NOT NULL,
		target1 REAL NOT NULL,
		target2 REAL NOT NULL,
		sector TEXT NOT NULL,
		entry_time TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		pnl REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		close_reason TEXT NOT NULL,
		partial INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS vetoes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		rule TEXT NOT NULL,
		reason TEXT NOT NULL,
		vetoed_at TIMESTAMP NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_trade_history_instrument_exit_time ON trade_history (instrument, exit_time);
	CREATE INDEX IF NOT EXISTS idx_vetoes_instrument ON vetoes (instrument);
	`
	_, err := j.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		j.logger.Info(context.Background(), "Closing SQLite journal connection")
		return j.db.Close()
	}
	return nil
}

// RecordOpen appends an audit row for a newly opened position.
func (j *Journal) RecordOpen(ctx context.Context, pos *domain.Position) error {
	const query = `
	INSERT INTO position_opens (instrument, direction, entry_price, quantity, stop, backup_stop, target1, target2, sector, entry_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		pos.Instrument, string(pos.Direction), pos.EntryPrice, pos.Quantity,
		pos.Stop, pos.BackupStop, pos.Target1, pos.Target2, pos.Sector, pos.EntryTime)
	if err != nil {
		return fmt.Errorf("failed to insert open for instrument %s: %w", pos.Instrument, err)
	}
	j.logger.Debug(ctx, "Position open journaled", map[string]interface{}{"instrument": pos.Instrument, "quantity": pos.Quantity})
	return nil
}

// RecordClose appends an audit row for a completed (full or partial) exit.
func (j *Journal) RecordClose(ctx context.Context, rec *domain.TradeRecord) error {
	const query = `
	INSERT INTO trade_history (instrument, direction, entry_price, exit_price, quantity, pnl, entry_time, exit_time, close_reason, partial)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	partial := 0
	if rec.Partial {
		partial = 1
	}
	_, err := j.db.ExecContext(ctx, query,
		rec.Instrument, string(rec.Direction), rec.EntryPrice, rec.ExitPrice,
		rec.Quantity, rec.PnL, rec.EntryTime, rec.ExitTime, string(rec.Reason), partial)
	if err != nil {
		return fmt.Errorf("failed to insert trade for instrument %s: %w", rec.Instrument, err)
	}
	j.logger.Debug(ctx, "Trade close journaled", map[string]interface{}{"instrument": rec.Instrument, "reason": rec.Reason, "pnl": rec.PnL})
	return nil
}

// RecordVeto appends an audit row for a rejected proposal.
func (j *Journal) RecordVeto(ctx context.Context, instrument, rule, reason string, at time.Time) error {
	const query = `INSERT INTO vetoes (instrument, rule, reason, vetoed_at) VALUES (?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query, instrument, rule, reason, at)
	if err != nil {
		return fmt.Errorf("failed to insert veto for instrument %s: %w", instrument, err)
	}
	j.logger.Debug(ctx, "Veto journaled", map[string]interface{}{"instrument": instrument, "rule": rule})
	return nil
}

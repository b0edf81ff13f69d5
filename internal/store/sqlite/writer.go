package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"trading-backtestv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const defaultBatchSize = 500

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath    string // path to SQLite database file, e.g. "data/bars.db"
	BatchSize int    // rows per transaction; 0 uses the default
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db        *sql.DB
	batchSize int
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// open opens dbPath with WAL journaling, shared by Writer and Reader.
func open(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
}

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, batchSize: batch}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars_daily (
			symbol  TEXT    NOT NULL,
			day     TEXT    NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, day)
		);
	`)
	return err
}

// WriteBars upserts bars for symbol, committing every batchSize rows.
// A re-imported day replaces the stored one.
func (w *Writer) WriteBars(ctx context.Context, symbol string, bars []model.Bar) error {
	symbol = normalize(symbol)
	start := time.Now()
	for i := 0; i < len(bars); i += w.batchSize {
		end := i + w.batchSize
		if end > len(bars) {
			end = len(bars)
		}
		if err := w.insertBatch(ctx, symbol, bars[i:end]); err != nil {
			return fmt.Errorf("sqlite insert %s: %w", symbol, err)
		}
	}
	log.Printf("[sqlite] committed %d bars for %s in %v", len(bars), symbol, time.Since(start))
	return nil
}

// insertBatch inserts a batch of bars in a single transaction.
func (w *Writer) insertBatch(ctx context.Context, symbol string, bars []model.Bar) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars_daily (symbol, day, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range bars {
		b := &bars[i]
		if _, err := stmt.ExecContext(ctx, symbol, b.Day(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LastDay returns the most recent stored session date for symbol, or ""
// when nothing is stored.
func (w *Writer) LastDay(ctx context.Context, symbol string) (string, error) {
	var day sql.NullString
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(day) FROM bars_daily WHERE symbol = ?`, normalize(symbol),
	).Scan(&day)
	if err != nil {
		return "", err
	}
	return day.String, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

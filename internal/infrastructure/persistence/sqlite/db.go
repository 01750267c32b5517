package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/pkg/database"
)

// Config describes the database file and its connection pool
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the file lock; zero means 5s
	BusyTimeout time.Duration
}

// DB is the migrated database behind the row store and the document index.
// It implements port.TransactionManager: a unit of work runs on one *sql.Tx
// carried in the context, and nested calls join it.
type DB struct {
	conn   *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens the database file, applies the pragmas the row store relies on
// and runs pending migrations
func Open(cfg Config, logger *zap.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// a unit of work takes the write lock at BEGIN
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		cfg.Path, busy.Milliseconds())

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := database.NewMigrator(conn, logger).RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Row database ready",
		zap.String("path", cfg.Path),
		zap.Int("max_open_conns", maxOpen))

	return &DB{conn: conn, path: cfg.Path, logger: logger}, nil
}

// Ping checks the connection for the health report
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database file
func (db *DB) Close() error {
	db.logger.Info("Closing row database", zap.String("path", db.path))
	return db.conn.Close()
}

type txKey struct{}

// WithTransaction runs fn inside one transaction and commits when fn returns nil.
// A call made inside fn joins the outer transaction.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin unit of work", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// rolls back on error and on panic; a no-op after commit
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("Failed to roll back unit of work", zap.Error(rbErr))
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit unit of work", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rowQuerier covers both *sql.DB and *sql.Tx
type rowQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the unit of work's transaction when ctx carries one
func (db *DB) querier(ctx context.Context) rowQuerier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.conn
}

var _ port.TransactionManager = (*DB)(nil)

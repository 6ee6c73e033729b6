// Package storage provides the durable acknowledged-ticket store using SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the persistent ticket database of a veilmix node.
//
// SQLite admits a single writer at a time; readers run concurrently against
// the WAL. Write serialization above the driver is the caller's concern (the
// ticket manager holds a process-wide write lock around every write
// transaction).
type Store struct {
	db     *sql.DB
	dbPath string
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// Open creates or opens the ticket store under cfg.DataDir.
func Open(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tickets.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open ticket database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ticket database: %w", err)
	}

	// WAL lets readers proceed alongside the one writer; keep a small pool
	// so reads never queue behind each other.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// BeginWrite opens a write transaction. Callers are expected to hold the
// ticket manager's write lock for the full lifetime of the transaction.
func (s *Store) BeginWrite(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// WithReadTx runs f inside a read-only snapshot. Any number of read
// transactions may run concurrently with each other and with the writer.
func (s *Store) WithReadTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	return f(tx)
}

// initSchema creates all database tables.
func (s *Store) initSchema() error {
	schema := `
	-- Acknowledged winning tickets, one row per (channel, epoch, index).
	-- amount is a 32-byte big-endian unsigned integer so that blob
	-- comparison agrees with numeric comparison.
	CREATE TABLE IF NOT EXISTS tickets (
		channel_id BLOB NOT NULL,
		channel_epoch INTEGER NOT NULL,
		ticket_index INTEGER NOT NULL,
		amount BLOB NOT NULL,
		state INTEGER NOT NULL DEFAULT 0,
		response BLOB NOT NULL,
		signature BLOB NOT NULL,
		created_at INTEGER NOT NULL,

		PRIMARY KEY (channel_id, channel_epoch, ticket_index)
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_state ON tickets(state);

	-- Per-channel running counters, aggregated across epochs.
	CREATE TABLE IF NOT EXISTS ticket_statistics (
		channel_id BLOB PRIMARY KEY,
		winning_tickets INTEGER NOT NULL DEFAULT 0,
		redeemed_tickets INTEGER NOT NULL DEFAULT 0,
		rejected_tickets INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	-- Audit trail of tickets the persistence worker had to discard.
	CREATE TABLE IF NOT EXISTS ticket_rejections (
		id TEXT PRIMARY KEY,
		channel_id BLOB NOT NULL,
		channel_epoch INTEGER NOT NULL,
		ticket_index INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rejections_channel ON ticket_rejections(channel_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

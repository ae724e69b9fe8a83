// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the database file created in the data directory.
const DBFileName = "swapd.db"

// Storage persists swap legs and the wallet state the daemon must not lose
// across restarts.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
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
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

func (s *Storage) initSchema() error {
	schema := `
	-- One row per chain-side half of a swap
	CREATE TABLE IF NOT EXISTS swap_legs (
		id TEXT PRIMARY KEY,
		trade_id TEXT NOT NULL,

		coin TEXT NOT NULL,
		role TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',

		-- Amount in smallest units
		amount INTEGER NOT NULL,
		address TEXT,

		-- Transaction being watched, and the height it confirmed at
		txid TEXT,
		confirmed_height INTEGER DEFAULT 0,

		-- Refund becomes possible at this height
		timeout_height INTEGER NOT NULL,

		failure_reason TEXT,

		-- Lock leg a spend or refund settles
		lock_id TEXT,

		created_at INTEGER NOT NULL,
		updated_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_swap_legs_trade ON swap_legs(trade_id);
	CREATE INDEX IF NOT EXISTS idx_swap_legs_state ON swap_legs(state);
	CREATE INDEX IF NOT EXISTS idx_swap_legs_coin ON swap_legs(coin);

	-- Seed id each coin's wallet was initialised with
	CREATE TABLE IF NOT EXISTS wallet_seeds (
		coin TEXT PRIMARY KEY,
		seed_id TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Last known pid of each chain daemon
	CREATE TABLE IF NOT EXISTS daemon_pids (
		coin TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations adds columns introduced after a table was first created.
// Errors are ignored since columns may already exist.
func (s *Storage) runMigrations() error {
	migrations := []string{
		"ALTER TABLE swap_legs ADD COLUMN failure_reason TEXT",
		"ALTER TABLE swap_legs ADD COLUMN lock_id TEXT",
	}

	for _, migration := range migrations {
		_, _ = s.db.Exec(migration)
	}

	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Wallet state errors
var (
	ErrSeedIDNotFound    = errors.New("no seed id recorded for coin")
	ErrDaemonPIDNotFound = errors.New("no daemon pid recorded for coin")
)

// SetExpectedSeedID records the seed id a coin's wallet was initialised with.
func (s *Storage) SetExpectedSeedID(coin, seedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO wallet_seeds (coin, seed_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(coin) DO UPDATE SET seed_id = excluded.seed_id, updated_at = excluded.updated_at
	`, coin, seedID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save seed id: %w", err)
	}
	return nil
}

// GetExpectedSeedID returns the recorded seed id for a coin.
func (s *Storage) GetExpectedSeedID(coin string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seedID string
	err := s.db.QueryRow(`SELECT seed_id FROM wallet_seeds WHERE coin = ?`, coin).Scan(&seedID)
	if err == sql.ErrNoRows {
		return "", ErrSeedIDNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get seed id: %w", err)
	}
	return seedID, nil
}

// SaveDaemonPID records the pid of a coin's daemon.
func (s *Storage) SaveDaemonPID(coin string, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO daemon_pids (coin, pid, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(coin) DO UPDATE SET pid = excluded.pid, updated_at = excluded.updated_at
	`, coin, pid, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save daemon pid: %w", err)
	}
	return nil
}

// GetDaemonPIDs returns every recorded daemon pid keyed by coin name.
func (s *Storage) GetDaemonPIDs() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT coin, pid FROM daemon_pids`)
	if err != nil {
		return nil, fmt.Errorf("failed to get daemon pids: %w", err)
	}
	defer rows.Close()

	pids := make(map[string]int)
	for rows.Next() {
		var coin string
		var pid int
		if err := rows.Scan(&coin, &pid); err != nil {
			return nil, fmt.Errorf("failed to scan daemon pid: %w", err)
		}
		pids[coin] = pid
	}
	return pids, rows.Err()
}

// ClearDaemonPID forgets a coin's daemon pid.
func (s *Storage) ClearDaemonPID(coin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM daemon_pids WHERE coin = ?`, coin)
	if err != nil {
		return fmt.Errorf("failed to clear daemon pid: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrDaemonPIDNotFound
	}
	return nil
}

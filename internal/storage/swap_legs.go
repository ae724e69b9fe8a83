// Package storage - Swap leg storage operations.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Swap leg errors
var (
	ErrSwapLegNotFound = errors.New("swap leg not found")
)

// SwapLegState represents the current state of a swap leg.
type SwapLegState string

const (
	SwapLegStatePending   SwapLegState = "pending"   // Waiting for the lock tx
	SwapLegStateLocked    SwapLegState = "locked"    // Lock tx seen, not yet confirmed
	SwapLegStateConfirmed SwapLegState = "confirmed" // Lock tx past the confirmation threshold
	SwapLegStateCompleted SwapLegState = "completed" // Spent by us or the counterparty
	SwapLegStateRefunding SwapLegState = "refunding" // Timeout reached, refund in flight
	SwapLegStateRefunded  SwapLegState = "refunded"  // Refund confirmed
	SwapLegStateFailed    SwapLegState = "failed"
)

// IsTerminal returns true if the leg will never change state again.
func (s SwapLegState) IsTerminal() bool {
	switch s {
	case SwapLegStateCompleted, SwapLegStateRefunded, SwapLegStateFailed:
		return true
	}
	return false
}

// SwapLegRole is what the leg's watched transaction does.
type SwapLegRole string

const (
	SwapLegRoleLock   SwapLegRole = "lock"
	SwapLegRoleSpend  SwapLegRole = "spend"
	SwapLegRoleRefund SwapLegRole = "refund"
)

// SwapLeg represents a swap leg in the database.
type SwapLeg struct {
	ID      string
	TradeID string

	Coin  string // chain params name
	Role  SwapLegRole
	State SwapLegState

	Amount  int64
	Address string

	TxID            string
	ConfirmedHeight int64
	TimeoutHeight   int64

	FailureReason string

	// LockID is the lock leg a spend or refund leg settles.
	LockID string

	CreatedAt time.Time
	UpdatedAt *time.Time
}

const swapLegColumns = `id, trade_id, coin, role, state, amount, address,
	txid, confirmed_height, timeout_height, failure_reason, lock_id, created_at, updated_at`

// SaveSwapLeg inserts a leg, or replaces every mutable field of an existing one.
func (s *Storage) SaveSwapLeg(leg *SwapLeg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if leg.CreatedAt.IsZero() {
		leg.CreatedAt = time.Now()
	}
	now := time.Now()

	_, err := s.db.Exec(`
		INSERT INTO swap_legs (`+swapLegColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			address = excluded.address,
			txid = excluded.txid,
			confirmed_height = excluded.confirmed_height,
			timeout_height = excluded.timeout_height,
			failure_reason = excluded.failure_reason,
			updated_at = excluded.updated_at
	`,
		leg.ID, leg.TradeID, leg.Coin, leg.Role, leg.State, leg.Amount,
		nullString(leg.Address), nullString(leg.TxID), leg.ConfirmedHeight,
		leg.TimeoutHeight, nullString(leg.FailureReason), nullString(leg.LockID),
		leg.CreatedAt.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save swap leg: %w", err)
	}

	leg.UpdatedAt = &now
	return nil
}

// GetSwapLeg retrieves a swap leg by ID.
func (s *Storage) GetSwapLeg(id string) (*SwapLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+swapLegColumns+` FROM swap_legs WHERE id = ?`, id)
	leg, err := scanSwapLeg(row)
	if err == sql.ErrNoRows {
		return nil, ErrSwapLegNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap leg: %w", err)
	}
	return leg, nil
}

// GetSwapLegsByTradeID retrieves all swap legs for a trade.
func (s *Storage) GetSwapLegsByTradeID(tradeID string) ([]*SwapLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+swapLegColumns+` FROM swap_legs
		WHERE trade_id = ? ORDER BY created_at, id
	`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap legs: %w", err)
	}
	defer rows.Close()

	return scanSwapLegs(rows)
}

// ListActiveSwapLegs returns every leg not in a terminal state, oldest first.
func (s *Storage) ListActiveSwapLegs() ([]*SwapLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+swapLegColumns+` FROM swap_legs
		WHERE state NOT IN (?, ?, ?)
		ORDER BY created_at, id
	`, SwapLegStateCompleted, SwapLegStateRefunded, SwapLegStateFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list active swap legs: %w", err)
	}
	defer rows.Close()

	return scanSwapLegs(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSwapLeg(row rowScanner) (*SwapLeg, error) {
	var leg SwapLeg
	var address, txID, failureReason, lockID sql.NullString
	var createdAt int64
	var updatedAt sql.NullInt64

	err := row.Scan(
		&leg.ID, &leg.TradeID, &leg.Coin, &leg.Role, &leg.State, &leg.Amount,
		&address, &txID, &leg.ConfirmedHeight, &leg.TimeoutHeight,
		&failureReason, &lockID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	leg.Address = address.String
	leg.TxID = txID.String
	leg.FailureReason = failureReason.String
	leg.LockID = lockID.String
	leg.CreatedAt = time.Unix(createdAt, 0)
	if updatedAt.Valid {
		t := time.Unix(updatedAt.Int64, 0)
		leg.UpdatedAt = &t
	}
	return &leg, nil
}

func scanSwapLegs(rows *sql.Rows) ([]*SwapLeg, error) {
	var legs []*SwapLeg
	for rows.Next() {
		leg, err := scanSwapLeg(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swap leg: %w", err)
		}
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

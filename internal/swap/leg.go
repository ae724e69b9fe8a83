// Package swap drives the on-chain legs of an atomic swap.
//
// A leg is one transaction the daemon cares about: our lock, the
// counterparty's spend, or a refund. The engine watches each active leg
// through its coin's wallet interface and moves it through its states. It
// never builds scripts or signs; those live behind coin.Interface.
package swap

import (
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/internal/storage"
)

// Common errors
var (
	ErrLegNotFound   = errors.New("swap leg not found")
	ErrLegExists     = errors.New("swap leg already exists")
	ErrInvalidState  = errors.New("invalid swap leg state")
	ErrTimeoutRace   = errors.New("too close to timeout - safety margin not met")
	ErrInvalidLeg    = errors.New("invalid swap leg")
	ErrEngineStopped = errors.New("swap engine stopped")
)

// State is where a leg is in its lifecycle.
type State = storage.SwapLegState

const (
	StatePending   = storage.SwapLegStatePending
	StateLocked    = storage.SwapLegStateLocked
	StateConfirmed = storage.SwapLegStateConfirmed
	StateCompleted = storage.SwapLegStateCompleted
	StateRefunding = storage.SwapLegStateRefunding
	StateRefunded  = storage.SwapLegStateRefunded
	StateFailed    = storage.SwapLegStateFailed
)

// Role is what the leg's transaction does.
type Role = storage.SwapLegRole

const (
	RoleLock   = storage.SwapLegRoleLock
	RoleSpend  = storage.SwapLegRoleSpend
	RoleRefund = storage.SwapLegRoleRefund
)

// Leg is one watched transaction of a swap.
type Leg struct {
	ID      string
	TradeID string
	Coin    chain.CoinID
	Role    Role
	State   State

	Amount  int64 // smallest unit
	Address string

	TxID            string
	ConfirmedHeight int64
	TimeoutHeight   int64 // 0 means the leg never times out

	// LockID names the lock leg a spend or refund leg settles.
	LockID string

	FailureReason string
	CreatedAt     time.Time
}

// Validate checks the fields a caller must supply.
func (l *Leg) Validate() error {
	if l.TradeID == "" {
		return fmt.Errorf("%w: trade id required", ErrInvalidLeg)
	}
	if !chain.IsSupported(l.Coin) {
		return fmt.Errorf("%w: %w: %d", ErrInvalidLeg, chain.ErrUnknownCoin, l.Coin)
	}
	switch l.Role {
	case RoleLock, RoleSpend, RoleRefund:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidLeg, l.Role)
	}
	if l.Amount < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidLeg)
	}
	if l.TimeoutHeight < 0 {
		return fmt.Errorf("%w: negative timeout height", ErrInvalidLeg)
	}
	return nil
}

// TimedOut reports whether height has reached the leg's timeout.
func (l *Leg) TimedOut(height int64) bool {
	return l.TimeoutHeight > 0 && height >= l.TimeoutHeight
}

func (l *Leg) clone() *Leg {
	c := *l
	return &c
}

// toRecord converts a leg into its storage row.
func (l *Leg) toRecord() *storage.SwapLeg {
	name := ""
	if p, err := chain.Get(l.Coin, chain.Mainnet); err == nil {
		name = p.Name
	}
	return &storage.SwapLeg{
		ID:              l.ID,
		TradeID:         l.TradeID,
		Coin:            name,
		Role:            l.Role,
		State:           l.State,
		Amount:          l.Amount,
		Address:         l.Address,
		TxID:            l.TxID,
		ConfirmedHeight: l.ConfirmedHeight,
		TimeoutHeight:   l.TimeoutHeight,
		FailureReason:   l.FailureReason,
		LockID:          l.LockID,
		CreatedAt:       l.CreatedAt,
	}
}

// legFromRecord converts a storage row back into a leg.
func legFromRecord(r *storage.SwapLeg) (*Leg, error) {
	coinID, err := chain.CoinIDFromName(r.Coin)
	if err != nil {
		return nil, fmt.Errorf("leg %s: %w", r.ID, err)
	}
	return &Leg{
		ID:              r.ID,
		TradeID:         r.TradeID,
		Coin:            coinID,
		Role:            r.Role,
		State:           r.State,
		Amount:          r.Amount,
		Address:         r.Address,
		TxID:            r.TxID,
		ConfirmedHeight: r.ConfirmedHeight,
		TimeoutHeight:   r.TimeoutHeight,
		FailureReason:   r.FailureReason,
		LockID:          r.LockID,
		CreatedAt:       r.CreatedAt,
	}, nil
}

package swap

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/klingon-exchange/klingon-swapd/internal/app"
	"github.com/klingon-exchange/klingon-swapd/internal/backend"
	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/internal/coin"
	"github.com/klingon-exchange/klingon-swapd/internal/config"
	"github.com/klingon-exchange/klingon-swapd/internal/storage"
	"github.com/klingon-exchange/klingon-swapd/pkg/logging"
)

// DefaultPollInterval is how often a leg is checked when settings leave it out.
const DefaultPollInterval = 15 * time.Second

const defaultSafetyMargin = 6

// Chains is the part of the app the engine reaches the nodes through.
type Chains interface {
	Interface(coinID chain.CoinID) (coin.Interface, error)
	Network() chain.Network
	Wait(d time.Duration) bool
	Retry(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

var _ Chains = (*app.App)(nil)

// EngineConfig holds configuration for the Engine.
type EngineConfig struct {
	Chains Chains

	// Storage, when set, persists every leg change so Resume can pick
	// watching back up after a restart.
	Storage *storage.Storage

	Logger       *logging.Logger
	PollInterval time.Duration

	// SafetyMarginBlocks overrides the per-chain table when non-zero.
	SafetyMarginBlocks uint32
}

// Engine watches swap legs and moves them through their states.
//
// Each active leg has one goroutine polling its coin. Between polls it
// sleeps in Chains.Wait, so stopping the app ends every watcher at its next
// wake-up. Leg state lives in memory under mu and is written through to
// storage on every change.
type Engine struct {
	chains       Chains
	store        *storage.Storage
	log          *logging.Logger
	interval     time.Duration
	safetyMargin uint32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	legs     map[string]*Leg
	watching map[string]bool
}

// NewEngine creates a swap engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil || cfg.Chains == nil {
		return nil, errors.New("swap: chains required")
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		chains:       cfg.Chains,
		store:        cfg.Storage,
		log:          logger.Component("swap"),
		interval:     interval,
		safetyMargin: cfg.SafetyMarginBlocks,
		ctx:          ctx,
		cancel:       cancel,
		legs:         make(map[string]*Leg),
		watching:     make(map[string]bool),
	}, nil
}

// Resume reloads every non-terminal leg from storage and starts watching
// it. It returns the number of legs resumed.
func (e *Engine) Resume() (int, error) {
	if e.store == nil {
		return 0, nil
	}
	records, err := e.store.ListActiveSwapLegs()
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, r := range records {
		leg, err := legFromRecord(r)
		if err != nil {
			e.log.Warn("Skipping unreadable swap leg", "leg", r.ID, "error", err)
			continue
		}
		if _, err := e.chains.Interface(leg.Coin); err != nil {
			e.log.Warn("Skipping swap leg for unavailable coin", "leg", leg.ID, "coin", leg.Coin, "error", err)
			continue
		}

		e.mu.Lock()
		if _, exists := e.legs[leg.ID]; !exists {
			e.legs[leg.ID] = leg
		}
		e.mu.Unlock()

		e.watch(leg.ID)
		resumed++
	}

	e.log.Info("Resumed swap legs", "count", resumed)
	return resumed, nil
}

// AddLeg registers a leg and starts watching it. A leg with a TxID starts
// out locked; one without waits in pending for Publish.
func (e *Engine) AddLeg(leg *Leg) (*Leg, error) {
	if err := leg.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.chains.Interface(leg.Coin); err != nil {
		return nil, err
	}
	if e.ctx.Err() != nil {
		return nil, ErrEngineStopped
	}

	l := leg.clone()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.State == "" {
		l.State = StatePending
		if l.TxID != "" {
			l.State = StateLocked
		}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	e.mu.Lock()
	if _, exists := e.legs[l.ID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLegExists, l.ID)
	}
	if err := e.save(l); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.legs[l.ID] = l
	e.mu.Unlock()

	e.log.Info("Swap leg added",
		"leg", l.ID,
		"trade_id", l.TradeID,
		"coin", l.Coin,
		"role", l.Role,
		"state", l.State,
	)

	if !l.State.IsTerminal() {
		e.watch(l.ID)
	}
	return l.clone(), nil
}

// Leg returns a copy of a leg, falling back to storage for legs this
// process never loaded.
func (e *Engine) Leg(id string) (*Leg, error) {
	e.mu.RLock()
	l, ok := e.legs[id]
	e.mu.RUnlock()
	if ok {
		return l.clone(), nil
	}

	if e.store != nil {
		r, err := e.store.GetSwapLeg(id)
		if errors.Is(err, storage.ErrSwapLegNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLegNotFound, id)
		}
		if err != nil {
			return nil, err
		}
		return legFromRecord(r)
	}
	return nil, fmt.Errorf("%w: %s", ErrLegNotFound, id)
}

// Legs returns copies of every leg this process knows about, oldest first.
func (e *Engine) Legs() []*Leg {
	e.mu.RLock()
	legs := make([]*Leg, 0, len(e.legs))
	for _, l := range e.legs {
		legs = append(legs, l.clone())
	}
	e.mu.RUnlock()

	sortLegs(legs)
	return legs
}

// TradeLegs returns every leg of a trade, oldest first. Stored legs are
// included, with the in-memory copy winning for legs this process loaded.
func (e *Engine) TradeLegs(tradeID string) ([]*Leg, error) {
	byID := make(map[string]*Leg)

	if e.store != nil {
		records, err := e.store.GetSwapLegsByTradeID(tradeID)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			leg, err := legFromRecord(r)
			if err != nil {
				e.log.Warn("Skipping unreadable swap leg", "leg", r.ID, "error", err)
				continue
			}
			byID[leg.ID] = leg
		}
	}

	e.mu.RLock()
	for id, l := range e.legs {
		if l.TradeID == tradeID {
			byID[id] = l.clone()
		}
	}
	e.mu.RUnlock()

	legs := make([]*Leg, 0, len(byID))
	for _, l := range byID {
		legs = append(legs, l)
	}
	sortLegs(legs)
	return legs, nil
}

func sortLegs(legs []*Leg) {
	sort.Slice(legs, func(i, j int) bool {
		if legs[i].CreatedAt.Equal(legs[j].CreatedAt) {
			return legs[i].ID < legs[j].ID
		}
		return legs[i].CreatedAt.Before(legs[j].CreatedAt)
	})
}

// loaded returns a copy of a leg this process is watching. Legs only in
// storage are refused since their changes could not be applied.
func (e *Engine) loaded(id string) (*Leg, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.legs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not loaded", ErrLegNotFound, id)
	}
	return l.clone(), nil
}

// Watching reports whether a watcher goroutine is running for the leg.
func (e *Engine) Watching(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.watching[id]
}

// Close stops every watcher and waits for them to exit. Calls already
// talking to a node finish first.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// Publish broadcasts the signed transaction for a pending leg and moves it
// to locked.
func (e *Engine) Publish(ctx context.Context, id string, rawHex string) (*Leg, error) {
	leg, err := e.loaded(id)
	if err != nil {
		return nil, err
	}
	if leg.State != StatePending {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrInvalidState, id, leg.State, StatePending)
	}

	txid, err := e.publish(ctx, leg.Coin, rawHex)
	if err != nil {
		return nil, err
	}

	return e.update(id, func(l *Leg) error {
		if l.State != StatePending {
			return fmt.Errorf("%w: %s changed to %s during publish", ErrInvalidState, id, l.State)
		}
		l.TxID = txid
		l.State = StateLocked
		return nil
	})
}

// CheckSpend reports whether the confirmed lock leg can still be spent
// without racing its refund. It fails with ErrTimeoutRace once the chain is
// within the safety margin of the timeout.
func (e *Engine) CheckSpend(ctx context.Context, id string) error {
	leg, err := e.Leg(id)
	if err != nil {
		return err
	}
	if leg.Role != RoleLock || leg.State != StateConfirmed {
		return fmt.Errorf("%w: %s %s leg is %s", ErrInvalidState, id, leg.Role, leg.State)
	}
	if leg.TimeoutHeight == 0 {
		return nil
	}

	iface, err := e.chains.Interface(leg.Coin)
	if err != nil {
		return err
	}
	height, err := iface.GetChainHeight(ctx)
	if err != nil {
		return err
	}

	margin := e.marginFor(leg.Coin)
	if !config.IsSafeToComplete(height, leg.TimeoutHeight, margin) {
		e.log.Warn("Lock too close to timeout to spend",
			"leg", id,
			"height", height,
			"timeout", leg.TimeoutHeight,
			"time_left", e.timeLeft(leg.Coin, height, leg.TimeoutHeight),
		)
		return fmt.Errorf("%w: height %d, timeout %d, margin %d",
			ErrTimeoutRace, height, leg.TimeoutHeight, margin)
	}
	e.log.Debug("Lock safe to spend",
		"leg", id,
		"blocks_left", config.BlocksUntilTimeout(height, leg.TimeoutHeight),
		"time_left", e.timeLeft(leg.Coin, height, leg.TimeoutHeight),
	)
	return nil
}

// Spend publishes the transaction spending a confirmed lock leg and starts
// watching it as a new spend leg of the same trade.
func (e *Engine) Spend(ctx context.Context, lockID string, rawHex string, address string) (*Leg, error) {
	if err := e.CheckSpend(ctx, lockID); err != nil {
		return nil, err
	}
	return e.publishFollowUp(ctx, lockID, RoleSpend, rawHex, address)
}

// Refund publishes the refund of a lock leg that reached its timeout and
// starts watching it as a new refund leg of the same trade.
func (e *Engine) Refund(ctx context.Context, lockID string, rawHex string, address string) (*Leg, error) {
	lock, err := e.loaded(lockID)
	if err != nil {
		return nil, err
	}
	if lock.Role != RoleLock || lock.State != StateRefunding {
		return nil, fmt.Errorf("%w: %s %s leg is %s", ErrInvalidState, lockID, lock.Role, lock.State)
	}
	return e.publishFollowUp(ctx, lockID, RoleRefund, rawHex, address)
}

func (e *Engine) publishFollowUp(ctx context.Context, lockID string, role Role, rawHex string, address string) (*Leg, error) {
	lock, err := e.loaded(lockID)
	if err != nil {
		return nil, err
	}

	txid, err := e.publish(ctx, lock.Coin, rawHex)
	if err != nil {
		return nil, err
	}

	return e.AddLeg(&Leg{
		TradeID: lock.TradeID,
		Coin:    lock.Coin,
		Role:    role,
		Amount:  lock.Amount,
		Address: address,
		TxID:    txid,
		LockID:  lockID,
	})
}

// Withdraw sends coins out of a wallet. Transient node failures are retried;
// anything else, including an insufficient balance, is returned unchanged.
func (e *Engine) Withdraw(ctx context.Context, coinID chain.CoinID, amount string, to string, subtractFee bool) (string, error) {
	iface, err := e.chains.Interface(coinID)
	if err != nil {
		return "", err
	}

	var txid string
	err = e.chains.Retry(ctx, "withdraw "+coinID.String(), func(ctx context.Context) error {
		var err error
		txid, err = iface.WithdrawCoin(ctx, amount, to, subtractFee)
		return err
	})
	if err != nil {
		return "", err
	}

	e.log.Info("Withdrawal sent", "coin", coinID, "amount", amount, "to", to, "txid", txid)
	return txid, nil
}

// publish broadcasts rawHex, retrying transient failures. A retry that finds
// the transaction already in the chain counts as success.
func (e *Engine) publish(ctx context.Context, coinID chain.CoinID, rawHex string) (string, error) {
	iface, err := e.chains.Interface(coinID)
	if err != nil {
		return "", err
	}
	expected, err := txIDFromHex(rawHex)
	if err != nil {
		return "", err
	}

	var txid string
	attempt := 0
	err = e.chains.Retry(ctx, "publish "+coinID.String(), func(ctx context.Context) error {
		attempt++
		var err error
		txid, err = iface.PublishTx(ctx, rawHex)
		if err != nil && attempt > 1 && backend.IsRPCCode(err, btcjson.ErrRPCVerifyAlreadyInChain) {
			txid = expected
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}

	e.log.Info("Transaction published", "coin", coinID, "txid", txid)
	return txid, nil
}

// txIDFromHex decodes a serialized transaction and returns its id.
func txIDFromHex(rawHex string) (string, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return "", fmt.Errorf("invalid transaction hex: %w", err)
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("invalid transaction: %w", err)
	}
	return tx.TxHash().String(), nil
}

// timeLeft estimates the wall time until timeout from the chain's block time.
func (e *Engine) timeLeft(coinID chain.CoinID, height, timeout int64) time.Duration {
	cfg, ok := config.GetChainTimeout(coinID.String(), e.chains.Network())
	if !ok {
		return 0
	}
	return config.EstimateTimeUntilTimeout(height, timeout, cfg.AvgBlockTimeSeconds)
}

func (e *Engine) marginFor(coinID chain.CoinID) uint32 {
	if e.safetyMargin > 0 {
		return e.safetyMargin
	}
	if cfg, ok := config.GetChainTimeout(coinID.String(), e.chains.Network()); ok && cfg.SafetyMarginBlocks > 0 {
		return cfg.SafetyMarginBlocks
	}
	return defaultSafetyMargin
}

// update applies fn to a copy of the leg and stores the result. The leg is
// left untouched if fn or the save fails.
func (e *Engine) update(id string, fn func(l *Leg) error) (*Leg, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.legs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLegNotFound, id)
	}
	next := cur.clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := e.save(next); err != nil {
		return nil, err
	}
	e.legs[id] = next
	return next.clone(), nil
}

// save must be called with mu held.
func (e *Engine) save(l *Leg) error {
	if e.store == nil {
		return nil
	}
	return e.store.SaveSwapLeg(l.toRecord())
}

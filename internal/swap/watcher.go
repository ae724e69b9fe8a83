package swap

import (
	"context"
	"time"

	"github.com/klingon-exchange/klingon-swapd/internal/coin"
)

// checkTimeout bounds one round of node queries for a leg.
const checkTimeout = 30 * time.Second

// watch starts the watcher goroutine for a leg unless one is running.
func (e *Engine) watch(id string) {
	e.mu.Lock()
	if e.watching[id] {
		e.mu.Unlock()
		return
	}
	e.watching[id] = true
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(id)
}

// run is the per-leg polling loop.
func (e *Engine) run(id string) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.watching, id)
		e.mu.Unlock()
	}()

	for {
		done, err := e.CheckNow(e.ctx, id)
		if err != nil {
			e.log.Debug("Error checking swap leg", "leg", id, "error", err)
		}
		if done || e.ctx.Err() != nil {
			return
		}
		if !e.wait() {
			return
		}
	}
}

// wait sleeps one poll interval. It returns false if the app stopped or the
// engine was closed.
func (e *Engine) wait() bool {
	woke := make(chan bool, 1)
	go func() { woke <- e.chains.Wait(e.interval) }()

	select {
	case running := <-woke:
		return running && e.ctx.Err() == nil
	case <-e.ctx.Done():
		return false
	}
}

// CheckNow runs one round of checks for a leg and applies any transition.
// It reports whether the leg has reached a terminal state.
func (e *Engine) CheckNow(ctx context.Context, id string) (bool, error) {
	leg, err := e.Leg(id)
	if err != nil {
		return true, err
	}
	if leg.State.IsTerminal() {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	iface, err := e.chains.Interface(leg.Coin)
	if err != nil {
		return false, err
	}
	height, err := iface.GetChainHeight(ctx)
	if err != nil {
		return false, err
	}

	switch leg.State {
	case StatePending:
		if leg.TimedOut(height) {
			return e.fail(id, "timed out before the transaction was published")
		}

	case StateLocked:
		lookup := iface.FindTransactionByHash(ctx, leg.TxID)
		if lookup.Status == coin.Failed {
			e.log.Debug("Transaction lookup failed", "leg", id, "txid", leg.TxID, "error", lookup.Err)
		}
		lookup = lookup.Advisory()
		if lookup.IsFound() {
			return e.confirmed(leg, lookup)
		}
		if leg.Role == RoleLock && leg.TimedOut(height) {
			return e.transition(id, StateLocked, StateRefunding, nil)
		}

	case StateConfirmed:
		if leg.TimedOut(height) {
			e.log.Warn("Lock timed out, refund required",
				"leg", id,
				"trade_id", leg.TradeID,
				"height", height,
				"timeout", leg.TimeoutHeight,
			)
			return e.transition(id, StateConfirmed, StateRefunding, nil)
		}

	case StateRefunding:
		// Waits for a refund leg of the same trade to confirm.
	}
	return false, nil
}

// confirmed applies a confirmed transaction to its leg. A confirmed spend or
// refund also settles the lock leg it spent.
func (e *Engine) confirmed(leg *Leg, lookup coin.TxLookup) (bool, error) {
	var next State
	switch leg.Role {
	case RoleLock:
		next = StateConfirmed
	case RoleSpend:
		next = StateCompleted
	case RoleRefund:
		next = StateRefunded
	}

	done, err := e.transition(leg.ID, StateLocked, next, func(l *Leg) {
		l.ConfirmedHeight = lookup.Height
	})
	if err != nil {
		return done, err
	}

	e.log.Info("Swap leg transaction confirmed",
		"leg", leg.ID,
		"role", leg.Role,
		"txid", leg.TxID,
		"height", lookup.Height,
	)

	if leg.Role != RoleLock && leg.LockID != "" {
		e.settleLock(leg.LockID, next)
	}
	return done, nil
}

// settleLock moves an unsettled lock leg to state.
func (e *Engine) settleLock(lockID string, state State) {
	_, err := e.update(lockID, func(l *Leg) error {
		if l.Role == RoleLock && !l.State.IsTerminal() {
			l.State = state
		}
		return nil
	})
	if err != nil {
		e.log.Warn("Failed to settle lock leg", "leg", lockID, "state", state, "error", err)
	}
}

// transition moves a leg from one state to another, doing nothing if the leg
// has left from in the meantime.
func (e *Engine) transition(id string, from, to State, fn func(l *Leg)) (bool, error) {
	updated, err := e.update(id, func(l *Leg) error {
		if l.State != from {
			return nil
		}
		l.State = to
		if fn != nil {
			fn(l)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if updated.State == to {
		e.log.Info("Swap leg state changed", "leg", id, "from", from, "to", to)
	}
	return updated.State.IsTerminal(), nil
}

func (e *Engine) fail(id string, reason string) (bool, error) {
	_, err := e.update(id, func(l *Leg) error {
		l.State = StateFailed
		l.FailureReason = reason
		return nil
	})
	if err != nil {
		return false, err
	}
	e.log.Warn("Swap leg failed", "leg", id, "reason", reason)
	return true, nil
}

package swap

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/klingon-swapd/internal/backend"
	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/internal/coin"
	"github.com/klingon-exchange/klingon-swapd/internal/storage"
)

// fakeCoin answers the chain queries the engine makes. Unused interface
// methods panic through the nil embedded interface.
type fakeCoin struct {
	coin.Interface

	mu        sync.Mutex
	id        chain.CoinID
	height    int64
	heightErr error
	lookups   map[string]coin.TxLookup
	publish   []error // consumed one per PublishTx call
	published []string
	withdraw  []error
	withdrawn int
}

func newFakeCoin(id chain.CoinID) *fakeCoin {
	return &fakeCoin{id: id, height: 100, lookups: make(map[string]coin.TxLookup)}
}

func (f *fakeCoin) CoinType() chain.CoinID { return f.id }

func (f *fakeCoin) setHeight(h int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height = h
}

func (f *fakeCoin) setLookup(txid string, l coin.TxLookup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[txid] = l
}

func (f *fakeCoin) GetChainHeight(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, f.heightErr
}

func (f *fakeCoin) FindTransactionByHash(_ context.Context, txid string) coin.TxLookup {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.lookups[txid]; ok {
		return l
	}
	return coin.TxLookup{Status: coin.NotFound, TxID: txid}
}

func (f *fakeCoin) PublishTx(_ context.Context, rawHex string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.publish) > 0 {
		err := f.publish[0]
		f.publish = f.publish[1:]
		if err != nil {
			return "", err
		}
	}
	txid, err := txIDFromHex(rawHex)
	if err != nil {
		return "", err
	}
	f.published = append(f.published, txid)
	return txid, nil
}

func (f *fakeCoin) WithdrawCoin(_ context.Context, amount string, to string, subtractFee bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawn++
	if len(f.withdraw) > 0 {
		err := f.withdraw[0]
		f.withdraw = f.withdraw[1:]
		if err != nil {
			return "", err
		}
	}
	return "withdraw-" + to, nil
}

// fakeChains stands in for the app.
type fakeChains struct {
	coins   map[chain.CoinID]*fakeCoin
	network chain.Network
	stopCh  chan struct{}
	once    sync.Once
}

func newFakeChains(coins ...*fakeCoin) *fakeChains {
	f := &fakeChains{coins: make(map[chain.CoinID]*fakeCoin), network: chain.Mainnet, stopCh: make(chan struct{})}
	for _, c := range coins {
		f.coins[c.id] = c
	}
	return f
}

func (f *fakeChains) Interface(id chain.CoinID) (coin.Interface, error) {
	c, ok := f.coins[id]
	if !ok {
		return nil, coin.ErrUnsupportedCoin
	}
	return c, nil
}

func (f *fakeChains) Network() chain.Network { return f.network }

func (f *fakeChains) Wait(d time.Duration) bool {
	select {
	case <-f.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func (f *fakeChains) stop() { f.once.Do(func() { close(f.stopCh) }) }

func (f *fakeChains) Retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil || !backend.IsTransientError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stopCh:
			return errors.New("stopped")
		default:
		}
	}
}

func newTestEngine(t *testing.T, chains Chains, store *storage.Storage) *Engine {
	t.Helper()
	e, err := NewEngine(&EngineConfig{
		Chains:             chains,
		Storage:            store,
		PollInterval:       5 * time.Millisecond,
		SafetyMarginBlocks: 6,
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testTxHex returns a serialized transaction and its id.
func testTxHex(t *testing.T, seq uint32) (string, string) {
	t.Helper()
	tx := wire.NewMsgTx(2)
	prev := wire.NewOutPoint(&chainhash.Hash{0x01, byte(seq)}, seq)
	tx.AddTxIn(wire.NewTxIn(prev, nil, nil))
	tx.AddTxOut(wire.NewTxOut(50000, []byte{0x00, 0x14}))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes()), tx.TxHash().String()
}

func waitForState(t *testing.T, e *Engine, id string, want State) *Leg {
	t.Helper()
	var leg *Leg
	require.Eventually(t, func() bool {
		var err error
		leg, err = e.Leg(id)
		return err == nil && leg.State == want
	}, 5*time.Second, 5*time.Millisecond, "leg %s never reached %s", id, want)
	return leg
}

func TestLegValidate(t *testing.T) {
	valid := Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock, Amount: 1000}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(l *Leg)
	}{
		{"no trade", func(l *Leg) { l.TradeID = "" }},
		{"unknown coin", func(l *Leg) { l.Coin = chain.CoinID(99) }},
		{"unknown role", func(l *Leg) { l.Role = "watch" }},
		{"negative amount", func(l *Leg) { l.Amount = -1 }},
		{"negative timeout", func(l *Leg) { l.TimeoutHeight = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := valid
			tt.mutate(&l)
			assert.ErrorIs(t, l.Validate(), ErrInvalidLeg)
		})
	}
}

func TestLegRecordRoundTrip(t *testing.T) {
	leg := &Leg{
		ID:              "leg-1",
		TradeID:         "trade-1",
		Coin:            chain.LTC,
		Role:            RoleRefund,
		State:           StateConfirmed,
		Amount:          42,
		Address:         "ltc1qexample",
		TxID:            "ab",
		ConfirmedHeight: 7,
		TimeoutHeight:   9,
		LockID:          "lock-1",
		CreatedAt:       time.Unix(1700000000, 0),
	}
	r := leg.toRecord()
	assert.Equal(t, "litecoin", r.Coin)
	assert.Equal(t, "lock-1", r.LockID)

	back, err := legFromRecord(r)
	require.NoError(t, err)
	assert.Equal(t, leg, back)

	r.Coin = "dogecoin"
	_, err = legFromRecord(r)
	assert.ErrorIs(t, err, chain.ErrUnknownCoin)
}

func TestAddLegDefaults(t *testing.T) {
	dash := newFakeCoin(chain.DASH)
	e := newTestEngine(t, newFakeChains(dash), nil)

	leg, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock, Amount: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, leg.ID)
	assert.Equal(t, StatePending, leg.State)
	assert.False(t, leg.CreatedAt.IsZero())

	withTx, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleSpend, TxID: "aa"})
	require.NoError(t, err)
	assert.Equal(t, StateLocked, withTx.State)

	_, err = e.AddLeg(&Leg{ID: leg.ID, TradeID: "t1", Coin: chain.DASH, Role: RoleLock})
	assert.ErrorIs(t, err, ErrLegExists)

	_, err = e.AddLeg(&Leg{TradeID: "t1", Coin: chain.BTC, Role: RoleLock})
	assert.ErrorIs(t, err, coin.ErrUnsupportedCoin)

	assert.Len(t, e.Legs(), 2)

	_, err = e.Leg("missing")
	assert.ErrorIs(t, err, ErrLegNotFound)
}

func TestLockLegConfirmsThenRefunds(t *testing.T) {
	dash := newFakeCoin(chain.DASH)
	e := newTestEngine(t, newFakeChains(dash), nil)

	leg, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock, TxID: "lock1", TimeoutHeight: 120})
	require.NoError(t, err)

	// A failed lookup is treated as not found.
	dash.setLookup("lock1", coin.TxLookup{Status: coin.Failed, TxID: "lock1", Err: errors.New("boom")})
	done, err := e.CheckNow(context.Background(), leg.ID)
	require.NoError(t, err)
	assert.False(t, done)
	got, _ := e.Leg(leg.ID)
	assert.Equal(t, StateLocked, got.State)

	dash.setLookup("lock1", coin.TxLookup{Status: coin.Found, TxID: "lock1", Height: 101})
	got = waitForState(t, e, leg.ID, StateConfirmed)
	assert.Equal(t, int64(101), got.ConfirmedHeight)

	dash.setHeight(120)
	waitForState(t, e, leg.ID, StateRefunding)
	assert.True(t, e.Watching(leg.ID))
}

func TestUnconfirmedLockPastTimeoutRefunds(t *testing.T) {
	btc := newFakeCoin(chain.BTC)
	btc.height = 500
	e := newTestEngine(t, newFakeChains(btc), nil)

	leg, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.BTC, Role: RoleLock, TxID: "lock", TimeoutHeight: 400})
	require.NoError(t, err)
	waitForState(t, e, leg.ID, StateRefunding)
}

func TestPendingLegTimesOut(t *testing.T) {
	dash := newFakeCoin(chain.DASH)
	e := newTestEngine(t, newFakeChains(dash), nil)

	leg, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock, TimeoutHeight: 150})
	require.NoError(t, err)

	done, err := e.CheckNow(context.Background(), leg.ID)
	require.NoError(t, err)
	assert.False(t, done)

	dash.setHeight(150)
	got := waitForState(t, e, leg.ID, StateFailed)
	assert.Contains(t, got.FailureReason, "timed out")

	require.Eventually(t, func() bool { return !e.Watching(leg.ID) }, 5*time.Second, 5*time.Millisecond)
}

func TestChainHeightErrorKeepsState(t *testing.T) {
	dash := newFakeCoin(chain.DASH)
	dash.heightErr = &backend.ConnectionError{Endpoint: "x", Method: "getblockcount", Err: errors.New("refused")}
	e := newTestEngine(t, newFakeChains(dash), nil)

	leg, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock, TxID: "lock1"})
	require.NoError(t, err)
	dash.setLookup("lock1", coin.TxLookup{Status: coin.Found, TxID: "lock1", Height: 1})

	done, err := e.CheckNow(context.Background(), leg.ID)
	var connErr *backend.ConnectionError
	assert.True(t, errors.As(err, &connErr))
	assert.False(t, done)

	got, _ := e.Leg(leg.ID)
	assert.Equal(t, StateLocked, got.State)
}

func TestPublishMovesToLocked(t *testing.T) {
	dash := newFakeCoin(chain.DASH)
	e := newTestEngine(t, newFakeChains(dash), nil)

	leg, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock})
	require.NoError(t, err)

	rawHex, txid := testTxHex(t, 1)
	dash.publish = []error{backend.NewTemporaryError("wallet busy", nil)}

	got, err := e.Publish(context.Background(), leg.ID, rawHex)
	require.NoError(t, err)
	assert.Equal(t, txid, got.TxID)
	assert.Equal(t, StateLocked, got.State)
	assert.Equal(t, []string{txid}, dash.published)

	_, err = e.Publish(context.Background(), leg.ID, rawHex)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPublishAlreadyInChainAfterRetry(t *testing.T) {
	dash := newFakeCoin(chain.DASH)
	e := newTestEngine(t, newFakeChains(dash), nil)

	leg, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock})
	require.NoError(t, err)

	rawHex, txid := testTxHex(t, 2)
	alreadyInChain := &backend.RPCError{
		Method:   "sendrawtransaction",
		RPCError: &btcjson.RPCError{Code: btcjson.ErrRPCVerifyAlreadyInChain, Message: "transaction already in block chain"},
	}
	dash.publish = []error{errors.New("Read timed out"), alreadyInChain}

	got, err := e.Publish(context.Background(), leg.ID, rawHex)
	require.NoError(t, err)
	assert.Equal(t, txid, got.TxID)
}

func TestPublishPropagatesNodeErrors(t *testing.T) {
	dash := newFakeCoin(chain.DASH)
	e := newTestEngine(t, newFakeChains(dash), nil)

	leg, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock})
	require.NoError(t, err)

	rawHex, _ := testTxHex(t, 3)
	rejected := &backend.RPCError{
		Method:   "sendrawtransaction",
		RPCError: &btcjson.RPCError{Code: btcjson.ErrRPCVerifyAlreadyInChain, Message: "transaction already in block chain"},
	}
	dash.publish = []error{rejected}

	// Without a prior transient failure the node's answer stands.
	_, err = e.Publish(context.Background(), leg.ID, rawHex)
	assert.Same(t, rejected, err)

	_, err = e.Publish(context.Background(), leg.ID, "zz")
	assert.Error(t, err)

	got, _ := e.Leg(leg.ID)
	assert.Equal(t, StatePending, got.State)
}

func TestSpendGate(t *testing.T) {
	btc := newFakeCoin(chain.BTC)
	e := newTestEngine(t, newFakeChains(btc), nil)

	lock, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.BTC, Role: RoleLock, TxID: "lock1", TimeoutHeight: 200, Amount: 1000})
	require.NoError(t, err)

	rawHex, txid := testTxHex(t, 4)
	_, err = e.Spend(context.Background(), lock.ID, rawHex, "bc1qdest")
	assert.ErrorIs(t, err, ErrInvalidState, "lock not yet confirmed")

	btc.setLookup("lock1", coin.TxLookup{Status: coin.Found, TxID: "lock1", Height: 101})
	waitForState(t, e, lock.ID, StateConfirmed)

	// Within the safety margin of the timeout.
	btc.setHeight(194)
	assert.ErrorIs(t, e.CheckSpend(context.Background(), lock.ID), ErrTimeoutRace)
	_, err = e.Spend(context.Background(), lock.ID, rawHex, "bc1qdest")
	assert.ErrorIs(t, err, ErrTimeoutRace)

	btc.setHeight(193)
	require.NoError(t, e.CheckSpend(context.Background(), lock.ID))

	spend, err := e.Spend(context.Background(), lock.ID, rawHex, "bc1qdest")
	require.NoError(t, err)
	assert.Equal(t, RoleSpend, spend.Role)
	assert.Equal(t, StateLocked, spend.State)
	assert.Equal(t, "t1", spend.TradeID)
	assert.Equal(t, txid, spend.TxID)
	assert.Equal(t, int64(1000), spend.Amount)
	assert.Equal(t, lock.ID, spend.LockID)

	btc.setLookup(txid, coin.TxLookup{Status: coin.Found, TxID: txid, Height: 194})
	waitForState(t, e, spend.ID, StateCompleted)
	waitForState(t, e, lock.ID, StateCompleted)
}

func TestRefundFlow(t *testing.T) {
	ltc := newFakeCoin(chain.LTC)
	e := newTestEngine(t, newFakeChains(ltc), nil)

	lock, err := e.AddLeg(&Leg{TradeID: "t2", Coin: chain.LTC, Role: RoleLock, TxID: "lock2", TimeoutHeight: 110})
	require.NoError(t, err)

	rawHex, txid := testTxHex(t, 5)
	_, err = e.Refund(context.Background(), lock.ID, rawHex, "ltc1qback")
	assert.ErrorIs(t, err, ErrInvalidState)

	ltc.setLookup("lock2", coin.TxLookup{Status: coin.Found, TxID: "lock2", Height: 101})
	waitForState(t, e, lock.ID, StateConfirmed)
	ltc.setHeight(110)
	waitForState(t, e, lock.ID, StateRefunding)

	refund, err := e.Refund(context.Background(), lock.ID, rawHex, "ltc1qback")
	require.NoError(t, err)
	assert.Equal(t, RoleRefund, refund.Role)

	ltc.setLookup(txid, coin.TxLookup{Status: coin.Found, TxID: txid, Height: 111})
	got := waitForState(t, e, refund.ID, StateRefunded)
	assert.Equal(t, int64(111), got.ConfirmedHeight)
	waitForState(t, e, lock.ID, StateRefunded)
}

func TestSpendSettlesOnlyItsLock(t *testing.T) {
	btc := newFakeCoin(chain.BTC)
	ltc := newFakeCoin(chain.LTC)
	e := newTestEngine(t, newFakeChains(btc, ltc), nil)

	btcLock, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.BTC, Role: RoleLock, TxID: "btc-lock", TimeoutHeight: 300})
	require.NoError(t, err)
	ltcLock, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.LTC, Role: RoleLock, TxID: "ltc-lock", TimeoutHeight: 300})
	require.NoError(t, err)

	btc.setLookup("btc-lock", coin.TxLookup{Status: coin.Found, TxID: "btc-lock", Height: 101})
	ltc.setLookup("ltc-lock", coin.TxLookup{Status: coin.Found, TxID: "ltc-lock", Height: 101})
	waitForState(t, e, btcLock.ID, StateConfirmed)
	waitForState(t, e, ltcLock.ID, StateConfirmed)

	rawHex, txid := testTxHex(t, 6)
	spend, err := e.Spend(context.Background(), btcLock.ID, rawHex, "bc1qdest")
	require.NoError(t, err)
	btc.setLookup(txid, coin.TxLookup{Status: coin.Found, TxID: txid, Height: 102})

	waitForState(t, e, spend.ID, StateCompleted)
	waitForState(t, e, btcLock.ID, StateCompleted)

	// The other chain's lock is still waiting on its own spend.
	got, err := e.Leg(ltcLock.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, got.State)
	assert.True(t, e.Watching(ltcLock.ID))
}

func TestStoredOnlyLegIsNotBroadcast(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.SaveSwapLeg(&storage.SwapLeg{
		ID: "pending-leg", TradeID: "t1", Coin: "dash", Role: storage.SwapLegRoleLock, State: storage.SwapLegStatePending,
	}))
	require.NoError(t, store.SaveSwapLeg(&storage.SwapLeg{
		ID: "refunding-leg", TradeID: "t1", Coin: "dash", Role: storage.SwapLegRoleLock, State: storage.SwapLegStateRefunding, TxID: "lock1",
	}))

	dash := newFakeCoin(chain.DASH)
	e := newTestEngine(t, newFakeChains(dash), store)

	rawHex, _ := testTxHex(t, 7)
	_, err := e.Publish(context.Background(), "pending-leg", rawHex)
	assert.ErrorIs(t, err, ErrLegNotFound)
	_, err = e.Refund(context.Background(), "refunding-leg", rawHex, "Xback")
	assert.ErrorIs(t, err, ErrLegNotFound)
	assert.Empty(t, dash.published)

	r, err := store.GetSwapLeg("pending-leg")
	require.NoError(t, err)
	assert.Equal(t, storage.SwapLegStatePending, r.State)

	// Once resumed the same leg can be published.
	_, err = e.Resume()
	require.NoError(t, err)
	got, err := e.Publish(context.Background(), "pending-leg", rawHex)
	require.NoError(t, err)
	assert.Equal(t, StateLocked, got.State)
	assert.Len(t, dash.published, 1)
}

func TestTradeLegs(t *testing.T) {
	store := newTestStorage(t)
	dash := newFakeCoin(chain.DASH)
	chains := newFakeChains(dash)

	first := newTestEngine(t, chains, store)
	done, err := first.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleRefund, TxID: "r", State: StateRefunded, CreatedAt: time.Unix(1000, 0)})
	require.NoError(t, err)
	_, err = first.AddLeg(&Leg{TradeID: "other", Coin: chain.DASH, Role: RoleLock, TxID: "x"})
	require.NoError(t, err)
	first.Close()

	second := newTestEngine(t, chains, store)
	live, err := second.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock, TxID: "lock1", CreatedAt: time.Unix(2000, 0)})
	require.NoError(t, err)

	legs, err := second.TradeLegs("t1")
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, done.ID, legs[0].ID)
	assert.Equal(t, StateRefunded, legs[0].State)
	assert.Equal(t, live.ID, legs[1].ID)

	none, err := second.TradeLegs("missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	memOnly := newTestEngine(t, chains, nil)
	_, err = memOnly.AddLeg(&Leg{TradeID: "t9", Coin: chain.DASH, Role: RoleLock})
	require.NoError(t, err)
	legs, err = memOnly.TradeLegs("t9")
	require.NoError(t, err)
	assert.Len(t, legs, 1)
}

func TestWithdraw(t *testing.T) {
	dash := newFakeCoin(chain.DASH)
	e := newTestEngine(t, newFakeChains(dash), nil)

	dash.withdraw = []error{errors.New("error: no connection to daemon")}
	txid, err := e.Withdraw(context.Background(), chain.DASH, "1.5", "Xdest", false)
	require.NoError(t, err)
	assert.Equal(t, "withdraw-Xdest", txid)
	assert.Equal(t, 2, dash.withdrawn)

	insufficient := &backend.RPCError{
		Method:   "sendtoaddress",
		RPCError: &btcjson.RPCError{Code: btcjson.ErrRPCWalletInsufficientFunds, Message: "Insufficient funds"},
	}
	dash.withdraw = []error{insufficient}
	_, err = e.Withdraw(context.Background(), chain.DASH, "1000", "Xdest", false)
	assert.Same(t, insufficient, err)
	assert.Equal(t, 3, dash.withdrawn)

	_, err = e.Withdraw(context.Background(), chain.BTC, "1", "bc1q", false)
	assert.ErrorIs(t, err, coin.ErrUnsupportedCoin)
}

func TestResumeFromStorage(t *testing.T) {
	store := newTestStorage(t)
	dash := newFakeCoin(chain.DASH)
	chains := newFakeChains(dash)

	first := newTestEngine(t, chains, store)
	active, err := first.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock, TxID: "lock1"})
	require.NoError(t, err)
	_, err = first.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleSpend, TxID: "spent", State: StateCompleted})
	require.NoError(t, err)
	first.Close()
	assert.False(t, first.Watching(active.ID))

	second := newTestEngine(t, chains, store)
	n, err := second.Resume()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := second.Leg(active.ID)
	require.NoError(t, err)
	assert.Equal(t, StateLocked, got.State)
	assert.Equal(t, "lock1", got.TxID)

	dash.setLookup("lock1", coin.TxLookup{Status: coin.Found, TxID: "lock1", Height: 100})
	waitForState(t, second, active.ID, StateConfirmed)

	r, err := store.GetSwapLeg(active.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.SwapLegStateConfirmed, r.State)
	assert.Equal(t, int64(100), r.ConfirmedHeight)
}

func TestResumeSkipsUnavailableCoins(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.SaveSwapLeg(&storage.SwapLeg{
		ID: "btc-leg", TradeID: "t1", Coin: "bitcoin", Role: storage.SwapLegRoleLock, State: storage.SwapLegStateLocked,
	}))

	e := newTestEngine(t, newFakeChains(newFakeCoin(chain.DASH)), store)
	n, err := e.Resume()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Still readable from storage.
	leg, err := e.Leg("btc-leg")
	require.NoError(t, err)
	assert.Equal(t, chain.BTC, leg.Coin)
}

func TestStopEndsWatchers(t *testing.T) {
	dash := newFakeCoin(chain.DASH)
	chains := newFakeChains(dash)
	e, err := NewEngine(&EngineConfig{Chains: chains, PollInterval: time.Hour})
	require.NoError(t, err)

	leg, err := e.AddLeg(&Leg{TradeID: "t1", Coin: chain.DASH, Role: RoleLock, TxID: "lock1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.Watching(leg.ID) }, time.Second, time.Millisecond)

	chains.stop()
	require.Eventually(t, func() bool { return !e.Watching(leg.ID) }, 5*time.Second, 5*time.Millisecond)

	e.Close()
	_, err = e.AddLeg(&Leg{TradeID: "t2", Coin: chain.DASH, Role: RoleLock})
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestMarginFor(t *testing.T) {
	chains := newFakeChains(newFakeCoin(chain.BTC))
	e, err := NewEngine(&EngineConfig{Chains: chains})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, uint32(6), e.marginFor(chain.BTC))
	assert.Equal(t, uint32(30), e.marginFor(chain.PART))
	assert.Equal(t, DefaultPollInterval, e.interval)

	e.safetyMargin = 2
	assert.Equal(t, uint32(2), e.marginFor(chain.PART))

	assert.Equal(t, time.Hour, e.timeLeft(chain.BTC, 100, 106))
	assert.Equal(t, time.Duration(0), e.timeLeft(chain.BTC, 300, 200))

	_, err = NewEngine(nil)
	assert.Error(t, err)
}

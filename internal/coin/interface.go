// Package coin defines the capability contract every supported chain wallet
// implements, plus the Bitcoin-family implementations.
//
// Implementations hold no per-swap state. They reach their node only through
// the RPCFunc handed to them by the app, so one instance is safe to share
// between every goroutine driving a swap.
package coin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/pkg/logging"
)

// Common errors
var (
	ErrUnsupportedCoin = errors.New("coin has no wallet implementation")
	ErrInvalidSeed     = errors.New("invalid wallet seed")
	ErrInvalidTxID     = errors.New("invalid transaction id")
)

// RPCFunc issues one RPC call against the coin's node. The wallet, if any, is
// bound when the closure is built.
type RPCFunc func(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)

// Interface is the set of wallet and chain operations the swap engine needs
// from each coin.
type Interface interface {
	CoinType() chain.CoinID
	Params() *chain.Params
	BlocksConfirmed() int

	// Addresses
	EncodeAddress(raw []byte) (string, error)
	DecodeAddress(addr string) ([]byte, error)
	GetScriptForPubkeyHash(pkh []byte) ([]byte, error)
	GetNewAddress(ctx context.Context) (string, error)

	// Amounts
	MakeInt(amount string) (int64, error)
	FormatAmount(amount int64) string

	// Wallet
	GetSpendableBalance(ctx context.Context) (int64, error)
	WithdrawCoin(ctx context.Context, amount string, to string, subtractFee bool) (string, error)
	InitialiseWallet(ctx context.Context, seed []byte) error
	SeedToMnemonic(seed []byte) (string, error)
	CheckExpectedSeed(ctx context.Context, keyHash string) bool

	// Transactions
	ComputeLockSpendFee(tx *wire.MsgTx, feeRatePerKB int64) int64
	FindTransactionByHash(ctx context.Context, txid string) TxLookup
	PublishTx(ctx context.Context, rawHex string) (string, error)

	// Chain
	GetChainHeight(ctx context.Context) (int64, error)
	GetBlockHeader(ctx context.Context, hash string) (*BlockHeader, error)
	GetFeeRate(ctx context.Context) (int64, string, error)
}

// Options holds per-coin tunables taken from settings. Zero values fall back
// to the chain params.
type Options struct {
	ConfTarget      int
	BlocksConfirmed int
	Logger          *logging.Logger
}

// New returns the wallet implementation for params.Coin.
func New(params *chain.Params, rpc RPCFunc, opts Options) (Interface, error) {
	switch params.Coin {
	case chain.BTC, chain.LTC:
		return NewBTC(params, rpc, opts), nil
	case chain.DASH:
		return NewDASH(params, rpc, opts), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCoin, params.Coin)
}

// LookupStatus is the outcome of a transaction lookup.
type LookupStatus int

const (
	NotFound LookupStatus = iota // unknown txid, or not yet confirmed enough
	Found
	Failed // the node could not answer
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Failed:
		return "failed"
	default:
		return "not_found"
	}
}

// TxLookup is the result of FindTransactionByHash.
type TxLookup struct {
	Status LookupStatus
	TxID   string
	Amount int64 // smallest unit, absolute value of the wallet delta
	Height int64
	Err    error // set only when Status is Failed
}

// IsFound reports whether the transaction is confirmed past the threshold.
func (l TxLookup) IsFound() bool { return l.Status == Found }

// Advisory treats a failed lookup as not found, for polling callers that
// will simply ask again.
func (l TxLookup) Advisory() TxLookup {
	if l.Status == Failed {
		return TxLookup{Status: NotFound, TxID: l.TxID}
	}
	return l
}

// BlockHeader is the subset of getblockheader the engine uses.
type BlockHeader struct {
	Hash              string `json:"hash"`
	Height            int64  `json:"height"`
	Time              int64  `json:"time"`
	Confirmations     int64  `json:"confirmations"`
	PreviousBlockHash string `json:"previousblockhash"`
}

// AddressError reports an address that does not decode for this coin and network.
type AddressError struct {
	Coin    chain.CoinID
	Address string
	Reason  string
	Err     error
}

func (e *AddressError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s address %q: %s: %v", e.Coin, e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s address %q: %s", e.Coin, e.Address, e.Reason)
}

func (e *AddressError) Unwrap() error { return e.Err }

package coin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/klingon-swapd/internal/chain"
)

// btcLockSpendWitnessBytes is the witness a lock spend will carry once signed.
//
// TODO: measure against a signed spend of the real lock script before
// enabling BTC or LTC swaps on mainnet.
const btcLockSpendWitnessBytes = 109

const witnessScaleFactor = 4

// BTC is the wallet for Bitcoin Core and its direct clones (Litecoin).
// Addresses are native segwit; the HD seed is imported with sethdseed.
type BTC struct {
	*BTCFamily
}

// NewBTC creates a Bitcoin-style wallet for params.
func NewBTC(params *chain.Params, rpc RPCFunc, opts Options) *BTC {
	return &BTC{BTCFamily: newBTCFamily(params, rpc, opts)}
}

// EncodeAddress encodes a witness program, or a pubkey hash as P2PKH on a
// chain without segwit.
func (b *BTC) EncodeAddress(raw []byte) (string, error) {
	if !b.params.SupportsSegWit {
		return b.encodeBase58(raw)
	}
	addr, err := EncodeSegwitAddress(b.params.Bech32HRP, raw)
	if err != nil {
		return "", b.addressError(fmt.Sprintf("%x", raw), "bad witness program", err)
	}
	return addr, nil
}

// DecodeAddress accepts bech32 addresses for this network's hrp and legacy
// base58 addresses for this network's version bytes.
func (b *BTC) DecodeAddress(addr string) ([]byte, error) {
	if hrp := b.params.Bech32HRP; hrp != "" && strings.HasPrefix(strings.ToLower(addr), hrp+"1") {
		raw, err := DecodeSegwitAddress(hrp, addr)
		if err != nil {
			return nil, b.addressError(addr, "bad segwit address", err)
		}
		return raw, nil
	}
	return b.decodeBase58(addr)
}

// GetScriptForPubkeyHash returns the P2WPKH script for pkh.
func (b *BTC) GetScriptForPubkeyHash(pkh []byte) ([]byte, error) {
	if !b.params.SupportsSegWit {
		return p2pkhScript(pkh)
	}
	return p2wpkhScript(pkh)
}

// GetNewAddress asks the wallet for a fresh receive address.
func (b *BTC) GetNewAddress(ctx context.Context) (string, error) {
	params := []interface{}{newAddressLabel}
	if b.params.SupportsSegWit {
		params = append(params, "bech32")
	}
	var addr string
	if err := b.call(ctx, &addr, "getnewaddress", params...); err != nil {
		return "", err
	}
	return addr, nil
}

// GetSpendableBalance returns the wallet's trusted balance.
func (b *BTC) GetSpendableBalance(ctx context.Context) (int64, error) {
	var rv struct {
		Mine struct {
			Trusted json.Number `json:"trusted"`
		} `json:"mine"`
	}
	if err := b.call(ctx, &rv, "getbalances"); err != nil {
		return 0, err
	}
	return b.MakeInt(rv.Mine.Trusted.String())
}

// WithdrawCoin sends amount to an address, opting in to replace-by-fee.
// Node errors are returned unchanged.
func (b *BTC) WithdrawCoin(ctx context.Context, amount string, to string, subtractFee bool) (string, error) {
	if _, err := b.DecodeAddress(to); err != nil {
		return "", err
	}
	value, err := b.sendValue(amount)
	if err != nil {
		return "", err
	}

	var txid string
	if err := b.call(ctx, &txid, "sendtoaddress", to, value, "", "", subtractFee, true, b.confTarget); err != nil {
		return "", err
	}
	b.log.Info("Withdrawal sent", "txid", txid, "amount", value, "to", to)
	return txid, nil
}

// ComputeLockSpendFee prices the lock spend by virtual size, counting the
// witness the spend will carry before it has been signed.
func (b *BTC) ComputeLockSpendFee(tx *wire.MsgTx, feeRatePerKB int64) int64 {
	if feeRatePerKB <= 0 {
		return 0
	}
	stripped := int64(tx.SerializeSizeStripped())
	full := int64(tx.SerializeSize()) + btcLockSpendWitnessBytes
	weight := stripped*(witnessScaleFactor-1) + full
	vsize := (weight + witnessScaleFactor - 1) / witnessScaleFactor

	fee := feeRatePerKB * vsize / 1000
	b.log.Debug("Lock spend fee", "fee_rate", feeRatePerKB, "vsize", vsize, "fee", fee)
	return fee
}

// InitialiseWallet sets the wallet's HD seed from 32 bytes of key material.
func (b *BTC) InitialiseWallet(ctx context.Context, seed []byte) error {
	if len(seed) != 32 {
		return fmt.Errorf("%w: need 32 bytes, got %d", ErrInvalidSeed, len(seed))
	}
	priv, _ := btcec.PrivKeyFromBytes(seed)
	wif, err := btcutil.NewWIF(priv, b.netParams(), true)
	if err != nil {
		return fmt.Errorf("failed to encode seed: %w", err)
	}
	if err := b.call(ctx, nil, "sethdseed", true, wif.String()); err != nil {
		return fmt.Errorf("sethdseed: %w", err)
	}
	return nil
}

// CheckExpectedSeed compares the wallet's hdseedid to keyHash. Any failure is
// logged and reported as a mismatch.
func (b *BTC) CheckExpectedSeed(ctx context.Context, keyHash string) bool {
	var rv struct {
		HDSeedID string `json:"hdseedid"`
	}
	if err := b.call(ctx, &rv, "getwalletinfo"); err != nil {
		b.log.Warn("checkExpectedSeed failed", "error", err)
		return false
	}
	return rv.HDSeedID != "" && strings.EqualFold(rv.HDSeedID, keyHash)
}

var _ Interface = (*BTC)(nil)

package coin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"github.com/tyler-smith/go-bip39"

	"github.com/klingon-exchange/klingon-swapd/internal/chain"
)

// dashLockSpendWitnessBytes is the signature and pubkey a lock spend will
// carry once signed. Dash has no witness, so this is added to the plain size.
const dashLockSpendWitnessBytes = 107

// DASH is the Dash Core wallet: legacy P2PKH only, with the HD wallet
// bootstrapped from a BIP39 mnemonic via upgradetohd.
type DASH struct {
	*BTCFamily
}

// NewDASH creates a Dash wallet for params.
func NewDASH(params *chain.Params, rpc RPCFunc, opts Options) *DASH {
	return &DASH{BTCFamily: newBTCFamily(params, rpc, opts)}
}

// EncodeAddress encodes a pubkey hash as a P2PKH address.
func (d *DASH) EncodeAddress(raw []byte) (string, error) {
	return d.encodeBase58(raw)
}

// DecodeAddress returns the hash of a P2PKH or P2SH address, without the
// version byte.
func (d *DASH) DecodeAddress(addr string) ([]byte, error) {
	return d.decodeBase58(addr)
}

// GetScriptForPubkeyHash returns the P2PKH script for pkh.
func (d *DASH) GetScriptForPubkeyHash(pkh []byte) ([]byte, error) {
	return p2pkhScript(pkh)
}

// GetNewAddress asks the wallet for a fresh receive address.
func (d *DASH) GetNewAddress(ctx context.Context) (string, error) {
	var addr string
	if err := d.call(ctx, &addr, "getnewaddress", newAddressLabel); err != nil {
		return "", err
	}
	return addr, nil
}

// GetSpendableBalance returns the balance reported by getwalletinfo.
func (d *DASH) GetSpendableBalance(ctx context.Context) (int64, error) {
	var rv struct {
		Balance json.Number `json:"balance"`
	}
	if err := d.call(ctx, &rv, "getwalletinfo"); err != nil {
		return 0, err
	}
	return d.MakeInt(rv.Balance.String())
}

// WithdrawCoin sends amount to an address. Dash's sendtoaddress takes
// use_is and use_cj flags before the conf target; both are off.
func (d *DASH) WithdrawCoin(ctx context.Context, amount string, to string, subtractFee bool) (string, error) {
	if _, err := d.DecodeAddress(to); err != nil {
		return "", err
	}
	value, err := d.sendValue(amount)
	if err != nil {
		return "", err
	}

	var txid string
	if err := d.call(ctx, &txid, "sendtoaddress", to, value, "", "", subtractFee, false, false, d.confTarget); err != nil {
		return "", err
	}
	d.log.Info("Withdrawal sent", "txid", txid, "amount", value, "to", to)
	return txid, nil
}

// ComputeLockSpendFee prices the lock spend by serialized size plus the
// unsigned input's expected signature script.
func (d *DASH) ComputeLockSpendFee(tx *wire.MsgTx, feeRatePerKB int64) int64 {
	if feeRatePerKB <= 0 {
		return 0
	}
	size := int64(tx.SerializeSize()) + dashLockSpendWitnessBytes
	fee := feeRatePerKB * size / 1000
	d.log.Debug("Lock spend fee", "fee_rate", feeRatePerKB, "size", size, "fee", fee)
	return fee
}

// InitialiseWallet converts the seed to a mnemonic and has the node derive
// its HD wallet from it.
func (d *DASH) InitialiseWallet(ctx context.Context, seed []byte) error {
	words, err := d.SeedToMnemonic(seed)
	if err != nil {
		return err
	}
	if err := d.call(ctx, nil, "upgradetohd", words); err != nil {
		return fmt.Errorf("upgradetohd: %w", err)
	}
	return nil
}

// CheckExpectedSeed recovers the entropy behind the wallet's mnemonic and
// compares its seed id to keyHash. Any failure is logged and reported as a
// mismatch.
func (d *DASH) CheckExpectedSeed(ctx context.Context, keyHash string) bool {
	var rv struct {
		Mnemonic string `json:"mnemonic"`
	}
	if err := d.call(ctx, &rv, "dumphdinfo"); err != nil {
		d.log.Warn("checkExpectedSeed failed", "error", err)
		return false
	}

	entropy, err := bip39.EntropyFromMnemonic(strings.TrimSpace(rv.Mnemonic))
	if err != nil {
		d.log.Warn("checkExpectedSeed failed", "error", err)
		return false
	}
	id, err := SeedID(entropy)
	if err != nil {
		d.log.Warn("checkExpectedSeed failed", "error", err)
		return false
	}
	return strings.EqualFold(id, keyHash)
}

var _ Interface = (*DASH)(nil)

package coin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/tyler-smith/go-bip39"

	"github.com/klingon-exchange/klingon-swapd/internal/backend"
	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/pkg/helpers"
	"github.com/klingon-exchange/klingon-swapd/pkg/logging"
)

// Fee rate sources reported by GetFeeRate.
const (
	FeeSourcePayTxFee = "paytxfee"
	FeeSourceSmartFee = "estimatesmartfee"
	FeeSourceRelayFee = "relayfee"
)

const newAddressLabel = "swap_receive"

// BTCFamily carries the behaviour shared by every Bitcoin-derived wallet.
// Concrete coins embed it and override what their node does differently.
type BTCFamily struct {
	params          *chain.Params
	rpc             RPCFunc
	confTarget      int
	blocksConfirmed int
	log             *logging.Logger
}

func newBTCFamily(params *chain.Params, rpc RPCFunc, opts Options) *BTCFamily {
	f := &BTCFamily{
		params:          params,
		rpc:             rpc,
		confTarget:      opts.ConfTarget,
		blocksConfirmed: opts.BlocksConfirmed,
	}
	if f.confTarget <= 0 {
		f.confTarget = params.ConfTarget
	}
	if f.blocksConfirmed <= 0 {
		f.blocksConfirmed = params.BlocksConfirmed
	}
	if f.blocksConfirmed < 1 {
		f.blocksConfirmed = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}
	f.log = logger.Component("coin/" + params.Name)
	return f
}

// CoinType returns the coin this wallet serves.
func (f *BTCFamily) CoinType() chain.CoinID { return f.params.Coin }

// Params returns the chain params the wallet was built with.
func (f *BTCFamily) Params() *chain.Params { return f.params }

// BlocksConfirmed returns the confirmation threshold for FindTransactionByHash.
func (f *BTCFamily) BlocksConfirmed() int { return f.blocksConfirmed }

// MakeInt converts a node decimal amount to the smallest unit, exactly.
func (f *BTCFamily) MakeInt(amount string) (int64, error) {
	return helpers.MakeInt(amount, f.params.Decimals, helpers.RoundExact)
}

// FormatAmount renders a smallest-unit amount as a node decimal string.
func (f *BTCFamily) FormatAmount(amount int64) string {
	return helpers.FormatAmount(amount, f.params.Decimals)
}

// SeedToMnemonic encodes wallet key material as an English BIP39 phrase.
func (f *BTCFamily) SeedToMnemonic(seed []byte) (string, error) {
	words, err := bip39.NewMnemonic(seed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return words, nil
}

// GetChainHeight returns the node's best block height.
func (f *BTCFamily) GetChainHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := f.call(ctx, &height, "getblockcount"); err != nil {
		return 0, err
	}
	return height, nil
}

// GetBlockHeader returns the header for a block hash.
func (f *BTCFamily) GetBlockHeader(ctx context.Context, hash string) (*BlockHeader, error) {
	var hdr BlockHeader
	if err := f.call(ctx, &hdr, "getblockheader", hash); err != nil {
		return nil, err
	}
	return &hdr, nil
}

// GetFeeRate returns a fee rate in smallest units per kB and where it came
// from: the wallet's fixed paytxfee, then estimatesmartfee, then the relay fee.
func (f *BTCFamily) GetFeeRate(ctx context.Context) (int64, string, error) {
	var wi struct {
		PayTxFee json.Number `json:"paytxfee"`
	}
	if err := f.call(ctx, &wi, "getwalletinfo"); err == nil && wi.PayTxFee != "" {
		if rate, err := f.feeRate(wi.PayTxFee); err == nil && rate > 0 {
			return rate, FeeSourcePayTxFee, nil
		}
	}

	var est struct {
		FeeRate json.Number `json:"feerate"`
	}
	if err := f.call(ctx, &est, "estimatesmartfee", f.confTarget); err == nil && est.FeeRate != "" {
		if rate, err := f.feeRate(est.FeeRate); err == nil && rate > 0 {
			return rate, FeeSourceSmartFee, nil
		}
	} else if err != nil {
		f.log.Debug("estimatesmartfee failed", "error", err)
	}

	var ni struct {
		RelayFee json.Number `json:"relayfee"`
	}
	if err := f.call(ctx, &ni, "getnetworkinfo"); err != nil {
		return 0, "", err
	}
	rate, err := f.feeRate(ni.RelayFee)
	if err != nil {
		return 0, "", err
	}
	return rate, FeeSourceRelayFee, nil
}

// feeRate rounds up so a fee estimate never underpays.
func (f *BTCFamily) feeRate(n json.Number) (int64, error) {
	return helpers.MakeInt(n.String(), f.params.Decimals, helpers.RoundCeil)
}

// PublishTx broadcasts a signed raw transaction and returns its txid.
func (f *BTCFamily) PublishTx(ctx context.Context, rawHex string) (string, error) {
	var txid string
	if err := f.call(ctx, &txid, "sendrawtransaction", rawHex); err != nil {
		return "", err
	}
	return txid, nil
}

// FindTransactionByHash looks up a wallet transaction. It reports Found only
// once the transaction has at least BlocksConfirmed confirmations; a txid the
// wallet does not know and one still below the threshold both give NotFound.
func (f *BTCFamily) FindTransactionByHash(ctx context.Context, txid string) TxLookup {
	if _, err := chainhash.NewHashFromStr(txid); err != nil || len(txid) != 2*chainhash.HashSize {
		return TxLookup{Status: Failed, TxID: txid, Err: fmt.Errorf("%w: %q", ErrInvalidTxID, txid)}
	}

	var rv struct {
		Confirmations int64       `json:"confirmations"`
		BlockHash     string      `json:"blockhash"`
		Amount        json.Number `json:"amount"`
	}
	if err := f.call(ctx, &rv, "gettransaction", txid); err != nil {
		if backend.IsRPCCode(err, btcjson.ErrRPCInvalidAddressOrKey) {
			return TxLookup{Status: NotFound, TxID: txid}
		}
		f.log.Debug("gettransaction failed", "txid", txid, "error", err)
		return TxLookup{Status: Failed, TxID: txid, Err: err}
	}

	if rv.Confirmations < int64(f.blocksConfirmed) || rv.BlockHash == "" {
		return TxLookup{Status: NotFound, TxID: txid}
	}

	hdr, err := f.GetBlockHeader(ctx, rv.BlockHash)
	if err != nil {
		f.log.Debug("getblockheader failed", "txid", txid, "block", rv.BlockHash, "error", err)
		return TxLookup{Status: Failed, TxID: txid, Err: err}
	}

	var amount int64
	if rv.Amount != "" {
		if v, err := f.MakeInt(rv.Amount.String()); err == nil {
			amount = v
			if amount < 0 {
				amount = -amount
			}
		}
	}

	return TxLookup{Status: Found, TxID: txid, Amount: amount, Height: hdr.Height}
}

// call issues an RPC and decodes the result into out, if given.
func (f *BTCFamily) call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	raw, err := f.rpc(ctx, method, params...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// sendValue validates a decimal amount and returns it in the node's canonical
// form, sent as a JSON number so no float conversion happens on the way.
func (f *BTCFamily) sendValue(amount string) (json.Number, error) {
	v, err := f.MakeInt(amount)
	if err != nil {
		return "", err
	}
	if v <= 0 {
		return "", fmt.Errorf("amount must be positive: %s", amount)
	}
	return json.Number(f.FormatAmount(v)), nil
}

// netParams builds the subset of chaincfg.Params the btcutil codecs read.
func (f *BTCFamily) netParams() *chaincfg.Params {
	return &chaincfg.Params{
		Name:             f.params.Name,
		PubKeyHashAddrID: f.params.PubKeyHashAddrID,
		ScriptHashAddrID: f.params.ScriptHashAddrID,
		PrivateKeyID:     f.params.WIF,
		Bech32HRPSegwit:  f.params.Bech32HRP,
	}
}

func (f *BTCFamily) addressError(addr, reason string, err error) *AddressError {
	return &AddressError{Coin: f.params.Coin, Address: addr, Reason: reason, Err: err}
}

// encodeBase58 encodes a 20 byte pubkey hash as a legacy P2PKH address.
func (f *BTCFamily) encodeBase58(raw []byte) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(raw, f.netParams())
	if err != nil {
		return "", f.addressError(fmt.Sprintf("%x", raw), "bad pubkey hash", err)
	}
	return addr.EncodeAddress(), nil
}

// decodeBase58 accepts P2PKH and P2SH addresses for this network only.
func (f *BTCFamily) decodeBase58(addr string) ([]byte, error) {
	net := f.netParams()
	decoded, err := btcutil.DecodeAddress(addr, net)
	if err != nil {
		return nil, f.addressError(addr, "decode failed", err)
	}
	switch a := decoded.(type) {
	case *btcutil.AddressPubKeyHash, *btcutil.AddressScriptHash:
		if !a.IsForNet(net) {
			return nil, f.addressError(addr, "wrong network", nil)
		}
		return a.ScriptAddress(), nil
	}
	return nil, f.addressError(addr, "unsupported address type", nil)
}

// p2pkhScript builds OP_DUP OP_HASH160 <pkh> OP_EQUALVERIFY OP_CHECKSIG.
func p2pkhScript(pkh []byte) ([]byte, error) {
	if len(pkh) != 20 {
		return nil, fmt.Errorf("pubkey hash must be 20 bytes, got %d", len(pkh))
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pkh).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// p2wpkhScript builds OP_0 <pkh>.
func p2wpkhScript(pkh []byte) ([]byte, error) {
	if len(pkh) != 20 {
		return nil, fmt.Errorf("pubkey hash must be 20 bytes, got %d", len(pkh))
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(pkh).
		Script()
}

// SeedID returns the identifier a node reports for an HD seed: the hash160 of
// the seed's compressed public key, byte-reversed, in hex.
func SeedID(seed []byte) (string, error) {
	if len(seed) != 32 || helpers.IsZeroBytes(seed) {
		return "", fmt.Errorf("%w: need 32 non-zero bytes, got %d", ErrInvalidSeed, len(seed))
	}
	priv, _ := btcec.PrivKeyFromBytes(seed)
	pkh := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	return helpers.ReversedHex(pkh), nil
}

// EncodeSegwitAddress encodes a version 0 witness program.
func EncodeSegwitAddress(hrp string, program []byte) (string, error) {
	if hrp == "" {
		return "", errors.New("chain has no segwit hrp")
	}
	if len(program) != 20 && len(program) != 32 {
		return "", fmt.Errorf("witness program must be 20 or 32 bytes, got %d", len(program))
	}
	conv, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, append([]byte{0}, conv...))
}

// DecodeSegwitAddress decodes a version 0 witness address with the given hrp.
func DecodeSegwitAddress(hrp, addr string) ([]byte, error) {
	gotHRP, data, err := bech32.Decode(addr)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(gotHRP, hrp) {
		return nil, fmt.Errorf("hrp %q does not match %q", gotHRP, hrp)
	}
	if len(data) < 1 || data[0] != 0 {
		return nil, errors.New("unsupported witness version")
	}
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(program) != 20 && len(program) != 32 {
		return nil, fmt.Errorf("invalid witness program length %d", len(program))
	}
	return program, nil
}

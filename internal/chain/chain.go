// Package chain defines static chain parameters for supported coins.
// All chain-specific values are hardcoded here and registered at init time;
// the registry is read-only once the process is running.
package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Lookup errors
var (
	ErrUnknownCoin    = errors.New("unknown coin")
	ErrUnknownNetwork = errors.New("unknown network")
)

// Network represents the chain a node is running on.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
)

// ParseNetwork converts a settings string into a Network.
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(s)) {
	case Mainnet:
		return Mainnet, nil
	case Testnet:
		return Testnet, nil
	case Regtest:
		return Regtest, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownNetwork, s)
}

// CoinID identifies a supported coin.
type CoinID int

const (
	PART CoinID = iota + 1
	BTC
	LTC
	DASH
)

// String returns the coin's ticker symbol.
func (c CoinID) String() string {
	if nets, ok := registry[c]; ok {
		for _, p := range nets {
			return p.Symbol
		}
	}
	return fmt.Sprintf("CoinID(%d)", int(c))
}

// AddressType represents the address encoding a coin's wallet uses by default.
type AddressType string

const (
	AddressP2PKH  AddressType = "p2pkh"  // Legacy base58
	AddressP2WPKH AddressType = "p2wpkh" // Native SegWit bech32
)

// Params contains all static parameters for one coin on one network.
type Params struct {
	// Identity
	Coin     CoinID
	Symbol   string // BTC, LTC, ...
	Name     string // lower-case; names the <name>d / <name>-cli binaries and settings keys
	Decimals uint8

	// Address encoding
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	Bech32HRP        string // empty when the chain has no SegWit
	WIF              byte

	// Node defaults
	RPCPort        int
	NetworkDirName string // datadir subfolder the node uses off mainnet

	// Swap tunables
	ConfTarget      int // blocks, passed to fee estimation and sends
	BlocksConfirmed int // confirmations before a wallet tx counts as found

	// Features
	SupportsSegWit     bool
	DefaultAddressType AddressType
}

var registry = make(map[CoinID]map[Network]*Params)

// register adds chain params to the registry. Only called from init.
func register(network Network, params *Params) {
	if registry[params.Coin] == nil {
		registry[params.Coin] = make(map[Network]*Params)
	}
	registry[params.Coin][network] = params
}

// Get returns chain params for a coin and network.
func Get(coin CoinID, network Network) (*Params, error) {
	nets, ok := registry[coin]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCoin, int(coin))
	}
	params, ok := nets[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s params", ErrUnknownNetwork, params0(nets).Symbol, network)
	}
	return params, nil
}

// MustGet returns chain params and panics on an unknown coin or network.
func MustGet(coin CoinID, network Network) *Params {
	params, err := Get(coin, network)
	if err != nil {
		panic(err)
	}
	return params
}

func params0(nets map[Network]*Params) *Params {
	if p, ok := nets[Mainnet]; ok {
		return p
	}
	for _, p := range nets {
		return p
	}
	return &Params{}
}

// CoinIDFromName looks up a coin by name or symbol, case-insensitively.
func CoinIDFromName(name string) (CoinID, error) {
	for coin, nets := range registry {
		p := params0(nets)
		if strings.EqualFold(name, p.Name) || strings.EqualFold(name, p.Symbol) {
			return coin, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCoin, name)
}

// List returns all registered coins in ascending id order.
func List() []CoinID {
	coins := make([]CoinID, 0, len(registry))
	for coin := range registry {
		coins = append(coins, coin)
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i] < coins[j] })
	return coins
}

// IsSupported returns true if the coin is registered.
func IsSupported(coin CoinID) bool {
	_, ok := registry[coin]
	return ok
}

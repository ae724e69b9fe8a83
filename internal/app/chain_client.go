package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/klingon-exchange/klingon-swapd/internal/backend"
	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/internal/coin"
	"github.com/klingon-exchange/klingon-swapd/internal/config"
)

// ChainClient is the runtime record for one coin's node. Everything except
// PID is fixed once the app is built.
type ChainClient struct {
	Coin chain.CoinID
	Name string

	RPCHost string
	RPCPort int
	RPCAuth string

	BinDir  string
	DataDir string
	Wallet  string

	ConfTarget      int
	BlocksConfirmed int
	RPCTimeout      time.Duration

	PID int // guarded by App.mu

	rpc backend.Caller
}

func newChainClient(name string, cs *config.ChainClientSettings, network chain.Network) (*ChainClient, error) {
	coinID, err := chain.CoinIDFromName(name)
	if err != nil {
		return nil, err
	}
	params, err := chain.Get(coinID, network)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = &config.ChainClientSettings{}
	}

	user, pass, err := backend.ParseRPCAuth(cs.RPCAuth)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", params.Name, err)
	}

	c := &ChainClient{
		Coin:            coinID,
		Name:            params.Name,
		RPCHost:         cs.RPCHost,
		RPCPort:         cs.RPCPort,
		RPCAuth:         cs.RPCAuth,
		BinDir:          cs.BinDir,
		DataDir:         cs.DataDir,
		Wallet:          cs.Wallet,
		ConfTarget:      cs.ConfTarget,
		BlocksConfirmed: cs.BlocksConfirmed,
		RPCTimeout:      cs.RPCTimeout,
	}
	if c.RPCPort == 0 {
		c.RPCPort = params.RPCPort
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = backend.DefaultTimeout
	}

	c.rpc = backend.NewJSONRPCBackend(&backend.Config{
		Host:    c.RPCHost,
		Port:    c.RPCPort,
		User:    user,
		Pass:    pass,
		Timeout: c.RPCTimeout,
	})
	return c, nil
}

// ChainClientSettings returns the settings entry for a coin, and whether
// one exists. Entries keyed by symbol or name both match.
func (a *App) ChainClientSettings(coinID chain.CoinID) (config.ChainClientSettings, bool) {
	for name, cs := range a.settings.ChainClients {
		id, err := chain.CoinIDFromName(name)
		if err != nil || id != coinID || cs == nil {
			continue
		}
		return *cs, true
	}
	return config.ChainClientSettings{}, false
}

// ChainDatadirPath returns the directory the node keeps its chain data in:
// the client datadir on mainnet, and the network's subfolder of it otherwise.
func (a *App) ChainDatadirPath(coinID chain.CoinID) (string, error) {
	client, ok := a.clients[coinID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoChainClient, coinID)
	}
	if a.network == chain.Mainnet {
		return client.DataDir, nil
	}

	sub := string(a.network)
	if params, err := chain.Get(coinID, a.network); err == nil && params.NetworkDirName != "" {
		sub = params.NetworkDirName
	}
	return filepath.Join(client.DataDir, sub), nil
}

// CoinIDFromName looks up a coin by name or symbol.
func (a *App) CoinIDFromName(name string) (chain.CoinID, error) {
	return chain.CoinIDFromName(name)
}

// EncodeSegwit encodes a witness program with the coin's hrp on this network.
func (a *App) EncodeSegwit(coinID chain.CoinID, raw []byte) (string, error) {
	params, err := chain.Get(coinID, a.network)
	if err != nil {
		return "", err
	}
	return coin.EncodeSegwitAddress(params.Bech32HRP, raw)
}

// DecodeSegwit decodes a witness address with the coin's hrp on this network.
func (a *App) DecodeSegwit(coinID chain.CoinID, addr string) ([]byte, error) {
	params, err := chain.Get(coinID, a.network)
	if err != nil {
		return nil, err
	}
	if params.Bech32HRP == "" {
		return nil, fmt.Errorf("%s has no segwit addresses", coinID)
	}
	return coin.DecodeSegwitAddress(params.Bech32HRP, addr)
}

// Package config loads the swap daemon's settings file and holds the
// chain timeout tables swaps are negotiated against.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/pkg/logging"
)

// SettingsFileName is the default settings file name.
const SettingsFileName = "swapd.yaml"

// DefaultDataDir is used when no data directory is given.
const DefaultDataDir = "~/.klingon-swapd"

// Settings errors
var (
	ErrNoPrimaryCoin        = errors.New("primary coin has no chain client")
	ErrDuplicateChainClient = errors.New("more than one chain client for a coin")
	ErrNetworkMismatch      = errors.New("settings file is for a different network")
)

// Settings holds everything read from the settings file.
type Settings struct {
	// Network is mainnet, testnet or regtest.
	Network string `yaml:"network"`

	// DataDir is the directory for the database, logs and settings.
	DataDir string `yaml:"data_dir"`

	// Debug enables debug logging regardless of Logging.Level.
	Debug bool `yaml:"debug"`

	// PrimaryCoin is the coin CallRPC talks to when no coin is named.
	PrimaryCoin string `yaml:"primary_coin"`

	Logging LoggingConfig `yaml:"logging"`

	// ChainClients maps a coin to its node settings. Keys may be the chain
	// params name or symbol and are rewritten to the name on load.
	ChainClients map[string]*ChainClientSettings `yaml:"chain_clients"`

	Swap SwapSettings `yaml:"swap"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path, relative to the data dir (empty for stderr only).
	File string `yaml:"file"`
}

// ChainClientSettings describes how to reach one coin's node.
type ChainClientSettings struct {
	RPCHost string `yaml:"rpchost"`
	RPCPort int    `yaml:"rpcport"`
	RPCAuth string `yaml:"rpcauth,omitempty"` // user:password

	// BinDir holds the <name>d, <name>-cli and <name>-tx binaries.
	BinDir string `yaml:"bindir"`

	// DataDir is the node's -datadir.
	DataDir string `yaml:"datadir"`

	Wallet string `yaml:"wallet,omitempty"`

	// Zero means the chain default.
	ConfTarget      int           `yaml:"conf_target,omitempty"`
	BlocksConfirmed int           `yaml:"blocks_confirmed,omitempty"`
	RPCTimeout      time.Duration `yaml:"rpc_timeout,omitempty"`
}

// SwapSettings holds swap engine tunables.
type SwapSettings struct {
	// PollInterval is how long a leg watcher sleeps between node queries.
	PollInterval time.Duration `yaml:"poll_interval"`

	// SafetyMarginBlocks overrides the chain timeout table when non-zero.
	SafetyMarginBlocks uint32 `yaml:"safety_margin_blocks,omitempty"`
}

// DefaultSettings returns settings with a local chain client for every
// registered coin on the given network.
func DefaultSettings(dataDir string, network chain.Network) *Settings {
	s := &Settings{
		Network:      string(network),
		DataDir:      dataDir,
		PrimaryCoin:  "particl",
		Logging:      LoggingConfig{Level: "info"},
		ChainClients: make(map[string]*ChainClientSettings),
		Swap: SwapSettings{
			PollInterval: 15 * time.Second,
		},
	}

	for _, coin := range chain.List() {
		params, err := chain.Get(coin, network)
		if err != nil {
			continue
		}
		s.ChainClients[params.Name] = &ChainClientSettings{
			RPCHost: "127.0.0.1",
			RPCPort: params.RPCPort,
			BinDir:  filepath.Join(dataDir, "bin", params.Name),
			DataDir: filepath.Join(dataDir, params.Name),
		}
	}
	return s
}

// LoadSettings loads settings from the data directory.
// If the file doesn't exist, it creates one with mainnet defaults.
func LoadSettings(dataDir string) (*Settings, error) {
	return LoadSettingsFor(dataDir, "")
}

// LoadSettingsFor is LoadSettings for a given network. A new settings file
// gets that network's defaults; an existing one must be for the same
// network. An empty network accepts whatever the file holds, and means
// mainnet for a new file.
func LoadSettingsFor(dataDir string, network chain.Network) (*Settings, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	path := SettingsPath(dataDir)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if network == "" {
			network = chain.Mainnet
		}
		s := DefaultSettings(expandPath(dataDir), network)
		if err := s.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default settings: %w", err)
		}
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	s := &Settings{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if s.DataDir == "" {
		s.DataDir = expandPath(dataDir)
	}
	if s.Swap.PollInterval <= 0 {
		s.Swap.PollInterval = 15 * time.Second
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if network != "" && s.NetworkType() != network {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrNetworkMismatch, path, s.NetworkType(), network)
	}
	s.normalizeChainClients()
	return s, nil
}

// Validate checks the network and that every chain client names a
// different known coin.
func (s *Settings) Validate() error {
	if _, err := chain.ParseNetwork(s.Network); err != nil {
		return err
	}
	seen := make(map[chain.CoinID]string, len(s.ChainClients))
	for name := range s.ChainClients {
		coinID, err := chain.CoinIDFromName(name)
		if err != nil {
			return fmt.Errorf("chain_clients: %w", err)
		}
		if other, ok := seen[coinID]; ok {
			return fmt.Errorf("chain_clients: %w: %q and %q", ErrDuplicateChainClient, other, name)
		}
		seen[coinID] = name
	}
	if s.PrimaryCoin != "" {
		if _, err := chain.CoinIDFromName(s.PrimaryCoin); err != nil {
			return fmt.Errorf("primary_coin: %w", err)
		}
	}
	return nil
}

// normalizeChainClients rekeys chain clients by chain params name. Must run
// after Validate.
func (s *Settings) normalizeChainClients() {
	clients := make(map[string]*ChainClientSettings, len(s.ChainClients))
	for name, cs := range s.ChainClients {
		coinID, _ := chain.CoinIDFromName(name)
		params, err := chain.Get(coinID, s.NetworkType())
		if err != nil {
			clients[name] = cs
			continue
		}
		clients[params.Name] = cs
	}
	s.ChainClients = clients
}

// NetworkType returns the parsed network, defaulting to mainnet.
func (s *Settings) NetworkType() chain.Network {
	n, err := chain.ParseNetwork(s.Network)
	if err != nil {
		return chain.Mainnet
	}
	return n
}

// LoggingConfig returns the logger configuration these settings describe.
func (s *Settings) LoggingConfig() *logging.Config {
	cfg := logging.DefaultConfig()
	if s.Logging.Level != "" {
		cfg.Level = s.Logging.Level
	}
	if s.Debug {
		cfg.Level = "debug"
	}
	if f := s.Logging.File; f != "" {
		if !filepath.IsAbs(f) {
			f = filepath.Join(expandPath(s.DataDir), f)
		}
		cfg.File = f
	}
	return cfg
}

// Save writes the settings to a YAML file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	header := []byte("# klingon-swapd settings\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// SettingsPath returns the full path to the settings file for the given data directory.
func SettingsPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), SettingsFileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

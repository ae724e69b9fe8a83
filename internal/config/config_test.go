package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klingon-exchange/klingon-swapd/internal/chain"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings("/data", chain.Testnet)

	if s.Network != "testnet" {
		t.Errorf("expected testnet, got %s", s.Network)
	}
	if s.PrimaryCoin != "particl" {
		t.Errorf("expected particl primary coin, got %s", s.PrimaryCoin)
	}
	if s.Swap.PollInterval != 15*time.Second {
		t.Errorf("expected 15s poll interval, got %v", s.Swap.PollInterval)
	}

	for _, coin := range chain.List() {
		params := chain.MustGet(coin, chain.Testnet)
		cc, ok := s.ChainClients[params.Name]
		if !ok {
			t.Errorf("missing chain client for %s", params.Name)
			continue
		}
		if cc.RPCPort != params.RPCPort {
			t.Errorf("%s: expected port %d, got %d", params.Name, params.RPCPort, cc.RPCPort)
		}
		if cc.DataDir != filepath.Join("/data", params.Name) {
			t.Errorf("%s: unexpected datadir %s", params.Name, cc.DataDir)
		}
	}

	if err := s.Validate(); err != nil {
		t.Errorf("default settings should validate: %v", err)
	}
}

func TestLoadSettingsCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.Network != "mainnet" {
		t.Errorf("expected mainnet, got %s", s.Network)
	}

	data, err := os.ReadFile(SettingsPath(dir))
	if err != nil {
		t.Fatalf("settings file not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "# klingon-swapd settings") {
		t.Error("settings file missing header")
	}

	// Second load reads the file back.
	again, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.ChainClients["dash"] == nil || again.ChainClients["dash"].RPCPort != 9998 {
		t.Errorf("dash chain client not round-tripped: %+v", again.ChainClients["dash"])
	}
	if again.Swap.PollInterval != 15*time.Second {
		t.Errorf("poll interval not round-tripped: %v", again.Swap.PollInterval)
	}
}

func TestLoadSettingsForNetwork(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadSettingsFor(dir, chain.Regtest)
	if err != nil {
		t.Fatalf("LoadSettingsFor failed: %v", err)
	}
	if s.Network != "regtest" {
		t.Errorf("expected regtest, got %s", s.Network)
	}
	if got := s.ChainClients["dash"].RPCPort; got != 19898 {
		t.Errorf("expected regtest dash port 19898, got %d", got)
	}

	again, err := LoadSettingsFor(dir, chain.Regtest)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Network != "regtest" {
		t.Errorf("expected saved regtest network, got %s", again.Network)
	}

	// No preference takes the file's network.
	loaded, err := LoadSettingsFor(dir, "")
	if err != nil {
		t.Fatalf("reload without network failed: %v", err)
	}
	if loaded.NetworkType() != chain.Regtest {
		t.Errorf("expected regtest, got %s", loaded.NetworkType())
	}

	// Asking for another network is refused.
	if _, err := LoadSettingsFor(dir, chain.Testnet); !errors.Is(err, ErrNetworkMismatch) {
		t.Errorf("expected ErrNetworkMismatch, got %v", err)
	}
}

func TestLoadSettingsNormalizesSymbolKeys(t *testing.T) {
	dir := t.TempDir()
	content := `network: mainnet
chain_clients:
  BTC:
    rpcport: 8332
    wallet: hot
  ltc:
    rpcport: 9332
  dash:
    rpcport: 9998
`
	if err := os.WriteFile(filepath.Join(dir, SettingsFileName), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if len(s.ChainClients) != 3 {
		t.Fatalf("expected 3 chain clients, got %d", len(s.ChainClients))
	}
	if cc := s.ChainClients["bitcoin"]; cc == nil || cc.Wallet != "hot" {
		t.Errorf("BTC key not rewritten to bitcoin: %+v", s.ChainClients)
	}
	if cc := s.ChainClients["litecoin"]; cc == nil || cc.RPCPort != 9332 {
		t.Errorf("ltc key not rewritten to litecoin: %+v", s.ChainClients)
	}
	if _, ok := s.ChainClients["BTC"]; ok {
		t.Error("symbol key kept after load")
	}
}

func TestValidateRejectsDuplicateChainClients(t *testing.T) {
	s := DefaultSettings(t.TempDir(), chain.Mainnet)
	s.ChainClients["BTC"] = &ChainClientSettings{RPCPort: 1}

	if err := s.Validate(); !errors.Is(err, ErrDuplicateChainClient) {
		t.Errorf("expected ErrDuplicateChainClient, got %v", err)
	}

	dir := t.TempDir()
	content := "network: mainnet\nchain_clients:\n  bitcoin:\n    rpcport: 1\n  btc:\n    rpcport: 2\n"
	if err := os.WriteFile(filepath.Join(dir, SettingsFileName), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(dir); !errors.Is(err, ErrDuplicateChainClient) {
		t.Errorf("expected ErrDuplicateChainClient from load, got %v", err)
	}
}

func TestLoadSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `network: regtest
debug: true
primary_coin: dash
logging:
  level: warn
  file: swapd.log
chain_clients:
  dash:
    rpchost: 10.0.0.5
    rpcport: 19898
    rpcauth: user:pass
    bindir: /opt/dash/bin
    datadir: /var/dash
    wallet: swaps
    blocks_confirmed: 3
    rpc_timeout: 45s
swap:
  poll_interval: 2s
  safety_margin_blocks: 4
`
	if err := os.WriteFile(filepath.Join(dir, SettingsFileName), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}

	if s.NetworkType() != chain.Regtest {
		t.Errorf("expected regtest, got %s", s.NetworkType())
	}
	if s.DataDir != dir {
		t.Errorf("expected data dir %s, got %s", dir, s.DataDir)
	}

	cc := s.ChainClients["dash"]
	if cc == nil {
		t.Fatal("dash chain client missing")
	}
	if cc.RPCHost != "10.0.0.5" || cc.RPCPort != 19898 || cc.Wallet != "swaps" {
		t.Errorf("unexpected chain client: %+v", cc)
	}
	if cc.BlocksConfirmed != 3 {
		t.Errorf("expected blocks_confirmed 3, got %d", cc.BlocksConfirmed)
	}
	if cc.RPCTimeout != 45*time.Second {
		t.Errorf("expected 45s rpc timeout, got %v", cc.RPCTimeout)
	}
	if s.Swap.PollInterval != 2*time.Second || s.Swap.SafetyMarginBlocks != 4 {
		t.Errorf("unexpected swap settings: %+v", s.Swap)
	}

	logCfg := s.LoggingConfig()
	if logCfg.Level != "debug" {
		t.Errorf("debug should force debug level, got %s", logCfg.Level)
	}
	if logCfg.File != filepath.Join(dir, "swapd.log") {
		t.Errorf("unexpected log file %s", logCfg.File)
	}
}

func TestLoadSettingsRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad network":  "network: moonnet\n",
		"unknown coin": "network: mainnet\nchain_clients:\n  dogecoin:\n    rpcport: 1\n",
		"bad primary":  "network: mainnet\nprimary_coin: nope\n",
		"bad yaml":     "network: [mainnet\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, SettingsFileName), []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSettings(dir); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/.klingon-swapd"); got != filepath.Join(home, ".klingon-swapd") {
		t.Errorf("expandPath = %s", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("expandPath = %s", got)
	}
}

func TestGetChainTimeout(t *testing.T) {
	for _, symbol := range []string{"PART", "BTC", "LTC", "DASH"} {
		main, ok := GetChainTimeout(symbol, chain.Mainnet)
		if !ok {
			t.Errorf("%s: missing mainnet timeout", symbol)
			continue
		}
		if main.TakerBlocks >= main.MakerBlocks {
			t.Errorf("%s: taker timeout must be shorter than maker", symbol)
		}
		if main.SafetyMarginBlocks >= main.TakerBlocks {
			t.Errorf("%s: safety margin must be shorter than taker timeout", symbol)
		}

		test, ok := GetChainTimeout(symbol, chain.Regtest)
		if !ok {
			t.Errorf("%s: missing regtest timeout", symbol)
			continue
		}
		if test.MakerBlocks > main.MakerBlocks {
			t.Errorf("%s: test timeout should not exceed mainnet", symbol)
		}
	}

	if _, ok := GetChainTimeout("DOGE", chain.Mainnet); ok {
		t.Error("DOGE should have no timeout config")
	}
}

func TestIsSafeToComplete(t *testing.T) {
	tests := []struct {
		name    string
		current int64
		timeout int64
		margin  uint32
		want    bool
	}{
		{"well before timeout", 100, 200, 6, true},
		{"inside margin", 195, 200, 6, false},
		{"exactly at margin", 194, 200, 6, false},
		{"one block before margin", 193, 200, 6, true},
		{"at timeout", 200, 200, 6, false},
		{"past timeout", 250, 200, 6, false},
		{"zero margin", 199, 200, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSafeToComplete(tt.current, tt.timeout, tt.margin); got != tt.want {
				t.Errorf("IsSafeToComplete(%d, %d, %d) = %v, want %v", tt.current, tt.timeout, tt.margin, got, tt.want)
			}
		})
	}
}

func TestEstimateTimeUntilTimeout(t *testing.T) {
	if got := EstimateTimeUntilTimeout(100, 106, 600); got != time.Hour {
		t.Errorf("expected 1h, got %v", got)
	}
	if got := EstimateTimeUntilTimeout(300, 200, 600); got != 0 {
		t.Errorf("expected 0 past timeout, got %v", got)
	}
	if got := BlocksUntilTimeout(10, 15); got != 5 {
		t.Errorf("expected 5 blocks, got %d", got)
	}
}

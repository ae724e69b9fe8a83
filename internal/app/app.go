// Package app is the process-wide coordinator. It owns the chain clients and
// the coin wallet implementations built on them, tracks whether the daemon
// is running, and is the only path by which anything reaches a chain node.
package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klingon-exchange/klingon-swapd/internal/backend"
	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/internal/coin"
	"github.com/klingon-exchange/klingon-swapd/internal/config"
	"github.com/klingon-exchange/klingon-swapd/internal/storage"
	"github.com/klingon-exchange/klingon-swapd/pkg/logging"
)

// Common errors
var (
	ErrNoChainClient = errors.New("no chain client configured for coin")
	ErrStopped       = errors.New("app stopped")
)

// Config holds what New needs to build an App.
type Config struct {
	Settings *config.Settings

	// Storage, when set, persists daemon pids and wallet seed ids.
	Storage *storage.Storage

	Logger *logging.Logger

	// Retry backoff bounds; zero means 1s and 60s.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// App coordinates every chain client and coin wallet in the process.
//
// The client and interface maps are built by New and never change, so they
// are read without locking. The mutex guards the running flag, the fail code
// and each client's PID. Every exported method takes the lock at most once
// and only calls unlocked helpers while holding it.
type App struct {
	mu sync.RWMutex

	settings *config.Settings
	network  chain.Network
	primary  chain.CoinID

	clients    map[chain.CoinID]*ChainClient
	interfaces map[chain.CoinID]coin.Interface

	running  bool
	failCode int
	stopCh   chan struct{}
	stopOnce sync.Once

	store *storage.Storage
	log   *logging.Logger

	retryInitial time.Duration
	retryMax     time.Duration
}

// New builds the chain clients and wallets described by the settings.
func New(cfg *Config) (*App, error) {
	if cfg == nil || cfg.Settings == nil {
		return nil, errors.New("app: settings required")
	}
	settings := cfg.Settings

	network, err := chain.ParseNetwork(settings.Network)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}

	a := &App{
		settings:     settings,
		network:      network,
		primary:      chain.PART,
		clients:      make(map[chain.CoinID]*ChainClient),
		interfaces:   make(map[chain.CoinID]coin.Interface),
		running:      true,
		stopCh:       make(chan struct{}),
		store:        cfg.Storage,
		log:          logger.Component("app"),
		retryInitial: cfg.RetryInitial,
		retryMax:     cfg.RetryMax,
	}
	if a.retryInitial <= 0 {
		a.retryInitial = time.Second
	}
	if a.retryMax <= 0 {
		a.retryMax = time.Minute
	}

	if settings.PrimaryCoin != "" {
		if a.primary, err = chain.CoinIDFromName(settings.PrimaryCoin); err != nil {
			return nil, fmt.Errorf("primary coin: %w", err)
		}
	}

	for name, cs := range settings.ChainClients {
		client, err := newChainClient(name, cs, network)
		if err != nil {
			return nil, err
		}
		if _, dup := a.clients[client.Coin]; dup {
			return nil, fmt.Errorf("%w: %s", config.ErrDuplicateChainClient, client.Name)
		}
		a.clients[client.Coin] = client
	}

	if a.store != nil {
		pids, err := a.store.GetDaemonPIDs()
		if err != nil {
			return nil, err
		}
		for _, c := range a.clients {
			c.PID = pids[c.Name]
		}
	}

	for coinID, client := range a.clients {
		params, _ := chain.Get(coinID, network)
		iface, err := coin.New(params, a.RPCCallback(coinID, client.Wallet), coin.Options{
			ConfTarget:      client.ConfTarget,
			BlocksConfirmed: client.BlocksConfirmed,
			Logger:          logger,
		})
		if errors.Is(err, coin.ErrUnsupportedCoin) {
			continue
		}
		if err != nil {
			return nil, err
		}
		a.interfaces[coinID] = iface
	}

	a.log.Info("Network", "network", network, "coins", len(a.clients), "primary", a.primary)
	return a, nil
}

// Network returns the network every client runs on.
func (a *App) Network() chain.Network { return a.network }

// Settings returns the settings the app was built from.
func (a *App) Settings() *config.Settings { return a.settings }

// Coins returns the configured coins in ascending id order.
func (a *App) Coins() []chain.CoinID {
	coins := make([]chain.CoinID, 0, len(a.clients))
	for c := range a.clients {
		coins = append(coins, c)
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i] < coins[j] })
	return coins
}

// Interface returns the wallet implementation for a coin.
func (a *App) Interface(coinID chain.CoinID) (coin.Interface, error) {
	iface, ok := a.interfaces[coinID]
	if !ok {
		if _, configured := a.clients[coinID]; configured {
			return nil, fmt.Errorf("%w: %s", coin.ErrUnsupportedCoin, coinID)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoChainClient, coinID)
	}
	return iface, nil
}

// Stop marks the app as no longer running and wakes every Wait. Only the
// first call's code is kept; later calls are no-ops.
func (a *App) Stop(code int) {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.running = false
		a.failCode = code
		a.mu.Unlock()

		close(a.stopCh)
		a.log.Info("Stopping", "code", code)
	})
}

// IsRunning returns false once Stop has been called.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// FailCode returns the code passed to Stop.
func (a *App) FailCode() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.failCode
}

// Done is closed when the app stops.
func (a *App) Done() <-chan struct{} { return a.stopCh }

// Wait sleeps for d, returning early if the app stops. It reports whether
// the app is still running.
func (a *App) Wait(d time.Duration) bool {
	if d <= 0 {
		return a.IsRunning()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-a.stopCh:
		return false
	case <-timer.C:
		return a.IsRunning()
	}
}

// SetDaemonPID records the pid of a coin's daemon. A pid of 0 marks the
// daemon as exited and drops the stored pid.
func (a *App) SetDaemonPID(coinID chain.CoinID, pid int) error {
	client, ok := a.clients[coinID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoChainClient, coinID)
	}

	a.mu.Lock()
	client.PID = pid
	a.mu.Unlock()

	a.persistPID(client.Name, pid)
	return nil
}

// SetDaemonPIDByName records a daemon pid against every client whose name
// matches, and returns how many matched.
func (a *App) SetDaemonPIDByName(name string, pid int) int {
	var matched []*ChainClient

	a.mu.Lock()
	for _, c := range a.clients {
		if strings.EqualFold(c.Name, name) {
			c.PID = pid
			matched = append(matched, c)
		}
	}
	a.mu.Unlock()

	for _, c := range matched {
		a.persistPID(c.Name, pid)
	}
	return len(matched)
}

// DaemonPID returns the recorded daemon pid for a coin, or 0.
func (a *App) DaemonPID(coinID chain.CoinID) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if c, ok := a.clients[coinID]; ok {
		return c.PID
	}
	return 0
}

func (a *App) persistPID(name string, pid int) {
	if a.store == nil {
		return
	}
	if pid == 0 {
		if err := a.store.ClearDaemonPID(name); err != nil && !errors.Is(err, storage.ErrDaemonPIDNotFound) {
			a.log.Warn("Failed to clear daemon pid", "coin", name, "error", err)
		}
		return
	}
	if err := a.store.SaveDaemonPID(name, pid); err != nil {
		a.log.Warn("Failed to persist daemon pid", "coin", name, "pid", pid, "error", err)
	}
}

// IsTransientError reports whether err is safe to retry with backoff.
func (a *App) IsTransientError(err error) bool {
	return backend.IsTransientError(err)
}

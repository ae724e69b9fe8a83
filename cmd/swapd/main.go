// Package main provides swapd, the atomic swap coordination daemon.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/klingon-exchange/klingon-swapd/internal/app"
	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/internal/coin"
	"github.com/klingon-exchange/klingon-swapd/internal/config"
	"github.com/klingon-exchange/klingon-swapd/internal/storage"
	"github.com/klingon-exchange/klingon-swapd/internal/swap"
	"github.com/klingon-exchange/klingon-swapd/pkg/helpers"
	"github.com/klingon-exchange/klingon-swapd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	cliApp := &cli.App{
		Name:    "swapd",
		Usage:   "cross-chain atomic swap daemon",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags:   []cli.Flag{DataDirFlag, NetworkFlag, LogLevelFlag},
		Action:  run,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "start the daemon and resume active swap legs",
				Action: run,
			},
			{
				Name:      "balance",
				Usage:     "print a wallet's spendable balance",
				ArgsUsage: "<coin>",
				Action:    balance,
			},
			{
				Name:      "withdraw",
				Usage:     "send coins out of a wallet",
				ArgsUsage: "<coin> <amount> <address>",
				Flags:     []cli.Flag{SubtractFeeFlag},
				Action:    withdraw,
			},
			{
				Name:      "legs",
				Usage:     "list the swap legs recorded for a trade",
				ArgsUsage: "<trade-id>",
				Action:    legs,
			},
			{
				Name:      "daemonpid",
				Usage:     "record the pid of a chain daemon, or 0 once it has exited",
				ArgsUsage: "<client-name> <pid>",
				Action:    daemonPID,
			},
			{
				Name:      "mnemonic",
				Usage:     "print the mnemonic and seed id for a 32 byte seed, or a new random one",
				ArgsUsage: "[hex-seed]",
				Action:    mnemonic,
			},
			{
				Name:      "initwallet",
				Usage:     "load a seed into a coin's wallet and record its seed id",
				ArgsUsage: "<coin> <hex-seed>",
				Action:    initWallet,
			},
			{
				Name:      "checkseed",
				Usage:     "check a wallet was derived from the seed with the given id",
				ArgsUsage: "<coin> <seed-id>",
				Action:    checkSeed,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logging.Error(err.Error())
		os.Exit(1)
	}
}

// env is everything a command needs to reach the chain nodes.
type env struct {
	settings *config.Settings
	log      *logging.Logger
	store    *storage.Storage
	app      *app.App
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("Failed to close storage", "error", err)
	}
}

func setup(c *cli.Context) (*env, error) {
	// Without the flag the settings file decides.
	var network chain.Network
	if c.IsSet(NetworkFlag.Name) {
		n, err := chain.ParseNetwork(c.String(NetworkFlag.Name))
		if err != nil {
			return nil, err
		}
		network = n
	}

	settings, err := config.LoadSettingsFor(c.String(DataDirFlag.Name), network)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	log := setupLogging(c, settings.LoggingConfig())
	log.Info("Settings loaded", "path", config.SettingsPath(c.String(DataDirFlag.Name)), "network", settings.Network)

	store, err := storage.New(&storage.Config{DataDir: settings.DataDir})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	log.Info("Storage initialized", "path", store.Path())

	a, err := app.New(&app.Config{Settings: settings, Storage: store, Logger: log})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &env{settings: settings, log: log, store: store, app: a}, nil
}

func setupLogging(c *cli.Context, cfg *logging.Config) *logging.Logger {
	if c.IsSet(LogLevelFlag.Name) {
		cfg.Level = c.String(LogLevelFlag.Name)
	}
	log := logging.New(cfg)
	logging.SetDefault(log)
	return log
}

func run(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	log := e.log

	for coinID, ok := range e.app.VerifyWalletSeeds(c.Context) {
		if !ok {
			log.Warn("Wallet seed check failed, swaps on this coin are unsafe", "coin", coinID)
		}
	}

	engine, err := swap.NewEngine(&swap.EngineConfig{
		Chains:             e.app,
		Storage:            e.store,
		Logger:             log,
		PollInterval:       e.settings.Swap.PollInterval,
		SafetyMarginBlocks: e.settings.Swap.SafetyMarginBlocks,
	})
	if err != nil {
		return err
	}

	resumed, err := engine.Resume()
	if err != nil {
		return fmt.Errorf("failed to resume swap legs: %w", err)
	}
	log.Info("swapd running", "coins", e.app.Coins(), "resumed_legs", resumed)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down...", "signal", sig)
		e.app.Stop(0)
	case <-e.app.Done():
	}

	engine.Close()

	if code := e.app.FailCode(); code != 0 {
		return cli.Exit(fmt.Sprintf("stopped with code %d", code), code)
	}
	log.Info("Goodbye!")
	return nil
}

func coinArg(c *cli.Context, e *env) (coin.Interface, error) {
	coinID, err := chain.CoinIDFromName(c.Args().Get(0))
	if err != nil {
		return nil, err
	}
	return e.app.Interface(coinID)
}

func balance(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: swapd balance <coin>", 2)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	iface, err := coinArg(c, e)
	if err != nil {
		return err
	}
	amount, err := iface.GetSpendableBalance(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", iface.FormatAmount(amount), iface.Params().Symbol)
	return nil
}

func withdraw(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.Exit("usage: swapd withdraw [--subfee] <coin> <amount> <address>", 2)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	iface, err := coinArg(c, e)
	if err != nil {
		return err
	}
	engine, err := swap.NewEngine(&swap.EngineConfig{Chains: e.app, Logger: e.log})
	if err != nil {
		return err
	}
	defer engine.Close()

	txid, err := engine.Withdraw(c.Context, iface.CoinType(), c.Args().Get(1), c.Args().Get(2), c.Bool(SubtractFeeFlag.Name))
	if err != nil {
		return err
	}
	fmt.Println(txid)
	return nil
}

func legs(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: swapd legs <trade-id>", 2)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	engine, err := swap.NewEngine(&swap.EngineConfig{Chains: e.app, Storage: e.store, Logger: e.log})
	if err != nil {
		return err
	}
	defer engine.Close()

	found, err := engine.TradeLegs(c.Args().Get(0))
	if err != nil {
		return err
	}
	for _, l := range found {
		fmt.Printf("%s  %-4s  %-6s  %-9s  %s\n", l.ID, l.Coin, l.Role, l.State, l.TxID)
	}
	return nil
}

func daemonPID(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: swapd daemonpid <client-name> <pid>", 2)
	}
	pid, err := strconv.Atoi(c.Args().Get(1))
	if err != nil || pid < 0 {
		return fmt.Errorf("invalid pid %q", c.Args().Get(1))
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	if e.app.SetDaemonPIDByName(c.Args().Get(0), pid) == 0 {
		return fmt.Errorf("no chain client named %q", c.Args().Get(0))
	}
	return nil
}

func mnemonic(c *cli.Context) error {
	var seed []byte
	switch c.NArg() {
	case 0:
		var err error
		if seed, err = helpers.GenerateSecureRandom(32); err != nil {
			return err
		}
	case 1:
		var err error
		if seed, err = helpers.HexToBytes(c.Args().Get(0)); err != nil {
			return err
		}
	default:
		return cli.Exit("usage: swapd mnemonic [hex-seed]", 2)
	}

	setupLogging(c, logging.DefaultConfig())

	// Mnemonic encoding does not touch a node.
	iface, err := coin.New(chain.MustGet(chain.DASH, chain.Mainnet), nil, coin.Options{})
	if err != nil {
		return err
	}
	words, err := iface.SeedToMnemonic(seed)
	if err != nil {
		return err
	}
	seedID, err := coin.SeedID(seed)
	if err != nil {
		return err
	}

	if c.NArg() == 0 {
		fmt.Printf("seed:     %x\n", seed)
	}
	fmt.Printf("mnemonic: %s\n", words)
	fmt.Printf("seed id:  %s\n", seedID)
	return nil
}

func initWallet(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: swapd initwallet <coin> <hex-seed>", 2)
	}
	seed, err := helpers.HexToBytes(c.Args().Get(1))
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	coinID, err := chain.CoinIDFromName(c.Args().Get(0))
	if err != nil {
		return err
	}
	return e.app.InitialiseWallet(c.Context, coinID, seed)
}

func checkSeed(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: swapd checkseed <coin> <seed-id>", 2)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	iface, err := coinArg(c, e)
	if err != nil {
		return err
	}
	if !iface.CheckExpectedSeed(c.Context, c.Args().Get(1)) {
		return errors.New("wallet seed does not match")
	}
	fmt.Println("wallet seed matches")
	return nil
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/shlex"

	"github.com/klingon-exchange/klingon-swapd/internal/backend"
	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/internal/coin"
)

// CallCoinRPC issues an RPC against a coin's node. It fails with a
// *backend.ConnectionError if the node is unreachable and a *backend.RPCError
// if the node rejects the call. It never retries.
func (a *App) CallCoinRPC(ctx context.Context, coinID chain.CoinID, method string, params []interface{}, wallet string) (json.RawMessage, error) {
	client, ok := a.clients[coinID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoChainClient, coinID)
	}
	return client.rpc.Call(ctx, method, params, wallet)
}

// CallRPC issues an RPC against the primary coin's node.
func (a *App) CallRPC(ctx context.Context, method string, params []interface{}, wallet string) (json.RawMessage, error) {
	return a.CallCoinRPC(ctx, a.primary, method, params, wallet)
}

// RPCCallback returns the closure a coin wallet uses to reach its node.
func (a *App) RPCCallback(coinID chain.CoinID, wallet string) coin.RPCFunc {
	return func(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
		return a.CallCoinRPC(ctx, coinID, method, params, wallet)
	}
}

// CallCoinCLI runs the coin's <name>-cli with the network and datadir flags
// added, followed by params split shell-style. Output on stderr is a
// *backend.CLIError whatever the exit code; a zero timeout means none.
func (a *App) CallCoinCLI(ctx context.Context, coinID chain.CoinID, params string, wallet string, timeout time.Duration) (string, error) {
	client, ok := a.clients[coinID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoChainClient, coinID)
	}
	split, err := shlex.Split(params)
	if err != nil {
		return "", fmt.Errorf("failed to split cli params: %w", err)
	}

	args := a.networkArgs()
	args = append(args, "-datadir="+client.DataDir)
	if wallet != "" {
		args = append(args, "-rpcwallet="+wallet)
	}
	args = append(args, split...)

	return backend.RunCLI(ctx, binaryPath(client, "-cli"), args, timeout)
}

// CallTx runs the coin's <name>-tx transaction tool.
func (a *App) CallTx(ctx context.Context, coinID chain.CoinID, params string) (string, error) {
	client, ok := a.clients[coinID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoChainClient, coinID)
	}
	split, err := shlex.Split(params)
	if err != nil {
		return "", fmt.Errorf("failed to split tx params: %w", err)
	}

	args := append(a.networkArgs(), split...)
	return backend.RunCLI(ctx, binaryPath(client, "-tx"), args, 0)
}

func (a *App) networkArgs() []string {
	if a.network == chain.Mainnet {
		return nil
	}
	return []string{"-" + string(a.network)}
}

func binaryPath(client *ChainClient, suffix string) string {
	name := client.Name + suffix
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(client.BinDir, name)
}

// Retry runs fn until it succeeds, fails with an error that is not
// transient, the context is done, or the app stops. The wait between
// attempts doubles from RetryInitial up to RetryMax.
func (a *App) Retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := a.retryInitial
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !backend.IsTransientError(err) {
			return err
		}

		a.log.Warn("Transient error, retrying", "op", op, "attempt", attempt, "backoff", backoff, "error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), err)
		case <-a.stopCh:
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", op, ErrStopped, err)
		case <-timer.C:
		}

		backoff *= 2
		if backoff > a.retryMax {
			backoff = a.retryMax
		}
	}
}

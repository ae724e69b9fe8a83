package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/klingon-exchange/klingon-swapd/internal/chain"
	"github.com/klingon-exchange/klingon-swapd/internal/coin"
	"github.com/klingon-exchange/klingon-swapd/internal/storage"
)

// InitialiseWallet pushes seed into a coin's wallet and records its seed id
// so later runs can detect the wallet changing underneath us.
func (a *App) InitialiseWallet(ctx context.Context, coinID chain.CoinID, seed []byte) error {
	iface, err := a.Interface(coinID)
	if err != nil {
		return err
	}
	seedID, err := coin.SeedID(seed)
	if err != nil {
		return err
	}
	if err := iface.InitialiseWallet(ctx, seed); err != nil {
		return err
	}

	a.log.Info("Wallet initialised", "coin", coinID, "seed_id", seedID)
	if a.store != nil {
		if err := a.store.SetExpectedSeedID(iface.Params().Name, seedID); err != nil {
			return fmt.Errorf("wallet initialised but seed id not saved: %w", err)
		}
	}
	return nil
}

// VerifyWalletSeeds checks each wallet with a recorded seed id against its
// node. Coins without a recorded id are left out of the result.
func (a *App) VerifyWalletSeeds(ctx context.Context) map[chain.CoinID]bool {
	result := make(map[chain.CoinID]bool)
	if a.store == nil {
		return result
	}

	for _, coinID := range a.Coins() {
		iface, ok := a.interfaces[coinID]
		if !ok {
			continue
		}
		expected, err := a.store.GetExpectedSeedID(iface.Params().Name)
		if errors.Is(err, storage.ErrSeedIDNotFound) {
			continue
		}
		if err != nil {
			a.log.Warn("Failed to load expected seed id", "coin", coinID, "error", err)
			continue
		}

		ok = iface.CheckExpectedSeed(ctx, expected)
		if !ok {
			a.log.Warn("Wallet seed does not match the recorded seed id", "coin", coinID, "expected", expected)
		}
		result[coinID] = ok
	}
	return result
}

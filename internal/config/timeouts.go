package config

import (
	"time"

	"github.com/klingon-exchange/klingon-swapd/internal/chain"
)

// ChainTimeoutConfig holds chain-specific timeout parameters for atomic swaps.
// These are specified in blocks, not time, for precision.
type ChainTimeoutConfig struct {
	// MakerBlocks is the timeout for maker (initiator) in blocks.
	// The maker's funds are locked longer to ensure the taker can claim.
	MakerBlocks uint32

	// TakerBlocks is the timeout for taker (responder) in blocks.
	// Must be shorter than MakerBlocks.
	TakerBlocks uint32

	// SafetyMarginBlocks is the number of blocks before timeout to stop accepting new operations.
	// This prevents timeout race conditions where both claim and refund could be valid.
	SafetyMarginBlocks uint32

	// AvgBlockTimeSeconds is the average block time for this chain.
	AvgBlockTimeSeconds uint32
}

// ChainTimeouts defines mainnet timeout configurations by coin symbol.
// SECURITY: These values are critical for atomic swap safety.
var ChainTimeouts = map[string]ChainTimeoutConfig{
	"PART": {
		MakerBlocks:         720, // ~24 hours at 2 min/block
		TakerBlocks:         360,
		SafetyMarginBlocks:  30,
		AvgBlockTimeSeconds: 120,
	},
	"BTC": {
		MakerBlocks:         144, // ~24 hours at 10 min/block
		TakerBlocks:         72,
		SafetyMarginBlocks:  6,
		AvgBlockTimeSeconds: 600,
	},
	"LTC": {
		MakerBlocks:         576, // ~24 hours at 2.5 min/block
		TakerBlocks:         288,
		SafetyMarginBlocks:  24,
		AvgBlockTimeSeconds: 150,
	},
	"DASH": {
		MakerBlocks:         576, // ~24 hours at 2.5 min/block
		TakerBlocks:         288,
		SafetyMarginBlocks:  24,
		AvgBlockTimeSeconds: 150,
	},
}

// TestnetChainTimeouts is used on testnet and regtest. Lower values for
// faster testing, but still long enough for fund, confirm and redeem.
var TestnetChainTimeouts = map[string]ChainTimeoutConfig{
	"PART": {
		MakerBlocks:         360,
		TakerBlocks:         180,
		SafetyMarginBlocks:  30,
		AvgBlockTimeSeconds: 120,
	},
	"BTC": {
		MakerBlocks:         72,
		TakerBlocks:         36,
		SafetyMarginBlocks:  6,
		AvgBlockTimeSeconds: 600,
	},
	"LTC": {
		MakerBlocks:         288,
		TakerBlocks:         144,
		SafetyMarginBlocks:  24,
		AvgBlockTimeSeconds: 150,
	},
	"DASH": {
		MakerBlocks:         288,
		TakerBlocks:         144,
		SafetyMarginBlocks:  24,
		AvgBlockTimeSeconds: 150,
	},
}

// GetChainTimeout returns the timeout configuration for a coin on a network.
func GetChainTimeout(symbol string, network chain.Network) (ChainTimeoutConfig, bool) {
	if network != chain.Mainnet {
		cfg, ok := TestnetChainTimeouts[symbol]
		return cfg, ok
	}
	cfg, ok := ChainTimeouts[symbol]
	return cfg, ok
}

// IsSafeToComplete checks if it's safe to complete an operation given the current height.
// Returns true if there's enough time (blocks) before the timeout.
//
// SECURITY: This prevents timeout race conditions where both claim and refund
// could potentially be valid if executed near the timeout boundary.
func IsSafeToComplete(currentHeight, timeoutHeight int64, safetyMargin uint32) bool {
	if currentHeight >= timeoutHeight {
		return false
	}
	return currentHeight+int64(safetyMargin) < timeoutHeight
}

// BlocksUntilTimeout returns the number of blocks until timeout.
// Returns 0 if already past timeout.
func BlocksUntilTimeout(currentHeight, timeoutHeight int64) int64 {
	if currentHeight >= timeoutHeight {
		return 0
	}
	return timeoutHeight - currentHeight
}

// EstimateTimeUntilTimeout estimates the time until timeout based on block time.
func EstimateTimeUntilTimeout(currentHeight, timeoutHeight int64, avgBlockTimeSeconds uint32) time.Duration {
	blocks := BlocksUntilTimeout(currentHeight, timeoutHeight)
	return time.Duration(blocks*int64(avgBlockTimeSeconds)) * time.Second
}

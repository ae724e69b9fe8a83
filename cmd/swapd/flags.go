package main

import (
	"github.com/urfave/cli/v2"

	"github.com/klingon-exchange/klingon-swapd/internal/config"
)

var (
	DataDirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Data directory holding swapd.yaml and the database",
		Value:   config.DefaultDataDir,
		EnvVars: []string{"SWAPD_DATADIR"},
	}

	NetworkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "Network to run on (mainnet, testnet, regtest); must match an existing settings file",
	}

	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level (debug, info, warn, error); overrides settings",
	}

	SubtractFeeFlag = &cli.BoolFlag{
		Name:  "subfee",
		Usage: "Take the fee out of the amount sent",
	}
)

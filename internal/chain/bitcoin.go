package chain

func init() {
	// Bitcoin Mainnet
	register(Mainnet, &Params{
		Coin:     BTC,
		Symbol:   "BTC",
		Name:     "bitcoin",
		Decimals: 8,

		PubKeyHashAddrID: 0x00, // 1...
		ScriptHashAddrID: 0x05, // 3...
		Bech32HRP:        "bc",
		WIF:              0x80,

		RPCPort: 8332,

		ConfTarget:      2,
		BlocksConfirmed: 6,

		SupportsSegWit:     true,
		DefaultAddressType: AddressP2WPKH,
	})

	// Bitcoin Testnet (testnet3)
	register(Testnet, &Params{
		Coin:     BTC,
		Symbol:   "BTC",
		Name:     "bitcoin",
		Decimals: 8,

		PubKeyHashAddrID: 0x6F, // m or n
		ScriptHashAddrID: 0xC4, // 2...
		Bech32HRP:        "tb",
		WIF:              0xEF,

		RPCPort:        18332,
		NetworkDirName: "testnet3",

		ConfTarget:      2,
		BlocksConfirmed: 1,

		SupportsSegWit:     true,
		DefaultAddressType: AddressP2WPKH,
	})

	register(Regtest, &Params{
		Coin:     BTC,
		Symbol:   "BTC",
		Name:     "bitcoin",
		Decimals: 8,

		PubKeyHashAddrID: 0x6F,
		ScriptHashAddrID: 0xC4,
		Bech32HRP:        "bcrt",
		WIF:              0xEF,

		RPCPort:        18443,
		NetworkDirName: "regtest",

		ConfTarget:      2,
		BlocksConfirmed: 1,

		SupportsSegWit:     true,
		DefaultAddressType: AddressP2WPKH,
	})
}

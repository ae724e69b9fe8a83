package chain

func init() {
	// Litecoin Mainnet
	register(Mainnet, &Params{
		Coin:     LTC,
		Symbol:   "LTC",
		Name:     "litecoin",
		Decimals: 8,

		PubKeyHashAddrID: 0x30, // L...
		ScriptHashAddrID: 0x32, // M...
		Bech32HRP:        "ltc",
		WIF:              0xB0,

		RPCPort: 9332,

		ConfTarget:      2,
		BlocksConfirmed: 6,

		SupportsSegWit:     true,
		DefaultAddressType: AddressP2WPKH,
	})

	// Litecoin Testnet (testnet4)
	register(Testnet, &Params{
		Coin:     LTC,
		Symbol:   "LTC",
		Name:     "litecoin",
		Decimals: 8,

		PubKeyHashAddrID: 0x6F,
		ScriptHashAddrID: 0x3A, // Q...
		Bech32HRP:        "tltc",
		WIF:              0xEF,

		RPCPort:        19332,
		NetworkDirName: "testnet4",

		ConfTarget:      2,
		BlocksConfirmed: 1,

		SupportsSegWit:     true,
		DefaultAddressType: AddressP2WPKH,
	})

	register(Regtest, &Params{
		Coin:     LTC,
		Symbol:   "LTC",
		Name:     "litecoin",
		Decimals: 8,

		PubKeyHashAddrID: 0x6F,
		ScriptHashAddrID: 0x3A,
		Bech32HRP:        "rltc",
		WIF:              0xEF,

		RPCPort:        19443,
		NetworkDirName: "regtest",

		ConfTarget:      2,
		BlocksConfirmed: 1,

		SupportsSegWit:     true,
		DefaultAddressType: AddressP2WPKH,
	})
}

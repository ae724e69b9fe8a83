package chain

func init() {
	// Dash Mainnet - no SegWit, P2PKH only
	register(Mainnet, &Params{
		Coin:     DASH,
		Symbol:   "DASH",
		Name:     "dash",
		Decimals: 8,

		PubKeyHashAddrID: 0x4C, // X...
		ScriptHashAddrID: 0x10, // 7...
		Bech32HRP:        "",
		WIF:              0xCC,

		RPCPort: 9998,

		ConfTarget:      2,
		BlocksConfirmed: 6,

		SupportsSegWit:     false,
		DefaultAddressType: AddressP2PKH,
	})

	register(Testnet, &Params{
		Coin:     DASH,
		Symbol:   "DASH",
		Name:     "dash",
		Decimals: 8,

		PubKeyHashAddrID: 0x8C, // y...
		ScriptHashAddrID: 0x13, // 8 or 9
		Bech32HRP:        "",
		WIF:              0xEF,

		RPCPort:        19998,
		NetworkDirName: "testnet3",

		ConfTarget:      2,
		BlocksConfirmed: 1,

		SupportsSegWit:     false,
		DefaultAddressType: AddressP2PKH,
	})

	register(Regtest, &Params{
		Coin:     DASH,
		Symbol:   "DASH",
		Name:     "dash",
		Decimals: 8,

		PubKeyHashAddrID: 0x8C,
		ScriptHashAddrID: 0x13,
		Bech32HRP:        "",
		WIF:              0xEF,

		RPCPort:        19898,
		NetworkDirName: "regtest",

		ConfTarget:      2,
		BlocksConfirmed: 1,

		SupportsSegWit:     false,
		DefaultAddressType: AddressP2PKH,
	})
}

package chain

func init() {
	register(Mainnet, &Params{
		Coin:     PART,
		Symbol:   "PART",
		Name:     "particl",
		Decimals: 8,

		PubKeyHashAddrID: 0x38, // P...
		ScriptHashAddrID: 0x3c,
		Bech32HRP:        "pw",
		WIF:              0x6c,

		RPCPort: 51735,

		ConfTarget:      2,
		BlocksConfirmed: 2,

		SupportsSegWit:     true,
		DefaultAddressType: AddressP2WPKH,
	})

	register(Testnet, &Params{
		Coin:     PART,
		Symbol:   "PART",
		Name:     "particl",
		Decimals: 8,

		PubKeyHashAddrID: 0x76, // p...
		ScriptHashAddrID: 0x7a,
		Bech32HRP:        "tpw",
		WIF:              0x2e,

		RPCPort:        51935,
		NetworkDirName: "testnet",

		ConfTarget:      2,
		BlocksConfirmed: 1,

		SupportsSegWit:     true,
		DefaultAddressType: AddressP2WPKH,
	})

	register(Regtest, &Params{
		Coin:     PART,
		Symbol:   "PART",
		Name:     "particl",
		Decimals: 8,

		PubKeyHashAddrID: 0x76,
		ScriptHashAddrID: 0x7a,
		Bech32HRP:        "rtpw",
		WIF:              0x2e,

		RPCPort:        51936,
		NetworkDirName: "regtest",

		ConfTarget:      2,
		BlocksConfirmed: 1,

		SupportsSegWit:     true,
		DefaultAddressType: AddressP2WPKH,
	})
}

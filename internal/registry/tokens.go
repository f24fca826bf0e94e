package registry

import "strings"

// Token is a registry entry for a known ERC-20.
type Token struct {
	Address  string
	Symbol   string
	Decimals int
}

// Canonical default candidate tokens by chain ID. These seed the token
// universe when discovery returns nothing and the caller supplied no list.
var defaultTokensByChainID = map[int64][]Token{
	1: {
		{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Decimals: 18},
		{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6},
		{Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Symbol: "USDT", Decimals: 6},
		{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Decimals: 18},
		{Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Symbol: "WBTC", Decimals: 8},
		{Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Symbol: "LINK", Decimals: 18},
		{Address: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", Symbol: "UNI", Decimals: 18},
	},
	8453: {
		{Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Decimals: 18},
		{Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6},
		{Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Symbol: "DAI", Decimals: 18},
		{Address: "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf", Symbol: "cbBTC", Decimals: 8},
	},
	42161: {
		{Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Symbol: "WETH", Decimals: 18},
		{Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Symbol: "USDC", Decimals: 6},
		{Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Symbol: "USDT", Decimals: 6},
		{Address: "0x912CE59144191C1204E64559FE8253a0e49E6548", Symbol: "ARB", Decimals: 18},
	},
}

// Tokens favored by alternative venues/routers, sampled into every cycle so
// signal generation is not biased toward a single router's listings.
var venueTokensByChainID = map[int64][]Token{
	1: {
		{Address: "0xD533a949740bb3306d119CC777fa900bA034cd52", Symbol: "CRV", Decimals: 18},
		{Address: "0xba100000625a3754423978a60c9317c58a424e3D", Symbol: "BAL", Decimals: 18},
		{Address: "0x6B3595068778DD592e39A122f4f5a5cF09C90fE2", Symbol: "SUSHI", Decimals: 18},
		{Address: "0x5A98FcBEA516Cf06857215779Fd812CA3beF1B32", Symbol: "LDO", Decimals: 18},
	},
	8453: {
		{Address: "0x940181a94A35A4569E4529A3CDfB74e38FD98631", Symbol: "AERO", Decimals: 18},
		{Address: "0x532f27101965dd16442E59d40670FaF5eBB142E4", Symbol: "BRETT", Decimals: 18},
	},
	42161: {
		{Address: "0xFa7F8980b0f1E64A2062791cc3b0871572f1F7f0", Symbol: "UNI", Decimals: 18},
		{Address: "0x5979D7b546E38E414F7E9822514be443A4800529", Symbol: "wstETH", Decimals: 18},
	},
}

func DefaultTokens(chainID int64) []Token {
	return defaultTokensByChainID[chainID]
}

func VenueTokens(chainID int64) []Token {
	return venueTokensByChainID[chainID]
}

// WrappedNative returns the chain's wrapped native token, used as the
// counter-asset for swaps.
func WrappedNative(chainID int64) (Token, bool) {
	for _, token := range defaultTokensByChainID[chainID] {
		if token.Symbol == "WETH" {
			return token, true
		}
	}
	return Token{}, false
}

// LookupSymbol resolves a known token address to its symbol, empty when the
// address is not in either registry.
func LookupSymbol(chainID int64, address string) string {
	for _, set := range [][]Token{defaultTokensByChainID[chainID], venueTokensByChainID[chainID]} {
		for _, token := range set {
			if strings.EqualFold(token.Address, address) {
				return token.Symbol
			}
		}
	}
	return ""
}

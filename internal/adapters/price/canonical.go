package price

import (
	"strings"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
)

// canonicalIDs maps symbols to CoinGecko ids. It is only consulted for
// assets without a contract (native currencies) or for contracts listed in
// canonicalContracts, never for an arbitrary token that happens to share a
// symbol.
var canonicalIDs = map[string]string{
	"ETH":   "ethereum",
	"BTC":   "bitcoin",
	"WBTC":  "wrapped-bitcoin",
	"WETH":  "weth",
	"POL":   "polygon-ecosystem-token",
	"MATIC": "matic-network",
	"BNB":   "binancecoin",
	"AVAX":  "avalanche-2",
	"FTM":   "fantom",
	"S":     "sonic-3",
	"CELO":  "celo",
	"XDAI":  "xdai",
	"GLMR":  "moonbeam",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"DAI":   "dai",
}

// canonicalContracts lists well-known token contracts per chain and the
// symbol they are canonical for.
var canonicalContracts = map[string]string{
	"ethereum:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": "USDC",
	"ethereum:0xdac17f958d2ee523a2206206994597c13d831ec7": "USDT",
	"ethereum:0x6b175474e89094c44da98b954eedeac495271d0f": "DAI",
	"ethereum:0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": "WETH",
	"ethereum:0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": "WBTC",
	"arbitrum:0xaf88d065e77c8cc2239327c5edb3a432268e5831": "USDC",
	"arbitrum:0x82af49447d8a07e3bd95bd0d56f35241523fbab1": "WETH",
	"base:0x833589fcd6edb6e08f4c7c32d4f71b54bda02913":     "USDC",
	"base:0x4200000000000000000000000000000000000006":     "WETH",
	"polygon:0x3c499c542cef5e3811e1192ce70d8cc03d5c3359":  "USDC",
	"bsc:0x55d398326f99059ff775485246d50dbea9e1e971":      "USDT",
}

// CanonicalSymbol returns the trusted symbol of an asset, if it has one.
func CanonicalSymbol(asset domain.AssetKey) (string, bool) {
	if asset.Contract == "" || asset.Contract == domain.NativeAsset {
		sym := strings.ToUpper(asset.Symbol)
		_, ok := canonicalIDs[sym]
		return sym, ok
	}
	sym, ok := canonicalContracts[asset.Chain+":"+strings.ToLower(asset.Contract)]
	return sym, ok
}

// CoinGeckoID returns the CoinGecko id of an asset with a trusted symbol.
func CoinGeckoID(asset domain.AssetKey) (string, bool) {
	sym, ok := CanonicalSymbol(asset)
	if !ok {
		return "", false
	}
	id, ok := canonicalIDs[sym]
	return id, ok
}

package token

import "github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"

// staticTokens is keyed by chain:lower(contract).
var staticTokens = map[string]domain.TokenMetadata{
	"ethereum:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": {Symbol: "USDC", Decimals: 6, Name: "USD Coin"},
	"ethereum:0xdac17f958d2ee523a2206206994597c13d831ec7": {Symbol: "USDT", Decimals: 6, Name: "Tether USD"},
	"ethereum:0x6b175474e89094c44da98b954eedeac495271d0f": {Symbol: "DAI", Decimals: 18, Name: "Dai Stablecoin"},
	"ethereum:0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": {Symbol: "WETH", Decimals: 18, Name: "Wrapped Ether"},
	"ethereum:0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": {Symbol: "WBTC", Decimals: 8, Name: "Wrapped BTC"},
	"ethereum:0x514910771af9ca656af840dff83e8264ecf986ca": {Symbol: "LINK", Decimals: 18, Name: "ChainLink Token"},
	"ethereum:0x1f9840a85d5af5bf1d1762f925bdaddc4201f984": {Symbol: "UNI", Decimals: 18, Name: "Uniswap"},
	"arbitrum:0xaf88d065e77c8cc2239327c5edb3a432268e5831": {Symbol: "USDC", Decimals: 6, Name: "USD Coin"},
	"arbitrum:0x82af49447d8a07e3bd95bd0d56f35241523fbab1": {Symbol: "WETH", Decimals: 18, Name: "Wrapped Ether"},
	"base:0x833589fcd6edb6e08f4c7c32d4f71b54bda02913":     {Symbol: "USDC", Decimals: 6, Name: "USD Coin"},
	"base:0x4200000000000000000000000000000000000006":     {Symbol: "WETH", Decimals: 18, Name: "Wrapped Ether"},
	"polygon:0x3c499c542cef5e3811e1192ce70d8cc03d5c3359":  {Symbol: "USDC", Decimals: 6, Name: "USD Coin"},
	"bsc:0x55d398326f99059ff775485246d50dbea9e1e971":      {Symbol: "USDT", Decimals: 18, Name: "Tether USD"},
}

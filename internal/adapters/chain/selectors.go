package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// knownSignatures are call signatures whose names the classifier keys on.
// Explorers leave functionName empty for unverified contracts; the 4-byte
// selector in methodId still identifies the call.
var knownSignatures = []string{
	"transfer(address,uint256)",
	"transferFrom(address,address,uint256)",
	"approve(address,uint256)",

	// Uniswap V2 style routers
	"swapExactTokensForTokens(uint256,uint256,address[],address,uint256)",
	"swapTokensForExactTokens(uint256,uint256,address[],address,uint256)",
	"swapExactETHForTokens(uint256,address[],address,uint256)",
	"swapETHForExactTokens(uint256,address[],address,uint256)",
	"swapExactTokensForETH(uint256,uint256,address[],address,uint256)",
	"swapTokensForExactETH(uint256,uint256,address[],address,uint256)",
	"addLiquidity(address,address,uint256,uint256,uint256,uint256,address,uint256)",
	"addLiquidityETH(address,uint256,uint256,uint256,address,uint256)",
	"removeLiquidity(address,address,uint256,uint256,uint256,address,uint256)",
	"removeLiquidityETH(address,uint256,uint256,uint256,address,uint256)",
	"removeLiquidityETHSupportingFeeOnTransferTokens(address,uint256,uint256,uint256,address,uint256)",

	// Uniswap V3 position manager and routers
	"mint((address,address,uint24,int24,int24,uint256,uint256,uint256,uint256,address,uint256))",
	"increaseLiquidity((uint256,uint256,uint256,uint256,uint256,uint256))",
	"decreaseLiquidity((uint256,uint128,uint256,uint256,uint256))",
	"collect((uint256,address,uint128,uint128))",
	"burn(uint256)",
	"multicall(bytes[])",
	"multicall(uint256,bytes[])",
	"execute(bytes,bytes[],uint256)",

	// Wrapped native, staking and reward contracts
	"deposit()",
	"deposit(uint256)",
	"deposit(uint256,address)",
	"withdraw(uint256)",
	"withdraw(uint256,address,address)",
	"stake(uint256)",
	"unstake(uint256)",
	"delegate(address)",
	"undelegate(address,uint256)",
	"getReward()",
	"claim()",
	"claimRewards()",
	"harvest(uint256,address)",

	// Perpetual positions
	"increasePosition(address[],address,uint256,uint256,uint256,bool,uint256)",
	"decreasePosition(address[],address,uint256,uint256,bool,address,uint256)",
}

var selectorTable = buildSelectorTable(knownSignatures)

func buildSelectorTable(signatures []string) map[string]string {
	table := make(map[string]string, len(signatures))
	for _, sig := range signatures {
		table[Selector(sig)] = sig
	}
	return table
}

// Selector returns the 0x-prefixed 4-byte selector of a call signature.
func Selector(signature string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(signature))[:4])
}

// LookupSelector returns the signature for a methodId, if known.
func LookupSelector(methodID string) (string, bool) {
	sig, ok := selectorTable[strings.ToLower(methodID)]
	return sig, ok
}

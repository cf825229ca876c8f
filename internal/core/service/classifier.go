package service

import (
	"strings"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
)

// ClassifierInput is everything classification is allowed to look at.
type ClassifierInput struct {
	Wallet    string
	Tx        domain.RawTransaction
	Movements []domain.NetMovement
}

// Classification is the single tag of a transaction. MultiRow tells the
// event builder that one side carries more than one asset.
type Classification struct {
	Tag      domain.Tag
	Rule     string
	MultiRow bool
}

type rule struct {
	name  string
	match func(ClassifierInput) bool
	tag   domain.Tag
}

// classificationRules is evaluated top to bottom; the first match wins.
// Call-signature rules come before flow shape: a contract call can have a
// net-zero or misleading flow.
var classificationRules = []rule{
	{name: "failed", match: isFailed, tag: domain.TagFee},

	keywordRule("staking-return", domain.TagStakingReturn, "undelegate", "withdraw", "unstake"),
	keywordRule("staking-deposit", domain.TagStakingDeposit, "delegate", "deposit", "stake"),
	keywordRule("staking-claim", domain.TagStakingClaim, "claim", "harvest", "reward"),
	keywordRule("remove-liquidity", domain.TagRemoveLiquidity, "removeliquidity", "burn"),
	keywordRule("add-liquidity", domain.TagAddLiquidity, "addliquidity", "mint"),
	keywordRule("close-position", domain.TagClosePosition, "closeposition", "decreaseposition"),
	keywordRule("open-position", domain.TagOpenPosition, "openposition", "increaseposition"),
	keywordRule("reward", domain.TagReward, "airdrop", "distribute"),

	{name: "swap", match: func(in ClassifierInput) bool { return hasOutflow(in) && hasInflow(in) }, tag: domain.TagSwap},
	{name: "transfer-in", match: hasInflow, tag: domain.TagTransferIn},
	{name: "transfer-out", match: hasOutflow, tag: domain.TagTransferOut},
	{name: "gas-only", match: func(in ClassifierInput) bool { return len(in.Movements) == 0 && PaidGas(in.Wallet, in.Tx) }, tag: domain.TagFee},
}

// Classify tags a transaction. It is a pure function of its input.
func Classify(in ClassifierInput) Classification {
	for _, r := range classificationRules {
		if r.match(in) {
			return Classification{
				Tag:      r.tag,
				Rule:     r.name,
				MultiRow: r.tag != domain.TagFee && multiAsset(in.Movements),
			}
		}
	}
	return Classification{Tag: domain.TagUnknown, Rule: "none", MultiRow: multiAsset(in.Movements)}
}

func keywordRule(name string, tag domain.Tag, keywords ...string) rule {
	return rule{
		name: name,
		tag:  tag,
		match: func(in ClassifierInput) bool {
			if !SameAddress(in.Tx.From, in.Wallet) {
				return false
			}
			method := MethodName(in.Tx.FunctionName)
			if method == "" {
				return false
			}
			for _, k := range keywords {
				if strings.Contains(method, k) {
					return true
				}
			}
			return false
		},
	}
}

// MethodName lowercases the function name of a call signature such as
// "swapExactTokensForETH(uint256 amountIn, ...)" and drops underscores, so
// "remove_liquidity" and "removeLiquidity" read the same.
func MethodName(signature string) string {
	name := signature
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "_", "")
	return strings.ToLower(strings.TrimSpace(name))
}

// PaidGas reports whether the wallet initiated the transaction and paid a fee.
func PaidGas(wallet string, tx domain.RawTransaction) bool {
	return SameAddress(tx.From, wallet) && GasFee(tx).IsPositive()
}

func isFailed(in ClassifierInput) bool {
	return in.Tx.Failed
}

func hasInflow(in ClassifierInput) bool {
	for _, m := range in.Movements {
		if m.Amount.IsPositive() {
			return true
		}
	}
	return false
}

func hasOutflow(in ClassifierInput) bool {
	for _, m := range in.Movements {
		if m.Amount.IsNegative() {
			return true
		}
	}
	return false
}

func multiAsset(movements []domain.NetMovement) bool {
	var ins, outs int
	for _, m := range movements {
		if m.Amount.IsPositive() {
			ins++
		} else {
			outs++
		}
	}
	return ins > 1 || outs > 1
}

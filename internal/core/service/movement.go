package service

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const nativeDecimals = 18

// movementEpsilon is the magnitude under which a net movement counts as zero.
// Round-tripped wrap/unwrap amounts cancel below it.
var movementEpsilon = decimal.New(1, -8)

// TransactionMovements pairs a transaction with its net movements.
type TransactionMovements struct {
	Tx        domain.RawTransaction
	Movements []domain.NetMovement

	// Synthetic is set when no normal transaction was reported for the hash
	// and it was rebuilt from transfer events (third-party initiated).
	Synthetic bool
}

// side accumulates the in and out flows of one asset within one transaction.
type side struct {
	symbol   string
	contract string
	in       decimal.Decimal
	out      decimal.Decimal
}

// ExtractMovements computes the wallet's net movement per asset for every
// transaction. Transfer events of failed transactions are discarded. A
// transaction with any malformed part, reported by the history source or
// found here, is skipped whole; the second return value counts them.
func ExtractMovements(wallet, nativeSymbol string, history *domain.History) ([]TransactionMovements, int) {
	l := log.WithFields(log.Fields{
		"package": "service",
		"func":    "ExtractMovements",
		"wallet":  wallet,
	})

	malformed := make(map[string]bool, len(history.Malformed))
	for _, h := range history.Malformed {
		malformed[normalizeHash(h)] = true
	}
	failed := make(map[string]bool)
	for _, tx := range history.Transactions {
		if tx.Failed {
			failed[normalizeHash(tx.Hash)] = true
		}
	}

	transfersByHash := make(map[string][]domain.TokenTransferEvent)
	var orphanOrder []string
	known := make(map[string]bool, len(history.Transactions))
	for _, tx := range history.Transactions {
		known[normalizeHash(tx.Hash)] = true
	}
	for _, ev := range history.Transfers {
		h := normalizeHash(ev.Hash)
		if failed[h] {
			l.Debugf("dropping transfer event of failed transaction %s", ev.Hash)
			continue
		}
		if malformed[h] {
			continue
		}
		if !known[h] && len(transfersByHash[h]) == 0 {
			orphanOrder = append(orphanOrder, h)
		}
		transfersByHash[h] = append(transfersByHash[h], ev)
	}

	skipped := len(malformed)
	var out []TransactionMovements
	seen := make(map[string]bool, len(history.Transactions))
	for _, tx := range history.Transactions {
		h := normalizeHash(tx.Hash)
		if seen[h] || malformed[h] {
			continue
		}
		seen[h] = true
		if tx.Failed {
			out = append(out, TransactionMovements{Tx: tx})
			continue
		}
		movements, err := netMovements(wallet, nativeSymbol, tx, transfersByHash[h])
		if err != nil {
			l.Warnf("skipping transaction %s: %v", tx.Hash, err)
			skipped++
			continue
		}
		out = append(out, TransactionMovements{Tx: tx, Movements: movements})
	}

	for _, h := range orphanOrder {
		events := transfersByHash[h]
		tx := domain.RawTransaction{
			Hash:      events[0].Hash,
			Timestamp: events[0].Timestamp,
		}
		movements, err := netMovements(wallet, nativeSymbol, tx, events)
		if err != nil {
			l.Warnf("skipping transaction %s: %v", tx.Hash, err)
			skipped++
			continue
		}
		out = append(out, TransactionMovements{Tx: tx, Movements: movements, Synthetic: true})
	}

	if skipped > 0 {
		l.Warnf("skipped %d malformed transactions", skipped)
	}
	return out, skipped
}

// netMovements nets the native value and the transfer events of a single
// non-failed transaction. Assets keep the order of their first appearance.
// The first wallet transfer that cannot be converted fails the transaction.
func netMovements(wallet, nativeSymbol string, tx domain.RawTransaction, events []domain.TokenTransferEvent) ([]domain.NetMovement, error) {
	var order []string
	sides := make(map[string]*side)
	get := func(asset, symbol, contract string) *side {
		s, ok := sides[asset]
		if !ok {
			s = &side{symbol: symbol, contract: contract, in: decimal.Zero, out: decimal.Zero}
			sides[asset] = s
			order = append(order, asset)
		}
		if s.symbol == "" {
			s.symbol = symbol
		}
		return s
	}

	if tx.Value != nil && tx.Value.Sign() > 0 {
		amount := WeiToNative(tx.Value)
		if SameAddress(tx.From, wallet) {
			s := get(domain.NativeAsset, nativeSymbol, "")
			s.out = s.out.Add(amount)
		}
		if SameAddress(tx.To, wallet) {
			s := get(domain.NativeAsset, nativeSymbol, "")
			s.in = s.in.Add(amount)
		}
	}

	for _, ev := range events {
		fromWallet := SameAddress(ev.From, wallet)
		toWallet := SameAddress(ev.To, wallet)
		if !fromWallet && !toWallet {
			continue
		}
		amount, err := TransferAmount(ev)
		if err != nil {
			return nil, err
		}
		asset, symbol, contract := assetIdentity(ev, nativeSymbol)
		s := get(asset, symbol, contract)
		if fromWallet {
			s.out = s.out.Add(amount)
		}
		if toWallet {
			s.in = s.in.Add(amount)
		}
	}

	var movements []domain.NetMovement
	for _, asset := range order {
		s := sides[asset]
		net := s.in.Sub(s.out)
		if net.Abs().LessThan(movementEpsilon) {
			continue
		}
		movements = append(movements, domain.NetMovement{
			Hash:     tx.Hash,
			Asset:    asset,
			Symbol:   s.symbol,
			Contract: s.contract,
			Amount:   net,
		})
	}
	return movements, nil
}

func assetIdentity(ev domain.TokenTransferEvent, nativeSymbol string) (asset, symbol, contract string) {
	if ev.Contract == "" || ev.Contract == domain.NativeAsset {
		return domain.NativeAsset, nativeSymbol, ""
	}
	c := strings.ToLower(ev.Contract)
	return c, ev.Symbol, c
}

// TransferAmount converts the raw integer amount of a transfer event into units.
func TransferAmount(ev domain.TokenTransferEvent) (decimal.Decimal, error) {
	decimals := ev.Decimals
	if ev.Contract == domain.NativeAsset {
		decimals = nativeDecimals
	}
	if decimals < 0 {
		return decimal.Zero, fmt.Errorf("transfer %s of %s has no decimals: %w", ev.Hash, ev.Contract, domain.ErrMalformed)
	}
	raw, ok := new(big.Int).SetString(strings.TrimSpace(ev.RawAmount), 10)
	if !ok || raw.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("transfer %s amount %q: %w", ev.Hash, ev.RawAmount, domain.ErrMalformed)
	}
	return decimal.NewFromBigInt(raw, int32(-decimals)), nil
}

// WeiToNative converts wei into native units.
func WeiToNative(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -nativeDecimals)
}

// GasFee is gasUsed * gasPrice in native units.
func GasFee(tx domain.RawTransaction) decimal.Decimal {
	if tx.GasUsed == nil || tx.GasPrice == nil {
		return decimal.Zero
	}
	return WeiToNative(new(big.Int).Mul(tx.GasUsed, tx.GasPrice))
}

// SameAddress compares two hex addresses regardless of checksum casing.
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(a, b)
}

func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

package service

import (
	"fmt"
	"strings"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
)

// BuildEvents turns one classified transaction into ledger rows.
//
// The first row carries the first sent/received pair plus the fee. When a
// side holds more than one asset, the remaining legs are paired by position
// into continuation rows without a fee. Fee-tagged transactions produce at
// most one row with only the fee leg.
func BuildEvents(wallet, nativeSymbol string, tm TransactionMovements, c Classification) []domain.ClassifiedEvent {
	var fee *domain.Leg
	if PaidGas(wallet, tm.Tx) {
		fee = &domain.Leg{Quantity: GasFee(tm.Tx), Asset: nativeSymbol}
	}

	note := noteFor(tm.Tx, c)
	if c.Tag == domain.TagFee {
		if fee == nil {
			return nil
		}
		return []domain.ClassifiedEvent{{
			Timestamp: tm.Tx.Timestamp,
			Hash:      tm.Tx.Hash,
			Tag:       domain.TagFee,
			Fee:       fee,
			Note:      note,
		}}
	}

	var outs, ins []domain.Leg
	for _, m := range tm.Movements {
		leg := domain.Leg{Quantity: m.Amount.Abs(), Asset: m.Symbol, Contract: m.Contract}
		if m.Amount.IsNegative() {
			outs = append(outs, leg)
		} else {
			ins = append(ins, leg)
		}
	}

	n := max(len(outs), len(ins), 1)
	events := make([]domain.ClassifiedEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := domain.ClassifiedEvent{
			Timestamp:    tm.Tx.Timestamp,
			Hash:         tm.Tx.Hash,
			Tag:          c.Tag,
			Note:         note,
			Continuation: i > 0,
		}
		if i < len(outs) {
			leg := outs[i]
			ev.Sent = &leg
		}
		if i < len(ins) {
			leg := ins[i]
			ev.Received = &leg
		}
		if i == 0 {
			ev.Fee = fee
		} else {
			ev.Note = fmt.Sprintf("%s (leg %d of %d)", note, i+1, n)
		}
		events = append(events, ev)
	}
	return events
}

func noteFor(tx domain.RawTransaction, c Classification) string {
	method := tx.FunctionName
	if i := strings.IndexByte(method, '('); i >= 0 {
		method = method[:i]
	}
	method = strings.TrimSpace(method)
	switch {
	case tx.Failed:
		return "failed transaction"
	case method != "":
		return method
	case c.Rule == "gas-only":
		return "gas only"
	default:
		return c.Rule
	}
}

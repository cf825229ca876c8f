package service

import (
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CostBasisLedger tracks open lots per asset and consumes them FIFO.
// It is owned by a single run and must be fed in ascending timestamp order.
type CostBasisLedger struct {
	lots map[string][]domain.Lot
}

func NewCostBasisLedger() *CostBasisLedger {
	return &CostBasisLedger{lots: make(map[string][]domain.Lot)}
}

// Acquire opens a lot. Unpriced or non-positive acquisitions are ignored.
func (l *CostBasisLedger) Acquire(asset string, quantity decimal.Decimal, unitPrice *decimal.Decimal, ts time.Time) {
	if !quantity.IsPositive() || unitPrice == nil {
		return
	}
	l.lots[asset] = append(l.lots[asset], domain.Lot{
		Asset:     asset,
		Remaining: quantity,
		UnitCost:  *unitPrice,
		Acquired:  ts,
	})
}

// Dispose consumes lots oldest first.
//
// A lot whose remaining quantity does not exceed what is still needed is
// removed; otherwise it is decremented and consumption stops. With no lots
// the gain is unknown (nil). Lots are consumed even when unitPrice is nil,
// in which case the gain is unknown too. When the
// lots cover only part of the quantity, the gain covers that part.
func (l *CostBasisLedger) Dispose(asset string, quantity decimal.Decimal, unitPrice *decimal.Decimal) domain.RealizedDisposal {
	d := domain.RealizedDisposal{
		Asset:     asset,
		Quantity:  quantity,
		Covered:   decimal.Zero,
		Proceeds:  decimal.Zero,
		CostBasis: decimal.Zero,
	}
	lots := l.lots[asset]
	if !quantity.IsPositive() || len(lots) == 0 {
		return d
	}

	need := quantity
	basis := decimal.Zero
	for need.IsPositive() && len(lots) > 0 {
		lot := &lots[0]
		if lot.Remaining.LessThanOrEqual(need) {
			basis = basis.Add(lot.Remaining.Mul(lot.UnitCost))
			need = need.Sub(lot.Remaining)
			lots = lots[1:]
			continue
		}
		basis = basis.Add(need.Mul(lot.UnitCost))
		lot.Remaining = lot.Remaining.Sub(need)
		need = decimal.Zero
	}
	if len(lots) == 0 {
		delete(l.lots, asset)
	} else {
		l.lots[asset] = lots
	}

	d.Covered = quantity.Sub(need)
	d.CostBasis = basis
	if unitPrice == nil {
		return d
	}
	d.Proceeds = d.Covered.Mul(*unitPrice)
	gain := d.Proceeds.Sub(basis)
	d.Gain = &gain
	return d
}

// Lots returns a copy of the open lots of an asset, oldest first.
func (l *CostBasisLedger) Lots(asset string) []domain.Lot {
	return append([]domain.Lot(nil), l.lots[asset]...)
}

// Holding is the open quantity of an asset.
func (l *CostBasisLedger) Holding(asset string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots[asset] {
		total = total.Add(lot.Remaining)
	}
	return total
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostBasisLedger_FIFO(t *testing.T) {
	l := NewCostBasisLedger()
	l.Acquire("X", dec("10"), decPtr("1"), at("2024-01-01T00:00:00Z"))
	l.Acquire("X", dec("10"), decPtr("2"), at("2024-01-02T00:00:00Z"))

	d := l.Dispose("X", dec("15"), decPtr("3"))
	assert.Equal(t, "20", d.CostBasis.String())
	assert.Equal(t, "45", d.Proceeds.String())
	require.NotNil(t, d.Gain)
	assert.Equal(t, "25", d.Gain.String())
	assert.Equal(t, "15", d.Covered.String())

	lots := l.Lots("X")
	require.Len(t, lots, 1)
	assert.Equal(t, "5", lots[0].Remaining.String())
	assert.Equal(t, "2", lots[0].UnitCost.String())
}

func TestCostBasisLedger_NoLotsIsUnknown(t *testing.T) {
	l := NewCostBasisLedger()
	d := l.Dispose("X", dec("1"), decPtr("3"))
	assert.Nil(t, d.Gain)
	assert.Nil(t, d.RoundedGain())
	assert.True(t, d.Covered.IsZero())
}

func TestCostBasisLedger_AcquireIgnoresUnpricedAndNonPositive(t *testing.T) {
	l := NewCostBasisLedger()
	l.Acquire("X", dec("10"), nil, at("2024-01-01T00:00:00Z"))
	l.Acquire("X", dec("0"), decPtr("1"), at("2024-01-01T00:00:00Z"))
	l.Acquire("X", dec("-1"), decPtr("1"), at("2024-01-01T00:00:00Z"))
	assert.Empty(t, l.Lots("X"))
	assert.Nil(t, l.Dispose("X", dec("1"), decPtr("1")).Gain)
}

func TestCostBasisLedger_ExactLotIsRemoved(t *testing.T) {
	l := NewCostBasisLedger()
	l.Acquire("X", dec("4"), decPtr("1"), at("2024-01-01T00:00:00Z"))
	l.Acquire("X", dec("6"), decPtr("2"), at("2024-01-02T00:00:00Z"))

	d := l.Dispose("X", dec("4"), decPtr("1.5"))
	require.NotNil(t, d.Gain)
	assert.Equal(t, "2", d.Gain.String())

	lots := l.Lots("X")
	require.Len(t, lots, 1)
	assert.Equal(t, "6", lots[0].Remaining.String())
}

func TestCostBasisLedger_PartialCoverage(t *testing.T) {
	l := NewCostBasisLedger()
	l.Acquire("X", dec("5"), decPtr("2"), at("2024-01-01T00:00:00Z"))

	d := l.Dispose("X", dec("8"), decPtr("3"))
	assert.Equal(t, "5", d.Covered.String())
	assert.Equal(t, "8", d.Quantity.String())
	assert.Equal(t, "15", d.Proceeds.String())
	assert.Equal(t, "10", d.CostBasis.String())
	require.NotNil(t, d.Gain)
	assert.Equal(t, "5", d.Gain.String())
	assert.True(t, l.Holding("X").IsZero())
}

func TestCostBasisLedger_UnpricedDisposalConsumesLots(t *testing.T) {
	l := NewCostBasisLedger()
	l.Acquire("X", dec("10"), decPtr("1"), at("2024-01-01T00:00:00Z"))

	d := l.Dispose("X", dec("4"), nil)
	assert.Nil(t, d.Gain)
	assert.Equal(t, "6", l.Holding("X").String())
}

func TestCostBasisLedger_RoundsOnlyForReporting(t *testing.T) {
	l := NewCostBasisLedger()
	l.Acquire("X", dec("3"), decPtr("1"), at("2024-01-01T00:00:00Z"))

	d := l.Dispose("X", dec("1"), decPtr("1.333333"))
	require.NotNil(t, d.Gain)
	assert.Equal(t, "0.333333", d.Gain.String())
	assert.Equal(t, "0.33", d.RoundedGain().String())
}

func TestCostBasisLedger_AssetsAreIndependent(t *testing.T) {
	l := NewCostBasisLedger()
	l.Acquire("X", dec("1"), decPtr("1"), at("2024-01-01T00:00:00Z"))
	assert.Nil(t, l.Dispose("Y", dec("1"), decPtr("1")).Gain)
	assert.Equal(t, "1", l.Holding("X").String())
}

package types

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractLifecycle(t *testing.T) {
	c := NewContract("run", "R_100", Rise, decimal.NewFromInt(1))
	assert.Equal(t, Pending, c.Status)
	assert.Zero(t, c.ID)

	require.NoError(t, c.MarkOpen(42, decimal.NewFromFloat(0.98), time.Now()))
	require.NoError(t, c.UpdateProfit(decimal.NewFromFloat(0.2)))
	require.NoError(t, c.MarkSettled(decimal.NewFromFloat(0.95), time.Now()))

	assert.Equal(t, Settled, c.Status)
	assert.True(t, c.Won())
	require.NoError(t, c.MarkRiskApplied())

	rec := c.Record("tick_diff")
	assert.Equal(t, int64(42), rec.ContractID)
	assert.Equal(t, "tick_diff", rec.Strategy)
}

func TestContractStatusIsMonotonic(t *testing.T) {
	c := NewContract("run", "R_100", Fall, decimal.NewFromInt(1))

	var iv *InvariantViolation
	assert.True(t, errors.As(c.MarkSettled(decimal.Zero, time.Now()), &iv))
	assert.True(t, errors.As(c.MarkOpen(0, decimal.Zero, time.Now()), &iv))

	require.NoError(t, c.MarkOpen(7, decimal.NewFromInt(1), time.Now()))
	assert.Error(t, c.MarkOpen(8, decimal.NewFromInt(1), time.Now()))

	require.NoError(t, c.MarkSettled(decimal.NewFromInt(-1), time.Now()))
	assert.Error(t, c.MarkOpen(9, decimal.NewFromInt(1), time.Now()))
	assert.Error(t, c.UpdateProfit(decimal.NewFromInt(1)))
	assert.Error(t, c.MarkSettled(decimal.NewFromInt(1), time.Now()))
	assert.Equal(t, int64(7), c.ID)
	assert.False(t, c.Won())
}

func TestRiskAppliedAtMostOnce(t *testing.T) {
	c := NewContract("run", "R_100", Rise, decimal.NewFromInt(1))
	assert.Error(t, c.MarkRiskApplied())

	require.NoError(t, c.MarkOpen(1, decimal.NewFromInt(1), time.Now()))
	require.NoError(t, c.MarkSettled(decimal.Zero, time.Now()))
	require.NoError(t, c.MarkRiskApplied())

	var iv *InvariantViolation
	require.True(t, errors.As(c.MarkRiskApplied(), &iv))
	assert.Equal(t, int64(1), iv.ContractID)
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, Fall, Rise.Opposite())
	assert.Equal(t, Rise, Fall.Opposite())
}

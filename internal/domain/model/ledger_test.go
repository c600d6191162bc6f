package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTxKindCheckDelta(t *testing.T) {
	pos := decimal.NewFromInt(10)
	neg := decimal.NewFromInt(-10)

	assert.NoError(t, TxKindEarned.CheckDelta(pos))
	assert.ErrorIs(t, TxKindEarned.CheckDelta(neg), ErrInvalidDelta)
	assert.NoError(t, TxKindRedemption.CheckDelta(neg))
	assert.ErrorIs(t, TxKindRedemption.CheckDelta(pos), ErrInvalidDelta)
	assert.NoError(t, TxKindBonus.CheckDelta(pos))
	assert.NoError(t, TxKindBonus.CheckDelta(neg))
	assert.ErrorIs(t, TxKindBonus.CheckDelta(decimal.Zero), ErrInvalidDelta)
	assert.ErrorIs(t, TxKind("gift").CheckDelta(pos), ErrInvalidDelta)
}

func TestReplayBalance(t *testing.T) {
	txs := []LedgerTransaction{
		{Delta: decimal.NewFromInt(100)},
		{Delta: decimal.NewFromInt(-60)},
		{Delta: decimal.RequireFromString("12.5")},
	}
	assert.True(t, ReplayBalance(txs).Equal(decimal.RequireFromString("52.5")))
	assert.True(t, ReplayBalance(nil).IsZero())
}

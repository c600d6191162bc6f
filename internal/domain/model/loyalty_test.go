package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		lifetime int64
		want     Tier
	}{
		{0, TierBronze},
		{499, TierBronze},
		{500, TierSilver},
		{1999, TierSilver},
		{2000, TierGold},
		{4999, TierGold},
		{5000, TierPlatinum},
		{100000, TierPlatinum},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(decimal.NewFromInt(tt.lifetime)), tt.lifetime)
	}
}

func TestAccrualPoints(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		tier   Tier
		want   int64
	}{
		{"bronze", "118", TierBronze, 11},
		{"under ten", "9.99", TierBronze, 0},
		{"silver", "118", TierSilver, 14},
		{"gold", "100", TierGold, 15},
		{"platinum", "59", TierPlatinum, 11},
		{"zero", "0", TierPlatinum, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AccrualPoints(decimal.RequireFromString(tt.amount), tt.tier)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "got %s", got)
		})
	}
}

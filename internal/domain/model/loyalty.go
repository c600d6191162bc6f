package model

import "github.com/shopspring/decimal"

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

type tierRule struct {
	tier       Tier
	min        decimal.Decimal
	multiplier decimal.Decimal
}

// 上位から順に判定する
var tierRules = []tierRule{
	{TierPlatinum, decimal.NewFromInt(5000), decimal.NewFromInt(2)},
	{TierGold, decimal.NewFromInt(2000), decimal.RequireFromString("1.5")},
	{TierSilver, decimal.NewFromInt(500), decimal.RequireFromString("1.25")},
	{TierBronze, decimal.Zero, decimal.NewFromInt(1)},
}

// 1ポイント = 10
var PointsPerCurrencyUnit = decimal.NewFromInt(10)

// TierFor は累計獲得ポイントから段階を決める純関数。
func TierFor(lifetime decimal.Decimal) Tier {
	for _, r := range tierRules {
		if lifetime.GreaterThanOrEqual(r.min) {
			return r.tier
		}
	}
	return TierBronze
}

func (t Tier) Multiplier() decimal.Decimal {
	for _, r := range tierRules {
		if r.tier == t {
			return r.multiplier
		}
	}
	return decimal.NewFromInt(1)
}

// AccrualPoints は floor(amount / 10 * multiplier)。
func AccrualPoints(amount decimal.Decimal, tier Tier) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(PointsPerCurrencyUnit).Mul(tier.Multiplier()).Floor()
}

package staking

import (
	"github.com/shopspring/decimal"

	model "github.com/roamstake/staking-engine/database/models/staking"
)

// TierSpec holds the reward parameters of one tier.
type TierSpec struct {
	DailyRate  decimal.Decimal
	Multiplier decimal.Decimal
}

// TierTable maps a tier name to its reward parameters. The table is injected
// at construction and treated as immutable afterwards.
type TierTable map[model.Tier]TierSpec

// DefaultTierTable returns the built-in reward brackets.
func DefaultTierTable() TierTable {
	return TierTable{
		model.TierBronze:   {DailyRate: decimal.NewFromInt(10), Multiplier: decimal.RequireFromString("1.0")},
		model.TierSilver:   {DailyRate: decimal.NewFromInt(15), Multiplier: decimal.RequireFromString("1.2")},
		model.TierGold:     {DailyRate: decimal.NewFromInt(25), Multiplier: decimal.RequireFromString("1.5")},
		model.TierPlatinum: {DailyRate: decimal.NewFromInt(50), Multiplier: decimal.RequireFromString("2.0")},
	}
}

// Lookup returns the reward parameters for tier.
func (t TierTable) Lookup(tier model.Tier) (TierSpec, bool) {
	spec, ok := t[tier]
	return spec, ok
}

// Valid reports whether tier is configured. New stakes must pass this check;
// the read-path fallback in ComputePendingReward only covers rows persisted
// before a tier was removed.
func (t TierTable) Valid(tier model.Tier) bool {
	_, ok := t[tier]
	return ok
}

// fallbackSpec covers rows whose tier is no longer configured:
// bronze daily rate with a flat multiplier.
func (t TierTable) fallbackSpec() TierSpec {
	spec, ok := t[model.TierBronze]
	if !ok {
		spec = TierSpec{DailyRate: decimal.NewFromInt(10)}
	}
	return TierSpec{DailyRate: spec.DailyRate, Multiplier: decimal.NewFromInt(1)}
}

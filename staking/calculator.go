package staking

import (
	"time"

	"github.com/shopspring/decimal"

	model "github.com/roamstake/staking-engine/database/models/staking"
)

// RewardScale is the number of fractional digits every reward amount is
// rounded to before it crosses any boundary.
const RewardScale = 6

// streakBonusCapDays caps the 1%-per-day streak bonus at +50%.
const streakBonusCapDays = 50

var (
	millisPerDay = decimal.NewFromInt(24 * 60 * 60 * 1000)
	one          = decimal.NewFromInt(1)
	hundred      = decimal.NewFromInt(100)
)

// ComputePendingReward returns the reward accrued by one stake snapshot since
// its last realization, as of now, rounded to RewardScale digits half away
// from zero.
//
//	reward = dailyRate(tier) * elapsedDays * multiplier(tier) * (1 + min(consecutiveDays, 50)/100)
//
// Elapsed time is clamped to zero so a backwards clock skew never produces a
// negative reward. The function is pure: both the query surface and the claim
// path call it so they agree bit-for-bit on the amount owed.
func ComputePendingReward(table TierTable, tier model.Tier, lastVerifiedAt time.Time,
	consecutiveDays int64, now time.Time) decimal.Decimal {
	spec, ok := table.Lookup(tier)
	if !ok {
		spec = table.fallbackSpec()
	}

	elapsedMillis := now.Sub(lastVerifiedAt).Milliseconds()
	if elapsedMillis < 0 {
		elapsedMillis = 0
	}
	elapsedDays := decimal.NewFromInt(elapsedMillis).Div(millisPerDay)

	bonusDays := consecutiveDays
	if bonusDays > streakBonusCapDays {
		bonusDays = streakBonusCapDays
	}
	bonusFactor := one.Add(decimal.NewFromInt(bonusDays).Div(hundred))

	return spec.DailyRate.
		Mul(elapsedDays).
		Mul(spec.Multiplier).
		Mul(bonusFactor).
		Round(RewardScale)
}

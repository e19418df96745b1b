package staking

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/roamstake/staking-engine/common/logging"
	database "github.com/roamstake/staking-engine/database/db"
	model "github.com/roamstake/staking-engine/database/models/staking"
)

// StakeView is one stake with its pending reward freshly computed. The
// persisted record never carries a pending amount.
type StakeView struct {
	model.Stake
	PendingRewards decimal.Decimal `json:"pending_rewards"`
}

// OwnerStakes is the list view for one owner.
type OwnerStakes struct {
	Stakes              []*StakeView    `json:"stakes"`
	TotalActive         int64           `json:"total_active"`
	TotalPendingRewards decimal.Decimal `json:"total_pending_rewards"`
}

// OwnerStats is the aggregate view for one owner. Purely derived.
type OwnerStats struct {
	StakedByTier    map[model.Tier]int64 `json:"staked_by_tier"`
	TotalStakes     int64                `json:"total_stakes"`
	TotalActive     int64                `json:"total_active"`
	LifetimeEarned  decimal.Decimal      `json:"lifetime_earned"`
	LifetimeClaimed decimal.Decimal      `json:"lifetime_claimed"`
	PendingRewards  decimal.Decimal      `json:"pending_rewards"`
}

// QueryService serves read-only aggregations. Reads run with plain snapshot
// consistency and never take the owner lock, so a claim racing a read may
// briefly make the read stale. That is acceptable.
type QueryService struct {
	logger logging.Logger
	db     *gorm.DB
	dao    database.StakeDAO
	tiers  TierTable
}

func NewQueryService(logger logging.Logger, tiers TierTable) *QueryService {
	return &QueryService{
		logger: logger,
		db:     database.GetDB(),
		tiers:  tiers,
	}
}

// ListStakes returns every stake of the owner with pending rewards computed
// as of now, plus active count and the pending total over accruing stakes.
func (q *QueryService) ListStakes(ownerAddress string) (*OwnerStakes, error) {
	stakes, err := q.dao.GetOwnerStakes(q.db, ownerAddress)
	if err != nil {
		return nil, storeErr(err)
	}

	now := nowUTC()
	out := &OwnerStakes{
		Stakes:              make([]*StakeView, 0, len(stakes)),
		TotalPendingRewards: decimal.Zero,
	}
	for _, s := range stakes {
		view := &StakeView{Stake: *s, PendingRewards: decimal.Zero}
		if s.Status.Accruing() {
			view.PendingRewards = ComputePendingReward(q.tiers, s.Tier, s.LastVerifiedAt, s.ConsecutiveDays, now)
			out.TotalPendingRewards = out.TotalPendingRewards.Add(view.PendingRewards)
		}
		if s.Status == model.StatusActive {
			out.TotalActive++
		}
		out.Stakes = append(out.Stakes, view)
	}
	out.TotalPendingRewards = out.TotalPendingRewards.Round(RewardScale)
	return out, nil
}

// StatsForOwner returns the owner's aggregate staking position.
func (q *QueryService) StatsForOwner(ownerAddress string) (*OwnerStats, error) {
	stakes, err := q.dao.GetOwnerStakes(q.db, ownerAddress)
	if err != nil {
		return nil, storeErr(err)
	}

	now := nowUTC()
	stats := &OwnerStats{
		StakedByTier:    map[model.Tier]int64{},
		LifetimeEarned:  decimal.Zero,
		LifetimeClaimed: decimal.Zero,
		PendingRewards:  decimal.Zero,
	}
	for _, s := range stakes {
		stats.TotalStakes++
		stats.LifetimeEarned = stats.LifetimeEarned.Add(s.TotalRewardsEarned)
		stats.LifetimeClaimed = stats.LifetimeClaimed.Add(s.TotalRewardsClaimed)
		if s.Status.Accruing() {
			stats.StakedByTier[s.Tier]++
			stats.PendingRewards = stats.PendingRewards.Add(
				ComputePendingReward(q.tiers, s.Tier, s.LastVerifiedAt, s.ConsecutiveDays, now))
		}
		if s.Status == model.StatusActive {
			stats.TotalActive++
		}
	}
	stats.PendingRewards = stats.PendingRewards.Round(RewardScale)
	return stats, nil
}

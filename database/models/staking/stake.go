package staking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roamstake/staking-engine/database/models"
)

// Status is the lifecycle state of a stake.
type Status string

// Status enums. Active is the only initial state; unstaked and cancelled are
// terminal and kept for audit.
const (
	StatusActive         Status = "active"
	StatusPendingUnstake Status = "pending_unstake"
	StatusUnstaked       Status = "unstaked"
	StatusCancelled      Status = "cancelled"
)

// Terminal returns true once the stake can never accrue again.
func (s Status) Terminal() bool {
	return s == StatusUnstaked || s == StatusCancelled
}

// Accruing returns true while the stake still earns rewards.
func (s Status) Accruing() bool {
	return s == StatusActive || s == StatusPendingUnstake
}

// Tier names a reward bracket.
type Tier string

// Tier enums.
const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Stake defines struct to contain one staked asset.
type Stake struct {
	StakeID              string          `gorm:"column:stake_id;type:varchar(128);primary_key;not null" json:"stake_id"`
	AssetID              string          `gorm:"column:asset_id;type:varchar(128);not null" json:"asset_id"`
	OwnerAddress         string          `gorm:"column:owner_address;type:varchar(128);not null" json:"owner_address"`
	Tier                 Tier            `gorm:"column:tier;type:varchar(32);not null" json:"tier"`
	StakedAt             time.Time       `gorm:"column:staked_at;type:timestamp with time zone;not null" json:"staked_at"`
	LastVerifiedAt       time.Time       `gorm:"column:last_verified_at;type:timestamp with time zone;not null" json:"last_verified_at"`
	ConsecutiveDays      int64           `gorm:"column:consecutive_days;type:bigint;not null" json:"consecutive_days"`
	VerificationFailures int64           `gorm:"column:verification_failures;type:bigint;not null" json:"verification_failures"`
	Status               Status          `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CooldownEndsAt       *time.Time      `gorm:"column:cooldown_ends_at;type:timestamp with time zone" json:"cooldown_ends_at,omitempty"`
	TotalRewardsEarned   decimal.Decimal `gorm:"column:total_rewards_earned;type:decimal(38,18);not null" json:"total_rewards_earned"`
	TotalRewardsClaimed  decimal.Decimal `gorm:"column:total_rewards_claimed;type:decimal(38,18);not null" json:"total_rewards_claimed"`

	models.Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*Stake) ForeignKeyConstraints() []models.ForeignKeyConstraint {
	return nil
}

// Indexes returns information to create index. The partial unique index keeps
// an asset from being staked twice concurrently while still allowing restakes
// after the previous stake reaches a terminal state.
func (*Stake) Indexes() []models.CustomIndex {
	return []models.CustomIndex{
		{
			Name:      "stake_active_asset_unique_idx",
			Unique:    true,
			Fields:    []string{"asset_id"},
			Condition: "status IN ('active', 'pending_unstake')",
		},
		{
			Name:   "stake_owner_status_idx",
			Fields: []string{"owner_address", "status"},
		},
		{
			Name:      "stake_cooldown_idx",
			Fields:    []string{"cooldown_ends_at"},
			Condition: "status = 'pending_unstake'",
		},
	}
}

package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roamstake/staking-engine/database/models/staking"
)

// StakeDAO bundles stake queries. Methods take the handle (or transaction)
// explicitly so callers decide the transactional scope.
type StakeDAO struct {
}

// GetStake returns one stake by id. gorm.ErrRecordNotFound passes through.
func (d *StakeDAO) GetStake(db *gorm.DB, stakeID string) (*staking.Stake, error) {
	var s staking.Stake
	if err := db.Where("stake_id = ?", stakeID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetStakeForUpdate returns one stake by id with a row lock held for the
// remainder of the enclosing transaction.
func (d *StakeDAO) GetStakeForUpdate(db *gorm.DB, stakeID string) (*staking.Stake, error) {
	var s staking.Stake
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stake_id = ?", stakeID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOwnerStakes returns every stake of the owner, terminal ones included.
func (d *StakeDAO) GetOwnerStakes(db *gorm.DB, owner string) ([]*staking.Stake, error) {
	var all []*staking.Stake
	err := db.Where("owner_address = ?", owner).
		Order("staked_at asc").Find(&all).Error
	if err != nil {
		return nil, fmt.Errorf("fail to fetch stakes of owner %s %w", owner, err)
	}
	return all, nil
}

// GetAccruingStakesForUpdate returns the owner's stakes still accruing rewards,
// row-locked so a concurrent claim on the same owner blocks until commit.
func (d *StakeDAO) GetAccruingStakesForUpdate(db *gorm.DB, owner string) ([]*staking.Stake, error) {
	var all []*staking.Stake
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_address = ? and status in ?", owner,
			[]staking.Status{staking.StatusActive, staking.StatusPendingUnstake}).
		Order("stake_id asc").Find(&all).Error
	if err != nil {
		return nil, fmt.Errorf("fail to fetch accruing stakes of owner %s %w", owner, err)
	}
	return all, nil
}

// ListExpiredCooldowns returns ids of pending_unstake rows whose cooldown has
// passed, oldest first.
func (d *StakeDAO) ListExpiredCooldowns(db *gorm.DB, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := db.Model(&staking.Stake{}).
		Where("status = ? and cooldown_ends_at <= ?", staking.StatusPendingUnstake, now).
		Order("cooldown_ends_at asc").Limit(limit).
		Pluck("stake_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("fail to list expired cooldowns %w", err)
	}
	return ids, nil
}

// CreateStake inserts a new stake record.
func (d *StakeDAO) CreateStake(db *gorm.DB, s *staking.Stake) error {
	return db.Create(s).Error
}

// SaveStake persists all fields of an existing stake record.
func (d *StakeDAO) SaveStake(db *gorm.DB, s *staking.Stake) error {
	return db.Save(s).Error
}

package staking

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/roamstake/staking-engine/common/config"
	"github.com/roamstake/staking-engine/common/logging"
	database "github.com/roamstake/staking-engine/database/db"
	model "github.com/roamstake/staking-engine/database/models/staking"
)

// Defaults, overridable via env.
const (
	DefaultCooldown      = 7 * 24 * time.Hour
	DefaultOwnerLockWait = 5 * time.Second
	sweepBatchSize       = 200
)

// Engine owns every mutation of stake records: registration, verification
// intake, the unstake lifecycle and reward claims. Mutations on one owner
// serialize; owners are independent of each other.
type Engine struct {
	logger logging.Logger
	db     *gorm.DB
	dao    database.StakeDAO
	tiers  TierTable
	locks  *lockTable

	cooldown time.Duration
	lockWait time.Duration
}

func NewEngine(logger logging.Logger, tiers TierTable) *Engine {
	return &Engine{
		logger:   logger,
		db:       database.GetDB(),
		tiers:    tiers,
		locks:    newLockTable(),
		cooldown: config.GetDuration("STAKE_UNSTAKE_COOLDOWN", DefaultCooldown),
		lockWait: config.GetDuration("STAKE_OWNER_LOCK_WAIT", DefaultOwnerLockWait),
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (e *Engine) now() time.Time {
	return nowUTC()
}

// RegisterStake persists an already-validated stake record. The tier must be
// configured (no silent fallback at write time) and the asset must not have
// another live stake. Zero timestamps default to now.
func (e *Engine) RegisterStake(s *model.Stake) error {
	if !e.tiers.Valid(s.Tier) {
		return fmt.Errorf("%w: tier=%s stake=%s", ErrUnknownTier, s.Tier, s.StakeID)
	}
	if err := e.locks.acquire(s.OwnerAddress, e.lockWait); err != nil {
		return err
	}
	defer e.locks.release(s.OwnerAddress)

	now := e.now()
	if s.StakedAt.IsZero() {
		s.StakedAt = now
	}
	if s.LastVerifiedAt.IsZero() {
		s.LastVerifiedAt = s.StakedAt
	}
	if s.Status == "" {
		s.Status = model.StatusActive
	}

	err := database.WithTransaction(e.db, func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&model.Stake{}).
			Where("asset_id = ? and status in ?", s.AssetID,
				[]model.Status{model.StatusActive, model.StatusPendingUnstake}).
			Count(&count).Error
		if err != nil {
			return storeErr(err)
		}
		if count > 0 {
			return fmt.Errorf("%w: asset=%s", ErrAssetAlreadyStaked, s.AssetID)
		}
		if err := e.dao.CreateStake(tx, s); err != nil {
			// The partial unique index is the backstop for a race on the
			// existence check above.
			if strings.Contains(err.Error(), "SQLSTATE 23505") {
				return fmt.Errorf("%w: asset=%s", ErrAssetAlreadyStaked, s.AssetID)
			}
			return storeErr(err)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return err
	}
	e.logger.Info("registered stake %s asset=%s owner=%s tier=%s",
		s.StakeID, s.AssetID, s.OwnerAddress, s.Tier)
	return nil
}

// ApplyVerificationResult records the outcome of one external verification
// event. Success extends the streak; failure breaks it and bumps the failure
// counter. lastVerifiedAt is untouched here: only a claim realizes accrual.
func (e *Engine) ApplyVerificationResult(stakeID string, success bool) error {
	return database.WithTransaction(e.db, func(tx *gorm.DB) error {
		s, err := e.loadForUpdate(tx, stakeID)
		if err != nil {
			return err
		}
		if !s.Status.Accruing() {
			return fmt.Errorf("%w: stake=%s status=%s", ErrInvalidState, stakeID, s.Status)
		}
		if success {
			s.ConsecutiveDays++
		} else {
			s.VerificationFailures++
			s.ConsecutiveDays = 0
		}
		if err := e.dao.SaveStake(tx, s); err != nil {
			return storeErr(err)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
}

// InitiateUnstake moves an active stake into pending_unstake and starts the
// cooldown. Rewards keep accruing until claimed or finalized.
func (e *Engine) InitiateUnstake(stakeID, ownerAddress string) (time.Time, error) {
	var endsAt time.Time
	err := database.WithTransaction(e.db, func(tx *gorm.DB) error {
		s, err := e.loadForUpdate(tx, stakeID)
		if err != nil {
			return err
		}
		if s.OwnerAddress != ownerAddress {
			return fmt.Errorf("%w: stake=%s owner=%s", ErrForbidden, stakeID, ownerAddress)
		}
		if s.Status != model.StatusActive {
			return fmt.Errorf("%w: stake=%s status=%s", ErrInvalidState, stakeID, s.Status)
		}
		endsAt = e.now().Add(e.cooldown)
		s.Status = model.StatusPendingUnstake
		s.CooldownEndsAt = &endsAt
		if err := e.dao.SaveStake(tx, s); err != nil {
			return storeErr(err)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return time.Time{}, err
	}
	e.logger.Info("unstake initiated stake=%s owner=%s cooldown_ends=%s",
		stakeID, ownerAddress, endsAt.Format(time.RFC3339))
	return endsAt, nil
}

// CancelUnstake aborts a pending unstake on behalf of the refund path. The
// stake ends cancelled, a terminal state.
func (e *Engine) CancelUnstake(stakeID, ownerAddress string) error {
	return database.WithTransaction(e.db, func(tx *gorm.DB) error {
		s, err := e.loadForUpdate(tx, stakeID)
		if err != nil {
			return err
		}
		if s.OwnerAddress != ownerAddress {
			return fmt.Errorf("%w: stake=%s owner=%s", ErrForbidden, stakeID, ownerAddress)
		}
		if s.Status != model.StatusPendingUnstake {
			return fmt.Errorf("%w: stake=%s status=%s", ErrInvalidState, stakeID, s.Status)
		}
		s.Status = model.StatusCancelled
		s.CooldownEndsAt = nil
		if err := e.dao.SaveStake(tx, s); err != nil {
			return storeErr(err)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
}

// FinalizeUnstake releases a pending stake once its cooldown has passed.
// Idempotent: a stake already terminal, or whose cooldown is still running,
// is left alone and reported as not finalized.
func (e *Engine) FinalizeUnstake(stakeID string) (bool, error) {
	finalized := false
	err := database.WithTransaction(e.db, func(tx *gorm.DB) error {
		s, err := e.loadForUpdate(tx, stakeID)
		if err != nil {
			return err
		}
		if s.Status.Terminal() {
			return nil
		}
		if s.Status != model.StatusPendingUnstake {
			return fmt.Errorf("%w: stake=%s status=%s", ErrInvalidState, stakeID, s.Status)
		}
		if s.CooldownEndsAt == nil || e.now().Before(*s.CooldownEndsAt) {
			return nil
		}
		s.Status = model.StatusUnstaked
		s.CooldownEndsAt = nil
		if err := e.dao.SaveStake(tx, s); err != nil {
			return storeErr(err)
		}
		finalized = true
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return false, err
	}
	if finalized {
		e.logger.Info("unstake finalized stake=%s", stakeID)
	}
	return finalized, nil
}

// SweepExpiredCooldowns finalizes every pending stake whose cooldown has
// passed. Safe to run concurrently; a stake finalized by a racing sweep is
// counted by whichever sweep actually flipped it.
func (e *Engine) SweepExpiredCooldowns() (int, error) {
	ids, err := e.dao.ListExpiredCooldowns(e.db, e.now(), sweepBatchSize)
	if err != nil {
		return 0, storeErr(err)
	}
	finalized := 0
	for _, id := range ids {
		done, err := e.FinalizeUnstake(id)
		if err != nil {
			e.logger.Warn("sweep: finalize stake=%s failed: %s", id, err)
			continue
		}
		if done {
			finalized++
		}
	}
	return finalized, nil
}

// ClaimAllRewards realizes the pending reward of every accruing stake the
// owner holds, atomically. Two concurrent claims for the same owner
// serialize: the winner pays out, the loser recomputes against the advanced
// lastVerifiedAt and gets ErrNoPendingRewards.
func (e *Engine) ClaimAllRewards(ownerAddress string) (decimal.Decimal, error) {
	if err := e.locks.acquire(ownerAddress, e.lockWait); err != nil {
		return decimal.Zero, err
	}
	defer e.locks.release(ownerAddress)

	total := decimal.Zero
	err := database.WithTransaction(e.db, func(tx *gorm.DB) error {
		stakes, err := e.dao.GetAccruingStakesForUpdate(tx, ownerAddress)
		if err != nil {
			return storeErr(err)
		}

		now := e.now()
		pendings := make([]decimal.Decimal, len(stakes))
		total = decimal.Zero
		for i, s := range stakes {
			pendings[i] = ComputePendingReward(e.tiers, s.Tier, s.LastVerifiedAt, s.ConsecutiveDays, now)
			total = total.Add(pendings[i])
		}
		total = total.Round(RewardScale)
		if total.IsZero() {
			// True no-op: the transaction rolls back without having written.
			return fmt.Errorf("%w: owner=%s", ErrNoPendingRewards, ownerAddress)
		}

		for i, s := range stakes {
			s.TotalRewardsEarned = s.TotalRewardsEarned.Add(pendings[i])
			s.TotalRewardsClaimed = s.TotalRewardsClaimed.Add(pendings[i])
			s.LastVerifiedAt = now
			if err := e.dao.SaveStake(tx, s); err != nil {
				return storeErr(err)
			}
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return decimal.Zero, err
	}
	e.logger.Info("claimed %s for owner=%s", total.StringFixed(RewardScale), ownerAddress)
	return total, nil
}

func (e *Engine) loadForUpdate(tx *gorm.DB, stakeID string) (*model.Stake, error) {
	s, err := e.dao.GetStakeForUpdate(tx, stakeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: stake=%s", ErrStakeNotFound, stakeID)
		}
		return nil, storeErr(err)
	}
	return s, nil
}

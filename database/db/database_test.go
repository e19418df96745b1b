package db

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/roamstake/staking-engine/database/models"
	"github.com/roamstake/staking-engine/database/models/staking"
	"github.com/roamstake/staking-engine/types"
)

type StakeStoreTestSuite struct {
	suite.Suite

	dao StakeDAO
}

func (s *StakeStoreTestSuite) SetupSuite() {
	Initialize()
	Reset(GetDB(), types.Staking, true)
}

func (s *StakeStoreTestSuite) TearDownSuite() {
	Finalize()
}

func (s *StakeStoreTestSuite) TestSchemaVersion() {
	var sys models.System
	err := GetDB().Where("name = ?", types.SysVarSchemaVersion).First(&sys).Error
	require.NoError(s.T(), err)
	require.Equal(s.T(), "1", sys.Value)
}

func (s *StakeStoreTestSuite) TestStakeRoundtrip() {
	db := GetDB()
	now := time.Now().UTC().Truncate(time.Millisecond)
	st := &staking.Stake{
		StakeID:             "db-stake-1",
		AssetID:             "db-asset-1",
		OwnerAddress:        "db-owner-1",
		Tier:                staking.TierGold,
		StakedAt:            now,
		LastVerifiedAt:      now,
		ConsecutiveDays:     3,
		Status:              staking.StatusActive,
		TotalRewardsEarned:  decimal.RequireFromString("82.5"),
		TotalRewardsClaimed: decimal.RequireFromString("82.5"),
	}
	require.NoError(s.T(), s.dao.CreateStake(db, st))

	got, err := s.dao.GetStake(db, "db-stake-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), st.OwnerAddress, got.OwnerAddress)
	require.Equal(s.T(), staking.TierGold, got.Tier)
	require.True(s.T(), got.TotalRewardsEarned.Equal(decimal.RequireFromString("82.5")))
	require.True(s.T(), got.LastVerifiedAt.Equal(st.LastVerifiedAt))
	require.Nil(s.T(), got.CooldownEndsAt)

	all, err := s.dao.GetOwnerStakes(db, "db-owner-1")
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 1)
}

func (s *StakeStoreTestSuite) TestActiveAssetUniqueIndex() {
	db := GetDB()
	now := time.Now().UTC()
	first := &staking.Stake{
		StakeID:      "db-stake-uniq-1",
		AssetID:      "db-asset-uniq",
		OwnerAddress: "db-owner-uniq",
		Tier:         staking.TierBronze,
		StakedAt:     now, LastVerifiedAt: now,
		Status: staking.StatusActive,
	}
	require.NoError(s.T(), s.dao.CreateStake(db, first))

	second := &staking.Stake{
		StakeID:      "db-stake-uniq-2",
		AssetID:      "db-asset-uniq",
		OwnerAddress: "db-owner-uniq",
		Tier:         staking.TierBronze,
		StakedAt:     now, LastVerifiedAt: now,
		Status: staking.StatusActive,
	}
	require.Error(s.T(), s.dao.CreateStake(db, second))

	// terminal rows do not block a restake
	first.Status = staking.StatusUnstaked
	require.NoError(s.T(), s.dao.SaveStake(db, first))
	require.NoError(s.T(), s.dao.CreateStake(db, second))
}

func (s *StakeStoreTestSuite) TestListExpiredCooldowns() {
	db := GetDB()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	expired := &staking.Stake{
		StakeID:      "db-stake-cd-1",
		AssetID:      "db-asset-cd-1",
		OwnerAddress: "db-owner-cd",
		Tier:         staking.TierBronze,
		StakedAt:     now, LastVerifiedAt: now,
		Status:         staking.StatusPendingUnstake,
		CooldownEndsAt: &past,
	}
	waiting := &staking.Stake{
		StakeID:      "db-stake-cd-2",
		AssetID:      "db-asset-cd-2",
		OwnerAddress: "db-owner-cd",
		Tier:         staking.TierBronze,
		StakedAt:     now, LastVerifiedAt: now,
		Status:         staking.StatusPendingUnstake,
		CooldownEndsAt: &future,
	}
	require.NoError(s.T(), s.dao.CreateStake(db, expired))
	require.NoError(s.T(), s.dao.CreateStake(db, waiting))

	ids, err := s.dao.ListExpiredCooldowns(db, now, 100)
	require.NoError(s.T(), err)
	require.Contains(s.T(), ids, "db-stake-cd-1")
	require.NotContains(s.T(), ids, "db-stake-cd-2")
}

func TestStakeStore(t *testing.T) {
	suite.Run(t, &StakeStoreTestSuite{})
}

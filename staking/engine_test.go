package staking

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/roamstake/staking-engine/common/logging"
	database "github.com/roamstake/staking-engine/database/db"
	model "github.com/roamstake/staking-engine/database/models/staking"
	"github.com/roamstake/staking-engine/types"
)

type EngineTestSuite struct {
	suite.Suite

	engine *Engine
	query  *QueryService
	seq    int
}

func (s *EngineTestSuite) SetupSuite() {
	database.Initialize()
	database.Reset(database.GetDB(), types.Staking, true)

	logger := logging.NewLoggerTag("engine-test")
	s.engine = NewEngine(logger, DefaultTierTable())
	s.query = NewQueryService(logger, DefaultTierTable())
}

func (s *EngineTestSuite) TearDownSuite() {
	database.Finalize()
}

// newStake registers an active stake whose accrual clock starts at lastVerified.
func (s *EngineTestSuite) newStake(owner string, tier model.Tier,
	lastVerified time.Time, days int64) *model.Stake {
	s.seq++
	st := &model.Stake{
		StakeID:             fmt.Sprintf("stake-%04d", s.seq),
		AssetID:             fmt.Sprintf("asset-%04d", s.seq),
		OwnerAddress:        owner,
		Tier:                tier,
		StakedAt:            lastVerified,
		LastVerifiedAt:      lastVerified,
		ConsecutiveDays:     days,
		Status:              model.StatusActive,
		TotalRewardsEarned:  decimal.Zero,
		TotalRewardsClaimed: decimal.Zero,
	}
	require.NoError(s.T(), s.engine.RegisterStake(st))
	return st
}

func (s *EngineTestSuite) reload(stakeID string) *model.Stake {
	st, err := s.engine.dao.GetStake(database.GetDB(), stakeID)
	require.NoError(s.T(), err)
	return st
}

func (s *EngineTestSuite) save(st *model.Stake) {
	require.NoError(s.T(), s.engine.dao.SaveStake(database.GetDB(), st))
}

func (s *EngineTestSuite) TestRegisterValidation() {
	now := time.Now().UTC()
	st := s.newStake("owner-reg", model.TierBronze, now, 0)

	// the same asset cannot be staked twice while the first stake is live
	dup := &model.Stake{
		StakeID:      st.StakeID + "-dup",
		AssetID:      st.AssetID,
		OwnerAddress: "owner-reg",
		Tier:         model.TierBronze,
		Status:       model.StatusActive,
	}
	err := s.engine.RegisterStake(dup)
	require.ErrorIs(s.T(), err, ErrAssetAlreadyStaked)

	// unknown tiers are rejected at write time, not silently defaulted
	bad := &model.Stake{
		StakeID:      st.StakeID + "-bad",
		AssetID:      st.AssetID + "-bad",
		OwnerAddress: "owner-reg",
		Tier:         model.Tier("diamond"),
	}
	require.ErrorIs(s.T(), s.engine.RegisterStake(bad), ErrUnknownTier)

	// once the stake is terminal the asset can be staked again
	st = s.reload(st.StakeID)
	st.Status = model.StatusUnstaked
	s.save(st)
	dup.StakeID = st.StakeID + "-restake"
	require.NoError(s.T(), s.engine.RegisterStake(dup))
}

func (s *EngineTestSuite) TestClaimIdempotent() {
	owner := "owner-claim"
	s.newStake(owner, model.TierGold, time.Now().UTC().Add(-48*time.Hour), 10)

	// 25 * 2 * 1.5 * 1.10 = 82.5 plus the instants this test takes to run
	total, err := s.engine.ClaimAllRewards(owner)
	require.NoError(s.T(), err)
	require.True(s.T(), total.GreaterThanOrEqual(decimal.RequireFromString("82.5")),
		"claimed %s", total)
	require.True(s.T(), total.LessThan(decimal.RequireFromString("82.6")),
		"claimed %s", total)

	// immediately claiming again realizes nothing
	_, err = s.engine.ClaimAllRewards(owner)
	require.ErrorIs(s.T(), err, ErrNoPendingRewards)

	stakes, err := s.engine.dao.GetOwnerStakes(database.GetDB(), owner)
	require.NoError(s.T(), err)
	require.Len(s.T(), stakes, 1)
	require.True(s.T(), stakes[0].TotalRewardsEarned.Equal(total))
	require.True(s.T(), stakes[0].TotalRewardsClaimed.Equal(total))
}

func (s *EngineTestSuite) TestClaimSpansAllAccruingStakes() {
	owner := "owner-multi"
	last := time.Now().UTC().Add(-24 * time.Hour)
	s.newStake(owner, model.TierBronze, last, 0) // ~10
	s.newStake(owner, model.TierSilver, last, 0) // ~18
	pending := s.newStake(owner, model.TierGold, last, 0)

	// a pending_unstake stake keeps accruing until claimed or released
	_, err := s.engine.InitiateUnstake(pending.StakeID, owner)
	require.NoError(s.T(), err)

	total, err := s.engine.ClaimAllRewards(owner)
	require.NoError(s.T(), err)
	require.True(s.T(), total.GreaterThanOrEqual(decimal.RequireFromString("65.5")),
		"claimed %s", total)
	require.True(s.T(), total.LessThan(decimal.RequireFromString("65.7")),
		"claimed %s", total)
}

func (s *EngineTestSuite) TestConcurrentClaimsDoNotDoublePay() {
	owner := "owner-race"
	last := time.Now().UTC().Add(-48 * time.Hour)
	st := s.newStake(owner, model.TierGold, last, 10)

	const claimers = 8
	results := make([]decimal.Decimal, claimers)
	errs := make([]error, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.engine.ClaimAllRewards(owner)
		}(i)
	}
	wg.Wait()

	// exactly one claimer wins the accrued 48 hours; the rest either find
	// nothing pending or realize only the instants since the winner committed
	big := decimal.RequireFromString("82")
	wins := 0
	paidOut := decimal.Zero
	for i := 0; i < claimers; i++ {
		if errs[i] != nil {
			require.ErrorIs(s.T(), errs[i], ErrNoPendingRewards)
			continue
		}
		paidOut = paidOut.Add(results[i])
		if results[i].GreaterThanOrEqual(big) {
			wins++
		} else {
			require.True(s.T(), results[i].LessThan(decimal.RequireFromString("0.1")),
				"unexpected mid-size claim %s", results[i])
		}
	}
	require.Equal(s.T(), 1, wins)

	// the store carries exactly what was handed out, not N times it
	got := s.reload(st.StakeID)
	require.True(s.T(), got.TotalRewardsClaimed.Equal(paidOut),
		"store %s vs paid %s", got.TotalRewardsClaimed, paidOut)
	require.True(s.T(), got.TotalRewardsClaimed.LessThan(decimal.RequireFromString("83")))
	require.True(s.T(), got.TotalRewardsEarned.Equal(got.TotalRewardsClaimed))
}

func (s *EngineTestSuite) TestClaimWithNothingStaked() {
	_, err := s.engine.ClaimAllRewards("owner-nobody")
	require.ErrorIs(s.T(), err, ErrNoPendingRewards)
}

func (s *EngineTestSuite) TestInitiateUnstake() {
	owner := "owner-unstake"
	st := s.newStake(owner, model.TierSilver, time.Now().UTC(), 0)

	// a stranger cannot unstake and leaves no trace on the record
	_, err := s.engine.InitiateUnstake(st.StakeID, "mallory")
	require.ErrorIs(s.T(), err, ErrForbidden)
	got := s.reload(st.StakeID)
	require.Equal(s.T(), model.StatusActive, got.Status)
	require.Nil(s.T(), got.CooldownEndsAt)

	endsAt, err := s.engine.InitiateUnstake(st.StakeID, owner)
	require.NoError(s.T(), err)
	require.WithinDuration(s.T(), time.Now().Add(DefaultCooldown), endsAt, 10*time.Second)

	got = s.reload(st.StakeID)
	require.Equal(s.T(), model.StatusPendingUnstake, got.Status)
	require.NotNil(s.T(), got.CooldownEndsAt)
	require.WithinDuration(s.T(), endsAt, *got.CooldownEndsAt, time.Second)

	// already pending: the state guard rejects a second initiation
	_, err = s.engine.InitiateUnstake(st.StakeID, owner)
	require.ErrorIs(s.T(), err, ErrInvalidState)
}

func (s *EngineTestSuite) TestInitiateUnstakeNotFound() {
	_, err := s.engine.InitiateUnstake("no-such-stake", "owner")
	require.ErrorIs(s.T(), err, ErrStakeNotFound)
}

func (s *EngineTestSuite) TestFinalizeUnstake() {
	owner := "owner-finalize"
	st := s.newStake(owner, model.TierBronze, time.Now().UTC(), 0)

	// finalize on an active stake is a state error
	_, err := s.engine.FinalizeUnstake(st.StakeID)
	require.ErrorIs(s.T(), err, ErrInvalidState)

	_, err = s.engine.InitiateUnstake(st.StakeID, owner)
	require.NoError(s.T(), err)

	// cooldown still running: a no-op, not an error
	before := time.Now().UTC().Add(time.Second)
	got := s.reload(st.StakeID)
	got.CooldownEndsAt = &before
	s.save(got)
	done, err := s.engine.FinalizeUnstake(st.StakeID)
	require.NoError(s.T(), err)
	require.False(s.T(), done)
	require.Equal(s.T(), model.StatusPendingUnstake, s.reload(st.StakeID).Status)

	// cooldown passed
	after := time.Now().UTC().Add(-time.Second)
	got = s.reload(st.StakeID)
	got.CooldownEndsAt = &after
	s.save(got)
	done, err = s.engine.FinalizeUnstake(st.StakeID)
	require.NoError(s.T(), err)
	require.True(s.T(), done)
	got = s.reload(st.StakeID)
	require.Equal(s.T(), model.StatusUnstaked, got.Status)
	require.Nil(s.T(), got.CooldownEndsAt)

	// finalizing an already-unstaked record stays a no-op
	done, err = s.engine.FinalizeUnstake(st.StakeID)
	require.NoError(s.T(), err)
	require.False(s.T(), done)
}

func (s *EngineTestSuite) TestCancelUnstake() {
	owner := "owner-cancel"
	st := s.newStake(owner, model.TierBronze, time.Now().UTC(), 0)

	require.ErrorIs(s.T(), s.engine.CancelUnstake(st.StakeID, owner), ErrInvalidState)

	_, err := s.engine.InitiateUnstake(st.StakeID, owner)
	require.NoError(s.T(), err)
	require.ErrorIs(s.T(), s.engine.CancelUnstake(st.StakeID, "mallory"), ErrForbidden)
	require.NoError(s.T(), s.engine.CancelUnstake(st.StakeID, owner))

	got := s.reload(st.StakeID)
	require.Equal(s.T(), model.StatusCancelled, got.Status)
	require.Nil(s.T(), got.CooldownEndsAt)

	// terminal: a sweep can never resurrect it
	done, err := s.engine.FinalizeUnstake(st.StakeID)
	require.NoError(s.T(), err)
	require.False(s.T(), done)
}

func (s *EngineTestSuite) TestVerificationEvents() {
	owner := "owner-verify"
	st := s.newStake(owner, model.TierBronze, time.Now().UTC(), 3)

	require.NoError(s.T(), s.engine.ApplyVerificationResult(st.StakeID, true))
	got := s.reload(st.StakeID)
	require.EqualValues(s.T(), 4, got.ConsecutiveDays)
	require.EqualValues(s.T(), 0, got.VerificationFailures)

	// a failure breaks the streak
	require.NoError(s.T(), s.engine.ApplyVerificationResult(st.StakeID, false))
	got = s.reload(st.StakeID)
	require.EqualValues(s.T(), 0, got.ConsecutiveDays)
	require.EqualValues(s.T(), 1, got.VerificationFailures)

	got.Status = model.StatusUnstaked
	s.save(got)
	err := s.engine.ApplyVerificationResult(st.StakeID, true)
	require.ErrorIs(s.T(), err, ErrInvalidState)
}

func (s *EngineTestSuite) TestSweepExpiredCooldowns() {
	owner := "owner-sweep"
	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	expired1 := s.newStake(owner, model.TierBronze, time.Now().UTC(), 0)
	expired2 := s.newStake(owner, model.TierBronze, time.Now().UTC(), 0)
	waiting := s.newStake(owner, model.TierBronze, time.Now().UTC(), 0)
	for _, st := range []*model.Stake{expired1, expired2, waiting} {
		_, err := s.engine.InitiateUnstake(st.StakeID, owner)
		require.NoError(s.T(), err)
	}
	for _, st := range []*model.Stake{expired1, expired2} {
		got := s.reload(st.StakeID)
		got.CooldownEndsAt = &past
		s.save(got)
	}
	got := s.reload(waiting.StakeID)
	got.CooldownEndsAt = &future
	s.save(got)

	n, err := s.engine.SweepExpiredCooldowns()
	require.NoError(s.T(), err)
	require.GreaterOrEqual(s.T(), n, 2)

	require.Equal(s.T(), model.StatusUnstaked, s.reload(expired1.StakeID).Status)
	require.Equal(s.T(), model.StatusUnstaked, s.reload(expired2.StakeID).Status)
	require.Equal(s.T(), model.StatusPendingUnstake, s.reload(waiting.StakeID).Status)
}

func (s *EngineTestSuite) TestListStakesAndStats() {
	owner := "owner-query"
	last := time.Now().UTC().Add(-24 * time.Hour)
	s.newStake(owner, model.TierBronze, last, 0) // pending ~10
	s.newStake(owner, model.TierSilver, last, 0) // pending ~18
	retired := s.newStake(owner, model.TierGold, last, 0)

	got := s.reload(retired.StakeID)
	got.Status = model.StatusUnstaked
	got.TotalRewardsEarned = decimal.RequireFromString("12.5")
	got.TotalRewardsClaimed = decimal.RequireFromString("12.5")
	s.save(got)

	list, err := s.query.ListStakes(owner)
	require.NoError(s.T(), err)
	require.Len(s.T(), list.Stakes, 3)
	require.EqualValues(s.T(), 2, list.TotalActive)
	require.True(s.T(), list.TotalPendingRewards.GreaterThanOrEqual(decimal.NewFromInt(28)),
		"pending %s", list.TotalPendingRewards)
	require.True(s.T(), list.TotalPendingRewards.LessThan(decimal.NewFromInt(29)))
	for _, v := range list.Stakes {
		if v.Status.Terminal() {
			require.True(s.T(), v.PendingRewards.IsZero())
		} else {
			require.True(s.T(), v.PendingRewards.IsPositive())
		}
	}

	stats, err := s.query.StatsForOwner(owner)
	require.NoError(s.T(), err)
	require.EqualValues(s.T(), 3, stats.TotalStakes)
	require.EqualValues(s.T(), 2, stats.TotalActive)
	require.EqualValues(s.T(), 1, stats.StakedByTier[model.TierBronze])
	require.EqualValues(s.T(), 1, stats.StakedByTier[model.TierSilver])
	require.NotContains(s.T(), stats.StakedByTier, model.TierGold)
	require.True(s.T(), stats.LifetimeEarned.Equal(decimal.RequireFromString("12.5")))
	require.True(s.T(), stats.LifetimeClaimed.Equal(decimal.RequireFromString("12.5")))
	// stats recomputes pending a few instants after the list did
	drift := stats.PendingRewards.Sub(list.TotalPendingRewards).Abs()
	require.True(s.T(), drift.LessThan(decimal.RequireFromString("0.01")),
		"stats %s vs list %s", stats.PendingRewards, list.TotalPendingRewards)
}

func TestEngine(t *testing.T) {
	suite.Run(t, &EngineTestSuite{})
}

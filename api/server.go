package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"

	"github.com/roamstake/staking-engine/common/logging"
	model "github.com/roamstake/staking-engine/database/models/staking"
	"github.com/roamstake/staking-engine/staking"
)

const (
	statsCacheSize = 4096
	statsCacheTTL  = 30 * time.Second
)

// StakingServer is the thin JSON surface over the engine and query service.
type StakingServer struct {
	ctx    context.Context
	logger logging.Logger
	engine *staking.Engine
	query  *staking.QueryService
	server *http.Server

	// statsCache trades up to statsCacheTTL of staleness for not recomputing
	// aggregate views on every poll.
	statsCache *lru.Cache
}

type cachedStats struct {
	stats    *staking.OwnerStats
	cachedAt time.Time
}

type stakeResp struct {
	StakeID              string     `json:"stake_id"`
	AssetID              string     `json:"asset_id"`
	OwnerAddress         string     `json:"owner_address"`
	Tier                 model.Tier `json:"tier"`
	Status               string     `json:"status"`
	StakedAt             string     `json:"staked_at"`
	LastVerifiedAt       string     `json:"last_verified_at"`
	ConsecutiveDays      int64      `json:"consecutive_days"`
	VerificationFailures int64      `json:"verification_failures"`
	CooldownEndsAt       string     `json:"cooldown_ends_at,omitempty"`
	PendingRewards       string     `json:"pending_rewards"`
	TotalRewardsEarned   string     `json:"total_rewards_earned"`
	TotalRewardsClaimed  string     `json:"total_rewards_claimed"`
}

type listStakesResp struct {
	Stakes              []stakeResp `json:"stakes"`
	TotalActive         int64       `json:"total_active"`
	TotalPendingRewards string      `json:"total_pending_rewards"`
}

type statsResp struct {
	StakedByTier    map[model.Tier]int64 `json:"staked_by_tier"`
	TotalStakes     int64                `json:"total_stakes"`
	TotalActive     int64                `json:"total_active"`
	LifetimeEarned  string               `json:"lifetime_earned"`
	LifetimeClaimed string               `json:"lifetime_claimed"`
	PendingRewards  string               `json:"pending_rewards"`
}

type claimReq struct {
	OwnerAddress string `json:"owner_address"`
}

type claimResp struct {
	Claimed     bool   `json:"claimed"`
	TotalAmount string `json:"total_amount"`
}

type unstakeReq struct {
	StakeID      string `json:"stake_id"`
	OwnerAddress string `json:"owner_address"`
}

type unstakeResp struct {
	CooldownEndsAt string `json:"cooldown_ends_at"`
}

type errorResp struct {
	Error string `json:"error"`
}

func NewStakingServer(ctx context.Context, logger logging.Logger, engine *staking.Engine,
	query *staking.QueryService, addr string) *StakingServer {
	cache, _ := lru.New(statsCacheSize)
	s := &StakingServer{
		ctx:        ctx,
		logger:     logger,
		engine:     engine,
		query:      query,
		statsCache: cache,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/stakes", s.OnListStakes)
	mux.HandleFunc("/stakes/stats", s.OnStatsForOwner)
	mux.HandleFunc("/stakes/claim", s.OnClaimAllRewards)
	mux.HandleFunc("/stakes/unstake", s.OnInitiateUnstake)
	s.server = &http.Server{
		Addr:         addr,
		WriteTimeout: time.Second * 25,
		Handler:      mux,
	}
	return s
}

func (s *StakingServer) Shutdown() error {
	return s.server.Shutdown(s.ctx)
}

func (s *StakingServer) Run() error {
	s.logger.Info("Starting staking api httpserver on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		s.logger.Info("Server closed under request")
		return nil
	}
	return err
}

func (s *StakingServer) OnListStakes(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing owner parameter"))
		return
	}
	view, err := s.query.ListStakes(owner)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := listStakesResp{
		Stakes:              make([]stakeResp, 0, len(view.Stakes)),
		TotalActive:         view.TotalActive,
		TotalPendingRewards: fixed(view.TotalPendingRewards),
	}
	for _, v := range view.Stakes {
		resp.Stakes = append(resp.Stakes, toStakeResp(v))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *StakingServer) OnStatsForOwner(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing owner parameter"))
		return
	}

	var stats *staking.OwnerStats
	if entry, ok := s.statsCache.Get(owner); ok {
		cached := entry.(*cachedStats)
		if time.Since(cached.cachedAt) < statsCacheTTL {
			stats = cached.stats
		}
	}
	if stats == nil {
		var err error
		stats, err = s.query.StatsForOwner(owner)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.statsCache.Add(owner, &cachedStats{stats: stats, cachedAt: time.Now()})
	}

	s.writeJSON(w, http.StatusOK, statsResp{
		StakedByTier:    stats.StakedByTier,
		TotalStakes:     stats.TotalStakes,
		TotalActive:     stats.TotalActive,
		LifetimeEarned:  fixed(stats.LifetimeEarned),
		LifetimeClaimed: fixed(stats.LifetimeClaimed),
		PendingRewards:  fixed(stats.PendingRewards),
	})
}

func (s *StakingServer) OnClaimAllRewards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req claimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerAddress == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid claim request"))
		return
	}
	total, err := s.engine.ClaimAllRewards(req.OwnerAddress)
	if errors.Is(err, staking.ErrNoPendingRewards) {
		// Business no-op, not a fault.
		s.writeJSON(w, http.StatusOK, claimResp{Claimed: false, TotalAmount: fixed(decimal.Zero)})
		return
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.statsCache.Remove(req.OwnerAddress)
	s.writeJSON(w, http.StatusOK, claimResp{Claimed: true, TotalAmount: fixed(total)})
}

func (s *StakingServer) OnInitiateUnstake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req unstakeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.StakeID == "" || req.OwnerAddress == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid unstake request"))
		return
	}
	endsAt, err := s.engine.InitiateUnstake(req.StakeID, req.OwnerAddress)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, unstakeResp{CooldownEndsAt: endsAt.Format(time.RFC3339)})
}

func (s *StakingServer) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, staking.ErrStakeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, staking.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, staking.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, staking.ErrOwnerLockTimeout):
		status = http.StatusServiceUnavailable
	case errors.Is(err, staking.ErrStoreUnavailable):
		status = http.StatusBadGateway
	}
	s.writeError(w, status, err)
}

func (s *StakingServer) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed: %s", err)
	}
	s.writeJSON(w, status, errorResp{Error: err.Error()})
}

func (s *StakingServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("fail to encode response: %s", err)
	}
}

func toStakeResp(v *staking.StakeView) stakeResp {
	resp := stakeResp{
		StakeID:              v.StakeID,
		AssetID:              v.AssetID,
		OwnerAddress:         v.OwnerAddress,
		Tier:                 v.Tier,
		Status:               string(v.Status),
		StakedAt:             v.StakedAt.Format(time.RFC3339),
		LastVerifiedAt:       v.LastVerifiedAt.Format(time.RFC3339),
		ConsecutiveDays:      v.ConsecutiveDays,
		VerificationFailures: v.VerificationFailures,
		PendingRewards:       fixed(v.PendingRewards),
		TotalRewardsEarned:   fixed(v.TotalRewardsEarned),
		TotalRewardsClaimed:  fixed(v.TotalRewardsClaimed),
	}
	if v.CooldownEndsAt != nil {
		resp.CooldownEndsAt = v.CooldownEndsAt.Format(time.RFC3339)
	}
	return resp
}

// fixed renders an amount with exactly the boundary precision.
func fixed(d decimal.Decimal) string {
	return d.StringFixed(staking.RewardScale)
}

package sweeper

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"github.com/roamstake/staking-engine/common/logging"
)

const retryDelay = 5 * time.Second

// CooldownFinalizer is the slice of the engine the sweeper drives.
type CooldownFinalizer interface {
	SweepExpiredCooldowns() (int, error)
}

// Sweeper periodically finalizes stakes whose unstake cooldown has expired.
// Sweeps are idempotent, so overlapping deployments running their own sweeper
// are harmless.
type Sweeper struct {
	ctx      context.Context
	logger   logging.Logger
	engine   CooldownFinalizer
	interval time.Duration

	paused atomic.Bool
}

func NewSweeper(ctx context.Context, logger logging.Logger, engine CooldownFinalizer,
	interval time.Duration) *Sweeper {
	return &Sweeper{
		ctx:      ctx,
		logger:   logger,
		engine:   engine,
		interval: interval,
	}
}

// Pause stops future sweeps without tearing down the loop.
func (s *Sweeper) Pause(p bool) {
	s.paused.Store(p)
}

// Paused reports whether sweeps are currently held.
func (s *Sweeper) Paused() bool {
	return s.paused.Load()
}

// Run sweeps once immediately and then on every tick until the context is
// cancelled. A failed sweep is retried after a short delay.
func (s *Sweeper) Run() error {
	s.logger.Info("cooldown sweeper started, interval=%s", s.interval)
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("cooldown sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	if s.paused.Load() {
		return
	}
	for {
		n, err := s.engine.SweepExpiredCooldowns()
		if err == nil {
			if n > 0 {
				s.logger.Info("sweep finalized %d stakes", n)
			}
			return
		}
		s.logger.Warn("sweep failed, retry in %s: %s", retryDelay, err)
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"golang.org/x/sync/errgroup"

	"github.com/roamstake/staking-engine/api"
	"github.com/roamstake/staking-engine/common/errors"
	"github.com/roamstake/staking-engine/common/logging"
	database "github.com/roamstake/staking-engine/database/db"
	"github.com/roamstake/staking-engine/staking"
	"github.com/roamstake/staking-engine/sweeper"
	"github.com/roamstake/staking-engine/types"
)

type args struct {
	Listen         string        `arg:"--listen,env:STAKE_LISTEN_ADDR" default:":9487" help:"http listen address"`
	InternalListen string        `arg:"--internal-listen,env:STAKE_INTERNAL_LISTEN_ADDR" default:":9453" help:"internal http listen address"`
	SweepInterval  time.Duration `arg:"--sweep-interval,env:STAKE_SWEEP_INTERVAL" default:"1m" help:"cooldown sweep interval"`
	ResetDB        bool          `arg:"--reset-db" help:"drop and recreate the schema, then exit"`
}

func main() {
	var a args
	arg.MustParse(&a)

	name := "staking-engine"
	logging.Initialize(name)
	defer logging.Finalize()
	logger := logging.NewLoggerTag(name)
	errors.Initialize(logger)
	defer errors.Catch()

	database.Initialize()
	defer database.Finalize()

	if a.ResetDB {
		database.Reset(database.GetDB(), types.Staking, true)
		return
	}

	backgroundCtx, stop := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(backgroundCtx)
	defer stop()

	engine := staking.NewEngine(logging.NewLoggerTag("engine"), staking.DefaultTierTable())
	query := staking.NewQueryService(logging.NewLoggerTag("query"), staking.DefaultTierTable())
	swp := sweeper.NewSweeper(ctx, logging.NewLoggerTag("sweeper"), engine, a.SweepInterval)
	server := api.NewStakingServer(ctx, logging.NewLoggerTag("api"), engine, query, a.Listen)
	internal := api.NewInternalServer(ctx, logging.NewLoggerTag("internal"), swp, a.InternalListen)

	group.Go(func() error {
		defer errors.CatchWithLogger(logger)
		return swp.Run()
	})
	group.Go(func() error {
		defer errors.CatchWithLogger(logger)
		return server.Run()
	})
	group.Go(func() error {
		defer errors.CatchWithLogger(logger)
		return internal.Run()
	})

	go WaitExitSignalWithServer(stop, logger, server, internal)

	if err := group.Wait(); err != nil {
		logger.Critical("service stopped: %s", err)
	}
}

func WaitExitSignalWithServer(ctxStop context.CancelFunc, logger logging.Logger,
	server *api.StakingServer, internal *api.InternalServer) {
	var exitSignal = make(chan os.Signal, 1)
	signal.Notify(exitSignal, syscall.SIGTERM)
	signal.Notify(exitSignal, syscall.SIGINT)

	sig := <-exitSignal
	logger.Info("caught sig: %+v, Stopping...", sig)
	if err := server.Shutdown(); err != nil {
		logger.Error("Server shutdown failed: %+v", err)
	}
	if err := internal.Shutdown(); err != nil {
		logger.Error("Internal server shutdown failed: %+v", err)
	}
	ctxStop()
}

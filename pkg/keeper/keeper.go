// Package keeper periodically ends auctions whose end time has passed, since
// the engine never expires them on its own.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"bazaar/pkg/market"
)

const batchSize = 100

// Engine is the part of the marketplace the keeper drives.
type Engine interface {
	EndableAuctions(ctx context.Context, after uint64, limit int) ([]market.Auction, error)
	EndAuction(ctx context.Context, caller common.Address, auctionID uint64) (market.Auction, *market.Settlement, error)
}

type Keeper struct {
	engine  Engine
	caller  common.Address
	logger  *zap.Logger
	timeout time.Duration
	cron    *cron.Cron
}

func New(engine Engine, caller common.Address, logger *zap.Logger) *Keeper {
	return &Keeper{
		engine:  engine,
		caller:  caller,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// Result counts what one sweep did.
type Result struct {
	Ended   int
	Settled int
	Failed  int
}

// Sweep tries to end every endable auction once, paging by id so auctions
// that keep failing do not hide the ones behind them. Failed auctions stay
// active and are retried on the next sweep.
func (k *Keeper) Sweep(ctx context.Context) (Result, error) {
	var (
		res   Result
		after uint64
	)

	for {
		auctions, err := k.engine.EndableAuctions(ctx, after, batchSize)
		if err != nil {
			return res, fmt.Errorf("list endable auctions after %d: %w", after, err)
		}

		for _, a := range auctions {
			after = a.ID
			k.end(ctx, a.ID, &res)
		}

		if len(auctions) < batchSize {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
}

func (k *Keeper) end(ctx context.Context, id uint64, res *Result) {
	_, settlement, err := k.engine.EndAuction(ctx, k.caller, id)
	if err != nil {
		res.Failed++
		level := zap.WarnLevel
		if errors.Is(err, market.ErrPaused) || errors.Is(err, market.ErrInactiveAuction) {
			level = zap.DebugLevel
		}
		k.logger.Log(level, "keeper could not end auction",
			zap.Uint64("auction_id", id),
			zap.String("code", market.CodeOf(err)),
			zap.Error(err),
		)
		return
	}
	res.Ended++
	if settlement != nil {
		res.Settled++
	}
}

// Start schedules Sweep with a cron spec such as "@every 1m".
func (k *Keeper) Start(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
		defer cancel()

		res, err := k.Sweep(ctx)
		if err != nil {
			k.logger.Error("keeper sweep failed", zap.Error(err))
			return
		}
		if res.Ended > 0 || res.Failed > 0 {
			k.logger.Info("keeper sweep finished",
				zap.Int("ended", res.Ended),
				zap.Int("settled", res.Settled),
				zap.Int("failed", res.Failed),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule keeper %q: %w", spec, err)
	}

	k.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (k *Keeper) Stop() {
	if k.cron == nil {
		return
	}
	<-k.cron.Stop().Done()
}

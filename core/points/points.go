// Package points implements the points engine: the per-block USD-valued
// stake integration that turns accrued time and effective stake into
// network/operator/vault/staker points, running totals kept at scale
// 10^48.
package points

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/symbioticfi/points-indexer/core/resolver"
	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// SnapshotInterval is how often the live points tables are copied into
// their historical twins, in blocks.
const SnapshotInterval = 200

var (
	usdScale   = u256.MustFromDecimal("1000000000000000000000000") // 10^24
	secPerHour = u256.FromUint64(3600)
	bpsDenom   = u256.FromUint64(10000)
)

// Reader is the points engine's read dependency, composing the resolver's
// state source with the price/config/vault lookups the engine itself needs.
type Reader interface {
	resolver.StateSource
	NetworkPointsConfigsDue(ctx context.Context, upTo uint64) ([]store.NetworkPointsConfig, error)
	AllVaults(ctx context.Context) ([]store.GlobalVars, error)
	CollateralOf(ctx context.Context, addr address.Address) (store.Collateral, error)
	GetPrice(ctx context.Context, collateral address.Address, block uint64) (*u256.Int, error)
	BlockAt(ctx context.Context, number uint64) (store.Block, error)
	ClosestSnapshotBlock(ctx context.Context, asOf uint64) (uint64, error)
}

// Writer is the points engine's write dependency, satisfied by *store.Batch
// for the running totals and *store.Store-level access is not needed since
// everything here lands in the same block's transaction.
type Writer interface {
	AddNetworkOperatorVaultPoints(ctx context.Context, r store.PointsRow, delta *u256.Int) error
	AddNetworkVaultUserPoints(ctx context.Context, r store.PointsRow, delta *u256.Int) error
	PutNetworkPointsConfig(ctx context.Context, c store.NetworkPointsConfig) error
	AdvanceTimepoint(ctx context.Context, name string, block uint64) error
	SnapshotPoints(ctx context.Context, block uint64) error
}

// Engine runs the per-block points integration against Reader/Writer.
type Engine struct {
	r   Reader
	w   Writer
	log *logrus.Entry
}

func New(r Reader, w Writer, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{r: r, w: w, log: log}
}

// ProcessBlock integrates rewards over the interval ending at block for
// every subnetwork whose block_number_processed is behind, then applies
// the snapshot policy and advances the points cursor. Stake and prices are
// read as they stood entering the block, i.e. at block-1.
func (e *Engine) ProcessBlock(ctx context.Context, block uint64) error {
	if block == 0 {
		return e.w.AdvanceTimepoint(ctx, store.CursorPoints, 0)
	}
	prevBlock := block - 1

	curBlk, err := e.r.BlockAt(ctx, block)
	if err != nil {
		return fmt.Errorf("points: block %d: %w", block, err)
	}
	var deltaT uint64
	prevBlk, err := e.r.BlockAt(ctx, prevBlock)
	switch {
	case err == nil:
		deltaT = curBlk.Timestamp - prevBlk.Timestamp
	case errors.Is(err, store.ErrNotFound):
		// Cold start: the block before the first processed one was never
		// ingested, so the integration interval is empty.
	default:
		return fmt.Errorf("points: block %d: %w", prevBlock, err)
	}

	configs, err := e.r.NetworkPointsConfigsDue(ctx, block)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return e.finishBlock(ctx, block)
	}

	vaults, err := e.r.AllVaults(ctx)
	if err != nil {
		return err
	}
	collaterals := map[address.Address]store.Collateral{}
	prices := map[address.Address]*u256.Int{}
	for _, gv := range vaults {
		if _, ok := collaterals[gv.Collateral]; ok {
			continue
		}
		c, err := e.r.CollateralOf(ctx, gv.Collateral)
		if err != nil {
			return fmt.Errorf("points: collateral %s: %w", gv.Collateral, err)
		}
		collaterals[gv.Collateral] = c
		p, err := e.r.GetPrice(ctx, gv.Collateral, prevBlock)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				e.log.WithFields(logrus.Fields{"collateral": gv.Collateral, "block": prevBlock}).
					Warn("points: no price known yet for collateral, treating as zero stake this block")
				continue
			}
			return fmt.Errorf("points: price %s@%d: %w", gv.Collateral, prevBlock, err)
		}
		prices[gv.Collateral] = p
	}

	for _, cfg := range configs {
		if err := e.processSubnetwork(ctx, cfg, vaults, collaterals, prices, deltaT, block); err != nil {
			return err
		}
	}
	return e.finishBlock(ctx, block)
}

func (e *Engine) finishBlock(ctx context.Context, block uint64) error {
	if block%SnapshotInterval == 0 {
		latest, err := e.r.ClosestSnapshotBlock(ctx, block)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil && latest >= block {
			// Already snapshotted (re-processing an already-committed block).
		} else if err := e.w.SnapshotPoints(ctx, block); err != nil {
			return err
		}
	}
	return e.w.AdvanceTimepoint(ctx, store.CursorPoints, block)
}

// usdValue converts a raw stake amount to USD at scale 10^24: amount *
// price / 10^decimals.
func usdValue(amount, price *u256.Int, decimals uint8) (*u256.Int, error) {
	if u256.IsZero(amount) || u256.IsZero(price) {
		return u256.Zero(), nil
	}
	scale := new(u256.Int).Exp(u256.FromUint64(10), u256.FromUint64(uint64(decimals)))
	return u256.MulDivFloor(amount, price, scale)
}

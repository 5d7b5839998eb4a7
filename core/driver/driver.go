// Package driver implements the forward-only cursor that walks block
// ranges and orchestrates the points engine then the state reducer for
// each block inside one committed transaction.
package driver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/symbioticfi/points-indexer/core/points"
	"github.com/symbioticfi/points-indexer/core/reducer"
	"github.com/symbioticfi/points-indexer/core/store"
)

// Store is the driver's dependency on core/store: cursor reads, the
// per-block log range, and the ability to open the one-commit-per-block
// Batch that the points engine and reducer both write through.
type Store interface {
	points.Reader
	reducer.Reader
	ProcessedTimepoint(ctx context.Context, name string) (uint64, error)
	LogsInBlockRange(ctx context.Context, from, to uint64) ([]store.Log, error)
	BlockAt(ctx context.Context, number uint64) (store.Block, error)
	Begin(ctx context.Context) (*store.Batch, error)
}

// Config tunes the driver's poll cadence and retry budget: up to
// RetryAttempts with exponential backoff and jitter, only for
// store.TransientError.
type Config struct {
	// StartBlock seeds the first block processed when the points cursor has
	// never advanced: the vault factory's creation block, a chain-specific
	// constant the ingester config supplies.
	StartBlock       uint64
	PollInterval     time.Duration
	RetryAttempts    int
	RetryBaseBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 12 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 5
	}
	if c.RetryBaseBackoff <= 0 {
		c.RetryBaseBackoff = 500 * time.Millisecond
	}
	return c
}

// Driver loops blocks from (points cursor)+1 to min(events cursor, prices
// cursor), running the points engine then the reducer per block in one
// transaction.
type Driver struct {
	store Store
	cfg   Config
	log   *logrus.Entry
}

func New(s Store, cfg Config, log *logrus.Entry) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Driver{store: s, cfg: cfg.withDefaults(), log: log}
}

// Run loops until ctx is cancelled or a fatal error surfaces. Each
// iteration re-reads the cursors so newly-ingested blocks are picked up
// without restarting the process.
func (d *Driver) Run(ctx context.Context) error {
	for {
		advanced, err := d.stepAll(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if advanced {
			continue // more blocks may already be available; don't sleep.
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

// stepAll processes every block currently available, returning whether at
// least one block was processed.
func (d *Driver) stepAll(ctx context.Context) (bool, error) {
	start, end, err := d.window(ctx)
	if err != nil {
		return false, err
	}
	if start > end {
		return false, nil
	}
	for b := start; b <= end; b++ {
		if err := d.processBlockWithRetry(ctx, b); err != nil {
			return b > start, err
		}
	}
	return true, nil
}

// window computes the processable block range: start is the points
// cursor's successor (or StartBlock cold), end is
// min(events cursor, prices cursor).
func (d *Driver) window(ctx context.Context) (start, end uint64, err error) {
	pointsCursor, err := d.store.ProcessedTimepoint(ctx, store.CursorPoints)
	if err != nil {
		return 0, 0, fmt.Errorf("driver: points cursor: %w", err)
	}
	if pointsCursor == 0 && d.cfg.StartBlock > 0 {
		start = d.cfg.StartBlock
	} else {
		start = pointsCursor + 1
	}

	eventsCursor, err := d.store.ProcessedTimepoint(ctx, store.CursorEvents)
	if err != nil {
		return 0, 0, fmt.Errorf("driver: events cursor: %w", err)
	}
	pricesCursor, err := d.store.ProcessedTimepoint(ctx, store.CursorPrices)
	if err != nil {
		return 0, 0, fmt.Errorf("driver: prices cursor: %w", err)
	}
	end = eventsCursor
	if pricesCursor < end {
		end = pricesCursor
	}
	return start, end, nil
}

// processBlockWithRetry retries transient store/transport failures with
// exponential backoff and jitter, bounded by cfg.RetryAttempts. A fatal
// reducer error or constraint violation is never retried.
func (d *Driver) processBlockWithRetry(ctx context.Context, block uint64) error {
	var lastErr error
	for attempt := 0; attempt < d.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := d.cfg.RetryBaseBackoff * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff/2 + jitter/2):
			}
		}

		// errgroup runs the single commit-then-advance step under a
		// context derived from ctx, so the store calls see cancellation
		// if the driver is asked to stop. The backoff sleep above selects
		// on ctx directly.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return d.processBlock(gctx, block) })
		err := g.Wait()
		if err == nil {
			return nil
		}

		var transient *store.TransientError
		if !errors.As(err, &transient) {
			return err // fatal: reducer/ABI skew or a constraint violation.
		}
		lastErr = err
		d.log.WithFields(logrus.Fields{"block": block, "attempt": attempt + 1, "err": err}).
			Warn("driver: transient error, retrying")
	}
	return fmt.Errorf("driver: block %d: exhausted %d retries: %w", block, d.cfg.RetryAttempts, lastErr)
}

// processBlock runs one block's points-then-reducer pass inside a single
// transaction, so a crashed block is either fully present or absent on
// restart.
func (d *Driver) processBlock(ctx context.Context, block uint64) error {
	batch, err := d.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := d.applyBlock(ctx, batch, block); err != nil {
		_ = batch.Rollback(ctx)
		return err
	}
	return batch.Commit(ctx)
}

func (d *Driver) applyBlock(ctx context.Context, batch *store.Batch, block uint64) error {
	pe := points.New(d.store, batch, d.log)
	if err := pe.ProcessBlock(ctx, block); err != nil {
		return fmt.Errorf("driver: points block %d: %w", block, err)
	}

	blk, err := d.store.BlockAt(ctx, block)
	if err != nil {
		return fmt.Errorf("driver: block %d: %w", block, err)
	}
	logs, err := d.store.LogsInBlockRange(ctx, block, block)
	if err != nil {
		return fmt.Errorf("driver: logs for block %d: %w", block, err)
	}
	red := reducer.New(d.store, batch)
	if err := red.ApplyBlock(ctx, block, blk.Timestamp, logs); err != nil {
		return fmt.Errorf("driver: reduce block %d: %w", block, err)
	}
	return nil
}

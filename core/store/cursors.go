package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ProcessedTimepoint reads the named cursor's current block number,
// defaulting to 0 if it has never advanced.
func (s *Store) ProcessedTimepoint(ctx context.Context, name string) (uint64, error) {
	var block uint64
	row := s.QueryRow(ctx, `SELECT block FROM processed_timepoints WHERE name = $1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, classify("processed_timepoint", err)
	}
	return block, nil
}

// AdvanceTimepoint sets the named cursor to block. Callers never move a
// cursor backward; the reducer and points engine only ever call this with
// monotonically increasing values within one driver run.
func (b *Batch) AdvanceTimepoint(ctx context.Context, name string, block uint64) error {
	return b.Exec(ctx, `
		INSERT INTO processed_timepoints (name, block) VALUES ($1,$2)
		ON CONFLICT (name) DO UPDATE SET block = EXCLUDED.block
		WHERE processed_timepoints.block < EXCLUDED.block`,
		name, block)
}

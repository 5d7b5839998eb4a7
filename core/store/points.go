package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// PutNetworkPointsConfig upserts a subnetwork's accrual configuration.
func (b *Batch) PutNetworkPointsConfig(ctx context.Context, c NetworkPointsConfig) error {
	return b.Exec(ctx, `
		INSERT INTO network_points_config (
			network, identifier, max_rate, target_stake, network_fee_bps, operator_fee_bps, block_number_processed
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (network, identifier) DO UPDATE SET
			max_rate = EXCLUDED.max_rate, target_stake = EXCLUDED.target_stake,
			network_fee_bps = EXCLUDED.network_fee_bps, operator_fee_bps = EXCLUDED.operator_fee_bps,
			block_number_processed = EXCLUDED.block_number_processed`,
		c.Network.Bytes(), c.Identifier[:], c.MaxRate.Dec(), c.TargetStake.Dec(), c.NetworkFeeBps, c.OperatorFeeBps, c.BlockNumberProcessed)
}

// NetworkPointsConfigsDue returns every subnetwork whose configuration
// exists and whose block_number_processed is below upTo, the per-block
// candidate set for the points engine.
func (s *Store) NetworkPointsConfigsDue(ctx context.Context, upTo uint64) ([]NetworkPointsConfig, error) {
	rows, err := s.Query(ctx, `
		SELECT network, identifier, max_rate, target_stake, network_fee_bps, operator_fee_bps, block_number_processed
		FROM network_points_config WHERE block_number_processed < $1`, upTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NetworkPointsConfig
	for rows.Next() {
		var c NetworkPointsConfig
		var netB, identB []byte
		var rate, target string
		if err := rows.Scan(&netB, &identB, &rate, &target, &c.NetworkFeeBps, &c.OperatorFeeBps, &c.BlockNumberProcessed); err != nil {
			return nil, fmt.Errorf("store: scan network_points_config: %w", err)
		}
		c.Network = address.Address(netB)
		copy(c.Identifier[:], identB)
		c.MaxRate = u256.MustFromDecimal(rate)
		c.TargetStake = u256.MustFromDecimal(target)
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddNetworkVaultPoints adds delta to the running total for (network,
// identifier, vault), creating the row at zero if absent.
func (b *Batch) AddNetworkVaultPoints(ctx context.Context, r PointsRow, delta *u256.Int) error {
	return b.Exec(ctx, `
		INSERT INTO network_vault_points (network, identifier, vault, points)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (network, identifier, vault) DO UPDATE SET points = network_vault_points.points + EXCLUDED.points`,
		r.Network.Bytes(), r.Identifier[:], r.Vault.Bytes(), delta.Dec())
}

// AddNetworkOperatorVaultPoints adds delta to the running total for
// (network, identifier, operator, vault).
func (b *Batch) AddNetworkOperatorVaultPoints(ctx context.Context, r PointsRow, delta *u256.Int) error {
	return b.Exec(ctx, `
		INSERT INTO network_operator_vault_points (network, identifier, operator, vault, points)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (network, identifier, operator, vault) DO UPDATE SET points = network_operator_vault_points.points + EXCLUDED.points`,
		r.Network.Bytes(), r.Identifier[:], r.Operator.Bytes(), r.Vault.Bytes(), delta.Dec())
}

// AddNetworkVaultUserPoints adds delta to the running total for (network,
// identifier, vault, staker).
func (b *Batch) AddNetworkVaultUserPoints(ctx context.Context, r PointsRow, delta *u256.Int) error {
	return b.Exec(ctx, `
		INSERT INTO network_vault_user_points (network, identifier, vault, staker, points)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (network, identifier, vault, staker) DO UPDATE SET points = network_vault_user_points.points + EXCLUDED.points`,
		r.Network.Bytes(), r.Identifier[:], r.Vault.Bytes(), r.Staker.Bytes(), delta.Dec())
}

// SnapshotPoints copies the current contents of each live points table
// into its historical counterpart tagged with block. Callers must only
// invoke this on a snapshot-interval boundary (core/points enforces that).
func (b *Batch) SnapshotPoints(ctx context.Context, block uint64) error {
	stmts := []string{
		`INSERT INTO network_vault_points_history (block_number, network, identifier, vault, points)
			SELECT $1, network, identifier, vault, points FROM network_vault_points`,
		`INSERT INTO network_operator_vault_points_history (block_number, network, identifier, operator, vault, points)
			SELECT $1, network, identifier, operator, vault, points FROM network_operator_vault_points`,
		`INSERT INTO network_vault_user_points_history (block_number, network, identifier, vault, staker, points)
			SELECT $1, network, identifier, vault, staker, points FROM network_vault_user_points`,
	}
	for _, sql := range stmts {
		if err := b.Exec(ctx, sql, block); err != nil {
			return err
		}
	}
	return nil
}

// ClosestSnapshotBlock returns the latest historical snapshot block number
// at or before asOf. Snapshots are the only read path for historical
// points queries.
func (s *Store) ClosestSnapshotBlock(ctx context.Context, asOf uint64) (uint64, error) {
	var block uint64
	row := s.QueryRow(ctx, `
		SELECT block_number FROM network_vault_user_points_history
		WHERE block_number <= $1 ORDER BY block_number DESC LIMIT 1`, asOf)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, classify("closest_snapshot_block", err)
	}
	return block, nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// PutDelegatorNetworkState upserts the max-network-limit cap shared by all
// four delegator variants.
func (b *Batch) PutDelegatorNetworkState(ctx context.Context, d DelegatorNetworkState) error {
	return b.Exec(ctx, `
		INSERT INTO delegator_network_state (delegator, subnetwork_network, subnetwork_identifier, max_network_limit)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (delegator, subnetwork_network, subnetwork_identifier) DO UPDATE SET
			max_network_limit = EXCLUDED.max_network_limit`,
		d.Delegator.Bytes(), d.Subnetwork.Network.Bytes(), d.Subnetwork.Identifier[:], d.MaxNetworkLimit.Dec())
}

// DelegatorNetworkStateOf reads the max-network-limit cap, defaulting to
// zero (no cap set yet means no stake can be delegated to this subnetwork).
func (s *Store) DelegatorNetworkStateOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (DelegatorNetworkState, error) {
	var limit string
	row := s.QueryRow(ctx, `SELECT max_network_limit FROM delegator_network_state WHERE delegator = $1 AND subnetwork_network = $2 AND subnetwork_identifier = $3`,
		delegator.Bytes(), sub.Network.Bytes(), sub.Identifier[:])
	if err := row.Scan(&limit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DelegatorNetworkState{Delegator: delegator, Subnetwork: sub, MaxNetworkLimit: u256.Zero()}, nil
		}
		return DelegatorNetworkState{}, classify("delegator_network_state_of", err)
	}
	return DelegatorNetworkState{Delegator: delegator, Subnetwork: sub, MaxNetworkLimit: u256.MustFromDecimal(limit)}, nil
}

// PutDelegator0Network upserts variant-0's per-subnetwork limit and share total.
func (b *Batch) PutDelegator0Network(ctx context.Context, d Delegator0Network) error {
	return b.Exec(ctx, `
		INSERT INTO delegator0_network (delegator, subnetwork_network, subnetwork_identifier, network_limit, total_operator_network_shares)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (delegator, subnetwork_network, subnetwork_identifier) DO UPDATE SET
			network_limit = EXCLUDED.network_limit, total_operator_network_shares = EXCLUDED.total_operator_network_shares`,
		d.Delegator.Bytes(), d.Subnetwork.Network.Bytes(), d.Subnetwork.Identifier[:], d.NetworkLimit.Dec(), d.TotalOperatorNetworkShares.Dec())
}

// Delegator0NetworkOf reads variant-0's per-subnetwork row, defaulting to zero.
func (s *Store) Delegator0NetworkOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (Delegator0Network, error) {
	var limit, total string
	row := s.QueryRow(ctx, `SELECT network_limit, total_operator_network_shares FROM delegator0_network WHERE delegator = $1 AND subnetwork_network = $2 AND subnetwork_identifier = $3`,
		delegator.Bytes(), sub.Network.Bytes(), sub.Identifier[:])
	if err := row.Scan(&limit, &total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delegator0Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.Zero(), TotalOperatorNetworkShares: u256.Zero()}, nil
		}
		return Delegator0Network{}, classify("delegator0_network_of", err)
	}
	return Delegator0Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.MustFromDecimal(limit), TotalOperatorNetworkShares: u256.MustFromDecimal(total)}, nil
}

// PutDelegator0Operator upserts variant-0's per-operator share row.
func (b *Batch) PutDelegator0Operator(ctx context.Context, d Delegator0Operator) error {
	return b.Exec(ctx, `
		INSERT INTO delegator0_operator (delegator, subnetwork_network, subnetwork_identifier, operator, operator_network_shares)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (delegator, subnetwork_network, subnetwork_identifier, operator) DO UPDATE SET
			operator_network_shares = EXCLUDED.operator_network_shares`,
		d.Delegator.Bytes(), d.Subnetwork.Network.Bytes(), d.Subnetwork.Identifier[:], d.Operator.Bytes(), d.OperatorNetworkShares.Dec())
}

// Delegator0OperatorOf reads variant-0's per-operator share, defaulting to zero.
func (s *Store) Delegator0OperatorOf(ctx context.Context, delegator address.Address, sub address.Subnetwork, operator address.Address) (Delegator0Operator, error) {
	var shares string
	row := s.QueryRow(ctx, `SELECT operator_network_shares FROM delegator0_operator WHERE delegator = $1 AND subnetwork_network = $2 AND subnetwork_identifier = $3 AND operator = $4`,
		delegator.Bytes(), sub.Network.Bytes(), sub.Identifier[:], operator.Bytes())
	if err := row.Scan(&shares); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delegator0Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkShares: u256.Zero()}, nil
		}
		return Delegator0Operator{}, classify("delegator0_operator_of", err)
	}
	return Delegator0Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkShares: u256.MustFromDecimal(shares)}, nil
}

// Delegator0OperatorsOf returns every operator variant-0 has nonzero shares
// for in sub, for the resolver's batch pass over a subnetwork's operators.
func (s *Store) Delegator0OperatorsOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) ([]Delegator0Operator, error) {
	rows, err := s.Query(ctx, `
		SELECT operator, operator_network_shares FROM delegator0_operator
		WHERE delegator = $1 AND subnetwork_network = $2 AND subnetwork_identifier = $3 AND operator_network_shares != '0'`,
		delegator.Bytes(), sub.Network.Bytes(), sub.Identifier[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Delegator0Operator
	for rows.Next() {
		var opB []byte
		var shares string
		if err := rows.Scan(&opB, &shares); err != nil {
			return nil, fmt.Errorf("store: scan delegator0_operator: %w", err)
		}
		out = append(out, Delegator0Operator{Delegator: delegator, Subnetwork: sub, Operator: address.Address(opB), OperatorNetworkShares: u256.MustFromDecimal(shares)})
	}
	return out, rows.Err()
}

// PutDelegator1Network upserts variant-1's per-subnetwork limit.
func (b *Batch) PutDelegator1Network(ctx context.Context, d Delegator1Network) error {
	return b.Exec(ctx, `
		INSERT INTO delegator1_network (delegator, subnetwork_network, subnetwork_identifier, network_limit)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (delegator, subnetwork_network, subnetwork_identifier) DO UPDATE SET
			network_limit = EXCLUDED.network_limit`,
		d.Delegator.Bytes(), d.Subnetwork.Network.Bytes(), d.Subnetwork.Identifier[:], d.NetworkLimit.Dec())
}

// Delegator1NetworkOf reads variant-1's per-subnetwork limit, defaulting to zero.
func (s *Store) Delegator1NetworkOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (Delegator1Network, error) {
	var limit string
	row := s.QueryRow(ctx, `SELECT network_limit FROM delegator1_network WHERE delegator = $1 AND subnetwork_network = $2 AND subnetwork_identifier = $3`,
		delegator.Bytes(), sub.Network.Bytes(), sub.Identifier[:])
	if err := row.Scan(&limit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delegator1Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.Zero()}, nil
		}
		return Delegator1Network{}, classify("delegator1_network_of", err)
	}
	return Delegator1Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.MustFromDecimal(limit)}, nil
}

// PutDelegator1Operator upserts variant-1's per-operator limit.
func (b *Batch) PutDelegator1Operator(ctx context.Context, d Delegator1Operator) error {
	return b.Exec(ctx, `
		INSERT INTO delegator1_operator (delegator, subnetwork_network, subnetwork_identifier, operator, operator_network_limit)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (delegator, subnetwork_network, subnetwork_identifier, operator) DO UPDATE SET
			operator_network_limit = EXCLUDED.operator_network_limit`,
		d.Delegator.Bytes(), d.Subnetwork.Network.Bytes(), d.Subnetwork.Identifier[:], d.Operator.Bytes(), d.OperatorNetworkLimit.Dec())
}

// Delegator1OperatorOf reads variant-1's per-operator limit, defaulting to zero.
func (s *Store) Delegator1OperatorOf(ctx context.Context, delegator address.Address, sub address.Subnetwork, operator address.Address) (Delegator1Operator, error) {
	var limit string
	row := s.QueryRow(ctx, `SELECT operator_network_limit FROM delegator1_operator WHERE delegator = $1 AND subnetwork_network = $2 AND subnetwork_identifier = $3 AND operator = $4`,
		delegator.Bytes(), sub.Network.Bytes(), sub.Identifier[:], operator.Bytes())
	if err := row.Scan(&limit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delegator1Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkLimit: u256.Zero()}, nil
		}
		return Delegator1Operator{}, classify("delegator1_operator_of", err)
	}
	return Delegator1Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkLimit: u256.MustFromDecimal(limit)}, nil
}

// Delegator1OperatorsOf returns every operator with a nonzero limit set
// under sub, for the resolver's batch pass.
func (s *Store) Delegator1OperatorsOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) ([]Delegator1Operator, error) {
	rows, err := s.Query(ctx, `
		SELECT operator, operator_network_limit FROM delegator1_operator
		WHERE delegator = $1 AND subnetwork_network = $2 AND subnetwork_identifier = $3 AND operator_network_limit != '0'`,
		delegator.Bytes(), sub.Network.Bytes(), sub.Identifier[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Delegator1Operator
	for rows.Next() {
		var opB []byte
		var limit string
		if err := rows.Scan(&opB, &limit); err != nil {
			return nil, fmt.Errorf("store: scan delegator1_operator: %w", err)
		}
		out = append(out, Delegator1Operator{Delegator: delegator, Subnetwork: sub, Operator: address.Address(opB), OperatorNetworkLimit: u256.MustFromDecimal(limit)})
	}
	return out, rows.Err()
}

// PutDelegator2Network upserts variant-2's per-subnetwork limit. The fixed
// operator lives in GlobalVars, not here. Variant 3 has no per-subnetwork
// limit table; it is capped by DelegatorNetworkState alone.
func (b *Batch) PutDelegator2Network(ctx context.Context, d Delegator2Network) error {
	return b.Exec(ctx, `
		INSERT INTO delegator2_network (delegator, subnetwork_network, subnetwork_identifier, network_limit)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (delegator, subnetwork_network, subnetwork_identifier) DO UPDATE SET
			network_limit = EXCLUDED.network_limit`,
		d.Delegator.Bytes(), d.Subnetwork.Network.Bytes(), d.Subnetwork.Identifier[:], d.NetworkLimit.Dec())
}

// Delegator2NetworkOf reads variant-2's per-subnetwork limit, defaulting to zero.
func (s *Store) Delegator2NetworkOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (Delegator2Network, error) {
	var limit string
	row := s.QueryRow(ctx, `SELECT network_limit FROM delegator2_network WHERE delegator = $1 AND subnetwork_network = $2 AND subnetwork_identifier = $3`,
		delegator.Bytes(), sub.Network.Bytes(), sub.Identifier[:])
	if err := row.Scan(&limit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delegator2Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.Zero()}, nil
		}
		return Delegator2Network{}, classify("delegator2_network_of", err)
	}
	return Delegator2Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.MustFromDecimal(limit)}, nil
}

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// PointsByStaker returns staker's total points per (network, identifier,
// vault) as of the snapshot at or before asOfBlock.
func (s *Store) PointsByStaker(ctx context.Context, staker address.Address, asOfBlock uint64) ([]PointsRow, error) {
	snap, err := s.ClosestSnapshotBlock(ctx, asOfBlock)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := s.Query(ctx, `
		SELECT network, identifier, vault, points FROM network_vault_user_points_history
		WHERE block_number = $1 AND staker = $2 AND points != '0'
		ORDER BY network, identifier, vault`, snap, staker.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PointsRow
	for rows.Next() {
		var netB, identB, vaultB []byte
		var points string
		if err := rows.Scan(&netB, &identB, &vaultB, &points); err != nil {
			return nil, fmt.Errorf("store: scan points_by_staker: %w", err)
		}
		r := PointsRow{Staker: staker, Vault: address.Address(vaultB), Network: address.Address(netB), Points: u256.MustFromDecimal(points), ReceiverType: ReceiverStaker}
		copy(r.Identifier[:], identB)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PointsByNetwork returns every vault's accrued points under network as of
// the snapshot at or before asOfBlock, summed across every subnetwork
// identifier: callers address a network, not an individual subnetwork.
func (s *Store) PointsByNetwork(ctx context.Context, network address.Address, asOfBlock uint64) ([]PointsRow, error) {
	snap, err := s.ClosestSnapshotBlock(ctx, asOfBlock)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := s.Query(ctx, `
		SELECT vault, SUM(points::numeric)::text FROM network_vault_points_history
		WHERE block_number = $1 AND network = $2
		GROUP BY vault
		HAVING SUM(points::numeric) != 0
		ORDER BY vault`,
		snap, network.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PointsRow
	for rows.Next() {
		var vaultB []byte
		var points string
		if err := rows.Scan(&vaultB, &points); err != nil {
			return nil, fmt.Errorf("store: scan points_by_network: %w", err)
		}
		out = append(out, PointsRow{Network: network, Vault: address.Address(vaultB), Points: u256.MustFromDecimal(points), ReceiverType: ReceiverNetwork})
	}
	return out, rows.Err()
}

// PointsByOperator returns every (network, identifier, vault) combination's
// points accrued to operator as of the snapshot at or before asOfBlock.
func (s *Store) PointsByOperator(ctx context.Context, operator address.Address, asOfBlock uint64) ([]PointsRow, error) {
	snap, err := s.ClosestSnapshotBlock(ctx, asOfBlock)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := s.Query(ctx, `
		SELECT network, identifier, vault, points FROM network_operator_vault_points_history
		WHERE block_number = $1 AND operator = $2 AND points != '0'
		ORDER BY network, identifier, vault`, snap, operator.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PointsRow
	for rows.Next() {
		var netB, identB, vaultB []byte
		var points string
		if err := rows.Scan(&netB, &identB, &vaultB, &points); err != nil {
			return nil, fmt.Errorf("store: scan points_by_operator: %w", err)
		}
		r := PointsRow{Operator: operator, Vault: address.Address(vaultB), Network: address.Address(netB), Points: u256.MustFromDecimal(points), ReceiverType: ReceiverOperator}
		copy(r.Identifier[:], identB)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllPoints unions the three points ledgers as of the snapshot at or
// before asOfBlock, tagging each row with a synthetic receiver_type. An
// empty receiverType unions all three; otherwise only the matching ledger
// is queried. Results carry a total order on (network, identifier, vault,
// operator, staker, receiver_type) so offset/limit pagination is stable
// across calls regardless of insertion order.
func (s *Store) AllPoints(ctx context.Context, asOfBlock uint64, receiverType ReceiverType, offset, limit int) ([]PointsRow, error) {
	snap, err := s.ClosestSnapshotBlock(ctx, asOfBlock)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []PointsRow{}, nil
		}
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	type ledger struct {
		receiver ReceiverType
		query    string
		scan     func(rowsScanner) (PointsRow, error)
	}
	ledgers := []ledger{
		{
			receiver: ReceiverNetwork,
			query: `SELECT network, identifier, vault, points FROM network_vault_points_history
				WHERE block_number = $1 AND points != '0'`,
			scan: func(rs rowsScanner) (PointsRow, error) {
				var netB, identB, vaultB []byte
				var points string
				if err := rs.Scan(&netB, &identB, &vaultB, &points); err != nil {
					return PointsRow{}, err
				}
				r := PointsRow{Network: address.Address(netB), Vault: address.Address(vaultB), Points: u256.MustFromDecimal(points), ReceiverType: ReceiverNetwork}
				copy(r.Identifier[:], identB)
				return r, nil
			},
		},
		{
			receiver: ReceiverOperator,
			query: `SELECT network, identifier, operator, vault, points FROM network_operator_vault_points_history
				WHERE block_number = $1 AND points != '0'`,
			scan: func(rs rowsScanner) (PointsRow, error) {
				var netB, identB, opB, vaultB []byte
				var points string
				if err := rs.Scan(&netB, &identB, &opB, &vaultB, &points); err != nil {
					return PointsRow{}, err
				}
				r := PointsRow{Network: address.Address(netB), Operator: address.Address(opB), Vault: address.Address(vaultB), Points: u256.MustFromDecimal(points), ReceiverType: ReceiverOperator}
				copy(r.Identifier[:], identB)
				return r, nil
			},
		},
		{
			receiver: ReceiverStaker,
			query: `SELECT network, identifier, vault, staker, points FROM network_vault_user_points_history
				WHERE block_number = $1 AND points != '0'`,
			scan: func(rs rowsScanner) (PointsRow, error) {
				var netB, identB, vaultB, stakerB []byte
				var points string
				if err := rs.Scan(&netB, &identB, &vaultB, &stakerB, &points); err != nil {
					return PointsRow{}, err
				}
				r := PointsRow{Network: address.Address(netB), Vault: address.Address(vaultB), Staker: address.Address(stakerB), Points: u256.MustFromDecimal(points), ReceiverType: ReceiverStaker}
				copy(r.Identifier[:], identB)
				return r, nil
			},
		},
	}

	var out []PointsRow
	for _, l := range ledgers {
		if receiverType != "" && receiverType != l.receiver {
			continue
		}
		rows, err := s.Query(ctx, l.query, snap)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			r, err := l.scan(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: scan all_points(%s): %w", l.receiver, err)
			}
			out = append(out, r)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Network != b.Network {
			return lessAddress(a.Network, b.Network)
		}
		if a.Identifier != b.Identifier {
			return bytes.Compare(a.Identifier[:], b.Identifier[:]) < 0
		}
		if a.Vault != b.Vault {
			return lessAddress(a.Vault, b.Vault)
		}
		if a.Operator != b.Operator {
			return lessAddress(a.Operator, b.Operator)
		}
		if a.Staker != b.Staker {
			return lessAddress(a.Staker, b.Staker)
		}
		return a.ReceiverType < b.ReceiverType
	})

	if offset >= len(out) {
		return []PointsRow{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

// rowsScanner is the narrow pgx.Rows surface AllPoints's per-ledger scan
// closures need.
type rowsScanner interface {
	Scan(dest ...any) error
}

func lessAddress(a, b address.Address) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

// Stats is the /api/stats summary: the points cursor plus the total
// points and distinct-receiver counts as of a snapshot.
type Stats struct {
	LastProcessedBlock uint64
	TotalPoints        *u256.Int
	StakerCount        uint64
	NetworkCount       uint64
	OperatorCount      uint64
}

// GetStats computes the /api/stats summary as of the snapshot at or before
// asOfBlock. receiverType, if non-empty, scopes TotalPoints to that
// receiver's own ledger (staker -> network_vault_user_points_history,
// operator -> network_operator_vault_points_history, network ->
// network_vault_points_history, which nothing accrues into yet and so
// always sums to zero); empty sums both accruing ledgers. The three
// counts are always computed across both accruing ledgers regardless of
// the filter, since the response always reports all three.
func (s *Store) GetStats(ctx context.Context, asOfBlock uint64, receiverType ReceiverType) (Stats, error) {
	var st Stats
	st.TotalPoints = u256.Zero()
	cur, err := s.ProcessedTimepoint(ctx, CursorPoints)
	if err != nil {
		return Stats{}, err
	}
	st.LastProcessedBlock = cur

	snap, err := s.ClosestSnapshotBlock(ctx, asOfBlock)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return st, nil
		}
		return Stats{}, err
	}

	if receiverType == "" || receiverType == ReceiverStaker {
		sum, err := s.sumPoints(ctx, "network_vault_user_points_history", snap)
		if err != nil {
			return Stats{}, err
		}
		st.TotalPoints = u256.Add(st.TotalPoints, sum)
	}
	if receiverType == "" || receiverType == ReceiverOperator {
		sum, err := s.sumPoints(ctx, "network_operator_vault_points_history", snap)
		if err != nil {
			return Stats{}, err
		}
		st.TotalPoints = u256.Add(st.TotalPoints, sum)
	}
	if receiverType == ReceiverNetwork {
		sum, err := s.sumPoints(ctx, "network_vault_points_history", snap)
		if err != nil {
			return Stats{}, err
		}
		st.TotalPoints = sum
	}

	if err := s.QueryRow(ctx, `SELECT COUNT(DISTINCT staker) FROM network_vault_user_points_history WHERE block_number = $1 AND points != '0'`, snap).Scan(&st.StakerCount); err != nil {
		return Stats{}, classify("get_stats_stakers", err)
	}
	if err := s.QueryRow(ctx, `SELECT COUNT(DISTINCT operator) FROM network_operator_vault_points_history WHERE block_number = $1 AND points != '0'`, snap).Scan(&st.OperatorCount); err != nil {
		return Stats{}, classify("get_stats_operators", err)
	}
	if err := s.QueryRow(ctx, `
		SELECT COUNT(DISTINCT network) FROM (
			SELECT network FROM network_vault_user_points_history WHERE block_number = $1 AND points != '0'
			UNION
			SELECT network FROM network_operator_vault_points_history WHERE block_number = $1 AND points != '0'
		) n`, snap).Scan(&st.NetworkCount); err != nil {
		return Stats{}, classify("get_stats_networks", err)
	}
	return st, nil
}

func (s *Store) sumPoints(ctx context.Context, table string, snap uint64) (*u256.Int, error) {
	var sum *string
	if err := s.QueryRow(ctx, fmt.Sprintf(`SELECT SUM(points::numeric)::text FROM %s WHERE block_number = $1`, table), snap).Scan(&sum); err != nil {
		return nil, classify("sum_points", err)
	}
	if sum == nil {
		return u256.Zero(), nil
	}
	return u256.MustFromDecimal(*sum), nil
}

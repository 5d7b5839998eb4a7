package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/symbioticfi/points-indexer/internal/address"
)

// OptInKind discriminates the two opt-in relationships: operator<->network
// (toggled by OperatorNetworkOptInService) and operator<->vault (toggled
// by OperatorVaultOptInService). Both share the one table below.
type OptInKind string

const (
	OptInKindOperatorNetwork OptInKind = "operator_network"
	OptInKindOperatorVault   OptInKind = "operator_vault"
)

// OptInState is a single opt-in relationship's current boolean state.
type OptInState struct {
	Kind   OptInKind
	Left   address.Address // vault or operator, depending on Kind
	Right  address.Address // network or vault, depending on Kind
	Active bool
}

// PutOptIn upserts an opt-in relationship's current state.
func (b *Batch) PutOptIn(ctx context.Context, o OptInState) error {
	return b.Exec(ctx, `
		INSERT INTO opt_in_state (kind, left_addr, right_addr, active)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (kind, left_addr, right_addr) DO UPDATE SET active = EXCLUDED.active`,
		string(o.Kind), o.Left.Bytes(), o.Right.Bytes(), o.Active)
}

// IsOptedIn reports whether (left, right) under kind is currently active.
// A relationship that was never written defaults to false: every
// restaking operation that depends on opt-in state also needs one.
func (s *Store) IsOptedIn(ctx context.Context, kind OptInKind, left, right address.Address) (bool, error) {
	var active bool
	row := s.QueryRow(ctx, `SELECT active FROM opt_in_state WHERE kind = $1 AND left_addr = $2 AND right_addr = $3`, string(kind), left.Bytes(), right.Bytes())
	if err := row.Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, classify("is_opted_in", err)
	}
	return active, nil
}

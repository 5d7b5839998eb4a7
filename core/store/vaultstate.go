package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// ErrNotFound is returned by point lookups that find no row; callers treat
// it as "zero state" for entities that are lazily created on first write.
var ErrNotFound = errors.New("store: not found")

// PutGlobalVars upserts a vault's immutable configuration; writing the same
// vault again overwrites its row.
func (b *Batch) PutGlobalVars(ctx context.Context, g GlobalVars) error {
	return b.Exec(ctx, `
		INSERT INTO global_vars (
			vault, delegator, delegator_type, collateral,
			epoch_duration_init, epoch_duration,
			operator, has_operator, network, has_network
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (vault) DO UPDATE SET
			delegator = EXCLUDED.delegator,
			delegator_type = EXCLUDED.delegator_type,
			collateral = EXCLUDED.collateral,
			epoch_duration_init = EXCLUDED.epoch_duration_init,
			epoch_duration = EXCLUDED.epoch_duration,
			operator = EXCLUDED.operator,
			has_operator = EXCLUDED.has_operator,
			network = EXCLUDED.network,
			has_network = EXCLUDED.has_network`,
		g.Vault.Bytes(), g.Delegator.Bytes(), uint8(g.DelegatorType), g.Collateral.Bytes(),
		g.EpochDurationInit, g.EpochDuration,
		g.Operator.Bytes(), g.HasOperator, g.Network.Bytes(), g.HasNetwork,
	)
}

// GlobalVarsOf reads a vault's configuration, for use by both the reducer
// (epoch math) and the resolver (delegator-variant dispatch).
func (s *Store) GlobalVarsOf(ctx context.Context, vault address.Address) (GlobalVars, error) {
	var (
		g                               GlobalVars
		vaultB, delegatorB, collateralB []byte
		operatorB, networkB             []byte
		delegatorType                   uint8
	)
	row := s.QueryRow(ctx, `
		SELECT vault, delegator, delegator_type, collateral,
			epoch_duration_init, epoch_duration, operator, has_operator, network, has_network
		FROM global_vars WHERE vault = $1`, vault.Bytes())
	if err := row.Scan(&vaultB, &delegatorB, &delegatorType, &collateralB,
		&g.EpochDurationInit, &g.EpochDuration, &operatorB, &g.HasOperator, &networkB, &g.HasNetwork); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GlobalVars{}, ErrNotFound
		}
		return GlobalVars{}, classify("global_vars_of", err)
	}
	g.Vault = address.Address(vaultB)
	g.Delegator = address.Address(delegatorB)
	g.DelegatorType = DelegatorType(delegatorType)
	g.Collateral = address.Address(collateralB)
	g.Operator = address.Address(operatorB)
	g.Network = address.Address(networkB)
	return g, nil
}

// AllVaults returns every registered vault's configuration, for the points
// engine's per-block pass over all vaults.
func (s *Store) AllVaults(ctx context.Context) ([]GlobalVars, error) {
	rows, err := s.Query(ctx, `
		SELECT vault, delegator, delegator_type, collateral,
			epoch_duration_init, epoch_duration, operator, has_operator, network, has_network
		FROM global_vars`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GlobalVars
	for rows.Next() {
		var (
			g                               GlobalVars
			vaultB, delegatorB, collateralB []byte
			operatorB, networkB             []byte
			delegatorType                   uint8
		)
		if err := rows.Scan(&vaultB, &delegatorB, &delegatorType, &collateralB,
			&g.EpochDurationInit, &g.EpochDuration, &operatorB, &g.HasOperator, &networkB, &g.HasNetwork); err != nil {
			return nil, fmt.Errorf("store: scan global_vars: %w", err)
		}
		g.Vault = address.Address(vaultB)
		g.Delegator = address.Address(delegatorB)
		g.DelegatorType = DelegatorType(delegatorType)
		g.Collateral = address.Address(collateralB)
		g.Operator = address.Address(operatorB)
		g.Network = address.Address(networkB)
		out = append(out, g)
	}
	return out, rows.Err()
}

// PutVaultGlobalState upserts a vault's aggregate shares/stake.
func (b *Batch) PutVaultGlobalState(ctx context.Context, v VaultGlobalState) error {
	return b.Exec(ctx, `
		INSERT INTO vault_global_state (vault, active_shares, active_stake)
		VALUES ($1,$2,$3)
		ON CONFLICT (vault) DO UPDATE SET
			active_shares = EXCLUDED.active_shares, active_stake = EXCLUDED.active_stake`,
		v.Vault.Bytes(), v.ActiveShares.Dec(), v.ActiveStake.Dec())
}

// VaultGlobalStateOf reads a vault's aggregate state, defaulting to zero
// shares/stake if the vault has never been written (pre-deposit).
func (s *Store) VaultGlobalStateOf(ctx context.Context, vault address.Address) (VaultGlobalState, error) {
	var shares, stake string
	row := s.QueryRow(ctx, `SELECT active_shares, active_stake FROM vault_global_state WHERE vault = $1`, vault.Bytes())
	if err := row.Scan(&shares, &stake); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VaultGlobalState{Vault: vault, ActiveShares: u256.Zero(), ActiveStake: u256.Zero()}, nil
		}
		return VaultGlobalState{}, classify("vault_global_state_of", err)
	}
	return VaultGlobalState{Vault: vault, ActiveShares: u256.MustFromDecimal(shares), ActiveStake: u256.MustFromDecimal(stake)}, nil
}

// PutVaultUserState upserts one staker's shares in one vault.
func (b *Batch) PutVaultUserState(ctx context.Context, v VaultUserState) error {
	return b.Exec(ctx, `
		INSERT INTO vault_user_state (vault, "user", active_shares_of)
		VALUES ($1,$2,$3)
		ON CONFLICT (vault, "user") DO UPDATE SET active_shares_of = EXCLUDED.active_shares_of`,
		v.Vault.Bytes(), v.User.Bytes(), v.ActiveSharesOf.Dec())
}

// VaultUserStateOf reads one staker's shares, defaulting to zero.
func (s *Store) VaultUserStateOf(ctx context.Context, vault, user address.Address) (VaultUserState, error) {
	var shares string
	row := s.QueryRow(ctx, `SELECT active_shares_of FROM vault_user_state WHERE vault = $1 AND "user" = $2`, vault.Bytes(), user.Bytes())
	if err := row.Scan(&shares); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VaultUserState{Vault: vault, User: user, ActiveSharesOf: u256.Zero()}, nil
		}
		return VaultUserState{}, classify("vault_user_state_of", err)
	}
	return VaultUserState{Vault: vault, User: user, ActiveSharesOf: u256.MustFromDecimal(shares)}, nil
}

// VaultUsersWithShares returns every staker in vault with nonzero shares,
// for the resolver's batch active-balance pass; zero-share rows never
// contribute to points.
func (s *Store) VaultUsersWithShares(ctx context.Context, vault address.Address) ([]VaultUserState, error) {
	rows, err := s.Query(ctx, `
		SELECT "user", active_shares_of FROM vault_user_state
		WHERE vault = $1 AND active_shares_of != '0'`, vault.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VaultUserState
	for rows.Next() {
		var userB []byte
		var shares string
		if err := rows.Scan(&userB, &shares); err != nil {
			return nil, fmt.Errorf("store: scan vault_user_state: %w", err)
		}
		out = append(out, VaultUserState{Vault: vault, User: address.Address(userB), ActiveSharesOf: u256.MustFromDecimal(shares)})
	}
	return out, rows.Err()
}

// PutVaultGlobalWithdrawals upserts one epoch's withdrawal pool totals.
func (b *Batch) PutVaultGlobalWithdrawals(ctx context.Context, w VaultGlobalWithdrawalsState) error {
	return b.Exec(ctx, `
		INSERT INTO vault_global_withdrawals_state (vault, epoch, withdrawal_shares, withdrawals)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (vault, epoch) DO UPDATE SET
			withdrawal_shares = EXCLUDED.withdrawal_shares, withdrawals = EXCLUDED.withdrawals`,
		w.Vault.Bytes(), w.Epoch, w.WithdrawalShares.Dec(), w.Withdrawals.Dec())
}

// VaultGlobalWithdrawalsOf reads one epoch's withdrawal pool, defaulting to
// zero for an epoch with no withdrawal activity yet.
func (s *Store) VaultGlobalWithdrawalsOf(ctx context.Context, vault address.Address, epoch uint64) (VaultGlobalWithdrawalsState, error) {
	var shares, withdrawals string
	row := s.QueryRow(ctx, `SELECT withdrawal_shares, withdrawals FROM vault_global_withdrawals_state WHERE vault = $1 AND epoch = $2`, vault.Bytes(), epoch)
	if err := row.Scan(&shares, &withdrawals); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VaultGlobalWithdrawalsState{Vault: vault, Epoch: epoch, WithdrawalShares: u256.Zero(), Withdrawals: u256.Zero()}, nil
		}
		return VaultGlobalWithdrawalsState{}, classify("vault_global_withdrawals_of", err)
	}
	return VaultGlobalWithdrawalsState{Vault: vault, Epoch: epoch, WithdrawalShares: u256.MustFromDecimal(shares), Withdrawals: u256.MustFromDecimal(withdrawals)}, nil
}

// PutVaultUserWithdrawals upserts one staker's claim within one epoch's pool.
func (b *Batch) PutVaultUserWithdrawals(ctx context.Context, w VaultUserWithdrawalsState) error {
	return b.Exec(ctx, `
		INSERT INTO vault_user_withdrawals_state (vault, epoch, "user", withdrawal_shares_of)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (vault, epoch, "user") DO UPDATE SET withdrawal_shares_of = EXCLUDED.withdrawal_shares_of`,
		w.Vault.Bytes(), w.Epoch, w.User.Bytes(), w.WithdrawalSharesOf.Dec())
}

// VaultUserWithdrawalsOf reads one staker's claim, defaulting to zero.
func (s *Store) VaultUserWithdrawalsOf(ctx context.Context, vault address.Address, epoch uint64, user address.Address) (VaultUserWithdrawalsState, error) {
	var shares string
	row := s.QueryRow(ctx, `SELECT withdrawal_shares_of FROM vault_user_withdrawals_state WHERE vault = $1 AND epoch = $2 AND "user" = $3`, vault.Bytes(), epoch, user.Bytes())
	if err := row.Scan(&shares); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VaultUserWithdrawalsState{Vault: vault, Epoch: epoch, User: user, WithdrawalSharesOf: u256.Zero()}, nil
		}
		return VaultUserWithdrawalsState{}, classify("vault_user_withdrawals_of", err)
	}
	return VaultUserWithdrawalsState{Vault: vault, Epoch: epoch, User: user, WithdrawalSharesOf: u256.MustFromDecimal(shares)}, nil
}

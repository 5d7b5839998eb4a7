// Package resolver computes effective stake: a pure projection from
// current materialized state to the stake a network can slash for a given
// (subnetwork, operator, vault), dispatched over the four delegator
// variants. It performs no writes and holds no state of its own.
package resolver

import (
	"context"
	"fmt"

	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// StateSource is the narrow read surface the resolver needs from
// core/store. *store.Store satisfies it directly; tests supply a fake.
type StateSource interface {
	GlobalVarsOf(ctx context.Context, vault address.Address) (store.GlobalVars, error)
	VaultGlobalStateOf(ctx context.Context, vault address.Address) (store.VaultGlobalState, error)
	VaultUserStateOf(ctx context.Context, vault, user address.Address) (store.VaultUserState, error)
	VaultUsersWithShares(ctx context.Context, vault address.Address) ([]store.VaultUserState, error)
	IsOptedIn(ctx context.Context, kind store.OptInKind, left, right address.Address) (bool, error)
	DelegatorNetworkStateOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (store.DelegatorNetworkState, error)
	Delegator0NetworkOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (store.Delegator0Network, error)
	Delegator0OperatorOf(ctx context.Context, delegator address.Address, sub address.Subnetwork, operator address.Address) (store.Delegator0Operator, error)
	Delegator0OperatorsOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) ([]store.Delegator0Operator, error)
	Delegator1NetworkOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (store.Delegator1Network, error)
	Delegator1OperatorOf(ctx context.Context, delegator address.Address, sub address.Subnetwork, operator address.Address) (store.Delegator1Operator, error)
	Delegator1OperatorsOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) ([]store.Delegator1Operator, error)
	Delegator2NetworkOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (store.Delegator2Network, error)
}

// EffectiveStake computes the stake sub.Network can slash through
// operator in gv's vault, dispatching on the delegator variant. Either
// opt-in being absent zeroes the result. gv must be the GlobalVars for
// the vault being resolved.
func EffectiveStake(ctx context.Context, src StateSource, gv store.GlobalVars, sub address.Subnetwork, operator address.Address) (*u256.Int, error) {
	optedNetwork, err := src.IsOptedIn(ctx, store.OptInKindOperatorNetwork, operator, sub.Network)
	if err != nil {
		return nil, fmt.Errorf("resolver: opted_in_network: %w", err)
	}
	optedVault, err := src.IsOptedIn(ctx, store.OptInKindOperatorVault, operator, gv.Vault)
	if err != nil {
		return nil, fmt.Errorf("resolver: opted_in_vault: %w", err)
	}
	if !optedNetwork || !optedVault {
		return u256.Zero(), nil
	}

	vg, err := src.VaultGlobalStateOf(ctx, gv.Vault)
	if err != nil {
		return nil, fmt.Errorf("resolver: vault_global_state: %w", err)
	}
	activeStake := vg.ActiveStake

	switch gv.DelegatorType {
	case store.DelegatorShares:
		net, err := src.Delegator0NetworkOf(ctx, gv.Delegator, sub)
		if err != nil {
			return nil, fmt.Errorf("resolver: delegator0_network: %w", err)
		}
		if u256.IsZero(net.TotalOperatorNetworkShares) {
			return u256.Zero(), nil
		}
		op, err := src.Delegator0OperatorOf(ctx, gv.Delegator, sub, operator)
		if err != nil {
			return nil, fmt.Errorf("resolver: delegator0_operator: %w", err)
		}
		capped := u256.Min(activeStake, net.NetworkLimit)
		return u256.MulDivFloor(op.OperatorNetworkShares, capped, net.TotalOperatorNetworkShares)

	case store.DelegatorOperatorLimit:
		net, err := src.Delegator1NetworkOf(ctx, gv.Delegator, sub)
		if err != nil {
			return nil, fmt.Errorf("resolver: delegator1_network: %w", err)
		}
		op, err := src.Delegator1OperatorOf(ctx, gv.Delegator, sub, operator)
		if err != nil {
			return nil, fmt.Errorf("resolver: delegator1_operator: %w", err)
		}
		return u256.Min3(activeStake, net.NetworkLimit, op.OperatorNetworkLimit), nil

	case store.DelegatorSingleOperator:
		if !gv.HasOperator || operator != gv.Operator {
			return u256.Zero(), nil
		}
		net, err := src.Delegator2NetworkOf(ctx, gv.Delegator, sub)
		if err != nil {
			return nil, fmt.Errorf("resolver: delegator2_network: %w", err)
		}
		return u256.Min(activeStake, net.NetworkLimit), nil

	case store.DelegatorFixedPair:
		if !gv.HasOperator || operator != gv.Operator || !gv.HasNetwork || sub.Network != gv.Network {
			return u256.Zero(), nil
		}
		netCap, err := src.DelegatorNetworkStateOf(ctx, gv.Delegator, sub)
		if err != nil {
			return nil, fmt.Errorf("resolver: delegator_network_state: %w", err)
		}
		return u256.Min(activeStake, netCap.MaxNetworkLimit), nil

	default:
		return nil, fmt.Errorf("resolver: unsupported delegator_type %d", gv.DelegatorType)
	}
}

// ActiveBalanceOf computes active_balance_of(user, vault): the user's share
// of a vault's active stake, zero when the vault has no shares outstanding.
func ActiveBalanceOf(ctx context.Context, src StateSource, vault, user address.Address) (*u256.Int, error) {
	vg, err := src.VaultGlobalStateOf(ctx, vault)
	if err != nil {
		return nil, fmt.Errorf("resolver: vault_global_state: %w", err)
	}
	if u256.IsZero(vg.ActiveShares) {
		return u256.Zero(), nil
	}
	vu, err := src.VaultUserStateOf(ctx, vault, user)
	if err != nil {
		return nil, fmt.Errorf("resolver: vault_user_state: %w", err)
	}
	return u256.MulDivFloor(vu.ActiveSharesOf, vg.ActiveStake, vg.ActiveShares)
}

// OperatorsOf returns the operators relevant to a vault's delegator
// variant: those with nonzero shares/limits for variants 0/1, or the
// single fixed operator for variants 2/3. It does not filter by opt-in or
// resulting stake; callers pass each through EffectiveStake.
func OperatorsOf(ctx context.Context, src StateSource, gv store.GlobalVars, sub address.Subnetwork) ([]address.Address, error) {
	switch gv.DelegatorType {
	case store.DelegatorShares:
		ops, err := src.Delegator0OperatorsOf(ctx, gv.Delegator, sub)
		if err != nil {
			return nil, err
		}
		out := make([]address.Address, len(ops))
		for i, o := range ops {
			out[i] = o.Operator
		}
		return out, nil
	case store.DelegatorOperatorLimit:
		ops, err := src.Delegator1OperatorsOf(ctx, gv.Delegator, sub)
		if err != nil {
			return nil, err
		}
		out := make([]address.Address, len(ops))
		for i, o := range ops {
			out[i] = o.Operator
		}
		return out, nil
	case store.DelegatorSingleOperator, store.DelegatorFixedPair:
		if !gv.HasOperator {
			return nil, nil
		}
		return []address.Address{gv.Operator}, nil
	default:
		return nil, fmt.Errorf("resolver: unsupported delegator_type %d", gv.DelegatorType)
	}
}

// EffectiveStakeForVault returns the effective stake of every operator
// relevant to vault under sub, with zero-stake entries filtered out.
func EffectiveStakeForVault(ctx context.Context, src StateSource, gv store.GlobalVars, sub address.Subnetwork) (map[address.Address]*u256.Int, error) {
	ops, err := OperatorsOf(ctx, src, gv, sub)
	if err != nil {
		return nil, err
	}
	out := make(map[address.Address]*u256.Int, len(ops))
	for _, op := range ops {
		stake, err := EffectiveStake(ctx, src, gv, sub, op)
		if err != nil {
			return nil, err
		}
		if !u256.IsZero(stake) {
			out[op] = stake
		}
	}
	return out, nil
}

// ActiveBalancesOf returns active_balance_of for every staker with
// nonzero shares in vault, zero-balance entries already excluded by
// VaultUsersWithShares.
func ActiveBalancesOf(ctx context.Context, src StateSource, vault address.Address) (map[address.Address]*u256.Int, error) {
	vg, err := src.VaultGlobalStateOf(ctx, vault)
	if err != nil {
		return nil, err
	}
	if u256.IsZero(vg.ActiveShares) {
		return map[address.Address]*u256.Int{}, nil
	}
	users, err := src.VaultUsersWithShares(ctx, vault)
	if err != nil {
		return nil, err
	}
	out := make(map[address.Address]*u256.Int, len(users))
	for _, u := range users {
		bal, err := u256.MulDivFloor(u.ActiveSharesOf, vg.ActiveStake, vg.ActiveShares)
		if err != nil {
			return nil, err
		}
		if !u256.IsZero(bal) {
			out[u.User] = bal
		}
	}
	return out, nil
}

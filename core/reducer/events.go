package reducer

import (
	"context"

	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

func (red *Reducer) applyOptIn(ctx context.Context, l store.Log) error {
	var left, right = l.Operator, l.Subnetwork.Network
	if l.OptInKind == store.OptInKindOperatorVault {
		right = l.Vault
	}
	return red.w.PutOptIn(ctx, store.OptInState{
		Kind:   l.OptInKind,
		Left:   left,
		Right:  right,
		Active: l.Type == store.LogOptIn,
	})
}

func (red *Reducer) applyDeposit(ctx context.Context, l store.Log) error {
	vg, err := red.r.VaultGlobalStateOf(ctx, l.Vault)
	if err != nil {
		return err
	}
	vg.ActiveShares = u256.Add(vg.ActiveShares, l.Shares)
	vg.ActiveStake = u256.Add(vg.ActiveStake, l.Amount)
	if err := red.w.PutVaultGlobalState(ctx, vg); err != nil {
		return err
	}

	vu, err := red.r.VaultUserStateOf(ctx, l.Vault, l.User)
	if err != nil {
		return err
	}
	vu.ActiveSharesOf = u256.Add(vu.ActiveSharesOf, l.Shares)
	return red.w.PutVaultUserState(ctx, vu)
}

func (red *Reducer) applyWithdraw(ctx context.Context, l store.Log, blockTimestamp uint64) error {
	gv, err := red.r.GlobalVarsOf(ctx, l.Vault)
	if err != nil {
		return err
	}
	vg, err := red.r.VaultGlobalStateOf(ctx, l.Vault)
	if err != nil {
		return err
	}
	burnedShares := l.Shares
	mintedShares := l.MintedShares
	newShares, err := u256.Sub(vg.ActiveShares, burnedShares)
	newShares, err = requireNonNegative("withdraw activeShares", newShares, err)
	if err != nil {
		return err
	}
	newStake, err := u256.Sub(vg.ActiveStake, l.Amount)
	newStake, err = requireNonNegative("withdraw activeStake", newStake, err)
	if err != nil {
		return err
	}
	vg.ActiveShares, vg.ActiveStake = newShares, newStake
	if err := red.w.PutVaultGlobalState(ctx, vg); err != nil {
		return err
	}

	vu, err := red.r.VaultUserStateOf(ctx, l.Vault, l.User)
	if err != nil {
		return err
	}
	newSharesOf, err := u256.Sub(vu.ActiveSharesOf, burnedShares)
	newSharesOf, err = requireNonNegative("withdraw activeSharesOf", newSharesOf, err)
	if err != nil {
		return err
	}
	vu.ActiveSharesOf = newSharesOf
	if err := red.w.PutVaultUserState(ctx, vu); err != nil {
		return err
	}

	// Withdrawn stake queues into the epoch after the one the withdrawal
	// lands in; it stays slashable until that epoch begins.
	epoch := gv.EpochAt(blockTimestamp) + 1
	gw, err := red.r.VaultGlobalWithdrawalsOf(ctx, l.Vault, epoch)
	if err != nil {
		return err
	}
	gw.WithdrawalShares = u256.Add(gw.WithdrawalShares, mintedShares)
	gw.Withdrawals = u256.Add(gw.Withdrawals, l.Amount)
	if err := red.w.PutVaultGlobalWithdrawals(ctx, gw); err != nil {
		return err
	}

	uw, err := red.r.VaultUserWithdrawalsOf(ctx, l.Vault, epoch, l.Claimer)
	if err != nil {
		return err
	}
	uw.WithdrawalSharesOf = u256.Add(uw.WithdrawalSharesOf, mintedShares)
	return red.w.PutVaultUserWithdrawals(ctx, uw)
}

func (red *Reducer) applyTransfer(ctx context.Context, l store.Log) error {
	if l.From.IsZero() || l.User.IsZero() {
		// Mint/burn transfers (one endpoint is the zero address) are
		// handled entirely by Deposit/Withdraw; this is a no-op.
		return nil
	}
	from, err := red.r.VaultUserStateOf(ctx, l.Vault, l.From)
	if err != nil {
		return err
	}
	newFrom, err := u256.Sub(from.ActiveSharesOf, l.Shares)
	newFrom, err = requireNonNegative("transfer activeSharesOf(from)", newFrom, err)
	if err != nil {
		return err
	}
	from.ActiveSharesOf = newFrom
	if err := red.w.PutVaultUserState(ctx, from); err != nil {
		return err
	}

	to, err := red.r.VaultUserStateOf(ctx, l.Vault, l.User)
	if err != nil {
		return err
	}
	to.ActiveSharesOf = u256.Add(to.ActiveSharesOf, l.Shares)
	return red.w.PutVaultUserState(ctx, to)
}

func (red *Reducer) applySetMaxNetworkLimit(ctx context.Context, l store.Log) error {
	gv, err := red.r.GlobalVarsOf(ctx, l.Vault)
	if err != nil {
		return err
	}
	ds, err := red.r.DelegatorNetworkStateOf(ctx, gv.Delegator, l.Subnetwork)
	if err != nil {
		return err
	}
	ds.MaxNetworkLimit = l.Amount
	if err := red.w.PutDelegatorNetworkState(ctx, ds); err != nil {
		return err
	}
	return red.clampNetworkLimit(ctx, gv, l.Subnetwork, l.Amount)
}

// clampNetworkLimit lowers networkLimit to min(maxLimit, current value) on
// whichever variant table the vault's delegator uses, so a reduced cap
// takes effect immediately.
func (red *Reducer) clampNetworkLimit(ctx context.Context, gv store.GlobalVars, sub address.Subnetwork, maxLimit *u256.Int) error {
	switch gv.DelegatorType {
	case store.DelegatorShares:
		n, err := red.r.Delegator0NetworkOf(ctx, gv.Delegator, sub)
		if err != nil {
			return err
		}
		n.NetworkLimit = u256.Min(n.NetworkLimit, maxLimit)
		return red.w.PutDelegator0Network(ctx, n)
	case store.DelegatorOperatorLimit:
		n, err := red.r.Delegator1NetworkOf(ctx, gv.Delegator, sub)
		if err != nil {
			return err
		}
		n.NetworkLimit = u256.Min(n.NetworkLimit, maxLimit)
		return red.w.PutDelegator1Network(ctx, n)
	case store.DelegatorSingleOperator:
		n, err := red.r.Delegator2NetworkOf(ctx, gv.Delegator, sub)
		if err != nil {
			return err
		}
		n.NetworkLimit = u256.Min(n.NetworkLimit, maxLimit)
		return red.w.PutDelegator2Network(ctx, n)
	case store.DelegatorFixedPair:
		// type 3 has no per-variant networkLimit table; maxNetworkLimit
		// itself is the cap applied at resolve time.
		return nil
	default:
		return fatal("set_max_network_limit: unsupported delegator_type", nil)
	}
}

func (red *Reducer) applySetNetworkLimit(ctx context.Context, l store.Log) error {
	gv, err := red.r.GlobalVarsOf(ctx, l.Vault)
	if err != nil {
		return err
	}
	switch gv.DelegatorType {
	case store.DelegatorShares:
		n, err := red.r.Delegator0NetworkOf(ctx, gv.Delegator, l.Subnetwork)
		if err != nil {
			return err
		}
		n.NetworkLimit = l.Amount
		return red.w.PutDelegator0Network(ctx, n)
	case store.DelegatorOperatorLimit:
		n, err := red.r.Delegator1NetworkOf(ctx, gv.Delegator, l.Subnetwork)
		if err != nil {
			return err
		}
		n.NetworkLimit = l.Amount
		return red.w.PutDelegator1Network(ctx, n)
	case store.DelegatorSingleOperator:
		n, err := red.r.Delegator2NetworkOf(ctx, gv.Delegator, l.Subnetwork)
		if err != nil {
			return err
		}
		n.NetworkLimit = l.Amount
		return red.w.PutDelegator2Network(ctx, n)
	default:
		return fatal("set_network_limit: fatal on delegator_type 3", nil)
	}
}

func (red *Reducer) applySetOperatorNetworkShares(ctx context.Context, l store.Log) error {
	gv, err := red.r.GlobalVarsOf(ctx, l.Vault)
	if err != nil {
		return err
	}
	if gv.DelegatorType != store.DelegatorShares {
		return fatal("set_operator_network_shares: not a type-0 delegator", nil)
	}
	n, err := red.r.Delegator0NetworkOf(ctx, gv.Delegator, l.Subnetwork)
	if err != nil {
		return err
	}
	op, err := red.r.Delegator0OperatorOf(ctx, gv.Delegator, l.Subnetwork, l.Operator)
	if err != nil {
		return err
	}
	old := op.OperatorNetworkShares
	op.OperatorNetworkShares = l.Shares
	if err := red.w.PutDelegator0Operator(ctx, op); err != nil {
		return err
	}
	// total += (new - old); total >= old is the invariant this maintains,
	// so subtracting old first can only underflow on existing corruption.
	withoutOld, err := u256.Sub(n.TotalOperatorNetworkShares, old)
	withoutOld, err = requireNonNegative("set_operator_network_shares total", withoutOld, err)
	if err != nil {
		return err
	}
	n.TotalOperatorNetworkShares = u256.Add(withoutOld, l.Shares)
	return red.w.PutDelegator0Network(ctx, n)
}

func (red *Reducer) applySetOperatorNetworkLimit(ctx context.Context, l store.Log) error {
	gv, err := red.r.GlobalVarsOf(ctx, l.Vault)
	if err != nil {
		return err
	}
	if gv.DelegatorType != store.DelegatorOperatorLimit {
		return fatal("set_operator_network_limit: not a type-1 delegator", nil)
	}
	op, err := red.r.Delegator1OperatorOf(ctx, gv.Delegator, l.Subnetwork, l.Operator)
	if err != nil {
		return err
	}
	op.OperatorNetworkLimit = l.Amount
	return red.w.PutDelegator1Operator(ctx, op)
}

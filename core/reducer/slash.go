package reducer

import (
	"context"

	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// applySlash implements OnSlash's redistribution: a slashed amount S is
// carved out of activeStake and the adjacent withdrawal pool(s),
// floor-divided proportionally, same-epoch and cross-epoch cases using
// different pools. activeShares is untouched; slashing dilutes per-share
// value instead.
func (red *Reducer) applySlash(ctx context.Context, l store.Log, blockTimestamp uint64) error {
	gv, err := red.r.GlobalVarsOf(ctx, l.Vault)
	if err != nil {
		return err
	}
	vg, err := red.r.VaultGlobalStateOf(ctx, l.Vault)
	if err != nil {
		return err
	}

	e := gv.EpochAt(blockTimestamp)
	captureEpoch := gv.EpochAt(l.CaptureTimestamp)
	a := vg.ActiveStake
	s := l.SlashedAmount

	wNext, err := red.r.VaultGlobalWithdrawalsOf(ctx, l.Vault, e+1)
	if err != nil {
		return err
	}

	if e == captureEpoch {
		slashA, slashWNext, err := slashSameEpoch(a, wNext.Withdrawals, s)
		if err != nil {
			return fatal("on_slash same-epoch redistribution", err)
		}
		newA, err := u256.Sub(a, slashA)
		newA, err = requireNonNegative("on_slash activeStake", newA, err)
		if err != nil {
			return err
		}
		newWNext, err := u256.Sub(wNext.Withdrawals, slashWNext)
		newWNext, err = requireNonNegative("on_slash withdrawals(e+1)", newWNext, err)
		if err != nil {
			return err
		}
		vg.ActiveStake = newA
		wNext.Withdrawals = newWNext
		if err := red.w.PutVaultGlobalState(ctx, vg); err != nil {
			return err
		}
		return red.w.PutVaultGlobalWithdrawals(ctx, wNext)
	}

	wCur, err := red.r.VaultGlobalWithdrawalsOf(ctx, l.Vault, e)
	if err != nil {
		return err
	}
	slashA, slashWNext, slashWCur, err := slashCrossEpoch(a, wCur.Withdrawals, wNext.Withdrawals, s)
	if err != nil {
		return fatal("on_slash cross-epoch redistribution", err)
	}
	newA, err := u256.Sub(a, slashA)
	newA, err = requireNonNegative("on_slash activeStake", newA, err)
	if err != nil {
		return err
	}
	newWCur, err := u256.Sub(wCur.Withdrawals, slashWCur)
	newWCur, err = requireNonNegative("on_slash withdrawals(e)", newWCur, err)
	if err != nil {
		return err
	}
	newWNext, err := u256.Sub(wNext.Withdrawals, slashWNext)
	newWNext, err = requireNonNegative("on_slash withdrawals(e+1)", newWNext, err)
	if err != nil {
		return err
	}
	vg.ActiveStake = newA
	wCur.Withdrawals = newWCur
	wNext.Withdrawals = newWNext
	if err := red.w.PutVaultGlobalState(ctx, vg); err != nil {
		return err
	}
	if err := red.w.PutVaultGlobalWithdrawals(ctx, wCur); err != nil {
		return err
	}
	return red.w.PutVaultGlobalWithdrawals(ctx, wNext)
}

// slashSameEpoch splits S proportionally across A and W_{e+1} when the
// slash's capture epoch matches the current block's epoch.
func slashSameEpoch(a, wNext, s *u256.Int) (slashA, slashWNext *u256.Int, err error) {
	total := u256.Add(a, wNext)
	if u256.IsZero(total) {
		return u256.Zero(), u256.Zero(), nil
	}
	slashA, err = u256.MulDivFloor(s, a, total)
	if err != nil {
		return nil, nil, err
	}
	slashWNext, err = u256.Sub(s, slashA)
	if err != nil {
		return nil, nil, err
	}
	return slashA, slashWNext, nil
}

// slashCrossEpoch splits S proportionally across A, W_e and W_{e+1} for a
// forced/cross-epoch slash, shifting any overflow of slash_{W_e} beyond the
// pool's actual balance into slash_{W_{e+1}}. The overflow shift is the one
// place a "negative" intermediate is clamped instead of treated as fatal.
func slashCrossEpoch(a, wCur, wNext, s *u256.Int) (slashA, slashWNext, slashWCur *u256.Int, err error) {
	total := u256.Add(a, u256.Add(wCur, wNext))
	if u256.IsZero(total) {
		return u256.Zero(), u256.Zero(), u256.Zero(), nil
	}
	slashA, err = u256.MulDivFloor(s, a, total)
	if err != nil {
		return nil, nil, nil, err
	}
	slashWNext, err = u256.MulDivFloor(s, wNext, total)
	if err != nil {
		return nil, nil, nil, err
	}
	remainder, err := u256.Sub(s, u256.Add(slashA, slashWNext))
	if err != nil {
		return nil, nil, nil, err
	}
	slashWCur = remainder
	if wCur.Lt(slashWCur) {
		overflow, err := u256.Sub(slashWCur, wCur)
		if err != nil {
			return nil, nil, nil, err
		}
		slashWNext = u256.Add(slashWNext, overflow)
		slashWCur = wCur
	}
	return slashA, slashWNext, slashWCur, nil
}

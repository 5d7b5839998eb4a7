package points

import (
	"context"

	"github.com/symbioticfi/points-indexer/core/resolver"
	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// processSubnetwork integrates one (network, identifier) config against
// block B: USD-value each opted-in operator/vault stake, carve the
// interval's reward budget by the operator fee, and distribute each half
// pro rata down to operator/vault and vault/staker rows.
func (e *Engine) processSubnetwork(
	ctx context.Context,
	cfg store.NetworkPointsConfig,
	vaults []store.GlobalVars,
	collaterals map[address.Address]store.Collateral,
	prices map[address.Address]*u256.Int,
	deltaT uint64,
	block uint64,
) error {
	sub := cfg.Subnetwork()

	// s_onv[operator][vault]: USD-valued effective stake per pair. Vaults
	// with per-operator-limit delegators are excluded from points.
	sonv := map[address.Address]map[address.Address]*u256.Int{}
	son := map[address.Address]*u256.Int{}
	svn := map[address.Address]*u256.Int{}
	sn := u256.Zero()

	vaultByAddr := map[address.Address]store.GlobalVars{}
	for _, gv := range vaults {
		vaultByAddr[gv.Vault] = gv
		if gv.DelegatorType == store.DelegatorOperatorLimit {
			continue
		}
		price, ok := prices[gv.Collateral]
		if !ok {
			continue
		}
		stakes, err := resolver.EffectiveStakeForVault(ctx, e.r, gv, sub)
		if err != nil {
			return err
		}
		if len(stakes) == 0 {
			continue
		}
		decimals := collaterals[gv.Collateral].Decimals
		for operator, stake := range stakes {
			usd, err := usdValue(stake, price, decimals)
			if err != nil {
				return err
			}
			if u256.IsZero(usd) {
				continue
			}
			if sonv[operator] == nil {
				sonv[operator] = map[address.Address]*u256.Int{}
			}
			sonv[operator][gv.Vault] = usd
			son[operator] = u256.Add(zeroIfNil(son[operator]), usd)
			svn[gv.Vault] = u256.Add(zeroIfNil(svn[gv.Vault]), usd)
			sn = u256.Add(sn, usd)
		}
	}
	if u256.IsZero(sn) {
		return nil
	}

	// s_uv[v][user]: each staker's USD-valued active balance, and the
	// per-vault totals s_v[v].
	suv := map[address.Address]map[address.Address]*u256.Int{}
	sv := map[address.Address]*u256.Int{}
	for vault := range svn {
		gv := vaultByAddr[vault]
		price, ok := prices[gv.Collateral]
		if !ok {
			continue
		}
		decimals := collaterals[gv.Collateral].Decimals
		balances, err := resolver.ActiveBalancesOf(ctx, e.r, vault)
		if err != nil {
			return err
		}
		for user, bal := range balances {
			usd, err := usdValue(bal, price, decimals)
			if err != nil {
				return err
			}
			if u256.IsZero(usd) {
				continue
			}
			if suv[vault] == nil {
				suv[vault] = map[address.Address]*u256.Int{}
			}
			suv[vault][user] = usd
			sv[vault] = u256.Add(zeroIfNil(sv[vault]), usd)
		}
	}

	// Reward budget for the interval, then the operator/network fee split.
	pnt, err := rewardBudget(cfg.MaxRate, sn, deltaT)
	if err != nil {
		return err
	}
	operatorFee := u256.FromUint64(uint64(cfg.OperatorFeeBps))
	networkShareBps, err := u256.Sub(bpsDenom, operatorFee)
	if err != nil {
		return err
	}
	// Both fee splits divide once, at the end, so floor rounding is applied
	// to the full product rather than compounding across two divisions. The
	// fee-weighted budgets and the combined denominator stay well inside 256
	// bits, and MulDivFloor's intermediate product is 512-bit.
	pntOperator, err := u256.Mul(pnt, operatorFee)
	if err != nil {
		return err
	}
	pntNetwork, err := u256.Mul(pnt, networkShareBps)
	if err != nil {
		return err
	}
	feeDenom, err := u256.Mul(bpsDenom, sn)
	if err != nil {
		return err
	}

	for operator, sonVal := range son {
		// pno = operatorFee * pnt * s_on / (10000 * s_n).
		pno, err := u256.MulDivFloor(pntOperator, sonVal, feeDenom)
		if err != nil {
			return err
		}
		if u256.IsZero(pno) {
			continue
		}
		for vault, sonvVal := range sonv[operator] {
			ponv, err := u256.MulDivFloor(pno, sonvVal, sonVal)
			if err != nil {
				return err
			}
			if u256.IsZero(ponv) {
				continue
			}
			row := store.PointsRow{Network: cfg.Network, Identifier: cfg.Identifier, Operator: operator, Vault: vault}
			if err := e.w.AddNetworkOperatorVaultPoints(ctx, row, ponv); err != nil {
				return err
			}
		}
	}

	for vault, svnVal := range svn {
		if u256.IsZero(sv[vault]) {
			continue
		}
		// pnv = (10000 - operatorFee) * pnt * s_vn / (10000 * s_n).
		pnv, err := u256.MulDivFloor(pntNetwork, svnVal, feeDenom)
		if err != nil {
			return err
		}
		if u256.IsZero(pnv) {
			continue
		}
		for user, suvVal := range suv[vault] {
			pnvu, err := u256.MulDivFloor(pnv, suvVal, sv[vault])
			if err != nil {
				return err
			}
			if u256.IsZero(pnvu) {
				continue
			}
			row := store.PointsRow{Network: cfg.Network, Identifier: cfg.Identifier, Vault: vault, Staker: user}
			if err := e.w.AddNetworkVaultUserPoints(ctx, row, pnvu); err != nil {
				return err
			}
		}
	}

	cfg.BlockNumberProcessed = block
	return e.w.PutNetworkPointsConfig(ctx, cfg)
}

// rewardBudget computes p_nt = max_rate * s_n * Δt / (10^24 * 3600) with a
// single floor division over the full product.
func rewardBudget(maxRate, sn *u256.Int, deltaT uint64) (*u256.Int, error) {
	rateTime, err := u256.Mul(maxRate, u256.FromUint64(deltaT))
	if err != nil {
		return nil, err
	}
	denom, err := u256.Mul(usdScale, secPerHour)
	if err != nil {
		return nil, err
	}
	return u256.MulDivFloor(rateTime, sn, denom)
}

func zeroIfNil(v *u256.Int) *u256.Int {
	if v == nil {
		return u256.Zero()
	}
	return v
}

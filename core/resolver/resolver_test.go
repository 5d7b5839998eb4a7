package resolver_test

import (
	"context"
	"testing"

	"github.com/symbioticfi/points-indexer/core/resolver"
	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/teststore"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

func addr(b byte) address.Address {
	var a address.Address
	a[19] = b
	return a
}

func e18(n uint64) *u256.Int {
	scale := new(u256.Int).Exp(u256.FromUint64(10), u256.FromUint64(18))
	return new(u256.Int).Mul(u256.FromUint64(n), scale)
}

func optInBoth(t *testing.T, ctx context.Context, st *teststore.Store, operator, network, vault address.Address) {
	t.Helper()
	if err := st.PutOptIn(ctx, store.OptInState{Kind: store.OptInKindOperatorNetwork, Left: operator, Right: network, Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutOptIn(ctx, store.OptInState{Kind: store.OptInKindOperatorVault, Left: operator, Right: vault, Active: true}); err != nil {
		t.Fatal(err)
	}
}

// TestEffectiveStakeSharesVariant covers the DelegatorShares (type 0)
// pro-rata dispatch branch for shares-based delegators.
func TestEffectiveStakeSharesVariant(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault, delegator, operator, network := addr(1), addr(2), addr(3), addr(4)
	sub := address.Subnetwork{Network: network}

	gv := store.GlobalVars{Vault: vault, Delegator: delegator, DelegatorType: store.DelegatorShares, Collateral: addr(9)}
	if err := st.PutGlobalVars(ctx, gv); err != nil {
		t.Fatal(err)
	}
	if err := st.PutVaultGlobalState(ctx, store.VaultGlobalState{Vault: vault, ActiveShares: e18(1000), ActiveStake: e18(1000)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator0Network(ctx, store.Delegator0Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: e18(500), TotalOperatorNetworkShares: e18(100)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator0Operator(ctx, store.Delegator0Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkShares: e18(25)}); err != nil {
		t.Fatal(err)
	}
	optInBoth(t, ctx, st, operator, network, vault)

	stake, err := resolver.EffectiveStake(ctx, st, gv, sub, operator)
	if err != nil {
		t.Fatal(err)
	}
	// capped = min(1000, 500) = 500; effective = 25/100 * 500 = 125.
	want := e18(125)
	if stake.Cmp(want) != 0 {
		t.Fatalf("effective stake = %s, want %s", stake, want)
	}
}

// TestEffectiveStakeOperatorLimitVariant covers the DelegatorOperatorLimit
// (type 1) min-of-three dispatch branch.
func TestEffectiveStakeOperatorLimitVariant(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault, delegator, operator, network := addr(1), addr(2), addr(3), addr(4)
	sub := address.Subnetwork{Network: network}

	gv := store.GlobalVars{Vault: vault, Delegator: delegator, DelegatorType: store.DelegatorOperatorLimit, Collateral: addr(9)}
	if err := st.PutGlobalVars(ctx, gv); err != nil {
		t.Fatal(err)
	}
	if err := st.PutVaultGlobalState(ctx, store.VaultGlobalState{Vault: vault, ActiveShares: e18(1000), ActiveStake: e18(1000)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator1Network(ctx, store.Delegator1Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: e18(300)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator1Operator(ctx, store.Delegator1Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkLimit: e18(900)}); err != nil {
		t.Fatal(err)
	}
	optInBoth(t, ctx, st, operator, network, vault)

	stake, err := resolver.EffectiveStake(ctx, st, gv, sub, operator)
	if err != nil {
		t.Fatal(err)
	}
	want := e18(300) // min(1000, 300, 900)
	if stake.Cmp(want) != 0 {
		t.Fatalf("effective stake = %s, want %s", stake, want)
	}
}

// TestEffectiveStakeSingleOperatorVariant covers DelegatorSingleOperator
// (type 2): only the vault's fixed operator ever gets nonzero stake.
func TestEffectiveStakeSingleOperatorVariant(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault, delegator, operator, other, network := addr(1), addr(2), addr(3), addr(7), addr(4)
	sub := address.Subnetwork{Network: network}

	gv := store.GlobalVars{Vault: vault, Delegator: delegator, DelegatorType: store.DelegatorSingleOperator, Collateral: addr(9), Operator: operator, HasOperator: true}
	if err := st.PutGlobalVars(ctx, gv); err != nil {
		t.Fatal(err)
	}
	if err := st.PutVaultGlobalState(ctx, store.VaultGlobalState{Vault: vault, ActiveShares: e18(1000), ActiveStake: e18(1000)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator2Network(ctx, store.Delegator2Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: e18(700)}); err != nil {
		t.Fatal(err)
	}
	optInBoth(t, ctx, st, operator, network, vault)
	optInBoth(t, ctx, st, other, network, vault)

	stake, err := resolver.EffectiveStake(ctx, st, gv, sub, operator)
	if err != nil {
		t.Fatal(err)
	}
	if want := e18(700); stake.Cmp(want) != 0 {
		t.Fatalf("fixed operator stake = %s, want %s", stake, want)
	}

	otherStake, err := resolver.EffectiveStake(ctx, st, gv, sub, other)
	if err != nil {
		t.Fatal(err)
	}
	if !u256.IsZero(otherStake) {
		t.Fatalf("non-fixed operator stake = %s, want 0", otherStake)
	}
}

// TestOptOutZeroesEffectiveStake checks toggling an
// opt-in off zeroes the resolver's output for that pair regardless of
// delegator variant or underlying caps.
func TestOptOutZeroesEffectiveStake(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault, delegator, operator, network := addr(1), addr(2), addr(3), addr(4)
	sub := address.Subnetwork{Network: network}

	gv := store.GlobalVars{Vault: vault, Delegator: delegator, DelegatorType: store.DelegatorShares, Collateral: addr(9)}
	if err := st.PutGlobalVars(ctx, gv); err != nil {
		t.Fatal(err)
	}
	if err := st.PutVaultGlobalState(ctx, store.VaultGlobalState{Vault: vault, ActiveShares: e18(1000), ActiveStake: e18(1000)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator0Network(ctx, store.Delegator0Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: e18(500), TotalOperatorNetworkShares: e18(100)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator0Operator(ctx, store.Delegator0Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkShares: e18(25)}); err != nil {
		t.Fatal(err)
	}
	optInBoth(t, ctx, st, operator, network, vault)

	before, err := resolver.EffectiveStake(ctx, st, gv, sub, operator)
	if err != nil {
		t.Fatal(err)
	}
	if u256.IsZero(before) {
		t.Fatal("expected nonzero stake before opt-out")
	}

	if err := st.PutOptIn(ctx, store.OptInState{Kind: store.OptInKindOperatorNetwork, Left: operator, Right: network, Active: false}); err != nil {
		t.Fatal(err)
	}

	after, err := resolver.EffectiveStake(ctx, st, gv, sub, operator)
	if err != nil {
		t.Fatal(err)
	}
	if !u256.IsZero(after) {
		t.Fatalf("expected zero stake after opt-out, got %s", after)
	}
}

// TestEffectiveStakeMonotoneInActiveStake checks
// increasing the vault's activeStake (all else equal) never decreases
// effective_stake for a fixed operator in the shares variant.
func TestEffectiveStakeMonotoneInActiveStake(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault, delegator, operator, network := addr(1), addr(2), addr(3), addr(4)
	sub := address.Subnetwork{Network: network}

	gv := store.GlobalVars{Vault: vault, Delegator: delegator, DelegatorType: store.DelegatorShares, Collateral: addr(9)}
	if err := st.PutGlobalVars(ctx, gv); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator0Network(ctx, store.Delegator0Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: e18(10_000), TotalOperatorNetworkShares: e18(100)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator0Operator(ctx, store.Delegator0Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkShares: e18(25)}); err != nil {
		t.Fatal(err)
	}
	optInBoth(t, ctx, st, operator, network, vault)

	if err := st.PutVaultGlobalState(ctx, store.VaultGlobalState{Vault: vault, ActiveShares: e18(1000), ActiveStake: e18(400)}); err != nil {
		t.Fatal(err)
	}
	low, err := resolver.EffectiveStake(ctx, st, gv, sub, operator)
	if err != nil {
		t.Fatal(err)
	}

	if err := st.PutVaultGlobalState(ctx, store.VaultGlobalState{Vault: vault, ActiveShares: e18(1000), ActiveStake: e18(800)}); err != nil {
		t.Fatal(err)
	}
	high, err := resolver.EffectiveStake(ctx, st, gv, sub, operator)
	if err != nil {
		t.Fatal(err)
	}

	if high.Cmp(low) < 0 {
		t.Fatalf("effective stake decreased from %s to %s as activeStake rose", low, high)
	}
}

// TestActiveBalanceOfProRata covers active_balance_of's pro-rata share of
// vault stake.
func TestActiveBalanceOfProRata(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault, user := addr(1), addr(2)
	if err := st.PutVaultGlobalState(ctx, store.VaultGlobalState{Vault: vault, ActiveShares: e18(1000), ActiveStake: e18(2000)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutVaultUserState(ctx, store.VaultUserState{Vault: vault, User: user, ActiveSharesOf: e18(250)}); err != nil {
		t.Fatal(err)
	}

	bal, err := resolver.ActiveBalanceOf(ctx, st, vault, user)
	if err != nil {
		t.Fatal(err)
	}
	if want := e18(500); bal.Cmp(want) != 0 {
		t.Fatalf("active balance = %s, want %s", bal, want)
	}
}

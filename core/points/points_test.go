package points_test

import (
	"context"
	"testing"

	"github.com/symbioticfi/points-indexer/core/points"
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

// usdScale matches points.go's internal 10^24 scale for max_rate.
func usdScale() *u256.Int { return u256.MustFromDecimal("1000000000000000000000000") }

// fixture wires one subnetwork, one DelegatorShares vault with all shares
// held by a single operator, and a single staker holding all of the
// vault's shares, so effective stake and active balance are both exactly
// 1000 raw units at decimals=0 / price=1.
func fixture(t *testing.T, ctx context.Context) (*teststore.Store, store.GlobalVars, address.Address) {
	t.Helper()
	st := teststore.New()

	network, identifier := addr(1), address.Identifier{}
	vault, delegator, operator, staker, collateral := addr(2), addr(3), addr(4), addr(5), addr(6)
	sub := address.Subnetwork{Network: network, Identifier: identifier}

	gv := store.GlobalVars{Vault: vault, Delegator: delegator, DelegatorType: store.DelegatorShares, Collateral: collateral}
	if err := st.PutGlobalVars(ctx, gv); err != nil {
		t.Fatal(err)
	}
	if err := st.PutVaultGlobalState(ctx, store.VaultGlobalState{Vault: vault, ActiveShares: u256.FromUint64(1000), ActiveStake: u256.FromUint64(1000)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutVaultUserState(ctx, store.VaultUserState{Vault: vault, User: staker, ActiveSharesOf: u256.FromUint64(1000)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator0Network(ctx, store.Delegator0Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.FromUint64(10_000), TotalOperatorNetworkShares: u256.FromUint64(100)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDelegator0Operator(ctx, store.Delegator0Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkShares: u256.FromUint64(100)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutOptIn(ctx, store.OptInState{Kind: store.OptInKindOperatorNetwork, Left: operator, Right: network, Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutOptIn(ctx, store.OptInState{Kind: store.OptInKindOperatorVault, Left: operator, Right: vault, Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutCollateral(ctx, store.Collateral{Address: collateral, Decimals: 0, Symbol: "TEST"}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutPrice(ctx, store.Price{Collateral: collateral, BlockNumber: 0, Price: u256.FromUint64(1)}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutBlock(ctx, store.Block{Number: 0, Timestamp: 0}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutBlock(ctx, store.Block{Number: 1, Timestamp: 3600}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutBlock(ctx, store.Block{Number: 2, Timestamp: 7200}); err != nil {
		t.Fatal(err)
	}
	cfg := store.NetworkPointsConfig{
		Network: network, Identifier: identifier,
		MaxRate: usdScale(), TargetStake: u256.FromUint64(1_000_000),
		NetworkFeeBps: 7000, OperatorFeeBps: 3000,
		BlockNumberProcessed: 0,
	}
	if err := st.PutNetworkPointsConfig(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	return st, gv, sub.Network
}

// TestProcessBlockSplitsBudgetByFee checks one hour's budget, with a 30%
// operator fee, splits 300/700 between the network-operator-vault row and
// the network-vault-staker row, and the two halves sum back to the full
// per-block budget.
func TestProcessBlockSplitsBudgetByFee(t *testing.T) {
	ctx := context.Background()
	st, gv, network := fixture(t, ctx)
	eng := points.New(st, st, nil)

	if err := eng.ProcessBlock(ctx, 1); err != nil {
		t.Fatalf("process block 1: %v", err)
	}

	onv := st.NetworkOperatorVaultPoints(store.PointsRow{Network: network, Vault: gv.Vault, Operator: addr(4)})
	nvu := st.NetworkVaultUserPoints(store.PointsRow{Network: network, Vault: gv.Vault, Staker: addr(5)})

	if want := u256.FromUint64(300); onv.Cmp(want) != 0 {
		t.Fatalf("operator/vault points = %s, want %s", onv, want)
	}
	if want := u256.FromUint64(700); nvu.Cmp(want) != 0 {
		t.Fatalf("vault/user points = %s, want %s", nvu, want)
	}
	total := u256.Add(onv, nvu)
	if want := u256.FromUint64(1000); total.Cmp(want) != 0 {
		t.Fatalf("total points = %s, want %s (budget conservation)", total, want)
	}
}

// TestProcessBlockMonotoneAccrual checks points are monotone
// non-decreasing block over block for a receiver with nonzero stake.
func TestProcessBlockMonotoneAccrual(t *testing.T) {
	ctx := context.Background()
	st, gv, network := fixture(t, ctx)
	eng := points.New(st, st, nil)

	if err := eng.ProcessBlock(ctx, 1); err != nil {
		t.Fatal(err)
	}
	afterBlock1 := st.NetworkVaultUserPoints(store.PointsRow{Network: network, Vault: gv.Vault, Staker: addr(5)})

	if err := eng.ProcessBlock(ctx, 2); err != nil {
		t.Fatal(err)
	}
	afterBlock2 := st.NetworkVaultUserPoints(store.PointsRow{Network: network, Vault: gv.Vault, Staker: addr(5)})

	if afterBlock2.Cmp(afterBlock1) < 0 {
		t.Fatalf("points decreased from %s to %s", afterBlock1, afterBlock2)
	}
	if afterBlock2.Cmp(afterBlock1) == 0 {
		t.Fatalf("points did not accrue further: still %s", afterBlock2)
	}
}

// TestSnapshotTakenOnceAt200 checks the snapshot policy fires exactly
// once per interval boundary, even if that block is (re-)processed more
// than once.
func TestSnapshotTakenOnceAt200(t *testing.T) {
	ctx := context.Background()
	st, _, _ := fixture(t, ctx)
	eng := points.New(st, st, nil)

	var ts uint64
	for b := uint64(1); b <= 200; b++ {
		ts += 3600
		if err := st.PutBlock(ctx, store.Block{Number: b, Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.PutBlock(ctx, store.Block{Number: 0, Timestamp: 0}); err != nil {
		t.Fatal(err)
	}
	for b := uint64(1); b <= 200; b++ {
		if err := eng.ProcessBlock(ctx, b); err != nil {
			t.Fatalf("block %d: %v", b, err)
		}
	}
	if got := st.SnapshotCount(); got != 1 {
		t.Fatalf("snapshot count after first pass = %d, want 1", got)
	}

	// Re-processing block 200 (e.g. after a crash-restart replay) must not
	// take a second snapshot.
	if err := eng.ProcessBlock(ctx, 200); err != nil {
		t.Fatalf("reprocess block 200: %v", err)
	}
	if got := st.SnapshotCount(); got != 1 {
		t.Fatalf("snapshot count after reprocessing block 200 = %d, want 1", got)
	}
}

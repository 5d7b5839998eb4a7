package reducer_test

import (
	"context"
	"testing"

	"github.com/symbioticfi/points-indexer/core/reducer"
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

func mustEqual(t *testing.T, label string, got, want *u256.Int) {
	t.Helper()
	if got.Cmp(want) != 0 {
		t.Fatalf("%s: got %s, want %s", label, got, want)
	}
}

// TestDeposit checks a deposit credits both the vault aggregate and the
// depositor's share balance.
func TestDeposit(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault, user := addr(1), addr(2)
	red := reducer.New(st, st)

	log := store.Log{
		BlockNumber: 1, LogIndex: 0, Type: store.LogDeposit,
		Vault: vault, User: user, Amount: e18(1000), Shares: e18(1000),
	}
	if err := red.ApplyBlock(ctx, 1, 1_000_000, []store.Log{log}); err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}

	vg, err := st.VaultGlobalStateOf(ctx, vault)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "activeStake", vg.ActiveStake, e18(1000))
	vu, err := st.VaultUserStateOf(ctx, vault, user)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "activeSharesOf", vu.ActiveSharesOf, e18(1000))
}

// TestSlashSameEpoch checks a slash captured in the current epoch comes
// entirely out of activeStake when the next epoch's withdrawal pool is
// empty.
func TestSlashSameEpoch(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault := addr(1)
	user := addr(2)
	gv := store.GlobalVars{Vault: vault, Delegator: addr(3), DelegatorType: store.DelegatorShares, Collateral: addr(4), EpochDurationInit: 0, EpochDuration: 1_000_000}
	if err := st.PutGlobalVars(ctx, gv); err != nil {
		t.Fatal(err)
	}
	red := reducer.New(st, st)

	deposit := store.Log{BlockNumber: 1, LogIndex: 0, Type: store.LogDeposit, Vault: vault, User: user, Amount: e18(1000), Shares: e18(1000)}
	if err := red.ApplyBlock(ctx, 1, 500, []store.Log{deposit}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	slash := store.Log{
		BlockNumber: 2, LogIndex: 0, Type: store.LogOnSlash, Vault: vault,
		CaptureTimestamp: 500, SlashedAmount: e18(200),
	}
	// Both the block's own timestamp (500) and CaptureTimestamp (500) fall
	// in epoch 0 (epoch duration 1e6), so this is the same-epoch branch.
	if err := red.ApplyBlock(ctx, 2, 500, []store.Log{slash}); err != nil {
		t.Fatalf("slash: %v", err)
	}

	vg, err := st.VaultGlobalStateOf(ctx, vault)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "activeStake after same-epoch slash", vg.ActiveStake, e18(800))

	w, err := st.VaultGlobalWithdrawalsOf(ctx, vault, gv.EpochAt(500)+1)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "W_{e+1} unchanged", w.Withdrawals, u256.Zero())
}

// TestWithdrawThenCrossEpochSlash checks a cross-epoch slash splits
// proportionally between activeStake and the pending withdrawal pool:
// 300 slashed against 600 active + 400 pending lands 180/120.
func TestWithdrawThenCrossEpochSlash(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault := addr(1)
	user := addr(2)
	gv := store.GlobalVars{Vault: vault, Delegator: addr(3), DelegatorType: store.DelegatorShares, Collateral: addr(4), EpochDurationInit: 0, EpochDuration: 100}
	if err := st.PutGlobalVars(ctx, gv); err != nil {
		t.Fatal(err)
	}
	red := reducer.New(st, st)

	deposit := store.Log{BlockNumber: 1, LogIndex: 0, Type: store.LogDeposit, Vault: vault, User: user, Amount: e18(1000), Shares: e18(1000)}
	if err := red.ApplyBlock(ctx, 1, 10, []store.Log{deposit}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	withdraw := store.Log{
		BlockNumber: 2, LogIndex: 0, Type: store.LogWithdraw, Vault: vault, User: user, Claimer: user,
		Amount: e18(400), Shares: e18(400), MintedShares: e18(400),
	}
	if err := red.ApplyBlock(ctx, 2, 50, []store.Log{withdraw}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	vg, err := st.VaultGlobalStateOf(ctx, vault)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "activeStake after withdraw", vg.ActiveStake, e18(600))
	withdrawPoolEpoch := gv.EpochAt(50) + 1 // epoch 1
	w1, err := st.VaultGlobalWithdrawalsOf(ctx, vault, withdrawPoolEpoch)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "W_{e+1} after withdraw", w1.Withdrawals, e18(400))
	uw, err := st.VaultUserWithdrawalsOf(ctx, vault, withdrawPoolEpoch, user)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "claimer's withdrawal shares", uw.WithdrawalSharesOf, e18(400))

	// Slash's block falls in epoch 0 (timestamp 60), its captureTimestamp
	// (200) falls in epoch 2: different epochs, so this is the
	// cross-epoch branch, and withdrawPoolEpoch(=1) plays W_{e+1}.
	slash := store.Log{
		BlockNumber: 3, LogIndex: 0, Type: store.LogOnSlash, Vault: vault,
		CaptureTimestamp: 200, SlashedAmount: e18(300),
	}
	if err := red.ApplyBlock(ctx, 3, 60, []store.Log{slash}); err != nil {
		t.Fatalf("slash: %v", err)
	}

	vg, err = st.VaultGlobalStateOf(ctx, vault)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "activeStake after cross-epoch slash", vg.ActiveStake, e18(420))
	w1, err = st.VaultGlobalWithdrawalsOf(ctx, vault, withdrawPoolEpoch)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "W_{e+1} after cross-epoch slash", w1.Withdrawals, e18(280))
}

// TestTransferNeutrality checks a share transfer moves balance between
// users without changing the vault's aggregate shares.
func TestTransferNeutrality(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	vault, a, b := addr(1), addr(2), addr(3)
	red := reducer.New(st, st)

	deposit := store.Log{BlockNumber: 1, LogIndex: 0, Type: store.LogDeposit, Vault: vault, User: a, Amount: e18(100), Shares: e18(100)}
	if err := red.ApplyBlock(ctx, 1, 1, []store.Log{deposit}); err != nil {
		t.Fatal(err)
	}
	vgBefore, _ := st.VaultGlobalStateOf(ctx, vault)

	transfer := store.Log{BlockNumber: 2, LogIndex: 0, Type: store.LogTransfer, Vault: vault, From: a, User: b, Shares: e18(40)}
	if err := red.ApplyBlock(ctx, 2, 2, []store.Log{transfer}); err != nil {
		t.Fatal(err)
	}

	vgAfter, err := st.VaultGlobalStateOf(ctx, vault)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "activeShares preserved by transfer", vgAfter.ActiveShares, vgBefore.ActiveShares)

	ua, err := st.VaultUserStateOf(ctx, vault, a)
	if err != nil {
		t.Fatal(err)
	}
	ub, err := st.VaultUserStateOf(ctx, vault, b)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, "from balance", ua.ActiveSharesOf, e18(60))
	mustEqual(t, "to balance", ub.ActiveSharesOf, e18(40))
	sum := u256.Add(ua.ActiveSharesOf, ub.ActiveSharesOf)
	mustEqual(t, "sum of shares preserved", sum, e18(100))
}

// TestOptOutTogglesResolverInputsToFalse checks opt-in then opt-out
// round-trips the stored boolean; core/resolver's tests check the
// resulting effective stake is zero.
func TestOptOutTogglesResolverInputsToFalse(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	operator, network := addr(5), addr(6)
	red := reducer.New(st, st)

	optIn := store.Log{BlockNumber: 1, LogIndex: 0, Type: store.LogOptIn, OptInKind: store.OptInKindOperatorNetwork, Operator: operator, Subnetwork: address.Subnetwork{Network: network}}
	if err := red.ApplyBlock(ctx, 1, 1, []store.Log{optIn}); err != nil {
		t.Fatal(err)
	}
	active, err := st.IsOptedIn(ctx, store.OptInKindOperatorNetwork, operator, network)
	if err != nil || !active {
		t.Fatalf("expected opted in, got %v err=%v", active, err)
	}

	optOut := store.Log{BlockNumber: 2, LogIndex: 0, Type: store.LogOptOut, OptInKind: store.OptInKindOperatorNetwork, Operator: operator, Subnetwork: address.Subnetwork{Network: network}}
	if err := red.ApplyBlock(ctx, 2, 2, []store.Log{optOut}); err != nil {
		t.Fatal(err)
	}
	active, err = st.IsOptedIn(ctx, store.OptInKindOperatorNetwork, operator, network)
	if err != nil || active {
		t.Fatalf("expected opted out, got %v err=%v", active, err)
	}
}

// TestOutOfOrderLogsIsFatal checks logs fed out of log-index order are
// rejected rather than silently reordered.
func TestOutOfOrderLogsIsFatal(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	red := reducer.New(st, st)

	logs := []store.Log{
		{BlockNumber: 1, LogIndex: 1, Type: store.LogDeposit, Vault: addr(1), User: addr(2), Amount: u256.Zero(), Shares: u256.Zero()},
		{BlockNumber: 1, LogIndex: 0, Type: store.LogDeposit, Vault: addr(1), User: addr(2), Amount: u256.Zero(), Shares: u256.Zero()},
	}
	if err := red.ApplyBlock(ctx, 1, 1, logs); err == nil {
		t.Fatal("expected ErrOutOfOrder, got nil")
	}
}

// TestUnknownLogTypeIsFatal checks an unrecognized log type surfaces as
// ErrFatal, never as a retryable error.
func TestUnknownLogTypeIsFatal(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	red := reducer.New(st, st)

	logs := []store.Log{{BlockNumber: 1, LogIndex: 0, Type: store.LogType("bogus")}}
	err := red.ApplyBlock(ctx, 1, 1, logs)
	if err == nil {
		t.Fatal("expected fatal error for unknown log type")
	}
	var fatalErr *reducer.ErrFatal
	if !asErrFatal(err, &fatalErr) {
		t.Fatalf("expected *reducer.ErrFatal, got %T: %v", err, err)
	}
}

func asErrFatal(err error, target **reducer.ErrFatal) bool {
	for err != nil {
		if fe, ok := err.(*reducer.ErrFatal); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Package reducer replays ordered on-chain logs into materialized state:
// vault shares, active stake, withdrawal pools, the delegator limit
// hierarchy, and opt-in state, including the slash redistribution
// algorithm. It performs no reads it didn't just write within the same
// block, beyond the state store.Store already holds.
package reducer

import (
	"context"
	"errors"
	"fmt"

	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// ErrOutOfOrder is fatal: logs must arrive sorted by (blockNumber, logIndex);
// a reducer fed logs out of order has an upstream ABI or decoding bug that
// must not be auto-healed.
var ErrOutOfOrder = errors.New("reducer: logs out of order")

// ErrFatal wraps any condition that signals reducer/ABI skew: an unknown
// log type, a delegator-variant mismatch, or a negative resulting
// quantity. The driver must stop and exit for operator inspection on
// seeing this, never retry.
type ErrFatal struct {
	Reason string
	Err    error
}

func (e *ErrFatal) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reducer: fatal: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("reducer: fatal: %s", e.Reason)
}
func (e *ErrFatal) Unwrap() error { return e.Err }

func fatal(reason string, err error) error { return &ErrFatal{Reason: reason, Err: err} }

// Reader is the state reducer's read dependency on core/store, satisfied
// by *store.Store. Reads happen against the live pool rather than the
// in-flight Batch: the driver is the store's only writer, so a block's
// reads always see the fully-committed result of every prior block.
type Reader interface {
	GlobalVarsOf(ctx context.Context, vault address.Address) (store.GlobalVars, error)
	VaultGlobalStateOf(ctx context.Context, vault address.Address) (store.VaultGlobalState, error)
	VaultUserStateOf(ctx context.Context, vault, user address.Address) (store.VaultUserState, error)
	VaultGlobalWithdrawalsOf(ctx context.Context, vault address.Address, epoch uint64) (store.VaultGlobalWithdrawalsState, error)
	VaultUserWithdrawalsOf(ctx context.Context, vault address.Address, epoch uint64, user address.Address) (store.VaultUserWithdrawalsState, error)
	DelegatorNetworkStateOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (store.DelegatorNetworkState, error)
	Delegator0NetworkOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (store.Delegator0Network, error)
	Delegator0OperatorOf(ctx context.Context, delegator address.Address, sub address.Subnetwork, operator address.Address) (store.Delegator0Operator, error)
	Delegator1NetworkOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (store.Delegator1Network, error)
	Delegator1OperatorOf(ctx context.Context, delegator address.Address, sub address.Subnetwork, operator address.Address) (store.Delegator1Operator, error)
	Delegator2NetworkOf(ctx context.Context, delegator address.Address, sub address.Subnetwork) (store.Delegator2Network, error)
}

// Writer is the state reducer's write dependency, satisfied by *store.Batch.
type Writer interface {
	PutGlobalVars(ctx context.Context, g store.GlobalVars) error
	PutVaultGlobalState(ctx context.Context, v store.VaultGlobalState) error
	PutVaultUserState(ctx context.Context, v store.VaultUserState) error
	PutVaultGlobalWithdrawals(ctx context.Context, w store.VaultGlobalWithdrawalsState) error
	PutVaultUserWithdrawals(ctx context.Context, w store.VaultUserWithdrawalsState) error
	PutDelegatorNetworkState(ctx context.Context, d store.DelegatorNetworkState) error
	PutDelegator0Network(ctx context.Context, d store.Delegator0Network) error
	PutDelegator0Operator(ctx context.Context, d store.Delegator0Operator) error
	PutDelegator1Network(ctx context.Context, d store.Delegator1Network) error
	PutDelegator1Operator(ctx context.Context, d store.Delegator1Operator) error
	PutDelegator2Network(ctx context.Context, d store.Delegator2Network) error
	PutOptIn(ctx context.Context, o store.OptInState) error
	AdvanceTimepoint(ctx context.Context, name string, block uint64) error
}

// Reducer replays logs against Reader/Writer.
type Reducer struct {
	r Reader
	w Writer
}

func New(r Reader, w Writer) *Reducer { return &Reducer{r: r, w: w} }

// ApplyBlock replays every log for block B, in order, then advances the
// state cursor to B. logs must already be sorted by (blockNumber, logIndex);
// ApplyBlock defensively re-validates that. blockTimestamp is the wall-clock
// time of block B itself, needed by Withdraw for the withdrawal pool's epoch
// and by OnSlash to tell a same-epoch slash from a cross-epoch one.
func (red *Reducer) ApplyBlock(ctx context.Context, blockNumber, blockTimestamp uint64, logs []store.Log) error {
	var lastIndex int64 = -1
	for _, l := range logs {
		if l.BlockNumber != blockNumber {
			return fmt.Errorf("%w: log for block %d in batch for block %d", ErrOutOfOrder, l.BlockNumber, blockNumber)
		}
		if int64(l.LogIndex) <= lastIndex {
			return fmt.Errorf("%w: log_index %d did not increase past %d", ErrOutOfOrder, l.LogIndex, lastIndex)
		}
		lastIndex = int64(l.LogIndex)
		if err := red.apply(ctx, l, blockTimestamp); err != nil {
			return err
		}
	}
	return red.w.AdvanceTimepoint(ctx, store.CursorState, blockNumber)
}

func (red *Reducer) apply(ctx context.Context, l store.Log, blockTimestamp uint64) error {
	switch l.Type {
	case store.LogOptIn, store.LogOptOut:
		return red.applyOptIn(ctx, l)
	case store.LogDeposit:
		return red.applyDeposit(ctx, l)
	case store.LogWithdraw:
		return red.applyWithdraw(ctx, l, blockTimestamp)
	case store.LogTransfer:
		return red.applyTransfer(ctx, l)
	case store.LogOnSlash:
		return red.applySlash(ctx, l, blockTimestamp)
	case store.LogSetMaxNetworkLimit:
		return red.applySetMaxNetworkLimit(ctx, l)
	case store.LogSetNetworkLimit:
		return red.applySetNetworkLimit(ctx, l)
	case store.LogSetOperatorNetworkShares:
		return red.applySetOperatorNetworkShares(ctx, l)
	case store.LogSetOperatorNetworkLimit:
		return red.applySetOperatorNetworkLimit(ctx, l)
	default:
		return fatal(fmt.Sprintf("unknown log type %q", l.Type), nil)
	}
}

func requireNonNegative(op string, v *u256.Int, err error) (*u256.Int, error) {
	if err != nil {
		if errors.Is(err, u256.ErrNegative) {
			return nil, fatal(op, err)
		}
		return nil, err
	}
	return v, nil
}

// Package store is the typed persistence layer: a PostgreSQL-backed client
// exposing typed upserts for every entity, range scans over logs, price
// lookups, and the grouped-sum read projections behind the HTTP API.
//
// Every write the reducer or points engine performs for one block happens
// inside a single Batch, one transaction per block; Batch satisfies the
// narrow interfaces core/reducer and core/points depend on so those
// packages never import pgx directly.
package store

import (
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// Block is immutable once written; timestamps are monotone in number.
type Block struct {
	Number    uint64
	Timestamp uint64
	Hash      [32]byte
}

// Collateral is static token metadata.
type Collateral struct {
	Address  address.Address
	Decimals uint8
	Symbol   string
	CMCID    uint64
}

// Price is USD * 10^24 at a given block for a given collateral.
type Price struct {
	Collateral  address.Address
	BlockNumber uint64
	Price       *u256.Int
}

// DelegatorType discriminates the four delegator variants: shares-based,
// per-operator limits, single-operator, and single-operator-single-network.
type DelegatorType uint8

const (
	DelegatorShares         DelegatorType = 0
	DelegatorOperatorLimit  DelegatorType = 1
	DelegatorSingleOperator DelegatorType = 2
	DelegatorFixedPair      DelegatorType = 3
)

func (d DelegatorType) Valid() bool { return d <= DelegatorFixedPair }

// GlobalVars is a vault's immutable configuration, set at creation.
type GlobalVars struct {
	Vault             address.Address
	Delegator         address.Address
	DelegatorType     DelegatorType
	Collateral        address.Address
	EpochDurationInit uint64
	EpochDuration     uint64
	// Operator is only meaningful for DelegatorSingleOperator/DelegatorFixedPair.
	Operator    address.Address
	HasOperator bool
	// Network is only meaningful for DelegatorFixedPair.
	Network    address.Address
	HasNetwork bool
}

// EpochAt computes the vault's withdrawal epoch at time t:
// (t - epochDurationInit) / epochDuration, floor division.
func (g GlobalVars) EpochAt(t uint64) uint64 {
	if t < g.EpochDurationInit || g.EpochDuration == 0 {
		return 0
	}
	return (t - g.EpochDurationInit) / g.EpochDuration
}

// VaultGlobalState tracks a vault's aggregate shares/stake.
type VaultGlobalState struct {
	Vault        address.Address
	ActiveShares *u256.Int
	ActiveStake  *u256.Int
}

// VaultUserState tracks one staker's shares in one vault.
type VaultUserState struct {
	Vault          address.Address
	User           address.Address
	ActiveSharesOf *u256.Int
}

// VaultGlobalWithdrawalsState tracks one epoch's withdrawal pool.
type VaultGlobalWithdrawalsState struct {
	Vault            address.Address
	Epoch            uint64
	WithdrawalShares *u256.Int
	Withdrawals      *u256.Int
}

// VaultUserWithdrawalsState tracks one staker's claim within one epoch's pool.
type VaultUserWithdrawalsState struct {
	Vault              address.Address
	Epoch              uint64
	User               address.Address
	WithdrawalSharesOf *u256.Int
}

// DelegatorNetworkState holds the max-network-limit cap shared by all
// delegator variants.
type DelegatorNetworkState struct {
	Delegator       address.Address
	Subnetwork      address.Subnetwork
	MaxNetworkLimit *u256.Int
}

// Delegator0Network is the per-(delegator,subnetwork) row for variant 0.
type Delegator0Network struct {
	Delegator                  address.Address
	Subnetwork                 address.Subnetwork
	NetworkLimit               *u256.Int
	TotalOperatorNetworkShares *u256.Int
}

// Delegator0Operator is the per-(delegator,subnetwork,operator) share row
// for variant 0.
type Delegator0Operator struct {
	Delegator             address.Address
	Subnetwork            address.Subnetwork
	Operator              address.Address
	OperatorNetworkShares *u256.Int
}

// Delegator1Network is the per-(delegator,subnetwork) row for variant 1.
type Delegator1Network struct {
	Delegator    address.Address
	Subnetwork   address.Subnetwork
	NetworkLimit *u256.Int
}

// Delegator1Operator is the per-(delegator,subnetwork,operator) limit row
// for variant 1.
type Delegator1Operator struct {
	Delegator            address.Address
	Subnetwork           address.Subnetwork
	Operator             address.Address
	OperatorNetworkLimit *u256.Int
}

// Delegator2Network is the per-(delegator,subnetwork) row for variant 2
// (operator is fixed in GlobalVars).
type Delegator2Network struct {
	Delegator    address.Address
	Subnetwork   address.Subnetwork
	NetworkLimit *u256.Int
}

// NetworkPointsConfig configures one (network, identifier) subnet's accrual
// rate and the cursor tracking how far its points have been integrated.
type NetworkPointsConfig struct {
	Network              address.Address
	Identifier           address.Identifier
	MaxRate              *u256.Int
	TargetStake          *u256.Int
	NetworkFeeBps        uint32
	OperatorFeeBps       uint32
	BlockNumberProcessed uint64
}

// Subnetwork returns the (network, identifier) pair this config applies to.
func (c NetworkPointsConfig) Subnetwork() address.Subnetwork {
	return address.Subnetwork{Network: c.Network, Identifier: c.Identifier}
}

// PointsRow is the shared shape of the three live (and historical) points
// tables: running totals at scale 10^48.
type PointsRow struct {
	Network      address.Address
	Identifier   address.Identifier
	Operator     address.Address // zero for NetworkVaultPoints rows
	Vault        address.Address
	Staker       address.Address // zero unless this is a *VaultUser* row
	Points       *u256.Int
	ReceiverType ReceiverType // which ledger this row was read from
}

// ReceiverType tags a read-projection row with which of the three points
// tables it came from.
type ReceiverType string

const (
	ReceiverNetwork  ReceiverType = "network"
	ReceiverOperator ReceiverType = "operator"
	ReceiverStaker   ReceiverType = "staker"
)

// ProcessedTimepoint is one named forward-only cursor row.
type ProcessedTimepoint struct {
	Name  string
	Block uint64
}

const (
	CursorBlocks = "blocks"
	CursorPrices = "prices"
	CursorEvents = "events"
	CursorState  = "state"
	CursorPoints = "points"
)

package store

import (
	"context"
	"fmt"

	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// LogType tags which on-chain event a Log row encodes.
type LogType string

const (
	LogOptIn                    LogType = "opt_in"
	LogOptOut                   LogType = "opt_out"
	LogDeposit                  LogType = "deposit"
	LogWithdraw                 LogType = "withdraw"
	LogTransfer                 LogType = "transfer"
	LogOnSlash                  LogType = "on_slash"
	LogSetMaxNetworkLimit       LogType = "set_max_network_limit"
	LogSetNetworkLimit          LogType = "set_network_limit"
	LogSetOperatorNetworkShares LogType = "set_operator_network_shares"
	LogSetOperatorNetworkLimit  LogType = "set_operator_network_limit"
)

// Log is one append-only, ordered chain event awaiting reduction. LogIndex
// breaks ties between events in the same block; replay order is always
// (block_number, log_index) ascending.
type Log struct {
	BlockNumber uint64
	LogIndex    uint32
	Type        LogType
	// OptInKind discriminates which opt-in relationship a LogOptIn/LogOptOut
	// row toggles: operator<->network (OperatorNetworkOptInService) or
	// operator<->vault (OperatorVaultOptInService).
	OptInKind  OptInKind
	Vault      address.Address
	Delegator  address.Address
	Subnetwork address.Subnetwork
	Operator   address.Address
	// User is the primary staker address: onBehalfOf for Deposit,
	// withdrawer for Withdraw, or the "to" side of a Transfer (From holds
	// the "from" side). OptIn/OptOut rows carry their subject in Operator.
	User address.Address
	From address.Address
	// Claimer is only populated for LogWithdraw: the address whose
	// withdrawal-pool claim the minted shares credit, which need not be the
	// withdrawer.
	Claimer address.Address
	Epoch   uint64
	Amount  *u256.Int
	Shares  *u256.Int
	// MintedShares is only populated for LogWithdraw: Withdraw burns Shares
	// from the withdrawer and mints MintedShares into the epoch's
	// withdrawal pool (they differ because withdrawal shares are
	// denominated against the pool's own share price, not the vault's).
	MintedShares     *u256.Int
	SlashedAmount    *u256.Int
	CaptureTimestamp uint64
}

// AppendLog inserts one log row. The (block_number, log_index) primary key
// makes a duplicate append a ConstraintError.
func (b *Batch) AppendLog(ctx context.Context, l Log) error {
	return b.Exec(ctx, `
		INSERT INTO logs (
			block_number, log_index, type, opt_in_kind, vault, delegator,
			subnetwork_network, subnetwork_identifier, operator, "user", from_addr, claimer, epoch,
			amount, shares, minted_shares, slashed_amount, capture_timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		l.BlockNumber, l.LogIndex, string(l.Type), string(l.OptInKind), l.Vault.Bytes(), l.Delegator.Bytes(),
		l.Subnetwork.Network.Bytes(), l.Subnetwork.Identifier[:], l.Operator.Bytes(), l.User.Bytes(), l.From.Bytes(), l.Claimer.Bytes(), l.Epoch,
		decimalOrNil(l.Amount), decimalOrNil(l.Shares), decimalOrNil(l.MintedShares), decimalOrNil(l.SlashedAmount), l.CaptureTimestamp,
	)
}

// LogsInBlockRange returns logs for blocks in [from, to], ordered by
// (block_number, log_index) ascending, the replay order reducer.go
// requires.
func (s *Store) LogsInBlockRange(ctx context.Context, from, to uint64) ([]Log, error) {
	rows, err := s.Query(ctx, `
		SELECT block_number, log_index, type, opt_in_kind, vault, delegator,
			subnetwork_network, subnetwork_identifier, operator, "user", from_addr, claimer, epoch,
			amount, shares, minted_shares, slashed_amount, capture_timestamp
		FROM logs
		WHERE block_number BETWEEN $1 AND $2
		ORDER BY block_number ASC, log_index ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var (
			l                                                         Log
			typ, optInKind                                            string
			vaultB, delegatorB, networkB, opB, userB, fromB, claimerB []byte
			identB                                                    []byte
			amount, shares, minted, slashed                           *string
		)
		if err := rows.Scan(&l.BlockNumber, &l.LogIndex, &typ, &optInKind, &vaultB, &delegatorB,
			&networkB, &identB, &opB, &userB, &fromB, &claimerB, &l.Epoch,
			&amount, &shares, &minted, &slashed, &l.CaptureTimestamp); err != nil {
			return nil, fmt.Errorf("store: scan log: %w", err)
		}
		l.Type = LogType(typ)
		l.OptInKind = OptInKind(optInKind)
		l.Vault = address.Address(vaultB)
		l.Delegator = address.Address(delegatorB)
		l.Subnetwork.Network = address.Address(networkB)
		copy(l.Subnetwork.Identifier[:], identB)
		l.Operator = address.Address(opB)
		l.User = address.Address(userB)
		l.From = address.Address(fromB)
		l.Claimer = address.Address(claimerB)
		l.Amount = decimalFromNil(amount)
		l.Shares = decimalFromNil(shares)
		l.MintedShares = decimalFromNil(minted)
		l.SlashedAmount = decimalFromNil(slashed)
		out = append(out, l)
	}
	return out, rows.Err()
}

func decimalOrNil(v *u256.Int) *string {
	if v == nil {
		return nil
	}
	s := v.Dec()
	return &s
}

func decimalFromNil(s *string) *u256.Int {
	if s == nil {
		return nil
	}
	return u256.MustFromDecimal(*s)
}

// Package teststore is an in-memory fake of core/store's narrow read/write
// interfaces, used by core/reducer, core/resolver, core/points and
// core/driver tests so they run without a live PostgreSQL instance.
package teststore

import (
	"context"
	"fmt"

	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

func subKey(delegator address.Address, sub address.Subnetwork) string {
	return delegator.Hex() + "|" + sub.Key()
}

func subOpKey(delegator address.Address, sub address.Subnetwork, op address.Address) string {
	return subKey(delegator, sub) + "|" + op.Hex()
}

// Store is a plain-map materialization of every table core/store/schema.sql
// defines. Every Put*/AdvanceTimepoint method is also exposed directly on
// Store (not just through a Batch wrapper) since tests have no need for
// transaction boundaries.
type Store struct {
	globalVars    map[address.Address]store.GlobalVars
	vaultGlobal   map[address.Address]store.VaultGlobalState
	vaultUser     map[string]store.VaultUserState
	withdrawalsG  map[string]store.VaultGlobalWithdrawalsState
	withdrawalsU  map[string]store.VaultUserWithdrawalsState
	delegatorCap  map[string]store.DelegatorNetworkState
	delegator0Net map[string]store.Delegator0Network
	delegator0Op  map[string]store.Delegator0Operator
	delegator1Net map[string]store.Delegator1Network
	delegator1Op  map[string]store.Delegator1Operator
	delegator2Net map[string]store.Delegator2Network
	optIns        map[string]store.OptInState
	blocks        map[uint64]store.Block
	collaterals   map[address.Address]store.Collateral
	prices        map[address.Address]map[uint64]*u256.Int
	configs       map[string]store.NetworkPointsConfig
	onvPoints     map[string]*u256.Int
	nvuPoints     map[string]*u256.Int
	nvPoints      map[string]*u256.Int
	snapshots     []uint64
	cursors       map[string]uint64
	logs          []store.Log
}

// New returns an empty Store; every entity defaults to its lazily-created
// zero value on first read, the same contract the real store offers.
func New() *Store {
	return &Store{
		globalVars:    map[address.Address]store.GlobalVars{},
		vaultGlobal:   map[address.Address]store.VaultGlobalState{},
		vaultUser:     map[string]store.VaultUserState{},
		withdrawalsG:  map[string]store.VaultGlobalWithdrawalsState{},
		withdrawalsU:  map[string]store.VaultUserWithdrawalsState{},
		delegatorCap:  map[string]store.DelegatorNetworkState{},
		delegator0Net: map[string]store.Delegator0Network{},
		delegator0Op:  map[string]store.Delegator0Operator{},
		delegator1Net: map[string]store.Delegator1Network{},
		delegator1Op:  map[string]store.Delegator1Operator{},
		delegator2Net: map[string]store.Delegator2Network{},
		optIns:        map[string]store.OptInState{},
		blocks:        map[uint64]store.Block{},
		collaterals:   map[address.Address]store.Collateral{},
		prices:        map[address.Address]map[uint64]*u256.Int{},
		configs:       map[string]store.NetworkPointsConfig{},
		onvPoints:     map[string]*u256.Int{},
		nvuPoints:     map[string]*u256.Int{},
		nvPoints:      map[string]*u256.Int{},
		cursors:       map[string]uint64{},
	}
}

// --- GlobalVars / vault state -------------------------------------------

func (s *Store) PutGlobalVars(_ context.Context, g store.GlobalVars) error {
	s.globalVars[g.Vault] = g
	return nil
}

func (s *Store) GlobalVarsOf(_ context.Context, vault address.Address) (store.GlobalVars, error) {
	g, ok := s.globalVars[vault]
	if !ok {
		return store.GlobalVars{}, store.ErrNotFound
	}
	return g, nil
}

func (s *Store) AllVaults(_ context.Context) ([]store.GlobalVars, error) {
	out := make([]store.GlobalVars, 0, len(s.globalVars))
	for _, g := range s.globalVars {
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) PutVaultGlobalState(_ context.Context, v store.VaultGlobalState) error {
	s.vaultGlobal[v.Vault] = v
	return nil
}

func (s *Store) VaultGlobalStateOf(_ context.Context, vault address.Address) (store.VaultGlobalState, error) {
	if v, ok := s.vaultGlobal[vault]; ok {
		return v, nil
	}
	return store.VaultGlobalState{Vault: vault, ActiveShares: u256.Zero(), ActiveStake: u256.Zero()}, nil
}

func (s *Store) PutVaultUserState(_ context.Context, v store.VaultUserState) error {
	s.vaultUser[v.Vault.Hex()+"|"+v.User.Hex()] = v
	return nil
}

func (s *Store) VaultUserStateOf(_ context.Context, vault, user address.Address) (store.VaultUserState, error) {
	if v, ok := s.vaultUser[vault.Hex()+"|"+user.Hex()]; ok {
		return v, nil
	}
	return store.VaultUserState{Vault: vault, User: user, ActiveSharesOf: u256.Zero()}, nil
}

func (s *Store) VaultUsersWithShares(_ context.Context, vault address.Address) ([]store.VaultUserState, error) {
	var out []store.VaultUserState
	for _, v := range s.vaultUser {
		if v.Vault == vault && !u256.IsZero(v.ActiveSharesOf) {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- withdrawals ---------------------------------------------------------

func (s *Store) PutVaultGlobalWithdrawals(_ context.Context, w store.VaultGlobalWithdrawalsState) error {
	s.withdrawalsG[fmt.Sprintf("%s|%d", w.Vault.Hex(), w.Epoch)] = w
	return nil
}

func (s *Store) VaultGlobalWithdrawalsOf(_ context.Context, vault address.Address, epoch uint64) (store.VaultGlobalWithdrawalsState, error) {
	if w, ok := s.withdrawalsG[fmt.Sprintf("%s|%d", vault.Hex(), epoch)]; ok {
		return w, nil
	}
	return store.VaultGlobalWithdrawalsState{Vault: vault, Epoch: epoch, WithdrawalShares: u256.Zero(), Withdrawals: u256.Zero()}, nil
}

func (s *Store) PutVaultUserWithdrawals(_ context.Context, w store.VaultUserWithdrawalsState) error {
	s.withdrawalsU[fmt.Sprintf("%s|%d|%s", w.Vault.Hex(), w.Epoch, w.User.Hex())] = w
	return nil
}

func (s *Store) VaultUserWithdrawalsOf(_ context.Context, vault address.Address, epoch uint64, user address.Address) (store.VaultUserWithdrawalsState, error) {
	if w, ok := s.withdrawalsU[fmt.Sprintf("%s|%d|%s", vault.Hex(), epoch, user.Hex())]; ok {
		return w, nil
	}
	return store.VaultUserWithdrawalsState{Vault: vault, Epoch: epoch, User: user, WithdrawalSharesOf: u256.Zero()}, nil
}

// --- delegator limit hierarchy --------------------------------------------

func (s *Store) PutDelegatorNetworkState(_ context.Context, d store.DelegatorNetworkState) error {
	s.delegatorCap[subKey(d.Delegator, d.Subnetwork)] = d
	return nil
}

func (s *Store) DelegatorNetworkStateOf(_ context.Context, delegator address.Address, sub address.Subnetwork) (store.DelegatorNetworkState, error) {
	if d, ok := s.delegatorCap[subKey(delegator, sub)]; ok {
		return d, nil
	}
	return store.DelegatorNetworkState{Delegator: delegator, Subnetwork: sub, MaxNetworkLimit: u256.Zero()}, nil
}

func (s *Store) PutDelegator0Network(_ context.Context, d store.Delegator0Network) error {
	s.delegator0Net[subKey(d.Delegator, d.Subnetwork)] = d
	return nil
}

func (s *Store) Delegator0NetworkOf(_ context.Context, delegator address.Address, sub address.Subnetwork) (store.Delegator0Network, error) {
	if d, ok := s.delegator0Net[subKey(delegator, sub)]; ok {
		return d, nil
	}
	return store.Delegator0Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.Zero(), TotalOperatorNetworkShares: u256.Zero()}, nil
}

func (s *Store) PutDelegator0Operator(_ context.Context, d store.Delegator0Operator) error {
	s.delegator0Op[subOpKey(d.Delegator, d.Subnetwork, d.Operator)] = d
	return nil
}

func (s *Store) Delegator0OperatorOf(_ context.Context, delegator address.Address, sub address.Subnetwork, operator address.Address) (store.Delegator0Operator, error) {
	if d, ok := s.delegator0Op[subOpKey(delegator, sub, operator)]; ok {
		return d, nil
	}
	return store.Delegator0Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkShares: u256.Zero()}, nil
}

func (s *Store) Delegator0OperatorsOf(_ context.Context, delegator address.Address, sub address.Subnetwork) ([]store.Delegator0Operator, error) {
	var out []store.Delegator0Operator
	prefix := subKey(delegator, sub)
	for _, d := range s.delegator0Op {
		if subKey(d.Delegator, d.Subnetwork) == prefix && !u256.IsZero(d.OperatorNetworkShares) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) PutDelegator1Network(_ context.Context, d store.Delegator1Network) error {
	s.delegator1Net[subKey(d.Delegator, d.Subnetwork)] = d
	return nil
}

func (s *Store) Delegator1NetworkOf(_ context.Context, delegator address.Address, sub address.Subnetwork) (store.Delegator1Network, error) {
	if d, ok := s.delegator1Net[subKey(delegator, sub)]; ok {
		return d, nil
	}
	return store.Delegator1Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.Zero()}, nil
}

func (s *Store) PutDelegator1Operator(_ context.Context, d store.Delegator1Operator) error {
	s.delegator1Op[subOpKey(d.Delegator, d.Subnetwork, d.Operator)] = d
	return nil
}

func (s *Store) Delegator1OperatorOf(_ context.Context, delegator address.Address, sub address.Subnetwork, operator address.Address) (store.Delegator1Operator, error) {
	if d, ok := s.delegator1Op[subOpKey(delegator, sub, operator)]; ok {
		return d, nil
	}
	return store.Delegator1Operator{Delegator: delegator, Subnetwork: sub, Operator: operator, OperatorNetworkLimit: u256.Zero()}, nil
}

func (s *Store) Delegator1OperatorsOf(_ context.Context, delegator address.Address, sub address.Subnetwork) ([]store.Delegator1Operator, error) {
	var out []store.Delegator1Operator
	prefix := subKey(delegator, sub)
	for _, d := range s.delegator1Op {
		if subKey(d.Delegator, d.Subnetwork) == prefix && !u256.IsZero(d.OperatorNetworkLimit) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) PutDelegator2Network(_ context.Context, d store.Delegator2Network) error {
	s.delegator2Net[subKey(d.Delegator, d.Subnetwork)] = d
	return nil
}

func (s *Store) Delegator2NetworkOf(_ context.Context, delegator address.Address, sub address.Subnetwork) (store.Delegator2Network, error) {
	if d, ok := s.delegator2Net[subKey(delegator, sub)]; ok {
		return d, nil
	}
	return store.Delegator2Network{Delegator: delegator, Subnetwork: sub, NetworkLimit: u256.Zero()}, nil
}

// --- opt-ins ---------------------------------------------------------------

func (s *Store) PutOptIn(_ context.Context, o store.OptInState) error {
	s.optIns[string(o.Kind)+"|"+o.Left.Hex()+"|"+o.Right.Hex()] = o
	return nil
}

func (s *Store) IsOptedIn(_ context.Context, kind store.OptInKind, left, right address.Address) (bool, error) {
	o, ok := s.optIns[string(kind)+"|"+left.Hex()+"|"+right.Hex()]
	return ok && o.Active, nil
}

// --- blocks / collateral / prices ------------------------------------------

func (s *Store) PutBlock(_ context.Context, b store.Block) error {
	s.blocks[b.Number] = b
	return nil
}

func (s *Store) BlockAt(_ context.Context, number uint64) (store.Block, error) {
	if b, ok := s.blocks[number]; ok {
		return b, nil
	}
	return store.Block{}, store.ErrNotFound
}

func (s *Store) PutCollateral(_ context.Context, c store.Collateral) error {
	s.collaterals[c.Address] = c
	return nil
}

func (s *Store) CollateralOf(_ context.Context, addr address.Address) (store.Collateral, error) {
	if c, ok := s.collaterals[addr]; ok {
		return c, nil
	}
	return store.Collateral{}, store.ErrNotFound
}

func (s *Store) PutPrice(_ context.Context, p store.Price) error {
	if s.prices[p.Collateral] == nil {
		s.prices[p.Collateral] = map[uint64]*u256.Int{}
	}
	s.prices[p.Collateral][p.BlockNumber] = p.Price
	return nil
}

func (s *Store) GetPrice(_ context.Context, collateral address.Address, block uint64) (*u256.Int, error) {
	byBlock, ok := s.prices[collateral]
	if !ok {
		return nil, store.ErrNotFound
	}
	var best uint64
	var found bool
	for b := range byBlock {
		if b <= block && (!found || b > best) {
			best, found = b, true
		}
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return byBlock[best], nil
}

// --- points config / running totals ----------------------------------------

func configKey(network address.Address, id address.Identifier) string {
	return network.Hex() + "|" + string(id[:])
}

func (s *Store) PutNetworkPointsConfig(_ context.Context, c store.NetworkPointsConfig) error {
	s.configs[configKey(c.Network, c.Identifier)] = c
	return nil
}

func (s *Store) NetworkPointsConfigsDue(_ context.Context, upTo uint64) ([]store.NetworkPointsConfig, error) {
	var out []store.NetworkPointsConfig
	for _, c := range s.configs {
		if c.BlockNumberProcessed < upTo {
			out = append(out, c)
		}
	}
	return out, nil
}

func onvKey(r store.PointsRow) string {
	return r.Network.Hex() + "|" + string(r.Identifier[:]) + "|" + r.Operator.Hex() + "|" + r.Vault.Hex()
}

func nvuKey(r store.PointsRow) string {
	return r.Network.Hex() + "|" + string(r.Identifier[:]) + "|" + r.Vault.Hex() + "|" + r.Staker.Hex()
}

func nvKey(r store.PointsRow) string {
	return r.Network.Hex() + "|" + string(r.Identifier[:]) + "|" + r.Vault.Hex()
}

func (s *Store) AddNetworkOperatorVaultPoints(_ context.Context, r store.PointsRow, delta *u256.Int) error {
	k := onvKey(r)
	s.onvPoints[k] = u256.Add(zeroIfNil(s.onvPoints[k]), delta)
	return nil
}

func (s *Store) AddNetworkVaultUserPoints(_ context.Context, r store.PointsRow, delta *u256.Int) error {
	k := nvuKey(r)
	s.nvuPoints[k] = u256.Add(zeroIfNil(s.nvuPoints[k]), delta)
	return nil
}

func (s *Store) AddNetworkVaultPoints(_ context.Context, r store.PointsRow, delta *u256.Int) error {
	k := nvKey(r)
	s.nvPoints[k] = u256.Add(zeroIfNil(s.nvPoints[k]), delta)
	return nil
}

func zeroIfNil(v *u256.Int) *u256.Int {
	if v == nil {
		return u256.Zero()
	}
	return v
}

// NetworkOperatorVaultPoints returns the running total for (network, id,
// operator, vault), for test assertions.
func (s *Store) NetworkOperatorVaultPoints(r store.PointsRow) *u256.Int {
	return zeroIfNil(s.onvPoints[onvKey(r)])
}

// NetworkVaultUserPoints returns the running total for (network, id, vault,
// staker), for test assertions.
func (s *Store) NetworkVaultUserPoints(r store.PointsRow) *u256.Int {
	return zeroIfNil(s.nvuPoints[nvuKey(r)])
}

func (s *Store) SnapshotPoints(_ context.Context, block uint64) error {
	s.snapshots = append(s.snapshots, block)
	return nil
}

// SnapshotCount returns how many times SnapshotPoints has been called, for
// tests asserting the "every 200 blocks, and only once" policy.
func (s *Store) SnapshotCount() int {
	return len(s.snapshots)
}

func (s *Store) ClosestSnapshotBlock(_ context.Context, asOf uint64) (uint64, error) {
	var best uint64
	var found bool
	for _, b := range s.snapshots {
		if b <= asOf && (!found || b > best) {
			best, found = b, true
		}
	}
	if !found {
		return 0, store.ErrNotFound
	}
	return best, nil
}

// --- cursors -----------------------------------------------------------

func (s *Store) ProcessedTimepoint(_ context.Context, name string) (uint64, error) {
	return s.cursors[name], nil
}

func (s *Store) AdvanceTimepoint(_ context.Context, name string, block uint64) error {
	if block > s.cursors[name] {
		s.cursors[name] = block
	}
	return nil
}

// --- logs (for driver.Store's window/read surface) --------------------

// AppendLog records one log row, mirroring store.Batch.AppendLog.
func (s *Store) AppendLog(_ context.Context, l store.Log) error {
	s.logs = append(s.logs, l)
	return nil
}

// LogsInBlockRange returns logs in [from, to] in AppendLog call order. Unlike
// core/store's real query it does not sort by (block_number, log_index).
func (s *Store) LogsInBlockRange(_ context.Context, from, to uint64) ([]store.Log, error) {
	var out []store.Log
	for _, l := range s.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

// Begin is unsupported: teststore has no transactional batch concept, so
// callers exercising the reducer/points engine directly pass *Store itself
// as both Reader and Writer instead of going through driver.Driver. It
// exists only so *Store satisfies driver.Store for the cursor/window unit
// tests in core/driver, which never call Begin.
func (s *Store) Begin(_ context.Context) (*store.Batch, error) {
	return nil, fmt.Errorf("teststore: Begin is not supported, use Store directly as Reader/Writer")
}

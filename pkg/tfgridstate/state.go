// Package tfgridstate is a small in-memory reference implementation of the
// iface.Registry, iface.Oracle and iface.Currency collaborators, for running
// cmd/tfchaind standalone without a live tfgrid chain behind it. In
// production these three interfaces are expected to be backed by the real
// chain/tfgrid state; this package exists purely so the daemon has
// something to talk to out of the box, the same role neo-go's cmd/neo-go
// privnet wallet/config fixtures play for local development.
package tfgridstate

import (
	"sync"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
)

// State holds every piece of tfgrid/oracle/currency state this reference
// implementation tracks. Create one with New (the zero value has no maps);
// seed it with CreateTwin, Fund and the Set* methods.
type State struct {
	mu sync.Mutex

	twins map[iface.Account]iface.TwinID
	accts map[iface.TwinID]iface.Account
	nodes map[iface.NodeID]iface.Node
	farms map[iface.FarmID]iface.Farm
	policy map[uint32]iface.PricingPolicy

	balances map[iface.Account]uint64
	stash    map[iface.TwinID]uint64
	locks    map[lockKey]uint64
	minBalance uint64
	burned   uint64

	tftPriceMUSD uint64

	nextTwin iface.TwinID
}

type lockKey struct {
	id      string
	account iface.Account
}

// New creates an empty State with a zero minimum balance and no
// price reading (so AverageTFTPriceMUSD reports TFTPriceValueError until
// SetTFTPrice is called, matching the original pallet's behavior before the
// oracle has ever reported).
func New() *State {
	return &State{
		twins:    map[iface.Account]iface.TwinID{},
		accts:    map[iface.TwinID]iface.Account{},
		nodes:    map[iface.NodeID]iface.Node{},
		farms:    map[iface.FarmID]iface.Farm{},
		policy:   map[uint32]iface.PricingPolicy{},
		balances: map[iface.Account]uint64{},
		stash:    map[iface.TwinID]uint64{},
		locks:    map[lockKey]uint64{},
	}
}

// CreateTwin registers account under a freshly allocated twin id.
func (s *State) CreateTwin(account iface.Account) iface.TwinID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTwin++
	id := s.nextTwin
	s.twins[account] = id
	s.accts[id] = account
	return id
}

// SetNode inserts or replaces a node record.
func (s *State) SetNode(n iface.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
}

// SetFarm inserts or replaces a farm record.
func (s *State) SetFarm(f iface.Farm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.farms[f.ID] = f
}

// SetPricingPolicy inserts or replaces a pricing policy record.
func (s *State) SetPricingPolicy(p iface.PricingPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy[p.ID] = p
}

// SetTFTPrice updates the oracle's current reading.
func (s *State) SetTFTPrice(musd uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tftPriceMUSD = musd
}

// SetMinimumBalance sets the existential-deposit-like floor Currency reports.
func (s *State) SetMinimumBalance(amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minBalance = amount
}

// Fund credits account's free balance, for seeding test/demo twins.
func (s *State) Fund(account iface.Account, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] += amount
}

// SetStash sets a twin's stash account balance (SPEC_FULL.md §4 "Stash
// balance").
func (s *State) SetStash(twin iface.TwinID, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stash[twin] = amount
}

// --- iface.Registry ---

func (s *State) TwinIDOf(account iface.Account) (iface.TwinID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.twins[account]
	return t, ok
}

func (s *State) TwinAccount(twin iface.TwinID) (iface.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accts[twin]
	return a, ok
}

func (s *State) Node(id iface.NodeID) (iface.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	return n, ok
}

func (s *State) Farm(id iface.FarmID) (iface.Farm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.farms[id]
	return f, ok
}

func (s *State) PricingPolicy(id uint32) (iface.PricingPolicy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policy[id]
	return p, ok
}

func (s *State) ReserveIPs(farmID iface.FarmID, contractID uint64, count uint32) ([]iface.PublicIP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	farm, ok := s.farms[farmID]
	if !ok {
		return nil, contracterrors.ErrFarmNotExists
	}
	var free []int
	for i, ip := range farm.PublicIPs {
		if ip.ContractID == 0 {
			free = append(free, i)
		}
	}
	if uint32(len(free)) < count {
		return nil, contracterrors.ErrFarmHasNotEnoughPublicIPs
	}
	var out []iface.PublicIP
	for _, i := range free[:count] {
		farm.PublicIPs[i].ContractID = contractID
		out = append(out, farm.PublicIPs[i])
	}
	s.farms[farmID] = farm
	return out, nil
}

func (s *State) FreeIPs(farmID iface.FarmID, contractID uint64) ([]iface.PublicIP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	farm, ok := s.farms[farmID]
	if !ok {
		return nil, contracterrors.ErrFarmNotExists
	}
	var out []iface.PublicIP
	for i, ip := range farm.PublicIPs {
		if ip.ContractID == contractID {
			farm.PublicIPs[i].ContractID = 0
			out = append(out, farm.PublicIPs[i])
		}
	}
	s.farms[farmID] = farm
	return out, nil
}

// --- iface.Oracle ---

func (s *State) AverageTFTPriceMUSD() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tftPriceMUSD
}

// --- iface.Currency ---

func (s *State) FreeBalance(account iface.Account) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account]
}

func (s *State) UsableBalance(account iface.Account) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usableLocked(account)
}

func (s *State) usableLocked(account iface.Account) uint64 {
	free := s.balances[account]
	var locked uint64
	for k, v := range s.locks {
		if k.account == account && v > locked {
			locked = v
		}
	}
	if locked >= free {
		return 0
	}
	return free - locked
}

func (s *State) StashBalance(twin iface.TwinID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stash[twin]
}

func (s *State) MinimumBalance() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minBalance
}

func (s *State) Transfer(from, to iface.Account, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount == 0 {
		return nil
	}
	if s.usableLocked(from) < amount {
		return contracterrors.ErrInsufficientBalance
	}
	s.balances[from] -= amount
	s.balances[to] += amount
	return nil
}

func (s *State) Withdraw(account iface.Account, amount uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount == 0 {
		return 0, nil
	}
	if s.balances[account] < amount {
		amount = s.balances[account]
	}
	s.balances[account] -= amount
	s.burned += amount
	return amount, nil
}

func (s *State) SetLock(lockID string, account iface.Account, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[lockKey{lockID, account}] = amount
	return nil
}

func (s *State) ExtendLock(lockID string, account iface.Account, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := lockKey{lockID, account}
	if amount > s.locks[k] {
		s.locks[k] = amount
	}
	return nil
}

func (s *State) RemoveLock(lockID string, account iface.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, lockKey{lockID, account})
	return nil
}

// Package billing implements the Billing Engine (spec.md §4.2): the
// fixed-point cost formula, TFT conversion, discount tiers, the
// grace-period FSM and lock/cycle accounting that together decide what a
// contract owes each cycle and what happens to it as a result.
package billing

import (
	"errors"

	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/metrics"
	"github.com/threefoldtech/tfchain-billing/pkg/registry"
	"github.com/threefoldtech/tfchain-billing/pkg/rewards"
)

// Config bounds the engine's block-driven behavior (spec.md §2 defaults).
type Config struct {
	DistributionFrequency  uint32 // cycles between reward distributions (default 24)
	GracePeriodBlocks      uint64 // blocks tolerated in GracePeriod before deletion (default 2880)
	DefaultPricingPolicyID uint32 // the single global pricing policy, mirrors PricingPolicies::get(1)
	PriceCacheSize         int
	StakingPoolAccount     iface.Account
}

// DefaultConfig mirrors the runtime constants of the original pallet.
func DefaultConfig() Config {
	return Config{
		DistributionFrequency:  24,
		GracePeriodBlocks:      2880,
		DefaultPricingPolicyID: 1,
		PriceCacheSize:         64,
	}
}

// Engine is the Billing Engine. It implements registry.Biller, letting
// Registry.CancelContract trigger one final cycle before tearing down
// storage.
type Engine struct {
	reg      *registry.Registry
	currency iface.Currency
	prices   *PriceCache
	rewards  *rewards.Distributor
	bus      *events.Bus
	cfg      Config
	log      *zap.Logger
}

// New constructs an Engine. bus must be the same event bus reg was
// constructed with, so ContractBilled and the grace/distribution events
// interleave correctly with the registry's own lifecycle events.
func New(reg *registry.Registry, oracle iface.Oracle, currency iface.Currency, bus *events.Bus, cfg Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	prices, err := NewPriceCache(oracle, cfg.PriceCacheSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		reg:      reg,
		currency: currency,
		prices:   prices,
		rewards:  rewards.New(currency, bus, log),
		bus:      bus,
		cfg:      cfg,
		log:      log.With(zap.String("component", "billing")),
	}
	reg.SetBiller(e)
	return e, nil
}

// Bill runs one billing cycle for contractID (billing.rs bill_contract).
func (e *Engine) Bill(contractID uint64, blockNumber, now uint64) error {
	c, ok, err := e.reg.Contract(contractID)
	if err != nil {
		return err
	}
	if !ok {
		return contracterrors.ErrContractNotExists
	}

	ext := e.reg.External()
	twinAcct, ok := ext.TwinAccount(c.TwinID)
	if !ok {
		// Failure to find the twin removes the contract outright
		// (spec.md §8 "Propagation").
		e.log.Warn("twin vanished, removing contract", zap.Uint64("contract_id", contractID))
		return e.reg.Finalize(c)
	}

	usable := e.currency.UsableBalance(twinAcct)
	stash := e.currency.StashBalance(c.TwinID)
	totalBalance := saturatingAdd(usable, stash)

	lock, err := e.reg.Lock(contractID)
	if err != nil {
		return err
	}
	secondsElapsed := saturatingSub(now, lock.LockUpdated)

	regularDue, discount, err := e.calculateContractCost(c, totalBalance, secondsElapsed, blockNumber)
	if err != nil {
		if errors.Is(err, contracterrors.ErrTFTPriceValueError) {
			e.log.Warn("oracle price unavailable, skipping cycle", zap.Uint64("contract_id", contractID))
			return nil
		}
		if isVanishedCollaboratorErr(err) {
			e.log.Warn("node, farm or pricing policy vanished, removing contract",
				zap.Uint64("contract_id", contractID), zap.Error(err))
			return e.reg.Finalize(c)
		}
		return err
	}

	var extraDue uint64
	if c.Type.Kind == contracttypes.TypeRent {
		extraDue, err = e.calculateExtraFeeCost(c, secondsElapsed, blockNumber)
		if err != nil {
			if errors.Is(err, contracterrors.ErrTFTPriceValueError) {
				return nil
			}
			if isVanishedCollaboratorErr(err) {
				e.log.Warn("node, farm or pricing policy vanished, removing contract",
					zap.Uint64("contract_id", contractID), zap.Error(err))
				return e.reg.Finalize(c)
			}
			return err
		}
	}
	amountDue := saturatingAdd(regularDue, extraDue)

	// Zero-due early return: nothing to do unless the contract is also
	// transitioning to Deleted this cycle (billing.rs "amount to be billed
	// is 0, nothing to do").
	if amountDue == 0 && !c.State.IsDeleted() {
		return nil
	}

	regularLock := saturatingAdd(lock.AmountLocked, regularDue)
	extraLock := saturatingAdd(lock.ExtraAmountLocked, extraDue)
	lockAmount := saturatingAdd(regularLock, extraLock)

	if err := e.handleGrace(c, usable, lockAmount, blockNumber); err != nil {
		return err
	}

	if !c.State.IsDeleted() {
		lock.LockUpdated = now
		lock.Cycles++
		lock.AmountLocked = regularLock
		lock.ExtraAmountLocked = extraLock
	}

	if c.State.IsGracePeriod() {
		e.log.Info("contract still in grace", zap.Uint64("contract_id", contractID))
		return e.reg.SetLock(contractID, lock)
	}

	if err := e.handleLock(c, &lock, twinAcct, amountDue, now); err != nil {
		return err
	}

	metrics.ContractBilled()
	e.bus.Emit(events.ContractBilled, map[string]any{
		"contract_id":    c.ID,
		"timestamp":      now,
		"discount_level": discount,
		"amount_billed":  amountDue,
	})

	if c.State.IsDeleted() {
		return e.reg.Finalize(c)
	}

	if c.Type.Kind == contracttypes.TypeDeployment {
		bi, err := e.reg.BillingInfo(contractID)
		if err != nil {
			return err
		}
		bi.AmountUnbilled = 0
		if err := e.reg.SetBillingInfo(contractID, bi); err != nil {
			return err
		}
	}

	if err := e.reg.SetLock(contractID, lock); err != nil {
		return err
	}
	return e.reg.SaveContract(c)
}

// handleGrace applies the Created/GracePeriod/Deleted transitions of
// spec.md §4.2's grace-period FSM, cascading rent contracts to their active
// deployment contracts (billing.rs handle_grace / handle_grace_rent_contract).
func (e *Engine) handleGrace(c *contracttypes.Contract, usable, amountDue, blockNumber uint64) error {
	switch {
	case c.State.IsGracePeriod():
		if usable > amountDue {
			c.State = contracttypes.Created()
			if err := e.reg.SaveContract(c); err != nil {
				return err
			}
			metrics.GracePeriodExited()
			e.bus.Emit(events.ContractGracePeriodEnded, c)
			return e.cascadeRentGrace(c, contracttypes.Created(), blockNumber)
		}
		diff := saturatingSub(blockNumber, c.State.GraceBlock)
		if diff >= e.cfg.GracePeriodBlocks {
			c.State = contracttypes.Deleted(contracttypes.CauseOutOfFunds)
			return e.reg.SaveContract(c)
		}
	case c.State.IsCreated():
		if amountDue >= usable {
			c.State = contracttypes.GracePeriod(blockNumber)
			if err := e.reg.SaveContract(c); err != nil {
				return err
			}
			metrics.GracePeriodEntered()
			e.bus.Emit(events.ContractGracePeriodStarted, c)
			return e.cascadeRentGrace(c, contracttypes.GracePeriod(blockNumber), blockNumber)
		}
	}
	return nil
}

func (e *Engine) cascadeRentGrace(c *contracttypes.Contract, state contracttypes.State, blockNumber uint64) error {
	if c.Type.Kind != contracttypes.TypeRent {
		return nil
	}
	ids, err := e.reg.ActiveByNode(c.Type.Rent.NodeID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		ctr, ok, err := e.reg.Contract(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		ctr.State = state
		if err := e.reg.SaveContract(ctr); err != nil {
			return err
		}
		if state.IsCreated() {
			e.bus.Emit(events.ContractGracePeriodEnded, ctr)
		} else if state.IsGracePeriod() {
			e.bus.Emit(events.ContractGracePeriodStarted, ctr)
		}
	}
	return nil
}

// handleLock extends the twin's balance lock and, once a distribution
// cycle is due, unlocks and distributes (billing.rs handle_lock).
func (e *Engine) handleLock(c *contracttypes.Contract, lock *contracttypes.Lock, twin iface.Account, amountDue, now uint64) error {
	if c.State.IsCreated() {
		// The shared GridLockID lock is twin-wide, not per-contract: extend it
		// to cover the twin's current aggregate locked balance plus this
		// cycle's incremental due, not this contract's own cumulative total
		// (billing.rs handle_lock: locked_balance = get_locked_balance(&twin)
		// + amount_due). Using the contract's own total under-locks a twin
		// with more than one live contract, since ExtendLock only ever grows.
		aggregate := saturatingSub(e.currency.FreeBalance(twin), e.currency.UsableBalance(twin))
		if err := e.currency.ExtendLock(iface.GridLockID, twin, saturatingAdd(aggregate, amountDue)); err != nil {
			return err
		}
	}

	canceledAndNotZero := c.State.IsDeleted() && lock.HasSomeAmountLocked()
	if lock.Cycles < e.cfg.DistributionFrequency && !canceledAndNotZero {
		return nil
	}

	locked := saturatingSub(e.currency.FreeBalance(twin), e.currency.UsableBalance(twin))
	newLockedBalance := saturatingSub(locked, lock.TotalAmountLocked())
	if err := e.currency.RemoveLock(iface.GridLockID, twin); err != nil {
		return err
	}

	minBalance := e.currency.MinimumBalance()
	var twinBalance uint64
	if newLockedBalance > minBalance {
		if err := e.currency.SetLock(iface.GridLockID, twin, newLockedBalance); err != nil {
			return err
		}
		twinBalance = e.currency.UsableBalance(twin)
	} else {
		twinBalance = saturatingSub(e.currency.UsableBalance(twin), minBalance)
	}

	if lock.ExtraAmountLocked > 0 {
		farmer, err := e.farmerAccount(c)
		if err != nil {
			return err
		}
		extraAmt := min64(twinBalance, lock.ExtraAmountLocked)
		if err := e.rewards.DistributeExtra(twin, farmer, extraAmt); err != nil {
			return err
		}
		twinBalance = e.currency.UsableBalance(twin)
	}

	ext := e.reg.External()
	policy, ok := ext.PricingPolicy(e.cfg.DefaultPricingPolicyID)
	if !ok {
		return contracterrors.ErrPricingPolicyNotExists
	}
	var spPtr *contracttypes.SolutionProvider
	if c.SolutionProviderID != 0 {
		found, ok, err := e.reg.SolutionProvider(c.SolutionProviderID)
		if err != nil {
			return err
		}
		if ok {
			spPtr = found
		}
	}

	amt := min64(twinBalance, lock.AmountLocked)
	if _, err := e.rewards.Distribute(c, policy, e.cfg.StakingPoolAccount, spPtr, twin, amt); err != nil {
		return err
	}

	lock.LockUpdated = now
	lock.AmountLocked = 0
	lock.ExtraAmountLocked = 0
	lock.Cycles = 0
	return nil
}

func (e *Engine) farmerAccount(c *contracttypes.Contract) (iface.Account, error) {
	ext := e.reg.External()
	node, ok := ext.Node(c.Type.Rent.NodeID)
	if !ok {
		return iface.Account{}, contracterrors.ErrNodeNotExists
	}
	farm, ok := ext.Farm(node.FarmID)
	if !ok {
		return iface.Account{}, contracterrors.ErrFarmNotExists
	}
	acct, ok := ext.TwinAccount(farm.TwinID)
	if !ok {
		return iface.Account{}, contracterrors.ErrTwinNotExists
	}
	return acct, nil
}

// isVanishedCollaboratorErr reports whether err reflects a tfgrid
// collaborator (node/farm/pricing policy) the registry no longer finds.
// Bill treats these the same as a vanished twin (spec.md §4.3: such errors
// remove the contract rather than retry forever).
func isVanishedCollaboratorErr(err error) bool {
	return errors.Is(err, contracterrors.ErrNodeNotExists) ||
		errors.Is(err, contracterrors.ErrFarmNotExists) ||
		errors.Is(err, contracterrors.ErrPricingPolicyNotExists)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func saturatingAdd(a, b uint64) uint64 {
	s := a + b
	if s < a {
		return ^uint64(0)
	}
	return s
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Package registry implements the Contract Registry (spec.md §4.1): contract
// lifecycle operations over the pkg/contracttypes Contract/ContractType
// union and the six covering indices listed in spec.md §3.
package registry

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/ipreservation"
	"github.com/threefoldtech/tfchain-billing/pkg/storage"
)

// Limits bounds string/byte fields accepted by the registry.
type Limits struct {
	MaxNameLength           int
	MaxDeploymentDataLength int
	MaxSolutionProviders    int
}

// DefaultLimits mirrors the bounds tfgrid's runtime configures in practice.
var DefaultLimits = Limits{
	MaxNameLength:           64,
	MaxDeploymentDataLength: 64 * 1024,
	MaxSolutionProviders:    5,
}

// Registry is the Contract Registry component. It owns no goroutines: every
// method is a synchronous, atomic state transition driven by the caller
// (spec.md §5).
type Registry struct {
	dao      *dao
	ext      iface.Registry
	ips      *ipreservation.Reserver
	bus      *events.Bus
	limits   Limits
	billingF uint64 // billing frequency F, for contract_id mod F slotting
	log      *zap.Logger
	biller   Biller
}

// New creates a Registry persisting through store and consulting ext for
// tfgrid node/farm/pricing data. billingFrequency is F from spec.md §4.3.
func New(store storage.Store, ext iface.Registry, bus *events.Bus, billingFrequency uint64, limits Limits, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		dao:      newDAO(store),
		ext:      ext,
		ips:      ipreservation.New(ext, bus, log),
		bus:      bus,
		limits:   limits,
		billingF: billingFrequency,
		log:      log.With(zap.String("component", "registry")),
	}
}

// Contract looks up a contract by id.
func (r *Registry) Contract(id uint64) (*contracttypes.Contract, bool, error) {
	return r.dao.GetContract(id)
}

// BillingInfo returns a contract's metered-consumption accumulator.
func (r *Registry) BillingInfo(id uint64) (contracttypes.BillingInfo, error) {
	return r.dao.GetBillingInfo(id)
}

// SetBillingInfo persists a contract's metered-consumption accumulator.
func (r *Registry) SetBillingInfo(id uint64, bi contracttypes.BillingInfo) error {
	return r.dao.PutBillingInfo(id, bi)
}

// Lock returns a contract's lock bookkeeping.
func (r *Registry) Lock(id uint64) (contracttypes.Lock, error) {
	return r.dao.GetLock(id)
}

// SetLock persists a contract's lock bookkeeping.
func (r *Registry) SetLock(id uint64, l contracttypes.Lock) error {
	return r.dao.PutLock(id, l)
}

// Resources returns a deployment contract's last reported usage snapshot.
func (r *Registry) Resources(id uint64) (contracttypes.NodeContractResources, error) {
	return r.dao.GetResources(id)
}

// ActiveByNode returns the ids of contracts currently active on a node.
func (r *Registry) ActiveByNode(node iface.NodeID) ([]uint64, error) {
	return r.dao.GetActiveByNode(node)
}

// ActiveRentByNode returns the rent contract active on a node, if any.
func (r *Registry) ActiveRentByNode(node iface.NodeID) (uint64, bool, error) {
	return r.dao.GetActiveRentByNode(node)
}

// BillingSlot returns the contract ids registered at billing slot index.
func (r *Registry) BillingSlot(slot uint64) ([]uint64, error) {
	return r.dao.GetBillingSlot(slot)
}

// SolutionProvider looks up a solution provider record by id.
func (r *Registry) SolutionProvider(id uint64) (*contracttypes.SolutionProvider, bool, error) {
	return r.dao.GetSolutionProvider(id)
}

// External exposes the consulted tfgrid registry collaborator, for
// components (billing, scheduler) that need direct access to node/farm/
// pricing data without re-deriving it through the registry.
func (r *Registry) External() iface.Registry {
	return r.ext
}

// BillingFrequency returns F, the slotting modulus (spec.md §4.3).
func (r *Registry) BillingFrequency() uint64 {
	return r.billingF
}

// SetBillingFrequency updates F for contracts created from now on. Existing
// billing-slot assignments, computed with the old modulus at insertion time,
// are left untouched — mirroring the original pallet's root-only
// _change_billing_frequency, which never rehashes contracts already in the
// billing loop. Callers (pkg/scheduler) are expected to enforce the
// increase-only rule before calling this.
func (r *Registry) SetBillingFrequency(f uint64) {
	r.billingF = f
}

// slotOf returns id mod F.
func (r *Registry) slotOf(id uint64) uint64 {
	return id % r.billingF
}

func (r *Registry) insertBillingSlot(id uint64) error {
	slot := r.slotOf(id)
	ids, err := r.dao.GetBillingSlot(slot)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	return r.dao.PutBillingSlot(slot, ids)
}

func (r *Registry) removeBillingSlot(id uint64) error {
	slot := r.slotOf(id)
	ids, err := r.dao.GetBillingSlot(slot)
	if err != nil {
		return err
	}
	var found bool
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		} else {
			found = true
		}
	}
	if !found {
		// The contract wasn't registered at the slot its own id hashes to:
		// the billing-loop index and contract storage have diverged. This
		// is an internal bug, not a caller error (see pkg/contracterrors).
		r.log.Error("billing loop index corruption", zap.Uint64("contract_id", id), zap.Uint64("slot", slot))
		return contracterrors.ErrContractWrongBillingLoopIndex
	}
	return r.dao.PutBillingSlot(slot, out)
}

// authorizeTwin resolves caller to a twin id, failing with TwinNotExists.
func (r *Registry) authorizeTwin(caller iface.Account) (iface.TwinID, error) {
	twin, ok := r.ext.TwinIDOf(caller)
	if !ok {
		return 0, contracterrors.ErrTwinNotExists
	}
	return twin, nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("registry: %s: %w", op, err)
}

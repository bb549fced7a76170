package registry

import (
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/metrics"
)

// Finalize tears down every piece of storage associated with a Deleted
// contract: the by_id/by_node_hash/by_name/active_by_node/
// active_rent_by_node/billing_slots indices, its billing info, lock and
// resource snapshot, and frees any reserved public IPs. It is the single
// place both cancel_contract and the billing engine's OutOfFunds deletion
// path route through, so "after cancel_contract(c), by_id[c] is absent and
// every index entry for c is absent" (spec.md §8) holds regardless of which
// path triggered the deletion.
//
// Finalize emits the contract-kind-specific cancellation event
// (NodeContractCanceled/NameContractCanceled/RentContractCanceled) itself;
// callers must have already emitted ContractBilled for the final cycle, per
// spec.md §7 "Events always precede failure-induced deletion".
func (r *Registry) Finalize(c *contracttypes.Contract) error {
	switch c.Type.Kind {
	case contracttypes.TypeDeployment:
		d := c.Type.Deployment
		if node, ok := r.ext.Node(d.NodeID); ok {
			if _, err := r.ips.Free(node.FarmID, c.ID); err != nil {
				r.log.Warn("failed to free ips on finalize", zap.Uint64("contract_id", c.ID), zap.Error(err))
			}
		}
		if err := r.dao.DeleteByNodeHash(d.NodeID, d.DeploymentHash); err != nil {
			return err
		}
		if err := r.dao.RemoveActiveByNode(d.NodeID, c.ID); err != nil {
			return err
		}
		if err := r.dao.DeleteResources(c.ID); err != nil {
			return err
		}
		r.bus.Emit(events.NodeContractCanceled, c)
	case contracttypes.TypeName:
		if err := r.dao.DeleteByName(c.Type.Name.Name); err != nil {
			return err
		}
		r.bus.Emit(events.NameContractCanceled, c)
	case contracttypes.TypeRent:
		// lib.rs remove_contract unconditionally recurses into every still-
		// active node contract on the node before removing the rent contract
		// itself; without this, deployment contracts on the node would
		// survive referencing a rent contract that no longer exists and
		// silently revert to full (non-dedicated) resource cost.
		if err := r.cascadeFinalizeActiveDeployments(c.Type.Rent.NodeID, c.State.DeleteCause); err != nil {
			return err
		}
		if err := r.dao.DeleteActiveRentByNode(c.Type.Rent.NodeID); err != nil {
			return err
		}
		r.bus.Emit(events.RentContractCanceled, c)
	}

	if err := r.dao.DeleteBillingInfo(c.ID); err != nil {
		return err
	}
	if err := r.dao.DeleteLock(c.ID); err != nil {
		return err
	}
	if err := r.removeBillingSlot(c.ID); err != nil {
		return err
	}
	if err := r.dao.DeleteContract(c.ID); err != nil {
		return err
	}
	metrics.ContractDeleted(c.State.DeleteCause.String())
	r.log.Info("finalized contract removal", zap.Uint64("contract_id", c.ID), zap.String("cause", c.State.DeleteCause.String()))
	return nil
}

// SaveContract persists a contract's current (mutated in place) state. Used
// by the billing engine after a state transition.
func (r *Registry) SaveContract(c *contracttypes.Contract) error {
	return r.dao.PutContract(c)
}

// cascadeFinalizeActiveDeployments finalizes every deployment contract still
// active on node, carrying the same deletion cause as the rent contract that
// is being torn down (lib.rs remove_contract's recursion into
// ActiveNodeContracts).
func (r *Registry) cascadeFinalizeActiveDeployments(node iface.NodeID, cause contracttypes.Cause) error {
	ids, err := r.dao.GetActiveByNode(node)
	if err != nil {
		return err
	}
	for _, id := range ids {
		child, ok, err := r.Contract(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		child.State = contracttypes.Deleted(cause)
		if err := r.Finalize(child); err != nil {
			return err
		}
	}
	return nil
}

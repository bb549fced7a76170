package registry

import (
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
)

// Biller is the billing engine's half of the cycle that CancelContract must
// complete before tearing down storage: one last cost computation and
// distribution for whatever is unbilled up to now. Defined here (rather than
// imported from pkg/billing) because pkg/billing itself consults the
// registry for contract/pricing state — billing depending on registry and
// registry depending on billing would be a cycle. Registry only needs the
// narrow capability, so it declares the interface and pkg/billing.Engine
// satisfies it; the concrete engine is wired in with SetBiller once both are
// constructed.
type Biller interface {
	// Bill runs one billing cycle for contractID as of blockNumber/now. It
	// must emit ContractBilled (spec.md §7) before returning, even when the
	// contract ends up marked Deleted(OutOfFunds) as a result.
	Bill(contractID uint64, blockNumber, now uint64) error
}

// SetBiller wires the billing engine in after construction, breaking the
// registry<->billing import cycle.
func (r *Registry) SetBiller(b Biller) {
	r.biller = b
}

// CancelContract removes a contract from existence (spec.md §4.1
// cancel_contract). Only the owning twin may cancel. A rent contract with
// deployment contracts still riding on its node cannot be canceled directly
// (NodeHasActiveContracts) — per the pallet this is a hard block, not a
// cascade; cascading cancellation of a node's deployments only ever happens
// through the billing engine's grace-period expiry path, never through this
// user-initiated extrinsic.
func (r *Registry) CancelContract(caller iface.Account, id uint64, blockNumber, now uint64) error {
	c, ok, err := r.dao.GetContract(id)
	if err != nil {
		return err
	}
	if !ok {
		return contracterrors.ErrContractNotExists
	}
	twin, err := r.authorizeTwin(caller)
	if err != nil {
		return err
	}
	if c.TwinID != twin {
		return contracterrors.ErrTwinNotAuthorizedToCancelContract
	}
	if c.Type.Kind == contracttypes.TypeRent {
		active, err := r.dao.GetActiveByNode(c.Type.Rent.NodeID)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return contracterrors.ErrNodeHasActiveContracts
		}
	}

	c.State = contracttypes.Deleted(contracttypes.CauseCanceledByUser)
	if err := r.dao.PutContract(c); err != nil {
		return err
	}

	if r.biller != nil {
		if err := r.biller.Bill(c.ID, blockNumber, now); err != nil {
			return err
		}
		// Bill finalizes (and removes) a Deleted contract once it has emitted
		// ContractBilled, but returns early without doing so when the price
		// is unavailable; re-fetch to see whether Finalize still needs to run.
		if _, stillExists, err := r.dao.GetContract(id); err != nil {
			return err
		} else if !stillExists {
			return nil
		}
	}

	r.log.Info("canceling contract", zap.Uint64("contract_id", id))
	return r.Finalize(c)
}

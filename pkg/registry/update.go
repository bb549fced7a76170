package registry

import (
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
)

// UpdateDeploymentContract rewrites a deployment contract's hash/data
// (spec.md §4.1 update_deployment_contract). Only allowed while the contract
// is in Created state; the (node,hash) uniqueness index is rewritten in the
// same call.
func (r *Registry) UpdateDeploymentContract(caller iface.Account, id uint64, data []byte, hash [32]byte) error {
	c, ok, err := r.dao.GetContract(id)
	if err != nil {
		return err
	}
	if !ok {
		return contracterrors.ErrContractNotExists
	}
	if c.Type.Kind != contracttypes.TypeDeployment {
		return contracterrors.ErrInvalidContractType
	}
	twin, err := r.authorizeTwin(caller)
	if err != nil {
		return err
	}
	if c.TwinID != twin {
		return contracterrors.ErrTwinNotAuthorizedToUpdateContract
	}
	if !c.State.IsCreated() {
		return contracterrors.ErrCannotUpdateContractInGraceState
	}
	if len(data) > r.limits.MaxDeploymentDataLength || hash == zeroHash {
		return contracterrors.ErrInvalidContractType
	}

	oldHash := c.Type.Deployment.DeploymentHash
	nodeID := c.Type.Deployment.NodeID
	if hash != oldHash {
		if _, exists, err := r.dao.GetByNodeHash(nodeID, hash); err != nil {
			return err
		} else if exists {
			return contracterrors.ErrContractIsNotUnique
		}
		if err := r.dao.DeleteByNodeHash(nodeID, oldHash); err != nil {
			return err
		}
		if err := r.dao.PutByNodeHash(nodeID, hash, id); err != nil {
			return err
		}
	}
	c.Type.Deployment.DeploymentHash = hash
	c.Type.Deployment.DeploymentData = data
	c.Version++
	if err := r.dao.PutContract(c); err != nil {
		return err
	}

	r.bus.Emit(events.ContractUpdated, c)
	r.log.Info("updated deployment contract", zap.Uint64("contract_id", id))
	return nil
}

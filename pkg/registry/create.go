package registry

import (
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/metrics"
)

var zeroHash [32]byte

// CreateDeploymentContract creates a node-bound deployment contract
// (spec.md §4.1 create_deployment_contract).
func (r *Registry) CreateDeploymentContract(
	caller iface.Account,
	nodeID iface.NodeID,
	hash [32]byte,
	data []byte,
	ipCount uint32,
	solutionProviderID uint64,
	now uint64,
) (*contracttypes.Contract, error) {
	twin, err := r.authorizeTwin(caller)
	if err != nil {
		return nil, err
	}
	node, ok := r.ext.Node(nodeID)
	if !ok {
		return nil, contracterrors.ErrNodeNotExists
	}
	if node.Dedicated {
		rentID, hasRent, err := r.dao.GetActiveRentByNode(nodeID)
		if err != nil {
			return nil, err
		}
		if !hasRent {
			return nil, contracterrors.ErrNodeNotAvailableToDeploy
		}
		rent, ok, err := r.dao.GetContract(rentID)
		if err != nil {
			return nil, err
		}
		if !ok || rent.TwinID != twin {
			return nil, contracterrors.ErrNodeNotAvailableToDeploy
		}
	}
	if hash == zeroHash {
		return nil, contracterrors.ErrInvalidContractType
	}
	if len(data) > r.limits.MaxDeploymentDataLength {
		return nil, contracterrors.ErrInvalidContractType
	}
	if _, exists, err := r.dao.GetByNodeHash(nodeID, hash); err != nil {
		return nil, err
	} else if exists {
		return nil, contracterrors.ErrContractIsNotUnique
	}
	if solutionProviderID != 0 {
		if err := r.checkSolutionProviderApproved(solutionProviderID); err != nil {
			return nil, err
		}
	}

	id, err := r.dao.NextContractID()
	if err != nil {
		return nil, err
	}

	var allocated []contracttypes.IPAllocation
	if ipCount > 0 {
		allocated, err = r.ips.Reserve(node.FarmID, id, ipCount)
		if err != nil {
			return nil, err
		}
	}

	c := &contracttypes.Contract{
		ID:                 id,
		Version:            1,
		TwinID:             twin,
		State:              contracttypes.Created(),
		SolutionProviderID: solutionProviderID,
		Type: contracttypes.ContractType{
			Kind: contracttypes.TypeDeployment,
			Deployment: contracttypes.DeploymentContract{
				NodeID:             nodeID,
				DeploymentHash:     hash,
				DeploymentData:     data,
				PublicIPsRequested: ipCount,
				PublicIPsAllocated: allocated,
			},
		},
	}
	if err := r.persistNewContract(c, now); err != nil {
		return nil, err
	}
	if err := r.dao.PutByNodeHash(nodeID, hash, id); err != nil {
		return nil, err
	}
	if err := r.dao.AddActiveByNode(nodeID, id); err != nil {
		return nil, err
	}

	metrics.ContractCreated("deployment")
	r.bus.Emit(events.ContractCreated, c)
	r.log.Info("created deployment contract",
		zap.Uint64("contract_id", id), zap.Uint32("node_id", uint32(nodeID)))
	return c, nil
}

// CreateRentContract creates a whole-node rent contract (spec.md §4.1
// create_rent_contract).
func (r *Registry) CreateRentContract(caller iface.Account, nodeID iface.NodeID, now uint64) (*contracttypes.Contract, error) {
	twin, err := r.authorizeTwin(caller)
	if err != nil {
		return nil, err
	}
	node, ok := r.ext.Node(nodeID)
	if !ok {
		return nil, contracterrors.ErrNodeNotExists
	}
	active, err := r.dao.GetActiveByNode(nodeID)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, contracterrors.ErrNodeHasActiveContracts
	}
	if _, has, err := r.dao.GetActiveRentByNode(nodeID); err != nil {
		return nil, err
	} else if has {
		return nil, contracterrors.ErrNodeHasRentContract
	}
	if !node.Dedicated {
		return nil, contracterrors.ErrNodeIsNotDedicated
	}

	id, err := r.dao.NextContractID()
	if err != nil {
		return nil, err
	}
	c := &contracttypes.Contract{
		ID:      id,
		Version: 1,
		TwinID:  twin,
		State:   contracttypes.Created(),
		Type: contracttypes.ContractType{
			Kind: contracttypes.TypeRent,
			Rent: contracttypes.RentContract{NodeID: nodeID},
		},
	}
	if err := r.persistNewContract(c, now); err != nil {
		return nil, err
	}
	if err := r.dao.PutActiveRentByNode(nodeID, id); err != nil {
		return nil, err
	}

	metrics.ContractCreated("rent")
	r.bus.Emit(events.ContractCreated, c)
	r.log.Info("created rent contract", zap.Uint64("contract_id", id), zap.Uint32("node_id", uint32(nodeID)))
	return c, nil
}

// CreateNameContract reserves a unique name (spec.md §4.1 create_name_contract).
func (r *Registry) CreateNameContract(caller iface.Account, name string, now uint64) (*contracttypes.Contract, error) {
	twin, err := r.authorizeTwin(caller)
	if err != nil {
		return nil, err
	}
	if !validName(name, r.limits.MaxNameLength) {
		return nil, contracterrors.ErrNameNotValid
	}
	if _, exists, err := r.dao.GetByName(name); err != nil {
		return nil, err
	} else if exists {
		return nil, contracterrors.ErrNameExists
	}

	id, err := r.dao.NextContractID()
	if err != nil {
		return nil, err
	}
	c := &contracttypes.Contract{
		ID:      id,
		Version: 1,
		TwinID:  twin,
		State:   contracttypes.Created(),
		Type: contracttypes.ContractType{
			Kind: contracttypes.TypeName,
			Name: contracttypes.NameContract{Name: name},
		},
	}
	if err := r.persistNewContract(c, now); err != nil {
		return nil, err
	}
	if err := r.dao.PutByName(name, id); err != nil {
		return nil, err
	}

	metrics.ContractCreated("name")
	r.bus.Emit(events.ContractCreated, c)
	r.log.Info("created name contract", zap.Uint64("contract_id", id), zap.String("name", name))
	return c, nil
}

// persistNewContract writes the contract, its fresh billing info, lock and
// billing-slot registration (spec.md §3 "Lifecycle: Create").
func (r *Registry) persistNewContract(c *contracttypes.Contract, now uint64) error {
	if err := r.dao.PutContract(c); err != nil {
		return err
	}
	if err := r.dao.PutBillingInfo(c.ID, contracttypes.BillingInfo{LastUpdated: now}); err != nil {
		return err
	}
	if err := r.dao.PutLock(c.ID, contracttypes.Lock{LockUpdated: now}); err != nil {
		return err
	}
	return r.insertBillingSlot(c.ID)
}

func validName(name string, maxLen int) bool {
	if len(name) < 3 || len(name) > maxLen {
		return false
	}
	for _, c := range name {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

func (r *Registry) checkSolutionProviderApproved(id uint64) error {
	sp, ok, err := r.dao.GetSolutionProvider(id)
	if err != nil {
		return err
	}
	if !ok || !sp.Approved {
		return contracterrors.ErrSolutionProviderNotApproved
	}
	return nil
}

// CreateSolutionProvider registers a new (initially unapproved) solution
// provider (spec.md §6 create_solution_provider).
func (r *Registry) CreateSolutionProvider(description, link string, providers []contracttypes.SolutionProviderShare) (*contracttypes.SolutionProvider, error) {
	var total uint8
	for _, p := range providers {
		total += p.Take
	}
	if total > 50 || len(providers) == 0 || len(providers) > r.limits.MaxSolutionProviders {
		return nil, contracterrors.ErrInvalidProviderConfiguration
	}
	id, err := r.dao.NextSolutionProviderID()
	if err != nil {
		return nil, err
	}
	sp := &contracttypes.SolutionProvider{
		ID:          id,
		Description: description,
		Link:        link,
		Providers:   providers,
		Approved:    false,
	}
	if err := r.dao.PutSolutionProvider(sp); err != nil {
		return nil, err
	}
	r.bus.Emit(events.SolutionProviderCreated, sp)
	return sp, nil
}

// ApproveSolutionProvider flips a solution provider's approval flag
// (spec.md §6 approve_solution_provider, restricted to council/root by the
// caller of this method).
func (r *Registry) ApproveSolutionProvider(id uint64, approve bool) error {
	sp, ok, err := r.dao.GetSolutionProvider(id)
	if err != nil {
		return err
	}
	if !ok {
		return contracterrors.ErrNoSuchSolutionProvider
	}
	sp.Approved = approve
	if err := r.dao.PutSolutionProvider(sp); err != nil {
		return err
	}
	r.bus.Emit(events.SolutionProviderApproved, sp)
	return nil
}

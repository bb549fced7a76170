package registry

import (
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
)

// ResourceReport is one entry of a report_contract_resources batch (spec.md
// §4.1 report_contract_resources).
type ResourceReport struct {
	ContractID uint64
	Used       iface.Resources
}

// NruReport is one entry of an add_nru_reports batch (spec.md §4.1
// add_nru_reports).
type NruReport struct {
	ContractID     uint64
	NruCumulative  uint64
	WindowSeconds  uint64
	Timestamp      uint64
}

// ReportContractResources writes the used-resource snapshot for each
// reported deployment contract owned by the calling node. Ids that no
// longer exist are silently skipped (a race with cancellation is not an
// error); any id that resolves to a contract on a different node aborts the
// whole batch with NodeNotAuthorizedToComputeReport, matching the
// all-or-nothing extrinsic semantics of the original pallet.
func (r *Registry) ReportContractResources(nodeCaller iface.Account, reports []ResourceReport) error {
	twin, err := r.authorizeTwin(nodeCaller)
	if err != nil {
		return err
	}
	type pending struct {
		id  uint64
		res contracttypes.NodeContractResources
	}
	var writes []pending
	for _, rep := range reports {
		c, ok, err := r.dao.GetContract(rep.ContractID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		nodeID, isDeployment := c.Type.NodeID()
		if !isDeployment || c.Type.Kind != contracttypes.TypeDeployment {
			return contracterrors.ErrNodeNotAuthorizedToComputeReport
		}
		node, ok := r.ext.Node(nodeID)
		if !ok || node.TwinID != twin {
			return contracterrors.ErrNodeNotAuthorizedToComputeReport
		}

		writes = append(writes, pending{id: rep.ContractID, res: contracttypes.NodeContractResources{Used: rep.Used, Total: node.Resources}})
	}
	for _, w := range writes {
		if err := r.dao.PutResources(w.id, w.res); err != nil {
			return err
		}
		r.bus.Emit(events.UpdatedUsedResources, map[string]any{
			"contract_id": w.id,
			"used":        w.res.Used,
		})
	}
	r.log.Info("recorded resource reports", zap.Int("count", len(reports)))
	return nil
}

// AddNRUReports accumulates network-usage (NU) consumption into each
// contract's amount_unbilled, from a cumulative, possibly-resetting counter
// (spec.md §4.1 add_nru_reports). Reports older than the contract's
// last_updated timestamp are ignored so replayed/out-of-order reports never
// double-count or run backwards.
func (r *Registry) AddNRUReports(nodeCaller iface.Account, reports []NruReport) error {
	twin, err := r.authorizeTwin(nodeCaller)
	if err != nil {
		return err
	}
	for _, rep := range reports {
		c, ok, err := r.dao.GetContract(rep.ContractID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if c.Type.Kind != contracttypes.TypeDeployment {
			continue
		}
		nodeID, _ := c.Type.NodeID()
		node, ok := r.ext.Node(nodeID)
		if !ok || node.TwinID != twin {
			return contracterrors.ErrNodeNotAuthorizedToComputeReport
		}

		bi, err := r.dao.GetBillingInfo(rep.ContractID)
		if err != nil {
			return err
		}
		if rep.Timestamp < bi.LastUpdated {
			continue
		}

		var delta uint64
		if rep.NruCumulative > bi.PreviousNUReported {
			delta = rep.NruCumulative - bi.PreviousNUReported
		}

		farm, ok := r.ext.Farm(node.FarmID)
		if ok {
			if policy, ok := r.ext.PricingPolicy(farm.PricingPolicyID); ok && policy.NU.UnitFactor > 0 {
				bi.AmountUnbilled += policy.NU.Value * delta / policy.NU.UnitFactor
			}
		}
		bi.PreviousNUReported = rep.NruCumulative
		bi.LastUpdated = rep.Timestamp
		if err := r.dao.PutBillingInfo(rep.ContractID, bi); err != nil {
			return err
		}

		r.bus.Emit(events.NruConsumptionReportReceived, map[string]any{
			"contract_id": rep.ContractID,
			"nru":         rep.NruCumulative,
			"window":      rep.WindowSeconds,
			"timestamp":   rep.Timestamp,
		})
	}
	r.log.Info("recorded nru reports", zap.Int("count", len(reports)))
	return nil
}

// Package ipreservation implements the IP Reservation component (spec.md
// §4.4): atomically reserving/freeing entries of a farm's public IP pool.
package ipreservation

import (
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/metrics"
)

// Reserver reserves/frees public IPs from a farm's pool, delegating the
// actual pool mutation to the tfgrid Registry collaborator (which owns farm
// state) and emitting the IPsReserved/IPsFreed events on success.
type Reserver struct {
	ext iface.Registry
	bus *events.Bus
	log *zap.Logger
}

// New creates a Reserver.
func New(ext iface.Registry, bus *events.Bus, log *zap.Logger) *Reserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reserver{ext: ext, bus: bus, log: log.With(zap.String("component", "ipreservation"))}
}

// Reserve scans farm's IP pool in order and stamps the first count entries
// whose ContractID is zero with contractID. If fewer than count are free, no
// mutation is persisted and ErrFarmHasNotEnoughPublicIPs is returned — the
// Registry collaborator is expected to implement ReserveIPs with this same
// all-or-nothing guarantee (spec.md §4.4 "no mutation is persisted").
func (r *Reserver) Reserve(farm iface.FarmID, contractID uint64, count uint32) ([]contracttypes.IPAllocation, error) {
	if count == 0 {
		return nil, nil
	}
	reserved, err := r.ext.ReserveIPs(farm, contractID, count)
	if err != nil {
		r.log.Warn("ip reservation failed",
			zap.Uint32("farm_id", uint32(farm)),
			zap.Uint64("contract_id", contractID),
			zap.Uint32("requested", count),
			zap.Error(err))
		return nil, contracterrors.ErrFarmHasNotEnoughPublicIPs
	}
	out := make([]contracttypes.IPAllocation, len(reserved))
	for i, ip := range reserved {
		out[i] = contracttypes.IPAllocation{IP: ip.IP, Gateway: ip.Gateway}
	}
	metrics.IPsReserved(len(out))
	r.bus.Emit(events.IPsReserved, map[string]any{
		"farm_id":     farm,
		"contract_id": contractID,
		"ips":         out,
	})
	r.log.Info("reserved public ips",
		zap.Uint32("farm_id", uint32(farm)),
		zap.Uint64("contract_id", contractID),
		zap.Int("count", len(out)))
	return out, nil
}

// Free resets every IP pool entry owned by contractID back to unallocated.
func (r *Reserver) Free(farm iface.FarmID, contractID uint64) ([]contracttypes.IPAllocation, error) {
	freed, err := r.ext.FreeIPs(farm, contractID)
	if err != nil {
		return nil, err
	}
	out := make([]contracttypes.IPAllocation, len(freed))
	for i, ip := range freed {
		out[i] = contracttypes.IPAllocation{IP: ip.IP, Gateway: ip.Gateway}
	}
	if len(out) > 0 {
		metrics.IPsFreed(len(out))
		r.bus.Emit(events.IPsFreed, map[string]any{
			"farm_id":     farm,
			"contract_id": contractID,
			"ips":         out,
		})
		r.log.Info("freed public ips",
			zap.Uint32("farm_id", uint32(farm)),
			zap.Uint64("contract_id", contractID),
			zap.Int("count", len(out)))
	}
	return out, nil
}

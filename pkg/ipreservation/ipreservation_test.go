package ipreservation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/tfgridstate"
)

func newTestReserver(t *testing.T, ips ...string) (*Reserver, *tfgridstate.State) {
	t.Helper()
	grid := tfgridstate.New()
	var pool []iface.PublicIP
	for _, ip := range ips {
		pool = append(pool, iface.PublicIP{IP: ip})
	}
	grid.SetFarm(iface.Farm{ID: 1, PublicIPs: pool})
	return New(grid, events.NewBus(), zap.NewNop()), grid
}

func TestReserveZeroCountIsNoop(t *testing.T) {
	r, _ := newTestReserver(t, "1.1.1.1/24")
	out, err := r.Reserve(1, 42, 0)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestReserveAllocatesFreeEntries(t *testing.T) {
	r, grid := newTestReserver(t, "1.1.1.1/24", "1.1.1.2/24")
	out, err := r.Reserve(1, 42, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)

	farm, ok := grid.Farm(1)
	require.True(t, ok)
	for _, ip := range farm.PublicIPs {
		require.Equal(t, uint64(42), ip.ContractID)
	}
}

func TestReserveInsufficientIPsFailsAllOrNothing(t *testing.T) {
	r, grid := newTestReserver(t, "1.1.1.1/24")
	_, err := r.Reserve(1, 42, 2)
	require.ErrorIs(t, err, contracterrors.ErrFarmHasNotEnoughPublicIPs)

	farm, ok := grid.Farm(1)
	require.True(t, ok)
	require.Zero(t, farm.PublicIPs[0].ContractID, "a failed reservation must not partially allocate")
}

func TestFreeReleasesOnlyTheOwningContractsIPs(t *testing.T) {
	r, grid := newTestReserver(t, "1.1.1.1/24", "1.1.1.2/24")
	_, err := r.Reserve(1, 42, 1)
	require.NoError(t, err)
	_, err = r.Reserve(1, 43, 1)
	require.NoError(t, err)

	freed, err := r.Free(1, 42)
	require.NoError(t, err)
	require.Len(t, freed, 1)

	farm, ok := grid.Farm(1)
	require.True(t, ok)
	var stillOwnedBy43 int
	for _, ip := range farm.PublicIPs {
		if ip.ContractID == 43 {
			stillOwnedBy43++
		}
		require.NotEqual(t, uint64(42), ip.ContractID)
	}
	require.Equal(t, 1, stillOwnedBy43)
}

func TestFreeWithNothingAllocatedReturnsEmpty(t *testing.T) {
	r, _ := newTestReserver(t, "1.1.1.1/24")
	freed, err := r.Free(1, 99)
	require.NoError(t, err)
	require.Empty(t, freed)
}

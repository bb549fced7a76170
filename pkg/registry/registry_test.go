package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/storage"
)

// fakeExternal is a minimal in-memory iface.Registry for registry tests.
type fakeExternal struct {
	twins  map[iface.Account]iface.TwinID
	nodes  map[iface.NodeID]iface.Node
	farms  map[iface.FarmID]iface.Farm
	policy map[uint32]iface.PricingPolicy
}

func newFakeExternal() *fakeExternal {
	return &fakeExternal{
		twins:  map[iface.Account]iface.TwinID{},
		nodes:  map[iface.NodeID]iface.Node{},
		farms:  map[iface.FarmID]iface.Farm{},
		policy: map[uint32]iface.PricingPolicy{},
	}
}

func (f *fakeExternal) TwinIDOf(a iface.Account) (iface.TwinID, bool) {
	t, ok := f.twins[a]
	return t, ok
}

func (f *fakeExternal) TwinAccount(twin iface.TwinID) (iface.Account, bool) {
	for a, t := range f.twins {
		if t == twin {
			return a, true
		}
	}
	return iface.Account{}, false
}

func (f *fakeExternal) Node(id iface.NodeID) (iface.Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

func (f *fakeExternal) Farm(id iface.FarmID) (iface.Farm, bool) {
	fr, ok := f.farms[id]
	return fr, ok
}

func (f *fakeExternal) PricingPolicy(id uint32) (iface.PricingPolicy, bool) {
	p, ok := f.policy[id]
	return p, ok
}

func (f *fakeExternal) ReserveIPs(farmID iface.FarmID, contractID uint64, count uint32) ([]iface.PublicIP, error) {
	farm := f.farms[farmID]
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
	f.farms[farmID] = farm
	return out, nil
}

func (f *fakeExternal) FreeIPs(farmID iface.FarmID, contractID uint64) ([]iface.PublicIP, error) {
	farm := f.farms[farmID]
	var out []iface.PublicIP
	for i, ip := range farm.PublicIPs {
		if ip.ContractID == contractID {
			farm.PublicIPs[i].ContractID = 0
			out = append(out, farm.PublicIPs[i])
		}
	}
	f.farms[farmID] = farm
	return out, nil
}

func twinAccount(b byte) iface.Account {
	var a iface.Account
	a[0] = b
	return a
}

func newTestRegistry(t *testing.T) (*Registry, *fakeExternal) {
	t.Helper()
	ext := newFakeExternal()
	acct := twinAccount(1)
	ext.twins[acct] = 1
	ext.nodes[1] = iface.Node{ID: 1, FarmID: 1, TwinID: 1, Resources: iface.Resources{CRU: 4, MRU: 8}}
	ext.farms[1] = iface.Farm{ID: 1, TwinID: 1, PublicIPs: []iface.PublicIP{{IP: "1.1.1.1/24"}, {IP: "1.1.1.2/24"}}}
	r := New(storage.NewMemoryStore(), ext, events.NewBus(), 10, DefaultLimits, zap.NewNop())
	return r, ext
}

func TestCreateDeploymentContract(t *testing.T) {
	r, _ := newTestRegistry(t)
	caller := twinAccount(1)
	hash := [32]byte{1}

	c, err := r.CreateDeploymentContract(caller, 1, hash, []byte("data"), 1, 0, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.ID)
	require.Len(t, c.Type.Deployment.PublicIPsAllocated, 1)

	// Duplicate (node, hash) must fail uniqueness.
	_, err = r.CreateDeploymentContract(caller, 1, hash, []byte("data"), 0, 0, 100)
	require.ErrorIs(t, err, contracterrors.ErrContractIsNotUnique)

	active, err := r.ActiveByNode(1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, active)
}

func TestCreateDeploymentContractUnknownTwin(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.CreateDeploymentContract(twinAccount(99), 1, [32]byte{1}, nil, 0, 0, 100)
	require.ErrorIs(t, err, contracterrors.ErrTwinNotExists)
}

func TestCreateRentContractThenDeploymentRequiresOwnership(t *testing.T) {
	r, ext := newTestRegistry(t)
	ext.nodes[1] = iface.Node{ID: 1, FarmID: 1, TwinID: 1, Dedicated: true}
	owner := twinAccount(1)

	rent, err := r.CreateRentContract(owner, 1, 100)
	require.NoError(t, err)
	require.Equal(t, contracttypes.TypeRent, rent.Type.Kind)

	// A second rent contract on the same node is rejected.
	_, err = r.CreateRentContract(owner, 1, 100)
	require.ErrorIs(t, err, contracterrors.ErrNodeHasRentContract)

	// A deployment from a non-owning twin is rejected on a dedicated node.
	other := twinAccount(2)
	ext.twins[other] = 2
	_, err = r.CreateDeploymentContract(other, 1, [32]byte{2}, nil, 0, 0, 100)
	require.ErrorIs(t, err, contracterrors.ErrNodeNotAvailableToDeploy)

	// The rent owner can deploy on their own dedicated node.
	_, err = r.CreateDeploymentContract(owner, 1, [32]byte{2}, nil, 0, 0, 100)
	require.NoError(t, err)
}

func TestCreateNameContractUniqueness(t *testing.T) {
	r, _ := newTestRegistry(t)
	caller := twinAccount(1)

	_, err := r.CreateNameContract(caller, "my-name", 100)
	require.NoError(t, err)
	_, err = r.CreateNameContract(caller, "my-name", 100)
	require.ErrorIs(t, err, contracterrors.ErrNameExists)
	_, err = r.CreateNameContract(caller, "x", 100)
	require.ErrorIs(t, err, contracterrors.ErrNameNotValid)
}

func TestUpdateDeploymentContract(t *testing.T) {
	r, _ := newTestRegistry(t)
	caller := twinAccount(1)
	c, err := r.CreateDeploymentContract(caller, 1, [32]byte{1}, []byte("v1"), 0, 0, 100)
	require.NoError(t, err)

	err = r.UpdateDeploymentContract(caller, c.ID, []byte("v2"), [32]byte{2})
	require.NoError(t, err)

	got, ok, err := r.Contract(c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(2), got.Version)
	require.Equal(t, [32]byte{2}, got.Type.Deployment.DeploymentHash)

	other := twinAccount(2)
	r.External().(*fakeExternal).twins[other] = 2
	err = r.UpdateDeploymentContract(other, c.ID, []byte("v3"), [32]byte{3})
	require.ErrorIs(t, err, contracterrors.ErrTwinNotAuthorizedToUpdateContract)
}

func TestCancelRentContractBlockedByActiveDeployments(t *testing.T) {
	r, ext := newTestRegistry(t)
	ext.nodes[1] = iface.Node{ID: 1, FarmID: 1, TwinID: 1, Dedicated: true}
	owner := twinAccount(1)

	rent, err := r.CreateRentContract(owner, 1, 100)
	require.NoError(t, err)
	_, err = r.CreateDeploymentContract(owner, 1, [32]byte{9}, nil, 0, 0, 100)
	require.NoError(t, err)

	err = r.CancelContract(owner, rent.ID, 1, 100)
	require.ErrorIs(t, err, contracterrors.ErrNodeHasActiveContracts)
}

func TestFinalizeCascadesRentContractDeletionToActiveDeployments(t *testing.T) {
	r, ext := newTestRegistry(t)
	ext.nodes[1] = iface.Node{ID: 1, FarmID: 1, TwinID: 1, Dedicated: true}
	owner := twinAccount(1)

	rent, err := r.CreateRentContract(owner, 1, 100)
	require.NoError(t, err)
	dep, err := r.CreateDeploymentContract(owner, 1, [32]byte{9}, nil, 0, 0, 100)
	require.NoError(t, err)

	rent.State = contracttypes.Deleted(contracttypes.CauseOutOfFunds)
	require.NoError(t, r.Finalize(rent))

	_, ok, err := r.Contract(dep.ID)
	require.NoError(t, err)
	require.False(t, ok, "finalizing a rent contract must cascade to its node's active deployment contracts")

	active, err := r.ActiveByNode(1)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestCancelDeploymentContractFreesResourcesAndIPs(t *testing.T) {
	r, ext := newTestRegistry(t)
	caller := twinAccount(1)
	c, err := r.CreateDeploymentContract(caller, 1, [32]byte{1}, nil, 1, 0, 100)
	require.NoError(t, err)

	err = r.CancelContract(caller, c.ID, 1, 100)
	require.NoError(t, err)

	_, ok, err := r.Contract(c.ID)
	require.NoError(t, err)
	require.False(t, ok)

	active, err := r.ActiveByNode(1)
	require.NoError(t, err)
	require.Empty(t, active)

	for _, ip := range ext.farms[1].PublicIPs {
		require.Zero(t, ip.ContractID, "canceling must free the contract's public IPs")
	}

	_, hasByHash, err := r.dao.GetByNodeHash(1, [32]byte{1})
	require.NoError(t, err)
	require.False(t, hasByHash)
}

func TestReportContractResourcesSkipsVanishedContract(t *testing.T) {
	r, _ := newTestRegistry(t)
	caller := twinAccount(1)
	c, err := r.CreateDeploymentContract(caller, 1, [32]byte{1}, nil, 0, 0, 100)
	require.NoError(t, err)

	err = r.ReportContractResources(caller, []ResourceReport{
		{ContractID: c.ID, Used: iface.Resources{CRU: 1}},
		{ContractID: 9999, Used: iface.Resources{CRU: 1}},
	})
	require.NoError(t, err)

	res, err := r.Resources(c.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Used.CRU)
}

func TestAddNRUReportsAccumulatesAndIgnoresStale(t *testing.T) {
	r, ext := newTestRegistry(t)
	ext.policy[0] = iface.PricingPolicy{NU: iface.Price{Value: 2, UnitFactor: 1}}
	caller := twinAccount(1)
	c, err := r.CreateDeploymentContract(caller, 1, [32]byte{1}, nil, 0, 0, 100)
	require.NoError(t, err)

	err = r.AddNRUReports(caller, []NruReport{{ContractID: c.ID, NruCumulative: 10, Timestamp: 200}})
	require.NoError(t, err)
	bi, err := r.BillingInfo(c.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(20), bi.AmountUnbilled)
	require.Equal(t, uint64(10), bi.PreviousNUReported)

	// Stale report (timestamp before last_updated) is ignored.
	err = r.AddNRUReports(caller, []NruReport{{ContractID: c.ID, NruCumulative: 999, Timestamp: 50}})
	require.NoError(t, err)
	bi, err = r.BillingInfo(c.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(20), bi.AmountUnbilled)

	// Counter rewind treated as zero delta.
	err = r.AddNRUReports(caller, []NruReport{{ContractID: c.ID, NruCumulative: 5, Timestamp: 300}})
	require.NoError(t, err)
	bi, err = r.BillingInfo(c.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(20), bi.AmountUnbilled)
	require.Equal(t, uint64(5), bi.PreviousNUReported)
}

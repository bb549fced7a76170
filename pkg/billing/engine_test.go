package billing

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/registry"
	"github.com/threefoldtech/tfchain-billing/pkg/storage"
	"github.com/threefoldtech/tfchain-billing/pkg/tfgridstate"
)

func testPricingPolicyFull() iface.PricingPolicy {
	return iface.PricingPolicy{
		ID:                         1,
		SU:                         iface.Price{Value: 300000, UnitFactor: 1024 * 1024 * 1024},
		CU:                         iface.Price{Value: 600000, UnitFactor: 1024 * 1024 * 1024},
		IPU:                        iface.Price{Value: 40000, UnitFactor: 1},
		UniqueName:                 iface.Price{Value: 10000, UnitFactor: 1},
		DiscountForDedicationNodes: 50,
	}
}

// testFixture wires a Registry + Engine over a tfgridstate.State with one
// farmer-owned node and a funded tenant twin, ready to create a deployment
// contract against.
type testFixture struct {
	grid       *tfgridstate.State
	reg        *registry.Registry
	engine     *Engine
	tenant     iface.Account
	farmer     iface.Account
	farmerTwin iface.TwinID
}

func newFixture(t *testing.T, cfg Config, tenantBalance uint64) *testFixture {
	t.Helper()
	grid := tfgridstate.New()
	grid.SetMinimumBalance(1)
	grid.SetTFTPrice(40)

	var tenant, farmer iface.Account
	tenant[0] = 1
	farmer[0] = 2
	grid.CreateTwin(tenant)
	farmerTwin := grid.CreateTwin(farmer)
	grid.Fund(tenant, tenantBalance)

	grid.SetFarm(iface.Farm{ID: 1, TwinID: farmerTwin, PricingPolicyID: 1})
	grid.SetNode(iface.Node{ID: 1, FarmID: 1, TwinID: farmerTwin, Resources: iface.Resources{CRU: 4, MRU: 8 * 1024 * 1024 * 1024}})
	grid.SetPricingPolicy(testPricingPolicyFull())

	bus := events.NewBus()
	reg := registry.New(storage.NewMemoryStore(), grid, bus, 10, registry.DefaultLimits, zap.NewNop())
	engine, err := New(reg, grid, grid, bus, cfg, zap.NewNop())
	require.NoError(t, err)

	return &testFixture{grid: grid, reg: reg, engine: engine, tenant: tenant, farmer: farmer, farmerTwin: farmerTwin}
}

func (f *testFixture) createAndReport(t *testing.T, now uint64) uint64 {
	t.Helper()
	contract, err := f.reg.CreateDeploymentContract(f.tenant, 1, [32]byte{1}, nil, 0, 0, now)
	require.NoError(t, err)

	err = f.reg.ReportContractResources(f.farmer, []registry.ResourceReport{
		{ContractID: contract.ID, Used: iface.Resources{CRU: 2, MRU: 4 * 1024 * 1024 * 1024}},
	})
	require.NoError(t, err)
	return contract.ID
}

func TestBillDeploymentContractDistributesRewards(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DistributionFrequency = 1
	f := newFixture(t, cfg, 1_000_000_000)

	id := f.createAndReport(t, 1000)
	before := f.grid.FreeBalance(f.tenant)

	require.NoError(t, f.engine.Bill(id, 1, 1000+3600))

	c, ok, err := f.reg.Contract(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, c.State.IsCreated(), "plenty of funds: contract must stay Created")

	after := f.grid.FreeBalance(f.tenant)
	require.Less(t, after, before, "billing must deduct from the tenant's balance")

	var sinkAccount iface.Account // FoundationAccount/CertifiedSalesAccount/StakingPoolAccount all default to the zero account in this fixture
	require.Greater(t, f.grid.FreeBalance(sinkAccount), uint64(0), "the reward split must have paid out somewhere")

	bi, err := f.reg.BillingInfo(id)
	require.NoError(t, err)
	require.Zero(t, bi.AmountUnbilled, "a completed cycle clears the unbilled accumulator")
}

func TestHandleLockExtendsTwinWideAggregateAcrossContracts(t *testing.T) {
	cfg := DefaultConfig() // DistributionFrequency defaults to 24: the shared lock must grow without a distribution resetting it this cycle.
	f := newFixture(t, cfg, 1_000_000_000)

	// A second node/farm under the same farmer twin, so a second contract can
	// be billed against the same tenant twin as the first.
	f.grid.SetFarm(iface.Farm{ID: 2, TwinID: f.farmerTwin, PricingPolicyID: 1})
	f.grid.SetNode(iface.Node{ID: 2, FarmID: 2, TwinID: f.farmerTwin, Resources: iface.Resources{CRU: 4, MRU: 8 * 1024 * 1024 * 1024}})

	a, err := f.reg.CreateDeploymentContract(f.tenant, 1, [32]byte{1}, nil, 0, 0, 1000)
	require.NoError(t, err)
	require.NoError(t, f.reg.ReportContractResources(f.farmer, []registry.ResourceReport{
		{ContractID: a.ID, Used: iface.Resources{CRU: 2, MRU: 4 * 1024 * 1024 * 1024}},
	}))

	b, err := f.reg.CreateDeploymentContract(f.tenant, 2, [32]byte{2}, nil, 0, 0, 1000)
	require.NoError(t, err)
	require.NoError(t, f.reg.ReportContractResources(f.farmer, []registry.ResourceReport{
		{ContractID: b.ID, Used: iface.Resources{CRU: 2, MRU: 4 * 1024 * 1024 * 1024}},
	}))

	require.NoError(t, f.engine.Bill(a.ID, 1, 1000+3600))
	lockedAfterA := f.grid.FreeBalance(f.tenant) - f.grid.UsableBalance(f.tenant)
	require.NotZero(t, lockedAfterA)

	require.NoError(t, f.engine.Bill(b.ID, 1, 1000+3600))
	lockedAfterB := f.grid.FreeBalance(f.tenant) - f.grid.UsableBalance(f.tenant)

	require.Greater(t, lockedAfterB, lockedAfterA,
		"billing a second contract for the same twin must grow the shared GridLockID lock by this cycle's due, not leave it at the first contract's own amount")
}

func TestBillSkipsWhenOraclePriceUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	f := newFixture(t, cfg, 1_000_000_000)
	f.grid.SetTFTPrice(0) // oracle has never reported, mirrors a fresh chain

	id := f.createAndReport(t, 1000)
	err := f.engine.Bill(id, 1, 1000+3600)
	require.NoError(t, err, "an unavailable price must be skipped, not surfaced as a failure")

	c, ok, err := f.reg.Contract(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, c.State.IsCreated(), "the contract must be untouched while the price is unavailable")
}

func TestBillEntersGracePeriodWhenFundsInsufficient(t *testing.T) {
	cfg := DefaultConfig()
	f := newFixture(t, cfg, 1) // far too little to cover even a small cycle

	id := f.createAndReport(t, 1000)
	require.NoError(t, f.engine.Bill(id, 1, 1000+3600))

	c, ok, err := f.reg.Contract(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, c.State.IsGracePeriod(), "insufficient usable balance must push the contract into grace")
}

func TestBillDeletesContractAfterGracePeriodExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GracePeriodBlocks = 10
	f := newFixture(t, cfg, 1)

	id := f.createAndReport(t, 1000)
	require.NoError(t, f.engine.Bill(id, 1, 1000+3600))

	c, ok, err := f.reg.Contract(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, c.State.IsGracePeriod())

	// Second cycle, still underfunded, past the grace deadline.
	require.NoError(t, f.engine.Bill(id, 1+cfg.GracePeriodBlocks, 1000+7200))

	_, ok, err = f.reg.Contract(id)
	require.NoError(t, err)
	require.False(t, ok, "Finalize must remove the contract from storage once deleted")
}

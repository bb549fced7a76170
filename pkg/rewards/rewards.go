// Package rewards implements Reward Distribution (spec.md §4.5): the
// multi-sink split of a billing cycle's locked balance among the
// foundation, staking pool, certified-sales/solution-provider accounts and
// the burn sink, plus the rent contract's extra fee payout to the farmer.
package rewards

import (
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/metrics"
)

// Distributor performs the transfers of one distribution cycle. It never
// decides *when* to distribute — that is pkg/billing's lock/cycle
// accounting — only how a given amount is split once triggered.
type Distributor struct {
	currency iface.Currency
	bus      *events.Bus
	log      *zap.Logger
}

// New creates a Distributor.
func New(currency iface.Currency, bus *events.Bus, log *zap.Logger) *Distributor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Distributor{currency: currency, bus: bus, log: log.With(zap.String("component", "rewards"))}
}

// DistributeExtra pays a rent contract's extra fee bucket in full to the
// node's farmer (billing.rs distribute_extra_cultivation_rewards). A zero
// amount is a no-op.
func (d *Distributor) DistributeExtra(twin iface.Account, farmer iface.Account, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := d.currency.Transfer(twin, farmer, amount); err != nil {
		return err
	}
	d.log.Info("distributed extra cultivation reward", zap.Uint64("amount", amount))
	return nil
}

// Distribute splits amount among the foundation (10%), the staking pool
// (5%), the certified-sales account and any solution providers
// ((50 - Σtake)% and take% respectively), and burns the residual 35% of the
// pre-split amount (billing.rs distribute_cultivation_rewards). Returns the
// amount actually burned. A zero amount is a no-op.
func (d *Distributor) Distribute(
	contract *contracttypes.Contract,
	policy iface.PricingPolicy,
	stakingPool iface.Account,
	sp *contracttypes.SolutionProvider,
	twin iface.Account,
	amount uint64,
) (uint64, error) {
	if amount == 0 {
		return 0, nil
	}

	foundationShare := percentOf(amount, 10)
	if err := d.currency.Transfer(twin, policy.FoundationAccount, foundationShare); err != nil {
		return 0, err
	}

	stakingShare := percentOf(amount, 5)
	if err := d.currency.Transfer(twin, stakingPool, stakingShare); err != nil {
		return 0, err
	}

	salesShare := uint8(50)
	if sp != nil {
		total := sp.TotalTake()
		if total > salesShare {
			return 0, contracterrors.ErrInvalidProviderConfiguration
		}
		salesShare -= total
		for _, share := range sp.Providers {
			amt := percentOf(amount, share.Take)
			if err := d.currency.Transfer(twin, share.Account, amt); err != nil {
				return 0, contracterrors.ErrInvalidProviderConfiguration
			}
		}
	}
	if salesShare > 0 {
		if err := d.currency.Transfer(twin, policy.CertifiedSalesAccount, percentOf(amount, salesShare)); err != nil {
			return 0, err
		}
	}

	amountToBurn := percentOf(amount, 50) - foundationShare - stakingShare
	burned, err := d.currency.Withdraw(twin, amountToBurn)
	if err != nil {
		return 0, err
	}

	metrics.TokensBurned(burned)
	d.bus.Emit(events.TokensBurned, map[string]any{
		"contract_id": contract.ID,
		"amount":      burned,
	})
	d.log.Info("distributed cultivation rewards",
		zap.Uint64("contract_id", contract.ID), zap.Uint64("amount", amount), zap.Uint64("burned", burned))
	return burned, nil
}

func percentOf(amount uint64, pct uint8) uint64 {
	return amount * uint64(pct) / 100
}

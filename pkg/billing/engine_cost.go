package billing

import (
	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
)

// calculateContractCost computes one cycle's regular bill for c, in native
// token units, applying the balance-based discount tier (spec.md §4.2
// "Cost formula" + "Discount tiers"). For a rent contract this is the
// dedication-discounted share; the complement is calculateExtraFeeCost's
// concern.
func (e *Engine) calculateContractCost(c *contracttypes.Contract, balance, secondsElapsed, blockNumber uint64) (uint64, DiscountLevel, error) {
	ext := e.reg.External()

	var totalMUSD uint64
	var certified bool

	switch c.Type.Kind {
	case contracttypes.TypeDeployment:
		d := c.Type.Deployment
		node, ok := ext.Node(d.NodeID)
		if !ok {
			return 0, DiscountNone, contracterrors.ErrNodeNotExists
		}
		farm, ok := ext.Farm(node.FarmID)
		if !ok {
			return 0, DiscountNone, contracterrors.ErrFarmNotExists
		}
		policy, ok := ext.PricingPolicy(farm.PricingPolicyID)
		if !ok {
			return 0, DiscountNone, contracterrors.ErrPricingPolicyNotExists
		}
		_, hasRent, err := e.reg.ActiveRentByNode(d.NodeID)
		if err != nil {
			return 0, DiscountNone, err
		}
		res, err := e.reg.Resources(c.ID)
		if err != nil {
			return 0, DiscountNone, err
		}
		rCost := resourceCost(res.Used, uint32(len(d.PublicIPsAllocated)), secondsElapsed, policy, !hasRent)

		bi, err := e.reg.BillingInfo(c.ID)
		if err != nil {
			return 0, DiscountNone, err
		}
		totalMUSD = saturatingAdd(rCost, bi.AmountUnbilled)
		certified = certificationOf(node.Certification)

	case contracttypes.TypeRent:
		node, ok := ext.Node(c.Type.Rent.NodeID)
		if !ok {
			return 0, DiscountNone, contracterrors.ErrNodeNotExists
		}
		farm, ok := ext.Farm(node.FarmID)
		if !ok {
			return 0, DiscountNone, contracterrors.ErrFarmNotExists
		}
		policy, ok := ext.PricingPolicy(farm.PricingPolicyID)
		if !ok {
			return 0, DiscountNone, contracterrors.ErrPricingPolicyNotExists
		}
		_, discounted := rentResourceCost(node, secondsElapsed, policy)
		totalMUSD = discounted
		certified = certificationOf(node.Certification)

	case contracttypes.TypeName:
		policy, ok := ext.PricingPolicy(e.cfg.DefaultPricingPolicyID)
		if !ok {
			return 0, DiscountNone, contracterrors.ErrPricingPolicyNotExists
		}
		totalMUSD = nameCost(policy, secondsElapsed)
	}

	price, err := e.prices.AverageTFTPriceMUSD(blockNumber)
	if err != nil {
		return 0, DiscountNone, err
	}
	totalTFT := convertToTFT(totalMUSD, price)
	amount, level := calculateDiscount(totalTFT, balance, certified)
	return amount, level, nil
}

// calculateExtraFeeCost computes a rent contract's extra fee bucket: the
// complement of the dedication discount, billed at full price and paid
// entirely to the farmer rather than split through the regular reward
// distribution (billing.rs calculate_extra_fee_cost_tft).
func (e *Engine) calculateExtraFeeCost(c *contracttypes.Contract, secondsElapsed, blockNumber uint64) (uint64, error) {
	ext := e.reg.External()
	node, ok := ext.Node(c.Type.Rent.NodeID)
	if !ok {
		return 0, contracterrors.ErrNodeNotExists
	}
	farm, ok := ext.Farm(node.FarmID)
	if !ok {
		return 0, contracterrors.ErrFarmNotExists
	}
	policy, ok := ext.PricingPolicy(farm.PricingPolicyID)
	if !ok {
		return 0, contracterrors.ErrPricingPolicyNotExists
	}

	full, discounted := rentResourceCost(node, secondsElapsed, policy)
	extraMUSD := saturatingSub(full, discounted)
	if extraMUSD == 0 {
		return 0, nil
	}

	price, err := e.prices.AverageTFTPriceMUSD(blockNumber)
	if err != nil {
		return 0, err
	}
	return convertToTFT(extraMUSD, price), nil
}

package billing

import (
	"github.com/threefoldtech/tfchain-billing/pkg/fixedn"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
)

// resourceCost computes the resource component of a bill in milli-USD over
// secondsElapsed (spec.md §4.2 "Cost formula"). billResources is false when
// a deployment contract's node carries an active rent contract — the rent
// contract already pays for the hardware, so the deployment contract is
// only billed for IPs and NRU.
func resourceCost(res iface.Resources, ipCount uint32, secondsElapsed uint64, policy iface.PricingPolicy, billResources bool) uint64 {
	total := fixedn.Zero()

	if billResources {
		hru := fixedn.FromRatio(res.HRU, orOne(policy.SU.UnitFactor))
		sru := fixedn.FromRatio(res.SRU, orOne(policy.SU.UnitFactor))
		mru := fixedn.FromRatio(res.MRU, orOne(policy.CU.UnitFactor))
		cru := fixedn.FromUint64(res.CRU)

		suUsed := hru.DivUint64(1200).Add(sru.DivUint64(200))
		suCost := fixedn.FromUint64(policy.SU.Value).DivUint64(3600).MulUint64(secondsElapsed).Mul(suUsed)

		cu := computeCU(cru, mru)
		cuCost := fixedn.FromUint64(policy.CU.Value).DivUint64(3600).MulUint64(secondsElapsed).Mul(cu)

		total = suCost.Add(cuCost)
	}

	if ipCount > 0 {
		ipCost := fixedn.FromUint64(uint64(ipCount)).
			Mul(fixedn.FromUint64(policy.IPU.Value).DivUint64(3600)).
			MulUint64(secondsElapsed)
		total = total.Add(ipCost)
	}

	return total.Ceil()
}

// computeCU derives compute units from raw cru and normalized mru, per
// spec.md §4.2: CU = min(max(cru/2, mru/4), max(cru, mru/8), max(cru/4, mru/2)).
func computeCU(cru, mru fixedn.Fixed64) fixedn.Fixed64 {
	cu1 := maxFixed(cru.DivUint64(2), mru.DivUint64(4))
	cu2 := maxFixed(cru, mru.DivUint64(8))
	cu3 := maxFixed(cru.DivUint64(4), mru.DivUint64(2))
	return fixedn.Min(fixedn.Min(cu1, cu2), cu3)
}

func maxFixed(a, b fixedn.Fixed64) fixedn.Fixed64 {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func orOne(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	return n
}

// nameCost computes a name contract's cost: unique_name_price · Δt / 3600.
func nameCost(policy iface.PricingPolicy, secondsElapsed uint64) uint64 {
	return fixedn.FromUint64(policy.UniqueName.Value).DivUint64(3600).MulUint64(secondsElapsed).Ceil()
}

// rentResourceCost returns the full, un-discounted resource cost of a rent
// contract's node (its entire capacity, no IPs) and the dedication-discounted
// portion billed through the regular distribution path — the complement is
// billed separately as the rent contract's extra fee bucket, paid in full to
// the farmer (see engine_cost.go calculateExtraFeeCost).
func rentResourceCost(node iface.Node, secondsElapsed uint64, policy iface.PricingPolicy) (full, discounted uint64) {
	fullFixed := fixedn.FromUint64(resourceCost(node.Resources, 0, secondsElapsed, policy, true))
	discountedFixed := fullFixed.MulPercent(policy.DiscountForDedicationNodes)
	return fullFixed.Ceil(), discountedFixed.Ceil()
}

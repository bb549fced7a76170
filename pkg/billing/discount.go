package billing

import (
	"github.com/threefoldtech/tfchain-billing/pkg/fixedn"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
)

// DiscountLevel is the balance-based pricing tier a twin's remaining
// prepaid months qualify it for (spec.md §4.2 "Discount tiers").
type DiscountLevel string

const (
	DiscountNone    DiscountLevel = "None"
	DiscountDefault DiscountLevel = "Default"
	DiscountBronze  DiscountLevel = "Bronze"
	DiscountSilver  DiscountLevel = "Silver"
	DiscountGold    DiscountLevel = "Gold"
)

// multiplier returns the price multiplier for a discount tier, expressed as
// an exact fixed-point ratio (never a float) per
// https://wiki.threefold.io/#/threefold__grid_pricing.
func (d DiscountLevel) multiplier() fixedn.Fixed64 {
	switch d {
	case DiscountGold:
		return fixedn.FromRatio(40, 100)
	case DiscountSilver:
		return fixedn.FromRatio(60, 100)
	case DiscountBronze:
		return fixedn.FromRatio(70, 100)
	case DiscountDefault:
		return fixedn.FromRatio(80, 100)
	default:
		return fixedn.FromRatio(100, 100)
	}
}

var certifiedMultiplier = fixedn.FromRatio(125, 100)

// calculateDiscount applies the balance-based discount tier and the
// certified-capacity surcharge to totalTFT, the pre-discount cost already
// converted to native token units. months = floor(balance / monthly cost),
// monthly cost being the hourly totalTFT extrapolated to 30 days of hourly
// billing cycles (spec.md §4.2 "Discount tiers").
func calculateDiscount(totalTFT, balance uint64, certified bool) (uint64, DiscountLevel) {
	if totalTFT == 0 {
		return 0, DiscountNone
	}
	monthly := fixedn.FromUint64(totalTFT).MulUint64(24).MulUint64(30)
	months := fixedn.FromUint64(balance).Div(monthly).Floor()

	level := discountLevelFor(months)
	amount := fixedn.FromUint64(totalTFT).Mul(level.multiplier())
	if certified {
		amount = amount.Mul(certifiedMultiplier)
	}
	return amount.Ceil(), level
}

func discountLevelFor(months uint64) DiscountLevel {
	switch {
	case months >= 36:
		return DiscountGold
	case months >= 12:
		return DiscountSilver
	case months >= 6:
		return DiscountBronze
	case months >= 3:
		return DiscountDefault
	default:
		return DiscountNone
	}
}

func certificationOf(level iface.CertificationLevel) bool {
	return level == iface.CertificationCertified
}

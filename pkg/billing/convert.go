package billing

import "github.com/threefoldtech/tfchain-billing/pkg/fixedn"

// convertToTFT turns a milli-USD cost into native token units: total_tft =
// (total_musd / 10000) / tft_price_musd · 1e7, truncated (spec.md §4.2
// "Conversion to native token"). Every step stays in 64.64 fixed point;
// Floor is the only rounding applied, and only here.
func convertToTFT(totalMUSD, tftPriceMUSD uint64) uint64 {
	usd := fixedn.FromUint64(totalMUSD).DivUint64(10000)
	tft := usd.Div(fixedn.FromUint64(tftPriceMUSD)).MulUint64(10_000_000)
	return tft.Floor()
}

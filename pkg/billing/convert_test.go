package billing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertToTFTZeroCost(t *testing.T) {
	require.Zero(t, convertToTFT(0, 40))
}

func TestConvertToTFTBasic(t *testing.T) {
	// 320000 milli-USD at a price of 32 milli-USD/TFT: (320000/10000)/32 = 1,
	// so the result is exactly 10,000,000 TFT-units with no rounding involved.
	got := convertToTFT(320000, 32)
	require.Equal(t, uint64(10_000_000), got)
}

func TestConvertToTFTScalesInverselyWithPrice(t *testing.T) {
	cheap := convertToTFT(320000, 32)
	expensive := convertToTFT(320000, 64)
	require.Greater(t, cheap, expensive)
}

func TestConvertToTFTZeroPriceDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		require.Zero(t, convertToTFT(1000, 0))
	})
}

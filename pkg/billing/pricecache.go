package billing

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
)

// PriceCache fronts the price-oracle collaborator with a small bounded LRU
// keyed by block number, so a billing pass that visits hundreds of
// contracts in the same block queries average_tft_price_musd() once instead
// of once per contract.
type PriceCache struct {
	oracle iface.Oracle
	cache  *lru.Cache
}

// NewPriceCache builds a PriceCache holding up to size distinct block
// numbers' worth of price, evicting the least recently used on overflow.
func NewPriceCache(oracle iface.Oracle, size int) (*PriceCache, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &PriceCache{oracle: oracle, cache: c}, nil
}

// AverageTFTPriceMUSD returns the oracle's average TFT/USD price for
// blockNumber, rejecting a non-positive reading with TFTPriceValueError
// (spec.md §4.2 "Conversion to native token").
func (p *PriceCache) AverageTFTPriceMUSD(blockNumber uint64) (uint64, error) {
	if v, ok := p.cache.Get(blockNumber); ok {
		return v.(uint64), nil
	}
	price := p.oracle.AverageTFTPriceMUSD()
	if price == 0 {
		return 0, contracterrors.ErrTFTPriceValueError
	}
	p.cache.Add(blockNumber, price)
	return price, nil
}

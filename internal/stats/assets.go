package stats

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"poolEngine/internal/model"
)

const assetCacheSize = 128

// AssetCache is a bounded cache of asset metadata keyed by address, used
// when formatting raw amounts into human-readable columns.
type AssetCache struct {
	cache *lru.Cache[string, model.AssetMeta]
}

func NewAssetCache(size int) *AssetCache {
	if size <= 0 {
		size = assetCacheSize
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[string, model.AssetMeta](size)
	return &AssetCache{cache: cache}
}

// Put stores the metadata under its address; empty addresses are ignored.
func (c *AssetCache) Put(meta model.AssetMeta) {
	if meta.Address == "" {
		return
	}
	c.cache.Add(meta.Address, meta)
}

// Get returns the metadata for an address.
func (c *AssetCache) Get(address string) (model.AssetMeta, bool) {
	return c.cache.Get(address)
}

// Decimals returns the asset's decimals, or zero when unknown so raw
// amounts pass through unscaled.
func (c *AssetCache) Decimals(address string) uint8 {
	meta, ok := c.cache.Get(address)
	if !ok {
		return 0
	}
	return meta.Decimals
}

package model

// PoolMeta captures immutable pool metadata.
type PoolMeta struct {
	Address       string `json:"address"`
	AssetA        string `json:"asset_a"`
	AssetB        string `json:"asset_b"`
	FeeBps        uint32 `json:"fee_bps"`
	CreatedHeight uint64 `json:"created_height"`
}

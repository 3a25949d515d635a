package model

// AssetMeta captures fungible asset metadata.
type AssetMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds the node configuration for the serve command.
type ServeConfig struct {
	Listen    string
	DataDir   string
	Journal   string
	BlockTime time.Duration

	AssetAAddress  string
	AssetASymbol   string
	AssetADecimals uint8
	AssetBAddress  string
	AssetBSymbol   string
	AssetBDecimals uint8

	// Allocations are genesis balance grants, "address:amountA:amountB".
	Allocations []string
	StartHeight uint64

	LogLevel string
}

// LoadServe merges config file, environment, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ServeConfig{}, err
	}

	v.SetDefault("listen", ":8545")
	v.SetDefault("data-dir", "./data/state")
	v.SetDefault("journal", "./data/journal.jsonl")
	v.SetDefault("block-time", 3*time.Second)
	v.SetDefault("asset-a-symbol", "TOKA")
	v.SetDefault("asset-a-decimals", 18)
	v.SetDefault("asset-b-symbol", "TOKB")
	v.SetDefault("asset-b-decimals", 18)
	v.SetDefault("start-height", uint64(1))
	v.SetDefault("log-level", "info")

	cfg := ServeConfig{
		Listen:         v.GetString("listen"),
		DataDir:        v.GetString("data-dir"),
		Journal:        v.GetString("journal"),
		BlockTime:      v.GetDuration("block-time"),
		AssetAAddress:  v.GetString("asset-a"),
		AssetASymbol:   v.GetString("asset-a-symbol"),
		AssetADecimals: uint8(v.GetUint("asset-a-decimals")),
		AssetBAddress:  v.GetString("asset-b"),
		AssetBSymbol:   v.GetString("asset-b-symbol"),
		AssetBDecimals: uint8(v.GetUint("asset-b-decimals")),
		Allocations:    getStringSlice(v, "alloc"),
		StartHeight:    v.GetUint64("start-height"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

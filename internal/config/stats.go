package config

import (
	"github.com/spf13/pflag"
)

// StatsConfig holds configuration for the journal replay command.
type StatsConfig struct {
	Input         string
	Window        string
	PGDSN         string
	BatchSize     int
	StateFile     string
	RecomputeFrom string

	AssetAAddress  string
	AssetASymbol   string
	AssetADecimals uint8
	AssetBAddress  string
	AssetBSymbol   string
	AssetBDecimals uint8

	LogLevel string
}

// LoadStats merges config file, environment, and flags into StatsConfig.
func LoadStats(cfgFile string, flags *pflag.FlagSet) (StatsConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return StatsConfig{}, err
	}

	v.SetDefault("window", "5m")
	v.SetDefault("batch-size", 1000)
	v.SetDefault("asset-a-symbol", "TOKA")
	v.SetDefault("asset-a-decimals", 18)
	v.SetDefault("asset-b-symbol", "TOKB")
	v.SetDefault("asset-b-decimals", 18)
	v.SetDefault("log-level", "info")

	cfg := StatsConfig{
		Input:          v.GetString("in"),
		Window:         v.GetString("window"),
		PGDSN:          v.GetString("pg-dsn"),
		BatchSize:      v.GetInt("batch-size"),
		StateFile:      v.GetString("state-file"),
		RecomputeFrom:  v.GetString("recompute-from"),
		AssetAAddress:  v.GetString("asset-a"),
		AssetASymbol:   v.GetString("asset-a-symbol"),
		AssetADecimals: uint8(v.GetUint("asset-a-decimals")),
		AssetBAddress:  v.GetString("asset-b"),
		AssetBSymbol:   v.GetString("asset-b-symbol"),
		AssetBDecimals: uint8(v.GetUint("asset-b-decimals")),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

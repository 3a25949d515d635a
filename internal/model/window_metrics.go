package model

import "time"

// PoolWindowMetrics stores aggregated metrics for a pool window.
type PoolWindowMetrics struct {
	PoolAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	DepositCount   uint64
	WithdrawCount  uint64
	VolumeA        string
	VolumeB        string
	FeeA           string
	FeeB           string
	FeeRate        *string
	TVLA           *string
	TVLB           *string
	APR            *string
}

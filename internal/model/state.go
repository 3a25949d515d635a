package model

// PoolStateSnapshot is the persisted form of the engine's scalar state.
type PoolStateSnapshot struct {
	ReserveA string `json:"reserve_a"`
	ReserveB string `json:"reserve_b"`
	// LastK stays empty until the first deposit records an invariant.
	LastK string `json:"last_k,omitempty"`
}

// ChannelSnapshot is the persisted form of a payment channel.
// ExpiresAt is zero while the channel is open; a close sets it to the
// height at which the remainder becomes refundable.
type ChannelSnapshot struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Paid        string `json:"paid"`
	SettleDelay uint64 `json:"settle_delay"`
	ExpiresAt   uint64 `json:"expires_at,omitempty"`
}

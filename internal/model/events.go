package model

// LiquidityAddedEvent is the payload of a committed deposit.
type LiquidityAddedEvent struct {
	Provider string `json:"provider"`
	AmountA  string `json:"amount_a"`
	AmountB  string `json:"amount_b"`
	Shares   string `json:"shares"`
	ReserveA string `json:"reserve_a"`
	ReserveB string `json:"reserve_b"`
}

// LiquidityRemovedEvent is the payload of a committed withdrawal.
type LiquidityRemovedEvent struct {
	Provider string `json:"provider"`
	Shares   string `json:"shares"`
	AmountA  string `json:"amount_a"`
	AmountB  string `json:"amount_b"`
	ReserveA string `json:"reserve_a"`
	ReserveB string `json:"reserve_b"`
}

// SwapEvent is the payload of a committed trade.
type SwapEvent struct {
	Trader    string `json:"trader"`
	Direction string `json:"direction"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	ReserveA  string `json:"reserve_a"`
	ReserveB  string `json:"reserve_b"`
}

// ChannelOpenedEvent is the payload of a channel funding.
type ChannelOpenedEvent struct {
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	SettleDelay uint64 `json:"settle_delay"`
}

// ChannelClaimedEvent is the payload of a signed claim payout.
type ChannelClaimedEvent struct {
	Recipient string `json:"recipient"`
	Total     string `json:"total"`
	Paid      string `json:"paid"`
}

// ChannelClosedEvent is the payload of a sender-initiated close.
type ChannelClosedEvent struct {
	Sender    string `json:"sender"`
	ExpiresAt uint64 `json:"expires_at"`
}

// ChannelRefundedEvent is the payload of a post-expiry refund.
type ChannelRefundedEvent struct {
	Sender string `json:"sender"`
	Amount string `json:"amount"`
}

package model

import (
	"encoding/json"
)

// Event type tags carried in journal records.
const (
	EventLiquidityAdded   = "liquidity_added"
	EventLiquidityRemoved = "liquidity_removed"
	EventSwap             = "swap"
	EventChannelOpened    = "channel_opened"
	EventChannelClaimed   = "channel_claimed"
	EventChannelClosed    = "channel_closed"
	EventChannelRefunded  = "channel_refunded"
)

// Record is the normalized representation of a committed operation for the journal.
type Record struct {
	Seq        uint64          `json:"seq"`
	Height     uint64          `json:"height"`
	Address    string          `json:"address"`
	Type       string          `json:"type"`
	Timestamp  uint64          `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
	AppendedAt string          `json:"appended_at"`
}

// MarshalJSON ensures Record is encoded with stable field names.
func (r Record) MarshalJSON() ([]byte, error) {
	type Alias Record
	return json.Marshal(Alias(r))
}

// UnmarshalJSON decodes a Record from JSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	type Alias Record
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Record(a)
	return nil
}

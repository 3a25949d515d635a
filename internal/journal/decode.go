package journal

import (
	"encoding/json"
	"fmt"

	"poolEngine/internal/model"
)

// DecodePayload unmarshals a record's payload into its typed event.
func DecodePayload(rec model.Record) (interface{}, error) {
	if len(rec.Payload) == 0 {
		return nil, fmt.Errorf("record %d: missing payload", rec.Seq)
	}

	switch rec.Type {
	case model.EventLiquidityAdded:
		var ev model.LiquidityAddedEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Type, err)
		}
		return ev, nil
	case model.EventLiquidityRemoved:
		var ev model.LiquidityRemovedEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Type, err)
		}
		return ev, nil
	case model.EventSwap:
		var ev model.SwapEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Type, err)
		}
		return ev, nil
	case model.EventChannelOpened:
		var ev model.ChannelOpenedEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Type, err)
		}
		return ev, nil
	case model.EventChannelClaimed:
		var ev model.ChannelClaimedEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Type, err)
		}
		return ev, nil
	case model.EventChannelClosed:
		var ev model.ChannelClosedEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Type, err)
		}
		return ev, nil
	case model.EventChannelRefunded:
		var ev model.ChannelRefundedEvent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Type, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("record %d: unsupported event type: %s", rec.Seq, rec.Type)
	}
}

// EncodeRecord builds a journal record around a typed event payload.
func EncodeRecord(seq, height uint64, address, eventType string, timestamp uint64, payload interface{}) (model.Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return model.Record{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return model.Record{
		Seq:       seq,
		Height:    height,
		Address:   address,
		Type:      eventType,
		Timestamp: timestamp,
		Payload:   raw,
	}, nil
}

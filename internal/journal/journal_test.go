package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"poolEngine/internal/model"
)

func TestJsonlWriterAppendsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "journal.jsonl")
	writer := NewJsonlWriter(path)

	first, err := EncodeRecord(1, 5, "0xpool", model.EventSwap, 1700000000, model.SwapEvent{
		Trader:    "0xabc",
		Direction: "a_to_b",
		AmountIn:  "10000",
		AmountOut: "9871",
		ReserveA:  "1010000",
		ReserveB:  "990129",
	})
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	second, err := EncodeRecord(2, 5, "0xpool", model.EventLiquidityAdded, 1700000001, model.LiquidityAddedEvent{
		Provider: "0xdef",
		AmountA:  "100",
		AmountB:  "99",
		Shares:   "99",
		ReserveA: "1010100",
		ReserveB: "990228",
	})
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}

	if err := writer.Append([]model.Record{first, second}); err != nil {
		t.Fatalf("append batch: %v", err)
	}

	third, err := EncodeRecord(3, 6, "0xchan", model.EventChannelOpened, 1700000002, model.ChannelOpenedEvent{
		Sender:      "0xabc",
		Recipient:   "0xdef",
		Asset:       "0xaa",
		Amount:      "50000",
		SettleDelay: 20,
	})
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	if err := writer.Append([]model.Record{third}); err != nil {
		t.Fatalf("append second batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var records []model.Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan journal: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.Seq != uint64(i+1) {
			t.Errorf("record %d: seq %d, want %d", i, rec.Seq, i+1)
		}
	}

	decoded, err := DecodePayload(records[0])
	if err != nil {
		t.Fatalf("decode swap payload: %v", err)
	}
	swap, ok := decoded.(model.SwapEvent)
	if !ok {
		t.Fatalf("expected SwapEvent, got %T", decoded)
	}
	if swap.AmountOut != "9871" {
		t.Errorf("swap amount out: got %s, want 9871", swap.AmountOut)
	}

	decoded, err = DecodePayload(records[2])
	if err != nil {
		t.Fatalf("decode channel payload: %v", err)
	}
	opened, ok := decoded.(model.ChannelOpenedEvent)
	if !ok {
		t.Fatalf("expected ChannelOpenedEvent, got %T", decoded)
	}
	if opened.SettleDelay != 20 {
		t.Errorf("settle delay: got %d, want 20", opened.SettleDelay)
	}
}

func TestJsonlWriterEmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	writer := NewJsonlWriter(path)

	if err := writer.Append(nil); err != nil {
		t.Fatalf("append empty batch: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("empty batch should not create the file, stat err: %v", err)
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	_, err := DecodePayload(model.Record{Seq: 7, Type: model.EventSwap})
	if err == nil {
		t.Error("expected error for missing payload")
	}

	_, err = DecodePayload(model.Record{
		Seq:     8,
		Type:    "unknown_event",
		Payload: json.RawMessage(`{}`),
	})
	if err == nil {
		t.Error("expected error for unknown event type")
	}

	_, err = DecodePayload(model.Record{
		Seq:     9,
		Type:    model.EventSwap,
		Payload: json.RawMessage(`{not json`),
	})
	if err == nil {
		t.Error("expected error for malformed payload")
	}
}

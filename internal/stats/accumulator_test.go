package stats

import (
	"math/big"
	"testing"

	"poolEngine/internal/journal"
	"poolEngine/internal/model"
)

const testPool = "0x1111111111111111111111111111111111111111"

func swapRecord(t *testing.T, seq, ts uint64, direction, amountIn, amountOut, reserveA, reserveB string) model.Record {
	t.Helper()
	rec, err := journal.EncodeRecord(seq, 10, testPool, model.EventSwap, ts, model.SwapEvent{
		Trader:    "0x2222222222222222222222222222222222222222",
		Direction: direction,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		ReserveA:  reserveA,
		ReserveB:  reserveB,
	})
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	return rec
}

func TestAccumulatorSwapTotals(t *testing.T) {
	first := swapRecord(t, 1, 1000, "a_to_b", "10000", "9960", "1010000", "990040")
	acc := NewAccumulator(first, 900, 1200)

	if err := acc.AddRecord(first); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if err := acc.AddRecord(swapRecord(t, 2, 1050, "b_to_a", "5000", "5010", "1004990", "995040")); err != nil {
		t.Fatalf("add second: %v", err)
	}

	if acc.SwapCount != 2 {
		t.Fatalf("swap count = %d, want 2", acc.SwapCount)
	}
	// A-side volume: 10000 in + 5010 out.
	if acc.VolumeA.Cmp(big.NewInt(15010)) != 0 {
		t.Fatalf("volume A = %s, want 15010", acc.VolumeA)
	}
	if acc.VolumeB.Cmp(big.NewInt(14960)) != 0 {
		t.Fatalf("volume B = %s, want 14960", acc.VolumeB)
	}
	// Fees: 0.3% of each input, floored.
	if acc.FeeA.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("fee A = %s, want 30", acc.FeeA)
	}
	if acc.FeeB.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("fee B = %s, want 15", acc.FeeB)
	}
	if acc.LastReserveA.Cmp(big.NewInt(1004990)) != 0 {
		t.Fatalf("last reserve A = %s", acc.LastReserveA)
	}
	if acc.LastTS != 1050 {
		t.Fatalf("last ts = %d, want 1050", acc.LastTS)
	}
}

func TestAccumulatorLiquidityCounts(t *testing.T) {
	add, err := journal.EncodeRecord(1, 5, testPool, model.EventLiquidityAdded, 1000, model.LiquidityAddedEvent{
		Provider: "0x33", AmountA: "1000000", AmountB: "1000000", Shares: "999000",
		ReserveA: "1000000", ReserveB: "1000000",
	})
	if err != nil {
		t.Fatalf("encode add: %v", err)
	}
	remove, err := journal.EncodeRecord(2, 6, testPool, model.EventLiquidityRemoved, 1100, model.LiquidityRemovedEvent{
		Provider: "0x33", Shares: "500000", AmountA: "500000", AmountB: "500000",
		ReserveA: "500000", ReserveB: "500000",
	})
	if err != nil {
		t.Fatalf("encode remove: %v", err)
	}

	acc := NewAccumulator(add, 900, 1200)
	if err := acc.AddRecord(add); err != nil {
		t.Fatalf("add deposit: %v", err)
	}
	if err := acc.AddRecord(remove); err != nil {
		t.Fatalf("add withdrawal: %v", err)
	}

	if acc.DepositCount != 1 || acc.WithdrawCount != 1 || acc.SwapCount != 0 {
		t.Fatalf("counts = %d/%d/%d", acc.DepositCount, acc.WithdrawCount, acc.SwapCount)
	}
	if acc.LastReserveB.Cmp(big.NewInt(500000)) != 0 {
		t.Fatalf("last reserve B = %s", acc.LastReserveB)
	}
}

func TestAccumulatorRejectsUnknownDirection(t *testing.T) {
	rec := swapRecord(t, 1, 1000, "sideways", "10000", "9960", "1", "1")
	acc := NewAccumulator(rec, 900, 1200)
	if err := acc.AddRecord(rec); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

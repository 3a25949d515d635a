package stats

import (
	"fmt"
	"math/big"

	"poolEngine/internal/amm"
	"poolEngine/internal/journal"
	"poolEngine/internal/model"
)

// Accumulator holds aggregate values for one pool window.
type Accumulator struct {
	PoolAddress   string
	WindowStart   uint64
	WindowEnd     uint64
	SwapCount     uint64
	DepositCount  uint64
	WithdrawCount uint64
	VolumeA       *big.Int
	VolumeB       *big.Int
	FeeA          *big.Int
	FeeB          *big.Int
	LastReserveA  *big.Int
	LastReserveB  *big.Int
	LastTS        uint64
	FirstHeight   uint64
}

func NewAccumulator(rec model.Record, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolAddress: rec.Address,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeA:     big.NewInt(0),
		VolumeB:     big.NewInt(0),
		FeeA:        big.NewInt(0),
		FeeB:        big.NewInt(0),
		LastTS:      rec.Timestamp,
		FirstHeight: rec.Height,
	}
}

// AddRecord folds one journal record into the window totals.
func (a *Accumulator) AddRecord(rec model.Record) error {
	if rec.Timestamp >= a.LastTS {
		a.LastTS = rec.Timestamp
	}
	if a.FirstHeight == 0 || rec.Height < a.FirstHeight {
		a.FirstHeight = rec.Height
	}

	payload, err := journal.DecodePayload(rec)
	if err != nil {
		return err
	}

	switch ev := payload.(type) {
	case model.SwapEvent:
		return a.applySwap(ev)
	case model.LiquidityAddedEvent:
		a.DepositCount++
		return a.trackReserves(ev.ReserveA, ev.ReserveB)
	case model.LiquidityRemovedEvent:
		a.WithdrawCount++
		return a.trackReserves(ev.ReserveA, ev.ReserveB)
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(ev model.SwapEvent) error {
	amountIn, err := parseBigInt(ev.AmountIn)
	if err != nil {
		return fmt.Errorf("swap amount in: %w", err)
	}
	amountOut, err := parseBigInt(ev.AmountOut)
	if err != nil {
		return fmt.Errorf("swap amount out: %w", err)
	}

	// The fee is taken on the input side, FeeNumerator/FeeDenominator of
	// the amount paid in.
	fee := new(big.Int).Mul(amountIn, big.NewInt(amm.FeeNumerator))
	fee.Div(fee, big.NewInt(amm.FeeDenominator))

	switch ev.Direction {
	case amm.AToB.String():
		a.VolumeA.Add(a.VolumeA, amountIn)
		a.VolumeB.Add(a.VolumeB, amountOut)
		a.FeeA.Add(a.FeeA, fee)
	case amm.BToA.String():
		a.VolumeB.Add(a.VolumeB, amountIn)
		a.VolumeA.Add(a.VolumeA, amountOut)
		a.FeeB.Add(a.FeeB, fee)
	default:
		return fmt.Errorf("unknown swap direction: %s", ev.Direction)
	}

	a.SwapCount++
	return a.trackReserves(ev.ReserveA, ev.ReserveB)
}

// trackReserves keeps the post-operation reserves; the last pair in a
// window is the window's TVL.
func (a *Accumulator) trackReserves(reserveA, reserveB string) error {
	ra, err := parseBigInt(reserveA)
	if err != nil {
		return fmt.Errorf("reserve A: %w", err)
	}
	rb, err := parseBigInt(reserveB)
	if err != nil {
		return fmt.Errorf("reserve B: %w", err)
	}
	a.LastReserveA = ra
	a.LastReserveB = rb
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

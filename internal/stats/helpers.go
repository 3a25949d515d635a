package stats

import (
	"math/big"
	"time"
)

const rateScale = 18

// formatAmount renders a raw integer amount as a decimal string with the
// asset's decimals applied.
func formatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

// computeFeeRate derives the window's fee-to-TVL ratio. Both sides are in
// the same units as their reserve, so the per-side ratios are comparable;
// the A side wins when both are available.
func computeFeeRate(feeA, tvlA, feeB, tvlB *big.Int) *string {
	if rate := rateFrom(feeA, tvlA); rate != "" {
		return &rate
	}
	if rate := rateFrom(feeB, tvlB); rate != "" {
		return &rate
	}
	return nil
}

func rateFrom(fee, tvl *big.Int) string {
	if fee == nil || fee.Sign() == 0 || tvl == nil || tvl.Sign() == 0 {
		return ""
	}
	rat := new(big.Rat).SetFrac(fee, tvl)
	return rat.FloatString(rateScale)
}

// computeAPR annualizes a window fee rate.
func computeAPR(feeRate *string, windowSeconds uint64) *string {
	if feeRate == nil || windowSeconds == 0 {
		return nil
	}

	rat, ok := new(big.Rat).SetString(*feeRate)
	if !ok {
		return nil
	}
	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	window := big.NewRat(int64(windowSeconds), 1)
	apr := new(big.Rat).Mul(rat, yearSeconds)
	apr.Quo(apr, window)
	val := apr.FloatString(rateScale)
	return &val
}

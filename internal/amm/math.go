package amm

import (
	"fmt"
	"math/big"
)

// Pricing and protection constants. The swap fee is
// FeeNumerator/FeeDenominator of the input (0.3%). MinimumLiquidity is the
// dust floor for deposits and swaps, and the share amount permanently locked
// on the first deposit. MinimumTradeDelay is the number of blocks a caller
// must wait between swaps.
const (
	MinimumLiquidity  = 1000
	FeeNumerator      = 3
	FeeDenominator    = 1000
	MinimumTradeDelay = 1

	// maxOutputDivisor caps a single trade's output at reserveOut/3.
	maxOutputDivisor = 3

	// ratioScale is the fixed-point scale used by the withdrawal
	// proportionality check.
	ratioScale = 1_000_000_000_000_000_000
)

var (
	minimumLiquidityBig = big.NewInt(MinimumLiquidity)
	feeDenominatorBig   = big.NewInt(FeeDenominator)
	feeScaleBig         = big.NewInt(FeeDenominator - FeeNumerator)
	maxOutputDivisorBig = big.NewInt(maxOutputDivisor)
	ratioScaleBig       = big.NewInt(ratioScale)
)

// Quote returns the amount of the output asset proportional to amountIn at
// the current reserve ratio, with no fee applied. Used for deposit-ratio
// matching, not for swap pricing.
func Quote(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInsufficientAmount)
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserves must be positive", ErrInsufficientLiquidity)
	}
	out := new(big.Int).Mul(amountIn, reserveOut)
	return out.Quo(out, reserveIn), nil
}

// GetAmountOut prices a swap with the fee folded into the effective input:
//
//	amountOut = amountIn·(D−N)·reserveOut / (reserveIn·D + amountIn·(D−N))
//
// with D = FeeDenominator and N = FeeNumerator. The result is strictly less
// than reserveOut for any positive input and reserves.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInsufficientAmount)
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserves must be positive", ErrInsufficientLiquidity)
	}
	amountInAfterFee := new(big.Int).Mul(amountIn, feeScaleBig)
	numerator := new(big.Int).Mul(amountInAfterFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominatorBig)
	denominator.Add(denominator, amountInAfterFee)
	return numerator.Quo(numerator, denominator), nil
}

// isqrt returns the integer square root (floor) of n.
func isqrt(n *big.Int) *big.Int {
	if n.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sqrt(n)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

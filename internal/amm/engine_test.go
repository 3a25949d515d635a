package amm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"poolEngine/internal/token"
)

var (
	addrTKA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addrTKB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob     = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type testClock struct {
	height uint64
}

func (c *testClock) Height() uint64 { return c.height }

func (c *testClock) advance(n uint64) { c.height += n }

func newTestEngine(t *testing.T) (*Engine, *token.AssetLedger, *token.AssetLedger, *testClock) {
	t.Helper()
	assetA := token.NewAssetLedger(addrTKA, "TKA", 18)
	assetB := token.NewAssetLedger(addrTKB, "TKB", 18)
	clock := &testClock{height: 1}

	engine, err := NewEngine(assetA, assetB, clock)
	require.NoError(t, err)

	for _, holder := range []common.Address{alice, bob} {
		require.NoError(t, assetA.Mint(holder, big.NewInt(10_000_000)))
		require.NoError(t, assetB.Mint(holder, big.NewInt(10_000_000)))
	}
	return engine, assetA, assetB, clock
}

func reserveProduct(e *Engine) *big.Int {
	a, b := e.Reserves()
	return a.Mul(a, b)
}

func TestNewEngineValidation(t *testing.T) {
	assetA := token.NewAssetLedger(addrTKA, "TKA", 18)
	assetB := token.NewAssetLedger(addrTKB, "TKB", 18)
	zeroAsset := token.NewAssetLedger(common.Address{}, "ZRO", 18)
	clock := &testClock{height: 1}

	_, err := NewEngine(nil, assetB, clock)
	require.ErrorIs(t, err, ErrZeroAddress)

	_, err = NewEngine(zeroAsset, assetB, clock)
	require.ErrorIs(t, err, ErrZeroAddress)

	_, err = NewEngine(assetA, assetA, clock)
	require.ErrorIs(t, err, ErrSameAsset)

	engine, err := NewEngine(assetA, assetB, clock)
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, engine.Address())
	require.Equal(t, engine.Address(), engine.Shares().Minter())

	reserveA, reserveB := engine.Reserves()
	require.Zero(t, reserveA.Sign())
	require.Zero(t, reserveB.Sign())
	require.Nil(t, engine.LastInvariant())
}

func TestFirstDepositSymmetry(t *testing.T) {
	engine, assetA, assetB, _ := newTestEngine(t)

	amountA, amountB, minted, err := engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(200_000))
	require.NoError(t, err)

	// The smaller desired amount is used for both legs.
	require.Equal(t, big.NewInt(100_000), amountA)
	require.Equal(t, big.NewInt(100_000), amountB)

	reserveA, reserveB := engine.Reserves()
	require.Equal(t, big.NewInt(100_000), reserveA)
	require.Equal(t, big.NewInt(100_000), reserveB)

	// isqrt(100000²) = 100000, minus the locked floor.
	require.Equal(t, big.NewInt(99_000), minted)
	require.Equal(t, big.NewInt(99_000), engine.Shares().BalanceOf(alice))
	require.Equal(t, big.NewInt(MinimumLiquidity), engine.Shares().BalanceOf(LockAddress()))
	require.Equal(t, big.NewInt(100_000), engine.Shares().TotalSupply())

	// The unused 100000 of desiredB went back to the depositor.
	require.Equal(t, big.NewInt(9_900_000), assetA.BalanceOf(alice))
	require.Equal(t, big.NewInt(9_900_000), assetB.BalanceOf(alice))
	require.Equal(t, big.NewInt(100_000), assetA.BalanceOf(engine.Address()))
	require.Equal(t, big.NewInt(100_000), assetB.BalanceOf(engine.Address()))

	require.Equal(t, new(big.Int).Mul(big.NewInt(100_000), big.NewInt(100_000)), engine.LastInvariant())
}

func TestAddLiquidityDustFloor(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(999), big.NewInt(100_000))
	require.ErrorIs(t, err, ErrInsufficientTokenAAmount)

	_, _, _, err = engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(999))
	require.ErrorIs(t, err, ErrInsufficientTokenBAmount)
}

func TestAddLiquidityInsufficientInitial(t *testing.T) {
	engine, assetA, _, _ := newTestEngine(t)

	// isqrt(1000²) − 1000 = 0 shares.
	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(1_000), big.NewInt(1_000))
	require.ErrorIs(t, err, ErrInsufficientInitialLiquidity)

	reserveA, reserveB := engine.Reserves()
	require.Zero(t, reserveA.Sign())
	require.Zero(t, reserveB.Sign())
	require.Equal(t, big.NewInt(10_000_000), assetA.BalanceOf(alice))
	require.Zero(t, engine.Shares().TotalSupply().Sign())
}

func TestAddLiquidityMatchesReserveRatio(t *testing.T) {
	engine, assetA, assetB, _ := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(200_000))
	require.NoError(t, err)
	// Rebuild the 1:2 pool shape with a second leg of desiredB.
	_, _, _, err = engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(100_000))
	require.NoError(t, err)

	// Pool is now (200000, 200000); deposit quoted against it.
	amountA, amountB, minted, err := engine.AddLiquidity(bob, big.NewInt(10_000), big.NewInt(30_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000), amountA)
	require.Equal(t, big.NewInt(10_000), amountB)
	require.Positive(t, minted.Sign())

	// Unused desiredB refunded in full.
	require.Equal(t, big.NewInt(9_990_000), assetA.BalanceOf(bob))
	require.Equal(t, big.NewInt(9_990_000), assetB.BalanceOf(bob))
}

func TestAddLiquidityPrefersFullDesiredA(t *testing.T) {
	engine, _, assetB, _ := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(200_000), big.NewInt(100_000))
	require.NoError(t, err)

	// Pool is (100000, 100000): quoting desiredA=10000 needs 10000 B,
	// which fits under desiredB=30000, so all of desiredA is consumed.
	amountA, amountB, _, err := engine.AddLiquidity(bob, big.NewInt(10_000), big.NewInt(30_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000), amountA)
	require.Equal(t, big.NewInt(10_000), amountB)
	require.Equal(t, big.NewInt(9_990_000), assetB.BalanceOf(bob))
}

func TestAddLiquidityQuotedAPath(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(100_000))
	require.NoError(t, err)

	// Pool (100000,100000): matching desiredA=10000 would need 10000 of
	// B, above the 4000 ceiling, so the B leg binds and A is quoted down.
	amountA, amountB, minted, err := engine.AddLiquidity(bob, big.NewInt(10_000), big.NewInt(4_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(4_000), amountA)
	require.Equal(t, big.NewInt(4_000), amountB)
	require.Equal(t, big.NewInt(4_000), minted)
}

func TestInvariantMonotonicity(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)

	last := reserveProduct(engine)
	for i := 0; i < 6; i++ {
		clock.advance(MinimumTradeDelay)
		dir := AToB
		if i%2 == 1 {
			dir = BToA
		}
		_, err := engine.Swap(alice, big.NewInt(25_000), dir)
		require.NoError(t, err)

		k := reserveProduct(engine)
		require.GreaterOrEqual(t, k.Cmp(last), 0, "product must not decrease across swaps")
		last = k

		_, _, _, err = engine.AddLiquidity(bob, big.NewInt(50_000), big.NewInt(50_000))
		require.NoError(t, err)

		k = reserveProduct(engine)
		require.GreaterOrEqual(t, k.Cmp(last), 0, "product must not decrease across deposits")
		last = k
	}
}

func TestRemoveLiquidityProportional(t *testing.T) {
	engine, assetA, assetB, _ := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(100_000))
	require.NoError(t, err)

	beforeA := assetA.BalanceOf(alice)
	beforeB := assetB.BalanceOf(alice)

	// 9900 of 100000 total shares is a 9.9% claim on both reserves.
	amountA, amountB, err := engine.RemoveLiquidity(alice, big.NewInt(9_900))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9_900), amountA)
	require.Equal(t, big.NewInt(9_900), amountB)

	reserveA, reserveB := engine.Reserves()
	require.Equal(t, big.NewInt(90_100), reserveA)
	require.Equal(t, big.NewInt(90_100), reserveB)
	require.Equal(t, big.NewInt(89_100), engine.Shares().BalanceOf(alice))
	require.Equal(t, big.NewInt(90_100), engine.Shares().TotalSupply())

	require.Equal(t, new(big.Int).Add(beforeA, amountA), assetA.BalanceOf(alice))
	require.Equal(t, new(big.Int).Add(beforeB, amountB), assetB.BalanceOf(alice))

	// The recorded invariant follows the shrunken reserves.
	require.Equal(t, new(big.Int).Mul(big.NewInt(90_100), big.NewInt(90_100)), engine.LastInvariant())
}

func TestRemoveLiquidityValidation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(100_000))
	require.NoError(t, err)

	_, _, err = engine.RemoveLiquidity(alice, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidLiquidityAmount)

	_, _, err = engine.RemoveLiquidity(alice, big.NewInt(99_001))
	require.ErrorIs(t, err, ErrInsufficientLPBalance)

	_, _, err = engine.RemoveLiquidity(bob, big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientLPBalance)
}

func TestRemoveLiquidityZeroPayout(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(100_000))
	require.NoError(t, err)

	// Shift the reserves so one side is worth less than a share.
	clock.advance(MinimumTradeDelay)
	_, err = engine.Swap(bob, big.NewInt(50_000), AToB)
	require.NoError(t, err)

	_, _, err = engine.RemoveLiquidity(alice, big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientLiquidityBurned)
}

func TestRoundTripReturnsDepositMinusLockedFloor(t *testing.T) {
	engine, assetA, assetB, _ := newTestEngine(t)

	deposit := big.NewInt(100_000)
	_, _, minted, err := engine.AddLiquidity(alice, deposit, deposit)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(99_000), minted)

	amountA, amountB, err := engine.RemoveLiquidity(alice, minted)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(99_000), amountA)
	require.Equal(t, big.NewInt(99_000), amountB)

	// The locked MinimumLiquidity fraction stays behind forever.
	reserveA, reserveB := engine.Reserves()
	require.Equal(t, big.NewInt(1_000), reserveA)
	require.Equal(t, big.NewInt(1_000), reserveB)
	require.Equal(t, big.NewInt(MinimumLiquidity), engine.Shares().TotalSupply())

	require.Equal(t, big.NewInt(9_999_000), assetA.BalanceOf(alice))
	require.Equal(t, big.NewInt(9_999_000), assetB.BalanceOf(alice))
}

func TestSwapOutputWithinBounds(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)

	clock.advance(MinimumTradeDelay)
	out, err := engine.Swap(bob, big.NewInt(10_000), AToB)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9_871), out)

	reserveA, reserveB := engine.Reserves()
	require.Equal(t, big.NewInt(1_010_000), reserveA)
	require.Equal(t, big.NewInt(990_129), reserveB)

	require.Positive(t, out.Sign())
	require.Negative(t, out.Cmp(big.NewInt(1_000_000)))
	require.Equal(t, clock.Height(), engine.LastTradeMarker(bob))
}

func TestSwapValidation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.Swap(alice, big.NewInt(10_000), AToB)
	require.ErrorIs(t, err, ErrInsufficientReserves)

	_, _, _, err = engine.AddLiquidity(alice, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)

	_, err = engine.Swap(alice, big.NewInt(999), AToB)
	require.ErrorIs(t, err, ErrInsufficientInputAmount)

	_, err = engine.Swap(alice, nil, AToB)
	require.ErrorIs(t, err, ErrInsufficientInputAmount)

	_, err = engine.Swap(common.Address{}, big.NewInt(10_000), AToB)
	require.ErrorIs(t, err, ErrZeroAddress)
}

func TestSwapCooldown(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)

	clock.advance(1)
	_, err = engine.Swap(bob, big.NewInt(10_000), AToB)
	require.NoError(t, err)
	marker := engine.LastTradeMarker(bob)
	require.Equal(t, clock.Height(), marker)

	// Same height: blocked. A different caller is unaffected.
	_, err = engine.Swap(bob, big.NewInt(10_000), AToB)
	require.ErrorIs(t, err, ErrTradeTooSoon)
	require.Equal(t, marker, engine.LastTradeMarker(bob))

	_, err = engine.Swap(alice, big.NewInt(10_000), BToA)
	require.NoError(t, err)

	clock.advance(MinimumTradeDelay)
	_, err = engine.Swap(bob, big.NewInt(10_000), AToB)
	require.NoError(t, err)
	require.Equal(t, clock.Height(), engine.LastTradeMarker(bob))
}

func TestSwapOutputCapRollsBack(t *testing.T) {
	engine, assetA, assetB, clock := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(100_000))
	require.NoError(t, err)

	beforeA, beforeB := engine.Reserves()
	traderA := assetA.BalanceOf(bob)
	traderB := assetB.BalanceOf(bob)

	clock.advance(MinimumTradeDelay)
	_, err = engine.Swap(bob, big.NewInt(60_000), AToB)
	require.ErrorIs(t, err, ErrOutputTooLarge)

	afterA, afterB := engine.Reserves()
	require.Equal(t, beforeA, afterA)
	require.Equal(t, beforeB, afterB)
	require.Equal(t, traderA, assetA.BalanceOf(bob))
	require.Equal(t, traderB, assetB.BalanceOf(bob))

	// The failed trade does not consume the caller's cooldown.
	require.Zero(t, engine.LastTradeMarker(bob))
}

// skimmingLedger delivers less than the requested transfer amount once
// enabled, imitating a fee-on-transfer asset.
type skimmingLedger struct {
	*token.AssetLedger
	skim bool
}

func (l *skimmingLedger) Transfer(from, to common.Address, amount *big.Int) error {
	if !l.skim {
		return l.AssetLedger.Transfer(from, to, amount)
	}
	kept := new(big.Int).Quo(amount, big.NewInt(100))
	sent := new(big.Int).Sub(amount, kept)
	return l.AssetLedger.Transfer(from, to, sent)
}

func TestSwapBalanceManipulationDetected(t *testing.T) {
	inner := token.NewAssetLedger(addrTKA, "TKA", 18)
	assetA := &skimmingLedger{AssetLedger: inner}
	assetB := token.NewAssetLedger(addrTKB, "TKB", 18)
	clock := &testClock{height: 1}

	engine, err := NewEngine(assetA, assetB, clock)
	require.NoError(t, err)

	require.NoError(t, inner.Mint(alice, big.NewInt(10_000_000)))
	require.NoError(t, assetB.Mint(alice, big.NewInt(10_000_000)))
	require.NoError(t, inner.Mint(bob, big.NewInt(10_000_000)))

	_, _, _, err = engine.AddLiquidity(alice, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)

	assetA.skim = true

	beforeA, beforeB := engine.Reserves()
	traderBal := inner.BalanceOf(bob)
	custody := inner.BalanceOf(engine.Address())

	clock.advance(MinimumTradeDelay)
	_, err = engine.Swap(bob, big.NewInt(10_000), AToB)
	require.ErrorIs(t, err, ErrBalanceManipulationDetected)

	afterA, afterB := engine.Reserves()
	require.Equal(t, beforeA, afterA)
	require.Equal(t, beforeB, afterB)
	require.Equal(t, traderBal, inner.BalanceOf(bob))
	require.Equal(t, custody, inner.BalanceOf(engine.Address()))
	require.Zero(t, engine.LastTradeMarker(bob))
}

// reentrantLedger calls back into the engine mid-transfer, imitating a
// callee that tries to run a second operation while one is in flight.
type reentrantLedger struct {
	*token.AssetLedger
	engine *Engine
	caller common.Address
	fired  bool
	got    error
}

func (l *reentrantLedger) Transfer(from, to common.Address, amount *big.Int) error {
	if l.engine != nil && !l.fired {
		l.fired = true
		_, l.got = l.engine.Swap(l.caller, big.NewInt(MinimumLiquidity), AToB)
	}
	return l.AssetLedger.Transfer(from, to, amount)
}

func TestSwapReentrancyBlocked(t *testing.T) {
	inner := token.NewAssetLedger(addrTKA, "TKA", 18)
	assetA := &reentrantLedger{AssetLedger: inner, caller: bob}
	assetB := token.NewAssetLedger(addrTKB, "TKB", 18)
	clock := &testClock{height: 1}

	engine, err := NewEngine(assetA, assetB, clock)
	require.NoError(t, err)

	require.NoError(t, inner.Mint(alice, big.NewInt(10_000_000)))
	require.NoError(t, assetB.Mint(alice, big.NewInt(10_000_000)))
	require.NoError(t, inner.Mint(bob, big.NewInt(10_000_000)))

	_, _, _, err = engine.AddLiquidity(alice, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)

	assetA.engine = engine

	clock.advance(MinimumTradeDelay)
	out, err := engine.Swap(bob, big.NewInt(10_000), AToB)
	require.NoError(t, err)
	require.Positive(t, out.Sign())

	require.True(t, assetA.fired)
	require.True(t, errors.Is(assetA.got, ErrReentrantCall))
}

func TestAddLiquidityRollsBackOnTransferFailure(t *testing.T) {
	engine, assetA, assetB, _ := newTestEngine(t)

	_, _, _, err := engine.AddLiquidity(alice, big.NewInt(100_000), big.NewInt(100_000))
	require.NoError(t, err)

	// bob's asset B balance cannot cover the desired pull.
	require.NoError(t, assetB.Transfer(bob, alice, big.NewInt(9_950_000)))

	beforeA, beforeB := engine.Reserves()
	bobA := assetA.BalanceOf(bob)

	_, _, _, err = engine.AddLiquidity(bob, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	afterA, afterB := engine.Reserves()
	require.Equal(t, beforeA, afterA)
	require.Equal(t, beforeB, afterB)
	require.Equal(t, bobA, assetA.BalanceOf(bob))
	require.Equal(t, big.NewInt(100_000), engine.Shares().TotalSupply())
}

func TestParseDirection(t *testing.T) {
	dir, err := ParseDirection("a_to_b")
	require.NoError(t, err)
	require.Equal(t, AToB, dir)

	dir, err = ParseDirection("b_to_a")
	require.NoError(t, err)
	require.Equal(t, BToA, dir)

	_, err = ParseDirection("sideways")
	require.Error(t, err)
}

package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"poolEngine/internal/token"
)

// HeightSource reports the current block height of the hosting environment.
type HeightSource interface {
	Height() uint64
}

// Direction selects which asset a swap consumes.
type Direction uint8

const (
	AToB Direction = iota
	BToA
)

func (d Direction) String() string {
	switch d {
	case AToB:
		return "a_to_b"
	case BToA:
		return "b_to_a"
	default:
		return "unknown"
	}
}

// ParseDirection maps the wire form of a direction back to its value.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "a_to_b":
		return AToB, nil
	case "b_to_a":
		return BToA, nil
	default:
		return 0, fmt.Errorf("amm: invalid direction %q", s)
	}
}

// lockAddress receives the permanently locked first-deposit shares. No
// caller controls it, so the locked shares can never be redeemed.
var lockAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// LockAddress returns the identity holding the permanently locked shares.
func LockAddress() common.Address { return lockAddress }

// Engine is the constant-product pool: the exclusive owner of its reserve
// accounting and the sole authorized minter/burner of its share ledger.
// Reserve values are replaced on update, never mutated in place, so
// snapshots taken by stage stay valid. The engine is not safe for
// concurrent use; the hosting runtime serializes operations.
type Engine struct {
	addr    common.Address
	assetA  token.Ledger
	assetB  token.Ledger
	shares  *token.ShareLedger
	heights HeightSource

	reserveA *big.Int
	reserveB *big.Int
	// lastK stays nil until the first deposit records an invariant.
	lastK *big.Int

	lastTrade map[common.Address]uint64
	entered   bool
}

// NewEngine binds the two asset ledgers, derives the pool's custody
// identity from them, and deploys a fresh share ledger with the pool as its
// only authorized minter.
func NewEngine(assetA, assetB token.Ledger, heights HeightSource) (*Engine, error) {
	if assetA == nil || assetA.Address() == (common.Address{}) {
		return nil, fmt.Errorf("%w: asset A", ErrZeroAddress)
	}
	if assetB == nil || assetB.Address() == (common.Address{}) {
		return nil, fmt.Errorf("%w: asset B", ErrZeroAddress)
	}
	if assetA.Address() == assetB.Address() {
		return nil, fmt.Errorf("%w: %s", ErrSameAsset, assetA.Address().Hex())
	}
	if heights == nil {
		return nil, fmt.Errorf("amm: height source is required")
	}

	addr := derivePoolAddress(assetA.Address(), assetB.Address())
	sharesAddr := common.BytesToAddress(crypto.Keccak256([]byte("shares"), addr.Bytes())[12:])

	return &Engine{
		addr:      addr,
		assetA:    assetA,
		assetB:    assetB,
		shares:    token.NewShareLedger(sharesAddr, addr),
		heights:   heights,
		reserveA:  new(big.Int),
		reserveB:  new(big.Int),
		lastTrade: make(map[common.Address]uint64),
	}, nil
}

func derivePoolAddress(a, b common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(a.Bytes(), b.Bytes())[12:])
}

// Address returns the pool's custody identity.
func (e *Engine) Address() common.Address { return e.addr }

// AssetA returns the ledger of the pool's first asset.
func (e *Engine) AssetA() token.Ledger { return e.assetA }

// AssetB returns the ledger of the pool's second asset.
func (e *Engine) AssetB() token.Ledger { return e.assetB }

// Shares returns the pool's bound share ledger.
func (e *Engine) Shares() *token.ShareLedger { return e.shares }

// Reserves returns copies of the current reserve balances.
func (e *Engine) Reserves() (*big.Int, *big.Int) {
	return new(big.Int).Set(e.reserveA), new(big.Int).Set(e.reserveB)
}

// LastInvariant returns a copy of the last recorded reserve product, or nil
// before the first deposit.
func (e *Engine) LastInvariant() *big.Int {
	if e.lastK == nil {
		return nil
	}
	return new(big.Int).Set(e.lastK)
}

// LastTradeMarker returns the height of the caller's most recent swap, or
// zero if the caller has never swapped.
func (e *Engine) LastTradeMarker(caller common.Address) uint64 {
	return e.lastTrade[caller]
}

// AddLiquidity deposits up to desiredA/desiredB of each asset and mints
// shares proportional to the contribution. On the first deposit the pool
// price is set by the depositor: both legs use min(desiredA, desiredB) and
// MinimumLiquidity of the minted shares is locked forever. On subsequent
// deposits the amounts are matched to the current reserve ratio, preferring
// to consume all of desiredA. Returns the amounts actually used and the
// shares minted.
func (e *Engine) AddLiquidity(caller common.Address, desiredA, desiredB *big.Int) (amountA, amountB, minted *big.Int, err error) {
	if e.entered {
		return nil, nil, nil, ErrReentrantCall
	}
	e.entered = true
	defer func() { e.entered = false }()

	if caller == (common.Address{}) {
		return nil, nil, nil, fmt.Errorf("%w: caller", ErrZeroAddress)
	}
	if desiredA == nil || desiredA.Cmp(minimumLiquidityBig) < 0 {
		return nil, nil, nil, fmt.Errorf("%w: minimum is %d", ErrInsufficientTokenAAmount, MinimumLiquidity)
	}
	if desiredB == nil || desiredB.Cmp(minimumLiquidityBig) < 0 {
		return nil, nil, nil, fmt.Errorf("%w: minimum is %d", ErrInsufficientTokenBAmount, MinimumLiquidity)
	}

	first := e.reserveA.Sign() == 0 && e.reserveB.Sign() == 0
	if first {
		used := minBig(desiredA, desiredB)
		amountA = used
		amountB = new(big.Int).Set(used)
		minted = isqrt(new(big.Int).Mul(amountA, amountB))
		minted.Sub(minted, minimumLiquidityBig)
		if minted.Sign() <= 0 {
			return nil, nil, nil, fmt.Errorf("%w: %s shares", ErrInsufficientInitialLiquidity, minted)
		}
	} else {
		quotedB, qErr := Quote(desiredA, e.reserveA, e.reserveB)
		if qErr != nil {
			return nil, nil, nil, qErr
		}
		if quotedB.Cmp(desiredB) <= 0 {
			amountA = new(big.Int).Set(desiredA)
			amountB = quotedB
		} else {
			quotedA, qErr := Quote(desiredB, e.reserveB, e.reserveA)
			if qErr != nil {
				return nil, nil, nil, qErr
			}
			if quotedA.Cmp(desiredA) > 0 {
				return nil, nil, nil, fmt.Errorf("%w: quoted %s exceeds desired %s", ErrInsufficientTokenAAmount, quotedA, desiredA)
			}
			amountA = quotedA
			amountB = new(big.Int).Set(desiredB)
		}

		totalShares := e.shares.TotalSupply()
		claimA := new(big.Int).Mul(amountA, totalShares)
		claimA.Quo(claimA, e.reserveA)
		claimB := new(big.Int).Mul(amountB, totalShares)
		claimB.Quo(claimB, e.reserveB)
		minted = minBig(claimA, claimB)
		if minted.Sign() <= 0 {
			return nil, nil, nil, fmt.Errorf("%w: %s shares", ErrInsufficientLiquidityMinted, minted)
		}
	}

	undo := e.stage(caller)
	defer func() {
		if err != nil {
			undo()
		}
	}()

	// Pull the full desired amounts into custody; the unused remainder is
	// refunded after the reserve update.
	if err = e.assetA.Transfer(caller, e.addr, desiredA); err != nil {
		return nil, nil, nil, err
	}
	if err = e.assetB.Transfer(caller, e.addr, desiredB); err != nil {
		return nil, nil, nil, err
	}

	e.reserveA = new(big.Int).Add(e.reserveA, amountA)
	e.reserveB = new(big.Int).Add(e.reserveB, amountB)

	if err = e.checkInvariant(); err != nil {
		return nil, nil, nil, err
	}

	refundA := new(big.Int).Sub(desiredA, amountA)
	if refundA.Sign() > 0 {
		if err = e.assetA.Transfer(e.addr, caller, refundA); err != nil {
			return nil, nil, nil, err
		}
	}
	refundB := new(big.Int).Sub(desiredB, amountB)
	if refundB.Sign() > 0 {
		if err = e.assetB.Transfer(e.addr, caller, refundB); err != nil {
			return nil, nil, nil, err
		}
	}

	if first {
		if err = e.shares.Mint(e.addr, lockAddress, minimumLiquidityBig); err != nil {
			return nil, nil, nil, err
		}
	}
	if err = e.shares.Mint(e.addr, caller, minted); err != nil {
		return nil, nil, nil, err
	}

	return amountA, amountB, minted, nil
}

// RemoveLiquidity redeems shares for a proportional slice of both reserves.
// The withdrawal must not shift the per-share backing: after the reserves
// are decremented the remaining product must be at least the old product
// scaled by the square of the remaining share fraction.
func (e *Engine) RemoveLiquidity(caller common.Address, shareAmount *big.Int) (amountA, amountB *big.Int, err error) {
	if e.entered {
		return nil, nil, ErrReentrantCall
	}
	e.entered = true
	defer func() { e.entered = false }()

	if caller == (common.Address{}) {
		return nil, nil, fmt.Errorf("%w: caller", ErrZeroAddress)
	}
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: share amount must be positive", ErrInvalidLiquidityAmount)
	}
	balance := e.shares.BalanceOf(caller)
	if balance.Cmp(shareAmount) < 0 {
		return nil, nil, fmt.Errorf("%w: have %s, redeem %s", ErrInsufficientLPBalance, balance, shareAmount)
	}

	totalShares := e.shares.TotalSupply()
	amountA = new(big.Int).Mul(shareAmount, e.reserveA)
	amountA.Quo(amountA, totalShares)
	amountB = new(big.Int).Mul(shareAmount, e.reserveB)
	amountB.Quo(amountB, totalShares)
	if amountA.Sign() == 0 || amountB.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: payout rounds to zero", ErrInsufficientLiquidityBurned)
	}

	oldK := new(big.Int).Mul(e.reserveA, e.reserveB)

	undo := e.stage(caller)
	defer func() {
		if err != nil {
			undo()
		}
	}()

	e.reserveA = new(big.Int).Sub(e.reserveA, amountA)
	e.reserveB = new(big.Int).Sub(e.reserveB, amountB)

	// Proportionality: newK ≥ oldK·(remaining/total)², evaluated at
	// ratioScale fixed-point precision against the decremented reserves.
	newK := new(big.Int).Mul(e.reserveA, e.reserveB)
	remaining := new(big.Int).Sub(totalShares, shareAmount)
	ratio := new(big.Int).Mul(remaining, ratioScaleBig)
	ratio.Quo(ratio, totalShares)
	lhs := new(big.Int).Mul(newK, ratioScaleBig)
	lhs.Mul(lhs, ratioScaleBig)
	rhs := new(big.Int).Mul(oldK, ratio)
	rhs.Mul(rhs, ratio)
	if lhs.Cmp(rhs) < 0 {
		return nil, nil, fmt.Errorf("%w: withdrawal not proportional", ErrInvariantCheckFailed)
	}
	e.lastK = newK

	if err = e.shares.Burn(e.addr, caller, shareAmount); err != nil {
		return nil, nil, err
	}
	if err = e.assetA.Transfer(e.addr, caller, amountA); err != nil {
		return nil, nil, err
	}
	if err = e.assetB.Transfer(e.addr, caller, amountB); err != nil {
		return nil, nil, err
	}

	return amountA, amountB, nil
}

// Swap trades amountIn of the direction's input asset for the fee-adjusted
// output. The caller's trade marker is recorded before any transfer so a
// retried or reentrant call at the same height is already blocked; the
// realized custody delta of the input asset is re-checked after the
// transfers to catch assets that deliver less than requested.
func (e *Engine) Swap(caller common.Address, amountIn *big.Int, dir Direction) (amountOut *big.Int, err error) {
	if e.entered {
		return nil, ErrReentrantCall
	}
	e.entered = true
	defer func() { e.entered = false }()

	if caller == (common.Address{}) {
		return nil, fmt.Errorf("%w: caller", ErrZeroAddress)
	}
	if dir != AToB && dir != BToA {
		return nil, fmt.Errorf("amm: invalid direction %d", dir)
	}
	if amountIn == nil || amountIn.Cmp(minimumLiquidityBig) < 0 {
		return nil, fmt.Errorf("%w: minimum is %d", ErrInsufficientInputAmount, MinimumLiquidity)
	}
	if e.reserveA.Sign() == 0 || e.reserveB.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool is empty", ErrInsufficientReserves)
	}

	height := e.heights.Height()
	if last, ok := e.lastTrade[caller]; ok && height < last+MinimumTradeDelay {
		return nil, fmt.Errorf("%w: last trade at height %d, current %d", ErrTradeTooSoon, last, height)
	}

	undo := e.stage(caller)
	defer func() {
		if err != nil {
			undo()
		}
	}()

	e.lastTrade[caller] = height

	var assetIn, assetOut token.Ledger
	var reserveIn, reserveOut *big.Int
	if dir == AToB {
		assetIn, assetOut = e.assetA, e.assetB
		reserveIn, reserveOut = e.reserveA, e.reserveB
	} else {
		assetIn, assetOut = e.assetB, e.assetA
		reserveIn, reserveOut = e.reserveB, e.reserveA
	}

	amountOut, err = GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return nil, fmt.Errorf("%w: input too small for a nonzero output", ErrInsufficientInputAmount)
	}
	maxOut := new(big.Int).Quo(reserveOut, maxOutputDivisorBig)
	if amountOut.Cmp(maxOut) > 0 {
		return nil, fmt.Errorf("%w: %s exceeds cap %s", ErrOutputTooLarge, amountOut, maxOut)
	}

	before := assetIn.BalanceOf(e.addr)

	if err = assetIn.Transfer(caller, e.addr, amountIn); err != nil {
		return nil, err
	}
	if err = assetOut.Transfer(e.addr, caller, amountOut); err != nil {
		return nil, err
	}

	newIn := new(big.Int).Add(reserveIn, amountIn)
	newOut := new(big.Int).Sub(reserveOut, amountOut)
	if dir == AToB {
		e.reserveA, e.reserveB = newIn, newOut
	} else {
		e.reserveB, e.reserveA = newIn, newOut
	}

	after := assetIn.BalanceOf(e.addr)
	credited := new(big.Int).Sub(after, before)
	if credited.Cmp(amountIn) < 0 {
		return nil, fmt.Errorf("%w: credited %s of %s", ErrBalanceManipulationDetected, credited, amountIn)
	}

	if err = e.checkInvariant(); err != nil {
		return nil, err
	}

	return amountOut, nil
}

// Restore installs persisted scalar state; used when reloading at startup.
// A nil lastK means no invariant has been recorded yet.
func (e *Engine) Restore(reserveA, reserveB, lastK *big.Int, markers map[common.Address]uint64) {
	e.reserveA = new(big.Int).Set(reserveA)
	e.reserveB = new(big.Int).Set(reserveB)
	if lastK != nil {
		e.lastK = new(big.Int).Set(lastK)
	} else {
		e.lastK = nil
	}
	e.lastTrade = make(map[common.Address]uint64, len(markers))
	for caller, height := range markers {
		e.lastTrade[caller] = height
	}
}

// stage snapshots the three ledgers and the engine's scalar state,
// returning a rollback that restores all of it. Called before the first
// mutation of every public operation.
func (e *Engine) stage(caller common.Address) func() {
	snapA := e.assetA.Snapshot()
	snapB := e.assetB.Snapshot()
	snapShares := e.shares.Snapshot()
	reserveA := e.reserveA
	reserveB := e.reserveB
	lastK := e.lastK
	marker, hadMarker := e.lastTrade[caller]
	return func() {
		e.assetA.RevertTo(snapA)
		e.assetB.RevertTo(snapB)
		e.shares.RevertTo(snapShares)
		e.reserveA = reserveA
		e.reserveB = reserveB
		e.lastK = lastK
		if hadMarker {
			e.lastTrade[caller] = marker
		} else {
			delete(e.lastTrade, caller)
		}
	}
}

// checkInvariant recomputes the reserve product, requires it has not
// decreased since the last recorded value, and records it.
func (e *Engine) checkInvariant() error {
	k := new(big.Int).Mul(e.reserveA, e.reserveB)
	if e.lastK != nil && k.Cmp(e.lastK) < 0 {
		return fmt.Errorf("%w: product %s below recorded %s", ErrInvariantCheckFailed, k, e.lastK)
	}
	e.lastK = k
	return nil
}

package amm

import "errors"

var (
	ErrZeroAddress                  = errors.New("amm: zero address")
	ErrSameAsset                    = errors.New("amm: identical assets")
	ErrInsufficientTokenAAmount     = errors.New("amm: insufficient token A amount")
	ErrInsufficientTokenBAmount     = errors.New("amm: insufficient token B amount")
	ErrInsufficientInitialLiquidity = errors.New("amm: insufficient initial liquidity")
	ErrInsufficientLiquidityMinted  = errors.New("amm: insufficient liquidity minted")
	ErrInvalidLiquidityAmount       = errors.New("amm: invalid liquidity amount")
	ErrInsufficientLPBalance        = errors.New("amm: insufficient lp balance")
	ErrInsufficientLiquidityBurned  = errors.New("amm: insufficient liquidity burned")
	ErrInvariantCheckFailed         = errors.New("amm: invariant check failed")
	ErrInsufficientInputAmount      = errors.New("amm: insufficient input amount")
	ErrTradeTooSoon                 = errors.New("amm: trade too soon")
	ErrInsufficientReserves         = errors.New("amm: insufficient reserves")
	ErrOutputTooLarge               = errors.New("amm: output too large")
	ErrBalanceManipulationDetected  = errors.New("amm: balance manipulation detected")
	ErrInsufficientAmount           = errors.New("amm: insufficient amount")
	ErrInsufficientLiquidity        = errors.New("amm: insufficient liquidity")
	ErrReentrantCall                = errors.New("amm: reentrant call")
)

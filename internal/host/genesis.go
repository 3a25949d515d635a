package host

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetDefinition identifies one of the pool's two assets.
type AssetDefinition struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Allocation seeds a holder's starting balances at genesis.
type Allocation struct {
	Holder  common.Address
	AmountA *big.Int
	AmountB *big.Int
}

// Genesis describes the initial state of a fresh node. It is ignored when
// the store already holds persisted state.
type Genesis struct {
	AssetA      AssetDefinition
	AssetB      AssetDefinition
	Allocations []Allocation
	StartHeight uint64
}

func (g Genesis) validate() error {
	if g.AssetA.Address == (common.Address{}) || g.AssetB.Address == (common.Address{}) {
		return fmt.Errorf("host: genesis asset address is zero")
	}
	if g.AssetA.Address == g.AssetB.Address {
		return fmt.Errorf("host: genesis assets are identical")
	}
	for _, alloc := range g.Allocations {
		if alloc.Holder == (common.Address{}) {
			return fmt.Errorf("host: genesis allocation to zero address")
		}
		if alloc.AmountA != nil && alloc.AmountA.Sign() < 0 {
			return fmt.Errorf("host: negative genesis allocation for %s", alloc.Holder.Hex())
		}
		if alloc.AmountB != nil && alloc.AmountB.Sign() < 0 {
			return fmt.Errorf("host: negative genesis allocation for %s", alloc.Holder.Hex())
		}
	}
	return nil
}

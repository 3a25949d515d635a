package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetLedger is a map-backed fungible ledger for a single asset.
type AssetLedger struct {
	addr     common.Address
	symbol   string
	decimals uint8
	state    ledgerState
}

// NewAssetLedger creates an empty ledger for the given asset identity.
func NewAssetLedger(addr common.Address, symbol string, decimals uint8) *AssetLedger {
	return &AssetLedger{
		addr:     addr,
		symbol:   symbol,
		decimals: decimals,
		state:    newLedgerState(),
	}
}

func (l *AssetLedger) Address() common.Address { return l.addr }

func (l *AssetLedger) Symbol() string { return l.symbol }

func (l *AssetLedger) Decimals() uint8 { return l.decimals }

// Mint credits new supply to the holder; used when seeding genesis balances.
func (l *AssetLedger) Mint(to common.Address, amount *big.Int) error {
	return l.state.mint(to, amount)
}

func (l *AssetLedger) Transfer(from, to common.Address, amount *big.Int) error {
	return l.state.transfer(from, to, amount)
}

func (l *AssetLedger) BalanceOf(who common.Address) *big.Int {
	return l.state.balanceOf(who)
}

func (l *AssetLedger) TotalSupply() *big.Int {
	return l.state.totalSupply()
}

func (l *AssetLedger) Snapshot() int {
	return l.state.snapshot()
}

func (l *AssetLedger) RevertTo(id int) {
	l.state.revertTo(id)
}

// Restore replaces all balances and the supply, bypassing the undo journal.
// Used when reloading persisted state at startup.
func (l *AssetLedger) Restore(balances map[common.Address]*big.Int, supply *big.Int) {
	l.state.restore(balances, supply)
}

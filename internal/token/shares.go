package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ShareLedger tracks fractional ownership of a pool's reserves. Mint and
// burn are restricted to the minter identity bound at construction; all
// other callers see only the transfer/balance/supply surface.
type ShareLedger struct {
	addr   common.Address
	minter common.Address
	state  ledgerState
}

// NewShareLedger creates an empty share ledger permanently bound to minter.
func NewShareLedger(addr, minter common.Address) *ShareLedger {
	return &ShareLedger{
		addr:   addr,
		minter: minter,
		state:  newLedgerState(),
	}
}

func (l *ShareLedger) Address() common.Address { return l.addr }

// Minter returns the identity allowed to mint and burn.
func (l *ShareLedger) Minter() common.Address { return l.minter }

// Mint increases to's balance and the total issued by amount. Only the
// bound minter may call it.
func (l *ShareLedger) Mint(caller, to common.Address, amount *big.Int) error {
	if caller != l.minter {
		return fmt.Errorf("%w: %s may not mint", ErrUnauthorized, caller.Hex())
	}
	return l.state.mint(to, amount)
}

// Burn decreases from's balance and the total issued by amount. Only the
// bound minter may call it.
func (l *ShareLedger) Burn(caller, from common.Address, amount *big.Int) error {
	if caller != l.minter {
		return fmt.Errorf("%w: %s may not burn", ErrUnauthorized, caller.Hex())
	}
	return l.state.burn(from, amount)
}

func (l *ShareLedger) Transfer(from, to common.Address, amount *big.Int) error {
	return l.state.transfer(from, to, amount)
}

func (l *ShareLedger) BalanceOf(who common.Address) *big.Int {
	return l.state.balanceOf(who)
}

func (l *ShareLedger) TotalSupply() *big.Int {
	return l.state.totalSupply()
}

func (l *ShareLedger) Snapshot() int {
	return l.state.snapshot()
}

func (l *ShareLedger) RevertTo(id int) {
	l.state.revertTo(id)
}

// Restore replaces all balances and the supply, bypassing the undo journal.
// Used when reloading persisted state at startup.
func (l *ShareLedger) Restore(balances map[common.Address]*big.Int, supply *big.Int) {
	l.state.restore(balances, supply)
}

package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ledgerState holds balances, total supply, and the undo journal shared by
// both ledger kinds. Every mutation appends an inverse entry so a failed
// operation can roll the ledger back to a snapshot.
type ledgerState struct {
	balances map[common.Address]*big.Int
	supply   *big.Int
	undo     []undoEntry
}

func newLedgerState() ledgerState {
	return ledgerState{
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
	}
}

type undoEntry interface {
	revert(s *ledgerState)
}

// balanceChange restores a holder's prior balance; a nil prev removes the
// entry that the mutation created.
type balanceChange struct {
	account common.Address
	prev    *big.Int
}

func (c balanceChange) revert(s *ledgerState) {
	if c.prev == nil {
		delete(s.balances, c.account)
		return
	}
	s.balances[c.account] = c.prev
}

type supplyChange struct {
	prev *big.Int
}

func (c supplyChange) revert(s *ledgerState) {
	s.supply = c.prev
}

// setBalance records the prior value and installs a fresh big.Int; stored
// values are never mutated in place.
func (s *ledgerState) setBalance(account common.Address, value *big.Int) {
	prev, ok := s.balances[account]
	if ok {
		s.undo = append(s.undo, balanceChange{account: account, prev: prev})
	} else {
		s.undo = append(s.undo, balanceChange{account: account})
	}
	s.balances[account] = value
}

func (s *ledgerState) setSupply(value *big.Int) {
	s.undo = append(s.undo, supplyChange{prev: s.supply})
	s.supply = value
}

func (s *ledgerState) snapshot() int {
	return len(s.undo)
}

func (s *ledgerState) revertTo(id int) {
	if id < 0 || id > len(s.undo) {
		return
	}
	for i := len(s.undo) - 1; i >= id; i-- {
		s.undo[i].revert(s)
	}
	s.undo = s.undo[:id]
}

func (s *ledgerState) balanceOf(account common.Address) *big.Int {
	if b, ok := s.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (s *ledgerState) totalSupply() *big.Int {
	return new(big.Int).Set(s.supply)
}

func (s *ledgerState) transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: nil or negative transfer", ErrInvalidAmount)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: zero recipient", ErrInvalidRecipient)
	}
	fromBal := s.balanceOf(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	if amount.Sign() == 0 {
		return nil
	}
	s.setBalance(from, fromBal.Sub(fromBal, amount))
	s.setBalance(to, new(big.Int).Add(s.balanceOf(to), amount))
	return nil
}

func (s *ledgerState) mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: nil or negative mint", ErrInvalidAmount)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: zero recipient", ErrInvalidRecipient)
	}
	s.setBalance(to, new(big.Int).Add(s.balanceOf(to), amount))
	s.setSupply(new(big.Int).Add(s.supply, amount))
	return nil
}

func (s *ledgerState) restore(balances map[common.Address]*big.Int, supply *big.Int) {
	s.balances = make(map[common.Address]*big.Int, len(balances))
	for account, balance := range balances {
		if balance == nil || balance.Sign() == 0 {
			continue
		}
		s.balances[account] = new(big.Int).Set(balance)
	}
	if supply == nil {
		supply = new(big.Int)
	}
	s.supply = new(big.Int).Set(supply)
	s.undo = nil
}

func (s *ledgerState) burn(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: nil or negative burn", ErrInvalidAmount)
	}
	fromBal := s.balanceOf(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, burn %s", ErrInsufficientBalance, fromBal, amount)
	}
	s.setBalance(from, fromBal.Sub(fromBal, amount))
	s.setSupply(new(big.Int).Sub(s.supply, amount))
	return nil
}

package token

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnauthorized        = errors.New("token: unauthorized")
	ErrInvalidRecipient    = errors.New("token: invalid recipient")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrInvalidAmount       = errors.New("token: invalid amount")
)

// Ledger is the balance surface the pool engine and channel manager operate
// on. Implementations are not safe for concurrent use; the hosting runtime
// serializes access.
type Ledger interface {
	// Address returns the ledger's asset identity.
	Address() common.Address

	// Transfer moves amount from one holder to another.
	Transfer(from, to common.Address, amount *big.Int) error

	// BalanceOf returns a copy of the holder's balance.
	BalanceOf(who common.Address) *big.Int

	// TotalSupply returns a copy of the total issued amount.
	TotalSupply() *big.Int

	// Snapshot marks the current state; RevertTo undoes every mutation
	// made after the matching Snapshot call.
	Snapshot() int
	RevertTo(id int)
}

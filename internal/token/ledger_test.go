package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	assetAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob       = common.HexToAddress("0x2222222222222222222222222222222222222222")
	poolAddr  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestAssetLedgerTransfer(t *testing.T) {
	l := NewAssetLedger(assetAddr, "TKA", 18)
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))

	require.NoError(t, l.Transfer(alice, bob, big.NewInt(400)))
	require.Equal(t, big.NewInt(600), l.BalanceOf(alice))
	require.Equal(t, big.NewInt(400), l.BalanceOf(bob))
	require.Equal(t, big.NewInt(1000), l.TotalSupply())
}

func TestAssetLedgerTransferInsufficient(t *testing.T) {
	l := NewAssetLedger(assetAddr, "TKA", 18)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	err := l.Transfer(alice, bob, big.NewInt(101))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, big.NewInt(100), l.BalanceOf(alice))
}

func TestAssetLedgerTransferZeroRecipient(t *testing.T) {
	l := NewAssetLedger(assetAddr, "TKA", 18)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	err := l.Transfer(alice, common.Address{}, big.NewInt(10))
	require.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestAssetLedgerBalanceCopies(t *testing.T) {
	l := NewAssetLedger(assetAddr, "TKA", 18)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	bal := l.BalanceOf(alice)
	bal.SetInt64(0)
	require.Equal(t, big.NewInt(100), l.BalanceOf(alice))

	supply := l.TotalSupply()
	supply.SetInt64(0)
	require.Equal(t, big.NewInt(100), l.TotalSupply())
}

func TestAssetLedgerSnapshotRevert(t *testing.T) {
	l := NewAssetLedger(assetAddr, "TKA", 18)
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))

	snap := l.Snapshot()
	require.NoError(t, l.Transfer(alice, bob, big.NewInt(250)))
	require.NoError(t, l.Transfer(alice, poolAddr, big.NewInt(250)))
	require.Equal(t, big.NewInt(500), l.BalanceOf(alice))

	l.RevertTo(snap)
	require.Equal(t, big.NewInt(1000), l.BalanceOf(alice))
	require.Equal(t, big.NewInt(0), l.BalanceOf(bob))
	require.Equal(t, big.NewInt(0), l.BalanceOf(poolAddr))
}

func TestAssetLedgerNestedSnapshots(t *testing.T) {
	l := NewAssetLedger(assetAddr, "TKA", 18)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	outer := l.Snapshot()
	require.NoError(t, l.Transfer(alice, bob, big.NewInt(10)))

	inner := l.Snapshot()
	require.NoError(t, l.Transfer(alice, bob, big.NewInt(20)))

	l.RevertTo(inner)
	require.Equal(t, big.NewInt(90), l.BalanceOf(alice))
	require.Equal(t, big.NewInt(10), l.BalanceOf(bob))

	l.RevertTo(outer)
	require.Equal(t, big.NewInt(100), l.BalanceOf(alice))
	require.Equal(t, big.NewInt(0), l.BalanceOf(bob))
}

func TestAssetLedgerRestore(t *testing.T) {
	l := NewAssetLedger(assetAddr, "TKA", 18)
	l.Restore(map[common.Address]*big.Int{
		alice: big.NewInt(700),
		bob:   big.NewInt(300),
	}, big.NewInt(1000))

	require.Equal(t, big.NewInt(700), l.BalanceOf(alice))
	require.Equal(t, big.NewInt(300), l.BalanceOf(bob))
	require.Equal(t, big.NewInt(1000), l.TotalSupply())
}

func TestShareLedgerMintAuthorization(t *testing.T) {
	l := NewShareLedger(assetAddr, poolAddr)

	err := l.Mint(alice, alice, big.NewInt(100))
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, big.NewInt(0), l.TotalSupply())

	require.NoError(t, l.Mint(poolAddr, alice, big.NewInt(100)))
	require.Equal(t, big.NewInt(100), l.BalanceOf(alice))
	require.Equal(t, big.NewInt(100), l.TotalSupply())
}

func TestShareLedgerMintZeroRecipient(t *testing.T) {
	l := NewShareLedger(assetAddr, poolAddr)

	err := l.Mint(poolAddr, common.Address{}, big.NewInt(100))
	require.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestShareLedgerBurn(t *testing.T) {
	l := NewShareLedger(assetAddr, poolAddr)
	require.NoError(t, l.Mint(poolAddr, alice, big.NewInt(100)))

	err := l.Burn(alice, alice, big.NewInt(50))
	require.ErrorIs(t, err, ErrUnauthorized)

	err = l.Burn(poolAddr, alice, big.NewInt(101))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, l.Burn(poolAddr, alice, big.NewInt(60)))
	require.Equal(t, big.NewInt(40), l.BalanceOf(alice))
	require.Equal(t, big.NewInt(40), l.TotalSupply())
}

func TestShareLedgerSnapshotRevertSupply(t *testing.T) {
	l := NewShareLedger(assetAddr, poolAddr)
	require.NoError(t, l.Mint(poolAddr, alice, big.NewInt(100)))

	snap := l.Snapshot()
	require.NoError(t, l.Mint(poolAddr, bob, big.NewInt(50)))
	require.NoError(t, l.Burn(poolAddr, alice, big.NewInt(30)))
	require.Equal(t, big.NewInt(120), l.TotalSupply())

	l.RevertTo(snap)
	require.Equal(t, big.NewInt(100), l.TotalSupply())
	require.Equal(t, big.NewInt(100), l.BalanceOf(alice))
	require.Equal(t, big.NewInt(0), l.BalanceOf(bob))
}

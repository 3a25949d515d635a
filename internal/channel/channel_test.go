package channel

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"poolEngine/internal/token"
)

type testClock struct {
	height uint64
}

func (c *testClock) Height() uint64 { return c.height }

func (c *testClock) advance(n uint64) { c.height += n }

type fixture struct {
	clock     *testClock
	mgr       *Manager
	asset     *token.AssetLedger
	senderKey *ecdsa.PrivateKey
	sender    common.Address
	recipient common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := &fixture{
		clock:     &testClock{height: 10},
		asset:     token.NewAssetLedger(common.HexToAddress("0xaa"), "TKA", 18),
		senderKey: key,
		sender:    crypto.PubkeyToAddress(key.PublicKey),
		recipient: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
	f.mgr = NewManager(f.clock)
	f.asset.Mint(f.sender, big.NewInt(1_000_000))
	return f
}

func (f *fixture) sign(t *testing.T, id common.Hash, cumulative int64) []byte {
	t.Helper()
	digest := ClaimDigest(id, big.NewInt(cumulative))
	sig, err := crypto.Sign(digest.Bytes(), f.senderKey)
	require.NoError(t, err)
	return sig
}

func TestOpenEscrowsFunds(t *testing.T) {
	f := newFixture(t)

	id, err := f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(50_000), 20)
	require.NoError(t, err)

	require.Equal(t, big.NewInt(950_000), f.asset.BalanceOf(f.sender))
	require.Equal(t, big.NewInt(50_000), f.asset.BalanceOf(CustodyAddress(id)))

	ch, ok := f.mgr.Get(id)
	require.True(t, ok)
	require.Equal(t, f.sender, ch.Sender)
	require.Equal(t, f.recipient, ch.Recipient)
	require.Equal(t, f.asset.Address(), ch.Asset)
	require.Equal(t, big.NewInt(50_000), ch.Amount)
	require.Zero(t, ch.Paid.Sign())
	require.Equal(t, uint64(20), ch.SettleDelay)
	require.Zero(t, ch.ExpiresAt)
	require.Equal(t, uint64(1), f.mgr.Sequence())
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Open(common.Address{}, f.recipient, f.asset, big.NewInt(1), 20)
	require.ErrorIs(t, err, ErrZeroAddress)

	_, err = f.mgr.Open(f.sender, f.sender, f.asset, big.NewInt(1), 20)
	require.ErrorIs(t, err, ErrSameParty)

	_, err = f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(0), 20)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(1), 0)
	require.Error(t, err)

	_, err = f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(2_000_000), 20)
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
	require.Zero(t, f.mgr.Sequence())
}

func TestClaimPaysCumulativeDeltas(t *testing.T) {
	f := newFixture(t)
	id, err := f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(50_000), 20)
	require.NoError(t, err)

	paid, err := f.mgr.Claim(f.recipient, id, big.NewInt(12_000), f.sign(t, id, 12_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(12_000), paid)
	require.Equal(t, big.NewInt(12_000), f.asset.BalanceOf(f.recipient))

	paid, err = f.mgr.Claim(f.recipient, id, big.NewInt(30_000), f.sign(t, id, 30_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(18_000), paid)
	require.Equal(t, big.NewInt(30_000), f.asset.BalanceOf(f.recipient))
	require.Equal(t, big.NewInt(20_000), f.asset.BalanceOf(CustodyAddress(id)))

	ch, _ := f.mgr.Get(id)
	require.Equal(t, big.NewInt(30_000), ch.Paid)
}

func TestClaimRejectsStaleAndOverfunded(t *testing.T) {
	f := newFixture(t)
	id, err := f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(50_000), 20)
	require.NoError(t, err)

	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(12_000), f.sign(t, id, 12_000))
	require.NoError(t, err)

	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(12_000), f.sign(t, id, 12_000))
	require.ErrorIs(t, err, ErrStaleClaim)

	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(8_000), f.sign(t, id, 8_000))
	require.ErrorIs(t, err, ErrStaleClaim)

	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(50_001), f.sign(t, id, 50_001))
	require.ErrorIs(t, err, ErrOverfundedClaim)

	require.Equal(t, big.NewInt(12_000), f.asset.BalanceOf(f.recipient))
}

func TestClaimRejectsBadSigner(t *testing.T) {
	f := newFixture(t)
	id, err := f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(50_000), 20)
	require.NoError(t, err)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := ClaimDigest(id, big.NewInt(10_000))
	sig, err := crypto.Sign(digest.Bytes(), otherKey)
	require.NoError(t, err)

	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(10_000), sig)
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(10_000), []byte("garbage"))
	require.ErrorIs(t, err, ErrBadSignature)

	// A valid signature over a different total must not authorize this one.
	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(10_000), f.sign(t, id, 9_000))
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestClaimRejectsWrongCaller(t *testing.T) {
	f := newFixture(t)
	id, err := f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(50_000), 20)
	require.NoError(t, err)

	_, err = f.mgr.Claim(f.sender, id, big.NewInt(10_000), f.sign(t, id, 10_000))
	require.ErrorIs(t, err, ErrNotRecipient)
}

func TestCloseStartsSettleTimer(t *testing.T) {
	f := newFixture(t)
	id, err := f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(50_000), 20)
	require.NoError(t, err)

	_, err = f.mgr.Close(f.recipient, id)
	require.ErrorIs(t, err, ErrNotSender)

	expiresAt, err := f.mgr.Close(f.sender, id)
	require.NoError(t, err)
	require.Equal(t, uint64(30), expiresAt)

	_, err = f.mgr.Close(f.sender, id)
	require.ErrorIs(t, err, ErrChannelClosed)
}

func TestClaimAllowedDuringSettleWindow(t *testing.T) {
	f := newFixture(t)
	id, err := f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(50_000), 20)
	require.NoError(t, err)

	_, err = f.mgr.Close(f.sender, id)
	require.NoError(t, err)

	f.clock.advance(5)
	paid, err := f.mgr.Claim(f.recipient, id, big.NewInt(41_000), f.sign(t, id, 41_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(41_000), paid)
}

func TestRefundReturnsRemainder(t *testing.T) {
	f := newFixture(t)
	id, err := f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(50_000), 20)
	require.NoError(t, err)

	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(41_000), f.sign(t, id, 41_000))
	require.NoError(t, err)

	_, err = f.mgr.Refund(f.sender, id)
	require.ErrorIs(t, err, ErrNotExpired)

	_, err = f.mgr.Close(f.sender, id)
	require.NoError(t, err)

	f.clock.advance(19)
	_, err = f.mgr.Refund(f.sender, id)
	require.ErrorIs(t, err, ErrNotExpired)

	f.clock.advance(1)
	remainder, err := f.mgr.Refund(f.sender, id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9_000), remainder)
	require.Equal(t, big.NewInt(959_000), f.asset.BalanceOf(f.sender))
	require.Zero(t, f.asset.BalanceOf(CustodyAddress(id)).Sign())

	_, ok := f.mgr.Get(id)
	require.False(t, ok)
	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(42_000), f.sign(t, id, 42_000))
	require.ErrorIs(t, err, ErrChannelNotFound)
}

func TestRestoreRebuildsChannels(t *testing.T) {
	f := newFixture(t)
	id, err := f.mgr.Open(f.sender, f.recipient, f.asset, big.NewInt(50_000), 20)
	require.NoError(t, err)
	_, err = f.mgr.Claim(f.recipient, id, big.NewInt(12_000), f.sign(t, id, 12_000))
	require.NoError(t, err)

	ch, ok := f.mgr.Get(id)
	require.True(t, ok)

	restored := NewManager(f.clock)
	err = restored.Restore([]Channel{ch}, f.mgr.Sequence(), func(addr common.Address) (token.Ledger, bool) {
		if addr == f.asset.Address() {
			return f.asset, true
		}
		return nil, false
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), restored.Sequence())

	paid, err := restored.Claim(f.recipient, id, big.NewInt(20_000), f.sign(t, id, 20_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(8_000), paid)

	err = restored.Restore([]Channel{ch}, 1, func(common.Address) (token.Ledger, bool) {
		return nil, false
	})
	require.Error(t, err)
}

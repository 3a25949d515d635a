package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"poolEngine/internal/token"
)

var (
	ErrChannelNotFound = errors.New("channel: not found")
	ErrNotRecipient    = errors.New("channel: caller is not the recipient")
	ErrNotSender       = errors.New("channel: caller is not the sender")
	ErrBadSignature    = errors.New("channel: bad claim signature")
	ErrStaleClaim      = errors.New("channel: claim does not exceed paid total")
	ErrOverfundedClaim = errors.New("channel: claim exceeds channel amount")
	ErrNotExpired      = errors.New("channel: settle delay not elapsed")
	ErrChannelClosed   = errors.New("channel: already closing")
	ErrInvalidAmount   = errors.New("channel: invalid amount")
	ErrZeroAddress     = errors.New("channel: zero address")
	ErrSameParty       = errors.New("channel: sender and recipient are the same")
)

// HeightSource reports the current block height of the hosting environment.
type HeightSource interface {
	Height() uint64
}

// Channel is a one-directional payment escrow: the sender funds it once,
// the recipient withdraws against sender-signed cumulative claims, and the
// sender recovers the remainder after the settle delay has elapsed.
// ExpiresAt is zero while the channel is open.
type Channel struct {
	ID          common.Hash
	Sender      common.Address
	Recipient   common.Address
	Asset       common.Address
	Amount      *big.Int
	Paid        *big.Int
	SettleDelay uint64
	ExpiresAt   uint64

	ledger token.Ledger
}

func (c *Channel) copy() Channel {
	out := *c
	out.Amount = new(big.Int).Set(c.Amount)
	out.Paid = new(big.Int).Set(c.Paid)
	out.ledger = nil
	return out
}

// CustodyAddress derives the escrow identity holding a channel's funds.
func CustodyAddress(id common.Hash) common.Address {
	return common.BytesToAddress(id[12:])
}

// ClaimDigest is the message a sender signs to authorize a cumulative
// payout on a channel.
func ClaimDigest(id common.Hash, cumulative *big.Int) common.Hash {
	return crypto.Keccak256Hash(id.Bytes(), common.BigToHash(cumulative).Bytes())
}

// Manager owns all payment channels. It is not safe for concurrent use;
// the hosting runtime serializes operations.
type Manager struct {
	heights  HeightSource
	channels map[common.Hash]*Channel
	seq      uint64
}

// NewManager creates an empty channel manager.
func NewManager(heights HeightSource) *Manager {
	return &Manager{
		heights:  heights,
		channels: make(map[common.Hash]*Channel),
	}
}

// Open funds a new channel from sender to recipient and returns its ID.
func (m *Manager) Open(sender, recipient common.Address, asset token.Ledger, amount *big.Int, settleDelay uint64) (common.Hash, error) {
	if sender == (common.Address{}) || recipient == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("%w: sender or recipient", ErrZeroAddress)
	}
	if sender == recipient {
		return common.Hash{}, ErrSameParty
	}
	if asset == nil {
		return common.Hash{}, fmt.Errorf("%w: asset ledger", ErrZeroAddress)
	}
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if settleDelay == 0 {
		return common.Hash{}, fmt.Errorf("channel: settle delay must be positive")
	}

	m.seq++
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], m.seq)
	id := crypto.Keccak256Hash(sender.Bytes(), recipient.Bytes(), asset.Address().Bytes(), seqBytes[:])

	if err := asset.Transfer(sender, CustodyAddress(id), amount); err != nil {
		m.seq--
		return common.Hash{}, err
	}

	m.channels[id] = &Channel{
		ID:          id,
		Sender:      sender,
		Recipient:   recipient,
		Asset:       asset.Address(),
		Amount:      new(big.Int).Set(amount),
		Paid:        new(big.Int),
		SettleDelay: settleDelay,
		ledger:      asset,
	}
	return id, nil
}

// Claim pays the recipient the difference between a sender-signed
// cumulative total and what has already been paid. Claims stay valid while
// a close is pending and are rejected only once the channel is gone.
func (m *Manager) Claim(caller common.Address, id common.Hash, cumulative *big.Int, sig []byte) (*big.Int, error) {
	ch, ok := m.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id.Hex())
	}
	if caller != ch.Recipient {
		return nil, fmt.Errorf("%w: %s", ErrNotRecipient, caller.Hex())
	}
	if cumulative == nil || cumulative.Sign() <= 0 {
		return nil, fmt.Errorf("%w: claim must be positive", ErrInvalidAmount)
	}
	if cumulative.Cmp(ch.Paid) <= 0 {
		return nil, fmt.Errorf("%w: claim %s, paid %s", ErrStaleClaim, cumulative, ch.Paid)
	}
	if cumulative.Cmp(ch.Amount) > 0 {
		return nil, fmt.Errorf("%w: claim %s, funded %s", ErrOverfundedClaim, cumulative, ch.Amount)
	}

	digest := ClaimDigest(id, cumulative)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != ch.Sender {
		return nil, fmt.Errorf("%w: signer is not the channel sender", ErrBadSignature)
	}

	delta := new(big.Int).Sub(cumulative, ch.Paid)
	if err := ch.ledger.Transfer(CustodyAddress(id), ch.Recipient, delta); err != nil {
		return nil, err
	}
	ch.Paid = new(big.Int).Set(cumulative)
	return delta, nil
}

// Close starts the settle timer; the remainder becomes refundable once
// SettleDelay blocks have passed. Only the sender may close.
func (m *Manager) Close(caller common.Address, id common.Hash) (uint64, error) {
	ch, ok := m.channels[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrChannelNotFound, id.Hex())
	}
	if caller != ch.Sender {
		return 0, fmt.Errorf("%w: %s", ErrNotSender, caller.Hex())
	}
	if ch.ExpiresAt != 0 {
		return 0, fmt.Errorf("%w: expires at height %d", ErrChannelClosed, ch.ExpiresAt)
	}
	ch.ExpiresAt = m.heights.Height() + ch.SettleDelay
	return ch.ExpiresAt, nil
}

// Refund returns the unclaimed remainder to the sender and removes the
// channel. It requires a prior Close whose settle delay has elapsed.
func (m *Manager) Refund(caller common.Address, id common.Hash) (*big.Int, error) {
	ch, ok := m.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id.Hex())
	}
	if caller != ch.Sender {
		return nil, fmt.Errorf("%w: %s", ErrNotSender, caller.Hex())
	}
	if ch.ExpiresAt == 0 || m.heights.Height() < ch.ExpiresAt {
		return nil, fmt.Errorf("%w: expires at height %d", ErrNotExpired, ch.ExpiresAt)
	}

	remainder := new(big.Int).Sub(ch.Amount, ch.Paid)
	if remainder.Sign() > 0 {
		if err := ch.ledger.Transfer(CustodyAddress(id), ch.Sender, remainder); err != nil {
			return nil, err
		}
	}
	delete(m.channels, id)
	return remainder, nil
}

// Get returns a copy of the channel, if it exists.
func (m *Manager) Get(id common.Hash) (Channel, bool) {
	ch, ok := m.channels[id]
	if !ok {
		return Channel{}, false
	}
	return ch.copy(), true
}

// Count returns the number of live channels.
func (m *Manager) Count() int {
	return len(m.channels)
}

// Sequence returns the number of channels ever opened; persisted so IDs
// stay unique across restarts.
func (m *Manager) Sequence() uint64 {
	return m.seq
}

// Restore reinstalls persisted channels and the open sequence at startup.
// The resolver maps an asset identity back to its ledger.
func (m *Manager) Restore(channels []Channel, seq uint64, resolve func(common.Address) (token.Ledger, bool)) error {
	m.channels = make(map[common.Hash]*Channel, len(channels))
	for i := range channels {
		ch := channels[i]
		ledger, ok := resolve(ch.Asset)
		if !ok {
			return fmt.Errorf("channel: no ledger for asset %s", ch.Asset.Hex())
		}
		restored := ch
		restored.Amount = new(big.Int).Set(ch.Amount)
		restored.Paid = new(big.Int).Set(ch.Paid)
		restored.ledger = ledger
		m.channels[ch.ID] = &restored
	}
	m.seq = seq
	return nil
}

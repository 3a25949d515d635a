package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"poolEngine/internal/channel"
	"poolEngine/internal/model"
	"poolEngine/internal/store"
	"poolEngine/internal/token"
)

// bootstrap applies the genesis allocations and writes the initial state
// to the store in one batch.
func (r *Runtime) bootstrap(ctx context.Context, g Genesis) error {
	for _, alloc := range g.Allocations {
		if alloc.AmountA != nil && alloc.AmountA.Sign() > 0 {
			if err := r.assetA.Mint(alloc.Holder, alloc.AmountA); err != nil {
				return fmt.Errorf("mint %s to %s: %w", r.assetA.Symbol(), alloc.Holder.Hex(), err)
			}
		}
		if alloc.AmountB != nil && alloc.AmountB.Sign() > 0 {
			if err := r.assetB.Mint(alloc.Holder, alloc.AmountB); err != nil {
				return fmt.Errorf("mint %s to %s: %w", r.assetB.Symbol(), alloc.Holder.Hex(), err)
			}
		}
	}

	ops := []store.BatchOperation{
		{Type: store.BatchPut, Key: []byte(keyHeight), Value: formatUint(r.clock.Height())},
		{Type: store.BatchPut, Key: []byte(keyJournalSeq), Value: formatUint(0)},
		{Type: store.BatchPut, Key: []byte(keyChannelSeq), Value: formatUint(0)},
	}
	poolOps, err := r.poolStateOps()
	if err != nil {
		return err
	}
	ops = append(ops, poolOps...)
	for _, alloc := range g.Allocations {
		ops = append(ops, r.balanceOps(r.assetA, alloc.Holder)...)
		ops = append(ops, r.balanceOps(r.assetB, alloc.Holder)...)
	}
	ops = append(ops, r.supplyOp(r.assetA), r.supplyOp(r.assetB), r.supplyOp(r.engine.Shares()))

	if err := r.db.Batch(ctx, ops); err != nil {
		return fmt.Errorf("persist genesis: %w", err)
	}
	return nil
}

// restore rebuilds the in-memory state from the store after a restart.
func (r *Runtime) restore(ctx context.Context) error {
	height, err := r.readUint(ctx, keyHeight)
	if err != nil {
		return err
	}
	r.clock.set(height)

	r.seq, err = r.readUint(ctx, keyJournalSeq)
	if err != nil {
		return err
	}

	if err := r.restoreLedger(ctx, r.assetA); err != nil {
		return err
	}
	if err := r.restoreLedger(ctx, r.assetB); err != nil {
		return err
	}
	if err := r.restoreLedger(ctx, r.engine.Shares()); err != nil {
		return err
	}

	raw, err := r.db.Read(ctx, []byte(keyPoolState))
	if err != nil {
		return fmt.Errorf("read pool state: %w", err)
	}
	var snap model.PoolStateSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode pool state: %w", err)
	}
	reserveA, err := parseBig(snap.ReserveA)
	if err != nil {
		return fmt.Errorf("pool reserve A: %w", err)
	}
	reserveB, err := parseBig(snap.ReserveB)
	if err != nil {
		return fmt.Errorf("pool reserve B: %w", err)
	}
	var lastK *big.Int
	if snap.LastK != "" {
		if lastK, err = parseBig(snap.LastK); err != nil {
			return fmt.Errorf("pool invariant: %w", err)
		}
	}

	markers, err := r.restoreCooldowns(ctx)
	if err != nil {
		return err
	}
	r.engine.Restore(reserveA, reserveB, lastK, markers)

	channels, err := r.restoreChannels(ctx)
	if err != nil {
		return err
	}
	channelSeq, err := r.readUint(ctx, keyChannelSeq)
	if err != nil {
		return err
	}
	return r.channels.Restore(channels, channelSeq, r.resolveAsset)
}

// ledgerRestorer is the write side shared by both ledger kinds.
type ledgerRestorer interface {
	token.Ledger
	Restore(balances map[common.Address]*big.Int, supply *big.Int)
}

func (r *Runtime) restoreLedger(ctx context.Context, ledger ledgerRestorer) error {
	prefix := balancePrefix(ledger.Address())
	it, err := r.db.Iterator(ctx, prefix, store.PrefixEnd(prefix))
	if err != nil {
		return fmt.Errorf("iterate balances: %w", err)
	}
	defer it.Close()

	balances := make(map[common.Address]*big.Int)
	for it.Next() {
		holder, ok := trailingAddress(it.Key(), prefix)
		if !ok {
			return fmt.Errorf("malformed balance key: %s", it.Key())
		}
		balance, err := parseBig(string(it.Value()))
		if err != nil {
			return fmt.Errorf("balance of %s: %w", holder.Hex(), err)
		}
		balances[holder] = balance
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("iterate balances: %w", err)
	}

	supply := new(big.Int)
	raw, err := r.db.Read(ctx, keySupply(ledger.Address()))
	switch {
	case err == nil:
		if supply, err = parseBig(string(raw)); err != nil {
			return fmt.Errorf("supply of %s: %w", ledger.Address().Hex(), err)
		}
	case !isNotFound(err):
		return fmt.Errorf("read supply: %w", err)
	}

	ledger.Restore(balances, supply)
	return nil
}

func (r *Runtime) restoreCooldowns(ctx context.Context) (map[common.Address]uint64, error) {
	prefix := []byte(prefixCooldown)
	it, err := r.db.Iterator(ctx, prefix, store.PrefixEnd(prefix))
	if err != nil {
		return nil, fmt.Errorf("iterate cooldowns: %w", err)
	}
	defer it.Close()

	markers := make(map[common.Address]uint64)
	for it.Next() {
		caller, ok := trailingAddress(it.Key(), prefix)
		if !ok {
			return nil, fmt.Errorf("malformed cooldown key: %s", it.Key())
		}
		height, err := strconv.ParseUint(string(it.Value()), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cooldown of %s: %w", caller.Hex(), err)
		}
		markers[caller] = height
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate cooldowns: %w", err)
	}
	return markers, nil
}

func (r *Runtime) restoreChannels(ctx context.Context) ([]channel.Channel, error) {
	prefix := []byte(prefixChannel)
	it, err := r.db.Iterator(ctx, prefix, store.PrefixEnd(prefix))
	if err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	defer it.Close()

	var channels []channel.Channel
	for it.Next() {
		var snap model.ChannelSnapshot
		if err := json.Unmarshal(it.Value(), &snap); err != nil {
			return nil, fmt.Errorf("decode channel: %w", err)
		}
		ch, err := channelFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}

func (r *Runtime) readUint(ctx context.Context, key string) (uint64, error) {
	raw, err := r.db.Read(ctx, []byte(key))
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	val, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return val, nil
}

// poolStateOps snapshots the engine's scalar state for persistence.
func (r *Runtime) poolStateOps() ([]store.BatchOperation, error) {
	reserveA, reserveB := r.engine.Reserves()
	snap := model.PoolStateSnapshot{
		ReserveA: reserveA.String(),
		ReserveB: reserveB.String(),
	}
	if lastK := r.engine.LastInvariant(); lastK != nil {
		snap.LastK = lastK.String()
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode pool state: %w", err)
	}
	return []store.BatchOperation{
		{Type: store.BatchPut, Key: []byte(keyPoolState), Value: raw},
	}, nil
}

// balanceOps persists the current balances of the given holders on one ledger.
func (r *Runtime) balanceOps(ledger token.Ledger, holders ...common.Address) []store.BatchOperation {
	ops := make([]store.BatchOperation, 0, len(holders))
	for _, holder := range holders {
		ops = append(ops, store.BatchOperation{
			Type:  store.BatchPut,
			Key:   keyBalance(ledger.Address(), holder),
			Value: []byte(ledger.BalanceOf(holder).String()),
		})
	}
	return ops
}

func (r *Runtime) supplyOp(ledger token.Ledger) store.BatchOperation {
	return store.BatchOperation{
		Type:  store.BatchPut,
		Key:   keySupply(ledger.Address()),
		Value: []byte(ledger.TotalSupply().String()),
	}
}

func (r *Runtime) seqOp() store.BatchOperation {
	return store.BatchOperation{
		Type:  store.BatchPut,
		Key:   []byte(keyJournalSeq),
		Value: formatUint(r.seq),
	}
}

func (r *Runtime) channelSeqOp() store.BatchOperation {
	return store.BatchOperation{
		Type:  store.BatchPut,
		Key:   []byte(keyChannelSeq),
		Value: formatUint(r.channels.Sequence()),
	}
}

func (r *Runtime) cooldownOp(caller common.Address) store.BatchOperation {
	return store.BatchOperation{
		Type:  store.BatchPut,
		Key:   keyCooldown(caller),
		Value: formatUint(r.engine.LastTradeMarker(caller)),
	}
}

func channelPutOp(ch channel.Channel) (store.BatchOperation, error) {
	snap := model.ChannelSnapshot{
		ID:          ch.ID.Hex(),
		Sender:      ch.Sender.Hex(),
		Recipient:   ch.Recipient.Hex(),
		Asset:       ch.Asset.Hex(),
		Amount:      ch.Amount.String(),
		Paid:        ch.Paid.String(),
		SettleDelay: ch.SettleDelay,
		ExpiresAt:   ch.ExpiresAt,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return store.BatchOperation{}, fmt.Errorf("encode channel: %w", err)
	}
	return store.BatchOperation{Type: store.BatchPut, Key: keyChannel(ch.ID), Value: raw}, nil
}

func channelFromSnapshot(snap model.ChannelSnapshot) (channel.Channel, error) {
	amount, err := parseBig(snap.Amount)
	if err != nil {
		return channel.Channel{}, fmt.Errorf("channel %s amount: %w", snap.ID, err)
	}
	paid, err := parseBig(snap.Paid)
	if err != nil {
		return channel.Channel{}, fmt.Errorf("channel %s paid: %w", snap.ID, err)
	}
	return channel.Channel{
		ID:          common.HexToHash(snap.ID),
		Sender:      common.HexToAddress(snap.Sender),
		Recipient:   common.HexToAddress(snap.Recipient),
		Asset:       common.HexToAddress(snap.Asset),
		Amount:      amount,
		Paid:        paid,
		SettleDelay: snap.SettleDelay,
		ExpiresAt:   snap.ExpiresAt,
	}, nil
}

func formatUint(v uint64) []byte {
	return []byte(strconv.FormatUint(v, 10))
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer: %q", s)
	}
	return v, nil
}

// trailingAddress extracts the holder address that follows a key prefix.
func trailingAddress(key, prefix []byte) (common.Address, bool) {
	rest := strings.TrimPrefix(string(key), string(prefix))
	if !common.IsHexAddress(rest) {
		return common.Address{}, false
	}
	return common.HexToAddress(rest), true
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrKeyNotFound)
}

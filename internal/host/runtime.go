package host

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolEngine/internal/amm"
	"poolEngine/internal/channel"
	"poolEngine/internal/journal"
	"poolEngine/internal/model"
	"poolEngine/internal/store"
	"poolEngine/internal/token"
)

// ErrUnknownAsset is returned when an operation names an asset the node
// does not host.
var ErrUnknownAsset = errors.New("host: unknown asset")

// Options configures a runtime.
type Options struct {
	Genesis Genesis
	DB      store.DB
	Journal journal.Writer
	Logger  *zap.Logger

	// Publish, when set, receives every committed journal record; used to
	// feed the websocket event stream.
	Publish func(model.Record)

	// Now overrides the wall clock for record timestamps; defaults to time.Now.
	Now func() time.Time
}

// Runtime hosts the pool engine, the token ledgers, and the channel
// manager behind a single mutex. Every state-changing operation commits in
// memory first, then appends a journal record and persists the touched
// keys to the store.
type Runtime struct {
	mu sync.Mutex

	clock    *Clock
	assetA   *token.AssetLedger
	assetB   *token.AssetLedger
	engine   *amm.Engine
	channels *channel.Manager

	db      store.DB
	journal journal.Writer
	logger  *zap.Logger
	publish func(model.Record)

	seq uint64
	now func() time.Time
}

// NewRuntime builds the in-memory state and loads it from the store if a
// previous run left state behind, otherwise it applies the genesis.
func NewRuntime(ctx context.Context, opts Options) (*Runtime, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("host: store is required")
	}
	if opts.Journal == nil {
		return nil, fmt.Errorf("host: journal writer is required")
	}
	if err := opts.Genesis.validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	clock := NewClock(opts.Genesis.StartHeight)
	assetA := token.NewAssetLedger(opts.Genesis.AssetA.Address, opts.Genesis.AssetA.Symbol, opts.Genesis.AssetA.Decimals)
	assetB := token.NewAssetLedger(opts.Genesis.AssetB.Address, opts.Genesis.AssetB.Symbol, opts.Genesis.AssetB.Decimals)

	engine, err := amm.NewEngine(assetA, assetB, clock)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		clock:    clock,
		assetA:   assetA,
		assetB:   assetB,
		engine:   engine,
		channels: channel.NewManager(clock),
		db:       opts.DB,
		journal:  opts.Journal,
		logger:   logger,
		publish:  opts.Publish,
		now:      now,
	}

	_, err = opts.DB.Read(ctx, []byte(keyHeight))
	switch {
	case errors.Is(err, store.ErrKeyNotFound):
		if err := r.bootstrap(ctx, opts.Genesis); err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("probe store: %w", err)
	default:
		if err := r.restore(ctx); err != nil {
			return nil, fmt.Errorf("restore state: %w", err)
		}
	}

	return r, nil
}

// AddLiquidityResult reports the committed effect of a deposit.
type AddLiquidityResult struct {
	AmountA  *big.Int
	AmountB  *big.Int
	Minted   *big.Int
	ReserveA *big.Int
	ReserveB *big.Int
}

// RemoveLiquidityResult reports the committed effect of a withdrawal.
type RemoveLiquidityResult struct {
	AmountA  *big.Int
	AmountB  *big.Int
	ReserveA *big.Int
	ReserveB *big.Int
}

// SwapResult reports the committed effect of a trade.
type SwapResult struct {
	AmountOut *big.Int
	ReserveA  *big.Int
	ReserveB  *big.Int
}

// AddLiquidity deposits into the pool on behalf of caller.
func (r *Runtime) AddLiquidity(ctx context.Context, caller common.Address, desiredA, desiredB *big.Int) (AddLiquidityResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	amountA, amountB, minted, err := r.engine.AddLiquidity(caller, desiredA, desiredB)
	if err != nil {
		return AddLiquidityResult{}, err
	}

	reserveA, reserveB := r.engine.Reserves()
	result := AddLiquidityResult{
		AmountA:  amountA,
		AmountB:  amountB,
		Minted:   minted,
		ReserveA: reserveA,
		ReserveB: reserveB,
	}

	if err := r.appendRecord(r.engine.Address().Hex(), model.EventLiquidityAdded, model.LiquidityAddedEvent{
		Provider: caller.Hex(),
		AmountA:  amountA.String(),
		AmountB:  amountB.String(),
		Shares:   minted.String(),
		ReserveA: reserveA.String(),
		ReserveB: reserveB.String(),
	}); err != nil {
		return result, err
	}

	ops, err := r.poolStateOps()
	if err != nil {
		return result, err
	}
	ops = append(ops, r.balanceOps(r.assetA, caller, r.engine.Address())...)
	ops = append(ops, r.balanceOps(r.assetB, caller, r.engine.Address())...)
	ops = append(ops, r.balanceOps(r.engine.Shares(), caller, amm.LockAddress())...)
	ops = append(ops, r.supplyOp(r.engine.Shares()), r.seqOp())
	if err := r.db.Batch(ctx, ops); err != nil {
		return result, fmt.Errorf("persist deposit: %w", err)
	}

	r.logger.Info("liquidity added",
		zap.String("provider", caller.Hex()),
		zap.String("amount_a", amountA.String()),
		zap.String("amount_b", amountB.String()),
		zap.String("shares", minted.String()))
	return result, nil
}

// RemoveLiquidity redeems caller's shares for both assets.
func (r *Runtime) RemoveLiquidity(ctx context.Context, caller common.Address, shares *big.Int) (RemoveLiquidityResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	amountA, amountB, err := r.engine.RemoveLiquidity(caller, shares)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}

	reserveA, reserveB := r.engine.Reserves()
	result := RemoveLiquidityResult{
		AmountA:  amountA,
		AmountB:  amountB,
		ReserveA: reserveA,
		ReserveB: reserveB,
	}

	if err := r.appendRecord(r.engine.Address().Hex(), model.EventLiquidityRemoved, model.LiquidityRemovedEvent{
		Provider: caller.Hex(),
		Shares:   shares.String(),
		AmountA:  amountA.String(),
		AmountB:  amountB.String(),
		ReserveA: reserveA.String(),
		ReserveB: reserveB.String(),
	}); err != nil {
		return result, err
	}

	ops, err := r.poolStateOps()
	if err != nil {
		return result, err
	}
	ops = append(ops, r.balanceOps(r.assetA, caller, r.engine.Address())...)
	ops = append(ops, r.balanceOps(r.assetB, caller, r.engine.Address())...)
	ops = append(ops, r.balanceOps(r.engine.Shares(), caller)...)
	ops = append(ops, r.supplyOp(r.engine.Shares()), r.seqOp())
	if err := r.db.Batch(ctx, ops); err != nil {
		return result, fmt.Errorf("persist withdrawal: %w", err)
	}

	r.logger.Info("liquidity removed",
		zap.String("provider", caller.Hex()),
		zap.String("shares", shares.String()),
		zap.String("amount_a", amountA.String()),
		zap.String("amount_b", amountB.String()))
	return result, nil
}

// Swap trades amountIn of the direction's input asset for the output asset.
func (r *Runtime) Swap(ctx context.Context, caller common.Address, amountIn *big.Int, dir amm.Direction) (SwapResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	amountOut, err := r.engine.Swap(caller, amountIn, dir)
	if err != nil {
		return SwapResult{}, err
	}

	reserveA, reserveB := r.engine.Reserves()
	result := SwapResult{
		AmountOut: amountOut,
		ReserveA:  reserveA,
		ReserveB:  reserveB,
	}

	if err := r.appendRecord(r.engine.Address().Hex(), model.EventSwap, model.SwapEvent{
		Trader:    caller.Hex(),
		Direction: dir.String(),
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
		ReserveA:  reserveA.String(),
		ReserveB:  reserveB.String(),
	}); err != nil {
		return result, err
	}

	ops, err := r.poolStateOps()
	if err != nil {
		return result, err
	}
	ops = append(ops, r.balanceOps(r.assetA, caller, r.engine.Address())...)
	ops = append(ops, r.balanceOps(r.assetB, caller, r.engine.Address())...)
	ops = append(ops, r.cooldownOp(caller), r.seqOp())
	if err := r.db.Batch(ctx, ops); err != nil {
		return result, fmt.Errorf("persist swap: %w", err)
	}

	r.logger.Info("swap executed",
		zap.String("trader", caller.Hex()),
		zap.String("direction", dir.String()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", amountOut.String()))
	return result, nil
}

// OpenChannel escrows amount of asset from sender toward recipient.
func (r *Runtime) OpenChannel(ctx context.Context, sender, recipient, asset common.Address, amount *big.Int, settleDelay uint64) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, ok := r.resolveAsset(asset)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}

	id, err := r.channels.Open(sender, recipient, ledger, amount, settleDelay)
	if err != nil {
		return common.Hash{}, err
	}

	if err := r.appendRecord(id.Hex(), model.EventChannelOpened, model.ChannelOpenedEvent{
		Sender:      sender.Hex(),
		Recipient:   recipient.Hex(),
		Asset:       asset.Hex(),
		Amount:      amount.String(),
		SettleDelay: settleDelay,
	}); err != nil {
		return id, err
	}

	ch, _ := r.channels.Get(id)
	chOp, err := channelPutOp(ch)
	if err != nil {
		return id, err
	}
	ops := r.balanceOps(ledger, sender, channel.CustodyAddress(id))
	ops = append(ops, chOp, r.channelSeqOp(), r.seqOp())
	if err := r.db.Batch(ctx, ops); err != nil {
		return id, fmt.Errorf("persist channel open: %w", err)
	}

	r.logger.Info("channel opened",
		zap.String("id", id.Hex()),
		zap.String("sender", sender.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount.String()))
	return id, nil
}

// ClaimChannel pays the recipient against a sender-signed cumulative total.
func (r *Runtime) ClaimChannel(ctx context.Context, recipient common.Address, id common.Hash, cumulative *big.Int, sig []byte) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	paid, err := r.channels.Claim(recipient, id, cumulative, sig)
	if err != nil {
		return nil, err
	}

	if err := r.appendRecord(id.Hex(), model.EventChannelClaimed, model.ChannelClaimedEvent{
		Recipient: recipient.Hex(),
		Total:     cumulative.String(),
		Paid:      paid.String(),
	}); err != nil {
		return paid, err
	}

	ch, _ := r.channels.Get(id)
	ledger, ok := r.resolveAsset(ch.Asset)
	if !ok {
		return paid, fmt.Errorf("%w: %s", ErrUnknownAsset, ch.Asset.Hex())
	}
	chOp, err := channelPutOp(ch)
	if err != nil {
		return paid, err
	}
	ops := r.balanceOps(ledger, recipient, channel.CustodyAddress(id))
	ops = append(ops, chOp, r.seqOp())
	if err := r.db.Batch(ctx, ops); err != nil {
		return paid, fmt.Errorf("persist channel claim: %w", err)
	}

	r.logger.Info("channel claimed",
		zap.String("id", id.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("paid", paid.String()))
	return paid, nil
}

// CloseChannel starts the settle timer on a channel.
func (r *Runtime) CloseChannel(ctx context.Context, sender common.Address, id common.Hash) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expiresAt, err := r.channels.Close(sender, id)
	if err != nil {
		return 0, err
	}

	if err := r.appendRecord(id.Hex(), model.EventChannelClosed, model.ChannelClosedEvent{
		Sender:    sender.Hex(),
		ExpiresAt: expiresAt,
	}); err != nil {
		return expiresAt, err
	}

	ch, _ := r.channels.Get(id)
	chOp, err := channelPutOp(ch)
	if err != nil {
		return expiresAt, err
	}
	if err := r.db.Batch(ctx, []store.BatchOperation{chOp, r.seqOp()}); err != nil {
		return expiresAt, fmt.Errorf("persist channel close: %w", err)
	}

	r.logger.Info("channel closing",
		zap.String("id", id.Hex()),
		zap.Uint64("expires_at", expiresAt))
	return expiresAt, nil
}

// RefundChannel returns the unclaimed remainder to the sender after expiry.
func (r *Runtime) RefundChannel(ctx context.Context, sender common.Address, id common.Hash) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", channel.ErrChannelNotFound, id.Hex())
	}
	ledger, ok := r.resolveAsset(ch.Asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, ch.Asset.Hex())
	}

	remainder, err := r.channels.Refund(sender, id)
	if err != nil {
		return nil, err
	}

	if err := r.appendRecord(id.Hex(), model.EventChannelRefunded, model.ChannelRefundedEvent{
		Sender: sender.Hex(),
		Amount: remainder.String(),
	}); err != nil {
		return remainder, err
	}

	ops := r.balanceOps(ledger, sender, channel.CustodyAddress(id))
	ops = append(ops,
		store.BatchOperation{Type: store.BatchDelete, Key: keyChannel(id)},
		r.seqOp())
	if err := r.db.Batch(ctx, ops); err != nil {
		return remainder, fmt.Errorf("persist channel refund: %w", err)
	}

	r.logger.Info("channel refunded",
		zap.String("id", id.Hex()),
		zap.String("sender", sender.Hex()),
		zap.String("amount", remainder.String()))
	return remainder, nil
}

// Advance moves the logical height forward by n blocks.
func (r *Runtime) Advance(ctx context.Context, n uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	height := r.clock.Advance(n)
	if err := r.db.Write(ctx, []byte(keyHeight), formatUint(height)); err != nil {
		return height, fmt.Errorf("persist height: %w", err)
	}
	return height, nil
}

// Height returns the current logical block height.
func (r *Runtime) Height() uint64 {
	return r.clock.Height()
}

// PoolAddress returns the pool's custody identity.
func (r *Runtime) PoolAddress() common.Address {
	return r.engine.Address()
}

// Reserves returns copies of the current reserves.
func (r *Runtime) Reserves() (*big.Int, *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Reserves()
}

// LastInvariant returns the last recorded reserve product, or nil.
func (r *Runtime) LastInvariant() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.LastInvariant()
}

// LastTradeMarker returns the height of caller's most recent swap.
func (r *Runtime) LastTradeMarker(caller common.Address) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.LastTradeMarker(caller)
}

// BalanceOf reads a holder's balance on one of the hosted ledgers.
func (r *Runtime) BalanceOf(asset, holder common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, ok := r.resolveAsset(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return ledger.BalanceOf(holder), nil
}

// TotalSupply reads the total supply of one of the hosted ledgers.
func (r *Runtime) TotalSupply(asset common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, ok := r.resolveAsset(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return ledger.TotalSupply(), nil
}

// Quote prices amountIn at the current reserve ratio, without fees.
func (r *Runtime) Quote(amountIn *big.Int, dir amm.Direction) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reserveA, reserveB := r.engine.Reserves()
	if dir == amm.AToB {
		return amm.Quote(amountIn, reserveA, reserveB)
	}
	return amm.Quote(amountIn, reserveB, reserveA)
}

// AmountOut prices amountIn with the swap fee applied.
func (r *Runtime) AmountOut(amountIn *big.Int, dir amm.Direction) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reserveA, reserveB := r.engine.Reserves()
	if dir == amm.AToB {
		return amm.GetAmountOut(amountIn, reserveA, reserveB)
	}
	return amm.GetAmountOut(amountIn, reserveB, reserveA)
}

// Channel returns a copy of the channel, if it exists.
func (r *Runtime) Channel(id common.Hash) (channel.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channels.Get(id)
}

// Info summarizes the node's state for the info RPC.
type Info struct {
	Height        uint64
	JournalSeq    uint64
	PoolAddress   common.Address
	AssetA        AssetDefinition
	AssetB        AssetDefinition
	SharesAddress common.Address
	ReserveA      *big.Int
	ReserveB      *big.Int
	LastInvariant *big.Int
	OpenChannels  int
}

// Info returns a state summary.
func (r *Runtime) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	reserveA, reserveB := r.engine.Reserves()
	return Info{
		Height:      r.clock.Height(),
		JournalSeq:  r.seq,
		PoolAddress: r.engine.Address(),
		AssetA: AssetDefinition{
			Address:  r.assetA.Address(),
			Symbol:   r.assetA.Symbol(),
			Decimals: r.assetA.Decimals(),
		},
		AssetB: AssetDefinition{
			Address:  r.assetB.Address(),
			Symbol:   r.assetB.Symbol(),
			Decimals: r.assetB.Decimals(),
		},
		SharesAddress: r.engine.Shares().Address(),
		ReserveA:      reserveA,
		ReserveB:      reserveB,
		LastInvariant: r.engine.LastInvariant(),
		OpenChannels:  r.channels.Count(),
	}
}

func (r *Runtime) resolveAsset(asset common.Address) (token.Ledger, bool) {
	switch asset {
	case r.assetA.Address():
		return r.assetA, true
	case r.assetB.Address():
		return r.assetB, true
	case r.engine.Shares().Address():
		return r.engine.Shares(), true
	default:
		return nil, false
	}
}

// appendRecord journals a committed operation. The sequence number only
// advances when the append succeeds, so a failed append is retried under
// the same sequence by the next operation.
func (r *Runtime) appendRecord(address, eventType string, payload interface{}) error {
	rec, err := journal.EncodeRecord(r.seq+1, r.clock.Height(), address, eventType, uint64(r.now().Unix()), payload)
	if err != nil {
		return err
	}
	rec.AppendedAt = r.now().UTC().Format(time.RFC3339Nano)
	if err := r.journal.Append([]model.Record{rec}); err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	r.seq++
	if r.publish != nil {
		r.publish(rec)
	}
	return nil
}

package stats

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"poolEngine/internal/amm"
	"poolEngine/internal/model"
)

// MetricsSink receives the aggregated output. The postgres store is the
// production implementation.
type MetricsSink interface {
	UpsertPools(ctx context.Context, pools []model.PoolMeta) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls replay behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
	MaxRetries    int
	RetryBackoff  time.Duration

	// AssetA and AssetB describe the pool's two assets; the journal
	// carries only raw integer amounts.
	AssetA model.AssetMeta
	AssetB model.AssetMeta
}

// Aggregator replays the event journal into per-pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         MetricsSink
	logger       *zap.Logger
	assets       *AssetCache
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.PoolMeta
}

func NewAggregator(cfg Config, sink MetricsSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	assets := NewAssetCache(assetCacheSize)
	assets.Put(cfg.AssetA)
	assets.Put(cfg.AssetB)

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		assets:       assets,
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.PoolMeta),
	}
}

// Run replays a journal JSONL file from the resume point to its end.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.sink == nil {
		return fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.PoolMeta, 0, 4)
	maxTs := startTs
	var total, aggregated, skipped, failed int

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var rec model.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			failed++
			a.logger.Warn("decode journal record", zap.Error(err))
			continue
		}

		if rec.Timestamp <= startTs {
			skipped++
			continue
		}
		if !isPoolEvent(rec.Type) {
			skipped++
			continue
		}

		windowStart := windowStart(rec.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := poolKey(rec.Address)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(rec, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(acc)
			if metrics != nil {
				batch = append(batch, *metrics)
				aggregated++
			}
			if pool != nil {
				pools = append(pools, *pool)
			}
			acc = NewAccumulator(rec, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		if err := acc.AddRecord(rec); err != nil {
			failed++
			a.logger.Warn("aggregate record", zap.Error(err), zap.Uint64("seq", rec.Seq), zap.String("type", rec.Type))
			continue
		}

		if rec.Timestamp > maxTs {
			maxTs = rec.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan journal: %w", err)
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(acc)
		if metrics != nil {
			batch = append(batch, *metrics)
			aggregated++
		}
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("replay complete",
		zap.Int("total", total),
		zap.Int("aggregated", aggregated),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	// Resume just before the earliest still-open window so a restart
	// re-reads it in full.
	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.PoolMeta) error {
	if len(pools) > 0 {
		if err := withRetry(ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, func(ctx context.Context) error {
			return a.sink.UpsertPools(ctx, pools)
		}); err != nil {
			return err
		}
	}
	if len(batch) > 0 {
		if err := withRetry(ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, func(ctx context.Context) error {
			return a.sink.UpsertWindowMetrics(ctx, batch)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) (*model.PoolWindowMetrics, *model.PoolMeta) {
	if acc == nil {
		return nil, nil
	}

	poolRecord := a.registerPool(acc)

	decimalsA := a.assets.Decimals(a.cfg.AssetA.Address)
	decimalsB := a.assets.Decimals(a.cfg.AssetB.Address)

	metrics := &model.PoolWindowMetrics{
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		DepositCount:   acc.DepositCount,
		WithdrawCount:  acc.WithdrawCount,
		VolumeA:        formatAmount(acc.VolumeA, decimalsA),
		VolumeB:        formatAmount(acc.VolumeB, decimalsB),
		FeeA:           formatAmount(acc.FeeA, decimalsA),
		FeeB:           formatAmount(acc.FeeB, decimalsB),
	}

	if acc.LastReserveA != nil {
		tvlA := formatAmount(acc.LastReserveA, decimalsA)
		metrics.TVLA = &tvlA
	}
	if acc.LastReserveB != nil {
		tvlB := formatAmount(acc.LastReserveB, decimalsB)
		metrics.TVLB = &tvlB
	}

	metrics.FeeRate = computeFeeRate(acc.FeeA, acc.LastReserveA, acc.FeeB, acc.LastReserveB)
	metrics.APR = computeAPR(metrics.FeeRate, a.cfg.WindowSeconds)

	return metrics, poolRecord
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.PoolMeta {
	key := poolKey(acc.PoolAddress)
	pool := model.PoolMeta{
		Address:       acc.PoolAddress,
		AssetA:        a.cfg.AssetA.Address,
		AssetB:        a.cfg.AssetB.Address,
		FeeBps:        amm.FeeNumerator * 10_000 / amm.FeeDenominator,
		CreatedHeight: acc.FirstHeight,
	}

	existing, ok := a.poolSeen[key]
	if ok {
		if existing.CreatedHeight <= pool.CreatedHeight {
			return nil
		}
	}

	a.poolSeen[key] = pool
	return &pool
}

func isPoolEvent(eventType string) bool {
	switch eventType {
	case model.EventSwap, model.EventLiquidityAdded, model.EventLiquidityRemoved:
		return true
	default:
		return false
	}
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}

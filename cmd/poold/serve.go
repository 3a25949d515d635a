package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolEngine/internal/config"
	"poolEngine/internal/host"
	"poolEngine/internal/journal"
	"poolEngine/internal/rpc"
	"poolEngine/internal/store"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	genesis, err := buildGenesis(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenPebble(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer db.Close()

	hub := rpc.NewHub(logger)
	defer hub.Close()

	rt, err := host.NewRuntime(ctx, host.Options{
		Genesis: genesis,
		DB:      db,
		Journal: journal.NewJsonlWriter(cfg.Journal),
		Logger:  logger,
		Publish: hub.Publish,
	})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	server := rpc.NewServer(rt, hub, rpc.NewMetrics(), logger)
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("node start",
		zap.String("listen", cfg.Listen),
		zap.String("data_dir", cfg.DataDir),
		zap.String("journal", cfg.Journal),
		zap.Duration("block_time", cfg.BlockTime),
		zap.String("pool", rt.PoolAddress().Hex()),
		zap.Uint64("height", rt.Height()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.BlockTime > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.BlockTime)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := rt.Advance(ctx, 1); err != nil {
						return fmt.Errorf("advance height: %w", err)
					}
				}
			}
		})
	}

	return g.Wait()
}

func buildGenesis(cfg config.ServeConfig) (host.Genesis, error) {
	if !common.IsHexAddress(cfg.AssetAAddress) {
		return host.Genesis{}, fmt.Errorf("asset-a address is required")
	}
	if !common.IsHexAddress(cfg.AssetBAddress) {
		return host.Genesis{}, fmt.Errorf("asset-b address is required")
	}

	allocations := make([]host.Allocation, 0, len(cfg.Allocations))
	for _, raw := range cfg.Allocations {
		alloc, err := parseAllocation(raw)
		if err != nil {
			return host.Genesis{}, err
		}
		allocations = append(allocations, alloc)
	}

	return host.Genesis{
		AssetA: host.AssetDefinition{
			Address:  common.HexToAddress(cfg.AssetAAddress),
			Symbol:   cfg.AssetASymbol,
			Decimals: cfg.AssetADecimals,
		},
		AssetB: host.AssetDefinition{
			Address:  common.HexToAddress(cfg.AssetBAddress),
			Symbol:   cfg.AssetBSymbol,
			Decimals: cfg.AssetBDecimals,
		},
		Allocations: allocations,
		StartHeight: cfg.StartHeight,
	}, nil
}

// parseAllocation reads the "address:amountA:amountB" genesis grant form.
func parseAllocation(raw string) (host.Allocation, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return host.Allocation{}, fmt.Errorf("invalid allocation %q, want address:amountA:amountB", raw)
	}
	if !common.IsHexAddress(parts[0]) {
		return host.Allocation{}, fmt.Errorf("invalid allocation address %q", parts[0])
	}
	amountA, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return host.Allocation{}, fmt.Errorf("invalid allocation amount %q", parts[1])
	}
	amountB, ok := new(big.Int).SetString(parts[2], 10)
	if !ok {
		return host.Allocation{}, fmt.Errorf("invalid allocation amount %q", parts[2])
	}
	return host.Allocation{
		Holder:  common.HexToAddress(parts[0]),
		AmountA: amountA,
		AmountB: amountB,
	}, nil
}

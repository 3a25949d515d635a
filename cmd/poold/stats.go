package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolEngine/internal/config"
	"poolEngine/internal/model"
	"poolEngine/internal/stats"
	"poolEngine/internal/stats/postgres"
)

func runStats(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadStats(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	windowDuration, err := time.ParseDuration(cfg.Window)
	if err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if windowDuration < time.Second {
		return fmt.Errorf("window must be at least 1s")
	}
	windowSeconds := uint64(windowDuration.Seconds())

	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgStore, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pgStore.Close()

	var stateStore stats.StateStore
	if cfg.StateFile != "" {
		stateStore = &stats.FileStateStore{Path: cfg.StateFile}
	} else {
		stateStore = &stats.DBStateStore{Store: pgStore, Name: fmt.Sprintf("replay:%d", windowSeconds)}
	}

	agg := stats.NewAggregator(stats.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    stateStore,
		MaxRetries:    5,
		RetryBackoff:  500 * time.Millisecond,
		AssetA: model.AssetMeta{
			Address:  cfg.AssetAAddress,
			Symbol:   cfg.AssetASymbol,
			Decimals: cfg.AssetADecimals,
		},
		AssetB: model.AssetMeta{
			Address:  cfg.AssetBAddress,
			Symbol:   cfg.AssetBSymbol,
			Decimals: cfg.AssetBDecimals,
		},
	}, pgStore, logger)

	logger.Info("stats start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", recomputeFrom),
	)

	return agg.Run(ctx, cfg.Input)
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

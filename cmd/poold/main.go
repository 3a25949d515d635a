package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "poold",
		Short:        "Constant-product pool node",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pool node",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8545", "HTTP listen address")
	serveCmd.Flags().String("data-dir", "./data/state", "state store directory")
	serveCmd.Flags().String("journal", "./data/journal.jsonl", "event journal path")
	serveCmd.Flags().Duration("block-time", 3*time.Second, "height auto-advance interval, 0 disables")
	serveCmd.Flags().String("asset-a", "", "asset A address")
	serveCmd.Flags().String("asset-a-symbol", "TOKA", "asset A symbol")
	serveCmd.Flags().Uint("asset-a-decimals", 18, "asset A decimals")
	serveCmd.Flags().String("asset-b", "", "asset B address")
	serveCmd.Flags().String("asset-b-symbol", "TOKB", "asset B symbol")
	serveCmd.Flags().Uint("asset-b-decimals", 18, "asset B decimals")
	serveCmd.Flags().StringSlice("alloc", nil, "genesis allocations, address:amountA:amountB (comma-separated)")
	serveCmd.Flags().Uint64("start-height", 1, "genesis block height")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Replay the journal into window metrics",
		RunE:  runStats,
	}

	statsCmd.Flags().String("in", "", "input journal JSONL")
	statsCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	statsCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	statsCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	statsCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	statsCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	statsCmd.Flags().String("asset-a", "", "asset A address")
	statsCmd.Flags().String("asset-a-symbol", "TOKA", "asset A symbol")
	statsCmd.Flags().Uint("asset-a-decimals", 18, "asset A decimals")
	statsCmd.Flags().String("asset-b", "", "asset B address")
	statsCmd.Flags().String("asset-b-symbol", "TOKB", "asset B symbol")
	statsCmd.Flags().Uint("asset-b-decimals", 18, "asset B decimals")
	statsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(statsCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap offline against given reserves",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("amount-in", "", "input amount")
	quoteCmd.Flags().String("reserve-in", "", "input-side reserve")
	quoteCmd.Flags().String("reserve-out", "", "output-side reserve")
	quoteCmd.Flags().Bool("no-fee", false, "proportional quote without the swap fee")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

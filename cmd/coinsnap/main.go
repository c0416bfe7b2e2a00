package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	setupLogging(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("coinsnap failed")
		os.Exit(1)
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	zerolog.DefaultContextLogger = &log.Logger

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coinsnap",
		Short: "Snapshot CoinCap assets into SQLite and Google Sheets",
		Long: `coinsnap fetches the current CoinCap asset list, ranks it, and replaces two
tables (top_5_coins and other_coins) in the local database and in two Google
spreadsheets. Run it from cron; each invocation performs one full snapshot.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSnapshot,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "asset <id>",
		Short: "Look up a single asset by its CoinCap id",
		Args:  cobra.ExactArgs(1),
		RunE:  runAsset,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:       "show <dataset>",
		Short:     "Print a persisted dataset as JSON lines",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"top_5_coins", "other_coins"},
		RunE:      runShow,
	})

	return rootCmd
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"coinsnap/internal/config"
	"coinsnap/internal/domain"
	"coinsnap/internal/infrastructure/coincap"
	"coinsnap/internal/infrastructure/db"
	"coinsnap/internal/infrastructure/fcm"
	"coinsnap/internal/infrastructure/gsheets"
	"coinsnap/internal/infrastructure/metrics"
	"coinsnap/internal/repository"
	"coinsnap/internal/usecase"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func newSource(cfg config.Config) *coincap.Client {
	return coincap.NewClient(coincap.Config{
		BaseURL:           cfg.APIBaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
}

// relationalSink opens the relational store. When that fails the returned
// sink reports the open error on every write, so the run still reaches the
// spreadsheet step.
func relationalSink(ctx context.Context, cfg config.Config) (domain.DatasetSink, func()) {
	conn, err := db.Open(ctx, cfg.DB)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DB.Path).Msg("Relational store unavailable")
		return repository.NewUnavailableDatasetRepository("relational", err), func() {}
	}
	return repository.NewSQLDatasetRepository(conn), func() { conn.Close() }
}

func spreadsheetSink(ctx context.Context, cfg config.Config) domain.DatasetSink {
	var (
		svc *gsheets.Service
		err error
	)
	if cfg.GoogleAPIEndpoint != "" {
		svc, err = gsheets.NewService(ctx, "",
			option.WithEndpoint(cfg.GoogleAPIEndpoint),
			option.WithoutAuthentication(),
		)
	} else {
		svc, err = gsheets.NewService(ctx, cfg.CredentialsPath)
	}
	if err != nil {
		log.Error().Err(err).Msg("Google Sheets unavailable")
		return repository.NewUnavailableDatasetRepository("spreadsheet", err)
	}
	return repository.NewSheetDatasetRepository(svc, cfg.SheetNames())
}

// runSnapshot performs one pipeline run. Only configuration errors change
// the exit status; store, fetch and sink failures are logged.
func runSnapshot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// Configuration errors are fatal before any network activity.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	relational, closeStore := relationalSink(ctx, cfg)
	defer closeStore()

	observers := []usecase.RunObserver{metrics.NewRunMetrics(cfg.MetricsTextfile)}
	push, err := fcm.NewClient(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseCredentialsJSON)
	if err != nil {
		log.Warn().Err(err).Msg("Notifications disabled")
	} else {
		observers = append(observers, usecase.NewRunNotifier(push, repository.NewTokenRepository(cfg.NotifyTokens)))
	}

	pipeline := usecase.NewPipelineUsecase(
		newSource(cfg),
		relational,
		spreadsheetSink(ctx, cfg),
		cfg.AssetLimit,
		observers...,
	)
	pipeline.Run(ctx)
	return nil
}

func runAsset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rec, err := newSource(cfg).GetAsset(cmd.Context(), args[0])
	if err != nil {
		log.Error().Err(err).Str("asset", args[0]).Msg("Could not get asset")
		return nil
	}

	p, err := usecase.Normalize([]domain.AssetRecord{rec})
	if err != nil || p.Len() == 0 {
		log.Warn().Str("asset", args[0]).Msg("Asset has no usable rank")
		return nil
	}
	a := p.TopTier[0]
	log.Info().
		Str("name", a.Name).
		Str("symbol", a.Symbol).
		Int64("rank", a.Rank).
		Str("price_usd", fmt.Sprintf("$%.2f", a.PriceUsd)).
		Msg("Asset")
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	dataset := args[0]
	if !domain.IsDataset(dataset) {
		return fmt.Errorf("%q: %w", dataset, domain.ErrUnknownDataset)
	}

	cfg, err := config.LoadUnvalidated()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	conn, err := db.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	return printDataset(ctx, cmd.OutOrStdout(), repository.NewSQLDatasetRepository(conn), dataset)
}

// printDataset writes one JSON object per asset, in the order read.
func printDataset(ctx context.Context, w io.Writer, reader domain.DatasetReader, dataset string) error {
	assets, err := reader.LoadDataset(ctx, dataset)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for _, a := range assets {
		if err := enc.Encode(a); err != nil {
			return err
		}
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"coinsnap/internal/domain"
	"coinsnap/internal/infrastructure/gsheets"
)

// SpreadsheetService is the subset of the Google API the sheet sink needs.
// Implemented by *gsheets.Service.
type SpreadsheetService interface {
	FindSpreadsheet(ctx context.Context, name string) (string, error)
	PrimaryWorksheet(ctx context.Context, spreadsheetID string) (string, error)
	ClearRange(ctx context.Context, spreadsheetID, a1 string) error
	UpdateRange(ctx context.Context, spreadsheetID, a1 string, rows [][]any) error
}

// SheetDatasetRepository mirrors each dataset to its own spreadsheet.
// It is not safe for concurrent writes to the same spreadsheet: a reader may
// observe the sheet empty between clear and update.
type SheetDatasetRepository struct {
	svc        SpreadsheetService
	sheetNames map[string]string
}

// NewSheetDatasetRepository maps dataset names to spreadsheet names.
func NewSheetDatasetRepository(svc SpreadsheetService, sheetNames map[string]string) *SheetDatasetRepository {
	return &SheetDatasetRepository{svc: svc, sheetNames: sheetNames}
}

func (r *SheetDatasetRepository) Name() string {
	return "spreadsheet"
}

// ReplaceDataset clears the primary worksheet of the dataset's spreadsheet and
// writes the header row followed by one row per asset.
func (r *SheetDatasetRepository) ReplaceDataset(ctx context.Context, dataset string, assets []domain.NormalizedAsset) error {
	sheetName, ok := r.sheetNames[dataset]
	if !ok {
		return fmt.Errorf("%q: %w", dataset, domain.ErrUnknownDataset)
	}

	id, err := r.svc.FindSpreadsheet(ctx, sheetName)
	if errors.Is(err, domain.ErrSheetNotFound) {
		log.Error().Err(err).Str("sheet", sheetName).
			Msg("Spreadsheet not found: check the exact name and that the service account has editor access")
		return err
	}
	if err != nil {
		log.Error().Err(err).Str("sheet", sheetName).Msg("Spreadsheet lookup failed")
		return fmt.Errorf("sheet %q: %w", sheetName, err)
	}

	title, err := r.svc.PrimaryWorksheet(ctx, id)
	if err != nil {
		return fmt.Errorf("sheet %q: %w", sheetName, err)
	}

	log.Info().Str("sheet", sheetName).Str("worksheet", title).Msg("Clearing and loading spreadsheet")

	if err := r.svc.ClearRange(ctx, id, gsheets.SheetRange(title, "")); err != nil {
		return fmt.Errorf("sheet %q: %w", sheetName, err)
	}
	if err := r.svc.UpdateRange(ctx, id, gsheets.SheetRange(title, "A1"), sheetRows(assets)); err != nil {
		return fmt.Errorf("sheet %q: %w", sheetName, err)
	}

	log.Info().Str("sheet", sheetName).Int("rows", len(assets)).Msg("Spreadsheet updated")
	return nil
}

func sheetRows(assets []domain.NormalizedAsset) [][]any {
	header := make([]any, len(domain.Columns))
	for i, c := range domain.Columns {
		header[i] = c
	}
	rows := make([][]any, 0, len(assets)+1)
	rows = append(rows, header)
	for _, a := range assets {
		rows = append(rows, a.Row())
	}
	return rows
}

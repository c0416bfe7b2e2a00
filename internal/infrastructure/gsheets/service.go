package gsheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"coinsnap/internal/domain"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// Scopes needed to find spreadsheets by name and rewrite their values.
var Scopes = []string{
	drive.DriveReadonlyScope,
	sheets.SpreadsheetsScope,
}

// Service locates spreadsheets through Drive and edits them through Sheets.
type Service struct {
	drive  *drive.Service
	sheets *sheets.Service
}

// NewService authenticates with a service account credentials file.
// Extra options are appended, which lets tests point at a fake endpoint.
func NewService(ctx context.Context, credentialsPath string, opts ...option.ClientOption) (*Service, error) {
	var base []option.ClientOption
	if credentialsPath != "" {
		base = append(base, option.WithCredentialsFile(credentialsPath), option.WithScopes(Scopes...))
	}
	opts = append(base, opts...)

	d, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing drive client: %w", err)
	}
	s, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing sheets client: %w", err)
	}
	log.Info().Msg("Google Sheets client initialized")
	return &Service{drive: d, sheets: s}, nil
}

// FindSpreadsheet returns the ID of the spreadsheet with exactly this name.
func (s *Service) FindSpreadsheet(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), spreadsheetMimeType)

	res, err := s.drive.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(10).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(name, err)
	}

	for _, f := range res.Files {
		// Drive matching is exact already; guard against loose backends.
		if f.Name == name {
			return f.Id, nil
		}
	}
	return "", fmt.Errorf("%q: %w", name, domain.ErrSheetNotFound)
}

// PrimaryWorksheet returns the title of the first worksheet.
func (s *Service) PrimaryWorksheet(ctx context.Context, spreadsheetID string) (string, error) {
	ss, err := s.sheets.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(spreadsheetID, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no worksheet", spreadsheetID)
	}
	return ss.Sheets[0].Properties.Title, nil
}

// ClearRange removes all values in the A1 range, keeping formatting.
func (s *Service) ClearRange(ctx context.Context, spreadsheetID, a1 string) error {
	_, err := s.sheets.Spreadsheets.Values.Clear(spreadsheetID, a1, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", a1, err)
	}
	return nil
}

// UpdateRange writes rows starting at the A1 range. Values are stored as-is.
func (s *Service) UpdateRange(ctx context.Context, spreadsheetID, a1 string, rows [][]any) error {
	vr := &sheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         rows,
	}
	_, err := s.sheets.Spreadsheets.Values.Update(spreadsheetID, a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", a1, err)
	}
	return nil
}

// SheetRange returns an A1 range covering the whole worksheet, or starting
// at cell when cell is not empty.
func SheetRange(title, cell string) string {
	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if cell == "" {
		return quoted
	}
	return quoted + "!" + cell
}

func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// classify turns access and existence failures into ErrSheetNotFound.
func classify(target string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && (gErr.Code == http.StatusNotFound || gErr.Code == http.StatusForbidden) {
		return fmt.Errorf("%q (status %d): %w", target, gErr.Code, domain.ErrSheetNotFound)
	}
	return fmt.Errorf("%q: %w", target, err)
}

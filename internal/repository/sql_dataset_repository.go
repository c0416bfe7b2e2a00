package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"coinsnap/internal/domain"
	"coinsnap/internal/infrastructure/db"
)

// SQLDatasetRepository keeps each dataset in the table of the same name and
// replaces the table contents on every write.
type SQLDatasetRepository struct {
	db *sqlx.DB
}

func NewSQLDatasetRepository(conn *sqlx.DB) *SQLDatasetRepository {
	return &SQLDatasetRepository{db: conn}
}

func (r *SQLDatasetRepository) Name() string {
	return "relational"
}

// ReplaceDataset deletes every row of the table and inserts assets in order,
// inside one transaction. On failure the previous contents are kept.
func (r *SQLDatasetRepository) ReplaceDataset(ctx context.Context, dataset string, assets []domain.NormalizedAsset) error {
	if !domain.IsDataset(dataset) {
		return fmt.Errorf("%q: %w", dataset, domain.ErrUnknownDataset)
	}
	table := db.QuoteIdent(dataset)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dataset, err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, insertQuery(table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", dataset, err)
	}
	defer stmt.Close()

	for _, a := range assets {
		if _, err := stmt.ExecContext(ctx, a); err != nil {
			return fmt.Errorf("failed to insert rank %d into %s: %w", a.Rank, dataset, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", dataset, err)
	}

	log.Info().Str("table", dataset).Int("rows", len(assets)).Msg("Table replaced")
	return nil
}

// LoadDataset returns the rows of a dataset ordered by rank.
func (r *SQLDatasetRepository) LoadDataset(ctx context.Context, dataset string) ([]domain.NormalizedAsset, error) {
	if !domain.IsDataset(dataset) {
		return nil, fmt.Errorf("%q: %w", dataset, domain.ErrUnknownDataset)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY "rank"`, columnList(), db.QuoteIdent(dataset))
	assets := []domain.NormalizedAsset{}
	if err := r.db.SelectContext(ctx, &assets, query); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dataset, err)
	}
	return assets, nil
}

func columnList() string {
	quoted := make([]string, len(domain.Columns))
	for i, c := range domain.Columns {
		quoted[i] = db.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func insertQuery(table string) string {
	named := make([]string, len(domain.Columns))
	for i, c := range domain.Columns {
		named[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, columnList(), strings.Join(named, ", "))
}

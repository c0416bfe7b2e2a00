package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"coinsnap/internal/domain"
)

// Migrate creates the snapshot tables if they do not exist.
// Identifiers are quoted so the camelCase column names survive on Postgres.
func Migrate(ctx context.Context, conn *sqlx.DB, dialect Dialect) error {
	floatType := "REAL"
	if dialect == Postgres {
		// REAL is single precision on Postgres.
		floatType = "DOUBLE PRECISION"
	}

	// Table names are the dataset names.
	for _, table := range domain.Datasets {
		stmt := fmt.Sprintf(`create table if not exists %s (
			"rank" INTEGER PRIMARY KEY,
			"symbol" TEXT,
			"name" TEXT,
			"priceUsd" %[2]s,
			"marketCapUsd" %[2]s,
			"volumeUsd24Hr" %[2]s,
			"changePercent24Hr" %[2]s
		)`, QuoteIdent(table), floatType)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// QuoteIdent quotes an SQL identifier for both SQLite and Postgres.
func QuoteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, name[i])
	}
	return string(append(out, '"'))
}

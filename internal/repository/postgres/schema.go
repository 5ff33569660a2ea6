package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// SchemaSQL returns the DDL for the given table prefix
func SchemaSQL(prefix string) string {
	return strings.ReplaceAll(schemaSQL, "{prefix}", prefix)
}

// ApplySchema creates all tables and indexes if they do not exist yet.
// Production databases are migrated out of band; this is for dev and test.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool, prefix string) error {
	if _, err := pool.Exec(ctx, SchemaSQL(prefix)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

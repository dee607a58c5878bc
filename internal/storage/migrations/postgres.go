// Package migrations ships the database schemas as embedded SQL and applies
// them at startup. Files run in lexical order and must stay idempotent, so a
// restart against an already-migrated database is a no-op.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"evalys-gmpc/internal/storage/postgres"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

// RunPostgresMigrations applies the receipt schema to the connected database.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := fs.Glob(postgresFS, "postgres/*.sql")
	if err != nil {
		return fmt.Errorf("list postgres migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(postgresFS, file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", file, err)
		}
	}
	return nil
}

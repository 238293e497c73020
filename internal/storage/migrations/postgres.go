package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"lending-points-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded entity-store schema. Each
// file runs as a single multi-statement script.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, name := range files {
		data, err := fs.ReadFile(PostgresFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

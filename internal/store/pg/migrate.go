package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	migrations "github.com/dropDatabas3/homesentry/migrations/postgres"
)

// Migrate aplica en orden todas las *_up.sql embebidas que todavía no se
// aplicaron, registrándolas en schema_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	const track = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := s.pool.Exec(ctx, track); err != nil {
		return fmt.Errorf("pg: create schema_migrations: %w", err)
	}

	files, err := fs.Glob(migrations.FS, "*_up.sql")
	if err != nil {
		return fmt.Errorf("pg: glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&applied); err != nil {
			return fmt.Errorf("pg: check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("pg: begin migration tx: %w", err)
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("pg: apply %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("pg: record %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("pg: commit %s: %w", name, err)
		}
	}
	return nil
}

// MigrateDown aplica las *_down.sql en orden inverso. Borra datos: pensado
// para entornos de desarrollo.
func (s *Store) MigrateDown(ctx context.Context) error {
	files, err := fs.Glob(migrations.FS, "*_down.sql")
	if err != nil {
		return fmt.Errorf("pg: glob migrations: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, name := range files {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("pg: apply %s: %w", name, err)
		}
		upName := strings.Replace(name, "_down.sql", "_up.sql", 1)
		if _, err := s.pool.Exec(ctx,
			`DELETE FROM schema_migrations WHERE name = $1`, upName); err != nil {
			return fmt.Errorf("pg: unrecord %s: %w", name, err)
		}
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// ApplyMigrations creates the pinned schema if needed and applies every
// *.up.sql file in migrationsDir that has not been recorded yet.
func ApplyMigrations(ctx context.Context, gw *Gateway, migrationsDir string) error {
	if err := ensureMigrationsTable(ctx, gw); err != nil {
		return err
	}

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			files = append(files, filepath.Join(migrationsDir, name))
		}
	}
	sort.Strings(files)

	for _, file := range files {
		version := filepath.Base(file)
		contents, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}

		applied := false
		err = gw.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists); err != nil {
				return fmt.Errorf("check migration %s: %w", version, err)
			}
			if exists {
				return nil
			}
			if _, err := tx.Exec(ctx, string(contents)); err != nil {
				return fmt.Errorf("execute migration %s: %w", version, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
				return fmt.Errorf("record migration %s: %w", version, err)
			}
			applied = true
			return nil
		})
		if err != nil {
			return err
		}
		if applied {
			log.WithField("version", version).Info("store: migration applied")
		}
	}

	return nil
}

func ensureMigrationsTable(ctx context.Context, gw *Gateway) error {
	return gw.Run(ctx, func(ctx context.Context, q Querier) error {
		if _, err := q.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{gw.Schema()}.Sanitize()); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		_, err := q.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`)
		if err != nil {
			return fmt.Errorf("ensure schema_migrations: %w", err)
		}
		return nil
	})
}

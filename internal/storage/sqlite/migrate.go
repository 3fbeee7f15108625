package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const schemaVersions = `CREATE TABLE IF NOT EXISTS schema_versions (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`

// applyMigrations brings the schema forward. Each *.sql file in migrationFS
// runs once, in name order, inside its own transaction.
func applyMigrations(ctx context.Context, sqlDB *sql.DB, migrationFS fs.FS) error {
	if _, err := sqlDB.ExecContext(ctx, schemaVersions); err != nil {
		return fmt.Errorf("ensure schema_versions: %w", err)
	}
	applied, err := appliedVersions(ctx, sqlDB)
	if err != nil {
		return err
	}

	names, err := fs.Glob(migrationFS, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		if applied[name] {
			continue
		}
		body, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := runMigration(ctx, sqlDB, name, string(body)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, sqlDB *sql.DB) (map[string]bool, error) {
	rows, err := sqlDB.QueryContext(ctx, "SELECT name FROM schema_versions")
	if err != nil {
		return nil, fmt.Errorf("load schema_versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema_versions: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// runMigration executes body and records name in one transaction, so a failed
// file leaves neither its tables nor its version row behind.
func runMigration(ctx context.Context, sqlDB *sql.DB, name, body string) (err error) {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if strings.TrimSpace(body) != "" {
		if _, err = tx.ExecContext(ctx, body); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx,
		"INSERT INTO schema_versions (name, applied_at) VALUES (?, ?)",
		name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

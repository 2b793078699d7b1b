package shared

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migration represents a database migration with up and down SQL.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationStatus pairs a known migration with whether it has been applied.
type MigrationStatus struct {
	Migration
	Applied bool
}

// loadMigrations reads NNNN_name_up.sql / NNNN_name_down.sql pairs from the embedded filesystem, sorted by version.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}

		content, err := migrationFiles.ReadFile(path.Join("sql", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version}
			byVersion[version] = m
		}

		switch {
		case strings.HasSuffix(rest, "_up.sql"):
			m.Name = strings.TrimSuffix(rest, "_up.sql")
			m.Up = string(content)
		case strings.HasSuffix(rest, "_down.sql"):
			m.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("incomplete migration for version %d", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	return migrations, nil
}

// RunMigrations applies every pending migration, tracked in schema_migrations.
func RunMigrations(db *sql.DB) error {
	return RunMigrationsContext(context.Background(), db)
}

// RunMigrationsContext is [RunMigrations] bound to ctx.
func RunMigrationsContext(ctx context.Context, db *sql.DB) error {
	statuses, err := MigrationStatuses(ctx, db)
	if err != nil {
		return err
	}

	for _, s := range statuses {
		if s.Applied {
			continue
		}
		if err := execMigration(ctx, db, s.Version, s.Up, "INSERT INTO schema_migrations (version) VALUES (?)"); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", s.Version, err)
		}
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(db *sql.DB) error {
	ctx := context.Background()
	statuses, err := MigrationStatuses(ctx, db)
	if err != nil {
		return err
	}

	for i := len(statuses) - 1; i >= 0; i-- {
		s := statuses[i]
		if !s.Applied {
			continue
		}
		if err := execMigration(ctx, db, s.Version, s.Down, "DELETE FROM schema_migrations WHERE version = ?"); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", s.Version, err)
		}
		return nil
	}
	return fmt.Errorf("no migrations to rollback")
}

// MigrationStatuses lists embedded migrations with their applied state, creating the tracking table if needed.
func MigrationStatuses(ctx context.Context, db *sql.DB) ([]MigrationStatus, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read migration versions: %w", err)
	}

	statuses := make([]MigrationStatus, len(migrations))
	for i, m := range migrations {
		statuses[i] = MigrationStatus{Migration: m, Applied: applied[m.Version]}
	}
	return statuses, nil
}

// execMigration runs script statement by statement and records version with bookkeeping, all in one transaction.
func execMigration(ctx context.Context, db *sql.DB, version int, script, bookkeeping string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nStatement: %s", err, stmt)
		}
	}

	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return err
	}
	return tx.Commit()
}

// splitStatements strips "--" comments and splits script on semicolons.
func splitStatements(script string) []string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	var stmts []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationNames lists the embedded migrations in the order they apply.
func MigrationNames() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Migrate runs embedded SQL migrations in order (001_voting.sql, 002_..., etc.).
func Migrate(ctx context.Context, exec func(ctx context.Context, sql string) error) error {
	names, err := MigrationNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		sql, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
	}
	return nil
}

// DropStatements removes every table created by the migrations, children first.
var DropStatements = []string{
	"DROP TABLE IF EXISTS poll_comments CASCADE",
	"DROP TABLE IF EXISTS votes CASCADE",
	"DROP TABLE IF EXISTS radio_poll_choices CASCADE",
	"DROP TABLE IF EXISTS radio_polls CASCADE",
	"DROP TABLE IF EXISTS range_poll_choices CASCADE",
	"DROP TABLE IF EXISTS range_polls CASCADE",
	"DROP TABLE IF EXISTS polls CASCADE",
	"DROP TABLE IF EXISTS group_memberships CASCADE",
	"DROP TABLE IF EXISTS groups CASCADE",
	"DROP TABLE IF EXISTS users CASCADE",
}

// Package database runs schema migrations and records durable operational
// counters in PostgreSQL: the seven normative tables named in spec.md §6
// (banned_ips, chat_sessions, chat_messages, daily_stats, hourly_stats,
// ban_appeals, rate_limits), plus abuse_reports (internal/report).
package database

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies all pending migrations in migrationsPath against
// databaseURL, grounded on the teacher's own cmd/wsserver bootstrap call.
// A no-op (already up to date) is not an error.
func RunMigrations(databaseURL, migrationsPath string) error {
	sourceURL := "file://" + migrationsPath

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("database: init migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("database: apply migrations: %w", err)
	}
	return nil
}

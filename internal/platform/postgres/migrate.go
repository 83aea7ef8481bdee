package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationTableName is the goose version-tracking table.
const MigrationTableName = "schema_migrations"

// Migrate applies all pending migrations from the embedded migration
// files. It is safe to call on every startup; goose skips versions
// that are already applied.
func Migrate(db *sql.DB, log *slog.Logger) error {
	log = log.With("component", "migrations")

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(MigrationTableName)
	goose.SetLogger(&gooseSlogAdapter{log: log})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	currentVersion := migrationVersion(db, log)
	log.Info("applying pending migrations", "current_version", currentVersion)

	start := time.Now()
	if err := goose.Up(db, "migrations"); err != nil {
		log.Error("migration failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("migrations applied",
		"previous_version", currentVersion,
		"new_version", migrationVersion(db, log),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// migrationVersion reads the latest applied version, returning "0" for
// a clean database.
func migrationVersion(db *sql.DB, log *slog.Logger) string {
	var version string
	query := fmt.Sprintf(
		"SELECT version_id FROM %s ORDER BY version_id DESC LIMIT 1",
		MigrationTableName,
	)
	if err := db.QueryRow(query).Scan(&version); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Debug("could not read migration version", "error", err)
		}
		return "0"
	}
	return version
}

// gooseSlogAdapter routes goose's log output through slog so migration
// logs share the application's structured format.
type gooseSlogAdapter struct {
	log *slog.Logger
}

func (g *gooseSlogAdapter) Fatalf(format string, v ...interface{}) {
	g.log.Error(fmt.Sprintf(format, v...))
}

func (g *gooseSlogAdapter) Printf(format string, v ...interface{}) {
	g.log.Info(fmt.Sprintf(format, v...))
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// MigrationRunner is the set of operations the CLI dispatches to.
type MigrationRunner interface {
	Up() error
	Down() error
	Status() error
	Version() error
	Drop() error
	Close() error
}

// Runner drives golang-migrate against a Postgres database using the SQL
// embedded in this binary, re-validating that SQL before every
// state-changing operation.
type Runner struct {
	config  *Config
	migrate *migrate.Migrate
	db      *sql.DB
	set     *MigrationSet
	logger  *slog.Logger
}

var _ MigrationRunner = (*Runner)(nil)

// NewMigrationRunner validates the embedded migration set, opens a
// connection to cfg.DatabaseURL and wires golang-migrate to read from it.
func NewMigrationRunner(cfg *Config) (*Runner, error) {
	logger := slog.Default().With("component", "migrator")
	logger.Info("initializing migration runner", "config", cfg.String())

	set := NewMigrationSet(nil)
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("embedded migration validation failed: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(set.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	m.Log = &slogMigrateLogger{logger: logger}

	logger.Info("migration runner ready")

	return &Runner{config: cfg, migrate: m, db: db, set: set, logger: logger}, nil
}

// Up applies every pending migration.
func (r *Runner) Up() error {
	if err := r.requireValidSet(); err != nil {
		return err
	}

	err := r.migrate.Up()

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("no new migrations to apply")
	case err != nil:
		return fmt.Errorf("migration up failed: %w", err)
	default:
		r.logger.Info("all migrations applied")
	}

	return nil
}

// Down rolls back the single most recently applied migration.
func (r *Runner) Down() error {
	if err := r.requireValidSet(); err != nil {
		return err
	}

	err := r.migrate.Steps(-1)

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("no migrations to roll back")
	case err != nil:
		return fmt.Errorf("migration down failed: %w", err)
	default:
		r.logger.Info("rolled back one migration")
	}

	return nil
}

// Status logs the applied version, dirty flag, and this binary's schema
// compatibility relative to that version.
func (r *Runner) Status() error {
	version, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		r.logger.Info("migration status: no migrations applied yet")
		r.logSchemaCompatibility(0)

		return nil
	}

	if err != nil {
		return fmt.Errorf("get migration version: %w", err)
	}

	r.logger.Info("migration status", "version", version, "dirty", dirty)
	r.logSchemaCompatibility(int(version)) // #nosec G115 - migration versions are small positive ints

	return nil
}

// Version logs the applied migration version.
func (r *Runner) Version() error {
	version, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		r.logger.Info("current version: no migrations applied")
		r.logSchemaCompatibility(0)

		return nil
	}

	if err != nil {
		return fmt.Errorf("get migration version: %w", err)
	}

	r.logger.Info("current version", "version", version, "dirty", dirty)
	r.logSchemaCompatibility(int(version)) // #nosec G115 - migration versions are small positive ints

	return nil
}

// Drop destroys every table golang-migrate knows about. Callers are
// expected to gate this behind an explicit confirmation flag.
func (r *Runner) Drop() error {
	if err := r.requireValidSet(); err != nil {
		return err
	}

	r.logger.Warn("dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	r.logger.Info("all tables dropped")

	return nil
}

// Close releases the migrate source/database handle and the raw db
// connection, joining any errors from both.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("close source: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("close migrate db handle: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db connection: %w", err))
		}
	}

	return errors.Join(errs...)
}

// requireValidSet re-validates the embedded migration set immediately
// before any state-changing operation, so a corrupted or tampered binary
// fails loudly instead of applying unreviewed SQL.
func (r *Runner) requireValidSet() error {
	if err := r.set.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	return nil
}

func (r *Runner) logSchemaCompatibility(current int) {
	max := r.set.MaxSequence()

	switch {
	case current == max:
		r.logger.Info("schema up to date", "database_version", current, "binary_max_version", max)
	case current < max:
		r.logger.Info("migrations available", "database_version", current, "binary_max_version", max, "pending", max-current)
	default:
		r.logger.Warn("database schema is newer than this binary supports", "database_version", current, "binary_max_version", max)
	}
}

// slogMigrateLogger adapts golang-migrate's Logger interface to log/slog.
type slogMigrateLogger struct {
	logger *slog.Logger
}

var _ migrate.Logger = (*slogMigrateLogger)(nil)

func (l *slogMigrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogMigrateLogger) Verbose() bool { return true }

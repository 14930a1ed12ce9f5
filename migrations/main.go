// Package main provides the loglite database migration CLI: up, down,
// status, version and drop commands over the SQL embedded in this binary.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
)

//nolint:gochecknoglobals // build-time version injection via -ldflags -X
var (
	version   = "1.0.0-dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

var (
	// ErrUnknownCommand is returned for any command not in the dispatch table.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrDropRequiresForce guards the destructive drop command.
	ErrDropRequiresForce = errors.New("drop requires --force: this destroys all data")
)

func main() {
	var (
		showHelp    = flag.Bool("help", false, "show help information")
		showVersion = flag.Bool("version", false, "show version information")
		force       = flag.Bool("force", false, "allow destructive operations")
	)
	flag.Parse()

	if *showVersion {
		printVersionInfo()
		os.Exit(0)
	}

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	runner, err := NewMigrationRunner(cfg)
	if err != nil {
		slog.Error("failed to create migration runner", "error", err)
		os.Exit(1)
	}
	defer func() { _ = runner.Close() }()

	if err := executeCommand(args[0], runner, *force); err != nil {
		slog.Error("migration command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func executeCommand(command string, runner MigrationRunner, force bool) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		if !force {
			return ErrDropRequiresForce
		}

		return runner.Drop()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func printVersionInfo() {
	set := NewMigrationSet(nil)

	fmt.Printf("migrator v%s\n", version)
	fmt.Printf("git commit: %s\n", gitCommit)
	fmt.Printf("build time: %s\n", buildTime)
	fmt.Printf("max schema version: v%03d\n", set.MaxSequence())
}

func printUsage() {
	fmt.Printf(`migrator v%s - loglite database migration tool

USAGE:
    migrator [OPTIONS] COMMAND

COMMANDS:
    up      apply all pending migrations
    down    roll back the last migration
    status  show migration status
    version show current migration version
    drop    drop all tables (DESTRUCTIVE - requires --force)

OPTIONS:
    --help     show this help message
    --version  show version information
    --force    allow destructive operations

ENVIRONMENT VARIABLES:
    LOGLITE_DB_URL          PostgreSQL connection string (required)
    LOGLITE_MIGRATION_TABLE name of the migration tracking table (default: schema_migrations)
`, version)
}

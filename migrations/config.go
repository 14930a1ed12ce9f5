package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrDatabaseURLEmpty is returned by Validate when no database URL is configured.
var ErrDatabaseURLEmpty = errors.New("LOGLITE_DB_URL cannot be empty")

const defaultMigrationTable = "schema_migrations"

// Config holds the migrator's runtime configuration, loaded from environment
// variables shared with the rest of loglite's LOGLITE_ prefix convention.
type Config struct {
	DatabaseURL    string
	MigrationTable string
}

// LoadConfig reads Config from the environment, filling in defaults for
// anything left unset.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getEnvStr("LOGLITE_DB_URL", ""),
		MigrationTable: getEnvStr("LOGLITE_MIGRATION_TABLE", defaultMigrationTable),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("migrations: load config: %w", err)
	}

	return cfg, nil
}

// Validate reports whether the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// String renders the configuration for logging with its credentials masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}", maskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

// maskDatabaseURL replaces a connection string's password with *** while
// leaving scheme, username, host and path intact. It operates on the raw
// string rather than net/url so a malformed URL still gets a best-effort
// mask instead of being rejected outright.
func maskDatabaseURL(raw string) string {
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd == -1 {
		return raw
	}

	rest := raw[schemeEnd+len("://"):]

	at := strings.LastIndex(rest, "@")
	if at == -1 {
		return raw
	}

	userinfo := rest[:at]

	colon := strings.Index(userinfo, ":")
	if colon == -1 || userinfo[colon+1:] == "" {
		return raw
	}

	username := userinfo[:colon]
	scheme := raw[:schemeEnd]

	return scheme + "://" + username + ":***" + rest[at:]
}

func getEnvStr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return defaultValue
}

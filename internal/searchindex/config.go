package searchindex

import (
	"os"
	"strconv"
)

const (
	defaultIndexDir    = "loglite-index"
	defaultWriterMemMB = 50
	bytesPerMB         = 1 << 20
)

// Config holds SearchIndex configuration.
type Config struct {
	Dir         string
	WriterMemMB int
}

// LoadConfig loads SearchIndex configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Dir:         getEnvStr("LOGLITE_INDEX_DIR", defaultIndexDir),
		WriterMemMB: getEnvInt("LOGLITE_INDEX_WRITER_MEM_MB", defaultWriterMemMB),
	}
}

// WriterMemBytes returns the configured writer memory budget in bytes.
func (c Config) WriterMemBytes() int {
	return c.WriterMemMB * bytesPerMB
}

func getEnvStr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	return defaultValue
}

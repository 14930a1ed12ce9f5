package tail

import (
	"os"
	"strconv"
	"time"
)

const defaultIntervalSecs = 10

// LoadInterval loads the Tailer's tick period from LOGLITE_TAIL_INTERVAL_SECS.
func LoadInterval() time.Duration {
	secs := defaultIntervalSecs

	if v := os.Getenv("LOGLITE_TAIL_INTERVAL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			secs = n
		}
	}

	return time.Duration(secs) * time.Second
}

package idgen

import (
	"os"
	"strconv"
)

const defaultNodeID = 1

// LoadNodeID loads the Generator's node identifier from LOGLITE_NODE_ID,
// restricted to the valid 10-bit range (0-1023). Out-of-range or unparsable
// values fall back to the default.
func LoadNodeID() int64 {
	v := os.Getenv("LOGLITE_NODE_ID")
	if v == "" {
		return defaultNodeID
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > nodeMax {
		return defaultNodeID
	}

	return int64(n)
}

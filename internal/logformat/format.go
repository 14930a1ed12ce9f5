// Package logformat detects the source language of raw log lines and
// parses them into structured entries, including Java's multi-line stack
// trace continuation.
package logformat

import (
	"math"
	"regexp"
)

// Format is one of the recognized log line shapes.
type Format string

const (
	Java    Format = "java"
	Rust    Format = "rust"
	Go      Format = "go"
	Nginx   Format = "nginx"
	Unknown Format = "unknown"
)

// detectionThreshold is the fraction of sampled lines that must match a
// format's anchor pattern before it is declared.
const detectionThreshold = 0.6

// maxSampleLines bounds how many leading non-empty lines are scored.
const maxSampleLines = 10

var (
	javaAnchor  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}[.,]\d{3}.*\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL)\b`)
	rustAnchor  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z?\s+(TRACE|DEBUG|INFO|WARN|ERROR)\s+\S*::\S*`)
	goAnchor    = regexp.MustCompile(`^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}(\.\d+)?\s+(\S+\.go:\d+:\s*)?`)
	nginxAnchor = regexp.MustCompile(`^\S+ \S+ \S+ \[\d{2}/\w{3}/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4}\] "\S+ \S+ HTTP/\d\.\d" \d{3}`)

	// javaContinuation matches the stack-trace continuation lines merged
	// into the preceding Java entry.
	javaContinuation = regexp.MustCompile(`^\s+(at |Caused by:|\.\.\. \d+ more)`)
)

// formatOrder is the tie-break order: the first format whose score clears
// the threshold wins.
var formatOrder = []struct {
	format Format
	anchor *regexp.Regexp
}{
	{Java, javaAnchor},
	{Rust, rustAnchor},
	{Go, goAnchor},
	{Nginx, nginxAnchor},
}

// DetectFormat scores each of the first maxSampleLines non-empty lines
// against every format's anchor pattern and declares the first format (in
// Java, Rust, Go, Nginx order) whose score meets detectionThreshold.
// Returns Unknown if none qualify.
func DetectFormat(lines []string) Format {
	sample := sampleNonEmpty(lines, maxSampleLines)
	if len(sample) == 0 {
		return Unknown
	}

	needed := int(math.Ceil(detectionThreshold * float64(len(sample))))

	for _, candidate := range formatOrder {
		score := 0

		for _, line := range sample {
			if candidate.anchor.MatchString(line) {
				score++
			}
		}

		if score >= needed {
			return candidate.format
		}
	}

	return Unknown
}

func sampleNonEmpty(lines []string, limit int) []string {
	sample := make([]string, 0, limit)

	for _, line := range lines {
		if line == "" {
			continue
		}

		sample = append(sample, line)
		if len(sample) == limit {
			break
		}
	}

	return sample
}

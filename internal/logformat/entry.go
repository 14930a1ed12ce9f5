package logformat

import (
	"strconv"
	"strings"
	"time"
)

// Entry is one parsed, possibly multi-line, log record.
type Entry struct {
	Timestamp  time.Time
	HasTime    bool
	Level      string
	Message    string
	Stacktrace string
}

// severityByLevel maps a normalized level keyword to its syslog-style
// severity number.
var severityByLevel = map[string]int{
	"FATAL":   3,
	"ERROR":   3,
	"WARN":    4,
	"WARNING": 4,
	"INFO":    6,
	"DEBUG":   7,
	"TRACE":   7,
}

// Severity maps a level keyword to its severity number. Unrecognized
// levels return nil, leaving the event's severity unset.
func Severity(level string) *int {
	n, ok := severityByLevel[strings.ToUpper(strings.TrimSpace(level))]
	if !ok {
		return nil
	}

	return &n
}

// timestampLayouts are tried in order; the first that parses wins.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05,000",
	"2006/01/02 15:04:05",
}

// ParseTimestamp tries each recognized layout in order and reports
// whether any matched.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// levelKeywords are the level tokens extractLevel looks for, in match order.
var levelKeywords = []string{"FATAL", "ERROR", "WARN", "WARNING", "INFO", "DEBUG", "TRACE"}

func extractLevel(line string) string {
	upper := strings.ToUpper(line)

	for _, kw := range levelKeywords {
		if strings.Contains(upper, kw) {
			return kw
		}
	}

	return ""
}

func extractTimestampToken(line string) (time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return time.Time{}, false
	}

	// Java/Go "YYYY-MM-DD HH:MM:SS..." and Go "YYYY/MM/DD HH:MM:SS" both
	// split the timestamp across the first two whitespace-separated
	// fields; Rust/RFC3339 keep it in the first field alone.
	if t, ok := ParseTimestamp(fields[0]); ok {
		return t, true
	}

	if len(fields) > 1 {
		if t, ok := ParseTimestamp(fields[0] + " " + fields[1]); ok {
			return t, true
		}
	}

	return time.Time{}, false
}

// MergeMultiline groups raw lines into entries. A line matching the
// format's continuation pattern (only defined for Java: whitespace then
// "at ", "Caused by:", or "... N more") accumulates into the current
// entry's stack-trace buffer. A line that looks like a new entry starts
// one, flushing any accumulated stack trace into the prior entry first.
// A line that is neither a continuation nor a parseable new entry is
// appended to the previous entry's message; with no previous entry, one
// is synthesized at the current moment with level INFO.
func MergeMultiline(lines []string, format Format) []Entry {
	entries := make([]Entry, 0, len(lines))

	var stacktrace strings.Builder

	flush := func() {
		if stacktrace.Len() == 0 || len(entries) == 0 {
			return
		}

		entries[len(entries)-1].Stacktrace = stacktrace.String()
		stacktrace.Reset()
	}

	for _, line := range lines {
		if line == "" {
			continue
		}

		if format == Java && javaContinuation.MatchString(line) {
			if stacktrace.Len() > 0 {
				stacktrace.WriteByte('\n')
			}

			stacktrace.WriteString(line)

			continue
		}

		if ts, hasTime := extractTimestampToken(line); hasTime {
			flush()
			entries = append(entries, Entry{
				Timestamp: ts,
				HasTime:   hasTime,
				Level:     extractLevel(line),
				Message:   line,
			})

			continue
		}

		flush()

		if len(entries) == 0 {
			entries = append(entries, Entry{Level: "INFO", Message: line})

			continue
		}

		last := &entries[len(entries)-1]
		last.Message = last.Message + "\n" + line
	}

	flush()

	return entries
}

// stripQuotes trims a single layer of surrounding double quotes, used when
// parsing quoted fields out of nginx access log lines.
func stripQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}

	return s
}

// NginxLine is the subset of a combined-format access log line the
// ingest pipeline keeps.
type NginxLine struct {
	RemoteAddr string
	Request    string
	Status     int
}

// ParseNginxLine splits on the first whitespace run: the leading token is
// remote_addr. The message is not part of the result; callers keep the
// whole line as the message. A full combined-log
// parse is attempted opportunistically for the request line and status
// code, but a short or malformed line still yields a usable RemoteAddr.
func ParseNginxLine(line string) NginxLine {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return NginxLine{}
	}

	result := NginxLine{RemoteAddr: fields[0]}

	if reqStart := strings.Index(line, `"`); reqStart != -1 {
		if reqEnd := strings.Index(line[reqStart+1:], `"`); reqEnd != -1 {
			result.Request = stripQuotes(line[reqStart : reqStart+reqEnd+2])

			rest := strings.TrimSpace(line[reqStart+reqEnd+2:])
			if statusField := strings.Fields(rest); len(statusField) > 0 {
				if status, err := strconv.Atoi(statusField[0]); err == nil {
					result.Status = status
				}
			}
		}
	}

	return result
}

// Package tail turns byte offsets in watched files into idempotent
// ingests through the same pipeline HTTP callers use.
package tail

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/loglite/loglite/internal/ingest"
	"github.com/loglite/loglite/internal/logformat"
	"github.com/loglite/loglite/internal/storage"
)

// Tailer periodically rescans enabled tail sources and ingests any bytes
// appended since the last tick.
type Tailer struct {
	sources  storage.SourceStore
	offsets  storage.TailOffsetStore
	ingestor *ingest.Ingestor
	log      *slog.Logger
	interval time.Duration
}

// New returns a Tailer over the given components.
func New(sources storage.SourceStore, offsets storage.TailOffsetStore, ingestor *ingest.Ingestor, log *slog.Logger, interval time.Duration) *Tailer {
	return &Tailer{sources: sources, offsets: offsets, ingestor: ingestor, log: log, interval: interval}
}

// Run blocks, ticking every interval until ctx is canceled. Each tick's
// per-source errors are logged and do not stop the loop or other sources.
func (t *Tailer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Tailer) tick(ctx context.Context) {
	sources, err := t.sources.ListEnabledTailSources(ctx)
	if err != nil {
		t.log.ErrorContext(ctx, "tailer: list sources failed", "error", err)

		return
	}

	for _, src := range sources {
		if err := t.tickSource(ctx, src); err != nil {
			t.log.ErrorContext(ctx, "tailer: source tick failed", "source_id", src.ID, "path", src.Path, "error", err)
		}
	}
}

func (t *Tailer) tickSource(ctx context.Context, src *storage.AppSource) error {
	files, err := candidateFiles(src)
	if err != nil {
		return fmt.Errorf("enumerate candidates: %w", err)
	}

	for _, path := range files {
		if err := t.tickFile(ctx, src, path); err != nil {
			t.log.ErrorContext(ctx, "tailer: file tick failed", "path", path, "error", err)
		}
	}

	return nil
}

// candidateFiles resolves src.Path to the set of regular files to
// consider: the path itself if it names a file, or every regular file
// under it (recursive or depth-1 per src.Recursive) matching the
// optional include/exclude globs if it names a directory.
func candidateFiles(src *storage.AppSource) ([]string, error) {
	info, err := os.Stat(src.Path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []string{src.Path}, nil
	}

	var files []string

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if !src.Recursive && path != src.Path {
				return filepath.SkipDir
			}

			return nil
		}

		if !matchesGlobs(src, path) {
			return nil
		}

		files = append(files, path)

		return nil
	}

	if err := filepath.WalkDir(src.Path, walkFn); err != nil {
		return nil, err
	}

	return files, nil
}

func matchesGlobs(src *storage.AppSource, path string) bool {
	rel, err := filepath.Rel(src.Path, path)
	if err != nil {
		rel = path
	}

	rel = filepath.ToSlash(rel)

	if src.IncludeGlob != nil {
		ok, _ := doublestar.Match(*src.IncludeGlob, rel)
		if !ok {
			return false
		}
	}

	if src.ExcludeGlob != nil {
		ok, _ := doublestar.Match(*src.ExcludeGlob, rel)
		if ok {
			return false
		}
	}

	return true
}

// tickFile reads past the persisted offset, converts any new lines into
// events, ingests them under src.AppID, and persists the new offset. A
// stored offset beyond the current file size is treated as truncation and
// reset to 0 before reading.
func (t *Tailer) tickFile(ctx context.Context, src *storage.AppSource, path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	offset, err := t.offsets.GetOffset(ctx, src.ID, path)
	if err != nil {
		return fmt.Errorf("get offset: %w", err)
	}

	if offset > stat.Size() {
		offset = 0
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, 0); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	lines, consumed, err := readNewLines(f)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	events := linesToEvents(filepath.Base(path), lines)

	if _, err := t.ingestor.Ingest(ctx, src.AppID, events); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if err := t.offsets.UpsertOffset(ctx, src.ID, path, offset+consumed); err != nil {
		return fmt.Errorf("upsert offset: %w", err)
	}

	return nil
}

// readNewLines reads r to EOF line by line, returning the lines (without
// trailing newline) and the number of bytes consumed.
func readNewLines(r *os.File) ([]string, int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lines    []string
		consumed int64
	)

	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		consumed += int64(len(line)) + 1 // +1 for the newline delimiter
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}

	return lines, consumed, nil
}

// linesToEvents detects the format of the newly read lines, merges
// multi-line entries, and converts them into ingest events. An
// unrecognized format synthesizes one event per line at the current
// moment with level INFO rather than failing the tick. Nginx access
// logs are never multi-line, so they skip the merge step and keep the
// parsed remote_addr as a structured field instead.
func linesToEvents(filename string, lines []string) []ingest.Event {
	format := logformat.DetectFormat(lines)

	if format == logformat.Nginx {
		return nginxLinesToEvents(filename, lines)
	}

	var entries []logformat.Entry
	if format == logformat.Unknown {
		for _, line := range lines {
			if line == "" {
				continue
			}

			entries = append(entries, logformat.Entry{Level: "INFO", Message: line})
		}
	} else {
		entries = logformat.MergeMultiline(lines, format)
	}

	events := make([]ingest.Event, 0, len(entries))

	for _, e := range entries {
		ts := e.Timestamp
		if !e.HasTime {
			ts = time.Now()
		}

		events = append(events, ingest.Event{
			TS:         ts,
			Host:       "",
			Source:     filename,
			Sourcetype: strings.ToLower(string(format)),
			Severity:   logformat.Severity(e.Level),
			Message:    e.Message,
			Fields:     stacktraceFields(e.Stacktrace),
		})
	}

	return events
}

func nginxLinesToEvents(filename string, lines []string) []ingest.Event {
	var events []ingest.Event

	for _, line := range lines {
		if line == "" {
			continue
		}

		parsed := logformat.ParseNginxLine(line)
		fields, _ := json.Marshal(map[string]string{"remote_addr": parsed.RemoteAddr})

		events = append(events, ingest.Event{
			TS:         time.Now(),
			Source:     filename,
			Sourcetype: string(logformat.Nginx),
			Message:    line,
			Fields:     fields,
		})
	}

	return events
}

func stacktraceFields(stacktrace string) json.RawMessage {
	if stacktrace == "" {
		return nil
	}

	raw, err := json.Marshal(map[string]string{"stacktrace": stacktrace})
	if err != nil {
		return nil
	}

	return raw
}

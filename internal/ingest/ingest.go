// Package ingest accepts batches of events for a tenant, assigns ids,
// writes the primary store, and mirrors the searchable projection into
// the index in one caller-visible unit of work.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loglite/loglite/internal/idgen"
	"github.com/loglite/loglite/internal/searchindex"
	"github.com/loglite/loglite/internal/storage"
)

// Event is one caller-supplied log line or structured record awaiting an
// id and persistence.
type Event struct {
	TS         time.Time
	Host       string
	Source     string
	Sourcetype string
	Severity   *int
	Message    string
	Fields     json.RawMessage
}

// Ingestor wires IdGen, PrimaryStore, and SearchIndex together for a
// single logical write path.
type Ingestor struct {
	ids    *idgen.Generator
	events storage.EventStore
	index  *searchindex.Index
}

// New returns an Ingestor over the given components.
func New(ids *idgen.Generator, events storage.EventStore, index *searchindex.Index) *Ingestor {
	return &Ingestor{ids: ids, events: events, index: index}
}

// Ingest assigns an id to each event in order, inserts it into
// PrimaryStore, and stages a matching SearchIndex document. Empty input
// returns 0 without touching either store. An insert failure aborts the
// remaining batch without rolling back rows already committed. After all
// inserts succeed, the staged documents are added under the writer lock,
// committed, and the reader is reloaded so the caller observes
// read-your-writes before Ingest returns.
func (ig *Ingestor) Ingest(ctx context.Context, appID string, batch []Event) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	staged := make([]searchindex.Document, 0, len(batch))
	accepted := 0

	for _, ev := range batch {
		id := ig.ids.Next()

		stored, err := ig.events.InsertEvent(ctx, &storage.Event{
			ID:         id,
			AppID:      appID,
			TS:         ev.TS,
			Host:       ev.Host,
			Source:     ev.Source,
			Sourcetype: ev.Sourcetype,
			Severity:   ev.Severity,
			Message:    ev.Message,
			Fields:     ev.Fields,
		})
		if err != nil {
			return accepted, fmt.Errorf("ingest: insert event: %w", err)
		}

		accepted++

		staged = append(staged, searchindex.Document{
			AppID:     appID,
			EventID:   stored.ID,
			TSEpochMS: stored.TS.UnixMilli(),
			Host:      stored.Host,
			Source:    stored.Source,
			Message:   stored.Message,
		})
	}

	err := ig.index.WithWriter(func() error {
		for _, doc := range staged {
			if err := ig.index.Add(doc); err != nil {
				return fmt.Errorf("stage document: %w", err)
			}
		}

		return ig.index.Commit()
	})
	if err != nil {
		return accepted, fmt.Errorf("ingest: commit search index: %w", err)
	}

	if err := ig.index.Reload(); err != nil {
		return accepted, fmt.Errorf("ingest: reload search index: %w", err)
	}

	return accepted, nil
}

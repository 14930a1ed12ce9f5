// Package searchindex wraps a bleve full-text index over a projection of
// the events table: app_id, event_id, ts_epoch_ms, host, source, message.
//
// The index is a single-writer-many-readers resource. Callers must hold
// the writer lock (via WithWriter) around any add/delete → commit
// sequence; search is safe to call concurrently at any time. The pending
// batch is capped at the configured writer memory budget
// (Config.WriterMemMB): Add/DeleteByIDTerm flush it early once its
// estimated size crosses that budget, so a large ingest never holds an
// unbounded batch in memory between WithWriter and Commit. Bleve
// publishes a batch synchronously when it executes, so Commit and Reload
// are modeled as two explicit steps for symmetry with the manual-refresh
// contract, even though bleve itself has no separate reader-refresh call.
package searchindex

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// DefaultFields are the fields parse_user_query searches across when the
// caller does not restrict to a single field.
var DefaultFields = []string{"message", "host", "source"}

// Document mirrors one event's searchable projection.
type Document struct {
	AppID     string `json:"app_id"`
	EventID   int64  `json:"event_id"`
	TSEpochMS int64  `json:"ts_epoch_ms"`
	Host      string `json:"host"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}

// ErrBadQuery wraps a query-string parse failure: bad user input, not an
// internal error.
var ErrBadQuery = errors.New("invalid search query")

// Index is the single process-wide SearchIndex handle.
type Index struct {
	mu            sync.Mutex // serializes add/delete -> commit sequences
	bleve         bleve.Index
	batch         *bleve.Batch
	maxBatchBytes int
	batchBytes    int
	flushes       int // auto-flushes during the current WithWriter call, for tests
}

// Open opens the index directory, creating it with the fixed schema below
// if it does not yet exist. The configured writer memory budget
// (cfg.WriterMemBytes) bounds how large a single pending batch is allowed
// to grow before it is flushed early; see flushIfOverBudget.
func Open(cfg Config) (*Index, error) {
	idx, err := bleve.Open(cfg.Dir)

	switch {
	case err == nil:
		return &Index{bleve: idx, maxBatchBytes: cfg.WriterMemBytes()}, nil
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		if mkErr := os.MkdirAll(cfg.Dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}

		idx, err = bleve.New(cfg.Dir, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create search index: %w", err)
		}

		return &Index{bleve: idx, maxBatchBytes: cfg.WriterMemBytes()}, nil
	default:
		return nil, fmt.Errorf("open search index: %w", err)
	}
}

// Close releases the underlying bleve index handle.
func (i *Index) Close() error {
	return i.bleve.Close()
}

// WithWriter runs fn while holding the exclusive writer lock, starting a
// fresh batch. Callers issue Add/DeleteByIDTerm against the Index from
// inside fn, then call Commit to publish the batch before returning.
func (i *Index) WithWriter(fn func() error) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.batch = i.bleve.NewBatch()
	i.batchBytes = 0
	i.flushes = 0

	defer func() { i.batch = nil }()

	return fn()
}

// Add queues doc on the current batch. Must be called from inside
// WithWriter. Once the pending batch's estimated size crosses the
// configured writer memory budget, it is flushed immediately rather than
// left to grow unbounded until Commit.
func (i *Index) Add(doc Document) error {
	if i.batch == nil {
		return errors.New("searchindex: Add called outside WithWriter")
	}

	if err := i.batch.Index(strconv.FormatInt(doc.EventID, 10), doc); err != nil {
		return err
	}

	i.batchBytes += documentSize(doc)

	return i.flushIfOverBudget()
}

// DeleteByIDTerm queues a delete-by-id on the current batch. Must be
// called from inside WithWriter.
func (i *Index) DeleteByIDTerm(eventID int64) error {
	if i.batch == nil {
		return errors.New("searchindex: DeleteByIDTerm called outside WithWriter")
	}

	i.batch.Delete(strconv.FormatInt(eventID, 10))
	i.batchBytes += deleteOpSize

	return i.flushIfOverBudget()
}

// flushIfOverBudget publishes and replaces the current batch once its
// estimated size reaches maxBatchBytes, keeping any single pending batch
// within the configured writer memory budget. A zero or negative budget
// disables the check; a batch is never flushed empty.
func (i *Index) flushIfOverBudget() error {
	if i.maxBatchBytes <= 0 || i.batchBytes < i.maxBatchBytes {
		return nil
	}

	if err := i.bleve.Batch(i.batch); err != nil {
		return fmt.Errorf("flush search index batch: %w", err)
	}

	i.batch = i.bleve.NewBatch()
	i.batchBytes = 0
	i.flushes++

	return nil
}

// Commit atomically publishes whatever remains of the queued batch. Must
// be called from inside WithWriter, before it returns. Safe to call when
// flushIfOverBudget has already published everything queued so far.
func (i *Index) Commit() error {
	if i.batch == nil {
		return errors.New("searchindex: Commit called outside WithWriter")
	}

	if err := i.bleve.Batch(i.batch); err != nil {
		return fmt.Errorf("commit search index batch: %w", err)
	}

	i.batchBytes = 0

	return nil
}

// FlushCount reports how many times Add/DeleteByIDTerm flushed the
// pending batch early during the most recent WithWriter call, for tests
// that exercise the writer memory budget.
func (i *Index) FlushCount() int {
	return i.flushes
}

// deleteOpSize is the fixed size charged against the writer memory budget
// for a queued delete, which carries no document payload.
const deleteOpSize = 64

// documentSize estimates a Document's contribution to the pending batch's
// memory footprint: its text fields plus a fixed overhead for the numeric
// fields and bleve's own per-document bookkeeping.
func documentSize(doc Document) int {
	const fixedOverhead = 128

	return len(doc.AppID) + len(doc.Host) + len(doc.Source) + len(doc.Message) + fixedOverhead
}

// Reload is the explicit reader-refresh point. Bleve's Batch already
// publishes synchronously, so this is a light consistency check rather
// than a real refresh; it exists so ingest/reaper code keeps an explicit
// two-step commit-then-reload discipline.
func (i *Index) Reload() error {
	_, err := i.bleve.DocCount()
	if err != nil {
		return fmt.Errorf("reload search index: %w", err)
	}

	return nil
}

// ParseUserQuery parses text against DefaultFields. A parse failure is
// reported via ErrBadQuery.
func ParseUserQuery(text string) (query.Query, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", ErrBadQuery)
	}

	q := bleve.NewQueryStringQuery(text)
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadQuery, err)
	}

	return q, nil
}

// Hit is one search result: the stored document and its relevance score.
type Hit struct {
	Score    float64
	Document Document
}

// Search runs query against the index, returning up to topK hits.
func (i *Index) Search(q query.Query, topK int) ([]Hit, error) {
	req := bleve.NewSearchRequestOptions(q, topK, 0, false)
	req.Fields = []string{"app_id", "event_id", "ts_epoch_ms", "host", "source", "message"}

	result, err := i.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))

	for _, h := range result.Hits {
		doc := documentFromFields(h.Fields)

		// Stored numeric fields come back as float64, which cannot hold every
		// int64 id exactly; the bleve document id is the exact decimal id.
		if id, err := strconv.ParseInt(h.ID, 10, 64); err == nil {
			doc.EventID = id
		}

		hits = append(hits, Hit{
			Score:    h.Score,
			Document: doc,
		})
	}

	return hits, nil
}

func documentFromFields(fields map[string]any) Document {
	doc := Document{}

	if v, ok := fields["app_id"].(string); ok {
		doc.AppID = v
	}

	if v, ok := fields["event_id"].(float64); ok {
		doc.EventID = int64(v)
	}

	if v, ok := fields["ts_epoch_ms"].(float64); ok {
		doc.TSEpochMS = int64(v)
	}

	if v, ok := fields["host"].(string); ok {
		doc.Host = v
	}

	if v, ok := fields["source"].(string); ok {
		doc.Source = v
	}

	if v, ok := fields["message"].(string); ok {
		doc.Message = v
	}

	return doc
}

// buildMapping constructs the index schema: app_id (string, stored,
// term-indexed), event_id and ts_epoch_ms (numeric, stored; ts_epoch_ms
// not indexed), host/source/message (text, stored, tokenized+indexed).
// Only the three text fields feed the _all composite, so an unfielded
// query term searches exactly DefaultFields.
func buildMapping() mapping.IndexMapping {
	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.Store = true
	keyword.Index = true
	keyword.IncludeInAll = false

	numericStoredIndexed := bleve.NewNumericFieldMapping()
	numericStoredIndexed.Store = true
	numericStoredIndexed.Index = true
	numericStoredIndexed.IncludeInAll = false

	numericStoredOnly := bleve.NewNumericFieldMapping()
	numericStoredOnly.Store = true
	numericStoredOnly.Index = false
	numericStoredOnly.IncludeInAll = false

	text := bleve.NewTextFieldMapping()
	text.Store = true
	text.Index = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("app_id", keyword)
	doc.AddFieldMappingsAt("event_id", numericStoredIndexed)
	doc.AddFieldMappingsAt("ts_epoch_ms", numericStoredOnly)
	doc.AddFieldMappingsAt("host", text)
	doc.AddFieldMappingsAt("source", text)
	doc.AddFieldMappingsAt("message", text)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = "standard"

	return im
}

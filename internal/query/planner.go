// Package query resolves a search request into a PrimaryStore filter,
// optionally narrowed by a SearchIndex candidate id set, and returns the
// authoritative ordered page.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/loglite/loglite/internal/searchindex"
	"github.com/loglite/loglite/internal/storage"
)

// MaxLimit is the hard cap applied to every request's limit.
const MaxLimit = storage.PageLimit

// DefaultLimit is applied when a request omits limit or sends a
// non-positive value.
const DefaultLimit = 100

// ErrBadQuery re-exports searchindex.ErrBadQuery so handlers can detect a
// bad free-text query without importing searchindex directly.
var ErrBadQuery = searchindex.ErrBadQuery

// Request is one search request.
type Request struct {
	AppID      string
	Query      string
	Sources    []string
	Hosts      []string
	Severities []int
	StartTS    *time.Time
	EndTS      *time.Time
	Limit      int
}

// Result is the resolved page.
type Result struct {
	Total int
	Items []*storage.Event
}

// Planner runs Request against SearchIndex and PrimaryStore.
type Planner struct {
	events storage.EventStore
	index  *searchindex.Index
}

// New returns a Planner over the given components.
func New(events storage.EventStore, index *searchindex.Index) *Planner {
	return &Planner{events: events, index: index}
}

// Plan builds the conjunctive filter, narrows it through SearchIndex when
// a free-text query is present, and executes count + page against
// PrimaryStore ordered by ts descending. An omitted or non-positive
// req.Limit defaults to DefaultLimit; any value above MaxLimit is clamped
// down to it.
func (p *Planner) Plan(ctx context.Context, req Request) (Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	if limit > MaxLimit {
		limit = MaxLimit
	}

	filter := storage.Filter{
		AppID:      req.AppID,
		StartTS:    req.StartTS,
		EndTS:      req.EndTS,
		Sources:    req.Sources,
		Hosts:      req.Hosts,
		Severities: req.Severities,
	}

	q := strings.TrimSpace(req.Query)
	if q != "" {
		ids, err := p.candidateIDs(req.AppID, q, limit)
		if err != nil {
			return Result{}, err
		}

		if len(ids) == 0 {
			return Result{Total: 0, Items: nil}, nil
		}

		filter.IDs = ids
	}

	total, err := p.events.Count(ctx, filter)
	if err != nil {
		return Result{}, fmt.Errorf("query: count: %w", err)
	}

	items, err := p.events.Page(ctx, filter, limit)
	if err != nil {
		return Result{}, fmt.Errorf("query: page: %w", err)
	}

	return Result{Total: total, Items: items}, nil
}

// candidateIDs parses q against the index's default fields, composes a
// must-clause with an app_id term filter for redundant tenant scoping,
// and returns the stored event ids in index-ranked order as a candidate
// set. Ranking is discarded by the caller; PrimaryStore supplies the
// final ts-descending order.
func (p *Planner) candidateIDs(appID, q string, limit int) ([]int64, error) {
	userQuery, err := searchindex.ParseUserQuery(q)
	if err != nil {
		return nil, err
	}

	tenantTerm := bleve.NewTermQuery(appID)
	tenantTerm.SetField("app_id")

	composed := bleve.NewConjunctionQuery(tenantTerm, userQuery)

	hits, err := p.index.Search(composed, limit)
	if err != nil {
		return nil, fmt.Errorf("query: search index: %w", err)
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Document.EventID)
	}

	return ids, nil
}

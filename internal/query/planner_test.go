package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loglite/loglite/internal/idgen"
	"github.com/loglite/loglite/internal/ingest"
	"github.com/loglite/loglite/internal/searchindex"
	"github.com/loglite/loglite/internal/storage"
)

type memEventStore struct {
	rows []*storage.Event
}

func (m *memEventStore) InsertEvent(_ context.Context, e *storage.Event) (*storage.Event, error) {
	cp := *e
	m.rows = append(m.rows, &cp)

	return &cp, nil
}

func (m *memEventStore) Count(_ context.Context, f storage.Filter) (int, error) {
	matched, _ := m.filter(f)

	return len(matched), nil
}

func (m *memEventStore) Page(_ context.Context, f storage.Filter, limit int) ([]*storage.Event, error) {
	matched, _ := m.filter(f)
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

func (m *memEventStore) SelectIDsOlderThan(_ context.Context, _ string, _ time.Time, _ int) ([]int64, error) {
	return nil, nil
}

func (m *memEventStore) DeleteByIDs(_ context.Context, _ []int64) error { return nil }

func (m *memEventStore) filter(f storage.Filter) ([]*storage.Event, error) {
	var out []*storage.Event

	idSet := map[int64]bool{}
	for _, id := range f.IDs {
		idSet[id] = true
	}

	for i := len(m.rows) - 1; i >= 0; i-- {
		e := m.rows[i]
		if e.AppID != f.AppID {
			continue
		}

		if len(f.IDs) > 0 && !idSet[e.ID] {
			continue
		}

		out = append(out, e)
	}

	return out, nil
}

func newTestPlanner(t *testing.T) (*Planner, *memEventStore) {
	t.Helper()

	idx, err := searchindex.Open(searchindex.Config{Dir: t.TempDir() + "/idx", WriterMemMB: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	events := &memEventStore{}
	ig := ingest.New(idgen.New(1), events, idx)

	_, err = ig.Ingest(context.Background(), "app-1", []ingest.Event{
		{TS: time.Now(), Host: "h1", Source: "web", Message: "connection refused by upstream"},
		{TS: time.Now(), Host: "h2", Source: "web", Message: "request completed successfully"},
	})
	require.NoError(t, err)

	_, err = ig.Ingest(context.Background(), "app-2", []ingest.Event{
		{TS: time.Now(), Host: "h3", Source: "web", Message: "connection refused elsewhere"},
	})
	require.NoError(t, err)

	return New(events, idx), events
}

func TestPlan_FreeTextScopesToTenant(t *testing.T) {
	planner, _ := newTestPlanner(t)

	res, err := planner.Plan(context.Background(), Request{AppID: "app-1", Query: "refused", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	require.Equal(t, "h1", res.Items[0].Host)
}

func TestPlan_NoMatchesShortCircuits(t *testing.T) {
	planner, _ := newTestPlanner(t)

	res, err := planner.Plan(context.Background(), Request{AppID: "app-1", Query: "nonexistentword", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 0, res.Total)
	require.Empty(t, res.Items)
}

func TestPlan_EmptyQueryListsAllForTenant(t *testing.T) {
	planner, _ := newTestPlanner(t)

	res, err := planner.Plan(context.Background(), Request{AppID: "app-1", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
}

func TestPlan_LimitClampedToMax(t *testing.T) {
	planner, _ := newTestPlanner(t)

	res, err := planner.Plan(context.Background(), Request{AppID: "app-1", Limit: MaxLimit + 500})
	require.NoError(t, err)
	require.LessOrEqual(t, len(res.Items), MaxLimit)
}

func TestPlan_OmittedLimitDefaultsTo100(t *testing.T) {
	planner, events := newTestPlanner(t)

	// Pad app-1 past DefaultLimit directly in the fake store so a request
	// with no index narrowing would return more than DefaultLimit items if
	// the default were not applied.
	for i := 0; i < DefaultLimit+50; i++ {
		events.rows = append(events.rows, &storage.Event{AppID: "app-1", TS: time.Now(), Host: "hN", Source: "web", Message: "padding event"})
	}

	res, err := planner.Plan(context.Background(), Request{AppID: "app-1"})
	require.NoError(t, err)
	require.Len(t, res.Items, DefaultLimit)
}

func TestPlan_BadQueryIsReported(t *testing.T) {
	planner, _ := newTestPlanner(t)

	_, err := planner.Plan(context.Background(), Request{AppID: "app-1", Query: ":", Limit: 10})
	require.ErrorIs(t, err, ErrBadQuery)
}

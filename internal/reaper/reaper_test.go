package reaper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loglite/loglite/internal/searchindex"
	"github.com/loglite/loglite/internal/storage"
)

type fakeEvents struct {
	rows    map[int64]*storage.Event
	deleted []int64
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{rows: map[int64]*storage.Event{}}
}

func (f *fakeEvents) InsertEvent(_ context.Context, e *storage.Event) (*storage.Event, error) {
	cp := *e
	f.rows[e.ID] = &cp

	return &cp, nil
}

func (f *fakeEvents) Count(_ context.Context, _ storage.Filter) (int, error) { return len(f.rows), nil }

func (f *fakeEvents) Page(_ context.Context, _ storage.Filter, _ int) ([]*storage.Event, error) {
	return nil, nil
}

func (f *fakeEvents) SelectIDsOlderThan(_ context.Context, _ string, cutoff time.Time, limit int) ([]int64, error) {
	var ids []int64

	for id, e := range f.rows {
		if e.TS.Before(cutoff) {
			ids = append(ids, id)
		}

		if len(ids) == limit {
			break
		}
	}

	return ids, nil
}

func (f *fakeEvents) DeleteByIDs(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(f.rows, id)
	}

	f.deleted = append(f.deleted, ids...)

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testDiscard{}, nil))
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }

func openTestIndex(t *testing.T) *searchindex.Index {
	t.Helper()

	idx, err := searchindex.Open(searchindex.Config{Dir: t.TempDir() + "/idx", WriterMemMB: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	return idx
}

func TestTick_EvictsExpiredEvents(t *testing.T) {
	events := newFakeEvents()
	idx := openTestIndex(t)

	old := &storage.Event{ID: 1, AppID: "a", TS: time.Now().Add(-48 * time.Hour), Message: "stale"}
	fresh := &storage.Event{ID: 2, AppID: "a", TS: time.Now(), Message: "fresh"}
	_, _ = events.InsertEvent(context.Background(), old)
	_, _ = events.InsertEvent(context.Background(), fresh)

	require.NoError(t, idx.WithWriter(func() error {
		_ = idx.Add(searchindex.Document{AppID: "a", EventID: 1, Message: "stale"})
		_ = idx.Add(searchindex.Document{AppID: "a", EventID: 2, Message: "fresh"})

		return idx.Commit()
	}))
	require.NoError(t, idx.Reload())

	r := New(events, idx, testLogger(), time.Second, 24*time.Hour)
	require.NoError(t, r.tick(context.Background()))

	require.Contains(t, events.deleted, int64(1))
	require.NotContains(t, events.deleted, int64(2))
	_, stillThere := events.rows[2]
	require.True(t, stillThere)
}

func TestTick_NoExpiredEventsIsNoop(t *testing.T) {
	events := newFakeEvents()
	idx := openTestIndex(t)

	r := New(events, idx, testLogger(), time.Second, 24*time.Hour)
	require.NoError(t, r.tick(context.Background()))
	require.Empty(t, events.deleted)
}

func TestRun_DisabledWhenRetentionNonPositive(t *testing.T) {
	events := newFakeEvents()
	idx := openTestIndex(t)

	r := New(events, idx, testLogger(), time.Millisecond, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	r.Run(ctx)
	require.Empty(t, events.deleted)
}

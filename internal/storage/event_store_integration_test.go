package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDatabase creates a PostgreSQL testcontainer and applies the
// repository's migrations to it.
func setupTestDatabase(ctx context.Context, t *testing.T) *Connection {
	t.Helper()

	postgresContainer, err := pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("loglite_test"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	config := &Config{
		databaseURL:     connStr,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}

	conn, err := NewConnection(config)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, runTestMigrations(conn.DB))

	return conn
}

// runTestMigrations applies every migration from the repository's
// migrations directory.
func runTestMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		postgresDriver,
		driver,
	)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func intPtr(n int) *int { return &n }

func TestEventRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := setupTestDatabase(ctx, t)
	events := NewEventRepository(conn)

	base := time.Now().UTC().Truncate(time.Millisecond)

	seed := []*Event{
		{ID: 1, AppID: "app-a", TS: base.Add(-3 * time.Hour), Host: "h1", Source: "web", Sourcetype: "nginx", Severity: intPtr(6), Message: "request completed", Fields: json.RawMessage(`{"remote_addr":"127.0.0.1"}`)},
		{ID: 2, AppID: "app-a", TS: base.Add(-2 * time.Hour), Host: "h2", Source: "api", Severity: intPtr(3), Message: "upstream timeout"},
		{ID: 3, AppID: "app-a", TS: base.Add(-1 * time.Hour), Host: "h1", Source: "web", Message: "cache warmed"},
		{ID: 4, AppID: "app-b", TS: base.Add(-1 * time.Hour), Host: "h3", Source: "web", Message: "other tenant"},
	}

	t.Run("InsertEvent_RoundTripsAllColumns", func(t *testing.T) {
		for _, e := range seed {
			stored, err := events.InsertEvent(ctx, e)
			require.NoError(t, err)
			require.Equal(t, e.ID, stored.ID)
			require.Equal(t, e.AppID, stored.AppID)
			require.Equal(t, e.Message, stored.Message)
		}

		page, err := events.Page(ctx, Filter{AppID: "app-a", IDs: []int64{1}}, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, "nginx", page[0].Sourcetype)
		require.NotNil(t, page[0].Severity)
		require.Equal(t, 6, *page[0].Severity)
		require.JSONEq(t, `{"remote_addr":"127.0.0.1"}`, string(page[0].Fields))

		// Events inserted without fields come back as the empty object,
		// never NULL.
		page, err = events.Page(ctx, Filter{AppID: "app-a", IDs: []int64{2}}, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.JSONEq(t, `{}`, string(page[0].Fields))
		require.Nil(t, page[0].Severity)
	})

	t.Run("Page_OrdersByTSDescendingAndScopesTenant", func(t *testing.T) {
		page, err := events.Page(ctx, Filter{AppID: "app-a"}, 10)
		require.NoError(t, err)
		require.Len(t, page, 3)
		require.Equal(t, int64(3), page[0].ID)
		require.Equal(t, int64(2), page[1].ID)
		require.Equal(t, int64(1), page[2].ID)
	})

	t.Run("CountAndPage_ApplyConjunctiveFilter", func(t *testing.T) {
		f := Filter{AppID: "app-a", Sources: []string{"web"}, Hosts: []string{"h1"}}

		n, err := events.Count(ctx, f)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		f.Severities = []int{6}
		n, err = events.Count(ctx, f)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		start := base.Add(-90 * time.Minute)
		n, err = events.Count(ctx, Filter{AppID: "app-a", StartTS: &start})
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("Page_LimitTruncates", func(t *testing.T) {
		page, err := events.Page(ctx, Filter{AppID: "app-a"}, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
	})

	t.Run("SelectIDsOlderThan_ThenDeleteByIDs", func(t *testing.T) {
		cutoff := base.Add(-90 * time.Minute)

		ids, err := events.SelectIDsOlderThan(ctx, "", cutoff, 100)
		require.NoError(t, err)
		require.ElementsMatch(t, []int64{1, 2}, ids)

		require.NoError(t, events.DeleteByIDs(ctx, ids))

		n, err := events.Count(ctx, Filter{AppID: "app-a"})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		// Deleting an empty set is a no-op, not an error.
		require.NoError(t, events.DeleteByIDs(ctx, nil))
	})
}

func TestAppAndSourceRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := setupTestDatabase(ctx, t)
	apps := NewAppRepository(conn)
	sources := NewSourceRepository(conn)
	offsets := NewTailOffsetRepository(conn)

	t.Run("CreateApp_IsIdempotentPerAppID", func(t *testing.T) {
		first, err := apps.CreateApp(ctx, "svc-1234abcd", "Svc")
		require.NoError(t, err)

		again, err := apps.CreateApp(ctx, "svc-1234abcd", "Svc")
		require.NoError(t, err)
		require.True(t, first.CreatedAt.Equal(again.CreatedAt), "re-registering must return the original row")

		listed, err := apps.ListApps(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)
	})

	t.Run("SourceLifecycle", func(t *testing.T) {
		include := "**/*.log"

		created, err := sources.CreateSource(ctx, &AppSource{
			AppID:       "svc-1234abcd",
			Kind:        "tail",
			Path:        "/var/log/svc",
			Recursive:   true,
			Encoding:    "utf-8",
			IncludeGlob: &include,
			Enabled:     true,
		})
		require.NoError(t, err)
		require.NotZero(t, created.ID)
		require.Equal(t, include, *created.IncludeGlob)

		enabled, err := sources.ListEnabledTailSources(ctx)
		require.NoError(t, err)
		require.Len(t, enabled, 1)

		off := false
		updated, err := sources.UpdateSource(ctx, created.ID, SourcePatch{Enabled: &off})
		require.NoError(t, err)
		require.False(t, updated.Enabled)
		require.Equal(t, "/var/log/svc", updated.Path)

		enabled, err = sources.ListEnabledTailSources(ctx)
		require.NoError(t, err)
		require.Empty(t, enabled)

		_, err = sources.GetSource(ctx, created.ID+999)
		require.ErrorIs(t, err, sql.ErrNoRows)

		require.NoError(t, sources.DeleteSource(ctx, created.ID))

		listed, err := sources.ListSources(ctx, "svc-1234abcd")
		require.NoError(t, err)
		require.Empty(t, listed)
	})

	t.Run("TailOffsets_UpsertByUniquePair", func(t *testing.T) {
		src, err := sources.CreateSource(ctx, &AppSource{
			AppID: "svc-1234abcd", Kind: "tail", Path: "/var/log/svc", Encoding: "utf-8", Enabled: true,
		})
		require.NoError(t, err)

		offset, err := offsets.GetOffset(ctx, src.ID, "/var/log/svc/app.log")
		require.NoError(t, err)
		require.Zero(t, offset)

		require.NoError(t, offsets.UpsertOffset(ctx, src.ID, "/var/log/svc/app.log", 512))
		require.NoError(t, offsets.UpsertOffset(ctx, src.ID, "/var/log/svc/app.log", 1024))

		offset, err = offsets.GetOffset(ctx, src.ID, "/var/log/svc/app.log")
		require.NoError(t, err)
		require.Equal(t, int64(1024), offset)
	})
}

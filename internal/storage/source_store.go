package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SourceStore is the app_sources-table access surface.
type SourceStore interface {
	CreateSource(ctx context.Context, s *AppSource) (*AppSource, error)
	ListSources(ctx context.Context, appID string) ([]*AppSource, error)
	GetSource(ctx context.Context, id int64) (*AppSource, error)
	UpdateSource(ctx context.Context, id int64, patch SourcePatch) (*AppSource, error)
	DeleteSource(ctx context.Context, id int64) error
	ListEnabledTailSources(ctx context.Context) ([]*AppSource, error)
}

// SourcePatch carries a partial update to an AppSource: only non-nil
// fields overwrite the existing row.
type SourcePatch struct {
	Path        *string
	Recursive   *bool
	Encoding    *string
	IncludeGlob *string
	ExcludeGlob *string
	Enabled     *bool
}

// SourceRepository implements SourceStore against PostgreSQL.
type SourceRepository struct {
	conn *Connection
}

// NewSourceRepository returns a SourceRepository backed by conn.
func NewSourceRepository(conn *Connection) *SourceRepository {
	return &SourceRepository{conn: conn}
}

func (r *SourceRepository) CreateSource(ctx context.Context, s *AppSource) (*AppSource, error) {
	const q = `
		INSERT INTO app_sources (app_id, kind, path, recursive, encoding, include_glob, exclude_glob, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, app_id, kind, path, recursive, encoding, include_glob, exclude_glob, enabled, created_at`

	stored := &AppSource{}

	err := r.conn.QueryRowContext(ctx, q,
		s.AppID, s.Kind, s.Path, s.Recursive, s.Encoding, s.IncludeGlob, s.ExcludeGlob, s.Enabled,
	).Scan(&stored.ID, &stored.AppID, &stored.Kind, &stored.Path, &stored.Recursive,
		&stored.Encoding, &stored.IncludeGlob, &stored.ExcludeGlob, &stored.Enabled, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}

	return stored, nil
}

func (r *SourceRepository) ListSources(ctx context.Context, appID string) ([]*AppSource, error) {
	const q = `
		SELECT id, app_id, kind, path, recursive, encoding, include_glob, exclude_glob, enabled, created_at
		FROM app_sources WHERE app_id = $1 ORDER BY created_at DESC`

	rows, err := r.conn.QueryContext(ctx, q, appID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	return scanSources(rows)
}

func (r *SourceRepository) GetSource(ctx context.Context, id int64) (*AppSource, error) {
	const q = `
		SELECT id, app_id, kind, path, recursive, encoding, include_glob, exclude_glob, enabled, created_at
		FROM app_sources WHERE id = $1`

	s := &AppSource{}

	err := r.conn.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.AppID, &s.Kind, &s.Path, &s.Recursive,
		&s.Encoding, &s.IncludeGlob, &s.ExcludeGlob, &s.Enabled, &s.CreatedAt)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// UpdateSource applies patch to the source identified by id and returns the
// resulting row. Only fields present in patch are overwritten.
func (r *SourceRepository) UpdateSource(ctx context.Context, id int64, patch SourcePatch) (*AppSource, error) {
	existing, err := r.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Path != nil {
		existing.Path = *patch.Path
	}

	if patch.Recursive != nil {
		existing.Recursive = *patch.Recursive
	}

	if patch.Encoding != nil {
		existing.Encoding = *patch.Encoding
	}

	if patch.IncludeGlob != nil {
		existing.IncludeGlob = patch.IncludeGlob
	}

	if patch.ExcludeGlob != nil {
		existing.ExcludeGlob = patch.ExcludeGlob
	}

	if patch.Enabled != nil {
		existing.Enabled = *patch.Enabled
	}

	const q = `
		UPDATE app_sources
		SET path = $2, recursive = $3, encoding = $4, include_glob = $5, exclude_glob = $6, enabled = $7
		WHERE id = $1
		RETURNING id, app_id, kind, path, recursive, encoding, include_glob, exclude_glob, enabled, created_at`

	updated := &AppSource{}

	err = r.conn.QueryRowContext(ctx, q, id, existing.Path, existing.Recursive, existing.Encoding,
		existing.IncludeGlob, existing.ExcludeGlob, existing.Enabled,
	).Scan(&updated.ID, &updated.AppID, &updated.Kind, &updated.Path, &updated.Recursive,
		&updated.Encoding, &updated.IncludeGlob, &updated.ExcludeGlob, &updated.Enabled, &updated.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("update source: %w", err)
	}

	return updated, nil
}

func (r *SourceRepository) DeleteSource(ctx context.Context, id int64) error {
	if _, err := r.conn.ExecContext(ctx, `DELETE FROM app_sources WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}

	return nil
}

// ListEnabledTailSources returns every source with kind="tail" and
// enabled=true, rebuilt fresh on every call so the Tailer picks up
// additions/removals without a restart.
func (r *SourceRepository) ListEnabledTailSources(ctx context.Context) ([]*AppSource, error) {
	const q = `
		SELECT id, app_id, kind, path, recursive, encoding, include_glob, exclude_glob, enabled, created_at
		FROM app_sources WHERE enabled = true AND kind = 'tail'`

	rows, err := r.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list enabled tail sources: %w", err)
	}
	defer rows.Close()

	return scanSources(rows)
}

func scanSources(rows *sql.Rows) ([]*AppSource, error) {
	var sources []*AppSource

	for rows.Next() {
		s := &AppSource{}
		if err := rows.Scan(&s.ID, &s.AppID, &s.Kind, &s.Path, &s.Recursive,
			&s.Encoding, &s.IncludeGlob, &s.ExcludeGlob, &s.Enabled, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}

		sources = append(sources, s)
	}

	return sources, rows.Err()
}

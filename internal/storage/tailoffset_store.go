package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TailOffsetStore is the tail_offsets-table access surface.
type TailOffsetStore interface {
	GetOffset(ctx context.Context, sourceID int64, path string) (int64, error)
	UpsertOffset(ctx context.Context, sourceID int64, path string, offset int64) error
}

// TailOffsetRepository implements TailOffsetStore against PostgreSQL.
type TailOffsetRepository struct {
	conn *Connection
}

// NewTailOffsetRepository returns a TailOffsetRepository backed by conn.
func NewTailOffsetRepository(conn *Connection) *TailOffsetRepository {
	return &TailOffsetRepository{conn: conn}
}

// GetOffset returns the persisted offset for (sourceID, path), or 0 if no
// row exists yet (first read of a file).
func (r *TailOffsetRepository) GetOffset(ctx context.Context, sourceID int64, path string) (int64, error) {
	const q = `SELECT offset_bytes FROM tail_offsets WHERE source_id = $1 AND file_path = $2`

	var offset int64

	err := r.conn.QueryRowContext(ctx, q, sourceID, path).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get tail offset: %w", err)
	}

	return offset, nil
}

// UpsertOffset creates or updates the offset row for the unique
// (sourceID, path) pair.
func (r *TailOffsetRepository) UpsertOffset(ctx context.Context, sourceID int64, path string, offset int64) error {
	const q = `
		INSERT INTO tail_offsets (source_id, file_path, offset_bytes, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (source_id, file_path)
		DO UPDATE SET offset_bytes = EXCLUDED.offset_bytes, updated_at = EXCLUDED.updated_at`

	if _, err := r.conn.ExecContext(ctx, q, sourceID, path, offset); err != nil {
		return fmt.Errorf("upsert tail offset: %w", err)
	}

	return nil
}

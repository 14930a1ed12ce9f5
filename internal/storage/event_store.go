package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PageLimit is the safety cap applied to every paged read, regardless of
// the caller-requested limit.
const PageLimit = 1000

// EventStore is the PrimaryStore's event-table access surface.
type EventStore interface {
	InsertEvent(ctx context.Context, e *Event) (*Event, error)
	Count(ctx context.Context, f Filter) (int, error)
	Page(ctx context.Context, f Filter, limit int) ([]*Event, error)
	SelectIDsOlderThan(ctx context.Context, appID string, cutoff time.Time, limit int) ([]int64, error)
	DeleteByIDs(ctx context.Context, ids []int64) error
}

// EventRepository implements EventStore against PostgreSQL.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository returns an EventRepository backed by conn.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

// InsertEvent inserts a single event row, returning the stored record.
func (r *EventRepository) InsertEvent(ctx context.Context, e *Event) (*Event, error) {
	const q = `
		INSERT INTO events (id, app_id, ts, host, source, sourcetype, severity, message, fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, '{}'::jsonb))
		RETURNING id, app_id, ts, host, source, sourcetype, severity, message, fields`

	row := r.conn.QueryRowContext(ctx, q,
		e.ID, e.AppID, e.TS, e.Host, e.Source, e.Sourcetype, e.Severity, e.Message, e.Fields)

	stored := &Event{}
	if err := scanEvent(row, stored); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	return stored, nil
}

// Count returns the number of events matching f.
func (r *EventRepository) Count(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f)

	q := "SELECT count(*) FROM events WHERE " + where

	var n int
	if err := r.conn.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}

	return n, nil
}

// Page returns up to limit events matching f, ordered by ts descending.
// limit is always clamped to PageLimit.
func (r *EventRepository) Page(ctx context.Context, f Filter, limit int) ([]*Event, error) {
	if limit > PageLimit || limit <= 0 {
		limit = PageLimit
	}

	where, args := buildWhere(f)
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT id, app_id, ts, host, source, sourcetype, severity, message, fields
		FROM events WHERE %s ORDER BY ts DESC LIMIT $%d`, where, len(args))

	rows, err := r.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("page events: %w", err)
	}
	defer rows.Close()

	var events []*Event

	for rows.Next() {
		e := &Event{}
		if err := scanEvent(rows, e); err != nil {
			return nil, fmt.Errorf("page events: %w", err)
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// SelectIDsOlderThan returns up to limit ids for appID with ts < cutoff.
// appID empty means all tenants (used by the reaper, which is not
// tenant-scoped).
func (r *EventRepository) SelectIDsOlderThan(
	ctx context.Context,
	appID string,
	cutoff time.Time,
	limit int,
) ([]int64, error) {
	q := "SELECT id FROM events WHERE ts < $1"
	args := []any{cutoff}

	if appID != "" {
		q += " AND app_id = $2"
		args = append(args, appID)
	}

	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY ts ASC LIMIT $%d", len(args))

	rows, err := r.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select expired ids: %w", err)
	}
	defer rows.Close()

	var ids []int64

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("select expired ids: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeleteByIDs deletes the given events. A nil or empty id set is a no-op.
func (r *EventRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))

	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	q := "DELETE FROM events WHERE id IN (" + strings.Join(placeholders, ", ") + ")"

	if _, err := r.conn.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, e *Event) error {
	return row.Scan(&e.ID, &e.AppID, &e.TS, &e.Host, &e.Source, &e.Sourcetype, &e.Severity, &e.Message, &e.Fields)
}

// buildWhere builds the conjunctive WHERE clause for Filter. AppID is
// always present; every other predicate is added only when non-empty.
func buildWhere(f Filter) (string, []any) {
	clauses := []string{"app_id = $1"}
	args := []any{f.AppID}

	if f.StartTS != nil {
		args = append(args, *f.StartTS)
		clauses = append(clauses, fmt.Sprintf("ts >= $%d", len(args)))
	}

	if f.EndTS != nil {
		args = append(args, *f.EndTS)
		clauses = append(clauses, fmt.Sprintf("ts <= $%d", len(args)))
	}

	if len(f.Sources) > 0 {
		args = append(args, pq.Array(f.Sources))
		clauses = append(clauses, fmt.Sprintf("source = ANY($%d)", len(args)))
	}

	if len(f.Hosts) > 0 {
		args = append(args, pq.Array(f.Hosts))
		clauses = append(clauses, fmt.Sprintf("host = ANY($%d)", len(args)))
	}

	if len(f.Severities) > 0 {
		args = append(args, pq.Array(f.Severities))
		clauses = append(clauses, fmt.Sprintf("severity = ANY($%d)", len(args)))
	}

	if len(f.IDs) > 0 {
		args = append(args, pq.Array(f.IDs))
		clauses = append(clauses, fmt.Sprintf("id = ANY($%d)", len(args)))
	}

	return strings.Join(clauses, " AND "), args
}

package storage

import (
	"context"
	"fmt"
)

// AppStore is the apps-table access surface.
type AppStore interface {
	CreateApp(ctx context.Context, appID, name string) (*App, error)
	ListApps(ctx context.Context) ([]*App, error)
	GetApp(ctx context.Context, appID string) (*App, error)
}

// AppRepository implements AppStore against PostgreSQL.
type AppRepository struct {
	conn *Connection
}

// NewAppRepository returns an AppRepository backed by conn.
func NewAppRepository(conn *Connection) *AppRepository {
	return &AppRepository{conn: conn}
}

// CreateApp inserts an app row. If appID already exists, the existing row
// is returned unchanged (re-registration of the same name is idempotent).
func (r *AppRepository) CreateApp(ctx context.Context, appID, name string) (*App, error) {
	const q = `
		INSERT INTO apps (app_id, name)
		VALUES ($1, $2)
		ON CONFLICT (app_id) DO UPDATE SET app_id = apps.app_id
		RETURNING app_id, name, created_at`

	app := &App{}

	err := r.conn.QueryRowContext(ctx, q, appID, name).Scan(&app.AppID, &app.Name, &app.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create app: %w", err)
	}

	return app, nil
}

// ListApps returns all registered apps, newest first.
func (r *AppRepository) ListApps(ctx context.Context) ([]*App, error) {
	const q = `SELECT app_id, name, created_at FROM apps ORDER BY created_at DESC`

	rows, err := r.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	var apps []*App

	for rows.Next() {
		app := &App{}
		if err := rows.Scan(&app.AppID, &app.Name, &app.CreatedAt); err != nil {
			return nil, fmt.Errorf("list apps: %w", err)
		}

		apps = append(apps, app)
	}

	return apps, rows.Err()
}

// GetApp returns the app with the given id, or sql.ErrNoRows if absent.
func (r *AppRepository) GetApp(ctx context.Context, appID string) (*App, error) {
	const q = `SELECT app_id, name, created_at FROM apps WHERE app_id = $1`

	app := &App{}

	err := r.conn.QueryRowContext(ctx, q, appID).Scan(&app.AppID, &app.Name, &app.CreatedAt)
	if err != nil {
		return nil, err
	}

	return app, nil
}

package pg

import (
	"context"
	"errors"
	"time"

	"github.com/gofancyever/dify/internal/store/core"
	"github.com/jackc/pgx/v5"
)

const appCols = `id, tenant_id, name, description, mode, icon, icon_background, enable_site, enable_api, created_by, created_at`

func scanApp(row pgx.Row) (*core.App, error) {
	var a core.App
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Description, &a.Mode,
		&a.Icon, &a.IconBackground, &a.EnableSite, &a.EnableAPI, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateApp(ctx context.Context, app *core.App) error {
	const q = `
INSERT INTO apps (id, tenant_id, name, description, mode, icon, icon_background, enable_site, enable_api, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at`
	err := s.pool.QueryRow(ctx, q,
		app.ID, app.TenantID, app.Name, app.Description, app.Mode,
		app.Icon, app.IconBackground, app.EnableSite, app.EnableAPI, app.CreatedBy,
	).Scan(&app.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (s *Store) GetAppByID(ctx context.Context, id string) (*core.App, error) {
	const q = `SELECT ` + appCols + ` FROM apps WHERE id = $1`
	return scanApp(s.pool.QueryRow(ctx, q, id))
}

func (s *Store) ListAppsByTenant(ctx context.Context, tenantID string) ([]*core.App, error) {
	const q = `SELECT ` + appCols + ` FROM apps WHERE tenant_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (s *Store) DeleteApp(ctx context.Context, id string) error {
	// Las api keys de la app caen por FK ON DELETE CASCADE.
	const q = `DELETE FROM apps WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAPIKey(ctx context.Context, k *core.APIKey) error {
	const q = `
INSERT INTO api_keys (id, app_id, tenant_id, type, token_hash, last_four)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	err := s.pool.QueryRow(ctx, q, k.ID, k.AppID, k.TenantID, k.Type, k.TokenHash, k.LastFour).
		Scan(&k.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, tokenHash string) (*core.APIKey, error) {
	const q = `
SELECT id, app_id, tenant_id, type, token_hash, last_four, created_at, last_used_at
FROM api_keys WHERE token_hash = $1`
	var k core.APIKey
	err := s.pool.QueryRow(ctx, q, tokenHash).
		Scan(&k.ID, &k.AppID, &k.TenantID, &k.Type, &k.TokenHash, &k.LastFour, &k.CreatedAt, &k.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}

func (s *Store) ListAPIKeysByApp(ctx context.Context, appID string) ([]*core.APIKey, error) {
	const q = `
SELECT id, app_id, tenant_id, type, token_hash, last_four, created_at, last_used_at
FROM api_keys WHERE app_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.APIKey
	for rows.Next() {
		var k core.APIKey
		if err := rows.Scan(&k.ID, &k.AppID, &k.TenantID, &k.Type, &k.TokenHash,
			&k.LastFour, &k.CreatedAt, &k.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	const q = `DELETE FROM api_keys WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	const q = `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, usedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

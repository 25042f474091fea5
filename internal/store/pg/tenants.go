package pg

import (
	"context"
	"errors"

	"github.com/gofancyever/dify/internal/store/core"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateTenant(ctx context.Context, t *core.Tenant) error {
	const q = `
INSERT INTO tenants (id, name, plan, status)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	err := s.pool.QueryRow(ctx, q, t.ID, t.Name, t.Plan, t.Status).Scan(&t.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (s *Store) GetTenantByID(ctx context.Context, id string) (*core.Tenant, error) {
	const q = `SELECT id, name, plan, status, created_at FROM tenants WHERE id = $1`
	var t core.Tenant
	err := s.pool.QueryRow(ctx, q, id).Scan(&t.ID, &t.Name, &t.Plan, &t.Status, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTenantMember(ctx context.Context, m *core.TenantMember) error {
	const q = `
INSERT INTO tenant_members (id, tenant_id, account_id, role)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	err := s.pool.QueryRow(ctx, q, m.ID, m.TenantID, m.AccountID, m.Role).Scan(&m.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (s *Store) ListTenantsByAccount(ctx context.Context, accountID string) ([]*core.Tenant, error) {
	const q = `
SELECT t.id, t.name, t.plan, t.status, t.created_at
FROM tenants t
JOIN tenant_members m ON m.tenant_id = t.id
WHERE m.account_id = $1
ORDER BY t.created_at`
	rows, err := s.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Tenant
	for rows.Next() {
		var t core.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Plan, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ProvisionTenant crea tenant + owner membership y actualiza
// current_tenant_id de la cuenta en una sola transacción. Cualquier fallo
// revierte todo; el caller emite la notificación solo después del commit.
func (s *Store) ProvisionTenant(ctx context.Context, t *core.Tenant, owner *core.Account) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const qTenant = `
INSERT INTO tenants (id, name, plan, status)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	if err := tx.QueryRow(ctx, qTenant, t.ID, t.Name, t.Plan, t.Status).Scan(&t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}

	const qMember = `
INSERT INTO tenant_members (id, tenant_id, account_id, role)
VALUES (gen_random_uuid(), $1, $2, $3)`
	if _, err := tx.Exec(ctx, qMember, t.ID, owner.ID, core.RoleOwner); err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}

	const qAccount = `UPDATE accounts SET current_tenant_id = $2 WHERE id = $1`
	tag, err := tx.Exec(ctx, qAccount, owner.ID, t.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	tid := t.ID
	owner.CurrentTenantID = &tid
	return nil
}

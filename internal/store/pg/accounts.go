package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofancyever/dify/internal/store/core"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateAccount(ctx context.Context, a *core.Account) error {
	if a.ID == "" || a.Email == "" {
		return fmt.Errorf("%w: account id and email required", core.ErrInvalid)
	}
	const q = `
INSERT INTO accounts (id, email, name, status, interface_language, current_tenant_id, initialized_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`
	err := s.pool.QueryRow(ctx, q,
		a.ID, a.Email, a.Name, string(a.Status), a.InterfaceLanguage, a.CurrentTenantID, a.InitializedAt,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}
	return nil
}

const accountCols = `id, email, name, status, interface_language, current_tenant_id, initialized_at, created_at`

func scanAccount(row pgx.Row) (*core.Account, error) {
	var a core.Account
	var status string
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &status, &a.InterfaceLanguage,
		&a.CurrentTenantID, &a.InitializedAt, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	a.Status = core.AccountStatus(status)
	return &a, nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE id = $1`
	return scanAccount(s.pool.QueryRow(ctx, q, id))
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*core.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE email = $1`
	return scanAccount(s.pool.QueryRow(ctx, q, email))
}

func (s *Store) UpdateAccount(ctx context.Context, a *core.Account) error {
	const q = `
UPDATE accounts
SET email = $2, name = $3, status = $4, interface_language = $5,
    current_tenant_id = $6, initialized_at = $7
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q,
		a.ID, a.Email, a.Name, string(a.Status), a.InterfaceLanguage, a.CurrentTenantID, a.InitializedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) GetIdentityLink(ctx context.Context, provider, subjectID string) (*core.IdentityLink, error) {
	const q = `
SELECT id, provider, subject_id, account_id, created_at
FROM identity_links
WHERE provider = $1 AND subject_id = $2`
	var l core.IdentityLink
	err := s.pool.QueryRow(ctx, q, provider, subjectID).
		Scan(&l.ID, &l.Provider, &l.SubjectID, &l.AccountID, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// UpsertIdentityLink inserta el link si no existe; si ya existe para la misma
// cuenta es un no-op (ON CONFLICT DO NOTHING + relectura). Un link existente
// hacia otra cuenta retorna ErrConflict: los links nunca se reasignan.
func (s *Store) UpsertIdentityLink(ctx context.Context, l *core.IdentityLink) error {
	if l.Provider == "" || l.SubjectID == "" || l.AccountID == "" {
		return fmt.Errorf("%w: provider, subject_id and account_id required", core.ErrInvalid)
	}
	const q = `
INSERT INTO identity_links (id, provider, subject_id, account_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider, subject_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, l.ID, l.Provider, l.SubjectID, l.AccountID); err != nil {
		return err
	}
	got, err := s.GetIdentityLink(ctx, l.Provider, l.SubjectID)
	if err != nil {
		return err
	}
	if got.AccountID != l.AccountID {
		return core.ErrConflict
	}
	*l = *got
	return nil
}

package core

import (
	"context"
	"time"
)

type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository es el contrato de persistencia del servicio. Las restricciones
// de unicidad (accounts.email, identity_links(provider, subject_id),
// tenant_members(tenant_id, account_id)) son el backstop de concurrencia:
// toda creación duplicada debe retornar ErrConflict.
type Repository interface {
	Ping(ctx context.Context) error
	BeginTx(ctx context.Context) (Tx, error)

	// Accounts
	CreateAccount(ctx context.Context, a *Account) error
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error

	// Identity links
	GetIdentityLink(ctx context.Context, provider, subjectID string) (*IdentityLink, error)
	UpsertIdentityLink(ctx context.Context, l *IdentityLink) error

	// Tenants & memberships
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenantByID(ctx context.Context, id string) (*Tenant, error)
	CreateTenantMember(ctx context.Context, m *TenantMember) error
	ListTenantsByAccount(ctx context.Context, accountID string) ([]*Tenant, error)

	// Provisioning atómico: tenant + owner membership + current_tenant_id
	// de la cuenta en una sola transacción.
	ProvisionTenant(ctx context.Context, t *Tenant, owner *Account) error

	// Apps
	CreateApp(ctx context.Context, app *App) error
	GetAppByID(ctx context.Context, id string) (*App, error)
	ListAppsByTenant(ctx context.Context, tenantID string) ([]*App, error)
	DeleteApp(ctx context.Context, id string) error

	// API keys
	CreateAPIKey(ctx context.Context, k *APIKey) error
	GetAPIKeyByHash(ctx context.Context, tokenHash string) (*APIKey, error)
	ListAPIKeysByApp(ctx context.Context, appID string) ([]*APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error
}

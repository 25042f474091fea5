// Package memory implements core.Repository backed by in-process maps.
// Útil para desarrollo y testing; replica las restricciones de unicidad
// del esquema postgres retornando core.ErrConflict.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofancyever/dify/internal/store/core"
)

type Store struct {
	mu sync.RWMutex

	accounts map[string]*core.Account      // id → account
	byEmail  map[string]string             // email → account id
	links    map[string]*core.IdentityLink // provider:subject → link
	tenants  map[string]*core.Tenant
	members  map[string]*core.TenantMember // tenant:account → member
	apps     map[string]*core.App
	apiKeys  map[string]*core.APIKey // id → key
	byHash   map[string]string       // token hash → key id
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*core.Account),
		byEmail:  make(map[string]string),
		links:    make(map[string]*core.IdentityLink),
		tenants:  make(map[string]*core.Tenant),
		members:  make(map[string]*core.TenantMember),
		apps:     make(map[string]*core.App),
		apiKeys:  make(map[string]*core.APIKey),
		byHash:   make(map[string]string),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

type noopTx struct{}

func (noopTx) Commit(ctx context.Context) error   { return nil }
func (noopTx) Rollback(ctx context.Context) error { return nil }

// BeginTx retorna una transacción no-op: las operaciones del store en
// memoria son atómicas bajo el mutex.
func (s *Store) BeginTx(ctx context.Context) (core.Tx, error) { return noopTx{}, nil }

func linkKey(provider, subjectID string) string { return provider + ":" + subjectID }
func memberKey(tenantID, accountID string) string {
	return tenantID + ":" + accountID
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, a *core.Account) error {
	if a.ID == "" || a.Email == "" {
		return fmt.Errorf("%w: account id and email required", core.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byEmail[a.Email]; dup {
		return core.ErrConflict
	}
	cp := *a
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.accounts[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID
	*a = cp
	return nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s.accounts[id]
	return &cp, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.accounts[a.ID]
	if !ok {
		return core.ErrNotFound
	}
	if prev.Email != a.Email {
		if _, dup := s.byEmail[a.Email]; dup {
			return core.ErrConflict
		}
		delete(s.byEmail, prev.Email)
		s.byEmail[a.Email] = a.ID
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

// ---------------------------------------------------------------------------
// Identity links
// ---------------------------------------------------------------------------

func (s *Store) GetIdentityLink(ctx context.Context, provider, subjectID string) (*core.IdentityLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[linkKey(provider, subjectID)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// UpsertIdentityLink es idempotente: si el par (provider, subject_id) ya
// apunta a la misma cuenta no hace nada; si apunta a otra cuenta retorna
// ErrConflict (el link nunca se reasigna).
func (s *Store) UpsertIdentityLink(ctx context.Context, l *core.IdentityLink) error {
	if l.Provider == "" || l.SubjectID == "" || l.AccountID == "" {
		return fmt.Errorf("%w: provider, subject_id and account_id required", core.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey(l.Provider, l.SubjectID)
	if prev, ok := s.links[key]; ok {
		if prev.AccountID != l.AccountID {
			return core.ErrConflict
		}
		*l = *prev
		return nil
	}
	cp := *l
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.links[key] = &cp
	*l = cp
	return nil
}

// ---------------------------------------------------------------------------
// Tenants
// ---------------------------------------------------------------------------

func (s *Store) CreateTenant(ctx context.Context, t *core.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tenants[t.ID]; dup {
		return core.ErrConflict
	}
	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.tenants[cp.ID] = &cp
	return nil
}

func (s *Store) GetTenantByID(ctx context.Context, id string) (*core.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) CreateTenantMember(ctx context.Context, m *core.TenantMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createMemberLocked(m)
}

func (s *Store) createMemberLocked(m *core.TenantMember) error {
	key := memberKey(m.TenantID, m.AccountID)
	if _, dup := s.members[key]; dup {
		return core.ErrConflict
	}
	cp := *m
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.members[key] = &cp
	return nil
}

func (s *Store) ListTenantsByAccount(ctx context.Context, accountID string) ([]*core.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Tenant
	for _, m := range s.members {
		if m.AccountID != accountID {
			continue
		}
		if t, ok := s.tenants[m.TenantID]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ProvisionTenant crea tenant + membership owner + actualiza el
// current_tenant_id de la cuenta como una unidad: si algo falla no queda
// estado parcial.
func (s *Store) ProvisionTenant(ctx context.Context, t *core.Tenant, owner *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[owner.ID]
	if !ok {
		return core.ErrNotFound
	}
	if _, dup := s.tenants[t.ID]; dup {
		return core.ErrConflict
	}

	tcp := *t
	if tcp.CreatedAt.IsZero() {
		tcp.CreatedAt = time.Now().UTC()
	}
	member := &core.TenantMember{
		ID:        tcp.ID + ":" + owner.ID,
		TenantID:  tcp.ID,
		AccountID: owner.ID,
		Role:      core.RoleOwner,
	}
	if err := s.createMemberLocked(member); err != nil {
		return err
	}
	s.tenants[tcp.ID] = &tcp

	tid := tcp.ID
	acc.CurrentTenantID = &tid
	owner.CurrentTenantID = &tid
	*t = tcp
	return nil
}

// ---------------------------------------------------------------------------
// Apps
// ---------------------------------------------------------------------------

func (s *Store) CreateApp(ctx context.Context, app *core.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.apps[app.ID]; dup {
		return core.ErrConflict
	}
	cp := *app
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.apps[cp.ID] = &cp
	return nil
}

func (s *Store) GetAppByID(ctx context.Context, id string) (*core.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (s *Store) ListAppsByTenant(ctx context.Context, tenantID string) ([]*core.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.App
	for _, app := range s.apps {
		if app.TenantID == tenantID {
			cp := *app
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteApp(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.apps, id)
	for kid, k := range s.apiKeys {
		if k.AppID == id {
			delete(s.byHash, k.TokenHash)
			delete(s.apiKeys, kid)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

func (s *Store) CreateAPIKey(ctx context.Context, k *core.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byHash[k.TokenHash]; dup {
		return core.ErrConflict
	}
	cp := *k
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.apiKeys[cp.ID] = &cp
	s.byHash[cp.TokenHash] = cp.ID
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, tokenHash string) (*core.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[tokenHash]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s.apiKeys[id]
	return &cp, nil
}

func (s *Store) ListAPIKeysByApp(ctx context.Context, appID string) ([]*core.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.APIKey
	for _, k := range s.apiKeys {
		if k.AppID == appID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return core.ErrNotFound
	}
	delete(s.byHash, k.TokenHash)
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return core.ErrNotFound
	}
	t := usedAt
	k.LastUsedAt = &t
	return nil
}

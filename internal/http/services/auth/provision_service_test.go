package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofancyever/dify/internal/notify"
	"github.com/gofancyever/dify/internal/store/core"
	"github.com/gofancyever/dify/internal/store/memory"
)

type staticFeatures struct{ f SystemFeatures }

func (s staticFeatures) SystemFeatures() SystemFeatures { return s.f }

func newTestService(repo core.Repository, f SystemFeatures) ProvisionService {
	return NewProvisionService(ProvisionDeps{
		Repo:               repo,
		Features:           staticFeatures{f},
		SupportedLanguages: []string{"en-US", "zh-Hans", "ja-JP"},
	})
}

func allAllowed() SystemFeatures {
	return SystemFeatures{AllowRegister: true, AllowCreateWorkspace: true}
}

func githubAssertion() IdentityAssertion {
	return IdentityAssertion{
		Provider:  "github",
		SubjectID: "12345",
		Email:     "ana@example.com",
		Name:      "Ana",
	}
}

func TestResolve_FirstLoginProvisionsEverything(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, allAllowed())
	ctx := context.Background()

	account, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if account.Status != core.AccountPending {
		t.Fatalf("expected pending account, got %s", account.Status)
	}
	if account.Name != "Ana" {
		t.Fatalf("unexpected name %q", account.Name)
	}

	// workspace auto-provisioned with owner membership
	tenants, err := repo.ListTenantsByAccount(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tenants) != 1 {
		t.Fatalf("expected 1 tenant, got %d", len(tenants))
	}
	if tenants[0].Name != "Ana's Workspace" {
		t.Fatalf("unexpected tenant name %q", tenants[0].Name)
	}
	if account.CurrentTenantID == nil || *account.CurrentTenantID != tenants[0].ID {
		t.Fatal("current tenant not set")
	}

	// identity link recorded
	link, err := repo.GetIdentityLink(ctx, "github", "12345")
	if err != nil {
		t.Fatal(err)
	}
	if link.AccountID != account.ID {
		t.Fatal("link points to wrong account")
	}
}

// racingRepo simula la carrera de doble-submit: la restricción de unicidad
// del storage dispara ErrConflict en la operación elegida.
type racingRepo struct {
	core.Repository
	accountConflict bool
	linkConflict    bool
}

func (r *racingRepo) CreateAccount(ctx context.Context, a *core.Account) error {
	if r.accountConflict {
		return core.ErrConflict
	}
	return r.Repository.CreateAccount(ctx, a)
}

func (r *racingRepo) UpsertIdentityLink(ctx context.Context, l *core.IdentityLink) error {
	if r.linkConflict {
		return core.ErrConflict
	}
	return r.Repository.UpsertIdentityLink(ctx, l)
}

func TestResolve_DuplicateEmailRaceIsRetryable(t *testing.T) {
	repo := &racingRepo{Repository: memory.New(), accountConflict: true}
	svc := newTestService(repo, allAllowed())

	_, err := svc.ResolveAndProvision(context.Background(), "github", githubAssertion(), nil)
	if !errors.Is(err, ErrAccountRegistrationFailed) {
		t.Fatalf("expected ErrAccountRegistrationFailed on duplicate email, got %v", err)
	}
}

func TestResolve_LinkConflictRaceIsRetryable(t *testing.T) {
	repo := &racingRepo{Repository: memory.New(), linkConflict: true}
	svc := newTestService(repo, allAllowed())

	_, err := svc.ResolveAndProvision(context.Background(), "github", githubAssertion(), nil)
	if !errors.Is(err, ErrAccountRegistrationFailed) {
		t.Fatalf("expected ErrAccountRegistrationFailed on link conflict, got %v", err)
	}
}

func TestResolve_IsIdempotent(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, allAllowed())
	ctx := context.Background()

	first, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatal("re-resolution returned a different account")
	}
	tenants, _ := repo.ListTenantsByAccount(ctx, first.ID)
	if len(tenants) != 1 {
		t.Fatalf("expected 1 tenant after re-resolution, got %d", len(tenants))
	}
}

func TestResolve_AttachesNewProviderToExistingEmail(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, allAllowed())
	ctx := context.Background()

	first, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if err != nil {
		t.Fatal(err)
	}

	// same email arrives via google with a different subject
	googleAssert := IdentityAssertion{
		Provider:  "google",
		SubjectID: "g-999",
		Email:     "ana@example.com",
		Name:      "Ana G",
	}
	second, err := svc.ResolveAndProvision(ctx, "google", googleAssert, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatal("expected email lookup to resolve the same account")
	}
	if _, err := repo.GetIdentityLink(ctx, "google", "g-999"); err != nil {
		t.Fatalf("google link not created: %v", err)
	}
}

func TestResolve_LinkTakesPrecedenceOverEmail(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, allAllowed())
	ctx := context.Background()

	linked, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if err != nil {
		t.Fatal(err)
	}

	// another account owns the email the provider now reports
	other := &core.Account{ID: "other", Email: "changed@example.com", Name: "Other", Status: core.AccountActive}
	if err := repo.CreateAccount(ctx, other); err != nil {
		t.Fatal(err)
	}

	assertion := githubAssertion()
	assertion.Email = "changed@example.com"
	resolved, err := svc.ResolveAndProvision(ctx, "github", assertion, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.ID != linked.ID {
		t.Fatal("link lookup must win over email lookup")
	}
}

func TestResolve_BannedAccountShortCircuits(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, allAllowed())
	ctx := context.Background()

	banned := &core.Account{ID: "b1", Email: "ana@example.com", Name: "Ana", Status: core.AccountBanned}
	if err := repo.CreateAccount(ctx, banned); err != nil {
		t.Fatal(err)
	}

	_, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned, got %v", err)
	}

	// no tenant and no link may exist after the failed attempt
	tenants, _ := repo.ListTenantsByAccount(ctx, "b1")
	if len(tenants) != 0 {
		t.Fatal("banned login must not provision a workspace")
	}
	if _, err := repo.GetIdentityLink(ctx, "github", "12345"); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("banned login must not create an identity link")
	}
}

func TestResolve_RegistrationDisabled(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, SystemFeatures{AllowRegister: false, AllowCreateWorkspace: true})
	ctx := context.Background()

	_, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := repo.GetAccountByEmail(ctx, "ana@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("no account may be created when registration is disabled")
	}
}

func TestResolve_WorkspaceCreationDisabled(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, SystemFeatures{AllowRegister: true, AllowCreateWorkspace: false})
	ctx := context.Background()

	// existing account without any membership
	acc := &core.Account{ID: "a1", Email: "ana@example.com", Name: "Ana", Status: core.AccountActive}
	if err := repo.CreateAccount(ctx, acc); err != nil {
		t.Fatal(err)
	}

	_, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if !errors.Is(err, ErrWorkspaceNotAllowedToCreate) {
		t.Fatalf("expected ErrWorkspaceNotAllowedToCreate, got %v", err)
	}

	// the failed policy check must leave zero mutations behind
	tenants, _ := repo.ListTenantsByAccount(ctx, "a1")
	if len(tenants) != 0 {
		t.Fatal("no tenant may be created when policy denies it")
	}
	if _, err := repo.GetIdentityLink(ctx, "github", "12345"); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("no link may be created when policy denies provisioning")
	}
}

func TestResolve_ExistingMembershipSkipsProvisioning(t *testing.T) {
	repo := memory.New()
	// workspace creation disabled must not matter for members
	svc := newTestService(repo, SystemFeatures{AllowRegister: true, AllowCreateWorkspace: false})
	ctx := context.Background()

	acc := &core.Account{ID: "a1", Email: "ana@example.com", Name: "Ana", Status: core.AccountActive}
	if err := repo.CreateAccount(ctx, acc); err != nil {
		t.Fatal(err)
	}
	tenant := &core.Tenant{ID: "t1", Name: "Existing", Plan: "basic", Status: "normal"}
	if err := repo.ProvisionTenant(ctx, tenant, acc); err != nil {
		t.Fatal(err)
	}

	resolved, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.ID != "a1" {
		t.Fatal("wrong account resolved")
	}
}

func TestResolve_LanguageSelection(t *testing.T) {
	cases := []struct {
		prefs []string
		want  string
	}{
		{[]string{"ja-JP"}, "ja-JP"},
		{[]string{"fr", "en"}, "en-US"}, // primary subtag match
		{[]string{"fr-FR", "de-DE"}, "en-US"},
		{nil, "en-US"},
		{[]string{"ZH-HANS"}, "zh-Hans"},
	}
	for _, tc := range cases {
		repo := memory.New()
		svc := newTestService(repo, allAllowed())

		account, err := svc.ResolveAndProvision(context.Background(), "github", githubAssertion(), tc.prefs)
		if err != nil {
			t.Fatal(err)
		}
		if account.InterfaceLanguage != tc.want {
			t.Fatalf("prefs %v: expected %q, got %q", tc.prefs, tc.want, account.InterfaceLanguage)
		}
	}
}

func TestResolve_NameFallback(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, allAllowed())

	assertion := githubAssertion()
	assertion.Name = ""
	account, err := svc.ResolveAndProvision(context.Background(), "github", assertion, nil)
	if err != nil {
		t.Fatal(err)
	}
	if account.Name != "Dify" {
		t.Fatalf("expected fallback name, got %q", account.Name)
	}
}

func TestResolve_InvalidAssertion(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, allAllowed())
	ctx := context.Background()

	bad := githubAssertion()
	bad.Email = "not-an-email"
	if _, err := svc.ResolveAndProvision(ctx, "github", bad, nil); !errors.Is(err, ErrInvalidAssertion) {
		t.Fatalf("expected ErrInvalidAssertion, got %v", err)
	}

	noSubject := githubAssertion()
	noSubject.SubjectID = ""
	if _, err := svc.ResolveAndProvision(ctx, "github", noSubject, nil); !errors.Is(err, ErrInvalidAssertion) {
		t.Fatalf("expected ErrInvalidAssertion, got %v", err)
	}
}

func TestActivate_IsIdempotent(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, allAllowed())
	ctx := context.Background()

	account, err := svc.ResolveAndProvision(ctx, "github", githubAssertion(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Activate(ctx, account); err != nil {
		t.Fatal(err)
	}
	if account.Status != core.AccountActive || account.InitializedAt == nil {
		t.Fatal("activation did not transition the account")
	}

	stamp := *account.InitializedAt
	time.Sleep(5 * time.Millisecond)
	if err := svc.Activate(ctx, account); err != nil {
		t.Fatal(err)
	}
	if !account.InitializedAt.Equal(stamp) {
		t.Fatal("re-activation must not move initialized_at")
	}
}

type chanSink struct{ ch chan notify.Event }

func (s chanSink) Notify(ctx context.Context, ev notify.Event) error {
	s.ch <- ev
	return nil
}

func TestResolve_EmitsTenantCreatedEvent(t *testing.T) {
	repo := memory.New()
	sink := chanSink{ch: make(chan notify.Event, 4)}
	svc := NewProvisionService(ProvisionDeps{
		Repo:               repo,
		Features:           staticFeatures{allAllowed()},
		Notifier:           notify.New(sink),
		SupportedLanguages: []string{"en-US"},
	})

	if _, err := svc.ResolveAndProvision(context.Background(), "github", githubAssertion(), nil); err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-sink.ch:
			seen[ev.Type] = true
		case <-timeout:
			t.Fatalf("missing events, got %v", seen)
		}
	}
	if !seen[notify.EventTenantCreated] || !seen[notify.EventAccountRegistered] {
		t.Fatalf("unexpected events: %v", seen)
	}
}

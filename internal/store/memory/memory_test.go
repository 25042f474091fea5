package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/gofancyever/dify/internal/store/core"
)

func TestCreateAccount_EmailUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := &core.Account{ID: "a1", Email: "x@example.com", Name: "X", Status: core.AccountPending}
	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatal(err)
	}
	dup := &core.Account{ID: "a2", Email: "x@example.com", Name: "Y", Status: core.AccountPending}
	if err := s.CreateAccount(ctx, dup); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateAccount_RejectsIncompleteRows(t *testing.T) {
	s := New()
	ctx := context.Background()

	cases := []*core.Account{
		{ID: "", Email: "x@example.com"},
		{ID: "a1", Email: ""},
	}
	for _, a := range cases {
		if err := s.CreateAccount(ctx, a); !errors.Is(err, core.ErrInvalid) {
			t.Fatalf("account %+v: expected ErrInvalid, got %v", a, err)
		}
	}

	link := &core.IdentityLink{ID: "l1", Provider: "github", SubjectID: "", AccountID: "a1"}
	if err := s.UpsertIdentityLink(ctx, link); !errors.Is(err, core.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty subject_id, got %v", err)
	}
}

func TestUpsertIdentityLink_Semantics(t *testing.T) {
	s := New()
	ctx := context.Background()

	link := &core.IdentityLink{ID: "l1", Provider: "github", SubjectID: "s1", AccountID: "a1"}
	if err := s.UpsertIdentityLink(ctx, link); err != nil {
		t.Fatal(err)
	}

	// same account: no-op
	again := &core.IdentityLink{ID: "l2", Provider: "github", SubjectID: "s1", AccountID: "a1"}
	if err := s.UpsertIdentityLink(ctx, again); err != nil {
		t.Fatal(err)
	}
	if again.ID != "l1" {
		t.Fatal("upsert must return the existing link")
	}

	// different account: conflict, never reassigned
	foreign := &core.IdentityLink{ID: "l3", Provider: "github", SubjectID: "s1", AccountID: "a2"}
	if err := s.UpsertIdentityLink(ctx, foreign); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := s.GetIdentityLink(ctx, "github", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccountID != "a1" {
		t.Fatal("link was reassigned")
	}
}

func TestProvisionTenant_Atomic(t *testing.T) {
	s := New()
	ctx := context.Background()

	acc := &core.Account{ID: "a1", Email: "x@example.com", Name: "X", Status: core.AccountPending}
	if err := s.CreateAccount(ctx, acc); err != nil {
		t.Fatal(err)
	}

	tenant := &core.Tenant{ID: "t1", Name: "X's Workspace", Plan: "basic", Status: "normal"}
	if err := s.ProvisionTenant(ctx, tenant, acc); err != nil {
		t.Fatal(err)
	}

	if acc.CurrentTenantID == nil || *acc.CurrentTenantID != "t1" {
		t.Fatal("current tenant not set on account")
	}
	stored, err := s.GetAccountByID(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.CurrentTenantID == nil || *stored.CurrentTenantID != "t1" {
		t.Fatal("current tenant not persisted")
	}

	tenants, err := s.ListTenantsByAccount(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tenants) != 1 {
		t.Fatalf("expected owner membership, got %d tenants", len(tenants))
	}

	// unknown owner leaves no partial state behind
	ghost := &core.Account{ID: "ghost"}
	t2 := &core.Tenant{ID: "t2", Name: "Ghost", Plan: "basic", Status: "normal"}
	if err := s.ProvisionTenant(ctx, t2, ghost); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetTenantByID(ctx, "t2"); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("failed provisioning must not leave a tenant")
	}
}

func TestDeleteApp_CascadesKeys(t *testing.T) {
	s := New()
	ctx := context.Background()

	app := &core.App{ID: "app1", TenantID: "t1", Name: "A", Mode: "chat"}
	if err := s.CreateApp(ctx, app); err != nil {
		t.Fatal(err)
	}
	key := &core.APIKey{ID: "k1", AppID: "app1", TenantID: "t1", Type: "app", TokenHash: "h1", LastFour: "abcd"}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteApp(ctx, "app1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAPIKeyByHash(ctx, "h1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("api keys must be deleted with their app")
	}
}

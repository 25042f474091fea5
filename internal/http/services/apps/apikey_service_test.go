package apps

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gofancyever/dify/internal/cache"
	"github.com/gofancyever/dify/internal/store/core"
	"github.com/gofancyever/dify/internal/store/memory"
)

func newKeyFixture(t *testing.T) (APIKeyService, *core.App) {
	t.Helper()
	repo := memory.New()
	appSvc := NewAppService(repo)
	app, err := appSvc.Create(context.Background(), "t1", "a1", CreateAppInput{Name: "app", Mode: "chat"})
	if err != nil {
		t.Fatal(err)
	}
	return NewAPIKeyService(repo, cache.NewMemory(time.Minute)), app
}

func TestAPIKey_IssueFormat(t *testing.T) {
	svc, app := newKeyFixture(t)

	issued, err := svc.Issue(context.Background(), app)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(issued.Token, "app-") {
		t.Fatalf("token missing prefix: %q", issued.Token)
	}
	if issued.Key.TokenHash == issued.Token {
		t.Fatal("plaintext token must not be stored")
	}
	if issued.Key.LastFour != issued.Token[len(issued.Token)-4:] {
		t.Fatal("last_four mismatch")
	}
}

func TestAPIKey_ValidateAndTouch(t *testing.T) {
	svc, app := newKeyFixture(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, app)
	if err != nil {
		t.Fatal(err)
	}

	key, err := svc.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatal(err)
	}
	if key.AppID != app.ID || key.TenantID != "t1" {
		t.Fatalf("wrong key resolved: %+v", key)
	}

	// second validation goes through the cache path
	if _, err := svc.Validate(ctx, issued.Token); err != nil {
		t.Fatal(err)
	}

	keys, err := svc.List(ctx, app.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].LastUsedAt == nil {
		t.Fatal("last_used_at not stamped")
	}
}

// countingRepo cuenta lecturas por hash para observar el cache.
type countingRepo struct {
	core.Repository
	hashReads int
}

func (r *countingRepo) GetAPIKeyByHash(ctx context.Context, hash string) (*core.APIKey, error) {
	r.hashReads++
	return r.Repository.GetAPIKeyByHash(ctx, hash)
}

func TestAPIKey_ValidateCacheSkipsStorage(t *testing.T) {
	repo := &countingRepo{Repository: memory.New()}
	appSvc := NewAppService(repo)
	ctx := context.Background()

	app, err := appSvc.Create(ctx, "t1", "a1", CreateAppInput{Name: "app", Mode: "chat"})
	if err != nil {
		t.Fatal(err)
	}
	svc := NewAPIKeyService(repo, cache.NewMemory(time.Minute))

	issued, err := svc.Issue(ctx, app)
	if err != nil {
		t.Fatal(err)
	}

	key, err := svc.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatal(err)
	}
	if repo.hashReads != 1 {
		t.Fatalf("first validation should read storage once, got %d", repo.hashReads)
	}

	cached, err := svc.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatal(err)
	}
	if repo.hashReads != 1 {
		t.Fatalf("cached validation must not read storage, got %d reads", repo.hashReads)
	}
	if cached.ID != key.ID || cached.AppID != key.AppID || cached.TenantID != key.TenantID {
		t.Fatalf("cached record mismatch: %+v vs %+v", cached, key)
	}
}

func TestAPIKey_ValidateRejectsBadTokens(t *testing.T) {
	svc, _ := newKeyFixture(t)
	ctx := context.Background()

	for _, token := range []string{"", "app-", "nope", "app-unknown-token-value"} {
		if _, err := svc.Validate(ctx, token); !errors.Is(err, ErrAPIKeyInvalid) {
			t.Fatalf("token %q: expected ErrAPIKeyInvalid, got %v", token, err)
		}
	}
}

func TestAPIKey_Revoke(t *testing.T) {
	svc, app := newKeyFixture(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, app)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Revoke(ctx, app.ID, issued.Key.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(ctx, issued.Token); !errors.Is(err, ErrAPIKeyInvalid) {
		t.Fatalf("revoked key must not validate, got %v", err)
	}
	if err := svc.Revoke(ctx, app.ID, issued.Key.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double revoke, got %v", err)
	}
}

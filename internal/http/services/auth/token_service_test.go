package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofancyever/dify/internal/cache"
	"github.com/gofancyever/dify/internal/store/core"
	"github.com/gofancyever/dify/internal/store/memory"
)

func newTestTokenIssuer(t *testing.T, repo core.Repository) *TokenIssuer {
	t.Helper()
	return NewTokenService(TokenDeps{
		Repo:       repo,
		Cache:      cache.NewMemory(time.Minute),
		Secret:     "test-secret",
		Issuer:     "dify-console",
		AccessTTL:  time.Hour,
		RefreshTTL: time.Hour,
	})
}

func testAccount(t *testing.T, repo core.Repository) *core.Account {
	t.Helper()
	tid := "t1"
	acc := &core.Account{
		ID:              "a1",
		Email:           "ana@example.com",
		Name:            "Ana",
		Status:          core.AccountActive,
		CurrentTenantID: &tid,
	}
	if err := repo.CreateAccount(context.Background(), acc); err != nil {
		t.Fatal(err)
	}
	return acc
}

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	repo := memory.New()
	issuer := newTestTokenIssuer(t, repo)
	acc := testAccount(t, repo)

	pair, err := issuer.IssueTokens(context.Background(), acc)
	if err != nil {
		t.Fatal(err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresIn != 3600 {
		t.Fatalf("unexpected pair metadata: %+v", pair)
	}

	claims, err := issuer.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "a1" || claims.TenantID != "t1" || claims.Email != "ana@example.com" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestTokenIssuer_RefreshRotates(t *testing.T) {
	repo := memory.New()
	issuer := newTestTokenIssuer(t, repo)
	acc := testAccount(t, repo)
	ctx := context.Background()

	pair, err := issuer.IssueTokens(ctx, acc)
	if err != nil {
		t.Fatal(err)
	}

	next, err := issuer.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// the presented token is single-use
	if _, err := issuer.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatalf("expected ErrRefreshTokenInvalid, got %v", err)
	}
}

func TestTokenIssuer_RefreshRejectsBanned(t *testing.T) {
	repo := memory.New()
	issuer := newTestTokenIssuer(t, repo)
	acc := testAccount(t, repo)
	ctx := context.Background()

	pair, err := issuer.IssueTokens(ctx, acc)
	if err != nil {
		t.Fatal(err)
	}

	acc.Status = core.AccountBanned
	if err := repo.UpdateAccount(ctx, acc); err != nil {
		t.Fatal(err)
	}

	if _, err := issuer.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned, got %v", err)
	}
	// and the token is burned even on rejection
	if _, err := issuer.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatalf("expected ErrRefreshTokenInvalid, got %v", err)
	}
}

func TestTokenIssuer_ParseRejectsUnknownToken(t *testing.T) {
	repo := memory.New()
	issuer := newTestTokenIssuer(t, repo)

	if _, err := issuer.ParseAccessToken("garbage"); err == nil {
		t.Fatal("expected parse error")
	}

	other := NewTokenService(TokenDeps{
		Repo:   repo,
		Cache:  cache.NewMemory(time.Minute),
		Secret: "other-secret",
		Issuer: "dify-console",
	})
	acc := testAccount(t, repo)
	pair, err := other.IssueTokens(context.Background(), acc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.ParseAccessToken(pair.AccessToken); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

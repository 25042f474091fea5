package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gofancyever/dify/internal/cache"
	"github.com/gofancyever/dify/internal/observability/logger"
	"github.com/gofancyever/dify/internal/store/core"
)

const refreshPrefix = "auth:refresh:"

// TokenDeps contains dependencies for the token service.
type TokenDeps struct {
	Repo       core.Repository
	Cache      cache.Cache
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenIssuer emite pares access/refresh: el access es un JWT HS256 con
// claims de cuenta, el refresh es un token opaco en cache con rotación
// single-use.
type TokenIssuer struct {
	repo       core.Repository
	cache      cache.Cache
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService.
func NewTokenService(d TokenDeps) *TokenIssuer {
	if d.AccessTTL <= 0 {
		d.AccessTTL = time.Hour
	}
	if d.RefreshTTL <= 0 {
		d.RefreshTTL = 30 * 24 * time.Hour
	}
	return &TokenIssuer{
		repo:       d.Repo,
		cache:      d.Cache,
		secret:     []byte(d.Secret),
		issuer:     d.Issuer,
		accessTTL:  d.AccessTTL,
		refreshTTL: d.RefreshTTL,
	}
}

// AccessClaims son los claims del access token de consola.
type AccessClaims struct {
	Email    string `json:"email"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

func (s *TokenIssuer) IssueTokens(ctx context.Context, account *core.Account) (*TokenPair, error) {
	now := time.Now().UTC()

	claims := AccessClaims{
		Email: account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        newOpaqueToken(8),
		},
	}
	if account.CurrentTenantID != nil {
		claims.TenantID = *account.CurrentTenantID
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh := newOpaqueToken(32)
	s.cache.Set(refreshPrefix+refresh, []byte(account.ID), s.refreshTTL)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// Refresh rota el refresh token: el presentado se invalida aunque la cuenta
// ya no califique, para que un token robado sirva una sola vez.
func (s *TokenIssuer) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.token"))

	accountID, ok := s.cache.Get(refreshPrefix + refreshToken)
	if !ok {
		return nil, ErrRefreshTokenInvalid
	}
	s.cache.Delete(refreshPrefix + refreshToken)

	account, err := s.repo.GetAccountByID(ctx, string(accountID))
	if err != nil {
		return nil, ErrRefreshTokenInvalid
	}
	if account.Status == core.AccountBanned {
		log.Warn("refresh attempt on banned account", logger.AccountID(account.ID))
		return nil, ErrAccountBanned
	}

	return s.IssueTokens(ctx, account)
}

// ParseAccessToken valida un access token y devuelve sus claims.
func (s *TokenIssuer) ParseAccessToken(token string) (*AccessClaims, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

func newOpaqueToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

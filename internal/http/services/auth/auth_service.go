// Package auth contains the account resolution / provisioning engine and its
// collaborators: system feature policy, state signing and token issuance.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofancyever/dify/internal/oauth"
	"github.com/gofancyever/dify/internal/store/core"
)

// IdentityAssertion is the normalized result of an external identity
// exchange, produced fresh per request and never persisted as-is.
type IdentityAssertion struct {
	Provider  string
	SubjectID string
	Email     string
	Name      string
}

// SystemFeatures are the policy flags consulted at resolution time.
type SystemFeatures struct {
	AllowRegister        bool
	AllowCreateWorkspace bool
}

// FeatureService expone la política del sistema. Se consulta en cada
// invocación, nunca se cachea dentro del engine.
type FeatureService interface {
	SystemFeatures() SystemFeatures
}

// ProvisionService resolves an external identity to exactly one account,
// creating the account and its workspace on first sight.
type ProvisionService interface {
	// ResolveAndProvision ejecuta el procedimiento de resolución completo.
	// langPrefs es la lista ordenada de idiomas preferidos del caller.
	ResolveAndProvision(ctx context.Context, provider string, assertion IdentityAssertion, langPrefs []string) (*core.Account, error)

	// Activate transiciona PENDING → ACTIVE y estampa initialized_at.
	// Idempotente: re-activar una cuenta ACTIVE es un no-op.
	Activate(ctx context.Context, account *core.Account) error
}

// TokenPair is the session credential pair returned after login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenService issues and refreshes console session tokens.
type TokenService interface {
	IssueTokens(ctx context.Context, account *core.Account) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}

// StateClaims viaja firmado en el parámetro state del flujo OAuth.
type StateClaims struct {
	Provider    string
	Nonce       string
	InviteToken string
	IssuedAt    time.Time
}

// StateSigner firma y valida el state del flujo OAuth.
type StateSigner interface {
	SignState(claims StateClaims) (string, error)
	ParseState(token string) (*StateClaims, error)
}

// Errores del flujo de resolución. Cada uno mapea a un mensaje distinto
// para el usuario; el caller nunca debe colapsarlos.
var (
	// ErrIdentityExchangeFailed es el mismo valor que producen los
	// adaptadores de proveedor; errors.Is funciona en ambas capas.
	ErrIdentityExchangeFailed      = oauth.ErrExchangeFailed
	ErrInvalidAssertion            = errors.New("invalid identity assertion")
	ErrAccountBanned               = errors.New("account is banned")
	ErrAccountNotFound             = errors.New("account not found")
	ErrWorkspaceNotFound           = errors.New("workspace not found")
	ErrWorkspaceNotAllowedToCreate = errors.New("workspace creation not allowed")
	ErrAccountRegistrationFailed   = errors.New("account registration failed")
	ErrRefreshTokenInvalid         = errors.New("refresh token invalid")
)

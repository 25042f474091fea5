// Package auth contains the console OAuth controllers: login redirect,
// provider callback and token refresh.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gofancyever/dify/internal/cache"
	httperrors "github.com/gofancyever/dify/internal/http/errors"
	svc "github.com/gofancyever/dify/internal/http/services/auth"
	"github.com/gofancyever/dify/internal/metrics"
	"github.com/gofancyever/dify/internal/oauth"
	"github.com/gofancyever/dify/internal/observability/logger"
)

const nonceCacheNS = "oauth:nonce:"

// OAuthController maneja el flujo de login por proveedor externo.
type OAuthController struct {
	providers *oauth.Registry
	provision svc.ProvisionService
	tokens    svc.TokenService
	states    svc.StateSigner
	cache     cache.Cache

	webURL   string
	stateTTL time.Duration
}

// OAuthDeps contains dependencies for the OAuth controller.
type OAuthDeps struct {
	Providers *oauth.Registry
	Provision svc.ProvisionService
	Tokens    svc.TokenService
	States    svc.StateSigner
	Cache     cache.Cache
	WebURL    string
	StateTTL  time.Duration
}

// NewOAuthController creates a new OAuth controller.
func NewOAuthController(d OAuthDeps) *OAuthController {
	if d.StateTTL <= 0 {
		d.StateTTL = 10 * time.Minute
	}
	return &OAuthController{
		providers: d.Providers,
		provision: d.Provision,
		tokens:    d.Tokens,
		states:    d.States,
		cache:     d.Cache,
		webURL:    d.WebURL,
		stateTTL:  d.StateTTL,
	}
}

// Login inicia el flujo: firma un state con nonce y redirige al proveedor.
// GET /console/api/oauth/login/{provider}
func (c *OAuthController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "provider")

	provider, err := c.providers.Get(name)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidProvider.WithDetail(name))
		return
	}

	nonce := uuid.NewString()
	state, err := c.states.SignState(svc.StateClaims{
		Provider:    name,
		Nonce:       nonce,
		InviteToken: r.URL.Query().Get("invite_token"),
	})
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	// nonce single-use: se marca al consumirse en el callback
	c.cache.Set(nonceCacheNS+nonce, []byte("1"), c.stateTTL)

	authURL, err := provider.AuthURL(ctx, state, nonce)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completa el flujo: valida state y nonce, intercambia el code,
// resuelve la cuenta y redirige al frontend con el par de tokens.
// GET /console/api/oauth/authorize/{provider}
func (c *OAuthController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("OAuthController.Callback"), logger.Provider(name))

	provider, err := c.providers.Get(name)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidProvider.WithDetail(name))
		return
	}

	code := r.URL.Query().Get("code")
	rawState := r.URL.Query().Get("state")
	if code == "" || rawState == "" {
		c.redirectError(w, r, "Invalid callback parameters.")
		return
	}

	state, err := c.states.ParseState(rawState)
	if err != nil || state.Provider != name {
		c.redirectError(w, r, "Invalid or expired state.")
		return
	}
	// replay guard: el nonce se consume exactamente una vez
	if _, ok := c.cache.Get(nonceCacheNS + state.Nonce); !ok {
		c.redirectError(w, r, "Invalid or expired state.")
		return
	}
	c.cache.Delete(nonceCacheNS + state.Nonce)

	info, err := provider.Exchange(ctx, code, state.Nonce)
	if err != nil {
		log.Warn("identity exchange failed", logger.Err(err))
		metrics.Logins.WithLabelValues(name, "failure").Inc()
		c.redirectError(w, r, resolutionMessage(err))
		return
	}

	account, err := c.provision.ResolveAndProvision(ctx, name, svc.IdentityAssertion{
		Provider:  info.Provider,
		SubjectID: info.SubjectID,
		Email:     info.Email,
		Name:      info.Name,
	}, parseAcceptLanguage(r.Header.Get("Accept-Language")))
	if err != nil {
		log.Warn("account resolution failed", logger.Err(err))
		metrics.Logins.WithLabelValues(name, "failure").Inc()
		c.redirectError(w, r, resolutionMessage(err))
		return
	}

	if err := c.provision.Activate(ctx, account); err != nil {
		log.Error("account activation failed", logger.AccountID(account.ID), logger.Err(err))
		c.redirectError(w, r, "Account activation failed.")
		return
	}

	pair, err := c.tokens.IssueTokens(ctx, account)
	if err != nil {
		log.Error("token issuance failed", logger.AccountID(account.ID), logger.Err(err))
		c.redirectError(w, r, "Login failed.")
		return
	}

	metrics.Logins.WithLabelValues(name, "success").Inc()

	q := url.Values{}
	q.Set("access_token", pair.AccessToken)
	q.Set("refresh_token", pair.RefreshToken)

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, c.webURL+"?"+q.Encode(), http.StatusFound)
}

// Refresh rota el par de tokens de consola.
// POST /console/api/refresh-token
func (c *OAuthController) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !httperrors.ReadJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("refresh_token required"))
		return
	}

	pair, err := c.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrAccountBanned):
			httperrors.WriteError(w, httperrors.ErrAccountBanned)
		case errors.Is(err, svc.ErrRefreshTokenInvalid):
			httperrors.WriteError(w, httperrors.ErrTokenInvalid)
		default:
			httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		}
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, pair)
}

// resolutionMessage mapea cada error del engine a su mensaje para el
// frontend. Los errores no se colapsan: cada causa tiene su texto.
func resolutionMessage(err error) string {
	switch {
	case errors.Is(err, svc.ErrIdentityExchangeFailed):
		return "OAuth process failed."
	case errors.Is(err, svc.ErrAccountBanned):
		return "Account is banned."
	case errors.Is(err, svc.ErrAccountNotFound):
		return "Account not found."
	case errors.Is(err, svc.ErrWorkspaceNotFound):
		return "Workspace not found, please contact system admin to invite you to join in a workspace."
	case errors.Is(err, svc.ErrWorkspaceNotAllowedToCreate):
		return "Workspace not found, please contact system admin to invite you to join in a workspace."
	case errors.Is(err, svc.ErrAccountRegistrationFailed):
		return "Account registration failed."
	case errors.Is(err, svc.ErrInvalidAssertion):
		return "OAuth process failed."
	default:
		return "Login failed."
	}
}

func (c *OAuthController) redirectError(w http.ResponseWriter, r *http.Request, message string) {
	q := url.Values{}
	q.Set("message", message)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, fmt.Sprintf("%s/signin?%s", c.webURL, q.Encode()), http.StatusFound)
}

// parseAcceptLanguage extrae los tags en orden de aparición, ignorando
// q-values (el header ya viene ordenado por los navegadores).
func parseAcceptLanguage(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		tag, _, _ := strings.Cut(strings.TrimSpace(p), ";")
		if tag = strings.TrimSpace(tag); tag != "" && tag != "*" {
			out = append(out, tag)
		}
	}
	return out
}

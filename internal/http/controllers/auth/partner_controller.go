package auth

import (
	"errors"
	"net/http"
	"strings"

	httperrors "github.com/gofancyever/dify/internal/http/errors"
	svc "github.com/gofancyever/dify/internal/http/services/auth"
	"github.com/gofancyever/dify/internal/metrics"
	"github.com/gofancyever/dify/internal/oauth/partner"
	"github.com/gofancyever/dify/internal/observability/logger"
)

// PartnerController intercambia un bearer token del partner por una sesión
// de consola. A diferencia del flujo OAuth no hay redirect: la respuesta es
// JSON directo.
type PartnerController struct {
	client    *partner.Client
	provision svc.ProvisionService
	tokens    svc.TokenService
}

// NewPartnerController creates a new partner controller.
func NewPartnerController(client *partner.Client, provision svc.ProvisionService, tokens svc.TokenService) *PartnerController {
	return &PartnerController{client: client, provision: provision, tokens: tokens}
}

// Token maneja POST /console/api/oauth/partner/token.
func (c *PartnerController) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("PartnerController.Token"))

	token := bearerToken(r)
	if token == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("bearer token required"))
		return
	}

	info, err := c.client.Introspect(ctx, token)
	if err != nil {
		log.Warn("partner introspection failed", logger.Err(err))
		// upstream caído o respuesta indecodificable no es culpa del bearer
		if errors.Is(err, svc.ErrIdentityExchangeFailed) {
			httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("partner introspection unavailable"))
			return
		}
		httperrors.WriteError(w, httperrors.ErrTokenInvalid)
		return
	}

	account, err := c.provision.ResolveAndProvision(ctx, info.Provider, svc.IdentityAssertion{
		Provider:  info.Provider,
		SubjectID: info.SubjectID,
		Email:     info.Email,
		Name:      info.Name,
	}, parseAcceptLanguage(r.Header.Get("Accept-Language")))
	if err != nil {
		log.Warn("partner account resolution failed", logger.Err(err))
		switch {
		case errors.Is(err, svc.ErrAccountBanned):
			httperrors.WriteError(w, httperrors.ErrAccountBanned)
		case errors.Is(err, svc.ErrAccountNotFound):
			httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("account not found"))
		case errors.Is(err, svc.ErrWorkspaceNotAllowedToCreate):
			httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("workspace creation not allowed"))
		default:
			httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		}
		return
	}

	if err := c.provision.Activate(ctx, account); err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	pair, err := c.tokens.IssueTokens(ctx, account)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	metrics.Logins.WithLabelValues(info.Provider, "success").Inc()

	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, http.StatusOK, pair)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

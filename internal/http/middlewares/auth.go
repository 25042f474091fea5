package middlewares

import (
	"context"
	"net/http"
	"strings"

	httperrors "github.com/gofancyever/dify/internal/http/errors"
	svcapps "github.com/gofancyever/dify/internal/http/services/apps"
	svcauth "github.com/gofancyever/dify/internal/http/services/auth"
	"github.com/gofancyever/dify/internal/metrics"
	"github.com/gofancyever/dify/internal/observability/logger"
)

// Identity es el principal autenticado del request. Según el middleware que
// la pobló trae cuenta (sesión de consola) o app (api key de servicio).
type Identity struct {
	AccountID string
	TenantID  string
	AppID     string
}

type ctxKeyIdentity struct{}

// IdentityFrom devuelve la identidad autenticada del contexto.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return id, ok
}

// AccessTokenParser valida access tokens de consola.
type AccessTokenParser interface {
	ParseAccessToken(token string) (*svcauth.AccessClaims, error)
}

// ConsoleAuth exige un access token JWT de consola con tenant activo.
func ConsoleAuth(parser AccessTokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if token == "" {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}

			claims, err := parser.ParseAccessToken(token)
			if err != nil {
				httperrors.WriteError(w, httperrors.ErrTokenInvalid)
				return
			}

			ident := Identity{
				AccountID: claims.Subject,
				TenantID:  claims.TenantID,
			}
			ctx := context.WithValue(r.Context(), ctxKeyIdentity{}, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceAPIAuth exige una api key de app ("app-...") en el Authorization
// header. La identidad resultante es la app, no una cuenta.
func ServiceAPIAuth(keys svcapps.APIKeyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if token == "" {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}

			key, err := keys.Validate(r.Context(), token)
			if err != nil {
				metrics.APIKeyValidations.WithLabelValues("rejected").Inc()
				logger.From(r.Context()).Debug("api key rejected",
					logger.Component("middlewares.auth"),
					logger.Err(err),
				)
				httperrors.WriteError(w, httperrors.ErrTokenInvalid)
				return
			}
			metrics.APIKeyValidations.WithLabelValues("accepted").Inc()

			ident := Identity{
				TenantID: key.TenantID,
				AppID:    key.AppID,
			}
			ctx := context.WithValue(r.Context(), ctxKeyIdentity{}, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Package router define las rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	appsctrl "github.com/gofancyever/dify/internal/http/controllers/apps"
	authctrl "github.com/gofancyever/dify/internal/http/controllers/auth"
	healthctrl "github.com/gofancyever/dify/internal/http/controllers/health"
	httperrors "github.com/gofancyever/dify/internal/http/errors"
	mw "github.com/gofancyever/dify/internal/http/middlewares"
	svcapps "github.com/gofancyever/dify/internal/http/services/apps"
	"github.com/gofancyever/dify/internal/metrics"
	"github.com/gofancyever/dify/internal/rate"
)

// Deps contiene las dependencias para armar el router completo.
type Deps struct {
	OAuth   *authctrl.OAuthController
	Partner *authctrl.PartnerController
	Apps    *appsctrl.Controller
	Info    *appsctrl.InfoController
	Health  *healthctrl.Controller

	TokenParser mw.AccessTokenParser
	APIKeys     svcapps.APIKeyService
	RateLimiter rate.Limiter

	// PartnerEnabled apaga la ruta del partner cuando no hay upstream.
	PartnerEnabled bool
}

// New arma el router chi con todos los middlewares y rutas.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logging)
	r.Use(mw.Metrics)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// observabilidad
	r.Get("/healthz", d.Health.Live)
	r.Get("/readyz", d.Health.Ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// consola: login OAuth y sesiones
	r.Route("/console/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if d.RateLimiter != nil {
				r.Use(mw.RateLimit(d.RateLimiter, "oauth"))
			}
			r.Get("/oauth/login/{provider}", d.OAuth.Login)
			r.Get("/oauth/authorize/{provider}", d.OAuth.Callback)
			if d.PartnerEnabled {
				r.Post("/oauth/partner/token", d.Partner.Token)
			}
		})
		r.Post("/refresh-token", d.OAuth.Refresh)
	})

	// gestión de apps: requiere sesión de consola
	r.Route("/v1/apps", func(r chi.Router) {
		r.Use(mw.ConsoleAuth(d.TokenParser))
		r.Post("/", d.Apps.Create)
		r.Get("/", d.Apps.List)
		r.Get("/{appID}", d.Apps.Get)
		r.Delete("/{appID}", d.Apps.Delete)
		r.Post("/{appID}/api-keys", d.Apps.IssueKey)
		r.Get("/{appID}/api-keys", d.Apps.ListKeys)
		r.Delete("/{appID}/api-keys/{keyID}", d.Apps.RevokeKey)
	})

	// service api: requiere api key de app
	r.Group(func(r chi.Router) {
		r.Use(mw.ServiceAPIAuth(d.APIKeys))
		r.Get("/v1/info", d.Info.Info)
		r.Get("/v1/parameters", d.Info.Parameters)
	})

	return r
}

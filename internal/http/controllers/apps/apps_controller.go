// Package apps contains the service-API controllers for app management and
// API key issuance.
package apps

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/gofancyever/dify/internal/http/errors"
	"github.com/gofancyever/dify/internal/http/middlewares"
	svc "github.com/gofancyever/dify/internal/http/services/apps"
	"github.com/gofancyever/dify/internal/store/core"
)

// Controller maneja las rutas /v1/apps.
type Controller struct {
	apps svc.AppService
	keys svc.APIKeyService
}

// NewController creates a new apps controller.
func NewController(apps svc.AppService, keys svc.APIKeyService) *Controller {
	return &Controller{apps: apps, keys: keys}
}

type appResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Mode           string `json:"mode"`
	Icon           string `json:"icon"`
	IconBackground string `json:"icon_background"`
	EnableSite     bool   `json:"enable_site"`
	EnableAPI      bool   `json:"enable_api"`
	CreatedAt      int64  `json:"created_at"`
}

func toAppResponse(a *core.App) appResponse {
	return appResponse{
		ID:             a.ID,
		Name:           a.Name,
		Description:    a.Description,
		Mode:           a.Mode,
		Icon:           a.Icon,
		IconBackground: a.IconBackground,
		EnableSite:     a.EnableSite,
		EnableAPI:      a.EnableAPI,
		CreatedAt:      a.CreatedAt.Unix(),
	}
}

// Create maneja POST /v1/apps.
func (c *Controller) Create(w http.ResponseWriter, r *http.Request) {
	ident, ok := middlewares.IdentityFrom(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	var in svc.CreateAppInput
	if !httperrors.ReadJSON(w, r, &in) {
		return
	}

	app, err := c.apps.Create(r.Context(), ident.TenantID, ident.AccountID, in)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrInvalidMode), errors.Is(err, svc.ErrInvalidName):
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail(err.Error()))
		case errors.Is(err, svc.ErrTenantMissing):
			httperrors.WriteError(w, httperrors.ErrForbidden)
		default:
			httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		}
		return
	}
	httperrors.WriteJSON(w, http.StatusCreated, toAppResponse(app))
}

// Get maneja GET /v1/apps/{appID}.
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	ident, ok := middlewares.IdentityFrom(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	app, err := c.apps.Get(r.Context(), ident.TenantID, chi.URLParam(r, "appID"))
	if err != nil {
		c.writeAppError(w, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, toAppResponse(app))
}

// List maneja GET /v1/apps.
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	ident, ok := middlewares.IdentityFrom(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	apps, err := c.apps.List(r.Context(), ident.TenantID)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	out := make([]appResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toAppResponse(a))
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]any{"data": out})
}

// Delete maneja DELETE /v1/apps/{appID}.
func (c *Controller) Delete(w http.ResponseWriter, r *http.Request) {
	ident, ok := middlewares.IdentityFrom(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	if err := c.apps.Delete(r.Context(), ident.TenantID, chi.URLParam(r, "appID")); err != nil {
		c.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type apiKeyResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	LastFour   string `json:"last_four"`
	CreatedAt  int64  `json:"created_at"`
	LastUsedAt int64  `json:"last_used_at,omitempty"`
}

// IssueKey maneja POST /v1/apps/{appID}/api-keys.
func (c *Controller) IssueKey(w http.ResponseWriter, r *http.Request) {
	ident, ok := middlewares.IdentityFrom(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	app, err := c.apps.Get(r.Context(), ident.TenantID, chi.URLParam(r, "appID"))
	if err != nil {
		c.writeAppError(w, err)
		return
	}

	issued, err := c.keys.Issue(r.Context(), app)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	// única respuesta que contiene el token en claro
	httperrors.WriteJSON(w, http.StatusCreated, apiKeyResponse{
		ID:        issued.Key.ID,
		Type:      issued.Key.Type,
		Token:     issued.Token,
		LastFour:  issued.Key.LastFour,
		CreatedAt: issued.Key.CreatedAt.Unix(),
	})
}

// ListKeys maneja GET /v1/apps/{appID}/api-keys.
func (c *Controller) ListKeys(w http.ResponseWriter, r *http.Request) {
	ident, ok := middlewares.IdentityFrom(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	app, err := c.apps.Get(r.Context(), ident.TenantID, chi.URLParam(r, "appID"))
	if err != nil {
		c.writeAppError(w, err)
		return
	}

	keys, err := c.keys.List(r.Context(), app.ID)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		item := apiKeyResponse{
			ID:        k.ID,
			Type:      k.Type,
			LastFour:  k.LastFour,
			CreatedAt: k.CreatedAt.Unix(),
		}
		if k.LastUsedAt != nil {
			item.LastUsedAt = k.LastUsedAt.Unix()
		}
		out = append(out, item)
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]any{"data": out})
}

// RevokeKey maneja DELETE /v1/apps/{appID}/api-keys/{keyID}.
func (c *Controller) RevokeKey(w http.ResponseWriter, r *http.Request) {
	ident, ok := middlewares.IdentityFrom(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	app, err := c.apps.Get(r.Context(), ident.TenantID, chi.URLParam(r, "appID"))
	if err != nil {
		c.writeAppError(w, err)
		return
	}

	if err := c.keys.Revoke(r.Context(), app.ID, chi.URLParam(r, "keyID")); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			httperrors.WriteError(w, httperrors.ErrNotFound)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrAppNotFound):
		httperrors.WriteError(w, httperrors.ErrAppNotFound)
	case errors.Is(err, svc.ErrTenantMissing):
		httperrors.WriteError(w, httperrors.ErrForbidden)
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}

package apps

import (
	"net/http"

	httperrors "github.com/gofancyever/dify/internal/http/errors"
	"github.com/gofancyever/dify/internal/http/middlewares"
	svc "github.com/gofancyever/dify/internal/http/services/apps"
	"github.com/gofancyever/dify/internal/store/core"
)

// InfoController sirve los metadatos de la app dueña de la api key
// presentada. Es la superficie autenticada por api key, no por sesión.
type InfoController struct {
	apps svc.AppService
}

// NewInfoController creates an info controller.
func NewInfoController(apps svc.AppService) *InfoController {
	return &InfoController{apps: apps}
}

// appForIdentity resuelve la app de la identidad autenticada y aplica el
// flag enable_api. Escribe la respuesta de error si algo falla.
func (c *InfoController) appForIdentity(w http.ResponseWriter, r *http.Request) (*core.App, bool) {
	ident, ok := middlewares.IdentityFrom(r.Context())
	if !ok || ident.AppID == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return nil, false
	}

	app, err := c.apps.Get(r.Context(), ident.TenantID, ident.AppID)
	if err != nil {
		c.writeErr(w, err)
		return nil, false
	}
	if !app.EnableAPI {
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("api access disabled for this app"))
		return nil, false
	}
	return app, true
}

// Info maneja GET /v1/info.
func (c *InfoController) Info(w http.ResponseWriter, r *http.Request) {
	app, ok := c.appForIdentity(w, r)
	if !ok {
		return
	}

	httperrors.WriteJSON(w, http.StatusOK, map[string]any{
		"name":        app.Name,
		"description": app.Description,
		"mode":        app.Mode,
		"tags":        []string{},
	})
}

// Parameters maneja GET /v1/parameters: los parámetros de runtime que el
// cliente de la Service API necesita para renderizar la app.
func (c *InfoController) Parameters(w http.ResponseWriter, r *http.Request) {
	app, ok := c.appForIdentity(w, r)
	if !ok {
		return
	}

	httperrors.WriteJSON(w, http.StatusOK, map[string]any{
		"opening_statement":                "",
		"suggested_questions":              []string{},
		"suggested_questions_after_answer": map[string]any{"enabled": false},
		"speech_to_text":                   map[string]any{"enabled": false},
		"retriever_resource":               map[string]any{"enabled": false},
		"more_like_this":                   map[string]any{"enabled": false},
		"user_input_form":                  []any{},
		"mode":                             app.Mode,
		"system_parameters": map[string]any{
			"file_size_limit":       15,
			"image_file_size_limit": 10,
		},
	})
}

func (c *InfoController) writeErr(w http.ResponseWriter, err error) {
	switch err {
	case svc.ErrAppNotFound:
		httperrors.WriteError(w, httperrors.ErrAppNotFound)
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}

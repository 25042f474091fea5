// Package health expone los endpoints de liveness y readiness.
package health

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/gofancyever/dify/internal/http/errors"
	"github.com/gofancyever/dify/internal/store/core"
)

// Controller responde healthz/readyz.
type Controller struct {
	repo    core.Repository
	version string
}

// NewController creates a health controller.
func NewController(repo core.Repository, version string) *Controller {
	return &Controller{repo: repo, version: version}
}

// Live responde 200 mientras el proceso esté vivo.
// GET /healthz
func (c *Controller) Live(w http.ResponseWriter, r *http.Request) {
	httperrors.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": c.version,
	})
}

// Ready verifica las dependencias (storage) con timeout corto.
// GET /readyz
func (c *Controller) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := c.repo.Ping(ctx); err != nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

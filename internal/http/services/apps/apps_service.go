// Package apps implementa la gestión de apps por tenant y sus credenciales
// de API de servicio.
package apps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gofancyever/dify/internal/observability/logger"
	"github.com/gofancyever/dify/internal/store/core"
)

// Errores del servicio de apps.
var (
	ErrAppNotFound   = errors.New("app not found")
	ErrInvalidMode   = errors.New("invalid app mode")
	ErrInvalidName   = errors.New("invalid app name")
	ErrTenantMissing = errors.New("tenant required")
)

// CreateAppInput contains the fields accepted on app creation.
type CreateAppInput struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Mode           string `json:"mode"`
	Icon           string `json:"icon"`
	IconBackground string `json:"icon_background"`
}

// AppService gestiona el ciclo de vida de apps dentro de un tenant.
type AppService interface {
	Create(ctx context.Context, tenantID, accountID string, in CreateAppInput) (*core.App, error)
	Get(ctx context.Context, tenantID, appID string) (*core.App, error)
	List(ctx context.Context, tenantID string) ([]*core.App, error)
	Delete(ctx context.Context, tenantID, appID string) error
}

type appService struct {
	repo core.Repository
}

// NewAppService creates an AppService backed by the given repository.
func NewAppService(repo core.Repository) AppService {
	return &appService{repo: repo}
}

func (s *appService) Create(ctx context.Context, tenantID, accountID string, in CreateAppInput) (*core.App, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("apps"))

	if tenantID == "" {
		return nil, ErrTenantMissing
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 255 {
		return nil, fmt.Errorf("%w: name must be 1-255 chars", ErrInvalidName)
	}
	if !isAllowedMode(in.Mode) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, in.Mode)
	}

	app := &core.App{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		Name:           name,
		Description:    in.Description,
		Mode:           in.Mode,
		Icon:           in.Icon,
		IconBackground: in.IconBackground,
		EnableSite:     true,
		EnableAPI:      true,
		CreatedBy:      accountID,
	}
	if err := s.repo.CreateApp(ctx, app); err != nil {
		return nil, err
	}

	log.Info("app created",
		logger.AppID(app.ID),
		logger.TenantID(tenantID),
		logger.String("mode", app.Mode),
	)
	return app, nil
}

// Get devuelve la app solo si pertenece al tenant; una app de otro tenant es
// indistinguible de una inexistente.
func (s *appService) Get(ctx context.Context, tenantID, appID string) (*core.App, error) {
	app, err := s.repo.GetAppByID(ctx, appID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrAppNotFound
	}
	if err != nil {
		return nil, err
	}
	if app.TenantID != tenantID {
		return nil, ErrAppNotFound
	}
	return app, nil
}

func (s *appService) List(ctx context.Context, tenantID string) ([]*core.App, error) {
	if tenantID == "" {
		return nil, ErrTenantMissing
	}
	return s.repo.ListAppsByTenant(ctx, tenantID)
}

func (s *appService) Delete(ctx context.Context, tenantID, appID string) error {
	if _, err := s.Get(ctx, tenantID, appID); err != nil {
		return err
	}
	if err := s.repo.DeleteApp(ctx, appID); err != nil {
		return err
	}
	logger.From(ctx).Info("app deleted",
		logger.Layer("service"),
		logger.Component("apps"),
		logger.AppID(appID),
		logger.TenantID(tenantID),
	)
	return nil
}

func isAllowedMode(mode string) bool {
	for _, m := range core.AllowedAppModes {
		if m == mode {
			return true
		}
	}
	return false
}

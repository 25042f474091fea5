package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/gofancyever/dify/internal/metrics"
	"github.com/gofancyever/dify/internal/notify"
	"github.com/gofancyever/dify/internal/observability/logger"
	"github.com/gofancyever/dify/internal/store/core"
)

const fallbackAccountName = "Dify"

// ProvisionDeps contains dependencies for the provisioning service.
type ProvisionDeps struct {
	Repo     core.Repository
	Features FeatureService
	Notifier *notify.Notifier

	// SupportedLanguages en orden: el primero es el fallback determinista.
	SupportedLanguages []string
}

type provisionService struct {
	repo      core.Repository
	features  FeatureService
	notifier  *notify.Notifier
	languages []string
}

// NewProvisionService creates a new ProvisionService.
func NewProvisionService(d ProvisionDeps) ProvisionService {
	langs := d.SupportedLanguages
	if len(langs) == 0 {
		langs = []string{"en-US"}
	}
	return &provisionService{
		repo:      d.Repo,
		features:  d.Features,
		notifier:  d.Notifier,
		languages: langs,
	}
}

// ResolveAndProvision resuelve la identidad externa a exactamente una
// cuenta. El orden de lookup (link primero, email después) y el orden de
// chequeos de política se preservan tal cual; no hay merge si ambos caminos
// pudieran resolver cuentas distintas.
func (s *provisionService) ResolveAndProvision(ctx context.Context, provider string, assertion IdentityAssertion, langPrefs []string) (*core.Account, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.provision"))

	if provider == "" || assertion.SubjectID == "" {
		return nil, fmt.Errorf("%w: provider and subject id required", ErrInvalidAssertion)
	}
	if _, err := mail.ParseAddress(assertion.Email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	// Fase de lookup: link (provider, subject) primero, email después.
	// El primer match gana.
	account, err := s.lookup(ctx, provider, assertion)
	if err != nil {
		return nil, err
	}

	// Una cuenta baneada corta el flujo antes de cualquier mutación de
	// tenant o link.
	if account != nil && account.Status == core.AccountBanned {
		log.Warn("banned account attempted login",
			logger.AccountID(account.ID),
			logger.Provider(provider),
		)
		return nil, ErrAccountBanned
	}

	if account != nil {
		if err := s.ensureWorkspace(ctx, account); err != nil {
			return nil, err
		}
	}

	if account == nil {
		account, err = s.register(ctx, provider, assertion, langPrefs)
		if err != nil {
			return nil, err
		}
	}

	// Fase de link: upsert idempotente en ambas ramas.
	link := &core.IdentityLink{
		ID:        uuid.NewString(),
		Provider:  provider,
		SubjectID: assertion.SubjectID,
		AccountID: account.ID,
	}
	if err := s.repo.UpsertIdentityLink(ctx, link); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return nil, fmt.Errorf("%w: identity already linked elsewhere", ErrAccountRegistrationFailed)
		}
		return nil, err
	}

	log.Info("identity resolved",
		logger.AccountID(account.ID),
		logger.Provider(provider),
	)
	return account, nil
}

func (s *provisionService) lookup(ctx context.Context, provider string, assertion IdentityAssertion) (*core.Account, error) {
	link, err := s.repo.GetIdentityLink(ctx, provider, assertion.SubjectID)
	switch {
	case err == nil:
		return s.repo.GetAccountByID(ctx, link.AccountID)
	case errors.Is(err, core.ErrNotFound):
		// fall through al lookup por email
	default:
		return nil, err
	}

	account, err := s.repo.GetAccountByEmail(ctx, assertion.Email)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return account, err
}

// ensureWorkspace garantiza que la cuenta existente tenga al menos un
// tenant. La creación de tenant + membership owner + current_tenant_id es
// una sola transacción; la notificación sale solo después del commit.
func (s *provisionService) ensureWorkspace(ctx context.Context, account *core.Account) error {
	tenants, err := s.repo.ListTenantsByAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	if len(tenants) > 0 {
		return nil
	}

	if !s.features.SystemFeatures().AllowCreateWorkspace {
		return ErrWorkspaceNotAllowedToCreate
	}

	tenant := &core.Tenant{
		ID:     uuid.NewString(),
		Name:   fmt.Sprintf("%s's Workspace", account.Name),
		Plan:   "basic",
		Status: "normal",
	}
	if err := s.repo.ProvisionTenant(ctx, tenant, account); err != nil {
		return err
	}
	metrics.TenantsProvisioned.Inc()

	s.notifier.Publish(notify.Event{
		Type:       notify.EventTenantCreated,
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		AccountID:  account.ID,
		Email:      account.Email,
	})
	return nil
}

func (s *provisionService) register(ctx context.Context, provider string, assertion IdentityAssertion, langPrefs []string) (*core.Account, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.provision"))

	if !s.features.SystemFeatures().AllowRegister {
		return nil, ErrAccountNotFound
	}

	name := assertion.Name
	if name == "" {
		name = fallbackAccountName
	}

	account := &core.Account{
		ID:                uuid.NewString(),
		Email:             assertion.Email,
		Name:              name,
		Status:            core.AccountPending,
		InterfaceLanguage: matchLanguage(langPrefs, s.languages),
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		// Conflicto de unicidad: carrera en doble-submit del callback.
		// El caller reintenta re-resolviendo el flujo completo.
		if errors.Is(err, core.ErrConflict) {
			return nil, fmt.Errorf("%w: duplicate email", ErrAccountRegistrationFailed)
		}
		return nil, err
	}

	log.Info("account registered",
		logger.AccountID(account.ID),
		logger.Provider(provider),
		logger.String("language", account.InterfaceLanguage),
	)

	s.notifier.Publish(notify.Event{
		Type:      notify.EventAccountRegistered,
		AccountID: account.ID,
		Email:     account.Email,
	})

	// La cuenta recién creada aún no tiene workspace; la misma política de
	// auto-creación aplica en esta rama.
	if err := s.ensureWorkspace(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Activate transiciona PENDING → ACTIVE con initialized_at. No-op si la
// cuenta ya está activa.
func (s *provisionService) Activate(ctx context.Context, account *core.Account) error {
	if account.Status != core.AccountPending {
		return nil
	}
	now := time.Now().UTC()
	account.Status = core.AccountActive
	account.InitializedAt = &now
	return s.repo.UpdateAccount(ctx, account)
}

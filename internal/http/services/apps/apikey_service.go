package apps

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gofancyever/dify/internal/cache"
	"github.com/gofancyever/dify/internal/observability/logger"
	"github.com/gofancyever/dify/internal/store/core"
)

const (
	apiKeyPrefix   = "app-"
	apiKeyType     = "app"
	apiKeyCacheTTL = 5 * time.Minute
	apiKeyCacheNS  = "apikey:"
)

// ErrAPIKeyInvalid indica un token desconocido o revocado.
var ErrAPIKeyInvalid = errors.New("api key invalid")

// IssuedKey es la única vista que incluye el token en claro; existe solo en
// la respuesta de creación.
type IssuedKey struct {
	Key   *core.APIKey
	Token string
}

// APIKeyService emite y valida credenciales de la service API. Solo se
// persiste el hash SHA-256 del token.
type APIKeyService interface {
	Issue(ctx context.Context, app *core.App) (*IssuedKey, error)
	List(ctx context.Context, appID string) ([]*core.APIKey, error)
	Revoke(ctx context.Context, appID, keyID string) error
	// Validate resuelve un token presentado a su registro, tocando
	// last_used_at. Pasa por cache para no golpear storage en cada request.
	Validate(ctx context.Context, token string) (*core.APIKey, error)
}

type apiKeyService struct {
	repo  core.Repository
	cache cache.Cache
}

// NewAPIKeyService creates an APIKeyService.
func NewAPIKeyService(repo core.Repository, c cache.Cache) APIKeyService {
	return &apiKeyService{repo: repo, cache: c}
}

func (s *apiKeyService) Issue(ctx context.Context, app *core.App) (*IssuedKey, error) {
	token := generateToken()
	hash := hashToken(token)

	key := &core.APIKey{
		ID:        uuid.NewString(),
		AppID:     app.ID,
		TenantID:  app.TenantID,
		Type:      apiKeyType,
		TokenHash: hash,
		LastFour:  token[len(token)-4:],
	}
	if err := s.repo.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	logger.From(ctx).Info("api key issued",
		logger.Layer("service"),
		logger.Component("apps.apikey"),
		logger.AppID(app.ID),
		logger.ID(key.ID),
	)
	return &IssuedKey{Key: key, Token: token}, nil
}

func (s *apiKeyService) List(ctx context.Context, appID string) ([]*core.APIKey, error) {
	return s.repo.ListAPIKeysByApp(ctx, appID)
}

func (s *apiKeyService) Revoke(ctx context.Context, appID, keyID string) error {
	keys, err := s.repo.ListAPIKeysByApp(ctx, appID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == keyID {
			// invalida el cache antes del delete para cerrar la ventana
			s.cache.Delete(apiKeyCacheNS + k.TokenHash)
			return s.repo.DeleteAPIKey(ctx, keyID)
		}
	}
	return core.ErrNotFound
}

func (s *apiKeyService) Validate(ctx context.Context, token string) (*core.APIKey, error) {
	if len(token) < len(apiKeyPrefix)+8 || token[:len(apiKeyPrefix)] != apiKeyPrefix {
		return nil, ErrAPIKeyInvalid
	}
	hash := hashToken(token)

	// hit: el registro completo vive serializado en cache, sin ir a storage
	if raw, ok := s.cache.Get(apiKeyCacheNS + hash); ok {
		var cached core.APIKey
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		s.cache.Delete(apiKeyCacheNS + hash)
	}

	key, err := s.repo.GetAPIKeyByHash(ctx, hash)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrAPIKeyInvalid
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.TouchAPIKey(ctx, key.ID, now); err != nil {
		logger.From(ctx).Warn("api key touch failed",
			logger.Component("apps.apikey"),
			logger.Err(err),
		)
	}
	if buf, err := json.Marshal(key); err == nil {
		s.cache.Set(apiKeyCacheNS+hash, buf, apiKeyCacheTTL)
	}
	return key, nil
}

// generateToken produce "app-" + 24 bytes aleatorios en base64 url-safe.
func generateToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

package apps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/gofancyever/dify/internal/cache"
	mw "github.com/gofancyever/dify/internal/http/middlewares"
	svcapps "github.com/gofancyever/dify/internal/http/services/apps"
	svcauth "github.com/gofancyever/dify/internal/http/services/auth"
	"github.com/gofancyever/dify/internal/store/core"
	"github.com/gofancyever/dify/internal/store/memory"
)

type fixture struct {
	router      http.Handler
	accessToken string
	apiKeys     svcapps.APIKeyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memory.New()
	c := cache.NewMemory(time.Minute)

	tid := "t1"
	account := &core.Account{
		ID:              "a1",
		Email:           "ana@example.com",
		Name:            "Ana",
		Status:          core.AccountActive,
		CurrentTenantID: &tid,
	}
	require.NoError(t, repo.CreateAccount(context.Background(), account))

	tokens := svcauth.NewTokenService(svcauth.TokenDeps{
		Repo:   repo,
		Cache:  c,
		Secret: "test-secret",
		Issuer: "dify-console",
	})
	pair, err := tokens.IssueTokens(context.Background(), account)
	require.NoError(t, err)

	appSvc := svcapps.NewAppService(repo)
	keySvc := svcapps.NewAPIKeyService(repo, c)
	ctrl := NewController(appSvc, keySvc)
	info := NewInfoController(appSvc)

	r := chi.NewRouter()
	r.Route("/v1/apps", func(r chi.Router) {
		r.Use(mw.ConsoleAuth(tokens))
		r.Post("/", ctrl.Create)
		r.Get("/", ctrl.List)
		r.Get("/{appID}", ctrl.Get)
		r.Delete("/{appID}", ctrl.Delete)
		r.Post("/{appID}/api-keys", ctrl.IssueKey)
		r.Get("/{appID}/api-keys", ctrl.ListKeys)
		r.Delete("/{appID}/api-keys/{keyID}", ctrl.RevokeKey)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.ServiceAPIAuth(keySvc))
		r.Get("/v1/info", info.Info)
		r.Get("/v1/parameters", info.Parameters)
	})

	return &fixture{router: r, accessToken: pair.AccessToken, apiKeys: keySvc}
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body != "" {
		rd = strings.NewReader(body)
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAppsAPI_RequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/v1/apps", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, "GET", "/v1/apps", "", "garbage-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAppsAPI_CRUDAndKeys(t *testing.T) {
	f := newFixture(t)

	// create
	rec := f.do(t, "POST", "/v1/apps", `{"name":"My Bot","mode":"chat"}`, f.accessToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID   string `json:"id"`
		Mode string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, "chat", created.Mode)

	// invalid mode rejected
	rec = f.do(t, "POST", "/v1/apps", `{"name":"Bad","mode":"nope"}`, f.accessToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// list
	rec = f.do(t, "GET", "/v1/apps", "", f.accessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), created.ID)

	// issue api key, token shown once
	rec = f.do(t, "POST", "/v1/apps/"+created.ID+"/api-keys", "", f.accessToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	var issued struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.True(t, strings.HasPrefix(issued.Token, "app-"))

	// listing keys never echoes the token
	rec = f.do(t, "GET", "/v1/apps/"+created.ID+"/api-keys", "", f.accessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), issued.Token)

	// the issued key authenticates the service api
	rec = f.do(t, "GET", "/v1/info", "", issued.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "My Bot")

	rec = f.do(t, "GET", "/v1/parameters", "", issued.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "opening_statement")

	// revoke closes the door
	rec = f.do(t, "DELETE", "/v1/apps/"+created.ID+"/api-keys/"+issued.ID, "", f.accessToken)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, "GET", "/v1/info", "", issued.Token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// delete app
	rec = f.do(t, "DELETE", "/v1/apps/"+created.ID, "", f.accessToken)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, "GET", "/v1/apps/"+created.ID, "", f.accessToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppsAPI_ForeignTenantIsolation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/v1/apps", `{"name":"Mine","mode":"workflow"}`, f.accessToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// a second fixture shares nothing with the first
	other := newFixture(t)
	rec = other.do(t, "GET", "/v1/apps/"+created.ID, "", other.accessToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

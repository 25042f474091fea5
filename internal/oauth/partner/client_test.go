package partner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofancyever/dify/internal/oauth"
)

func newPartnerServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/getInfo" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("missing bearer header, got %q", got)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestIntrospect_Success(t *testing.T) {
	srv := newPartnerServer(t, 200, `{
		"code": 200000,
		"message": "ok",
		"result": {"user": {"id": 42, "userName": "jdoe", "nickName": "John", "email": ""}}
	}`)
	defer srv.Close()

	c := New(srv.URL, "")
	info, err := c.Introspect(context.Background(), "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Provider != "partner" || info.SubjectID != "42" {
		t.Fatalf("unexpected identity: %+v", info)
	}
	if info.Email != "jdoe@dify.ai" {
		t.Fatalf("expected synthesized email, got %q", info.Email)
	}
	if info.Name != "John" {
		t.Fatalf("expected nickname, got %q", info.Name)
	}
}

func TestIntrospect_KeepsProvidedEmail(t *testing.T) {
	srv := newPartnerServer(t, 200, `{
		"code": 200000,
		"result": {"user": {"id": 7, "userName": "ana", "nickName": "", "email": "ana@corp.com"}}
	}`)
	defer srv.Close()

	c := New(srv.URL, "custom.example")
	info, err := c.Introspect(context.Background(), "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Email != "ana@corp.com" {
		t.Fatalf("provided email must win, got %q", info.Email)
	}
	if info.Name != "ana" {
		t.Fatalf("expected userName fallback, got %q", info.Name)
	}
}

func TestIntrospect_RejectsBusinessError(t *testing.T) {
	srv := newPartnerServer(t, 200, `{"code": 500001, "message": "token expired"}`)
	defer srv.Close()

	_, err := New(srv.URL, "").Introspect(context.Background(), "tok-1")
	if err == nil {
		t.Fatal("expected business code error")
	}
	// un rechazo del upstream es una respuesta válida, no una falla de exchange
	if errors.Is(err, oauth.ErrExchangeFailed) {
		t.Fatalf("business rejection must not be typed as exchange failure: %v", err)
	}
}

func TestIntrospect_TypesTransportFailures(t *testing.T) {
	srv := newPartnerServer(t, 502, `bad gateway`)
	defer srv.Close()

	_, err := New(srv.URL, "").Introspect(context.Background(), "tok-1")
	if !errors.Is(err, oauth.ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed on upstream 502, got %v", err)
	}
}

func TestIntrospect_TypesDecodeFailures(t *testing.T) {
	srv := newPartnerServer(t, 200, `not json at all`)
	defer srv.Close()

	_, err := New(srv.URL, "").Introspect(context.Background(), "tok-1")
	if !errors.Is(err, oauth.ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed on undecodable body, got %v", err)
	}
}

func TestIntrospect_RejectsMissingIdentity(t *testing.T) {
	srv := newPartnerServer(t, 200, `{"code": 200000, "result": {"user": {"id": 1, "userName": ""}}}`)
	defer srv.Close()

	if _, err := New(srv.URL, "").Introspect(context.Background(), "tok-1"); err == nil {
		t.Fatal("expected missing identity error")
	}
}

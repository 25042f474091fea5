// Package oauth defines the contract for external identity providers and a
// registry keyed by provider name.
package oauth

import (
	"context"
	"errors"
	"sort"
)

// UserInfo is the normalized identity assertion every adapter produces.
// SubjectID is the provider-stable external identifier; Email must be
// non-empty after a successful exchange.
type UserInfo struct {
	Provider  string
	SubjectID string
	Email     string
	Name      string
}

// Provider exchanges an authorization code for a normalized identity.
type Provider interface {
	// AuthURL builds the provider authorization URL for a login redirect.
	AuthURL(ctx context.Context, state, nonce string) (string, error)

	// Exchange trades the authorization code for user info. nonce is
	// verified where the provider supports it (OIDC).
	Exchange(ctx context.Context, code, nonce string) (*UserInfo, error)
}

var ErrUnknownProvider = errors.New("unknown oauth provider")

// ErrExchangeFailed envuelve fallas de transporte o decode contra el
// proveedor. Un rechazo de negocio (token inválido, usuario sin identidad)
// no lo usa: eso es una respuesta válida del upstream.
var ErrExchangeFailed = errors.New("identity exchange failed")

// Registry holds the configured providers.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok || p == nil {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

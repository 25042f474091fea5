package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// stateSigner firma el parámetro state del flujo OAuth como un JWT HS256 de
// vida corta. El state viaja por el navegador del usuario, así que lleva
// expiración propia además del nonce anti-replay.
type stateSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewStateSigner creates a StateSigner backed by HS256.
func NewStateSigner(secret, issuer string, ttl time.Duration) StateSigner {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &stateSigner{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

type stateJWTClaims struct {
	Provider    string `json:"provider"`
	Nonce       string `json:"nonce"`
	InviteToken string `json:"invite_token,omitempty"`
	jwt.RegisteredClaims
}

func (s *stateSigner) SignState(claims StateClaims) (string, error) {
	now := claims.IssuedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, stateJWTClaims{
		Provider:    claims.Provider,
		Nonce:       claims.Nonce,
		InviteToken: claims.InviteToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	return tok.SignedString(s.secret)
}

func (s *stateSigner) ParseState(token string) (*StateClaims, error) {
	var claims stateJWTClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Provider == "" || claims.Nonce == "" {
		return nil, ErrInvalidState
	}
	out := &StateClaims{
		Provider:    claims.Provider,
		Nonce:       claims.Nonce,
		InviteToken: claims.InviteToken,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// ErrInvalidState señala un state ausente, expirado o con firma inválida.
var ErrInvalidState = errors.New("invalid oauth state")

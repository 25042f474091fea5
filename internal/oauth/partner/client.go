// Package partner implements login via an upstream partner platform: the
// client holds a partner-issued bearer token and we introspect it against
// the partner's admin API to obtain the user identity.
package partner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofancyever/dify/internal/oauth"
)

const okCode = 200000

// Client introspects partner bearer tokens.
type Client struct {
	BaseURL     string
	EmailDomain string // dominio para sintetizar email cuando el partner no lo entrega

	http *http.Client
}

func New(baseURL, emailDomain string) *Client {
	if emailDomain == "" {
		emailDomain = "dify.ai"
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		EmailDomain: emailDomain,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

type introspectResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		User struct {
			ID       json.Number `json:"id"`
			UserName string      `json:"userName"`
			NickName string      `json:"nickName"`
			Email    string      `json:"email"`
		} `json:"user"`
	} `json:"result"`
}

// Introspect resuelve el token del partner a una identidad normalizada.
func (c *Client) Introspect(ctx context.Context, token string) (*oauth.UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/api/admin/getInfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: partner api status %d", oauth.ErrExchangeFailed, resp.StatusCode)
	}

	var ir introspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("%w: decoding partner response: %v", oauth.ErrExchangeFailed, err)
	}
	if ir.Code != okCode {
		return nil, fmt.Errorf("partner api error: %s", ir.Message)
	}

	u := ir.Result.User
	if u.ID.String() == "" || u.UserName == "" {
		return nil, fmt.Errorf("partner response missing user identity")
	}

	name := u.NickName
	if name == "" {
		name = u.UserName
	}
	email := u.Email
	if email == "" {
		// El partner no siempre entrega email; sintetizamos uno estable.
		email = u.UserName + "@" + c.EmailDomain
	}

	id := u.ID.String()
	if n, err := u.ID.Int64(); err == nil {
		id = strconv.FormatInt(n, 10)
	}

	return &oauth.UserInfo{
		Provider:  "partner",
		SubjectID: id,
		Email:     email,
		Name:      name,
	}, nil
}

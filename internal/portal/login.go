package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/subwatch/subwatch/internal/model"
)

// Ensure Exchanger implements model.CredentialExchanger.
var _ model.CredentialExchanger = (*Exchanger)(nil)

// Exchanger performs the portal credential exchange: credentials in, a
// token + cookie + identity bundle out. Login is expensive on the portal
// side; the session manager guarantees it is never called concurrently.
type Exchanger struct {
	client     *Client
	username   string
	password   string
	sessionTTL time.Duration // used when the portal does not report expiry
}

// NewExchanger creates a credential exchanger for the given portal account.
func NewExchanger(client *Client, username, password string, sessionTTL time.Duration) *Exchanger {
	return &Exchanger{
		client:     client,
		username:   username,
		password:   password,
		sessionTTL: sessionTTL,
	}
}

// tokenResponse is the portal's login endpoint payload.
type tokenResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresIn int    `json:"expiresIn"` // seconds, 0 if absent
}

// Login exchanges credentials for a fresh session bundle. Failures are
// reported as *model.AuthError so the caller never confuses them with
// transient fetch problems.
func (e *Exchanger) Login(ctx context.Context) (*model.SessionBundle, error) {
	payload, err := json.Marshal(map[string]string{
		"username": e.username,
		"password": e.password,
	})
	if err != nil {
		return nil, &model.AuthError{Err: err}
	}

	url := e.client.baseURL + "/api/auth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &model.AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.httpClient.Do(req)
	if err != nil {
		return nil, &model.AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.AuthError{
			Err: fmt.Errorf("login returned status %d", resp.StatusCode),
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &model.AuthError{Err: fmt.Errorf("decoding login response: %w", err)}
	}
	if tr.Token == "" {
		return nil, &model.AuthError{Err: fmt.Errorf("login response carried no token")}
	}

	ttl := e.sessionTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	return &model.SessionBundle{
		Token:      tr.Token,
		Cookie:     cookieString(resp.Cookies()),
		Identity:   tr.UserID,
		ObtainedAt: time.Now(),
		TTL:        ttl,
	}, nil
}

// cookieString flattens response cookies into the single header value the
// portal expects echoed back on every request.
func cookieString(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

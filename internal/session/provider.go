// HTTP client for the hosted identity provider. The provider speaks a
// GoTrue-style REST API: password or OAuth grant on /auth/v1/token,
// /auth/v1/logout, and /auth/v1/user for restoring a session.

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// tokenResponse is the JSON response from a successful token grant.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// apiErrorResponse is the provider's structured error payload.
type apiErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

// HTTPProvider implements Provider against the hosted identity service.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string

	changes chan *Session
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider client for the identity service at
// baseURL. apiKey is the deployment's public API key, sent on every call.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		changes:    make(chan *Session, 8),
	}
}

// Changes returns the push channel for session transitions.
func (p *HTTPProvider) Changes() <-chan *Session {
	return p.changes
}

// SignIn performs a password grant and pushes the resulting session on
// the change channel.
func (p *HTTPProvider) SignIn(ctx context.Context, creds Credentials) error {
	payload, err := json.Marshal(map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	log.Debug().Str("email", creds.Email).Msg("Signing in")

	body, err := p.post(ctx, "/auth/v1/token?grant_type=password", payload, "")
	if err != nil {
		return fmt.Errorf("sign-in: %w", err)
	}

	var result tokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse token response: %w", err)
	}
	if result.AccessToken == "" {
		return fmt.Errorf("no access token in response: %s", truncate(string(body), 300))
	}

	p.mu.Lock()
	p.accessToken = result.AccessToken
	p.refreshToken = result.RefreshToken
	p.mu.Unlock()

	log.Info().Str("principal", result.User.ID).Msg("Signed in")
	p.push(&Session{Principal: result.User.ID, AccessToken: result.AccessToken})
	return nil
}

// SignOut revokes the current token and pushes a nil session.
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.accessToken
	p.accessToken = ""
	p.refreshToken = ""
	p.mu.Unlock()

	if token != "" {
		if _, err := p.post(ctx, "/auth/v1/logout", nil, token); err != nil {
			// The local session is already cleared; the server-side
			// revocation failure is not worth failing the caller over.
			log.Warn().Err(err).Msg("Server-side logout failed")
		}
	}

	log.Info().Msg("Signed out")
	p.push(nil)
	return nil
}

// GetSession restores the session for the held token, or nil when signed
// out. Does not push a change event.
func (p *HTTPProvider) GetSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	token := p.accessToken
	p.mu.Unlock()
	if token == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	p.setHeaders(req, token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("parse user response: %w", err)
	}
	return &Session{Principal: user.ID, AccessToken: token}, nil
}

// Refresh exchanges the refresh token for a new access token and pushes
// the refreshed session as a change event.
func (p *HTTPProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	refresh := p.refreshToken
	p.mu.Unlock()
	if refresh == "" {
		return fmt.Errorf("no refresh token held")
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": refresh})
	if err != nil {
		return fmt.Errorf("encode refresh request: %w", err)
	}

	body, err := p.post(ctx, "/auth/v1/token?grant_type=refresh_token", payload, "")
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}

	var result tokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse refresh response: %w", err)
	}
	if result.AccessToken == "" {
		return fmt.Errorf("no access token in refresh response: %s", truncate(string(body), 300))
	}

	p.mu.Lock()
	p.accessToken = result.AccessToken
	p.refreshToken = result.RefreshToken
	p.mu.Unlock()

	log.Debug().Str("principal", result.User.ID).Msg("Session token refreshed")
	p.push(&Session{Principal: result.User.ID, AccessToken: result.AccessToken})
	return nil
}

// post sends a JSON POST and returns the response body, converting
// non-2xx statuses into errors carrying the provider's message.
func (p *HTTPProvider) post(ctx context.Context, path string, payload []byte, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.setHeaders(req, token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func (p *HTTPProvider) setHeaders(req *http.Request, token string) {
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// push delivers a change event without blocking the caller. A full
// channel means no Tracker is draining events; dropping is safe because
// the next GetSession reflects the same state.
func (p *HTTPProvider) push(sess *Session) {
	select {
	case p.changes <- sess:
	default:
		log.Warn().Msg("Dropping session change event: no subscriber draining")
	}
}

// apiError extracts the provider's error message from a failed response.
func apiError(status int, body []byte) error {
	var errResp apiErrorResponse
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.ErrorDescription != "":
			return fmt.Errorf("identity provider error: %s", errResp.ErrorDescription)
		case errResp.Msg != "":
			return fmt.Errorf("identity provider error: %s", errResp.Msg)
		case errResp.Error != "":
			return fmt.Errorf("identity provider error: %s", errResp.Error)
		}
	}
	return fmt.Errorf("identity provider returned status %d: %s", status, truncate(string(body), 300))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

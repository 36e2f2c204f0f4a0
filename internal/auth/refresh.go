package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/graceworks/missionsync/pkg/metrics"
)

// RefreshTokenSource manages the Beacon token. The initial access+refresh
// pair comes from an out-of-band authorization-code exchange; afterwards the
// source refreshes silently until the refresh token itself is rejected,
// which requires a human to re-authorize.
type RefreshTokenSource struct {
	system       string
	tokenURL     string
	clientID     string
	clientSecret string
	store        *FileStore
	httpc        *http.Client
	logger       *slog.Logger

	mu      sync.Mutex
	current *Token
	stale   bool
}

func NewRefreshTokenSource(system, tokenURL, clientID, clientSecret string, store *FileStore, logger *slog.Logger) *RefreshTokenSource {
	return &RefreshTokenSource{
		system:       system,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		store:        store,
		httpc:        &http.Client{},
		logger:       logger.With("component", "auth", "system", system),
	}
}

// Seed writes an initial token state when none is stored yet, for deploys
// where the authorization step ran elsewhere. The seeded access token is
// treated as already expired so the first use validates the refresh token
// immediately. Existing state is never overwritten.
func (s *RefreshTokenSource) Seed(accessToken, refreshToken string) error {
	if accessToken == "" && refreshToken == "" {
		return nil
	}

	existing, err := s.store.Load()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	tok := &Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		ExpiresIn:    0,
		FetchedAt:    time.Now().Unix(),
	}
	if err := s.store.Save(tok); err != nil {
		return err
	}
	s.logger.Info("Token state seeded from environment", "has_access", accessToken != "", "has_refresh", refreshToken != "")
	return nil
}

// AccessToken returns a token that satisfies the expiry safety margin,
// refreshing via the stored refresh token when needed.
func (s *RefreshTokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		tok, err := s.store.Load()
		if err != nil {
			s.logger.Warn("Stored token unreadable", "error", err)
		}
		s.current = tok
	}

	if !s.stale && s.current.Valid(time.Now()) {
		return s.current.AccessToken, nil
	}

	return s.refreshLocked(ctx)
}

// Invalidate marks the current access token as rejected. The refresh token
// on file survives; the next AccessToken call uses it.
func (s *RefreshTokenSource) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

func (s *RefreshTokenSource) refreshLocked(ctx context.Context) (string, error) {
	prev := s.current
	if prev == nil || prev.RefreshToken == "" {
		return "", &Error{
			System: s.system,
			Reason: "no refresh token on file",
			Help:   reauthHelp(s.store.Path()),
		}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", prev.RefreshToken)
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(req)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(s.system, "failure").Inc()
		return "", &Error{System: s.system, Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parse below
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		// The refresh token itself was rejected. The stored state is dead
		// weight now; clear it and tell the operator exactly how to recover.
		if err := s.store.Clear(); err != nil {
			s.logger.Warn("Could not clear rejected token state", "error", err)
		}
		s.current = nil
		metrics.TokenRefreshes.WithLabelValues(s.system, "rejected").Inc()
		s.logger.Error("Refresh token rejected, stored token state cleared", "status", resp.StatusCode)
		return "", &Error{
			System: s.system,
			Reason: fmt.Sprintf("refresh token rejected (%d)", resp.StatusCode),
			Help:   reauthHelp(s.store.Path()),
		}
	default:
		metrics.TokenRefreshes.WithLabelValues(s.system, "failure").Inc()
		return "", &Error{System: s.system, Reason: fmt.Sprintf("token endpoint returned %d", resp.StatusCode)}
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		metrics.TokenRefreshes.WithLabelValues(s.system, "failure").Inc()
		return "", &Error{System: s.system, Reason: "malformed token response", Err: err}
	}
	if tok.AccessToken == "" {
		metrics.TokenRefreshes.WithLabelValues(s.system, "failure").Inc()
		return "", &Error{System: s.system, Reason: "token response missing access_token"}
	}

	// Some issuers rotate the refresh token on every grant, some omit it.
	// Never drop the one we have because the response left it out.
	rotated := tok.RefreshToken != "" && tok.RefreshToken != prev.RefreshToken
	if tok.RefreshToken == "" {
		tok.RefreshToken = prev.RefreshToken
	}
	tok.FetchedAt = time.Now().Unix()

	s.current = &tok
	s.stale = false
	if err := s.store.Save(&tok); err != nil {
		// Losing a rotated refresh token means a forced re-authorization
		// next run, so this is louder than a normal persistence warning.
		s.logger.Error("CRITICAL: refreshed token could not be persisted", "error", err, "rotated", rotated)
	}
	metrics.TokenRefreshes.WithLabelValues(s.system, "success").Inc()
	s.logger.Info("Access token refreshed", "expires_in", tok.ExpiresIn, "rotated", rotated)
	return tok.AccessToken, nil
}

// ExchangeAuthorizationCode trades a one-time authorization code for an
// access+refresh token pair and persists it. This is the out-of-band step
// the refresh flow depends on; it is surfaced as `auth exchange` in the CLI.
func (s *RefreshTokenSource) ExchangeAuthorizationCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, &Error{System: s.system, Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{System: s.system, Reason: fmt.Sprintf("code exchange returned %d", resp.StatusCode)}
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &Error{System: s.system, Reason: "malformed token response", Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &Error{System: s.system, Reason: "token response missing access_token"}
	}
	tok.FetchedAt = time.Now().Unix()

	s.mu.Lock()
	s.current = &tok
	s.stale = false
	s.mu.Unlock()

	if err := s.store.Save(&tok); err != nil {
		return nil, fmt.Errorf("persist exchanged token: %w", err)
	}
	s.logger.Info("Authorization code exchanged", "expires_in", tok.ExpiresIn, "has_refresh", tok.RefreshToken != "")
	return &tok, nil
}

func reauthHelp(tokenFile string) string {
	return fmt.Sprintf(`re-authorization with Beacon is required:
  1. open the Beacon authorization page in a browser and approve access for this application
  2. run: missionsync auth exchange --code <authorization-code>
  3. re-run the sync
(stored token state: %s)`, tokenFile)
}

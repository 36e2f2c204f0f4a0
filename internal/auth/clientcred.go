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

// ClientCredentialsSource manages the ServePoint token. The grant needs no
// human interaction, so an absent or expired token is simply re-acquired
// with the client id/secret whenever a caller asks.
type ClientCredentialsSource struct {
	system       string
	tokenURL     string
	clientID     string
	clientSecret string
	store        *FileStore
	httpc        *http.Client
	logger       *slog.Logger

	mu      sync.Mutex
	current *Token
	stale   bool // set by Invalidate: the API rejected this token, re-grant regardless of clock
}

func NewClientCredentialsSource(system, tokenURL, clientID, clientSecret string, store *FileStore, logger *slog.Logger) *ClientCredentialsSource {
	return &ClientCredentialsSource{
		system:       system,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		store:        store,
		httpc:        &http.Client{},
		logger:       logger.With("component", "auth", "system", system),
	}
}

// AccessToken returns a token that satisfies the expiry safety margin,
// acquiring a fresh one when needed.
func (s *ClientCredentialsSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		tok, err := s.store.Load()
		if err != nil {
			s.logger.Warn("Stored token unreadable, acquiring a new one", "error", err)
		}
		s.current = tok
	}

	if !s.stale && s.current.Valid(time.Now()) {
		return s.current.AccessToken, nil
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(s.system, "failure").Inc()
		return "", err
	}
	metrics.TokenRefreshes.WithLabelValues(s.system, "success").Inc()

	s.current = tok
	s.stale = false
	if err := s.store.Save(tok); err != nil {
		s.logger.Warn("Token acquired but could not be persisted", "error", err)
	}
	s.logger.Info("Access token acquired", "expires_in", tok.ExpiresIn)
	return tok.AccessToken, nil
}

// Invalidate marks the current token as rejected so the next AccessToken
// call performs a fresh grant even if the clock still looks fine.
func (s *ClientCredentialsSource) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

func (s *ClientCredentialsSource) fetch(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, &Error{System: s.system, Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{System: s.system, Reason: fmt.Sprintf("token endpoint returned %d", resp.StatusCode)}
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &Error{System: s.system, Reason: "malformed token response", Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &Error{System: s.system, Reason: "token response missing access_token"}
	}
	tok.FetchedAt = time.Now().Unix()
	return &tok, nil
}

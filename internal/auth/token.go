package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// expirySafetyMarginSeconds keeps us from sending a token that expires
// mid-request. A token with 121s of life left is still used; at 120s or
// less it is refreshed first.
const expirySafetyMarginSeconds int64 = 120

// Token is the persisted OAuth2 token state for one remote system.
// FetchedAt is recorded locally at acquisition time; the issuer only
// reports a relative expires_in.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	FetchedAt    int64  `json:"fetched_at"`
}

// Valid reports whether the token can still be sent at the given instant
func (t *Token) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	age := now.Unix() - t.FetchedAt
	return age < t.ExpiresIn-expirySafetyMarginSeconds
}

// RemainingAt returns the token lifetime left at the given instant,
// ignoring the safety margin. Used for operator-facing status output.
func (t *Token) RemainingAt(now time.Time) time.Duration {
	if t == nil {
		return 0
	}
	remaining := t.FetchedAt + t.ExpiresIn - now.Unix()
	if remaining < 0 {
		return 0
	}
	return time.Duration(remaining) * time.Second
}

// FileStore persists one token state in a single JSON file. Token files
// carry credentials, so the file is 0600 and its directory 0700.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the stored token. A missing file is not an error: it returns
// (nil, nil) so callers can treat "never authorized" and "expired" apart.
func (s *FileStore) Load() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token file %s: %w", s.path, err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	return &tok, nil
}

// Save writes the full token state atomically (temp file + rename) so an
// interrupted write can never leave a half-written token behind.
func (s *FileStore) Save(t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create token dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp token file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace token file %s: %w", s.path, err)
	}
	return nil
}

// Clear removes the stored token state. Missing file is fine.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file %s: %w", s.path, err)
	}
	return nil
}

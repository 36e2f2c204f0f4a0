package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RequestError is a non-retryable API response (4xx other than 401, or a
// 5xx that survived the retry budget). Details carries the parsed error
// body when the API sent JSON, the raw text otherwise, so a skipped record
// can be diagnosed from the log line alone.
type RequestError struct {
	System     string
	StatusCode int
	Details    any
}

func (e *RequestError) Error() string {
	if e.Details == nil {
		return fmt.Sprintf("%s api returned %d", e.System, e.StatusCode)
	}
	return fmt.Sprintf("%s api returned %d: %s", e.System, e.StatusCode, detailString(e.Details))
}

// TransientError is a transport-level failure (connection refused, reset,
// DNS) that survived the retry budget.
type TransientError struct {
	System string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s api unreachable: %v", e.System, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a 404 from either API. The reconciler
// uses it to tell "mapped record vanished" apart from real failures.
func IsNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

// IsValidation reports whether err is a client-input rejection (4xx other
// than 401/404).
func IsValidation(err error) bool {
	var re *RequestError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode >= 400 && re.StatusCode < 500 &&
		re.StatusCode != http.StatusUnauthorized && re.StatusCode != http.StatusNotFound
}

func newRequestError(system string, status int, body []byte) *RequestError {
	e := &RequestError{System: system, StatusCode: status}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return e
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		e.Details = parsed
	} else {
		e.Details = trimmed
	}
	return e
}

func detailString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

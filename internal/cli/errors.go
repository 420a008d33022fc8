package cli

import (
	"fmt"
	"net/http"
)

// ConfigError reports missing or invalid configuration. Hint names the exact
// command or variable that fixes it.
type ConfigError struct {
	Msg  string
	Hint string
}

func (e *ConfigError) Error() string {
	if e.Hint == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Hint)
}

// NotConfigured builds a ConfigError for a missing credential source.
func NotConfigured(what, hint string) *ConfigError {
	return &ConfigError{Msg: what + " is not configured", Hint: hint}
}

// UsageError reports malformed user input detected before any network call.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// Usagef builds a UsageError.
func Usagef(format string, a ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, a...)}
}

// APIError is a non-success response from a remote API.
type APIError struct {
	Service string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	switch e.Status {
	case http.StatusUnauthorized:
		return fmt.Sprintf("%s: authentication failed (HTTP 401): %s", e.Service, e.Message)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("%s: rate limited (HTTP 429): %s", e.Service, e.Message)
	case 0:
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	default:
		return fmt.Sprintf("%s API error (HTTP %d): %s", e.Service, e.Status, e.Message)
	}
}

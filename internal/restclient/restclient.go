// Package restclient builds resty clients for the JSON REST tools and turns
// their failures into classified API errors.
package restclient

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"resty.dev/v3"

	"github.com/shineum/skillkit/internal/cli"
)

// maxMessageLen bounds an error message taken from a non-JSON body.
const maxMessageLen = 300

// New returns a client for baseURL sharing env's HTTP client. Retries stay
// disabled.
func New(env *cli.Env, baseURL string) *resty.Client {
	return resty.NewWithClient(env.HTTP()).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetLogger(slogLogger{}).
		SetResponseBodyUnlimitedReads(true).
		SetHeader("Accept", "application/json")
}

// Check converts a transport failure or a non-2xx response into a
// *cli.APIError for service.
func Check(service string, resp *resty.Response, err error) error {
	if err != nil {
		return &cli.APIError{Service: service, Message: err.Error()}
	}
	slog.Debug("api call", "service", service, "method", resp.Request.Method, "url", resp.Request.URL, "status", resp.StatusCode())
	if !resp.IsError() {
		return nil
	}
	return &cli.APIError{
		Service: service,
		Status:  resp.StatusCode(),
		Message: Message(resp.StatusCode(), resp.Bytes()),
	}
}

// Message extracts a human-readable error from a response body. It
// understands the common JSON shapes: {"message"}, {"error": "..."},
// {"error": {"message"}}, {"detail"}, {"error_description"} and
// Salesforce-style arrays of {"message", "errorCode"}.
func Message(status int, body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		if msg := messageFrom(v); msg != "" {
			return msg
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" || strings.HasPrefix(text, "<") {
		return http.StatusText(status)
	}
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen] + "..."
	}
	return text
}

func messageFrom(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var parts []string
		for _, item := range t {
			if msg := messageFrom(item); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		code, _ := t["errorCode"].(string)
		for _, key := range []string{"message", "error_description", "detail", "error", "msg"} {
			inner, ok := t[key]
			if !ok {
				continue
			}
			if msg := messageFrom(inner); msg != "" {
				if code != "" {
					return code + ": " + msg
				}
				return msg
			}
		}
	}
	return ""
}

// slogLogger routes resty's own diagnostics through slog.
type slogLogger struct{}

func (slogLogger) Errorf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (slogLogger) Warnf(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (slogLogger) Debugf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "resty")
}

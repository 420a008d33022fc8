package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/shineum/skillkit/internal/email"
)

func newTestService(t *testing.T, handler http.Handler) *gmail.Service {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSend(t *testing.T) {
	t.Parallel()

	var raw []byte
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/users/me/messages/send") {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		var msg gmail.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode: %v", err)
		}
		var err error
		raw, err = base64.URLEncoding.DecodeString(msg.Raw)
		if err != nil {
			t.Errorf("raw is not base64url: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"18c0ffee","threadId":"18c0ffee"}`))
	}))

	p := New(svc)
	id, err := p.Send(context.Background(), &email.Email{
		To:       []string{"bob@example.com"},
		Subject:  "Lunch",
		TextBody: "Noon?",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "18c0ffee" {
		t.Errorf("id: got %q", id)
	}

	s := string(raw)
	if !strings.Contains(s, "To: bob@example.com") || !strings.Contains(s, "Subject: Lunch") {
		t.Errorf("raw headers: %s", s)
	}
	if strings.Contains(s, "From:") {
		t.Errorf("raw message should leave From to Gmail: %s", s)
	}
}

func TestSend_Error(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Insufficient Permission"}}`))
	}))

	_, err := New(svc).Send(context.Background(), &email.Email{To: []string{"bob@example.com"}, TextBody: "x"})
	if err == nil || !strings.Contains(err.Error(), "Insufficient Permission") {
		t.Fatalf("error: got %v", err)
	}
}

package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shineum/skillkit/internal/cli"
)

func TestClient_GetSendsHeaders(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/messages" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization: got %q", got)
		}
		if r.Header.Get("client-request-id") == "" {
			t.Error("client-request-id header missing")
		}
		if got := r.URL.RawQuery; !strings.Contains(got, "%24top=5") && !strings.Contains(got, "$top=5") {
			t.Errorf("query: got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[{"id":"m1"}]}`))
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "tok", server.Client())

	var page Page[struct {
		ID string `json:"id"`
	}]
	if err := c.Get(context.Background(), "me/messages", url.Values{"$top": {"5"}}, &page); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(page.Value) != 1 || page.Value[0].ID != "m1" {
		t.Errorf("page: got %+v", page)
	}
}

func TestClient_QueryEncodesSpacesAsPercent20(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "+") {
			t.Errorf("query should not contain '+': %q", r.URL.RawQuery)
		}
		if got := r.URL.Query().Get("$search"); got != `"quarterly report"` {
			t.Errorf("$search: got %q", got)
		}
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "tok", server.Client())
	if err := c.Get(context.Background(), "/me/messages", url.Values{"$search": {`"quarterly report"`}}, &Page[map[string]any]{}); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestClient_PostEncodesJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type: got %q", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["name"] != "x" {
			t.Errorf("body: got %v", body)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "tok", server.Client())
	if err := c.Post(context.Background(), "/me/sendMail", map[string]string{"name": "x"}, nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantSubstr string
	}{
		{
			name:       "unauthorized with odata error",
			status:     http.StatusUnauthorized,
			body:       `{"error":{"code":"InvalidAuthenticationToken","message":"Access token has expired."}}`,
			wantSubstr: "authentication failed (HTTP 401): InvalidAuthenticationToken: Access token has expired.",
		},
		{
			name:       "throttled",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"code":"TooManyRequests","message":"Slow down"}}`,
			wantSubstr: "rate limited (HTTP 429)",
		},
		{
			name:       "plain text body",
			status:     http.StatusBadRequest,
			body:       "bad things",
			wantSubstr: "Graph API error (HTTP 400): bad things",
		},
		{
			name:       "empty body",
			status:     http.StatusNotFound,
			wantSubstr: "Graph API error (HTTP 404): Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewWithBaseURL(server.URL, "tok", server.Client())
			err := c.Get(context.Background(), "/me", nil, &map[string]any{})

			var apiErr *cli.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *cli.APIError, got %T: %v", err, err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status: got %d, want %d", apiErr.Status, tt.status)
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantSubstr)
			}
		})
	}
}

func TestClient_NoRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "tok", server.Client())
	if err := c.Post(context.Background(), "/me/sendMail", map[string]string{}, nil); err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestClient_WithServiceNamesErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "tok", server.Client()).WithService("Dynamics")
	err := c.Delete(context.Background(), "/accounts(1)")
	if err == nil || !strings.HasPrefix(err.Error(), "Dynamics API error (HTTP 403)") {
		t.Errorf("error: got %v", err)
	}
}

func TestClient_Download(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file-bytes"))
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "tok", server.Client())
	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "/drives/d/root:/a.txt:/content", &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != 10 || buf.String() != "file-bytes" {
		t.Errorf("Download: got %d bytes %q", n, buf.String())
	}
}

func TestList_FollowsNextLink(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"value":[{"id":"c"}]}`))
			return
		}
		fmt.Fprintf(w, `{"value":[{"id":"a"},{"id":"b"}],"@odata.nextLink":"%s/items?page=2"}`, server.URL)
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "tok", server.Client())

	type item struct {
		ID string `json:"id"`
	}

	all, err := List[item](context.Background(), c, "/items", nil, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[2].ID != "c" {
		t.Errorf("List: got %+v", all)
	}

	capped, err := List[item](context.Background(), c, "/items", nil, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(capped) != 1 {
		t.Errorf("capped List: got %d items, want 1", len(capped))
	}
}

func TestClient_CreateReturnsEntityID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/accounts" {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("OData-EntityId", "https://org.example/api/data/v9.2/accounts(1234)")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "tok", server.Client())
	id, err := c.Create(context.Background(), "/accounts", map[string]string{"name": "Contoso"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "https://org.example/api/data/v9.2/accounts(1234)" {
		t.Errorf("Create: got %q", id)
	}
}

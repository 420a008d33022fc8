package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/email"
	"github.com/shineum/skillkit/internal/msgraph"
)

func TestBuildSendMailRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		msg         *email.Email
		wantType    string
		wantContent string
		wantCc      int
		wantBcc     int
		wantAtt     int
	}{
		{
			name:        "plain text",
			msg:         &email.Email{To: []string{"a@example.com", "b@example.com"}, Subject: "s", TextBody: "hello"},
			wantType:    "Text",
			wantContent: "hello",
		},
		{
			name:        "html wins over text",
			msg:         &email.Email{To: []string{"a@example.com"}, TextBody: "plain", HtmlBody: "<p>rich</p>"},
			wantType:    "HTML",
			wantContent: "<p>rich</p>",
		},
		{
			name: "cc bcc and attachment",
			msg: &email.Email{
				To:          []string{"a@example.com"},
				Cc:          []string{"c@example.com", "d@example.com"},
				Bcc:         []string{"e@example.com"},
				TextBody:    "see attached",
				Attachments: []email.Attachment{{Filename: "r.pdf", ContentType: "application/pdf", Content: []byte("pdf")}},
			},
			wantType:    "Text",
			wantContent: "see attached",
			wantCc:      2,
			wantBcc:     1,
			wantAtt:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := buildSendMailRequest(tt.msg)
			m := req.Message

			if !req.SaveToSentItems {
				t.Error("SaveToSentItems should be true")
			}
			if m.Body.ContentType != tt.wantType || m.Body.Content != tt.wantContent {
				t.Errorf("Body: got %+v", m.Body)
			}
			if len(m.ToRecipients) != len(tt.msg.To) {
				t.Errorf("ToRecipients: got %d, want %d", len(m.ToRecipients), len(tt.msg.To))
			}
			if len(m.CcRecipients) != tt.wantCc || len(m.BccRecipients) != tt.wantBcc {
				t.Errorf("Cc/Bcc: got %d/%d", len(m.CcRecipients), len(m.BccRecipients))
			}
			if len(m.Attachments) != tt.wantAtt {
				t.Fatalf("Attachments: got %d, want %d", len(m.Attachments), tt.wantAtt)
			}
			if tt.wantAtt > 0 {
				att := m.Attachments[0]
				if att.ODataType != "#microsoft.graph.fileAttachment" || att.Name != "r.pdf" || att.ContentBytes != "cGRm" {
					t.Errorf("attachment: got %+v", att)
				}
			}
		})
	}
}

func TestBuildSendMailRequest_OmitsEmptyLists(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(buildSendMailRequest(&email.Email{To: []string{"a@example.com"}, TextBody: "x"}))
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["saveToSentItems"]) != "true" {
		t.Errorf("saveToSentItems: got %s", raw["saveToSentItems"])
	}
	var msg map[string]any
	if err := json.Unmarshal(raw["message"], &msg); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"ccRecipients", "bccRecipients", "attachments"} {
		if _, ok := msg[key]; ok {
			t.Errorf("%s should be omitted", key)
		}
	}
}

func TestProvider_Send(t *testing.T) {
	t.Parallel()

	var got sendMailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/me/sendMail" {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p := New(msgraph.NewWithBaseURL(server.URL, "tok", server.Client()))
	if p.Name() != "msgraph" {
		t.Errorf("Name: got %q", p.Name())
	}

	_, err := p.Send(context.Background(), &email.Email{To: []string{"a@example.com"}, Subject: "Hi", TextBody: "x"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Message.Subject != "Hi" {
		t.Errorf("Subject: got %q", got.Message.Subject)
	}
}

func TestProvider_SendFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"ApplicationThrottled","message":"slow down"}}`))
	}))
	defer server.Close()

	p := New(msgraph.NewWithBaseURL(server.URL, "tok", server.Client()))
	_, err := p.Send(context.Background(), &email.Email{To: []string{"a@example.com"}, TextBody: "x"})

	var apiErr *cli.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

package parser

import (
	"strings"
	"testing"
	"time"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParse_PlainText(t *testing.T) {
	t.Parallel()

	msg, err := Parse(crlf(
		"From: Ann Example <ann@example.com>",
		"To: bob@example.com",
		"Subject: Lunch",
		"Date: Tue, 03 Mar 2026 10:15:00 +0000",
		"Message-Id: <lunch-1@example.com>",
		"Content-Type: text/plain",
		"",
		"Noon at the usual place?",
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.From != "Ann Example <ann@example.com>" {
		t.Errorf("From: got %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "bob@example.com" {
		t.Errorf("To: got %v", msg.To)
	}
	if msg.Subject != "Lunch" {
		t.Errorf("Subject: got %q", msg.Subject)
	}
	if want := time.Date(2026, 3, 3, 10, 15, 0, 0, time.UTC); !msg.Date.Equal(want) {
		t.Errorf("Date: got %v, want %v", msg.Date, want)
	}
	if msg.MessageID != "<lunch-1@example.com>" {
		t.Errorf("MessageID: got %q", msg.MessageID)
	}
	if msg.TextBody != "Noon at the usual place?" {
		t.Errorf("TextBody: got %q", msg.TextBody)
	}
	if msg.HtmlBody != "" || len(msg.Attachments) != 0 {
		t.Errorf("unexpected html %q or attachments %d", msg.HtmlBody, len(msg.Attachments))
	}
}

func TestParse_EncodedHeaders(t *testing.T) {
	t.Parallel()

	msg, err := Parse(crlf(
		"From: =?UTF-8?Q?J=C3=BCrgen?= <j@example.com>",
		"To: bob@example.com",
		"Subject: =?UTF-8?B?R3LDvMOfZQ==?=",
		"",
		"x",
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Grüße" {
		t.Errorf("Subject: got %q", msg.Subject)
	}
	if msg.From != "Jürgen <j@example.com>" {
		t.Errorf("From: got %q", msg.From)
	}
}

func TestParse_TopLevelTransferEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		encoding string
		ct       string
		body     string
		wantText string
		wantHTML string
	}{
		{name: "base64 text", encoding: "base64", ct: "text/plain; charset=UTF-8", body: "SGVsbG8gV29ybGQ=", wantText: "Hello World"},
		{name: "quoted-printable html", encoding: "quoted-printable", ct: "text/html", body: "<p>caf=C3=A9</p>", wantHTML: "<p>café</p>"},
		{name: "7bit", encoding: "7bit", ct: "text/plain", body: "as is", wantText: "as is"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := Parse(crlf(
				"From: a@example.com",
				"Content-Type: "+tt.ct,
				"Content-Transfer-Encoding: "+tt.encoding,
				"",
				tt.body,
			))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.TextBody != tt.wantText {
				t.Errorf("TextBody: got %q, want %q", msg.TextBody, tt.wantText)
			}
			if msg.HtmlBody != tt.wantHTML {
				t.Errorf("HtmlBody: got %q, want %q", msg.HtmlBody, tt.wantHTML)
			}
		})
	}
}

func TestParse_Alternative(t *testing.T) {
	t.Parallel()

	msg, err := Parse(crlf(
		"From: sender@example.com",
		"To: alice@example.com, Bob <bob@example.com>",
		"Cc: carol@example.com",
		"Subject: Multipart",
		"Content-Type: multipart/alternative; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		"Plain text body",
		"--b1",
		"Content-Type: text/html",
		"",
		"<p>HTML body</p>",
		"--b1--",
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(msg.To) != 2 || msg.To[1] != "bob@example.com" {
		t.Errorf("To: got %v", msg.To)
	}
	if len(msg.Cc) != 1 || msg.Cc[0] != "carol@example.com" {
		t.Errorf("Cc: got %v", msg.Cc)
	}
	if msg.TextBody != "Plain text body" {
		t.Errorf("TextBody: got %q", msg.TextBody)
	}
	if msg.HtmlBody != "<p>HTML body</p>" {
		t.Errorf("HtmlBody: got %q", msg.HtmlBody)
	}
}

func TestParse_Attachments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		headers      []string
		body         string
		wantFilename string
		wantContent  string
	}{
		{
			name: "named base64 attachment",
			headers: []string{
				"Content-Type: application/pdf; name=\"report.pdf\"",
				"Content-Disposition: attachment; filename=\"report.pdf\"",
				"Content-Transfer-Encoding: base64",
			},
			body:         "SGVs\r\nbG8g\r\nV29y\r\nbGQ=",
			wantFilename: "report.pdf",
			wantContent:  "Hello World",
		},
		{
			name: "attachment without filename",
			headers: []string{
				"Content-Type: application/pdf",
				"Content-Disposition: attachment",
				"Content-Transfer-Encoding: base64",
			},
			body:         "SGVsbG8gV29ybGQ=",
			wantFilename: "attachment.pdf",
			wantContent:  "Hello World",
		},
		{
			name: "inline part with a name",
			headers: []string{
				"Content-Type: image/png; name=\"logo.png\"",
			},
			body:         "png-bytes",
			wantFilename: "logo.png",
			wantContent:  "png-bytes",
		},
		{
			name: "encoded filename",
			headers: []string{
				"Content-Type: text/csv",
				"Content-Disposition: attachment; filename=\"=?UTF-8?Q?r=C3=A9sum=C3=A9.csv?=\"",
			},
			body:         "a,b",
			wantFilename: "résumé.csv",
			wantContent:  "a,b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lines := []string{
				"From: sender@example.com",
				"Content-Type: multipart/mixed; boundary=mix",
				"",
				"--mix",
				"Content-Type: text/plain",
				"",
				"body",
				"--mix",
			}
			lines = append(lines, tt.headers...)
			lines = append(lines, "", tt.body, "--mix--", "")

			msg, err := Parse(crlf(lines...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.TextBody != "body" {
				t.Errorf("TextBody: got %q", msg.TextBody)
			}
			if len(msg.Attachments) != 1 {
				t.Fatalf("Attachments: got %d, want 1", len(msg.Attachments))
			}
			att := msg.Attachments[0]
			if att.Filename != tt.wantFilename {
				t.Errorf("Filename: got %q, want %q", att.Filename, tt.wantFilename)
			}
			if string(att.Content) != tt.wantContent {
				t.Errorf("Content: got %q, want %q", att.Content, tt.wantContent)
			}
		})
	}
}

func TestParse_NestedMultipart(t *testing.T) {
	t.Parallel()

	msg, err := Parse(crlf(
		"From: sender@example.com",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"Plain text part",
		"--inner",
		"Content-Type: text/html",
		"",
		"<p>HTML part</p>",
		"--inner--",
		"--outer",
		"Content-Type: application/octet-stream; name=\"data.bin\"",
		"Content-Disposition: attachment; filename=\"data.bin\"",
		"",
		"binarydata",
		"--outer--",
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.TextBody != "Plain text part" || msg.HtmlBody != "<p>HTML part</p>" {
		t.Errorf("bodies: text=%q html=%q", msg.TextBody, msg.HtmlBody)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Filename != "data.bin" {
		t.Errorf("Attachments: got %+v", msg.Attachments)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	t.Run("not a message", func(t *testing.T) {
		t.Parallel()
		if _, err := Parse([]byte("not a valid email at all\x00\x01\x02")); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("multipart without boundary", func(t *testing.T) {
		t.Parallel()
		_, err := Parse(crlf("From: a@example.com", "Content-Type: multipart/mixed", "", "body"))
		if err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("unparseable content type reads as text", func(t *testing.T) {
		t.Parallel()
		msg, err := Parse(crlf("From: a@example.com", "Content-Type: ;;;", "", "still readable"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.TextBody != "still readable" {
			t.Errorf("TextBody: got %q", msg.TextBody)
		}
	})

	t.Run("missing headers leave fields empty", func(t *testing.T) {
		t.Parallel()
		msg, err := Parse(crlf("Subject: only", "", "b"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.To != nil || msg.Cc != nil || msg.Bcc != nil || !msg.Date.IsZero() {
			t.Errorf("expected empty fields, got to=%v cc=%v bcc=%v date=%v", msg.To, msg.Cc, msg.Bcc, msg.Date)
		}
		if msg.RawHeaders["Subject"][0] != "only" {
			t.Errorf("RawHeaders: got %v", msg.RawHeaders)
		}
	})
}

// Package email defines the mail model shared by the Gmail, Outlook and SES
// tools.
package email

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
)

// Email is an outgoing or fetched message.
type Email struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Date        time.Time
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	RawHeaders  map[string][]string
	MessageID   string
}

// Attachment is a file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// LoadAttachment reads a local file. The content type comes from the file
// extension, falling back to sniffing the content.
func LoadAttachment(path string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}

	name := filepath.Base(path)
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return Attachment{Filename: name, ContentType: ct, Content: data}, nil
}

// FromArgs builds an outgoing message from the common send options:
// --to (repeatable), --cc (repeatable), --bcc (repeatable), --subject,
// --body, --html and --attach (repeatable). With --html the body is sent as
// HTML.
func FromArgs(a *args.Args) (*Email, error) {
	if err := a.Require("to", "subject"); err != nil {
		return nil, err
	}
	body, ok := a.String("body")
	if !ok && !a.Has("attach") {
		return nil, cli.Usagef("--body is required")
	}

	msg := &Email{
		To:      a.Values("to"),
		Cc:      a.Values("cc"),
		Bcc:     a.Values("bcc"),
		Subject: a.StringOr("subject", ""),
	}
	if a.Bool("html") {
		msg.HtmlBody = body
	} else {
		msg.TextBody = body
	}

	for _, path := range a.Values("attach") {
		att, err := LoadAttachment(path)
		if err != nil {
			return nil, err
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	return msg, nil
}

// SendRepeatable lists the send options that accumulate values.
var SendRepeatable = []string{"to", "cc", "bcc", "attach"}

// Package gmail sends mail as the signed-in Gmail user.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/gmail/v1"

	"github.com/shineum/skillkit/internal/email"
)

// Provider sends raw RFC 5322 messages through users.messages.send.
type Provider struct {
	svc *gmail.Service
}

// New returns a Provider using svc.
func New(svc *gmail.Service) *Provider {
	return &Provider{svc: svc}
}

// Send builds msg as raw MIME and sends it once. Gmail fills in the From
// header for the authenticated user.
func (p *Provider) Send(ctx context.Context, msg *email.Email) (string, error) {
	raw, err := email.BuildRaw("", msg)
	if err != nil {
		return "", fmt.Errorf("failed to build raw message: %w", err)
	}

	sent, err := p.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail send: %w", err)
	}
	return sent.Id, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "gmail"
}

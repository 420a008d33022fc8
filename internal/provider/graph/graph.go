package graph

import (
	"context"
	"fmt"

	"github.com/shineum/skillkit/internal/email"
	"github.com/shineum/skillkit/internal/msgraph"
)

// Provider sends mail through POST /me/sendMail with a delegated token.
type Provider struct {
	client *msgraph.Client
}

// New returns a Provider using client.
func New(client *msgraph.Client) *Provider {
	return &Provider{client: client}
}

// Send posts msg once. Graph accepts the message with 202 and returns no
// identifier.
func (p *Provider) Send(ctx context.Context, msg *email.Email) (string, error) {
	if err := p.client.Post(ctx, "/me/sendMail", buildSendMailRequest(msg), nil); err != nil {
		return "", fmt.Errorf("sendMail: %w", err)
	}
	return "", nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "msgraph"
}

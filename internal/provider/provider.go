// Package provider defines the mail delivery backends behind the send
// commands of the Gmail, Outlook and SES tools.
package provider

import (
	"context"

	"github.com/shineum/skillkit/internal/email"
)

// Provider delivers one message. Send is attempted exactly once; callers
// surface any error to the operator rather than retrying.
type Provider interface {
	// Send delivers msg and returns the provider's message identifier when
	// it reports one.
	Send(ctx context.Context, msg *email.Email) (string, error)

	// Name returns the provider name used in output.
	Name() string
}

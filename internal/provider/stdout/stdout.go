// Package stdout implements the --dry-run Provider: it prints the message
// that would have been sent instead of sending it.
package stdout

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shineum/skillkit/internal/email"
)

// Provider renders messages to a writer.
type Provider struct {
	w io.Writer
	// via names the provider the message would have gone through.
	via string
}

// New returns a Provider writing to w on behalf of the provider named via.
func New(w io.Writer, via string) *Provider {
	return &Provider{w: w, via: via}
}

// Send prints msg. Nothing leaves the machine and no message ID is
// returned.
func (p *Provider) Send(_ context.Context, msg *email.Email) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Dry run: not sent via %s\n", p.via)
	if msg.From != "" {
		fmt.Fprintf(&b, "From:    %s\n", msg.From)
	}
	fmt.Fprintf(&b, "To:      %s\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc:      %s\n", strings.Join(msg.Cc, ", "))
	}
	if len(msg.Bcc) > 0 {
		fmt.Fprintf(&b, "Bcc:     %s\n", strings.Join(msg.Bcc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)

	if msg.HtmlBody != "" {
		fmt.Fprintf(&b, "\n[html]\n%s\n", msg.HtmlBody)
	} else {
		fmt.Fprintf(&b, "\n%s\n", msg.TextBody)
	}

	if len(msg.Attachments) > 0 {
		b.WriteString("\nAttachments:\n")
		for _, att := range msg.Attachments {
			fmt.Fprintf(&b, "  %s (%s, %s)\n", att.Filename, att.ContentType, formatSize(len(att.Content)))
		}
	}

	if _, err := io.WriteString(p.w, b.String()); err != nil {
		return "", fmt.Errorf("failed to write dry run: %w", err)
	}
	return "", nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "dry-run"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

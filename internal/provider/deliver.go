package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/shineum/skillkit/internal/email"
	"github.com/shineum/skillkit/internal/provider/stdout"
)

// Select returns the dry-run provider writing to w when dryRun is set, and
// otherwise the provider built by live. live is not called on a dry run, so
// no credentials are needed to preview a message.
func Select(dryRun bool, w io.Writer, via string, live func() (Provider, error)) (Provider, error) {
	if dryRun {
		return stdout.New(w, via), nil
	}
	return live()
}

// Deliver sends msg once through p and reports the result on w. Dry runs
// print the message themselves.
func Deliver(ctx context.Context, w io.Writer, p Provider, msg *email.Email) error {
	id, err := p.Send(ctx, msg)
	if err != nil {
		return err
	}
	if _, dry := p.(*stdout.Provider); dry {
		return nil
	}
	if id == "" {
		fmt.Fprintf(w, "Sent via %s\n", p.Name())
		return nil
	}
	fmt.Fprintf(w, "Sent via %s (id %s)\n", p.Name(), id)
	return nil
}

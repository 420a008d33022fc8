// Package gmail is the Gmail tool: search, read, send and label management
// for one or more Google accounts.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/email"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/parser"
	"github.com/shineum/skillkit/internal/provider"
	gmailprovider "github.com/shineum/skillkit/internal/provider/gmail"
)

const defaultMax = 10

// Program returns the gmail command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "gmail",
		Short: "Gmail for one or more Google accounts",
		Commands: []*cli.Command{
			{
				Name:  "auth",
				Usage: "[--account email]",
				Short: "authorize an account and cache its token",
				Run:   auth,
			},
			{
				Name:  "accounts",
				Usage: "[--format table|json|csv]",
				Short: "list authorized accounts",
				Run:   accounts,
			},
			{
				Name:  "remove-account",
				Usage: "<email>",
				Short: "forget a cached account",
				Run:   removeAccount,
			},
			{
				Name:  "search",
				Usage: "<query> [--max N] [--account email] [--format table|json|csv]",
				Short: "search messages with Gmail query syntax",
				Run:   search,
			},
			{
				Name:  "read",
				Usage: "<id> [--account email]",
				Short: "print one message",
				Run:   read,
			},
			{
				Name:       "send",
				Usage:      "--to a [--to b]* --subject s --body b [--cc x]* [--bcc x]* [--html] [--attach path]* [--dry-run] [--account email]",
				Short:      "send a message",
				Repeatable: email.SendRepeatable,
				Run:        send,
			},
			{
				Name:  "labels",
				Usage: "[--account email] [--format table|json|csv]",
				Short: "list labels",
				Run:   labels,
			},
			{
				Name:  "trash",
				Usage: "<id> [--account email]",
				Short: "move a message to the trash",
				Run:   trash,
			},
		},
	}
}

// apiError converts Google API failures to the shared error form. Other
// errors pass through.
func apiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = strings.TrimSpace(gerr.Body)
		}
		return &cli.APIError{Service: "Gmail", Status: gerr.Code, Message: msg}
	}
	return err
}

func auth(ctx context.Context, env *cli.Env, a *args.Args) error {
	r, err := resolver(env)
	if err != nil {
		return err
	}
	account, err := r.ForceLogin(ctx, a.StringOr("account", ""))
	if err != nil {
		return err
	}
	env.Printf("Authorized %s\n", account)
	return nil
}

func accounts(_ context.Context, env *cli.Env, a *args.Args) error {
	store := tokenStore(env)
	names, err := store.Accounts()
	if err != nil {
		return err
	}

	res := &format.Result{Columns: []string{"account", "expires"}}
	for _, name := range names {
		tok, err := store.Get(name)
		if err != nil {
			return err
		}
		res.Rows = append(res.Rows, []any{name, tok.Expiry().Local().Format("2006-01-02 15:04")})
	}
	return format.Print(env.Stdout, a, res)
}

func removeAccount(_ context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("email"); err != nil {
		return err
	}
	if err := tokenStore(env).Remove(a.Arg(0)); err != nil {
		return err
	}
	env.Printf("Removed %s\n", a.Arg(0))
	return nil
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func search(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("query"); err != nil {
		return err
	}
	limit, err := a.Int("max", defaultMax)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	svc, err := service(ctx, env, a)
	if err != nil {
		return err
	}

	list, err := svc.Users.Messages.List("me").
		Q(strings.Join(a.Positional, " ")).
		MaxResults(int64(limit)).
		Context(ctx).Do()
	if err != nil {
		return apiError(err)
	}

	res := &format.Result{Columns: []string{"id", "date", "from", "subject"}}
	for _, ref := range list.Messages {
		m, err := svc.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).Do()
		if err != nil {
			return apiError(err)
		}
		var hs []*gmail.MessagePartHeader
		if m.Payload != nil {
			hs = m.Payload.Headers
		}
		date := time.UnixMilli(m.InternalDate).Local().Format("2006-01-02 15:04")
		res.Rows = append(res.Rows, []any{m.Id, date, header(hs, "From"), header(hs, "Subject")})
	}
	return format.Write(env.Stdout, mode, res)
}

func read(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("id"); err != nil {
		return err
	}
	svc, err := service(ctx, env, a)
	if err != nil {
		return err
	}

	m, err := svc.Users.Messages.Get("me", a.Arg(0)).Format("raw").Context(ctx).Do()
	if err != nil {
		return apiError(err)
	}
	raw, err := base64.URLEncoding.DecodeString(m.Raw)
	if err != nil {
		if raw, err = base64.RawURLEncoding.DecodeString(m.Raw); err != nil {
			return fmt.Errorf("failed to decode message %s: %w", m.Id, err)
		}
	}
	msg, err := parser.Parse(raw)
	if err != nil {
		return err
	}

	env.Printf("From:    %s\n", msg.From)
	env.Printf("To:      %s\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		env.Printf("Cc:      %s\n", strings.Join(msg.Cc, ", "))
	}
	if !msg.Date.IsZero() {
		env.Printf("Date:    %s\n", msg.Date.Local().Format(time.RFC1123))
	}
	env.Printf("Subject: %s\n", msg.Subject)
	env.Printf("\n%s\n", strings.TrimSpace(bodyText(msg)))

	if len(msg.Attachments) > 0 {
		env.Printf("\nAttachments:\n")
		for _, att := range msg.Attachments {
			env.Printf("  %s (%s, %d bytes)\n", att.Filename, att.ContentType, len(att.Content))
		}
	}
	return nil
}

// bodyText prefers the text part and falls back to the visible text of the
// HTML part.
func bodyText(msg *email.Email) string {
	if strings.TrimSpace(msg.TextBody) != "" || msg.HtmlBody == "" {
		return msg.TextBody
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(msg.HtmlBody))
	if err != nil {
		return msg.HtmlBody
	}
	doc.Find("script, style, head").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func send(ctx context.Context, env *cli.Env, a *args.Args) error {
	msg, err := email.FromArgs(a)
	if err != nil {
		return err
	}
	p, err := provider.Select(a.Bool("dry-run"), env.Stdout, "gmail", func() (provider.Provider, error) {
		svc, err := service(ctx, env, a)
		if err != nil {
			return nil, err
		}
		return gmailprovider.New(svc), nil
	})
	if err != nil {
		return err
	}
	return apiError(provider.Deliver(ctx, env.Stdout, p, msg))
}

func labels(ctx context.Context, env *cli.Env, a *args.Args) error {
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	svc, err := service(ctx, env, a)
	if err != nil {
		return err
	}

	out, err := svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return apiError(err)
	}
	sort.Slice(out.Labels, func(i, j int) bool {
		return strings.ToLower(out.Labels[i].Name) < strings.ToLower(out.Labels[j].Name)
	})

	res := &format.Result{Columns: []string{"id", "name", "type"}}
	for _, l := range out.Labels {
		res.Rows = append(res.Rows, []any{l.Id, l.Name, l.Type})
	}
	return format.Write(env.Stdout, mode, res)
}

func trash(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("id"); err != nil {
		return err
	}
	svc, err := service(ctx, env, a)
	if err != nil {
		return err
	}
	if _, err := svc.Users.Messages.Trash("me", a.Arg(0)).Context(ctx).Do(); err != nil {
		return apiError(err)
	}
	env.Printf("Moved %s to trash\n", a.Arg(0))
	return nil
}

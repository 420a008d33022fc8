// Package outlook is the Outlook tool: mail and calendar for the signed-in
// Microsoft 365 user through Graph.
package outlook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/email"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/msauth"
	"github.com/shineum/skillkit/internal/msgraph"
	"github.com/shineum/skillkit/internal/provider"
	"github.com/shineum/skillkit/internal/provider/graph"
)

const defaultTop = 20

var tool = &msauth.Tool{
	Name:  "outlook",
	Label: "Outlook",
	Scopes: []string{
		"User.Read",
		"Mail.ReadWrite",
		"Mail.Send",
		"Calendars.Read",
		"offline_access",
	},
}

// Program returns the outlook command set.
func Program() *cli.Program {
	cmds := tool.Commands()
	cmds = append(cmds,
		&cli.Command{
			Name:  "inbox",
			Usage: "[--top N] [--folder inbox] [--unread] [--account email] [--format table|json|csv]",
			Short: "list recent messages in a folder",
			Run:   inbox,
		},
		&cli.Command{
			Name:  "search",
			Usage: "<query> [--top N] [--account email]",
			Short: "search messages",
			Run:   search,
		},
		&cli.Command{
			Name:  "read",
			Usage: "<id> [--account email]",
			Short: "print one message",
			Run:   read,
		},
		&cli.Command{
			Name:       "send",
			Usage:      "--to a [--to b]* --subject s --body b [--cc x]* [--bcc x]* [--html] [--attach path]* [--dry-run]",
			Short:      "send a message as the signed-in user",
			Repeatable: email.SendRepeatable,
			Run:        send,
		},
		&cli.Command{
			Name:  "events",
			Usage: "[--days N] [--account email] [--format table|json|csv]",
			Short: "list upcoming calendar events",
			Run:   events,
		},
		&cli.Command{
			Name:  "freebusy",
			Usage: "<email>... [--hours N] [--account email]",
			Short: "show busy periods for people over the next hours",
			Run:   freebusy,
		},
	)
	return &cli.Program{
		Name:     "outlook",
		Short:    "Outlook mail and calendar via Microsoft Graph",
		Commands: cmds,
	}
}

type recipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func (r recipient) String() string {
	if r.EmailAddress.Name == "" || r.EmailAddress.Name == r.EmailAddress.Address {
		return r.EmailAddress.Address
	}
	return fmt.Sprintf("%s <%s>", r.EmailAddress.Name, r.EmailAddress.Address)
}

type message struct {
	ID               string      `json:"id"`
	Subject          string      `json:"subject"`
	From             recipient   `json:"from"`
	ToRecipients     []recipient `json:"toRecipients"`
	CcRecipients     []recipient `json:"ccRecipients"`
	ReceivedDateTime time.Time   `json:"receivedDateTime"`
	IsRead           bool        `json:"isRead"`
	HasAttachments   bool        `json:"hasAttachments"`
	BodyPreview      string      `json:"bodyPreview"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

const listSelect = "id,receivedDateTime,from,subject,isRead,hasAttachments"

func messageRows(msgs []message) *format.Result {
	res := &format.Result{Columns: []string{"id", "received", "from", "subject", "read"}}
	for _, m := range msgs {
		res.Rows = append(res.Rows, []any{m.ID, m.ReceivedDateTime.Local().Format("2006-01-02 15:04"), m.From.String(), m.Subject, m.IsRead})
	}
	return res
}

func inbox(ctx context.Context, env *cli.Env, a *args.Args) error {
	top, err := a.Int("top", defaultTop)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	q := url.Values{
		"$top":     {strconv.Itoa(top)},
		"$select":  {listSelect},
		"$orderby": {"receivedDateTime desc"},
	}
	if a.Bool("unread") {
		q.Set("$filter", "isRead eq false")
	}
	folder := url.PathEscape(a.StringOr("folder", "inbox"))
	msgs, err := msgraph.List[message](ctx, c, "/me/mailFolders/"+folder+"/messages", q, top)
	if err != nil {
		return err
	}
	return format.Write(env.Stdout, mode, messageRows(msgs))
}

func search(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("query"); err != nil {
		return err
	}
	top, err := a.Int("top", defaultTop)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	// $search takes a quoted KQL string and cannot be combined with $orderby.
	term := strings.ReplaceAll(strings.Join(a.Positional, " "), `"`, `\"`)
	q := url.Values{
		"$search": {`"` + term + `"`},
		"$top":    {strconv.Itoa(top)},
		"$select": {listSelect},
	}
	msgs, err := msgraph.List[message](ctx, c, "/me/messages", q, top)
	if err != nil {
		return err
	}
	return format.Write(env.Stdout, mode, messageRows(msgs))
}

func read(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("id"); err != nil {
		return err
	}
	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	var m message
	req := msgraph.Request{
		Method: http.MethodGet,
		Path:   "/me/messages/" + url.PathEscape(a.Arg(0)),
		Query:  url.Values{"$select": {"id,subject,from,toRecipients,ccRecipients,receivedDateTime,hasAttachments,body"}},
		Header: http.Header{"Prefer": {`outlook.body-content-type="text"`}},
	}
	if err := c.Do(ctx, req, &m); err != nil {
		return err
	}

	env.Printf("From:    %s\n", m.From)
	env.Printf("To:      %s\n", joinRecipients(m.ToRecipients))
	if len(m.CcRecipients) > 0 {
		env.Printf("Cc:      %s\n", joinRecipients(m.CcRecipients))
	}
	env.Printf("Date:    %s\n", m.ReceivedDateTime.Local().Format(time.RFC1123))
	env.Printf("Subject: %s\n", m.Subject)
	if m.HasAttachments {
		env.Printf("(has attachments)\n")
	}
	env.Printf("\n%s\n", strings.TrimSpace(m.Body.Content))
	return nil
}

func joinRecipients(rs []recipient) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ", ")
}

func send(ctx context.Context, env *cli.Env, a *args.Args) error {
	msg, err := email.FromArgs(a)
	if err != nil {
		return err
	}
	p, err := provider.Select(a.Bool("dry-run"), env.Stdout, "outlook", func() (provider.Provider, error) {
		c, err := tool.Client(ctx, env, a)
		if err != nil {
			return nil, err
		}
		return graph.New(c), nil
	})
	if err != nil {
		return err
	}
	return provider.Deliver(ctx, env.Stdout, p, msg)
}

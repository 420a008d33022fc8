// Package slack is the Slack tool: channels, history, posting, users,
// search and reactions through the Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
)

const defaultLimit = 20

// Program returns the slack command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "slack",
		Short: "Slack workspace messaging",
		Commands: []*cli.Command{
			{
				Name:  "channels",
				Usage: "[--limit N] [--format table|json|csv]",
				Short: "list channels the token can see",
				Run:   channels,
			},
			{
				Name:  "history",
				Usage: "<channel> [--limit N] [--format table|json|csv]",
				Short: "show recent messages in a channel",
				Run:   history,
			},
			{
				Name:  "send",
				Usage: "<channel> <text> [--thread ts]",
				Short: "post a message",
				Run:   send,
			},
			{
				Name:  "users",
				Usage: "[--format table|json|csv]",
				Short: "list workspace members",
				Run:   users,
			},
			{
				Name:  "search",
				Usage: "<query> [--limit N] [--format table|json|csv]",
				Short: "search messages (needs a user token)",
				Run:   search,
			},
			{
				Name:  "react",
				Usage: "<channel> <ts> <emoji>",
				Short: "add a reaction to a message",
				Run:   react,
			},
		},
	}
}

func client(env *cli.Env) (*slack.Client, error) {
	cfg := env.Config.Slack
	if cfg.Token == "" {
		return nil, cli.NotConfigured("Slack token", "set SLACK_BOT_TOKEN (xoxb-...) or SLACK_TOKEN (xoxp-... for search)")
	}
	opts := []slack.Option{slack.OptionHTTPClient(env.HTTP())}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return slack.New(cfg.Token, opts...), nil
}

// apiError converts Web API failures to the shared error form.
func apiError(err error) error {
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		return &cli.APIError{Service: "Slack", Message: resp.Err}
	}
	var status slack.StatusCodeError
	if errors.As(err, &status) {
		return &cli.APIError{Service: "Slack", Status: status.Code, Message: status.Status}
	}
	var limited *slack.RateLimitedError
	if errors.As(err, &limited) {
		return &cli.APIError{Service: "Slack", Status: 429, Message: fmt.Sprintf("retry after %s", limited.RetryAfter)}
	}
	return err
}

var channelID = regexp.MustCompile(`^[CGD][A-Z0-9]{6,}$`)

// resolveChannel accepts a channel ID or a name with or without '#'.
func resolveChannel(ctx context.Context, api *slack.Client, ref string) (string, error) {
	name := strings.TrimPrefix(ref, "#")
	if channelID.MatchString(name) {
		return name, nil
	}

	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		ExcludeArchived: true,
		Limit:           200,
	}
	for {
		chans, cursor, err := api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", apiError(err)
		}
		for _, ch := range chans {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if cursor == "" {
			return "", cli.Usagef("channel %q not found", ref)
		}
		params.Cursor = cursor
	}
}

// tsTime converts a message timestamp like "1712345678.000100".
func tsTime(ts string) string {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return ""
	}
	return time.Unix(n, 0).Local().Format("2006-01-02 15:04")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func channels(ctx context.Context, env *cli.Env, a *args.Args) error {
	limit, err := a.Int("limit", 100)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	api, err := client(env)
	if err != nil {
		return err
	}

	res := &format.Result{Columns: []string{"id", "name", "private", "members", "topic"}}
	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		ExcludeArchived: true,
		Limit:           min(limit, 200),
	}
	for len(res.Rows) < limit {
		chans, cursor, err := api.GetConversationsContext(ctx, params)
		if err != nil {
			return apiError(err)
		}
		for _, ch := range chans {
			if len(res.Rows) == limit {
				break
			}
			res.Rows = append(res.Rows, []any{ch.ID, ch.Name, ch.IsPrivate, ch.NumMembers, oneLine(ch.Topic.Value)})
		}
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	return format.Write(env.Stdout, mode, res)
}

func history(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("channel"); err != nil {
		return err
	}
	limit, err := a.Int("limit", defaultLimit)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	api, err := client(env)
	if err != nil {
		return err
	}
	id, err := resolveChannel(ctx, api, a.Arg(0))
	if err != nil {
		return err
	}

	resp, err := api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{ChannelID: id, Limit: limit})
	if err != nil {
		return apiError(err)
	}

	res := &format.Result{Columns: []string{"ts", "time", "user", "text", "replies"}}
	for _, m := range resp.Messages {
		user := m.User
		if user == "" {
			user = m.Username
		}
		res.Rows = append(res.Rows, []any{m.Timestamp, tsTime(m.Timestamp), user, oneLine(m.Text), m.ReplyCount})
	}
	return format.Write(env.Stdout, mode, res)
}

func send(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("channel", "text"); err != nil {
		return err
	}
	api, err := client(env)
	if err != nil {
		return err
	}
	id, err := resolveChannel(ctx, api, a.Arg(0))
	if err != nil {
		return err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(strings.Join(a.Positional[1:], " "), false)}
	if ts, ok := a.String("thread"); ok {
		opts = append(opts, slack.MsgOptionTS(ts))
	}
	ch, ts, err := api.PostMessageContext(ctx, id, opts...)
	if err != nil {
		return apiError(err)
	}
	env.Printf("Sent to %s (ts %s)\n", ch, ts)
	return nil
}

func users(ctx context.Context, env *cli.Env, a *args.Args) error {
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	api, err := client(env)
	if err != nil {
		return err
	}

	members, err := api.GetUsersContext(ctx)
	if err != nil {
		return apiError(err)
	}
	res := &format.Result{Columns: []string{"id", "name", "real_name", "email", "bot"}}
	for _, u := range members {
		if u.Deleted {
			continue
		}
		res.Rows = append(res.Rows, []any{u.ID, u.Name, u.RealName, u.Profile.Email, u.IsBot})
	}
	return format.Write(env.Stdout, mode, res)
}

func search(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("query"); err != nil {
		return err
	}
	limit, err := a.Int("limit", defaultLimit)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	api, err := client(env)
	if err != nil {
		return err
	}

	params := slack.NewSearchParameters()
	params.Count = limit
	params.Sort = "timestamp"
	params.SortDirection = "desc"
	found, err := api.SearchMessagesContext(ctx, strings.Join(a.Positional, " "), params)
	if err != nil {
		return apiError(err)
	}

	res := &format.Result{Columns: []string{"time", "channel", "user", "text", "permalink"}}
	for _, m := range found.Matches {
		res.Rows = append(res.Rows, []any{tsTime(m.Timestamp), "#" + m.Channel.Name, m.Username, oneLine(m.Text), m.Permalink})
	}
	return format.Write(env.Stdout, mode, res)
}

func react(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("channel", "ts", "emoji"); err != nil {
		return err
	}
	api, err := client(env)
	if err != nil {
		return err
	}
	id, err := resolveChannel(ctx, api, a.Arg(0))
	if err != nil {
		return err
	}

	emoji := strings.Trim(a.Arg(2), ":")
	if err := api.AddReactionContext(ctx, emoji, slack.NewRefToMessage(id, a.Arg(1))); err != nil {
		return apiError(err)
	}
	env.Printf("Reacted :%s: to %s\n", emoji, a.Arg(1))
	return nil
}

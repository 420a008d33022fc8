package msauth

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/msgraph"
	"github.com/shineum/skillkit/internal/tokencache"
)

// Tool binds a Graph-backed command set to its own app registration and
// per-account token cache under the tool's state directory.
type Tool struct {
	// Name is the binary name and state directory, e.g. "outlook".
	Name string
	// Label names the tool in messages, e.g. "Outlook".
	Label  string
	Scopes []string
}

// AppPath is where setup stores the app registration.
func (t *Tool) AppPath(env *cli.Env) string {
	return filepath.Join(env.Config.ToolDir(t.Name), "app.json")
}

// Store returns the per-account token cache.
func (t *Tool) Store(env *cli.Env) *tokencache.Store {
	return tokencache.NewAccountFile(filepath.Join(env.Config.ToolDir(t.Name), "tokens.json"))
}

func (t *Tool) hint() string {
	return fmt.Sprintf("run `%s setup --client-id <id>` then `%s login`", t.Name, t.Name)
}

// Resolver builds the credential resolver. The stored app registration wins
// over the client ID from configuration; without either, Login stays nil and
// resolution fails with a setup hint.
func (t *Tool) Resolver(env *cli.Env) (*tokencache.Resolver, error) {
	ms := env.Config.Microsoft

	app, err := LoadApp(t.AppPath(env))
	if err != nil {
		return nil, err
	}
	clientID, tenant := ms.ClientID, ms.TenantID
	if app != nil {
		clientID = app.ClientID
		if app.TenantID != "" {
			tenant = app.TenantID
		}
	}

	r := &tokencache.Resolver{
		Name:   t.Label,
		Static: ms.AccessToken,
		Store:  t.Store(env),
		Hint:   t.hint(),
		Now:    env.Now,
	}
	if clientID == "" {
		return r, nil
	}

	flow := &Flow{
		ClientID:   clientID,
		Endpoint:   Endpoint(ms.AuthorityURL, tenant),
		Scopes:     t.Scopes,
		HTTPClient: env.HTTP(),
		Prompt:     env.Stderr,
		Identify: func(ctx context.Context, accessToken string) (string, error) {
			u, err := msgraph.NewWithBaseURL(ms.GraphURL, accessToken, env.HTTP()).Me(ctx)
			if err != nil {
				return "", err
			}
			return u.Address(), nil
		},
		Now: env.Now,
	}
	r.Login = flow.Login
	r.Refresh = flow.Refresh
	return r, nil
}

// Client resolves a token for the --account option (or the configured
// default account) and returns a Graph client using it.
func (t *Tool) Client(ctx context.Context, env *cli.Env, a *args.Args) (*msgraph.Client, error) {
	r, err := t.Resolver(env)
	if err != nil {
		return nil, err
	}
	tok, src, err := r.Token(ctx, a.StringOr("account", env.Config.Microsoft.Account))
	if err != nil {
		return nil, err
	}
	slog.Debug("resolved graph token", "tool", t.Name, "source", src)
	return msgraph.NewWithBaseURL(env.Config.Microsoft.GraphURL, tok.AccessToken, env.HTTP()), nil
}

// Commands returns setup, login, accounts and remove-account.
func (t *Tool) Commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "setup",
			Usage: "--client-id <id> [--tenant <tenant>]",
			Short: "store the Azure app registration used to sign in",
			Run:   t.setup,
		},
		{
			Name:  "login",
			Usage: "[--account <email>]",
			Short: "sign in with a device code and cache the token",
			Run:   t.login,
		},
		{
			Name:  "accounts",
			Short: "list signed-in accounts",
			Run:   t.accounts,
		},
		{
			Name:  "remove-account",
			Usage: "<email>",
			Short: "forget a cached account",
			Run:   t.removeAccount,
		},
	}
}

func (t *Tool) setup(_ context.Context, env *cli.Env, a *args.Args) error {
	if err := a.Require("client-id"); err != nil {
		return err
	}
	clientID, _ := a.String("client-id")
	app := &App{
		ClientID: clientID,
		TenantID: a.StringOr("tenant", env.Config.Microsoft.TenantID),
	}

	path := t.AppPath(env)
	if err := SaveApp(path, app); err != nil {
		return err
	}
	env.Printf("Saved app registration to %s\n", path)
	env.Printf("Next: %s login\n", t.Name)
	return nil
}

func (t *Tool) login(ctx context.Context, env *cli.Env, a *args.Args) error {
	r, err := t.Resolver(env)
	if err != nil {
		return err
	}
	account, err := r.ForceLogin(ctx, a.StringOr("account", ""))
	if err != nil {
		return err
	}
	env.Printf("Logged in as %s\n", account)
	return nil
}

func (t *Tool) accounts(_ context.Context, env *cli.Env, a *args.Args) error {
	store := t.Store(env)
	accounts, err := store.Accounts()
	if err != nil {
		return err
	}

	res := &format.Result{Columns: []string{"account", "expires"}}
	for _, account := range accounts {
		tok, err := store.Get(account)
		if err != nil {
			return err
		}
		res.Rows = append(res.Rows, []any{account, tok.Expiry().Local().Format("2006-01-02 15:04")})
	}
	return format.Print(env.Stdout, a, res)
}

func (t *Tool) removeAccount(_ context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("email"); err != nil {
		return err
	}
	account := a.Arg(0)
	if err := t.Store(env).Remove(account); err != nil {
		return err
	}
	env.Printf("Removed %s\n", account)
	return nil
}

package gmail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/tokencache"
)

const toolName = "gmail"

func credentialsPath(env *cli.Env) string {
	if p := env.Config.Gmail.CredentialsFile; p != "" {
		return p
	}
	return filepath.Join(env.Config.ToolDir(toolName), "credentials.json")
}

func tokenStore(env *cli.Env) *tokencache.Store {
	return tokencache.NewAccountFile(filepath.Join(env.Config.ToolDir(toolName), "tokens.json"))
}

func setupHint(env *cli.Env) string {
	return fmt.Sprintf("save a Desktop OAuth client as %s (or set GMAIL_CREDENTIALS_FILE), then run `gmail auth`", credentialsPath(env))
}

// oauthConfig reads the installed-app client. It returns nil, nil when the
// credentials file does not exist.
func oauthConfig(env *cli.Env) (*oauth2.Config, error) {
	path := credentialsPath(env)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read Gmail credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(data, gmail.GmailModifyScope)
	if err != nil {
		return nil, &cli.ConfigError{Msg: fmt.Sprintf("invalid Gmail credentials file %s: %v", path, err), Hint: setupHint(env)}
	}
	return conf, nil
}

// newService returns a Gmail API client authenticating with accessToken.
func newService(ctx context.Context, env *cli.Env, accessToken string) (*gmail.Service, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, env.HTTP())
	hc := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if u := env.Config.Gmail.APIURL; u != "" {
		opts = append(opts, option.WithEndpoint(u))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}
	return svc, nil
}

func resolver(env *cli.Env) (*tokencache.Resolver, error) {
	r := &tokencache.Resolver{
		Name:   "Gmail",
		Static: env.Config.Gmail.AccessToken,
		Store:  tokenStore(env),
		Hint:   setupHint(env),
		Now:    env.Now,
	}

	conf, err := oauthConfig(env)
	if err != nil || conf == nil {
		return r, err
	}

	oauthCtx := func(ctx context.Context) context.Context {
		return context.WithValue(ctx, oauth2.HTTPClient, env.HTTP())
	}
	r.Login = func(ctx context.Context, account string) (*tokencache.Grant, error) {
		return pasteLogin(ctx, env, conf, account)
	}
	r.Refresh = func(ctx context.Context, refreshToken string) (*tokencache.Grant, error) {
		tok, err := conf.TokenSource(oauthCtx(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return nil, err
		}
		return tokencache.GrantFromOAuth(tok, env.Clock()), nil
	}
	return r, nil
}

// pasteLogin prints the consent URL, reads the authorization code (or the
// whole redirect URL) from stdin and exchanges it. The account is taken from
// the mailbox profile.
func pasteLogin(ctx context.Context, env *cli.Env, conf *oauth2.Config, account string) (*tokencache.Grant, error) {
	authURL := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(env.Stderr, "Open this URL in a browser and authorize access:\n\n  %s\n\n", authURL)
	if account != "" {
		fmt.Fprintf(env.Stderr, "Sign in as %s.\n", account)
	}
	fmt.Fprint(env.Stderr, "Paste the authorization code or the redirect URL: ")

	line, err := bufio.NewReader(env.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("no authorization code entered")
	}
	code := extractCode(line)
	if code == "" {
		return nil, fmt.Errorf("no authorization code entered")
	}

	tok, err := conf.Exchange(context.WithValue(ctx, oauth2.HTTPClient, env.HTTP()), code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	grant := tokencache.GrantFromOAuth(tok, env.Clock())

	svc, err := newService(ctx, env, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to identify signed-in account: %w", apiError(err))
	}
	grant.Account = profile.EmailAddress
	return grant, nil
}

// extractCode accepts a bare code or a redirect URL carrying ?code=.
func extractCode(input string) string {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "code=") {
		if u, err := url.Parse(input); err == nil {
			return u.Query().Get("code")
		}
	}
	return input
}

// service resolves a token for --account and returns an API client.
func service(ctx context.Context, env *cli.Env, a *args.Args) (*gmail.Service, error) {
	r, err := resolver(env)
	if err != nil {
		return nil, err
	}
	tok, _, err := r.Token(ctx, a.StringOr("account", env.Config.Gmail.Account))
	if err != nil {
		return nil, err
	}
	return newService(ctx, env, tok.AccessToken)
}

package salesforce

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"

	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/config"
	"github.com/shineum/skillkit/internal/tokencache"
)

const (
	toolName = "salesforce"

	// extraInstanceURL is the Token.Extra key holding the org's API host.
	extraInstanceURL = "instance_url"

	loginHint = "set SALESFORCE_CLIENT_ID, SALESFORCE_CLIENT_SECRET, SALESFORCE_USERNAME and SALESFORCE_PASSWORD " +
		"(plus SALESFORCE_SECURITY_TOKEN), or SALESFORCE_ACCESS_TOKEN with SALESFORCE_INSTANCE_URL"
)

func tokenStore(cfg *config.Config) *tokencache.Store {
	return tokencache.NewFile(filepath.Join(cfg.ToolDir(toolName), "token.json"))
}

// resolver builds the credential chain: the environment token, the cached
// session, then the username-password exchange.
func resolver(env *cli.Env) (*tokencache.Resolver, error) {
	cfg := env.Config
	s := cfg.Salesforce

	r := &tokencache.Resolver{
		Name:  "Salesforce",
		Store: tokenStore(cfg),
		Hint:  loginHint,
		Now:   env.Now,
	}

	if s.AccessToken != "" {
		if s.InstanceURL == "" {
			return nil, &cli.ConfigError{
				Msg:  "SALESFORCE_ACCESS_TOKEN is set without an instance URL",
				Hint: "set SALESFORCE_INSTANCE_URL, e.g. https://yourorg.my.salesforce.com",
			}
		}
		r.Static = s.AccessToken
		return r, nil
	}

	if cfg.SalesforcePasswordConfigured() {
		r.Login = func(ctx context.Context, _ string) (*tokencache.Grant, error) {
			return passwordLogin(ctx, env)
		}
	}
	return r, nil
}

// passwordLogin runs the OAuth username-password flow. The security token is
// appended to the password as the API requires.
func passwordLogin(ctx context.Context, env *cli.Env) (*tokencache.Grant, error) {
	s := env.Config.Salesforce
	conf := &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(s.LoginURL, "/") + "/services/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, env.HTTP())
	tok, err := conf.PasswordCredentialsToken(ctx, s.Username, s.Password+s.SecurityToken)
	if err != nil {
		return nil, err
	}

	instance, _ := tok.Extra(extraInstanceURL).(string)
	if instance == "" {
		return nil, &cli.APIError{Service: "Salesforce", Message: "token response has no instance_url"}
	}

	grant := tokencache.GrantFromOAuth(tok, env.Clock())
	grant.Extra = map[string]string{extraInstanceURL: instance}
	return grant, nil
}

// session is an authenticated API target.
type session struct {
	token       string
	instanceURL string
	// cached is true when the token came from the cache file, so a 401
	// means the session was revoked early.
	cached bool
}

func authenticate(ctx context.Context, env *cli.Env) (*session, error) {
	r, err := resolver(env)
	if err != nil {
		return nil, err
	}
	tok, src, err := r.Token(ctx, "")
	if err != nil {
		return nil, err
	}

	instance := tok.Extra[extraInstanceURL]
	if src == tokencache.SourceEnv {
		instance = env.Config.Salesforce.InstanceURL
	}
	if instance == "" {
		return nil, &cli.ConfigError{Msg: "cached Salesforce session has no instance URL", Hint: "delete " + r.Store.Path() + " and retry"}
	}
	return &session{token: tok.AccessToken, instanceURL: instance, cached: src == tokencache.SourceCache}, nil
}

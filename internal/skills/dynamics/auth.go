package dynamics

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/msauth"
	"github.com/shineum/skillkit/internal/msgraph"
	"github.com/shineum/skillkit/internal/tokencache"
)

const toolName = "dynamics"

const setupHint = "run `dynamics setup --url https://<org>.crm.dynamics.com --client-id <id>` then `dynamics login`"

func appPath(env *cli.Env) string {
	return filepath.Join(env.Config.ToolDir(toolName), "app.json")
}

func tokenStore(env *cli.Env) *tokencache.Store {
	return tokencache.NewFile(filepath.Join(env.Config.ToolDir(toolName), "token.json"))
}

// target is the resolved environment and app registration. A stored app
// registration wins over configuration.
type target struct {
	url      string
	clientID string
	tenant   string
}

func resolveTarget(env *cli.Env) (*target, error) {
	d := env.Config.Dynamics
	t := &target{url: d.URL, clientID: d.ClientID, tenant: d.TenantID}

	app, err := msauth.LoadApp(appPath(env))
	if err != nil {
		return nil, err
	}
	if app != nil {
		if app.URL != "" {
			t.url = app.URL
		}
		if app.ClientID != "" {
			t.clientID = app.ClientID
		}
		if app.TenantID != "" {
			t.tenant = app.TenantID
		}
	}

	t.url = strings.TrimRight(t.url, "/")
	if t.url == "" {
		return nil, cli.NotConfigured("Dynamics environment URL", setupHint+", or set DYNAMICS_URL")
	}
	return t, nil
}

// resolver builds the credential chain for t. With a client secret, login
// uses the app-only grant; otherwise it is the device-code flow.
func resolver(env *cli.Env, t *target) *tokencache.Resolver {
	d := env.Config.Dynamics
	r := &tokencache.Resolver{
		Name:   "Dynamics",
		Static: d.AccessToken,
		Store:  tokenStore(env),
		Hint:   setupHint,
		Now:    env.Now,
	}
	if t.clientID == "" {
		return r
	}

	scopes := []string{t.url + "/.default"}
	if d.ClientSecret == "" {
		scopes = append(scopes, "offline_access")
	}
	flow := &msauth.Flow{
		ClientID:     t.clientID,
		ClientSecret: d.ClientSecret,
		Endpoint:     msauth.Endpoint(env.Config.Microsoft.AuthorityURL, t.tenant),
		Scopes:       scopes,
		HTTPClient:   env.HTTP(),
		Prompt:       env.Stderr,
		Now:          env.Now,
	}
	r.Login = flow.Login
	r.Refresh = flow.Refresh
	return r
}

// client returns a Web API client for the configured environment.
func client(ctx context.Context, env *cli.Env) (*msgraph.Client, error) {
	t, err := resolveTarget(env)
	if err != nil {
		return nil, err
	}
	tok, _, err := resolver(env, t).Token(ctx, "")
	if err != nil {
		return nil, err
	}
	base := t.url + "/api/data/" + env.Config.Dynamics.APIVersion
	return msgraph.NewWithBaseURL(base, tok.AccessToken, env.HTTP()).WithService("Dynamics"), nil
}

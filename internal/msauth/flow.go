// Package msauth implements Microsoft identity platform sign-in for the
// Graph and Dataverse tools: a stored app registration, the device-code
// flow, refresh, and the app-only client credentials grant.
package msauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"github.com/shineum/skillkit/internal/tokencache"
)

// defaultAuthority is the public-cloud login host baked into
// microsoft.AzureADEndpoint.
const defaultAuthority = "https://login.microsoftonline.com"

// App is a stored app registration.
type App struct {
	ClientID string `json:"clientId"`
	TenantID string `json:"tenantId,omitempty"`
	// URL is the environment URL for tools that target one, such as a
	// Dataverse organization.
	URL string `json:"url,omitempty"`
}

// LoadApp reads an app registration. It returns nil, nil when the file does
// not exist.
func LoadApp(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read app registration: %w", err)
	}

	var app App
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("failed to parse app registration %s: %w", path, err)
	}
	return &app, nil
}

// SaveApp writes an app registration, creating its directory.
func SaveApp(path string, app *App) error {
	data, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode app registration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write app registration: %w", err)
	}
	return nil
}

// Endpoint returns the v2.0 endpoints for tenant under authority. An empty
// authority means the public cloud.
func Endpoint(authority, tenant string) oauth2.Endpoint {
	ep := microsoft.AzureADEndpoint(tenant)
	authority = strings.TrimRight(authority, "/")
	if authority != "" && authority != defaultAuthority {
		ep.AuthURL = strings.Replace(ep.AuthURL, defaultAuthority, authority, 1)
		ep.TokenURL = strings.Replace(ep.TokenURL, defaultAuthority, authority, 1)
		ep.DeviceAuthURL = strings.Replace(ep.DeviceAuthURL, defaultAuthority, authority, 1)
	}
	ep.AuthStyle = oauth2.AuthStyleInParams
	return ep
}

// Flow signs a user or an application in against one app registration.
type Flow struct {
	ClientID string
	// ClientSecret, when set, makes Login use the client credentials grant
	// instead of the device-code flow.
	ClientSecret string
	Endpoint     oauth2.Endpoint
	Scopes       []string

	HTTPClient *http.Client
	// Prompt receives the device-code sign-in instructions.
	Prompt io.Writer
	// Identify resolves the signed-in account from a fresh access token.
	Identify func(ctx context.Context, accessToken string) (string, error)

	Now func() time.Time
}

func (f *Flow) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: f.ClientID,
		Endpoint: f.Endpoint,
		Scopes:   f.Scopes,
	}
}

func (f *Flow) ctx(ctx context.Context) context.Context {
	if f.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
}

// Login obtains a new token. With a client secret it runs the client
// credentials grant; otherwise it prints a verification URL and user code
// and polls until the user completes sign-in.
func (f *Flow) Login(ctx context.Context, account string) (*tokencache.Grant, error) {
	if f.ClientSecret != "" {
		return f.appLogin(ctx)
	}

	ctx = f.ctx(ctx)
	cfg := f.config()

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}

	prompt := f.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}
	fmt.Fprintf(prompt, "To sign in, open %s and enter the code %s\n", da.VerificationURI, da.UserCode)
	if account != "" {
		fmt.Fprintf(prompt, "Sign in as %s.\n", account)
	}

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device code sign-in failed: %w", err)
	}

	grant := tokencache.GrantFromOAuth(tok, f.now())
	if f.Identify != nil {
		who, err := f.Identify(ctx, tok.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to identify signed-in account: %w", err)
		}
		grant.Account = who
	}
	return grant, nil
}

// Refresh exchanges a refresh token for a new access token.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) (*tokencache.Grant, error) {
	src := f.config().TokenSource(f.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	return tokencache.GrantFromOAuth(tok, f.now()), nil
}

func (f *Flow) appLogin(ctx context.Context) (*tokencache.Grant, error) {
	cc := &clientcredentials.Config{
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		TokenURL:     f.Endpoint.TokenURL,
		Scopes:       f.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cc.Token(f.ctx(ctx))
	if err != nil {
		return nil, fmt.Errorf("client credentials grant failed: %w", err)
	}
	return tokencache.GrantFromOAuth(tok, f.now()), nil
}

func (f *Flow) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

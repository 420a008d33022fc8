package tokencache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/shineum/skillkit/internal/cli"
)

// defaultLifetime is assumed when a provider reports no token lifetime.
const defaultLifetime = time.Hour

// Source names where a resolved credential came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceCache   Source = "cache"
	SourceRefresh Source = "refresh"
	SourceLogin   Source = "login"
)

// Grant is the result of an authentication exchange.
type Grant struct {
	// Account is the identity the grant belongs to, when the provider
	// reports one. Keyed stores file the token under it.
	Account      string
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Extra        map[string]string
}

// GrantFromOAuth converts an oauth2 token. The lifetime is measured from now.
func GrantFromOAuth(tok *oauth2.Token, now time.Time) *Grant {
	g := &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		g.ExpiresIn = tok.Expiry.Sub(now)
	}
	return g
}

// LoginFunc performs an interactive exchange for account. account may be
// empty when the caller has not chosen one yet.
type LoginFunc func(ctx context.Context, account string) (*Grant, error)

// RefreshFunc exchanges a refresh token for a new grant.
type RefreshFunc func(ctx context.Context, refreshToken string) (*Grant, error)

// Resolver obtains a bearer credential without forcing re-authentication on
// every invocation.
type Resolver struct {
	// Name labels the credential in messages, e.g. "Outlook".
	Name string
	// Static is a credential supplied through the environment. When set it
	// wins over everything else.
	Static  string
	Store   *Store
	Refresh RefreshFunc
	// Login is nil when no app registration or credentials are configured.
	Login LoginFunc
	// Hint names the setup command shown when nothing is configured.
	Hint string

	Now func() time.Time
}

// Token resolves a credential for account: environment first, then a cached
// token still before its expiry, then a refresh exchange, then an
// interactive login whose result is persisted. With no usable source it fails
// fast with a *cli.ConfigError carrying Hint.
func (r *Resolver) Token(ctx context.Context, account string) (*Token, Source, error) {
	if r.Static != "" {
		slog.Debug("using credential from environment", "name", r.Name)
		return &Token{AccessToken: r.Static}, SourceEnv, nil
	}

	if r.Store == nil {
		return nil, "", cli.NotConfigured(r.Name+" credentials", r.Hint)
	}

	account, err := r.pickAccount(account)
	if err != nil {
		return nil, "", err
	}

	cached, err := r.Store.Get(account)
	if err != nil {
		return nil, "", err
	}

	now := r.now()
	if cached != nil && cached.Valid(now) {
		slog.Debug("using cached token", "name", r.Name, "account", account, "expires_at", cached.Expiry())
		return cached, SourceCache, nil
	}

	if cached != nil && cached.RefreshToken != "" && r.Refresh != nil {
		grant, err := r.Refresh(ctx, cached.RefreshToken)
		if err == nil {
			if grant.RefreshToken == "" {
				grant.RefreshToken = cached.RefreshToken
			}
			tok, err := r.persist(account, grant, cached.Extra)
			return tok, SourceRefresh, err
		}
		slog.Warn("token refresh failed", "name", r.Name, "account", account, "error", err)
	}

	if r.Login == nil {
		return nil, "", cli.NotConfigured(r.Name+" credentials", r.Hint)
	}

	grant, err := r.Login(ctx, account)
	if err != nil {
		return nil, "", fmt.Errorf("%s login failed: %w", r.Name, err)
	}
	tok, err := r.persist(account, grant, nil)
	return tok, SourceLogin, err
}

// ForceLogin runs the interactive exchange regardless of cache state and
// persists the result. It returns the account the token was stored under.
func (r *Resolver) ForceLogin(ctx context.Context, account string) (string, error) {
	if r.Login == nil {
		return "", cli.NotConfigured(r.Name+" app registration", r.Hint)
	}
	grant, err := r.Login(ctx, account)
	if err != nil {
		return "", fmt.Errorf("%s login failed: %w", r.Name, err)
	}
	if grant.Account != "" {
		account = grant.Account
	}
	if _, err := r.persist(account, grant, nil); err != nil {
		return "", err
	}
	return account, nil
}

// pickAccount defaults an empty account to the only cached one.
func (r *Resolver) pickAccount(account string) (string, error) {
	if account != "" || !r.Store.Keyed() {
		return account, nil
	}
	accounts, err := r.Store.Accounts()
	if err != nil {
		return "", err
	}
	switch len(accounts) {
	case 0:
		return "", nil
	case 1:
		return accounts[0], nil
	default:
		return "", cli.Usagef("several %s accounts are cached (%v); pass --account", r.Name, accounts)
	}
}

func (r *Resolver) persist(account string, grant *Grant, extra map[string]string) (*Token, error) {
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("%s token response missing access token", r.Name)
	}
	if grant.Account != "" {
		account = grant.Account
	}

	lifetime := grant.ExpiresIn
	if lifetime <= 0 {
		lifetime = defaultLifetime
	}

	tok := Token{
		AccessToken:  grant.AccessToken,
		ExpiresAt:    r.now().Add(lifetime).UnixMilli(),
		RefreshToken: grant.RefreshToken,
		Extra:        extra,
	}
	if grant.Extra != nil {
		tok.Extra = grant.Extra
	}

	if err := r.Store.Put(account, tok); err != nil {
		return nil, err
	}
	slog.Debug("stored token", "name", r.Name, "account", account, "expires_at", tok.Expiry())
	return &tok, nil
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

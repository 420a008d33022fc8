// Package tokencache persists bearer credentials on disk and resolves them
// in a fixed order: environment, cache, refresh, interactive login.
package tokencache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Token is one cached credential. ExpiresAt is stored as Unix milliseconds.
type Token struct {
	AccessToken  string `json:"accessToken"`
	ExpiresAt    int64  `json:"expiresAt"`
	RefreshToken string `json:"refreshToken,omitempty"`

	// Extra carries provider-specific fields such as a Salesforce
	// instance URL.
	Extra map[string]string `json:"extra,omitempty"`
}

// Expiry returns ExpiresAt as a time.Time.
func (t Token) Expiry() time.Time {
	return time.UnixMilli(t.ExpiresAt)
}

// Valid reports whether the token has an access token and now is before its
// expiry.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.Expiry())
}

// Store is a JSON token file. A single-token store holds one Token object;
// a keyed store holds an object mapping account identifiers to Tokens.
//
// Writes overwrite the whole file. Concurrent invocations are not
// coordinated.
type Store struct {
	path  string
	keyed bool
}

// NewFile returns a store holding a single token at path.
func NewFile(path string) *Store {
	return &Store{path: path}
}

// NewAccountFile returns a store holding one token per account at path.
func NewAccountFile(path string) *Store {
	return &Store{path: path, keyed: true}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Keyed reports whether the store holds one token per account.
func (s *Store) Keyed() bool {
	return s.keyed
}

// Get returns the token for account, or nil when none is cached. The account
// is ignored by single-token stores.
func (s *Store) Get(account string) (*Token, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	tok, ok := all[s.key(account)]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

// Put stores tok for account, replacing any previous token.
func (s *Store) Put(account string, tok Token) error {
	all, err := s.load()
	if err != nil {
		return err
	}
	all[s.key(account)] = tok
	return s.save(all)
}

// Remove deletes the token for account. Removing the last token deletes the
// file.
func (s *Store) Remove(account string) error {
	all, err := s.load()
	if err != nil {
		return err
	}
	key := s.key(account)
	if _, ok := all[key]; !ok {
		return fmt.Errorf("no cached token for %q", account)
	}
	delete(all, key)

	if len(all) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete token cache: %w", err)
		}
		return nil
	}
	return s.save(all)
}

// Accounts lists the cached accounts in sorted order. Single-token stores
// return nil.
func (s *Store) Accounts() ([]string, error) {
	if !s.keyed {
		return nil, nil
	}
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	accounts := make([]string, 0, len(all))
	for account := range all {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts, nil
}

func (s *Store) key(account string) string {
	if !s.keyed {
		return ""
	}
	return account
}

func (s *Store) load() (map[string]Token, error) {
	all := make(map[string]Token)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return all, nil
		}
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}

	if !s.keyed {
		var tok Token
		if err := json.Unmarshal(data, &tok); err != nil {
			return nil, fmt.Errorf("failed to parse token cache %s: %w", s.path, err)
		}
		if tok.AccessToken != "" || tok.RefreshToken != "" {
			all[""] = tok
		}
		return all, nil
	}

	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse token cache %s: %w", s.path, err)
	}
	return all, nil
}

func (s *Store) save(all map[string]Token) error {
	var v any = all
	if !s.keyed {
		v = all[""]
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token cache directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	return nil
}

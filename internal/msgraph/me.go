package msgraph

import (
	"context"
	"net/url"
)

// User is the subset of a Graph user the tools display.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Address returns the user's mail address, falling back to the UPN.
func (u *User) Address() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	q := url.Values{"$select": {"id,displayName,mail,userPrincipalName"}}
	if err := c.Get(ctx, "/me", q, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fintrack/internal/credstore"
)

// ErrNoExpiry is returned for tokens that are not JWTs or carry no exp claim.
var ErrNoExpiry = errors.New("token has no expiry")

// Credentials is the stored credential pair. RefreshToken is empty for
// cookie-based sessions.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// LoggedIn reports whether an access token is stored.
func (c Credentials) LoggedIn() bool { return c.AccessToken != "" }

// Credentials returns the stored pair; missing keys come back empty.
func (c *Client) Credentials(ctx context.Context) (Credentials, error) {
	access, err := credstore.Lookup(ctx, c.store, credstore.KeyAccessToken)
	if err != nil {
		return Credentials{}, fmt.Errorf("read access token: %w", err)
	}
	refresh, err := credstore.Lookup(ctx, c.store, credstore.KeyRefreshToken)
	if err != nil {
		return Credentials{}, fmt.Errorf("read refresh token: %w", err)
	}
	return Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// AccessExpiry reads the exp claim of the stored access token. The
// signature is not verified; the backend does that. This is for display.
func (c *Client) AccessExpiry(ctx context.Context) (time.Time, error) {
	creds, err := c.Credentials(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if creds.AccessToken == "" {
		return time.Time{}, credstore.ErrNotFound
	}
	return TokenExpiry(creds.AccessToken)
}

// TokenExpiry returns the exp claim of an unverified JWT.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrNoExpiry, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrNoExpiry, err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	return credstore.Lookup(ctx, c.store, credstore.KeyAccessToken)
}

// BankToken returns the stored bank-link access token, or "".
func (c *Client) BankToken(ctx context.Context) (string, error) {
	return credstore.Lookup(ctx, c.store, credstore.KeyBankToken)
}

// SetBankToken stores the bank-link access token obtained from a public
// token exchange.
func (c *Client) SetBankToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("bank token cannot be empty")
	}
	return c.store.Set(ctx, credstore.KeyBankToken, token)
}

// Package credstore persists the session's credential keys
// (access token, refresh token, bank token) behind one small interface.
package credstore

import (
	"context"
	"errors"
)

// Storage keys.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyBankToken    = "plaidAccessToken"
)

// AllKeys lists every key the session owns, in clearing order.
var AllKeys = []string{KeyAccessToken, KeyRefreshToken, KeyBankToken}

var (
	ErrNotFound = errors.New("credential not found")
	ErrEmptyKey = errors.New("credential key cannot be empty")
)

// Store is a goroutine-safe key-value store for session credentials.
// Get returns ErrNotFound for a missing key. Delete of a missing key is
// not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Lookup returns the value for key, or "" when it is not stored.
func Lookup(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

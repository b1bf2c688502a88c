package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/credstore"
	"fintrack/internal/log"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type googleLoginRequest struct {
	Token string `json:"token"`
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// Login exchanges username and password for a credential pair and stores it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}
	return c.authenticate(ctx, PathLogin, loginRequest{Username: username, Password: password}, EventLogin)
}

// GoogleLogin exchanges a Google ID token for a credential pair.
func (c *Client) GoogleLogin(ctx context.Context, idToken string) error {
	if idToken == "" {
		return errors.New("google token is required")
	}
	return c.authenticate(ctx, PathGoogleLogin, googleLoginRequest{Token: idToken}, EventLogin)
}

// Signup registers a new account. When the backend answers with a
// credential pair the new session is stored right away.
func (c *Client) Signup(ctx context.Context, username, email, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}
	return c.authenticate(ctx, PathSignup, signupRequest{Username: username, Email: email, Password: password}, EventSignup)
}

func (c *Client) authenticate(ctx context.Context, path string, body any, event EventType) error {
	var pair tokenPair
	if err := c.DoJSON(ctx, http.MethodPost, path, nil, body, &pair); err != nil {
		return err
	}

	if pair.Access != "" {
		if err := c.store.Set(ctx, credstore.KeyAccessToken, pair.Access); err != nil {
			return fmt.Errorf("store access token: %w", err)
		}
	}
	if pair.Refresh != "" {
		if err := c.store.Set(ctx, credstore.KeyRefreshToken, pair.Refresh); err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
	}
	c.reset()

	c.logger.InfoContext(ctx, "Authenticated", log.FieldOperation, log.OpLogin, log.FieldEvent, string(event))
	c.emit(ctx, Event{Type: event})
	return nil
}

// Logout tells the backend to end the session and clears local
// credentials whatever the backend says.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.logoutAndClear(ctx); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Logged out", log.FieldOperation, log.OpLogout)
	c.emit(ctx, Event{Type: EventLogout})
	return nil
}

// AuthStatus asks the backend whether the session is valid. It never
// fails: any error reads as unauthenticated. It bypasses 401 recovery so
// probing a dead session cannot itself terminate it.
func (c *Client) AuthStatus(ctx context.Context) core.AuthStatus {
	req, err := c.newRequest(ctx, http.MethodGet, PathStatus, nil, nil)
	if err != nil {
		return core.AuthStatus{}
	}
	var status core.AuthStatus
	if err := c.roundTrip(c.authed, req, &status); err != nil {
		c.logger.DebugContext(ctx, "Auth status check failed", log.FieldError, err)
		return core.AuthStatus{}
	}
	return status
}

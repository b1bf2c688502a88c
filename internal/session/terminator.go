package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fintrack/internal/credstore"
	"fintrack/internal/log"
)

const logoutTimeout = 5 * time.Second

// Navigator sends the user to a route. A CLI prints a hint; the gateway
// turns it into a redirect.
type Navigator interface {
	Navigate(ctx context.Context, route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, route string)

func (f NavigatorFunc) Navigate(ctx context.Context, route string) { f(ctx, route) }

type nopNavigator struct{}

func (nopNavigator) Navigate(context.Context, string) {}

// terminate runs after a failed refresh: advisory logout, clear every
// stored credential, navigate to login. It returns the error the waiting
// callers receive.
func (c *Client) terminate(ctx context.Context, cause error) error {
	if err := c.logoutAndClear(ctx); err != nil {
		c.logger.WarnContext(ctx, "Clearing credentials after failed refresh", log.FieldError, err)
	}

	c.navigator.Navigate(ctx, c.loginRoute)
	c.metrics.terminations.Inc()
	c.emit(ctx, Event{Type: EventTerminated, Reason: cause.Error()})
	c.logger.WarnContext(ctx, "Session terminated", "login_route", c.loginRoute)

	return fmt.Errorf("%w: %w", ErrSessionTerminated, cause)
}

// logoutAndClear makes a best-effort logout call and then clears the
// store no matter how the call went. Only a store failure is returned.
// Reset hooks run even then, since some keys may already be gone.
func (c *Client) logoutAndClear(ctx context.Context) error {
	defer c.reset()

	lctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()

	if err := c.postLogout(lctx); err != nil {
		c.logger.DebugContext(ctx, "Logout call failed, ignoring", log.FieldError, err)
	}

	if err := c.store.Delete(ctx, credstore.AllKeys...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (c *Client) postLogout(ctx context.Context) error {
	refreshToken, _ := credstore.Lookup(ctx, c.store, credstore.KeyRefreshToken)
	req, err := c.newRequest(ctx, http.MethodPost, PathLogout, nil, refreshRequest{Refresh: refreshToken})
	if err != nil {
		return err
	}
	resp, err := c.authed.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: req.Method, Path: req.URL.Path, StatusCode: resp.StatusCode}
	}
	return nil
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/credstore"
	"fintrack/internal/log"
)

// DefaultRefreshTimeout bounds one refresh call so a hung backend cannot
// wedge every waiting request.
const DefaultRefreshTimeout = 10 * time.Second

const refreshKey = "refresh"

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type refreshRequest struct {
	Refresh string `json:"refresh,omitempty"`
}

// coordinator guarantees at most one refresh in flight per client.
// singleflight forgets the key as soon as the call settles, so the next
// 401 after a success or a failure starts a fresh attempt.
type coordinator struct {
	group   singleflight.Group
	timeout time.Duration
	refresh func(ctx context.Context) error
	fail    func(ctx context.Context, cause error) error
	metrics *Metrics
	logger  *log.Logger
}

// ensureFresh joins the pending refresh or starts one. The refresh itself
// runs detached from ctx so one impatient caller cannot fail the others;
// ctx only bounds how long this caller waits.
func (co *coordinator) ensureFresh(ctx context.Context) error {
	led := false
	ch := co.group.DoChan(refreshKey, func() (any, error) {
		led = true
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), co.timeout)
		defer cancel()

		start := time.Now()
		err := co.refresh(rctx)
		co.metrics.refreshDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			co.metrics.refreshes.WithLabelValues(outcomeSuccess).Inc()
			co.logger.InfoContext(ctx, "Session refreshed", log.FieldOperation, log.OpRefresh)
			return nil, nil
		}

		co.metrics.refreshes.WithLabelValues(outcomeFailure).Inc()
		co.logger.WarnContext(ctx, "Session refresh failed", log.FieldOperation, log.OpRefresh, log.FieldError, err)
		// Terminate inside the flight so every waiter observes cleared
		// credentials by the time it sees the error.
		return nil, co.fail(context.WithoutCancel(ctx), err)
	})

	select {
	case res := <-ch:
		// The leader sees Shared too; only callers that joined count.
		if res.Shared && !led {
			co.metrics.refreshShared.Inc()
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doRefresh posts the stored refresh token (or an empty body for
// cookie-based sessions) and stores the new pair.
func (c *Client) doRefresh(ctx context.Context) error {
	refreshToken, err := credstore.Lookup(ctx, c.store, credstore.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("%w: read refresh token: %w", ErrRefreshFailed, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, PathRefresh, nil, refreshRequest{Refresh: refreshToken})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	resp, err := c.bare.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: %w", ErrRefreshFailed, &StatusError{
			Method: req.Method, Path: req.URL.Path, StatusCode: resp.StatusCode, Body: body,
		})
	}

	var pair tokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode refresh response: %w", ErrRefreshFailed, err)
	}
	if pair.Access != "" {
		if err := c.store.Set(ctx, credstore.KeyAccessToken, pair.Access); err != nil {
			return fmt.Errorf("%w: store access token: %w", ErrRefreshFailed, err)
		}
	}
	if pair.Refresh != "" {
		if err := c.store.Set(ctx, credstore.KeyRefreshToken, pair.Refresh); err != nil {
			return fmt.Errorf("%w: store refresh token: %w", ErrRefreshFailed, err)
		}
	}

	c.emit(ctx, Event{Type: EventRefreshed})
	return nil
}

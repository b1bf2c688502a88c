package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

type retriedKey struct{}

// markRetried scopes the retry marker to one request's context. It never
// outlives that request.
func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

// IsRetried reports whether ctx belongs to a request that was already
// replayed once.
func IsRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

func attempt(ctx context.Context) int {
	if IsRetried(ctx) {
		return 2
	}
	return 1
}

// prepareReplay clones r for a second attempt, marked as retried and with
// a fresh body. The Authorization header is dropped so the decorator
// attaches whatever token is current.
func prepareReplay(r *http.Request) (*http.Request, error) {
	replay := r.Clone(markRetried(r.Context()))
	replay.Header.Del("Authorization")

	if r.Body == nil || r.Body == http.NoBody {
		return replay, nil
	}
	if r.GetBody == nil {
		return nil, ErrNotReplayable
	}
	body, err := r.GetBody()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReplayable, err)
	}
	replay.Body = body
	return replay, nil
}

// drain discards and closes a response we are about to supersede, so the
// connection can be reused.
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// recoverAuth is the retry policy. On a recoverable 401 it refreshes once
// (shared with every concurrent caller) and replays the request once.
func (c *Client) recoverAuth(next Doer) Doer {
	return DoerFunc(func(r *http.Request) (*http.Response, error) {
		ctx, sent := withAttachedToken(r.Context())
		r = r.WithContext(ctx)

		resp, err := next.Do(r)
		if !c.endpoints.isAuthFailure(r, resp, err) {
			return resp, err
		}
		if IsRetried(ctx) {
			c.metrics.retryExhausted.Inc()
			c.logger.DebugContext(ctx, "Replayed request rejected again, not retrying",
				"path", r.URL.Path)
			return resp, nil
		}

		replay, rerr := prepareReplay(r)
		if rerr != nil {
			c.logger.WarnContext(ctx, "Cannot replay request after 401, passing it through",
				"path", r.URL.Path, "error", rerr)
			return resp, nil
		}
		drain(resp)

		// Another caller may already have rotated the token while this
		// request was in flight; replay directly in that case.
		if current, _ := c.accessToken(ctx); current == "" || current == sent.value {
			if err := c.refresh.ensureFresh(ctx); err != nil {
				return nil, err
			}
		}

		c.metrics.replays.Inc()
		return next.Do(replay)
	})
}

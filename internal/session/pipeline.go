package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/log"
)

// HeaderRequestID carries the logical request ID on upstream calls.
const HeaderRequestID = "X-Request-ID"

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(*http.Request) (*http.Response, error)

func (f DoerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

// Middleware wraps a Doer with pre- and post-processing.
type Middleware func(Doer) Doer

// Chain wraps d so that the first middleware is the outermost.
func Chain(d Doer, mws ...Middleware) Doer {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}

type requestIDKey struct{}

// WithRequestID makes upstream calls made with ctx carry id, so an inbound
// request and the calls it causes share one ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the ID assigned by the RequestID middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID tags each logical request with an X-Request-ID. Replays keep
// the ID of the request they replay.
func RequestID() Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(r *http.Request) (*http.Response, error) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				if id = RequestIDFromContext(r.Context()); id == "" {
					id = uuid.NewString()
				}
				ctx := context.WithValue(r.Context(), requestIDKey{}, id)
				r = r.Clone(ctx)
				r.Header.Set(HeaderRequestID, id)
			} else if RequestIDFromContext(r.Context()) == "" {
				r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
			}
			return next.Do(r)
		})
	}
}

// LogCalls logs every round trip, replays included, and feeds the metrics.
func LogCalls(logger *log.Logger, m *Metrics) Middleware {
	sl := log.NewStructuredLogger(logger)
	return func(next Doer) Doer {
		return DoerFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.Do(r)
			elapsed := time.Since(start)

			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			sl.LogUpstreamCall(r.Context(), RequestIDFromContext(r.Context()), r, status, elapsed.Milliseconds(), attempt(r.Context()), err)
			m.observeUpstream(r.Method, status, elapsed)
			return resp, err
		})
	}
}

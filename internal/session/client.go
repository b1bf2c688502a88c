// Package session is the authenticated HTTP client every API consumer
// goes through. It attaches the bearer token, recovers from a stale token
// with one shared refresh and one replay, and terminates the session when
// the refresh itself is rejected.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"fintrack/internal/credstore"
	"fintrack/internal/log"
)

// DefaultLoginRoute is where a terminated session navigates.
const DefaultLoginRoute = "/login"

// Options configures a Client. Only BaseURL and Store are required.
type Options struct {
	BaseURL        string
	Store          credstore.Store
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	RefreshTimeout time.Duration
	LoginRoute     string
	AuthEndpoints  []string
	Navigator      Navigator
	Events         EventSink
	Metrics        *Metrics
	Logger         *log.Logger
	Now            func() time.Time
}

// Client owns the credential store and the pending-refresh slot. Create
// one per process (or per test) and share it across goroutines.
type Client struct {
	base       *url.URL
	store      credstore.Store
	endpoints  AuthEndpoints
	loginRoute string
	navigator  Navigator
	events     EventSink
	metrics    *Metrics
	logger     *log.Logger
	now        func() time.Time

	refresh *coordinator

	resetMu sync.Mutex
	onReset []func()

	bare     Doer // request ID + logging + transport
	authed   Doer // bare + bearer token
	pipeline Doer // authed + 401 recovery
}

func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New("session: credential store is required")
	}
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("session: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("session: base URL %q must be http or https", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, _ := cookiejar.New(nil)
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout, Jar: jar}
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.LoginRoute == "" {
		opts.LoginRoute = DefaultLoginRoute
	}
	if opts.AuthEndpoints == nil {
		opts.AuthEndpoints = DefaultAuthEndpoints
	}
	if opts.Navigator == nil {
		opts.Navigator = nopNavigator{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Client{
		base:       base,
		store:      opts.Store,
		endpoints:  NewAuthEndpoints(base.Path, opts.AuthEndpoints),
		loginRoute: opts.LoginRoute,
		navigator:  opts.Navigator,
		events:     opts.Events,
		metrics:    opts.Metrics,
		logger:     opts.Logger.WithComponent(log.ComponentSession),
		now:        opts.Now,
	}

	c.bare = Chain(httpClient, RequestID(), LogCalls(opts.Logger.WithComponent(log.ComponentAPI), c.metrics))
	c.authed = Authorize(c.store, c.logger)(c.bare)
	c.pipeline = Chain(c.bare, RequestID(), c.recoverAuth, Authorize(c.store, c.logger))

	c.refresh = &coordinator{
		timeout: opts.RefreshTimeout,
		refresh: c.doRefresh,
		fail:    c.terminate,
		metrics: c.metrics,
		logger:  c.logger,
	}
	return c, nil
}

// OnReset registers fn to run whenever the session's identity changes:
// after a login or signup stores new credentials, and after a logout or
// a termination clears them. Consumers use it to drop data cached for the
// previous identity.
func (c *Client) OnReset(fn func()) {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()
	c.onReset = append(c.onReset, fn)
}

func (c *Client) reset() {
	c.resetMu.Lock()
	fns := append([]func(){}, c.onReset...)
	c.resetMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// LoginRoute returns the route a terminated session navigates to.
func (c *Client) LoginRoute() string { return c.loginRoute }

// Do sends r through the full pipeline. The response is returned as-is,
// 401s included once recovery is exhausted; only a failed refresh turns
// into an error (wrapping ErrSessionTerminated and ErrRefreshFailed).
// To be replayable, a request with a body must have GetBody set, which
// http.NewRequest does for in-memory bodies.
func (c *Client) Do(r *http.Request) (*http.Response, error) {
	return c.pipeline.Do(r)
}

// NewRequest builds a request for path (relative to the base URL) with an
// optional JSON body.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	return c.newRequest(ctx, method, path, query, body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DoJSON sends a JSON request through the pipeline and decodes a 2xx JSON
// response into out (if non-nil). Non-2xx responses become *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	req, err := c.newRequest(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	return c.roundTrip(c.pipeline, req, out)
}

func (c *Client) roundTrip(d Doer, req *http.Request, out any) error {
	resp, err := d.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Method: req.Method, Path: req.URL.Path, StatusCode: resp.StatusCode, Body: body}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fintrack/internal/credstore"
)

const (
	staleToken = "stale-access"
	freshToken = "fresh-access"
)

// fakeBackend is a REST backend that accepts exactly one access token.
type fakeBackend struct {
	mu         sync.Mutex
	validToken string
	hits       map[string]int
	bodies     []string

	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	loginCalls   atomic.Int32

	refreshStatus int
	refreshDelay  time.Duration
	refreshBlock  chan struct{}
	logoutStatus  int
	loginStatus   int
	alwaysReject  bool

	// staleBarrier holds 401 responses until this many stale requests
	// have arrived, so they all observe the failure together.
	staleBarrier int
	staleSeen    int
	release      chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		validToken:    freshToken,
		hits:          make(map[string]int),
		refreshStatus: http.StatusOK,
		logoutStatus:  http.StatusOK,
		loginStatus:   http.StatusOK,
		release:       make(chan struct{}),
	}
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	b.mu.Lock()
	b.hits[r.URL.Path]++
	b.mu.Unlock()

	switch r.URL.Path {
	case PathRefresh:
		b.refreshCalls.Add(1)
		if b.refreshBlock != nil {
			select {
			case <-b.refreshBlock:
			case <-r.Context().Done():
				return
			}
		}
		time.Sleep(b.refreshDelay)
		if b.refreshStatus != http.StatusOK {
			w.WriteHeader(b.refreshStatus)
			return
		}
		writeJSON(w, map[string]string{"access": freshToken, "refresh": "rotated-refresh"})
	case PathLogout:
		b.logoutCalls.Add(1)
		w.WriteHeader(b.logoutStatus)
	case PathLogin:
		b.loginCalls.Add(1)
		if b.loginStatus != http.StatusOK {
			w.WriteHeader(b.loginStatus)
			return
		}
		writeJSON(w, map[string]string{"access": freshToken, "refresh": "login-refresh"})
	case PathStatus:
		writeJSON(w, map[string]bool{"authenticated": bearer == b.validToken})
	default:
		if b.alwaysReject || bearer != b.validToken {
			b.waitForStaleBarrier()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			b.mu.Lock()
			b.bodies = append(b.bodies, string(data))
			b.mu.Unlock()
		}
		writeJSON(w, map[string]string{"path": r.URL.Path, "query": r.URL.RawQuery})
	}
}

func (b *fakeBackend) waitForStaleBarrier() {
	if b.staleBarrier == 0 {
		return
	}
	b.mu.Lock()
	b.staleSeen++
	if b.staleSeen == b.staleBarrier {
		close(b.release)
	}
	b.mu.Unlock()
	<-b.release
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Navigate(_ context.Context, route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []EventType
}

func (s *recordingSink) Publish(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e.Type)
	return nil
}

type harness struct {
	backend   *fakeBackend
	server    *httptest.Server
	store     *credstore.Memory
	navigator *recordingNavigator
	events    *recordingSink
	client    *Client
}

func newHarness(t *testing.T, backend *fakeBackend, mutate func(*Options)) *harness {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	h := &harness{
		backend:   backend,
		server:    srv,
		store:     credstore.NewMemory(),
		navigator: &recordingNavigator{},
		events:    &recordingSink{},
	}
	opts := Options{
		BaseURL:    srv.URL,
		Store:      h.store,
		HTTPClient: srv.Client(),
		Navigator:  h.navigator,
		Events:     h.events,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.client = c
	return h
}

func (h *harness) seed(t *testing.T, access, refresh string) {
	t.Helper()
	ctx := context.Background()
	if err := h.store.Set(ctx, credstore.KeyAccessToken, access); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Set(ctx, credstore.KeyRefreshToken, refresh); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) stored(key string) string {
	v, _ := credstore.Lookup(context.Background(), h.store, key)
	return v
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const n = 10
	backend := newFakeBackend()
	backend.staleBarrier = n
	backend.refreshDelay = 50 * time.Millisecond
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "refresh-1")

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out map[string]string
			errs <- h.client.DoJSON(context.Background(), http.MethodGet, "/transactions/", nil, nil, &out)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("request failed: %v", err)
		}
	}
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	// n stale attempts plus n replays with the fresh token.
	if got := backend.count("/transactions/"); got != 2*n {
		t.Errorf("transaction hits = %d, want %d", got, 2*n)
	}
	if got := h.stored(credstore.KeyAccessToken); got != freshToken {
		t.Errorf("stored access token = %q, want %q", got, freshToken)
	}
	if got := h.stored(credstore.KeyRefreshToken); got != "rotated-refresh" {
		t.Errorf("stored refresh token = %q, want rotated-refresh", got)
	}
}

func TestDashboardLoadWithStaleToken(t *testing.T) {
	backend := newFakeBackend()
	backend.staleBarrier = 3
	backend.refreshDelay = 20 * time.Millisecond
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "refresh-1")

	paths := []struct {
		path  string
		query string
	}{
		{"/transactions/", ""},
		{"/user/settings/", ""},
		{"/transactions/", "month=3&year=2024"},
	}

	statuses := make([]int, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func(i int, path, query string) {
			defer wg.Done()
			req, err := h.client.NewRequest(context.Background(), http.MethodGet, path, nil, nil)
			if err != nil {
				t.Error(err)
				return
			}
			req.URL.RawQuery = query
			resp, err := h.client.Do(req)
			if err != nil {
				t.Errorf("%s?%s: %v", path, query, err)
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i, p.path, p.query)
	}
	wg.Wait()

	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	for i, s := range statuses {
		if s != http.StatusOK {
			t.Errorf("request %d status = %d, want 200", i, s)
		}
	}
	if len(h.navigator.visited()) != 0 {
		t.Errorf("unexpected navigation: %v", h.navigator.visited())
	}
}

func TestReplayedRequestIsNotRetriedAgain(t *testing.T) {
	backend := newFakeBackend()
	backend.alwaysReject = true
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "refresh-1")

	err := h.client.DoJSON(context.Background(), http.MethodGet, "/transactions/", nil, nil, nil)
	if !IsUnauthorized(err) {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if got := backend.count("/transactions/"); got != 2 {
		t.Errorf("transaction hits = %d, want 2 (original + one replay)", got)
	}
	if got := h.stored(credstore.KeyAccessToken); got != freshToken {
		t.Errorf("a successful refresh must not clear credentials, got %q", got)
	}
	if len(h.navigator.visited()) != 0 {
		t.Errorf("a rejected replay must not navigate, got %v", h.navigator.visited())
	}
}

func TestAlreadyRetriedContextIsNotRetried(t *testing.T) {
	backend := newFakeBackend()
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "refresh-1")

	req, _ := h.client.NewRequest(markRetried(context.Background()), http.MethodGet, "/transactions/", nil, nil)
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if backend.refreshCalls.Load() != 0 {
		t.Errorf("retried request must not trigger a refresh")
	}
}

func TestAuthEndpoint401NeverRefreshes(t *testing.T) {
	backend := newFakeBackend()
	backend.loginStatus = http.StatusUnauthorized
	backend.logoutStatus = http.StatusUnauthorized
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "refresh-1")

	err := h.client.Login(context.Background(), "alice", "wrong")
	if !IsUnauthorized(err) {
		t.Fatalf("Login error = %v, want 401", err)
	}

	for _, path := range []string{PathLogout, PathRefresh, PathLogin} {
		req, _ := h.client.NewRequest(context.Background(), http.MethodPost, path, nil, map[string]string{})
		resp, err := h.client.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
	}

	// The direct POST to the refresh path counts once; nothing else may.
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want only the direct one", got)
	}
	if got := backend.loginCalls.Load(); got != 2 {
		t.Errorf("login calls = %d, want 2 (no replays)", got)
	}
	if got := backend.logoutCalls.Load(); got != 1 {
		t.Errorf("logout calls = %d, want 1", got)
	}
}

func TestRefreshFailureTerminatesSession(t *testing.T) {
	backend := newFakeBackend()
	backend.refreshStatus = http.StatusInternalServerError
	backend.logoutStatus = http.StatusInternalServerError
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "refresh-1")
	if err := h.store.Set(context.Background(), credstore.KeyBankToken, "bank"); err != nil {
		t.Fatal(err)
	}

	err := h.client.DoJSON(context.Background(), http.MethodGet, "/transactions/", nil, nil, nil)
	if !errors.Is(err, ErrRefreshFailed) || !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("error = %v, want ErrRefreshFailed and ErrSessionTerminated", err)
	}
	if !IsStatus(err, http.StatusInternalServerError) {
		t.Errorf("error should carry the refresh status, got %v", err)
	}
	if got := backend.logoutCalls.Load(); got != 1 {
		t.Errorf("logout calls = %d, want 1", got)
	}
	for _, k := range credstore.AllKeys {
		if v := h.stored(k); v != "" {
			t.Errorf("%s = %q after termination, want cleared", k, v)
		}
	}
	if got := backend.count("/transactions/"); got != 1 {
		t.Errorf("transaction hits = %d, want 1 (no replay after failed refresh)", got)
	}

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if len(h.events.events) != 1 || h.events.events[0] != EventTerminated {
		t.Errorf("events = %v, want [terminated]", h.events.events)
	}
}

func TestRefresh401NavigatesToLogin(t *testing.T) {
	backend := newFakeBackend()
	backend.refreshStatus = http.StatusUnauthorized
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "expired-refresh")

	err := h.client.DoJSON(context.Background(), http.MethodGet, "/user/settings/", nil, nil, nil)
	if !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("error = %v, want ErrSessionTerminated", err)
	}
	if h.stored(credstore.KeyAccessToken) != "" || h.stored(credstore.KeyRefreshToken) != "" {
		t.Errorf("tokens not cleared")
	}
	if got := h.navigator.visited(); len(got) != 1 || got[0] != "/login" {
		t.Errorf("navigation = %v, want [/login]", got)
	}
}

func TestConcurrentRefreshFailureTerminatesOnce(t *testing.T) {
	const n = 5
	backend := newFakeBackend()
	backend.staleBarrier = n
	backend.refreshStatus = http.StatusUnauthorized
	backend.refreshDelay = 30 * time.Millisecond
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "expired-refresh")

	var wg sync.WaitGroup
	var terminated atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.client.DoJSON(context.Background(), http.MethodGet, "/transactions/", nil, nil, nil)
			if errors.Is(err, ErrSessionTerminated) {
				terminated.Add(1)
			}
		}()
	}
	wg.Wait()

	if terminated.Load() != n {
		t.Errorf("%d callers saw termination, want %d", terminated.Load(), n)
	}
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if got := len(h.navigator.visited()); got != 1 {
		t.Errorf("navigations = %d, want 1", got)
	}
}

func TestRefreshTimeoutTerminates(t *testing.T) {
	backend := newFakeBackend()
	backend.refreshBlock = make(chan struct{})
	defer close(backend.refreshBlock)
	h := newHarness(t, backend, func(o *Options) { o.RefreshTimeout = 100 * time.Millisecond })
	h.seed(t, staleToken, "refresh-1")

	start := time.Now()
	err := h.client.DoJSON(context.Background(), http.MethodGet, "/transactions/", nil, nil, nil)
	if !errors.Is(err, ErrRefreshFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want refresh failure caused by deadline", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("refresh timeout not honoured, took %v", elapsed)
	}
}

func TestWaiterCancellationDoesNotAbortRefresh(t *testing.T) {
	backend := newFakeBackend()
	backend.refreshBlock = make(chan struct{})
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "refresh-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.client.DoJSON(ctx, http.MethodGet, "/transactions/", nil, nil, nil)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for backend.refreshCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("waiter error = %v, want context.Canceled", err)
	}

	close(backend.refreshBlock)
	deadline = time.Now().Add(2 * time.Second)
	for h.stored(credstore.KeyAccessToken) != freshToken && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := h.stored(credstore.KeyAccessToken); got != freshToken {
		t.Errorf("refresh should complete after the waiter left, access = %q", got)
	}
}

func TestReplayResendsBody(t *testing.T) {
	backend := newFakeBackend()
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "refresh-1")

	in := map[string]any{"name": "Coffee", "amount": 3.5}
	if err := h.client.DoJSON(context.Background(), http.MethodPost, "/transactions/", nil, in, nil); err != nil {
		t.Fatal(err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.bodies) != 1 || !strings.Contains(backend.bodies[0], `"Coffee"`) {
		t.Fatalf("replayed body = %v", backend.bodies)
	}
}

type onceReader struct{ io.Reader }

func TestUnreplayableBodyPassesThrough(t *testing.T) {
	backend := newFakeBackend()
	h := newHarness(t, backend, nil)
	h.seed(t, staleToken, "refresh-1")

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/transactions/", onceReader{strings.NewReader(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 passed through", resp.StatusCode)
	}
	if backend.refreshCalls.Load() != 0 {
		t.Errorf("unreplayable request must not trigger a refresh")
	}
}

func TestDomainErrorsPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathRefresh {
			t.Errorf("unexpected refresh")
		}
		http.Error(w, `{"detail":"bad amount"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Store: credstore.NewMemory(), HTTPClient: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	err = c.DoJSON(context.Background(), http.MethodPost, "/transactions/", nil, map[string]int{"amount": 0}, nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusBadRequest || !strings.Contains(string(se.Body), "bad amount") {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestAuthStatusNeverFails(t *testing.T) {
	backend := newFakeBackend()
	h := newHarness(t, backend, nil)

	h.seed(t, freshToken, "r")
	if got := h.client.AuthStatus(context.Background()); !got.Authenticated {
		t.Errorf("valid token: AuthStatus = %+v, want authenticated", got)
	}

	h.seed(t, staleToken, "r")
	if got := h.client.AuthStatus(context.Background()); got.Authenticated {
		t.Errorf("stale token: AuthStatus = %+v, want unauthenticated", got)
	}

	h.server.Close()
	if got := h.client.AuthStatus(context.Background()); got.Authenticated {
		t.Errorf("network failure: AuthStatus = %+v, want unauthenticated", got)
	}
	if backend.refreshCalls.Load() != 0 {
		t.Errorf("status checks must not refresh")
	}
}

func TestLoginAndLogout(t *testing.T) {
	backend := newFakeBackend()
	backend.logoutStatus = http.StatusInternalServerError
	h := newHarness(t, backend, nil)
	ctx := context.Background()

	if err := h.client.Login(ctx, "alice", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	creds, err := h.client.Credentials(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != freshToken || creds.RefreshToken != "login-refresh" || !creds.LoggedIn() {
		t.Fatalf("credentials after login = %+v", creds)
	}

	if err := h.client.Logout(ctx); err != nil {
		t.Fatalf("Logout should ignore backend failure, got %v", err)
	}
	creds, _ = h.client.Credentials(ctx)
	if creds.LoggedIn() {
		t.Errorf("credentials not cleared: %+v", creds)
	}

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	want := []EventType{EventLogin, EventLogout}
	if len(h.events.events) != len(want) {
		t.Fatalf("events = %v, want %v", h.events.events, want)
	}
	for i := range want {
		if h.events.events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, h.events.events[i], want[i])
		}
	}
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t, newFakeBackend(), nil)
	if err := h.client.Login(context.Background(), "", "x"); err == nil {
		t.Error("expected error for empty username")
	}
	if err := h.client.GoogleLogin(context.Background(), ""); err == nil {
		t.Error("expected error for empty google token")
	}
	if h.backend.loginCalls.Load() != 0 {
		t.Error("invalid input must not reach the backend")
	}
}

func TestMetricsCountRefreshes(t *testing.T) {
	backend := newFakeBackend()
	m := NewMetrics(nil)
	h := newHarness(t, backend, func(o *Options) { o.Metrics = m })
	h.seed(t, staleToken, "refresh-1")

	if err := h.client.DoJSON(context.Background(), http.MethodGet, "/transactions/", nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.refreshes.WithLabelValues(outcomeSuccess)); got != 1 {
		t.Errorf("refresh success counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.replays); got != 1 {
		t.Errorf("replay counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.upstream.WithLabelValues(http.MethodGet, "401")); got != 1 {
		t.Errorf("upstream 401 counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.refreshShared); got != 0 {
		t.Errorf("refresh waiters = %v, want 0 for a lone refresh", got)
	}
}

func TestRefreshWaitersCountsOnlyJoiners(t *testing.T) {
	const n = 4
	backend := newFakeBackend()
	backend.staleBarrier = n
	backend.refreshDelay = 200 * time.Millisecond
	m := NewMetrics(nil)
	h := newHarness(t, backend, func(o *Options) { o.Metrics = m })
	h.seed(t, staleToken, "refresh-1")

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.client.DoJSON(context.Background(), http.MethodGet, "/transactions/", nil, nil, nil); err != nil {
				t.Errorf("request failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.refreshShared); got != n-1 {
		t.Errorf("refresh waiters = %v, want %d (the leader is not a waiter)", got, n-1)
	}
}

// firstReadStore answers the first access-token read with a fixed value
// and every later read from the wrapped store, as if another goroutine
// rotated the token right after this request picked its credential.
type firstReadStore struct {
	credstore.Store
	mu    sync.Mutex
	first string
	used  bool
}

func (s *firstReadStore) Get(ctx context.Context, key string) (string, error) {
	if key == credstore.KeyAccessToken {
		s.mu.Lock()
		used := s.used
		s.used = true
		s.mu.Unlock()
		if !used {
			return s.first, nil
		}
	}
	return s.Store.Get(ctx, key)
}

func TestRecoveryReasonsAboutTheTokenOnTheWire(t *testing.T) {
	backend := newFakeBackend()
	store := credstore.NewMemory()
	store.Set(context.Background(), credstore.KeyAccessToken, staleToken)
	h := newHarness(t, backend, func(o *Options) {
		o.Store = &firstReadStore{Store: store, first: freshToken}
	})

	var out map[string]string
	if err := h.client.DoJSON(context.Background(), http.MethodGet, "/transactions/", nil, nil, &out); err != nil {
		t.Fatalf("request with the token read once failed: %v", err)
	}
	if got := backend.count("/transactions/"); got != 1 {
		t.Errorf("transaction hits = %d, want 1", got)
	}
	if backend.refreshCalls.Load() != 0 {
		t.Errorf("an accepted request must not refresh")
	}
}

func TestAuthorizeRecordsAttachedToken(t *testing.T) {
	store := credstore.NewMemory()
	store.Set(context.Background(), credstore.KeyAccessToken, "tok-1")

	var header string
	d := Authorize(store, nil)(DoerFunc(func(r *http.Request) (*http.Response, error) {
		header = r.Header.Get("Authorization")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}))

	ctx, slot := withAttachedToken(context.Background())
	r, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.test/", nil)
	if _, err := d.Do(r); err != nil {
		t.Fatal(err)
	}
	if header != "Bearer tok-1" || slot.value != "tok-1" {
		t.Errorf("header = %q, recorded = %q", header, slot.value)
	}
}

func TestOnResetRunsOnIdentityChanges(t *testing.T) {
	backend := newFakeBackend()
	backend.refreshStatus = http.StatusUnauthorized
	h := newHarness(t, backend, nil)
	ctx := context.Background()

	var resets atomic.Int32
	h.client.OnReset(func() { resets.Add(1) })

	if err := h.client.Login(ctx, "alice", "secret"); err != nil {
		t.Fatal(err)
	}
	if got := resets.Load(); got != 1 {
		t.Fatalf("resets after login = %d, want 1", got)
	}
	if err := h.client.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if got := resets.Load(); got != 2 {
		t.Fatalf("resets after logout = %d, want 2", got)
	}

	h.seed(t, staleToken, "refresh-1")
	err := h.client.DoJSON(ctx, http.MethodGet, "/transactions/", nil, nil, nil)
	if !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("err = %v, want ErrSessionTerminated", err)
	}
	if got := resets.Load(); got != 3 {
		t.Errorf("resets after termination = %d, want 3", got)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{BaseURL: "http://localhost"}); err == nil {
		t.Error("expected error without store")
	}
	if _, err := New(Options{BaseURL: "ftp://localhost", Store: credstore.NewMemory()}); err == nil {
		t.Error("expected error for non-http base URL")
	}
}

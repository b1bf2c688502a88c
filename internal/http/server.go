package http

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/session"
)

// Session is the part of the session client the gateway drives directly.
type Session interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	AuthStatus(ctx context.Context) core.AuthStatus
	Credentials(ctx context.Context) (session.Credentials, error)
	LoginRoute() string
}

// Transactions is the transactions resource as served to the browser.
type Transactions interface {
	ListByMonth(ctx context.Context, month, year int) ([]core.Transaction, error)
	Create(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	CreateBatch(ctx context.Context, txs []core.Transaction) ([]core.Transaction, error)
	Update(ctx context.Context, id int64, tx core.Transaction) (core.Transaction, error)
	Delete(ctx context.Context, ids []int64) error
	Overview(ctx context.Context, month, year int) (core.MonthOverview, error)
}

type Settings interface {
	Get(ctx context.Context) (core.Settings, error)
	UpdateBudget(ctx context.Context, b core.BudgetSettings) error
	UpdateDisplay(ctx context.Context, d core.DisplaySettings) error
}

// Options wires the gateway to its collaborators.
type Options struct {
	Addr         string
	Session      Session
	Transactions Transactions
	Settings     Settings
	Logger       *log.Logger
	// Registerer receives the gateway metrics; Gatherer backs /metrics.
	// Both default to the Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// LoginAttempts caps POST /login per client IP per minute.
	LoginAttempts   int
	UpstreamTimeout time.Duration
	Now             func() time.Time
}

type Server struct {
	http.Server
	session      Session
	transactions Transactions
	settings     Settings
	loginRoute   string
	logger       *log.Logger
	loginLimiter *ratelimit.Limiter
	timeout      time.Duration
	now          func() time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentGateway)

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.UpstreamTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ips, err := security.NewClientIPResolver()
	if err != nil {
		return nil, err
	}

	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fintrack",
		Subsystem: "gateway",
		Name:      "login_rate_limited_total",
		Help:      "Login attempts refused by the per-IP rate limiter.",
	})
	reg.MustRegister(rejected)

	s := &Server{
		session:      opts.Session,
		transactions: opts.Transactions,
		settings:     opts.Settings,
		loginRoute:   opts.Session.LoginRoute(),
		logger:       logger,
		loginLimiter: ratelimit.NewLimiter(ratelimit.Config{
			Requests: opts.LoginAttempts,
			Window:   time.Minute,
			Rejected: rejected,
		}),
		timeout: timeout,
		now:     now,
	}

	limitLogin := s.loginLimiter.Middleware(ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Login rate limit exceeded")
		ErrorResponse(http.StatusTooManyRequests, "too many login attempts").
			Header("Retry-After", "60").
			Write(w)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.Handle("POST /login", limitLogin(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /auth/status", s.handleAuthStatus)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransactions)
	mux.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions", s.handleDeleteTransactions)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings/budget", s.handleUpdateBudget)
	mux.HandleFunc("POST /api/settings/display", s.handleUpdateDisplay)

	tracer := trace.NewMiddleware(logger, ips.ClientIP, trace.NewMetrics(reg))
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           tracer.Middleware(headers.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * timeout,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.loginLimiter.Stop()
	return s.Server.Shutdown(ctx)
}

// upstreamContext bounds a handler's calls to the backend.
func (s *Server) upstreamContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

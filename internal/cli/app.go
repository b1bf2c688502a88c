package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"fintrack/internal/amqp"
	"fintrack/internal/api"
	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/credstore"
	"fintrack/internal/log"
	"fintrack/internal/session"
	ports "fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
)

// AppOptions carries the pieces that differ between the CLI and the gateway.
type AppOptions struct {
	// Navigator is told where to go when the session is terminated.
	Navigator session.Navigator
	// Registerer receives the session metrics; nil leaves them unregistered.
	Registerer prometheus.Registerer
	HTTPClient *http.Client
	// Store overrides the store selected by the config.
	Store credstore.Store
}

// App is the wired session client with its API consumers.
type App struct {
	Config  *config.Config
	Store   credstore.Store
	Session *session.Client
	API     *api.API
	// Events is the AMQP publisher, nil when AMQP_URL is unset or the
	// broker was unreachable at startup.
	Events *amqp.Client
	// Caches owns the API response caches; the gateway starts its
	// background cleanup, the CLI does not need to.
	Caches *cache.Manager
	Logger *log.Logger
}

// NewApp opens the credential store and builds the session client and API
// consumers on top of it. Session events always go to the log; they are
// also published to AMQP when configured.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger, opts AppOptions) (*App, error) {
	if logger == nil {
		logger = log.Discard()
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = credstore.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	app := &App{Config: cfg, Store: store, Caches: cache.NewManager(logger), Logger: logger}

	sinks := session.MultiSink{session.LogSink{Logger: logger.WithComponent(log.ComponentSession)}}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.WarnContext(ctx, "AMQP unavailable, session events will only be logged", log.FieldError, err)
		} else {
			app.Events = client
			sinks = append(sinks, client)
		}
	}

	sess, err := session.New(session.Options{
		BaseURL:        cfg.APIBaseURL,
		Store:          store,
		HTTPClient:     opts.HTTPClient,
		RequestTimeout: cfg.RequestTimeout,
		RefreshTimeout: cfg.RefreshTimeout,
		LoginRoute:     cfg.LoginRoute,
		Navigator:      opts.Navigator,
		Events:         sinks,
		Metrics:        session.NewMetrics(opts.Registerer),
		Logger:         logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("session client: %w", err)
	}
	app.Session = sess
	app.API = api.New(sess, api.Options{
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
		Caches:    app.Caches,
		Logger:    logger,
	})

	logger.DebugContext(ctx, "Session client ready",
		log.FieldOperation, log.OpStartup,
		log.FieldStore, cfg.CredentialStore,
		"api", cfg.APIBaseURL)
	return app, nil
}

// Close releases the credential store and the AMQP connection.
func (a *App) Close() error {
	var errs []error
	if a.Caches != nil {
		a.Caches.Stop()
	}
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// NewSheetsExporter returns the Google Sheets exporter for cfg.
func NewSheetsExporter(ctx context.Context, cfg *config.Config, logger *log.Logger) (ports.Exporter, error) {
	return gsheet.NewFromConfig(ctx, cfg, logger)
}

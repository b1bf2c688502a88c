// Command fintrack-gateway serves the dashboard API to a browser on the
// local machine. It owns the session: the browser never sees a token, and a
// terminated session answers with a redirect to the login route.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stdout)

	if err := run(logger); err != nil {
		logger.Error("Gateway stopped", log.FieldError, err)
		os.Exit(1)
	}
}

func run(logger *log.Logger) error {
	logger.Info("Starting fintrack-gateway", log.FieldOperation, log.OpStartup)

	cfg, err := cli.LoadAndValidateConfig(logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := cli.NewApp(context.Background(), cfg, logger, cli.AppOptions{Registerer: reg})
	if err != nil {
		return err
	}
	defer app.Close()
	app.Caches.StartCleanup(cfg.CacheTTL)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:            ":" + cfg.GatewayPort,
		Session:         app.Session,
		Transactions:    app.API.Transactions,
		Settings:        app.API.Settings,
		Logger:          logger,
		Registerer:      reg,
		Gatherer:        reg,
		LoginAttempts:   10,
		UpstreamTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Gateway listening",
		"port", cfg.GatewayPort,
		"api", cfg.APIBaseURL,
		log.FieldStore, cfg.CredentialStore)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Gateway stopped gracefully")
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	oauth "github.com/giantswarm/mcp-authserver"
	"github.com/giantswarm/mcp-authserver/server/keys"
)

const (
	serverReadHeaderTimeout = 5 * time.Second
	serverReadTimeout       = 10 * time.Second
	serverWriteTimeout      = 15 * time.Second
	serverIdleTimeout       = 60 * time.Second
	healthCheckTimeout      = 2 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Start the authorization server.

Protocol state is kept in the kv backend (memory, redis or bolt) and
registrations in the sql backend (sqlite or postgres), or in the kv
backend when sql is none. SIGINT and SIGTERM shut the server down
gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(opts.configPath, opts.envFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, newLogger(cfg.Logging))
		},
	}
}

// newKeyProvider returns the signing key source selected by cfg.
func newKeyProvider(cfg SigningConfig, logger *slog.Logger) (keys.Provider, error) {
	switch {
	case cfg.JWK != "":
		return keys.NewStaticProvider([]byte(cfg.JWK))
	case cfg.File != "":
		return keys.NewFileProvider(cfg.File)
	case cfg.Generate:
		logger.Warn("Using a generated signing key, do not use in production", "key_id", cfg.KeyID)
		return keys.NewGeneratingProvider(cfg.KeyID), nil
	default:
		return nil, fmt.Errorf("%w: set signingKey.jwk, signingKey.file or signingKey.generate", keys.ErrNoSigningKey)
	}
}

// runServe serves until ctx is canceled, then drains connections for up to
// cfg.ShutdownTimeout.
func runServe(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	slog.SetDefault(logger)

	provider, err := newKeyProvider(cfg.SigningKey, logger)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	tel, err := setupTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("Telemetry shutdown failed", "error", err)
		}
	}()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()
	b.SetInstrumentation(tel.Instrumentation)

	handlerCfg := cfg.HandlerConfig()
	handlerCfg.Instrumentation = tel.Instrumentation
	handlerCfg.Logger = logger
	handler, err := oauth.New(ctx, b.Stores, provider, handlerCfg)
	if err != nil {
		return err
	}
	defer handler.Close()

	srv := newHTTPServer(ctx, cfg.Listen, newRouter(handler, b, tel.MetricsHandler))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Authorization server listening",
			"address", cfg.Listen,
			"issuer", cfg.Issuer,
			"kv", cfg.Storage.KV,
			"sql", cfg.Storage.SQL,
			"version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down authorization server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Authorization server stopped")
	return nil
}

// newHTTPServer builds the listener-side server. Request contexts inherit
// values from ctx but not its cancellation, so Shutdown can drain in-flight
// requests after a signal.
func newHTTPServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	base := context.WithoutCancel(ctx)
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

// newRouter mounts the protocol handler next to the operational endpoints.
func newRouter(handler http.Handler, b *backends, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		if failures := b.Check(ctx); len(failures) > 0 {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "unavailable", "failures": failures}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.Mount("/", handler)
	return r
}

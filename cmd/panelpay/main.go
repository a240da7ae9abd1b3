// Package main runs the panelpay storefront payment server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mcpanel/panelpay/internal/config"
	httpmw "github.com/mcpanel/panelpay/middleware/http"
	"github.com/mcpanel/panelpay/pkg/api"
	"github.com/mcpanel/panelpay/pkg/billing"
	prommetrics "github.com/mcpanel/panelpay/pkg/billing/metrics/prometheus"
	"github.com/mcpanel/panelpay/pkg/billing/stripe"
	"github.com/mcpanel/panelpay/pkg/console"
	"github.com/mcpanel/panelpay/pkg/panelpay"
	zerologadapter "github.com/mcpanel/panelpay/pkg/panelpay/logger/zerolog"
)

func main() {
	zl := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Parse()
	if err != nil {
		zl.Fatal().Err(err).Msg("configuration error")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zl = zl.Level(level)
	}
	logger := zerologadapter.NewLogger(&zl)

	if err := run(cfg, logger, &zl); err != nil {
		zl.Fatal().Err(err).Msg("application terminated with error")
	}
}

func run(cfg *config.Config, logger panelpay.Logger, zl *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage
	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store initialization: %w", err)
	}
	defer backend.Close()

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := prommetrics.NewMetrics(reg, cfg.MetricsNamespace)

	// 3. Payment provider
	providerConfig := stripe.Config{
		Config: billing.Config{
			Store:   backend.store,
			Logger:  logger,
			Metrics: metrics,
			WebhookCallback: func(_ context.Context, event billing.WebhookEvent) error {
				zl.Info().
					Str("event_id", event.EventID).
					Str("event_type", event.EventType).
					Str("customer_id", event.CustomerID).
					Msg("webhook event reconciled")
				return nil
			},
		},
		StripeAPIKey:        cfg.StripeSecretKey,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		Currency:            cfg.Currency,
		SuccessURL:          cfg.SuccessURL(api.CheckoutSuccessPath),
		CancelURL:           cfg.CancelURL,
		GrantCommand:        cfg.GrantCommand,
		PaymentIntentLimit:  cfg.PaymentIntentLimit,
		WebhookMarkerTTL:    cfg.WebhookMarkerTTL,
		ProcessingTimeout:   cfg.ProcessingTimeout,
		TrustProxy:          cfg.TrustProxy,
	}
	if backend.catalog != nil {
		providerConfig.Catalog = backend.catalog
	}
	if cfg.CommandAPIURL != "" {
		providerConfig.Console = console.NewClient(console.Config{
			BaseURL:      cfg.CommandAPIURL,
			APIKey:       cfg.CommandAPIKey,
			APIKeyHeader: cfg.CommandAPIKeyHeader,
			OnStateChange: func(state console.BreakerState) {
				logger.Warn("command API circuit changed", panelpay.F("state", string(state)))
			},
		})
	} else {
		logger.Warn("command API not configured, purchases will not be delivered")
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("stripe webhook secret not configured, webhooks are rejected")
	}

	provider, err := stripe.NewProvider(providerConfig)
	if err != nil {
		return fmt.Errorf("payment provider: %w", err)
	}

	// 4. HTTP API
	handler, err := api.NewHandler(api.Config{
		Provider:        provider,
		GetUserID:       httpmw.FromContext(httpmw.UserIDKey),
		ConfirmationURL: cfg.ConfirmationURL,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("api handler: %w", err)
	}

	server := &http.Server{
		Addr: cfg.Address,
		Handler: newRouter(routerConfig{
			Handler:    handler,
			Registry:   reg,
			JWTSecret:  []byte(cfg.JWTSecret),
			JWTIssuer:  cfg.JWTIssuer,
			TrustProxy: cfg.TrustProxy,
			Logger:     zl,
			Health:     backend.ping,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info().Str("addr", cfg.Address).Str("store", cfg.StoreBackend).Msg("starting panelpay server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown when the context is canceled (signal or server error)
	g.Go(func() error {
		<-ctx.Done()
		zl.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		// Webhook tasks outlive their requests
		if err := provider.Close(shutdownCtx); err != nil {
			return fmt.Errorf("webhook drain error: %w", err)
		}
		zl.Info().Msg("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

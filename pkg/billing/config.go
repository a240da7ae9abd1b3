package billing

import (
	"context"

	"github.com/mcpanel/panelpay/pkg/panelpay"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Store is the cache/idempotency store shared by checkout, sync and
	// delivery (required).
	Store panelpay.Store

	// Logger receives structured logs. If nil, logs are discarded.
	Logger panelpay.Logger

	// Metrics is an optional metrics collector for tracking provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.NewMetrics(reg, namespace) for Prometheus metrics.
	Metrics Metrics

	// Catalog optionally supplies authoritative item names and prices. If nil,
	// the names and prices of the client cart are used.
	Catalog Catalog

	// WebhookCallback is invoked after a webhook event was fully processed.
	// Errors are logged and do not affect the processed state of the event.
	WebhookCallback func(ctx context.Context, event WebhookEvent) error
}

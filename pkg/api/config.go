package api

import (
	"fmt"
	"net/http"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

// Config holds configuration for the storefront payment API handler
type Config struct {
	// Provider is the payment provider (required)
	Provider billing.Provider

	// GetUserID extracts the authenticated user ID from the request (required).
	// An empty result is treated as unauthenticated.
	GetUserID func(*http.Request) string

	// ConfirmationURL is where the checkout-success return path redirects to
	// (required)
	ConfirmationURL string

	// WebhookPath is the route of the provider webhook.
	// Default: "/api/webhooks/<provider name>"
	WebhookPath string

	// MaxRequestBytes bounds checkout request bodies. Default: 64 KiB
	MaxRequestBytes int64

	// Logger is optional. If nil, logs are discarded.
	Logger panelpay.Logger

	// OnError handles errors (auth, validation, internal).
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if c.GetUserID == nil {
		return fmt.Errorf("getUserID is required")
	}
	if c.ConfirmationURL == "" {
		return fmt.Errorf("confirmationURL is required")
	}
	return nil
}

// NewHandler creates a new payment API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.WebhookPath == "" {
		config.WebhookPath = "/api/webhooks/" + config.Provider.Name()
	}
	if config.MaxRequestBytes <= 0 {
		config.MaxRequestBytes = defaultMaxRequestBytes
	}
	if config.Logger == nil {
		config.Logger = &panelpay.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}

// Helper functions for common UserID extraction patterns

// FromHeader returns a GetUserID function that extracts user ID from a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetUserID function that extracts user ID from request context
// Uses the same context key pattern as middleware/http
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

package billing

import (
	"context"
	"net/http"

	"github.com/mcpanel/panelpay/pkg/panelpay"
)

// Provider is the interface the storefront uses to take payments and to read
// back reconciled payment state. It keeps HTTP handlers independent from the
// concrete payment backend.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that receives provider events.
	// The implementation handles validation, parsing and reconciliation internally.
	WebhookHandler() http.Handler

	// CreateCheckout builds a hosted checkout session for the cart of userID.
	CreateCheckout(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutSession, error)

	// CompleteCheckout eagerly reconciles the payment state of a checkout the
	// buyer was just redirected back from. userID may be empty when the caller
	// is not authenticated, in which case the session's customer is used.
	CompleteCheckout(ctx context.Context, userID, sessionID string) (*panelpay.PaymentSnapshot, error)

	// SyncUser forces a synchronization of the user's payment state from the
	// provider into the cache. Returns ErrCustomerNotFound for users that never
	// started a checkout.
	SyncUser(ctx context.Context, userID string) (*panelpay.PaymentSnapshot, error)

	// PaymentStatus returns the cached payment snapshot of the user, syncing
	// from the provider when nothing is cached yet.
	PaymentStatus(ctx context.Context, userID string) (*panelpay.PaymentSnapshot, error)
}

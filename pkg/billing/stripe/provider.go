package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v83"
	"golang.org/x/sync/singleflight"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/billing/internal"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

const (
	providerName             = "stripe"
	defaultCurrency          = "usd"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	defaultPaymentIntents    = 5
	defaultMarkerTTL         = 7 * 24 * time.Hour
	defaultProcessingTimeout = 30 * time.Second
	defaultGrantCommand      = "give {player} {product} {quantity}"
	maxWebhookBodyBytes      = 256 * 1024
)

// CommandExecutor runs a console command on the game server.
// *console.Client implements it.
type CommandExecutor interface {
	ExecuteCommand(ctx context.Context, command string) error
}

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Store, Logger, Metrics, ...)

	// Stripe-specific
	StripeAPIKey        string
	StripeWebhookSecret string

	// API overrides the Stripe gateway built from StripeAPIKey (tests, proxies)
	API API

	// Console delivers purchased items (required for delivery)
	Console CommandExecutor

	// Currency of checkout sessions, defaults to "usd"
	Currency string

	// SuccessURL is where Stripe sends the buyer after payment. It should
	// contain {CHECKOUT_SESSION_ID} so the success path can sync eagerly.
	SuccessURL string

	// CancelURL is where Stripe sends a buyer that abandons the checkout
	CancelURL string

	// GrantCommand is the console command template for one purchased item.
	// Placeholders: {player}, {product}, {product_id}, {quantity}.
	GrantCommand string

	// PaymentIntentLimit is how many recent intents a sync inspects (default 5)
	PaymentIntentLimit int

	// WebhookMarkerTTL bounds how long processed event ids are remembered (default 7d)
	WebhookMarkerTTL time.Duration

	// ProcessingTimeout bounds a detached webhook task (default 30s)
	ProcessingTimeout time.Duration

	// RateLimitRequests per RateLimitWindow and client IP on the webhook endpoint
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// TrustProxy keys the webhook rate limit by X-Forwarded-For
	TrustProxy bool
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	config        Config
	api           API
	store         panelpay.Store
	logger        panelpay.Logger
	metrics       billing.Metrics
	console       CommandExecutor
	rateLimiter   *internal.RateLimiter
	webhookSecret string
	validate      *validator.Validate
	inflight      singleflight.Group
	deliveries    singleflight.Group
	tasks         sync.WaitGroup
	now           func() time.Time
}

var _ billing.Provider = (*Provider)(nil)

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("%w: store is required", billing.ErrProviderNotConfigured)
	}

	api := config.API
	if api == nil {
		apiKey := strings.TrimSpace(config.StripeAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: stripe API key is required", billing.ErrProviderNotConfigured)
		}
		api = NewAPI(stripe.NewClient(apiKey))
	}

	if config.Currency == "" {
		config.Currency = defaultCurrency
	}
	config.Currency = strings.ToLower(config.Currency)
	if config.GrantCommand == "" {
		config.GrantCommand = defaultGrantCommand
	}
	if config.PaymentIntentLimit <= 0 {
		config.PaymentIntentLimit = defaultPaymentIntents
	}
	if config.WebhookMarkerTTL <= 0 {
		config.WebhookMarkerTTL = defaultMarkerTTL
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = defaultProcessingTimeout
	}
	if config.RateLimitRequests <= 0 {
		config.RateLimitRequests = defaultRateLimitRequests
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = defaultRateLimitWindow
	}

	logger := config.Logger
	if logger == nil {
		logger = &panelpay.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		config:        config,
		api:           api,
		store:         config.Store,
		logger:        logger,
		metrics:       metrics,
		console:       config.Console,
		rateLimiter:   internal.NewRateLimiter(config.RateLimitRequests, config.RateLimitWindow, internal.WithTrustedProxy(config.TrustProxy)),
		webhookSecret: strings.TrimSpace(config.StripeWebhookSecret),
		validate:      validator.New(),
		now:           time.Now,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// SyncUser synchronizes a user's payment state from Stripe
func (p *Provider) SyncUser(ctx context.Context, userID string) (*panelpay.PaymentSnapshot, error) {
	customerID, err := p.customerForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.SyncCustomer(ctx, customerID)
}

// PaymentStatus returns the cached snapshot of the user, syncing on a miss
func (p *Provider) PaymentStatus(ctx context.Context, userID string) (*panelpay.PaymentSnapshot, error) {
	customerID, err := p.customerForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap, err := panelpay.GetValue[panelpay.PaymentSnapshot](ctx, p.store, panelpay.CustomerSnapshotKey(customerID))
	if err != nil {
		return nil, err
	}
	if snap != nil {
		return snap, nil
	}
	return p.SyncCustomer(ctx, customerID)
}

// CompleteCheckout eagerly syncs the customer of a checkout the buyer just
// returned from. The user's cached customer is preferred; otherwise the
// session is looked up.
func (p *Provider) CompleteCheckout(ctx context.Context, userID, sessionID string) (*panelpay.PaymentSnapshot, error) {
	if userID != "" {
		customerID, err := p.customerForUser(ctx, userID)
		if err == nil {
			return p.SyncCustomer(ctx, customerID)
		}
		if !errors.Is(err, billing.ErrCustomerNotFound) {
			return nil, err
		}
	}

	if strings.TrimSpace(sessionID) == "" {
		return nil, billing.ErrCustomerNotFound
	}

	session, err := p.retrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Customer == nil || session.Customer.ID == "" {
		return nil, fmt.Errorf("%w: session %s has no customer", billing.ErrCustomerNotFound, sessionID)
	}
	return p.SyncCustomer(ctx, session.Customer.ID)
}

// Close waits for detached webhook tasks to finish or ctx to end
func (p *Provider) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// customerForUser reads the cached user -> customer mapping
func (p *Provider) customerForUser(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", billing.ErrUnauthenticated
	}

	customerID, err := panelpay.GetValue[string](ctx, p.store, panelpay.UserCustomerKey(userID))
	if err != nil {
		return "", err
	}
	if customerID == nil || *customerID == "" {
		return "", fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, userID)
	}
	return *customerID, nil
}

// startCall returns a func that records the outcome of one Stripe API call
func (p *Provider) startCall(endpoint string) func(err error) {
	start := time.Now()
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordAPICall(providerName, endpoint, status)
		p.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(start))
	}
}

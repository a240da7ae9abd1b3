// Package config reads the panelpay server configuration from the
// environment and command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends
const (
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
	StoreTiered    = "tiered"
)

const defaultAddress = "localhost:8080"

// Config holds the panelpay server configuration
type Config struct {
	Address  string `env:"PANELPAY_ADDRESS"`
	LogLevel string `env:"PANELPAY_LOG_LEVEL" envDefault:"info"`

	StripeSecretKey     string `env:"PANELPAY_STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"PANELPAY_STRIPE_WEBHOOK_SECRET"`
	Currency            string `env:"PANELPAY_CURRENCY" envDefault:"usd"`

	// PublicBaseURL is the externally reachable origin of this server, used
	// to build the Stripe success and cancel URLs
	PublicBaseURL   string `env:"PANELPAY_PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	CancelURL       string `env:"PANELPAY_CANCEL_URL"`
	ConfirmationURL string `env:"PANELPAY_CONFIRMATION_URL"`

	StoreBackend     string `env:"PANELPAY_STORE" envDefault:"memory"`
	RedisAddr        string `env:"PANELPAY_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword    string `env:"PANELPAY_REDIS_PASSWORD"`
	RedisDB          int    `env:"PANELPAY_REDIS_DB" envDefault:"0"`
	PostgresDSN      string `env:"PANELPAY_POSTGRES_DSN"`
	FirestoreProject string `env:"PANELPAY_FIRESTORE_PROJECT"`

	// UseCatalog prices carts from the postgres items table
	UseCatalog bool `env:"PANELPAY_USE_CATALOG" envDefault:"false"`

	CommandAPIURL       string `env:"PANELPAY_COMMAND_API_URL"`
	CommandAPIKey       string `env:"PANELPAY_COMMAND_API_KEY"`
	CommandAPIKeyHeader string `env:"PANELPAY_COMMAND_API_KEY_HEADER" envDefault:"X-API-Key"`
	GrantCommand        string `env:"PANELPAY_GRANT_COMMAND"`

	JWTSecret string `env:"PANELPAY_JWT_SECRET"`
	JWTIssuer string `env:"PANELPAY_JWT_ISSUER"`

	WebhookMarkerTTL   time.Duration `env:"PANELPAY_WEBHOOK_MARKER_TTL" envDefault:"168h"`
	ProcessingTimeout  time.Duration `env:"PANELPAY_PROCESSING_TIMEOUT" envDefault:"30s"`
	PaymentIntentLimit int           `env:"PANELPAY_PAYMENT_INTENT_LIMIT" envDefault:"5"`
	TrustProxy         bool          `env:"PANELPAY_TRUST_PROXY" envDefault:"false"`
	ShutdownTimeout    time.Duration `env:"PANELPAY_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	MetricsNamespace string `env:"PANELPAY_METRICS_NAMESPACE" envDefault:"panelpay"`
}

// Parse reads the configuration from os.Args and the environment
func Parse() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs reads the configuration from args and the environment. The
// environment wins over flags.
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	envAddress := cfg.Address

	fs := flag.NewFlagSet("panelpay", flag.ContinueOnError)
	fs.StringVar(&cfg.Address, "a", defaultAddress, "address and port for HTTP server")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if envAddress != "" {
		cfg.Address = envAddress
	}
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}

	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if cfg.ConfirmationURL == "" {
		cfg.ConfirmationURL = cfg.PublicBaseURL + "/store/thanks"
	}
	if cfg.CancelURL == "" {
		cfg.CancelURL = cfg.PublicBaseURL + "/store"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SuccessURL is the Stripe success URL; it lands on the checkout-success
// return path with the session id filled in by Stripe.
func (c *Config) SuccessURL(path string) string {
	return c.PublicBaseURL + path + "?session_id={CHECKOUT_SESSION_ID}"
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	var errs []error
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("PANELPAY_STRIPE_SECRET_KEY is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("PANELPAY_JWT_SECRET is required"))
	}

	switch c.StoreBackend {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("PANELPAY_POSTGRES_DSN is required for the postgres store"))
		}
	case StoreFirestore:
		if c.FirestoreProject == "" {
			errs = append(errs, errors.New("PANELPAY_FIRESTORE_PROJECT is required for the firestore store"))
		}
	case StoreTiered:
		if c.PostgresDSN == "" && c.FirestoreProject == "" {
			errs = append(errs, errors.New("the tiered store needs PANELPAY_POSTGRES_DSN or PANELPAY_FIRESTORE_PROJECT"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}

	if c.UseCatalog && c.PostgresDSN == "" {
		errs = append(errs, errors.New("PANELPAY_USE_CATALOG needs PANELPAY_POSTGRES_DSN"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

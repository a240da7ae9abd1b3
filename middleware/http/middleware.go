// Package http provides HTTP middleware that authenticates storefront users
// with HS256 bearer tokens.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpanel/panelpay/pkg/api"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "panelpay:userID"
)

var (
	// ErrMissingToken is returned when the request carries no bearer token
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned when the token fails verification
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Config holds middleware configuration
type Config struct {
	// Secret is the HS256 signing key (required)
	Secret []byte

	// Issuer, when set, must match the token's iss claim
	Issuer string

	// Leeway tolerates clock skew on exp/nbf/iat
	// Default: 30 seconds
	Leeway time.Duration

	// Optional lets requests without a valid token through anonymously.
	// Used for routes that only personalize their behavior.
	Optional bool

	// OnUnauthorized is called when the token is missing or invalid
	// If nil, returns 401 Unauthorized with a JSON error body
	OnUnauthorized func(w http.ResponseWriter, r *http.Request, err error)

	// now overrides the clock in tests
	now func() time.Time
}

// Middleware creates an HTTP middleware that verifies the bearer token and
// stores its subject under UserIDKey.
func Middleware(config Config) func(http.Handler) http.Handler {
	// Validate required configuration at startup (fail fast)
	if len(config.Secret) == 0 {
		panic("panelpay/http: Config.Secret is required")
	}

	// Set defaults
	if config.Leeway == 0 {
		config.Leeway = 30 * time.Second
	}
	if config.now == nil {
		config.now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
		jwt.WithTimeFunc(config.now),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticate(parser, config.Secret, r)
			if err != nil {
				if config.Optional {
					next.ServeHTTP(w, r)
					return
				}
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r, err)
				} else {
					defaultUnauthorized(w, err)
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(parser *jwt.Parser, secret []byte, r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMissingToken
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenStr == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func defaultUnauthorized(w http.ResponseWriter, err error) {
	msg := "invalid token"
	if errors.Is(err, ErrMissingToken) {
		msg = "missing token"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="panelpay"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, "{%q:%q}\n", "error", msg)
}

// SignToken issues an HS256 token for subject, valid for ttl.
func SignToken(secret []byte, subject, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Protect wraps the authenticated entries of routes with required and the
// remaining ones with optional. Either may be nil. The returned table can be
// mounted by any of the framework adapters.
func Protect(routes []api.Route, required, optional func(http.Handler) http.Handler) []api.Route {
	out := make([]api.Route, len(routes))
	for i, route := range routes {
		switch {
		case route.Authenticated && required != nil:
			route.Handler = required(route.Handler)
		case !route.Authenticated && optional != nil:
			route.Handler = optional(route.Handler)
		}
		out[i] = route
	}
	return out
}

// UserIDFromContext returns the authenticated user ID, or "" when absent
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

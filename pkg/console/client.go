// Package console is a client for the game server's remote command API.
//
// The API has a single endpoint, POST /execute {"command": "..."}, answered
// with {"success": bool, "message": string}. Requests carry a pre-shared key
// in a header.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	defaultAPIKeyHeader     = "X-API-Key"
	defaultTimeout          = 10 * time.Second
	defaultFailureThreshold = 5
	defaultResetTimeout     = 30 * time.Second
	maxResponseBytes        = 64 * 1024
)

// Config configures a Client
type Config struct {
	// BaseURL of the command API, e.g. "http://mc.internal:8080"
	BaseURL string

	// APIKey is sent in APIKeyHeader on every request
	APIKey string

	// APIKeyHeader defaults to "X-API-Key"
	APIKeyHeader string

	// HTTPClient defaults to a client with a 10s timeout
	HTTPClient *http.Client

	// FailureThreshold consecutive transport failures open the circuit.
	// Zero means the default (5); negative disables the breaker.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a trial request
	ResetTimeout time.Duration

	// OnStateChange is notified of breaker transitions (optional)
	OnStateChange func(BreakerState)
}

// DefaultConfig returns a Config with default header, timeout and breaker settings
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:          baseURL,
		APIKey:           apiKey,
		APIKeyHeader:     defaultAPIKeyHeader,
		FailureThreshold: defaultFailureThreshold,
		ResetTimeout:     defaultResetTimeout,
	}
}

// Response is the validated answer of the command API
type Response struct {
	Success *bool  `json:"success" validate:"required"`
	Message string `json:"message"`
}

// Client executes console commands on the game server
type Client struct {
	baseURL    string
	apiKey     string
	header     string
	httpClient *http.Client
	breaker    *Breaker
	validate   *validator.Validate
}

// NewClient creates a command API client
func NewClient(config Config) *Client {
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = defaultAPIKeyHeader
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaultFailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = defaultResetTimeout
	}

	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL != "" && !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     config.APIKey,
		header:     config.APIKeyHeader,
		httpClient: config.HTTPClient,
		breaker:    NewBreaker(config.FailureThreshold, config.ResetTimeout, config.OnStateChange),
		validate:   validator.New(),
	}
}

// Execute runs command on the server. A response with success=false fails
// with ErrCommandRejected and does not count against the circuit breaker.
func (c *Client) Execute(ctx context.Context, command string) (*Response, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	var resp *Response
	err := c.breaker.Do(func() error {
		var err error
		resp, err = c.do(ctx, command)
		return err
	}, func(err error) bool {
		return !errors.Is(err, ErrCommandRejected) && !errors.Is(err, context.Canceled)
	})
	if err != nil {
		return resp, err
	}
	return resp, nil
}

// ExecuteCommand runs command and discards the server message
func (c *Client) ExecuteCommand(ctx context.Context, command string) error {
	_, err := c.Execute(ctx, command)
	return err
}

// State reports the circuit breaker state
func (c *Client) State() BreakerState {
	return c.breaker.State()
}

func (c *Client) do(ctx context.Context, command string) (*Response, error) {
	payload, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.header, c.apiKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", httpResp.StatusCode)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := c.validate.Struct(resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if !*resp.Success {
		return &resp, fmt.Errorf("%w: %s", ErrCommandRejected, resp.Message)
	}
	return &resp, nil
}

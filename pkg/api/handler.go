package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

const (
	defaultMaxRequestBytes = 64 << 10
	maxUserIDLen           = 255
	maxSessionIDLen        = 255

	CheckoutPath        = "/api/checkout"
	CheckoutSuccessPath = "/api/checkout/success"
	PaymentStatusPath   = "/api/payments/status"
)

// Handler provides the storefront payment endpoints
type Handler struct {
	config Config
}

// Routes returns the route table of the handler. The webhook route is not
// authenticated; the provider verifies the event signature itself.
func (h *Handler) Routes() []Route {
	return []Route{
		{Method: http.MethodPost, Path: CheckoutPath, Handler: http.HandlerFunc(h.CreateCheckout), Authenticated: true},
		{Method: http.MethodGet, Path: CheckoutSuccessPath, Handler: http.HandlerFunc(h.CheckoutSuccess)},
		{Method: http.MethodGet, Path: PaymentStatusPath, Handler: http.HandlerFunc(h.PaymentStatus), Authenticated: true},
		{Method: http.MethodPost, Path: h.config.WebhookPath, Handler: h.config.Provider.WebhookHandler()},
	}
}

// CreateCheckout starts a hosted checkout for the caller's cart and returns
// the URL the buyer is sent to.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	// 1. Extract User ID
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	// 2. Decode the cart
	var req billing.CheckoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.config.MaxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	// 3. Create the session
	session, err := h.config.Provider.CreateCheckout(r.Context(), userID, req)
	if err != nil {
		h.handleError(w, r, err, statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{CheckoutURL: session.URL})
}

// CheckoutSuccess is the return path of the provider redirect. It syncs the
// payment state eagerly so the confirmation page does not show stale data,
// then redirects. Sync failures never block the redirect because the webhook
// reconciles the same state later.
func (h *Handler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	userID := h.config.GetUserID(r)
	if len(userID) > maxUserIDLen {
		userID = ""
	}

	if sessionID != "" && len(sessionID) <= maxSessionIDLen {
		if _, err := h.config.Provider.CompleteCheckout(r.Context(), userID, sessionID); err != nil {
			h.config.Logger.Warn("eager payment sync failed",
				panelpay.F("session_id", sessionID),
				panelpay.F("error", err),
			)
		}
	} else {
		h.config.Logger.Warn("checkout success without valid session id")
	}

	http.Redirect(w, r, h.config.ConfirmationURL, http.StatusSeeOther)
}

// PaymentStatus returns the caller's cached payment snapshot. Users that never
// started a checkout get status "none".
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.config.Provider.PaymentStatus(r.Context(), userID)
	if errors.Is(err, billing.ErrCustomerNotFound) {
		snapshot, err = panelpay.NoPayments(), nil
	}
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to get payment status: %w", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, billing.ErrUnauthenticated, http.StatusUnauthorized)
		return "", false
	}
	if len(userID) > maxUserIDLen {
		h.handleError(w, r, fmt.Errorf("invalid user ID format"), http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

// statusForError maps the billing error taxonomy to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, billing.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, billing.ErrEmptyCart),
		errors.Is(err, billing.ErrMissingIdentity),
		errors.Is(err, billing.ErrInvalidIdentity),
		errors.Is(err, billing.ErrInvalidCartItem):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	msg := err.Error()
	if statusCode >= http.StatusInternalServerError {
		// Provider errors may carry upstream details
		h.config.Logger.Error("payment request failed",
			panelpay.F("path", r.URL.Path),
			panelpay.F("error", err),
		)
		msg = http.StatusText(statusCode)
	}
	writeJSON(w, statusCode, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if encodeErr := json.NewEncoder(w).Encode(v); encodeErr != nil {
		// Response already sent
		_ = encodeErr
	}
}

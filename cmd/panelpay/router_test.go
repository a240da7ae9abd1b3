package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpmw "github.com/mcpanel/panelpay/middleware/http"
	"github.com/mcpanel/panelpay/pkg/api"
	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

var testJWTSecret = []byte("router-secret")

type stubProvider struct {
	lastUser string
}

func (s *stubProvider) Name() string { return "stripe" }

func (s *stubProvider) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func (s *stubProvider) CreateCheckout(_ context.Context, userID string, _ billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	s.lastUser = userID
	return &billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil
}

func (s *stubProvider) CompleteCheckout(_ context.Context, userID, _ string) (*panelpay.PaymentSnapshot, error) {
	s.lastUser = userID
	return panelpay.NoPayments(), nil
}

func (s *stubProvider) SyncUser(context.Context, string) (*panelpay.PaymentSnapshot, error) {
	return panelpay.NoPayments(), nil
}

func (s *stubProvider) PaymentStatus(context.Context, string) (*panelpay.PaymentSnapshot, error) {
	return panelpay.NoPayments(), nil
}

func newTestRouter(t *testing.T, provider *stubProvider, health func(context.Context) error) http.Handler {
	t.Helper()
	handler, err := api.NewHandler(api.Config{
		Provider:        provider,
		GetUserID:       httpmw.FromContext(httpmw.UserIDKey),
		ConfirmationURL: "https://shop.example.com/thanks",
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "panelpay_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	return newRouter(routerConfig{
		Handler:   handler,
		Registry:  reg,
		JWTSecret: testJWTSecret,
		Health:    health,
	})
}

func TestRouter_CheckoutRequiresToken(t *testing.T) {
	provider := &stubProvider{}
	router := newTestRouter(t, provider, nil)
	body := `{"cartItems":[{"id":"1","name":"VIP","price":9.99,"quantity":1}],"minecraftUsername":"Steve"}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, api.CheckoutPath, strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := httpmw.SignToken(testJWTSecret, "user42", "", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, api.CheckoutPath, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"checkoutUrl":"https://checkout.stripe.com/cs_1"}`, rec.Body.String())
	assert.Equal(t, "user42", provider.lastUser)
}

func TestRouter_SuccessPathIsPublic(t *testing.T) {
	provider := &stubProvider{lastUser: "unset"}
	router := newTestRouter(t, provider, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, api.CheckoutSuccessPath+"?session_id=cs_1", http.NoBody))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, provider.lastUser, "anonymous return path syncs by session customer")
}

func TestRouter_Webhook(t *testing.T) {
	router := newTestRouter(t, &stubProvider{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader("{}")))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe", http.NoBody))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_Operational(t *testing.T) {
	router := newTestRouter(t, &stubProvider{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "panelpay_test_total 1")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_HealthReportsStoreFailure(t *testing.T) {
	router := newTestRouter(t, &stubProvider{}, func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package mux

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/mcpanel/panelpay/pkg/api"
)

func TestMount(t *testing.T) {
	router := mux.NewRouter()
	Mount(router, []api.Route{
		{Method: http.MethodPost, Path: "/api/webhooks/stripe", Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe", http.NoBody))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMount_Subrouter(t *testing.T) {
	router := mux.NewRouter()
	Mount(router.PathPrefix("/shop").Subrouter(), []api.Route{
		{Method: http.MethodGet, Path: "/api/payments/status", Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shop/api/payments/status", http.NoBody))
	assert.Equal(t, "ok", rec.Body.String())
}

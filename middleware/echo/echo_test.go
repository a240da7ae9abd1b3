package echo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/mcpanel/panelpay/pkg/api"
)

type ctxKey struct{}

func testRoutes() []api.Route {
	return []api.Route{
		{Method: http.MethodPost, Path: "/api/checkout", Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})},
		{Method: http.MethodGet, Path: "/api/checkout/success", Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/thanks", http.StatusSeeOther)
		})},
	}
}

func TestMount(t *testing.T) {
	e := echo.New()
	Mount(e, testRoutes())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", http.NoBody))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkout/success?session_id=cs_1", http.NoBody))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/thanks", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/checkout", http.NoBody))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMount_Group(t *testing.T) {
	e := echo.New()
	Mount(e.Group("/shop"), testRoutes())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/shop/api/checkout", http.NoBody))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUserID(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c, ctxKey{}))
	})

	req := httptest.NewRequest(http.MethodGet, "/me", http.NoBody)
	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, "user1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "user1", rec.Body.String())
}

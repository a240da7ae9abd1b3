package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	httpmw "github.com/mcpanel/panelpay/middleware/http"
	"github.com/mcpanel/panelpay/pkg/api"
)

type routerConfig struct {
	Handler    *api.Handler
	Registry   *prometheus.Registry
	JWTSecret  []byte
	JWTIssuer  string
	TrustProxy bool
	Logger     *zerolog.Logger
	Health     func(context.Context) error
}

// newRouter mounts the payment API with bearer authentication plus the
// operational endpoints
func newRouter(cfg routerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(requestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)

	required := httpmw.Middleware(httpmw.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	optional := httpmw.Middleware(httpmw.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Optional: true})
	for _, route := range httpmw.Protect(cfg.Handler.Routes(), required, optional) {
		r.Method(route.Method, route.Path, route.Handler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func requestLogger(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if logger == nil {
				return
			}
			logger.Info().
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

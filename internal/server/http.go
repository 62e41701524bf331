// Package server assembles the HTTP router of the simulated banking backend and runs it.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"bizbank-confirmation/internal/audit"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/server/middleware"
)

const shutdownTimeout = 10 * time.Second

// Deps holds the route handlers and their collaborators.
type Deps struct {
	// Routes mounts the authenticated bank routes.
	Routes func(chi.Router)
	// Tokens validates bearer tokens. Required.
	Tokens middleware.TokenValidator
	// Audit records authenticated requests. If nil, nothing is audited.
	Audit audit.AuditLogger
	// Health serves GET /healthz without authentication. If nil, the route is not mounted.
	Health http.Handler
	// DevOTP serves GET /dev/otp. Set only when dev OTP is enabled and not production.
	DevOTP http.Handler
	// Registry receives request metrics and is served on /metrics. If nil, metrics are off.
	Registry *prometheus.Registry
	// ServiceName names the otelhttp spans.
	ServiceName string
}

// NewRouter returns the backend handler.
//
// Route → handler mapping:
//   - POST /{kind}/initiate, POST /{kind}/finalize → sim/handler
//   - POST /otp/challenge, POST /otp/confirm       → sim/handler
//   - POST /payee, DELETE /payee/{id}              → sim/handler
//   - GET /dev/otp                                  → sim/handler DevOTP
//   - GET /healthz                                  → health/handler
//   - GET /metrics                                  → promhttp
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)
	if d.Registry != nil {
		r.Use(middleware.NewMetrics(d.Registry).Handler)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}
	if d.Health != nil {
		r.Method(http.MethodGet, "/healthz", d.Health)
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.Tokens))
		r.Use(middleware.Audit(d.Audit, map[string]bool{"/dev/otp": true}))
		if d.DevOTP != nil {
			r.Method(http.MethodGet, "/dev/otp", d.DevOTP)
		}
		if d.Routes != nil {
			d.Routes(r)
		}
	})

	name := d.ServiceName
	if name == "" {
		name = "bizbank-sim"
	}
	return otelhttp.NewHandler(r, name)
}

// ListenAndServe serves h on addr until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}

// Confirm-server exposes the confirmation workflow over a websocket on WS_ADDR (GET /ws) for browser
// and mobile front ends. GET /healthz reports database and policy readiness.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"bizbank-confirmation/internal/app"
	"bizbank-confirmation/internal/config"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/server"
	"bizbank-confirmation/internal/workflow"
	"bizbank-confirmation/internal/wsapi"
)

const serviceName = "bizbank-confirm-server"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, serviceName, workflow.Context{}, logger)
	if err != nil {
		logger.Fatal("confirm-server: wiring", zap.Error(err))
	}
	defer func() { _ = a.Close(context.Background()) }()

	var wsOpts []wsapi.Option
	wsOpts = append(wsOpts, wsapi.WithLogger(logger))
	if !cfg.IsProduction() {
		wsOpts = append(wsOpts, wsapi.WithOriginPatterns("localhost:*", "127.0.0.1:*"))
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)
	r.Method(http.MethodGet, "/healthz", a.Health())
	r.Method(http.MethodGet, "/ws", wsapi.NewHandler(a.Builder, a.Engine, wsOpts...))

	logger.Info("confirm-server: starting",
		zap.String("addr", cfg.WSAddr),
		zap.String("backend", cfg.APIBaseURL),
		zap.String("otp_store", cfg.OTPStore),
	)
	if err := server.ListenAndServe(ctx, cfg.WSAddr, otelhttp.NewHandler(r, serviceName), logger); err != nil {
		logger.Error("confirm-server: serve", zap.Error(err))
	}
}

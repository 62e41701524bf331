// Package app wires the confirmation workflow from configuration: the backend client, the OTP client
// and its store, the submission policy, audit persistence and telemetry sinks.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"bizbank-confirmation/internal/audit"
	auditrepo "bizbank-confirmation/internal/audit/repository"
	"bizbank-confirmation/internal/config"
	"bizbank-confirmation/internal/db"
	healthhandler "bizbank-confirmation/internal/health/handler"
	"bizbank-confirmation/internal/intent"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/otp"
	"bizbank-confirmation/internal/otp/redisstore"
	"bizbank-confirmation/internal/payee"
	policyengine "bizbank-confirmation/internal/policy/engine"
	"bizbank-confirmation/internal/refdata"
	"bizbank-confirmation/internal/remote/httpapi"
	"bizbank-confirmation/internal/telemetry"
	telemetryotel "bizbank-confirmation/internal/telemetry/otel"
	"bizbank-confirmation/internal/telemetry/producer"
	"bizbank-confirmation/internal/workflow"
)

const redisKeyPrefix = "bizbank:otp:"

// App is the wired client side of the workflow.
type App struct {
	Builder *intent.Builder
	Engine  *workflow.Engine
	Backend *httpapi.Client
	OTP     *otp.Client
	Editor  *payee.Editor
	Policy  *policyengine.OPAEvaluator
	// DB is nil when DATABASE_URL is empty.
	DB *sql.DB

	logger  *zap.Logger
	drain   bool
	closers []func(context.Context) error
}

// New builds an App. serviceName labels exported telemetry. session, when set, binds the engine to one
// customer and receives every run result.
func New(ctx context.Context, cfg *config.Config, serviceName string, session workflow.Context, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	a.Backend = httpapi.New(cfg.APIBaseURL, cfg.APIAccessToken, httpapi.WithTimeout(cfg.RequestTimeout()))

	var store otp.Store
	if cfg.OTPStore == config.OTPStoreRedis {
		client, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("app: redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		store = redisstore.New(client, redisKeyPrefix)
	}
	a.OTP = otp.NewClient(a.Backend, store, otp.WithTTL(cfg.ChallengeTTL()), otp.WithClientLogger(logger))

	module := ""
	if strings.TrimSpace(cfg.PolicyFile) != "" {
		src, err := policyengine.ReadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		module = src
	}
	policy, err := policyengine.NewOPAEvaluator(ctx, module, logger)
	if err != nil {
		return nil, fmt.Errorf("app: policy: %w", err)
	}
	a.Policy = policy

	fxMin, err := cfg.FXMinimum()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.Builder = intent.NewBuilder(refdata.Default(),
		intent.WithPolicy(policy),
		intent.WithFXMinimum(fxMin),
		intent.WithLogger(logger),
	)

	var repo auditrepo.Repository
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("app: database: %w", err)
		}
		a.DB = conn
		a.closers = append(a.closers, func(context.Context) error { return conn.Close() })
		repo = auditrepo.NewPostgresRepository(conn)
	}
	auditor := audit.NewLogger(repo, logger)

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure, logger)
	if err != nil {
		return nil, fmt.Errorf("app: otel: %w", err)
	}
	providers.SetGlobal()
	a.closers = append(a.closers, providers.Shutdown)

	var emitters []telemetry.EventEmitter
	if strings.TrimSpace(cfg.OTLPEndpoint) != "" {
		emitters = append(emitters, telemetryotel.NewEventEmitter(providers.LoggerProvider))
		a.drain = true
	}
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		if kp := producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic); kp != nil {
			var p producer.Producer = kp
			emitters = append(emitters, p)
			a.closers = append(a.closers, func(context.Context) error { return p.Close() })
			a.drain = true
		}
	}

	emitter := telemetry.Multi(emitters...)
	a.Editor = payee.NewEditor(a.Backend, auditor, logger, payee.WithEmitter(emitter))
	a.Engine = workflow.NewEngine(a.Backend, a.OTP,
		workflow.WithLogger(logger),
		workflow.WithAuditLogger(auditor),
		workflow.WithEmitter(emitter),
		workflow.WithTracerProvider(providers.TracerProvider),
		workflow.WithMeterProvider(providers.MeterProvider),
		workflow.WithResendLimit(cfg.ResendInterval(), 1),
		workflow.WithContext(session),
	)
	ok = true
	return a, nil
}

// Health returns the readiness handler for the configured dependencies.
func (a *App) Health() *healthhandler.Server {
	if a.DB == nil {
		return healthhandler.NewServer(nil, a.Policy)
	}
	return healthhandler.NewServer(a.DB, a.Policy)
}

// Close waits for in-flight telemetry when a sink is configured, then releases resources in reverse
// order of creation.
func (a *App) Close(ctx context.Context) error {
	if a.drain {
		select {
		case <-time.After(telemetry.ShutdownDrainDuration):
		case <-ctx.Done():
		}
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("app: close", zap.Error(err))
		return err
	}
	return nil
}

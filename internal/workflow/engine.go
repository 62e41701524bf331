// Package workflow runs a validated intent through the confirmation gates COP, Fraud and OTP, in that
// order, and finalizes it once every gate is clear.
//
// Each run owns one goroutine. A run suspends by receiving on a per-gate decision channel that is
// resolved at most once, so there is no polling and no engine-side timeout. Only OTP expiry is time
// bound and the OTP client enforces it.
package workflow

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bizbank-confirmation/internal/audit"
	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/logging"
	otpdomain "bizbank-confirmation/internal/otp/domain"
	"bizbank-confirmation/internal/remote"
	"bizbank-confirmation/internal/telemetry"
)

const instrumentationName = "bizbank-confirmation/workflow"

// MaxChallengeRefreshes caps RefreshChallenge calls per run.
const MaxChallengeRefreshes = 5

// DefaultResendInterval is the minimum gap between challenge refreshes.
const DefaultResendInterval = 30 * time.Second

// OTPVerifier is the OTP client used by a run. *otp.Client implements it.
type OTPVerifier interface {
	RequestChallenge(ctx context.Context, operationID string) (otpdomain.Challenge, error)
	Confirm(ctx context.Context, ch otpdomain.Challenge, code string) (otpdomain.ConfirmationType, error)
	Reject(ctx context.Context, ch otpdomain.Challenge)
}

// Context is the caller session the engine runs for.
type Context struct {
	// CustomerID, when set, must match every started intent.
	CustomerID string
	// Navigate is called once per run with its final result, e.g. to leave the confirmation screen.
	Navigate func(Result)
}

// Engine starts confirmation runs. It holds only read-only collaborators and may be shared.
type Engine struct {
	executor remote.Executor
	otp      OTPVerifier

	logger   *zap.Logger
	auditor  audit.AuditLogger
	emitter  telemetry.EventEmitter
	tracer   trace.Tracer
	outcomes metric.Int64Counter

	resendEvery time.Duration
	resendBurst int
	session     Context
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithAuditLogger records workflow milestones.
func WithAuditLogger(a audit.AuditLogger) Option { return func(e *Engine) { e.auditor = a } }

// WithEmitter publishes state changes as telemetry events.
func WithEmitter(em telemetry.EventEmitter) Option { return func(e *Engine) { e.emitter = em } }

// WithTracerProvider sets where run and call spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets where the outcome counter is recorded. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.outcomes = newOutcomeCounter(mp.Meter(instrumentationName)) }
}

// WithResendLimit sets the refresh throttle: one refresh per every, with the given burst.
func WithResendLimit(every time.Duration, burst int) Option {
	return func(e *Engine) {
		e.resendEvery = every
		e.resendBurst = burst
	}
}

// WithContext sets the caller session.
func WithContext(c Context) Option { return func(e *Engine) { e.session = c } }

// NewEngine returns an Engine over the given backend executor and OTP client.
func NewEngine(executor remote.Executor, verifier OTPVerifier, opts ...Option) *Engine {
	e := &Engine{
		executor:    executor,
		otp:         verifier,
		resendEvery: DefaultResendInterval,
		resendBurst: 1,
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = logging.OrNop(e.logger)
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}
	if e.outcomes == nil {
		e.outcomes = newOutcomeCounter(otel.Meter(instrumentationName))
	}
	if e.resendBurst < 1 {
		e.resendBurst = 1
	}
	return e
}

func newOutcomeCounter(m metric.Meter) metric.Int64Counter {
	c, err := m.Int64Counter("workflow.runs",
		metric.WithDescription("Finished confirmation runs by kind and outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil
	}
	return c
}

// Start begins a run for in. The engine keeps its own copy of the intent. Cancelling ctx cancels the run
// at the next suspension point; in-flight backend calls settle first.
func (e *Engine) Start(ctx context.Context, in domain.Intent) (*Run, error) {
	if strings.TrimSpace(in.ID) == "" || !in.Kind.Valid() {
		return nil, ErrInvalidIntent
	}
	if e.session.CustomerID != "" && e.session.CustomerID != in.CustomerID {
		return nil, ErrCustomerMismatch
	}
	limit := rate.Inf
	if e.resendEvery > 0 {
		limit = rate.Every(e.resendEvery)
	}
	r := newRun(ctx, e, in.Clone(), rate.NewLimiter(limit, e.resendBurst))

	e.logger.Info("workflow: run started",
		zap.String("intent_id", in.ID),
		zap.String("kind", string(in.Kind)),
	)
	e.record(ctx, r, audit.ActionIntentSubmitted, "", nil)
	r.events.Enqueue(ctx, telemetry.Event{
		IntentID:   in.ID,
		CustomerID: in.CustomerID,
		Kind:       string(in.Kind),
		EventType:  telemetry.EventIntentSubmitted,
	})
	go r.loop()
	return r, nil
}

func (e *Engine) record(ctx context.Context, r *Run, action, resource string, meta map[string]string) {
	if e.auditor == nil {
		return
	}
	if resource == "" {
		resource = string(r.intent.Kind)
	}
	e.auditor.LogEvent(ctx, audit.Event{
		IntentID:    r.intent.ID,
		CustomerID:  r.intent.CustomerID,
		Kind:        string(r.intent.Kind),
		OperationID: r.operationID(),
		Action:      action,
		Resource:    resource,
		Metadata:    meta,
	})
}

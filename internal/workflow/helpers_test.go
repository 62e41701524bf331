package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bizbank-confirmation/internal/audit"
	"bizbank-confirmation/internal/otp"
	"bizbank-confirmation/internal/remote/remotetest"
	"bizbank-confirmation/internal/telemetry"
	"bizbank-confirmation/internal/workflow"
)

const waitFor = 2 * time.Second

type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *auditRecorder) LogEvent(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *auditRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type eventRecorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *eventRecorder) Emit(_ context.Context, e telemetry.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

// sequence returns event types in emit order, with the state for state events.
func (r *eventRecorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if e.State != "" {
			out = append(out, e.EventType+":"+e.State)
			continue
		}
		out = append(out, e.EventType)
	}
	return out
}

// slowEmitter delays every emit so later events would overtake earlier ones if sent concurrently.
type slowEmitter struct {
	*eventRecorder
	delay time.Duration
}

func (s slowEmitter) Emit(ctx context.Context, e telemetry.Event) error {
	time.Sleep(s.delay)
	return s.eventRecorder.Emit(ctx, e)
}

type env struct {
	fake   *remotetest.Fake
	otp    *otp.Client
	store  *otp.MemoryStore
	engine *workflow.Engine
	audit  *auditRecorder
	events *eventRecorder
}

// newEnv builds an engine over a fresh fake bank. Refreshes are unthrottled unless opts say otherwise.
func newEnv(t *testing.T, opts ...workflow.Option) *env {
	t.Helper()
	e := &env{fake: remotetest.NewFake(), audit: &auditRecorder{}, events: &eventRecorder{}}
	e.store = otp.NewMemoryStore(nil)
	e.otp = otp.NewClient(e.fake, e.store)
	base := []workflow.Option{
		workflow.WithAuditLogger(e.audit),
		workflow.WithEmitter(e.events),
		workflow.WithResendLimit(0, 1),
	}
	e.engine = workflow.NewEngine(e.fake, e.otp, append(base, opts...)...)
	return e
}

func awaitState(t *testing.T, run *workflow.Run, state workflow.State) workflow.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return run.Snapshot().State == state }, waitFor, 2*time.Millisecond,
		"run never reached %s", state)
	return run.Snapshot()
}

// enterCode waits for the OTP gate and submits the code the bank issued.
func (e *env) enterCode(t *testing.T, run *workflow.Run) {
	t.Helper()
	s := awaitState(t, run, workflow.StateAwaitingOTP)
	code, ok := e.fake.Code(s.OperationID)
	require.True(t, ok)
	require.NoError(t, run.SubmitCode(context.Background(), code))
}

func wait(t *testing.T, run *workflow.Run) workflow.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	res, err := run.Wait(ctx)
	require.NoError(t, err)
	return res
}

// states drains the snapshots of a finished run.
func states(run *workflow.Run) []workflow.State {
	var out []workflow.State
	for s := range run.States() {
		out = append(out, s.State)
	}
	return out
}

package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bizbank-confirmation/internal/audit"
	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/otp"
	otpdomain "bizbank-confirmation/internal/otp/domain"
	"bizbank-confirmation/internal/remote"
	"bizbank-confirmation/internal/telemetry"
)

// stateBuffer holds the longest snapshot sequence of a run: initiating, three awaiting states, an
// expiry notice per challenge, a new challenge per refresh, finalizing and done.
const stateBuffer = 8 + 2*MaxChallengeRefreshes

// eventBuffer adds the submission event and one decision event per gate to stateBuffer.
const eventBuffer = stateBuffer + 4

// Run is one confirmation run. All methods are safe for concurrent use.
type Run struct {
	engine  *Engine
	intent  domain.Intent
	ctx     context.Context
	limiter *rate.Limiter

	states     chan Snapshot
	events     *telemetry.Queue
	done       chan struct{}
	cancelCh   chan struct{}
	cancelOnce sync.Once

	// decisions has one single-resolution channel per gate. The map is never written after newRun.
	decisions map[Gate]chan Decision
	finalized atomic.Bool

	// otpMu serializes SubmitCode and RefreshChallenge.
	otpMu sync.Mutex

	mu        sync.Mutex
	snap      Snapshot
	awaiting  Gate
	decided   map[Gate]bool
	finished  bool
	refreshes int
	result    Result
}

func newRun(ctx context.Context, e *Engine, in domain.Intent, limiter *rate.Limiter) *Run {
	return &Run{
		engine:   e,
		intent:   in,
		ctx:      ctx,
		limiter:  limiter,
		states:   make(chan Snapshot, stateBuffer),
		events:   telemetry.NewQueue(e.emitter, eventBuffer, e.logger),
		done:     make(chan struct{}),
		cancelCh: make(chan struct{}),
		decisions: map[Gate]chan Decision{
			GateCOP:   make(chan Decision, 1),
			GateFraud: make(chan Decision, 1),
			GateOTP:   make(chan Decision, 1),
		},
		decided: make(map[Gate]bool, 3),
		snap: Snapshot{
			IntentID: in.ID,
			State:    StateIdle,
			Results:  map[Gate]GateResult{GateCOP: Pending, GateFraud: Pending, GateOTP: Pending},
		},
	}
}

// Intent returns a copy of the intent being confirmed.
func (r *Run) Intent() domain.Intent { return r.intent.Clone() }

// States returns the snapshot sequence. It is closed after the done snapshot.
func (r *Run) States() <-chan Snapshot { return r.states }

// Done is closed once the run has finished and its side effects are recorded.
func (r *Run) Done() <-chan struct{} { return r.done }

// Snapshot returns the current state.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.clone()
}

// Wait blocks until the run is done or ctx ends.
func (r *Run) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel ends the run at its next suspension point. A finalize already in flight still completes.
func (r *Run) Cancel() {
	r.mu.Lock()
	if !r.finished {
		r.snap.CancelRequested = true
	}
	r.mu.Unlock()
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

// Decide resolves the awaited gate. Each gate accepts exactly one decision.
func (r *Run) Decide(gate Gate, d Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.finished:
		return ErrRunFinished
	case r.decided[gate]:
		return ErrAlreadyDecided
	case gate == GateNone || r.awaiting != gate:
		return ErrNotAwaiting
	}
	switch d.Result {
	case Confirmed:
	case Rejected:
		if d.Reason == "" {
			d.Reason = ReasonRejected
		}
	default:
		return ErrInvalidDecision
	}

	if d.Result == Confirmed {
		switch gate {
		case GateCOP:
			if !r.snap.COP.AllowsOverride() {
				return ErrOverrideNotAllowed
			}
		case GateOTP:
			ch := r.snap.Challenge
			if ch == nil || d.OperationID != ch.OperationID || (d.SessionID != "" && d.SessionID != ch.SessionID) {
				return ErrChallengeMismatch
			}
			if d.SessionID == "" {
				d.SessionID = ch.SessionID
			}
			if d.ConfirmationType == "" {
				d.ConfirmationType = ch.ConfirmationType
			}
		}
	}

	r.decided[gate] = true
	r.awaiting = GateNone
	r.decisions[gate] <- d
	return nil
}

// SubmitCode verifies code through the OTP client and, on success, confirms the OTP gate.
// otp.ErrInvalidCode leaves the gate waiting; otp.ErrChallengeExpired requires RefreshChallenge.
func (r *Run) SubmitCode(ctx context.Context, code string) error {
	r.otpMu.Lock()
	defer r.otpMu.Unlock()

	ch, err := r.currentChallenge()
	if err != nil {
		return err
	}
	t, err := r.engine.otp.Confirm(ctx, ch, code)
	if errors.Is(err, otp.ErrChallengeExpired) {
		r.markExpired(ch)
		return err
	}
	if err != nil {
		return err
	}
	return r.Decide(GateOTP, OTPConfirmed(ch.OperationID, ch.SessionID, t))
}

// RefreshChallenge drops the current challenge and requests a new one. It is throttled and capped at
// MaxChallengeRefreshes per run.
func (r *Run) RefreshChallenge(ctx context.Context) (otpdomain.Challenge, error) {
	r.otpMu.Lock()
	defer r.otpMu.Unlock()

	r.mu.Lock()
	switch {
	case r.finished:
		r.mu.Unlock()
		return otpdomain.Challenge{}, ErrRunFinished
	case r.awaiting != GateOTP || r.snap.Challenge == nil:
		r.mu.Unlock()
		return otpdomain.Challenge{}, ErrNotAwaiting
	case r.refreshes >= MaxChallengeRefreshes:
		r.mu.Unlock()
		return otpdomain.Challenge{}, ErrRefreshLimit
	case !r.limiter.Allow():
		r.mu.Unlock()
		return otpdomain.Challenge{}, ErrResendThrottled
	}
	old := *r.snap.Challenge
	r.refreshes++
	r.mu.Unlock()

	r.engine.otp.Reject(ctx, old)
	ch, err := r.requestChallenge(context.WithoutCancel(ctx), old.OperationID)
	if err != nil {
		return otpdomain.Challenge{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || r.awaiting != GateOTP {
		r.engine.otp.Reject(ctx, ch)
		return otpdomain.Challenge{}, ErrNotAwaiting
	}
	r.snap.Challenge = &ch
	r.snap.ChallengeExpired = false
	r.publishLocked()
	return ch, nil
}

func (r *Run) currentChallenge() (otpdomain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.finished:
		return otpdomain.Challenge{}, ErrRunFinished
	case r.decided[GateOTP]:
		return otpdomain.Challenge{}, ErrAlreadyDecided
	case r.awaiting != GateOTP || r.snap.Challenge == nil:
		return otpdomain.Challenge{}, ErrNotAwaiting
	case r.snap.ChallengeExpired:
		return otpdomain.Challenge{}, otp.ErrChallengeExpired
	}
	return *r.snap.Challenge, nil
}

func (r *Run) markExpired(ch otpdomain.Challenge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.snap.Challenge
	if r.finished || r.awaiting != GateOTP || cur == nil || cur.SessionID != ch.SessionID || r.snap.ChallengeExpired {
		return
	}
	r.snap.ChallengeExpired = true
	r.publishLocked()
}

func (r *Run) operationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.OperationID
}

func (r *Run) cancelled() bool {
	select {
	case <-r.cancelCh:
		return true
	case <-r.ctx.Done():
		return true
	default:
		return false
	}
}

// enter moves to state. awaiting is set before the snapshot is published so a caller reacting to it
// can decide immediately.
func (r *Run) enter(state State, gate Gate, mutate func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.State = state
	r.snap.Gate = gate
	if mutate != nil {
		mutate(&r.snap)
	}
	r.awaiting = gate
	r.publishLocked()
}

func (r *Run) publishLocked() {
	s := r.snap.clone()
	select {
	case r.states <- s:
	default:
		r.engine.logger.Warn("workflow: state buffer full, snapshot dropped",
			zap.String("intent_id", s.IntentID),
			zap.String("state", string(s.State)),
		)
	}
	eventType := telemetry.EventStateChanged
	if s.State == StateDone {
		eventType = telemetry.EventRunDone
	}
	r.events.Enqueue(r.ctx, telemetry.Event{
		IntentID:   r.intent.ID,
		CustomerID: r.intent.CustomerID,
		Kind:       string(r.intent.Kind),
		EventType:  eventType,
		State:      string(s.State),
		Outcome:    string(s.Outcome),
		Metadata:   map[string]string{"operation_id": s.OperationID, "gate": s.Gate.String()},
	})
}

func (r *Run) await(gate Gate) (Decision, error) {
	select {
	case d := <-r.decisions[gate]:
		return d, nil
	case <-r.cancelCh:
	case <-r.ctx.Done():
	}
	r.mu.Lock()
	r.awaiting = GateNone
	r.snap.CancelRequested = true
	r.mu.Unlock()
	return Decision{}, ErrCancelled
}

func (r *Run) resolve(ctx context.Context, gate Gate, d Decision, auto bool) {
	r.mu.Lock()
	if r.snap.Results[gate] == Pending {
		r.snap.Results[gate] = d.Result
	}
	r.mu.Unlock()
	if auto {
		return
	}
	meta := map[string]string{"gate": gate.String(), "result": string(d.Result)}
	if d.Reason != "" {
		meta["reason"] = d.Reason
	}
	r.engine.record(ctx, r, audit.ActionGateDecided, gate.String(), meta)
	r.events.Enqueue(ctx, telemetry.Event{
		IntentID:   r.intent.ID,
		CustomerID: r.intent.CustomerID,
		Kind:       string(r.intent.Kind),
		EventType:  telemetry.EventGateDecided,
		Metadata:   meta,
	})
}

func (r *Run) currentChallengeOrNil() *otpdomain.Challenge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap.Challenge == nil {
		return nil
	}
	ch := *r.snap.Challenge
	return &ch
}

func (r *Run) dropChallenge(ctx context.Context) {
	if ch := r.currentChallengeOrNil(); ch != nil {
		r.engine.otp.Reject(ctx, *ch)
	}
}

func (r *Run) loop() {
	e := r.engine
	ctx, span := e.tracer.Start(context.WithoutCancel(r.ctx), "workflow.run", trace.WithAttributes(
		attribute.String("intent.id", r.intent.ID),
		attribute.String("intent.kind", string(r.intent.Kind)),
	))
	res := r.execute(ctx)
	r.finish(ctx, res)

	span.SetAttributes(attribute.String("workflow.outcome", string(res.Outcome)))
	if res.Outcome == OutcomeError && res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	span.End()
	close(r.done)
}

// execute walks the gates. ctx is detached from the start context so backend calls settle on cancel.
func (r *Run) execute(ctx context.Context) Result {
	e := r.engine

	r.enter(StateInitiating, GateNone, nil)
	started, err := r.initiate(ctx)
	if err != nil {
		return r.failed(err)
	}
	if started.OperationID == "" {
		return r.failed(ErrNoOperation)
	}
	r.mu.Lock()
	r.snap.OperationID = started.OperationID
	r.snap.COP = started.COP
	r.snap.FraudAlerts = started.FraudAlerts.Clone()
	r.mu.Unlock()
	if r.cancelled() {
		return r.cancelledResult()
	}

	copOverride := false
	if started.COP.AutoConfirms() {
		r.resolve(ctx, GateCOP, Confirm(), true)
		e.record(ctx, r, audit.ActionCOPAutoConfirmed, "cop", map[string]string{"cop": started.COP.String()})
	} else {
		options := started.COP.Options()
		r.enter(StateAwaitingCOP, GateCOP, func(s *Snapshot) { s.Options = options })
		d, err := r.await(GateCOP)
		if err != nil {
			return r.cancelledResult()
		}
		r.resolve(ctx, GateCOP, d, false)
		if d.Result == Rejected {
			return r.rejected(d.Reason)
		}
		copOverride = true
	}

	var acks map[string]bool
	if started.FraudAlerts.Empty() {
		r.resolve(ctx, GateFraud, Confirm(), true)
	} else {
		r.enter(StateAwaitingFraudAck, GateFraud, func(s *Snapshot) { s.Options = nil })
		d, err := r.await(GateFraud)
		if err != nil {
			return r.cancelledResult()
		}
		r.resolve(ctx, GateFraud, d, false)
		if d.Result == Rejected {
			return r.rejected(d.Reason)
		}
		acks = started.FraudAlerts.Acknowledge()
	}

	ch, err := r.requestChallenge(ctx, started.OperationID)
	if err != nil {
		return r.failed(err)
	}
	// The first challenge counts against the resend throttle.
	r.limiter.Allow()
	if r.cancelled() {
		e.otp.Reject(ctx, ch)
		return r.cancelledResult()
	}
	r.enter(StateAwaitingOTP, GateOTP, func(s *Snapshot) {
		s.Options = nil
		s.Challenge = &ch
		s.ChallengeExpired = false
	})
	d, err := r.await(GateOTP)
	if err != nil {
		r.dropChallenge(ctx)
		return r.cancelledResult()
	}
	r.resolve(ctx, GateOTP, d, false)
	r.dropChallenge(ctx)
	if d.Result == Rejected {
		return r.rejected(d.Reason)
	}

	if r.cancelled() {
		return r.cancelledResult()
	}
	return r.finalize(ctx, remote.FinalizeRequest{
		Kind:                  r.intent.Kind,
		OperationID:           started.OperationID,
		SessionID:             d.SessionID,
		ConfirmationType:      d.ConfirmationType,
		FraudAcknowledgements: acks,
		COPOverride:           copOverride,
	})
}

func (r *Run) initiate(ctx context.Context) (remote.InitiateResult, error) {
	callCtx, span := r.engine.tracer.Start(ctx, "remote.initiate")
	res, err := r.engine.executor.Initiate(callCtx, r.intent.Clone())
	endSpan(span, err)
	return res, err
}

func (r *Run) requestChallenge(ctx context.Context, operationID string) (otpdomain.Challenge, error) {
	callCtx, span := r.engine.tracer.Start(ctx, "otp.request_challenge")
	ch, err := r.engine.otp.RequestChallenge(callCtx, operationID)
	endSpan(span, err)
	return ch, err
}

func (r *Run) finalize(ctx context.Context, req remote.FinalizeRequest) Result {
	e := r.engine
	r.enter(StateFinalizing, GateNone, nil)
	if !r.finalized.CompareAndSwap(false, true) {
		return r.failed(errors.New("workflow: finalize already called"))
	}
	e.record(ctx, r, audit.ActionFinalizeCalled, "", map[string]string{
		"cop_override": boolString(req.COPOverride),
		"fraud_acks":   boolString(len(req.FraudAcknowledgements) > 0),
		"session_id":   req.SessionID,
		"confirmation": string(req.ConfirmationType),
	})

	callCtx, span := e.tracer.Start(ctx, "remote.finalize")
	ok, err := e.executor.Finalize(callCtx, req)
	endSpan(span, err)

	var res Result
	switch {
	case err != nil:
		res = r.failed(err)
	case !ok:
		res = r.failed(ErrFinalizeDeclined)
	default:
		res = Result{Outcome: OutcomeSuccess}
	}
	res.CancelRequested = r.cancelled()
	return res
}

func (r *Run) failed(err error) Result {
	return Result{Outcome: OutcomeError, Err: err}
}

func (r *Run) rejected(reason string) Result {
	return Result{Outcome: OutcomeRejected, Reason: reason}
}

func (r *Run) cancelledResult() Result {
	return Result{Outcome: OutcomeRejected, Reason: ReasonCancelled, Err: ErrCancelled}
}

func (r *Run) finish(ctx context.Context, res Result) {
	e := r.engine

	r.mu.Lock()
	res.IntentID = r.intent.ID
	res.OperationID = r.snap.OperationID
	res.CancelRequested = res.CancelRequested || r.snap.CancelRequested
	r.finished = true
	r.awaiting = GateNone
	r.result = res
	r.snap.State = StateDone
	r.snap.Gate = GateNone
	r.snap.Outcome = res.Outcome
	r.snap.Reason = res.Reason
	r.snap.Err = res.Err
	r.snap.CancelRequested = res.CancelRequested
	r.publishLocked()
	close(r.states)
	r.events.Close()
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("intent_id", res.IntentID),
		zap.String("operation_id", res.OperationID),
		zap.String("outcome", string(res.Outcome)),
		zap.String("reason", res.Reason),
	}
	if res.Outcome == OutcomeError {
		e.logger.Warn("workflow: run failed", append(fields, zap.Error(res.Err))...)
	} else {
		e.logger.Info("workflow: run done", fields...)
	}

	meta := map[string]string{"outcome": string(res.Outcome)}
	if res.Reason != "" {
		meta["reason"] = res.Reason
	}
	if res.Err != nil {
		meta["error"] = res.Err.Error()
		if se, ok := remote.AsServerError(res.Err); ok {
			meta["server_code"] = se.Code
		}
	}
	e.record(ctx, r, audit.ActionRunDone, "", meta)

	if e.outcomes != nil {
		e.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(r.intent.Kind)),
			attribute.String("outcome", string(res.Outcome)),
		))
	}
	if e.session.Navigate != nil {
		e.session.Navigate(res)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

package workflow

import (
	"errors"

	"bizbank-confirmation/internal/cop"
	"bizbank-confirmation/internal/fraud"
	otpdomain "bizbank-confirmation/internal/otp/domain"
)

// State is a step of a confirmation run.
type State string

const (
	StateIdle             State = "idle"
	StateInitiating       State = "initiating"
	StateAwaitingCOP      State = "awaiting_cop"
	StateAwaitingFraudAck State = "awaiting_fraud_ack"
	StateAwaitingOTP      State = "awaiting_otp"
	StateFinalizing       State = "finalizing"
	StateDone             State = "done"
)

// Outcome is the disposition of a finished run.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
	OutcomeError    Outcome = "error"
)

// Gate identifies a confirmation gate. Gates run in declaration order.
type Gate int

const (
	GateNone Gate = iota
	GateCOP
	GateFraud
	GateOTP
)

func (g Gate) String() string {
	switch g {
	case GateCOP:
		return "cop"
	case GateFraud:
		return "fraud"
	case GateOTP:
		return "otp"
	default:
		return "none"
	}
}

// ParseGate maps a gate name to a Gate. Unknown names give GateNone.
func ParseGate(s string) Gate {
	switch s {
	case "cop":
		return GateCOP
	case "fraud":
		return GateFraud
	case "otp":
		return GateOTP
	default:
		return GateNone
	}
}

// GateResult is the resolution of one gate. It is set once and never reverts.
type GateResult string

const (
	Pending   GateResult = "pending"
	Confirmed GateResult = "confirmed"
	Rejected  GateResult = "rejected"
)

// Rejection reasons.
const (
	ReasonRejected  = "rejected"
	ReasonEdit      = "edit"
	ReasonCancelled = "cancelled"
)

// Decision is the caller's answer to an awaited gate.
type Decision struct {
	Result GateResult
	// Reason labels a rejection, e.g. ReasonEdit. Defaults to ReasonRejected.
	Reason string

	// OTP confirmation fields.
	OperationID      string
	SessionID        string
	ConfirmationType otpdomain.ConfirmationType
}

// Confirm accepts the COP or fraud gate.
func Confirm() Decision { return Decision{Result: Confirmed} }

// Reject declines the awaited gate.
func Reject() Decision { return Decision{Result: Rejected, Reason: ReasonRejected} }

// Edit declines the COP gate so the user can correct the payee.
func Edit() Decision { return Decision{Result: Rejected, Reason: ReasonEdit} }

// OTPConfirmed reports an externally verified challenge.
func OTPConfirmed(operationID, sessionID string, t otpdomain.ConfirmationType) Decision {
	return Decision{Result: Confirmed, OperationID: operationID, SessionID: sessionID, ConfirmationType: t}
}

// Snapshot is the observable state of a run at one point.
type Snapshot struct {
	IntentID    string
	OperationID string
	State       State
	// Gate is the awaited gate, GateNone outside the awaiting states.
	Gate    Gate
	Results map[Gate]GateResult

	COP         cop.Outcome
	Options     []cop.Option
	FraudAlerts fraud.AlertSet
	Challenge   *otpdomain.Challenge
	// ChallengeExpired is set once the current challenge can no longer be used and must be refreshed.
	ChallengeExpired bool

	Outcome         Outcome
	Reason          string
	Err             error
	CancelRequested bool
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Results = make(map[Gate]GateResult, len(s.Results))
	for g, r := range s.Results {
		out.Results[g] = r
	}
	if s.Options != nil {
		out.Options = append([]cop.Option(nil), s.Options...)
	}
	out.FraudAlerts = s.FraudAlerts.Clone()
	if s.Challenge != nil {
		ch := *s.Challenge
		out.Challenge = &ch
	}
	return out
}

// Result is the final disposition returned by Run.Wait.
type Result struct {
	IntentID    string
	OperationID string
	Outcome     Outcome
	Reason      string
	Err         error
	// CancelRequested is true when a cancel arrived while finalize was in flight.
	CancelRequested bool
}

var (
	// ErrNotAwaiting means the gate is not the one currently awaiting a decision.
	ErrNotAwaiting = errors.New("workflow: gate is not awaiting a decision")
	// ErrAlreadyDecided means the gate has already been resolved.
	ErrAlreadyDecided = errors.New("workflow: gate already decided")
	// ErrOverrideNotAllowed means "confirm anyway" was sent for a COP outcome that forbids it.
	ErrOverrideNotAllowed = errors.New("workflow: cop outcome cannot be overridden")
	// ErrRunFinished means the run is done.
	ErrRunFinished = errors.New("workflow: run finished")
	// ErrChallengeMismatch means an OTP confirmation names another operation or session.
	ErrChallengeMismatch = errors.New("workflow: confirmation does not match the challenge")
	// ErrInvalidDecision means the decision result is neither confirmed nor rejected.
	ErrInvalidDecision = errors.New("workflow: decision must confirm or reject")
	// ErrFinalizeDeclined means the backend answered finalize with success=false.
	ErrFinalizeDeclined = errors.New("workflow: finalize declined by server")
	// ErrCancelled is recorded on runs ended by Cancel or by the start context.
	ErrCancelled = errors.New("workflow: cancelled")
	// ErrResendThrottled means a challenge refresh came too soon after the previous one.
	ErrResendThrottled = errors.New("workflow: challenge refresh throttled")
	// ErrRefreshLimit means the run used up its challenge refreshes.
	ErrRefreshLimit = errors.New("workflow: challenge refresh limit reached")
	// ErrInvalidIntent means Start was given an intent without id or with an unknown kind.
	ErrInvalidIntent = errors.New("workflow: invalid intent")
	// ErrCustomerMismatch means the intent belongs to another customer than the engine context.
	ErrCustomerMismatch = errors.New("workflow: intent customer does not match session")
	// ErrNoOperation means initiate returned no operation id.
	ErrNoOperation = errors.New("workflow: backend returned no operation id")
)

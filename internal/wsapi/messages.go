package wsapi

import (
	"encoding/json"
	"errors"

	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/otp"
	otpdomain "bizbank-confirmation/internal/otp/domain"
	"bizbank-confirmation/internal/workflow"
)

// Message types.
const (
	TypeSubmit  = "submit"
	TypeDecide  = "decide"
	TypeCode    = "code"
	TypeRefresh = "refresh"
	TypeCancel  = "cancel"

	TypeState   = "state"
	TypeInvalid = "invalid"
	TypeError   = "error"
)

// ClientMessage is any message a client sends. Fields are read according to Type.
type ClientMessage struct {
	Type string `json:"type"`

	// submit
	Kind       domain.Kind     `json:"kind,omitempty"`
	CustomerID string          `json:"customerId,omitempty"`
	Form       json.RawMessage `json:"form,omitempty"`

	// decide
	Gate             string                     `json:"gate,omitempty"`
	Result           workflow.GateResult        `json:"result,omitempty"`
	Reason           string                     `json:"reason,omitempty"`
	OperationID      string                     `json:"operationId,omitempty"`
	SessionID        string                     `json:"sessionId,omitempty"`
	ConfirmationType otpdomain.ConfirmationType `json:"confirmationType,omitempty"`

	// code
	Code string `json:"code,omitempty"`
}

// ServerMessage is any message the server sends.
type ServerMessage struct {
	Type     string           `json:"type"`
	Snapshot *SnapshotView    `json:"snapshot,omitempty"`
	Failures []domain.Failure `json:"failures,omitempty"`
	Error    string           `json:"error,omitempty"`
	Code     string           `json:"code,omitempty"`
}

// COPView is the JSON form of a COP verdict.
type COPView struct {
	Kind          string `json:"kind"`
	Code          string `json:"code,omitempty"`
	SuggestedName string `json:"suggestedName,omitempty"`
	CanOverride   bool   `json:"canOverride"`
}

// SnapshotView is the JSON form of a workflow snapshot.
type SnapshotView struct {
	IntentID         string               `json:"intentId"`
	OperationID      string               `json:"operationId,omitempty"`
	State            workflow.State       `json:"state"`
	Gate             string               `json:"gate,omitempty"`
	Results          map[string]string    `json:"results"`
	COP              *COPView             `json:"cop,omitempty"`
	Options          []string             `json:"options,omitempty"`
	FraudAlerts      map[string]string    `json:"fraudAlerts,omitempty"`
	Challenge        *otpdomain.Challenge `json:"challenge,omitempty"`
	ChallengeExpired bool                 `json:"challengeExpired,omitempty"`
	Outcome          workflow.Outcome     `json:"outcome,omitempty"`
	Reason           string               `json:"reason,omitempty"`
	Error            string               `json:"error,omitempty"`
	CancelRequested  bool                 `json:"cancelRequested,omitempty"`
}

// NewSnapshotView converts s. The COP verdict is omitted until the backend has answered.
func NewSnapshotView(s workflow.Snapshot) *SnapshotView {
	v := &SnapshotView{
		IntentID:         s.IntentID,
		OperationID:      s.OperationID,
		State:            s.State,
		Results:          make(map[string]string, len(s.Results)),
		FraudAlerts:      s.FraudAlerts.Clone(),
		Challenge:        s.Challenge,
		ChallengeExpired: s.ChallengeExpired,
		Outcome:          s.Outcome,
		Reason:           s.Reason,
		CancelRequested:  s.CancelRequested,
	}
	if s.Gate != workflow.GateNone {
		v.Gate = s.Gate.String()
	}
	for g, r := range s.Results {
		v.Results[g.String()] = string(r)
	}
	if s.OperationID != "" {
		v.COP = &COPView{
			Kind:          s.COP.Kind.String(),
			Code:          s.COP.Code,
			SuggestedName: s.COP.SuggestedName,
			CanOverride:   s.COP.AllowsOverride(),
		}
	}
	for _, o := range s.Options {
		v.Options = append(v.Options, string(o))
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	return v
}

// errorCode names err for clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, otp.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, otp.ErrChallengeExpired):
		return "challenge_expired"
	case errors.Is(err, workflow.ErrNotAwaiting):
		return "not_awaiting"
	case errors.Is(err, workflow.ErrAlreadyDecided):
		return "already_decided"
	case errors.Is(err, workflow.ErrOverrideNotAllowed):
		return "override_not_allowed"
	case errors.Is(err, workflow.ErrRunFinished):
		return "run_finished"
	case errors.Is(err, workflow.ErrChallengeMismatch):
		return "challenge_mismatch"
	case errors.Is(err, workflow.ErrInvalidDecision):
		return "invalid_decision"
	case errors.Is(err, workflow.ErrResendThrottled):
		return "resend_throttled"
	case errors.Is(err, workflow.ErrRefreshLimit):
		return "refresh_limit"
	case errors.Is(err, workflow.ErrCustomerMismatch):
		return "customer_mismatch"
	case errors.Is(err, errNoRun):
		return "no_run"
	case errors.Is(err, errRunActive):
		return "run_active"
	case errors.Is(err, errUnknownType):
		return "unknown_type"
	}
	return "internal"
}

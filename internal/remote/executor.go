// Package remote is the contract between the workflow engine and the banking backend.
package remote

import (
	"context"
	"errors"
	"fmt"

	"bizbank-confirmation/internal/cop"
	"bizbank-confirmation/internal/fraud"
	"bizbank-confirmation/internal/intent/domain"
	otpdomain "bizbank-confirmation/internal/otp/domain"
)

// InitiateResult is the backend's answer to an initiate call.
type InitiateResult struct {
	OperationID string
	COP         cop.Outcome
	FraudAlerts fraud.AlertSet
}

// FinalizeRequest carries the confirmations gathered by the gates.
type FinalizeRequest struct {
	Kind                  domain.Kind
	OperationID           string
	SessionID             string
	ConfirmationType      otpdomain.ConfirmationType
	FraudAcknowledgements map[string]bool
	// COPOverride is true when the user confirmed despite a COP mismatch.
	COPOverride bool
}

// Executor initiates and finalizes operations. Implementations do not retry.
type Executor interface {
	Initiate(ctx context.Context, in domain.Intent) (InitiateResult, error)
	Finalize(ctx context.Context, req FinalizeRequest) (bool, error)
}

// ServerError is a non-2xx backend response. Code and Description are kept verbatim for display.
type ServerError struct {
	Status      int    `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *ServerError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("server error %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("server error %d: %s: %s", e.Status, e.Code, e.Description)
}

// AsServerError unwraps err to a *ServerError.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

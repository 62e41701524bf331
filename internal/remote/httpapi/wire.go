package httpapi

import (
	"time"

	"bizbank-confirmation/internal/intent/domain"
	otpdomain "bizbank-confirmation/internal/otp/domain"
)

// Wire types shared by the client and the simulated backend.

// InitiateRequest is the body of POST /{kind}/initiate.
type InitiateRequest struct {
	IntentID   string               `json:"intentId"`
	CustomerID string               `json:"customerId"`
	Payee      *domain.PayeeDetails `json:"payee,omitempty"`
	Payment    *domain.PaymentOrder `json:"payment,omitempty"`
	Forex      *domain.ForexOrder   `json:"forex,omitempty"`
}

// InitiateResponse is the answer to POST /{kind}/initiate.
type InitiateResponse struct {
	OperationID      string            `json:"operationId"`
	COPResponseCode  string            `json:"copResponseCode,omitempty"`
	COPNameMatch     string            `json:"copNameMatch,omitempty"`
	COPSuggestedName string            `json:"copSuggestedName,omitempty"`
	FraudAlerts      map[string]string `json:"fraudAlerts,omitempty"`
}

// FinalizeRequest is the body of POST /{kind}/finalize.
type FinalizeRequest struct {
	OperationID           string                     `json:"operationId"`
	SessionID             string                     `json:"sessionId"`
	ConfirmationType      otpdomain.ConfirmationType `json:"confirmationType"`
	FraudAcknowledgements map[string]bool            `json:"fraudAcknowledgements,omitempty"`
	COPOverride           bool                       `json:"copOverride,omitempty"`
}

// FinalizeResponse is the answer to POST /{kind}/finalize.
type FinalizeResponse struct {
	Success bool `json:"success"`
}

// ChallengeRequest is the body of POST /otp/challenge.
type ChallengeRequest struct {
	OperationID string `json:"operationId"`
}

// ChallengeResponse is the answer to POST /otp/challenge. ExpiresAt is optional.
type ChallengeResponse struct {
	OperationID      string                     `json:"operationId"`
	SessionID        string                     `json:"sessionId"`
	ConfirmationType otpdomain.ConfirmationType `json:"confirmationType"`
	ExpiresAt        *time.Time                 `json:"expiresAt,omitempty"`
}

// ConfirmRequest is the body of POST /otp/confirm.
type ConfirmRequest struct {
	OperationID string `json:"operationId"`
	SessionID   string `json:"sessionId"`
	Code        string `json:"code"`
}

// ConfirmResponse is the answer to POST /otp/confirm. HTTP 410 means the challenge expired.
type ConfirmResponse struct {
	Confirmed bool `json:"confirmed"`
}

// CreatePayeeRequest is the body of POST /payee.
type CreatePayeeRequest struct {
	CustomerID string              `json:"customerId"`
	Payee      domain.PayeeDetails `json:"payee"`
}

// CreatePayeeResponse is the answer to POST /payee.
type CreatePayeeResponse struct {
	PayeeID string `json:"payeeId"`
}

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

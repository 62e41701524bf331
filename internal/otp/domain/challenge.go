package domain

import "time"

// ConfirmationType is the channel the one-time code was delivered through.
type ConfirmationType string

const (
	ConfirmationSMS   ConfirmationType = "sms"
	ConfirmationPush  ConfirmationType = "push"
	ConfirmationEmail ConfirmationType = "email"
)

// Challenge is an outstanding OTP challenge for one backend operation.
type Challenge struct {
	OperationID      string           `json:"operationId"`
	SessionID        string           `json:"sessionId"`
	ConfirmationType ConfirmationType `json:"confirmationType"`
	CreatedAt        time.Time        `json:"createdAt"`
	ExpiresAt        time.Time        `json:"expiresAt"`
}

// Expired reports whether the verification deadline has passed at now.
func (c Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

package domain

import "time"

// Entry is one workflow audit record (stored in the workflow_audit table).
type Entry struct {
	ID          string
	IntentID    string
	CustomerID  string
	Kind        string
	OperationID string
	Action      string
	Resource    string
	Metadata    string // JSON object, empty when none
	CreatedAt   time.Time
}

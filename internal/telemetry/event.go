// Package telemetry carries workflow events to external sinks (Kafka, OpenTelemetry logs). Emission is
// best-effort and never blocks or fails a confirmation run.
package telemetry

import "time"

// Event types.
const (
	EventIntentSubmitted = "intent_submitted"
	EventStateChanged    = "state_changed"
	EventGateDecided     = "gate_decided"
	EventRunDone         = "run_done"
	EventPayeeReplaced   = "payee_replaced"
)

// Event is one workflow telemetry record. The JSON form is the Kafka message value.
type Event struct {
	IntentID   string            `json:"intentId"`
	CustomerID string            `json:"customerId,omitempty"`
	Kind       string            `json:"kind"`
	EventType  string            `json:"eventType"`
	State      string            `json:"state,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

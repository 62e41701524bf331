// Package audit records workflow milestones. Recording is best-effort: failures are logged and never
// reach the workflow.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bizbank-confirmation/internal/audit/domain"
	auditrepo "bizbank-confirmation/internal/audit/repository"
	"bizbank-confirmation/internal/logging"
)

// Workflow actions.
const (
	ActionIntentSubmitted  = "intent_submitted"
	ActionCOPAutoConfirmed = "cop_auto_confirmed"
	ActionGateDecided      = "gate_decided"
	ActionFinalizeCalled   = "finalize_called"
	ActionRunDone          = "run_done"
	ActionPayeeReplaced    = "payee_replaced"
)

// SentinelCustomerID is recorded when an event has no customer (e.g. an unauthenticated backend call).
const SentinelCustomerID = "_anonymous"

// Event is one audit record before persistence.
type Event struct {
	IntentID    string
	CustomerID  string
	Kind        string
	OperationID string
	Action      string
	Resource    string
	Metadata    map[string]string
}

// AuditLogger writes a single audit event.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Logger implements AuditLogger on an audit repository. A nil repository makes it a no-op.
type Logger struct {
	repo   auditrepo.Repository
	logger *zap.Logger
	nowF   func() time.Time
}

// NewLogger returns a Logger persisting to repo. repo may be nil.
func NewLogger(repo auditrepo.Repository, logger *zap.Logger) *Logger {
	return &Logger{repo: repo, logger: logging.OrNop(logger), nowF: time.Now}
}

// LogEvent writes one entry. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	if l == nil || l.repo == nil {
		return
	}
	if e.CustomerID == "" {
		e.CustomerID = SentinelCustomerID
	}
	entry := &domain.Entry{
		ID:          uuid.New().String(),
		IntentID:    e.IntentID,
		CustomerID:  e.CustomerID,
		Kind:        e.Kind,
		OperationID: e.OperationID,
		Action:      e.Action,
		Resource:    e.Resource,
		CreatedAt:   l.nowF().UTC(),
	}
	if len(e.Metadata) > 0 {
		if raw, err := json.Marshal(e.Metadata); err == nil {
			entry.Metadata = string(raw)
		}
	}
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		l.logger.Warn("audit: failed to log event",
			zap.String("action", e.Action),
			zap.String("resource", e.Resource),
			zap.String("intent_id", e.IntentID),
			zap.Error(err),
		)
	}
}

// PayeeReplaced records a payee edit.
func (l *Logger) PayeeReplaced(ctx context.Context, customerID, oldID, newID string) {
	l.LogEvent(ctx, Event{
		CustomerID: customerID,
		Kind:       "payee",
		Action:     ActionPayeeReplaced,
		Resource:   "payee",
		Metadata:   map[string]string{"old_payee_id": oldID, "new_payee_id": newID},
	})
}

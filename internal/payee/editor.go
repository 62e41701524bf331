// Package payee implements editing an existing payee.
//
// An edit deletes the old payee and creates a new one. Unlike creation it runs none of the
// confirmation gates.
package payee

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/telemetry"
)

var (
	// ErrNotPayeeIntent is returned when Edit is given a payment or FX intent.
	ErrNotPayeeIntent = errors.New("payee: intent is not a payee intent")
	// ErrMissingPayeeID is returned when no existing payee id is given.
	ErrMissingPayeeID = errors.New("payee: existing payee id is required")
	// ErrRecreateFailed wraps a create failure after the old payee was already deleted.
	ErrRecreateFailed = errors.New("payee: old payee deleted but recreate failed")
)

// Directory is the backend payee list.
type Directory interface {
	Create(ctx context.Context, customerID string, p domain.PayeeDetails) (string, error)
	Delete(ctx context.Context, payeeID string) error
}

// Auditor records edits. Errors are the auditor's concern.
type Auditor interface {
	PayeeReplaced(ctx context.Context, customerID, oldID, newID string)
}

// Editor replaces payees through a Directory.
type Editor struct {
	dir     Directory
	auditor Auditor
	emitter telemetry.EventEmitter
	logger  *zap.Logger
}

// EditorOption configures an Editor.
type EditorOption func(*Editor)

// WithEmitter sends a payee_replaced event after each successful edit.
func WithEmitter(em telemetry.EventEmitter) EditorOption { return func(e *Editor) { e.emitter = em } }

// NewEditor returns an Editor. auditor may be nil.
func NewEditor(dir Directory, auditor Auditor, logger *zap.Logger, opts ...EditorOption) *Editor {
	e := &Editor{dir: dir, auditor: auditor, logger: logging.OrNop(logger)}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Edit deletes existingID and recreates the payee from in. It returns the new payee id.
func (e *Editor) Edit(ctx context.Context, existingID string, in domain.Intent) (string, error) {
	existingID = strings.TrimSpace(existingID)
	if existingID == "" {
		return "", ErrMissingPayeeID
	}
	if in.Kind != domain.KindPayee || in.Payee == nil {
		return "", ErrNotPayeeIntent
	}
	if err := e.dir.Delete(ctx, existingID); err != nil {
		return "", err
	}
	newID, err := e.dir.Create(ctx, in.CustomerID, *in.Payee)
	if err != nil {
		e.logger.Error("payee recreate failed after delete",
			zap.String("customer_id", in.CustomerID),
			zap.String("old_payee_id", existingID),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", ErrRecreateFailed, err)
	}
	if e.auditor != nil {
		e.auditor.PayeeReplaced(ctx, in.CustomerID, existingID, newID)
	}
	telemetry.EmitAsync(e.emitter, ctx, telemetry.Event{
		IntentID:   in.ID,
		CustomerID: in.CustomerID,
		Kind:       string(in.Kind),
		EventType:  telemetry.EventPayeeReplaced,
		Metadata:   map[string]string{"old_payee_id": existingID, "new_payee_id": newID},
	}, e.logger)
	e.logger.Info("payee replaced", zap.String("old_payee_id", existingID), zap.String("new_payee_id", newID))
	return newID, nil
}

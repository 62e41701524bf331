// Package otp requests and confirms one-time code challenges for backend operations.
// Expiry is enforced here, locally, before any network call.
package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/otp/domain"
)

// DefaultChallengeTTL is the verification deadline used when the backend sends none.
const DefaultChallengeTTL = 5 * time.Minute

var (
	// ErrInvalidCode means the code was wrong. The challenge stays usable.
	ErrInvalidCode = errors.New("otp: invalid code")
	// ErrChallengeExpired means the challenge aged out. A new one must be requested.
	ErrChallengeExpired = errors.New("otp: challenge expired")
	// ErrMissingOperation is returned when no operation id is given.
	ErrMissingOperation = errors.New("otp: operation id is required")
)

// Service is the backend OTP endpoint pair.
type Service interface {
	// RequestChallenge asks the backend to send a code for operationID.
	RequestChallenge(ctx context.Context, operationID string) (domain.Challenge, error)
	// ConfirmChallenge checks code. It returns ErrChallengeExpired when the backend reports expiry.
	ConfirmChallenge(ctx context.Context, ch domain.Challenge, code string) (bool, error)
}

// Store keeps outstanding challenges by operation id.
type Store interface {
	Get(ctx context.Context, operationID string) (domain.Challenge, bool, error)
	Put(ctx context.Context, ch domain.Challenge) error
	Delete(ctx context.Context, operationID string) error
}

// Client is the OTP verification client used by the workflow engine.
type Client struct {
	svc    Service
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	nowF   func() time.Time

	// requests collapses concurrent RequestChallenge calls for one operation into one backend call.
	// Different operations do not wait on each other.
	requests singleflight.Group
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTTL sets the local deadline applied when the backend sends no expiry.
func WithTTL(d time.Duration) ClientOption { return func(c *Client) { c.ttl = d } }

// WithClientLogger sets the logger.
func WithClientLogger(l *zap.Logger) ClientOption { return func(c *Client) { c.logger = l } }

// WithClientClock overrides time.Now.
func WithClientClock(now func() time.Time) ClientOption { return func(c *Client) { c.nowF = now } }

// NewClient returns a Client over svc. A nil store uses a fresh MemoryStore.
func NewClient(svc Service, store Store, opts ...ClientOption) *Client {
	c := &Client{svc: svc, store: store, ttl: DefaultChallengeTTL, nowF: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore(c.nowF)
	}
	if c.ttl <= 0 {
		c.ttl = DefaultChallengeTTL
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// RequestChallenge returns the outstanding unexpired challenge for operationID, or requests a new one.
func (c *Client) RequestChallenge(ctx context.Context, operationID string) (domain.Challenge, error) {
	operationID = strings.TrimSpace(operationID)
	if operationID == "" {
		return domain.Challenge{}, ErrMissingOperation
	}
	v, err, _ := c.requests.Do(operationID, func() (any, error) {
		return c.requestChallenge(ctx, operationID)
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return v.(domain.Challenge), nil
}

func (c *Client) requestChallenge(ctx context.Context, operationID string) (domain.Challenge, error) {
	now := c.nowF()
	existing, ok, err := c.store.Get(ctx, operationID)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("otp: load challenge: %w", err)
	}
	if ok && !existing.Expired(now) {
		return existing, nil
	}

	ch, err := c.svc.RequestChallenge(ctx, operationID)
	if err != nil {
		return domain.Challenge{}, err
	}
	if ch.OperationID == "" {
		ch.OperationID = operationID
	}
	if ch.OperationID != operationID {
		return domain.Challenge{}, fmt.Errorf("otp: challenge issued for operation %q, want %q", ch.OperationID, operationID)
	}
	if ch.ConfirmationType == "" {
		ch.ConfirmationType = domain.ConfirmationSMS
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	if ch.ExpiresAt.IsZero() {
		ch.ExpiresAt = ch.CreatedAt.Add(c.ttl)
	}
	if err := c.store.Put(ctx, ch); err != nil {
		return domain.Challenge{}, fmt.Errorf("otp: save challenge: %w", err)
	}
	c.logger.Debug("otp challenge issued",
		zap.String("operation_id", ch.OperationID),
		zap.String("confirmation_type", string(ch.ConfirmationType)),
		zap.Time("expires_at", ch.ExpiresAt),
	)
	return ch, nil
}

// Confirm verifies code against ch and returns the confirmation type on success.
// It fails with ErrInvalidCode (retry allowed) or ErrChallengeExpired (challenge dropped). A challenge
// that was already confirmed, rejected or replaced is no longer outstanding and fails with
// ErrChallengeExpired without reaching the backend.
func (c *Client) Confirm(ctx context.Context, ch domain.Challenge, code string) (domain.ConfirmationType, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrInvalidCode
	}
	if ch.Expired(c.nowF()) {
		c.drop(ctx, ch.OperationID)
		return "", ErrChallengeExpired
	}
	stored, ok, err := c.store.Get(ctx, ch.OperationID)
	if err != nil {
		return "", fmt.Errorf("otp: load challenge: %w", err)
	}
	if !ok || stored.SessionID != ch.SessionID {
		return "", ErrChallengeExpired
	}
	ok, err = c.svc.ConfirmChallenge(ctx, ch, code)
	if errors.Is(err, ErrChallengeExpired) {
		c.drop(ctx, ch.OperationID)
		return "", ErrChallengeExpired
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidCode
	}
	c.drop(ctx, ch.OperationID)
	return ch.ConfirmationType, nil
}

// Reject discards ch locally. The backend is not called, so it cannot fail.
func (c *Client) Reject(ctx context.Context, ch domain.Challenge) {
	c.drop(ctx, ch.OperationID)
}

func (c *Client) drop(ctx context.Context, operationID string) {
	if err := c.store.Delete(ctx, operationID); err != nil {
		c.logger.Warn("otp: drop challenge failed", zap.String("operation_id", operationID), zap.Error(err))
	}
}

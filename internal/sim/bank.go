// Package sim is an in-memory banking backend for local development and end-to-end tests. It answers the
// same initiate, finalize, OTP and payee calls as the real API and derives COP verdicts and fraud alerts
// from fixed scenario rules.
package sim

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bizbank-confirmation/internal/cop"
	"bizbank-confirmation/internal/devotp"
	"bizbank-confirmation/internal/fraud"
	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/otp"
	otpdomain "bizbank-confirmation/internal/otp/domain"
	"bizbank-confirmation/internal/otp/sms"
	"bizbank-confirmation/internal/remote"
)

// Scenario constants.
const (
	// UnknownAccount is the account number the scheme reports as not found (AC01).
	UnknownAccount = "00000000"
	// MaxCodeAttempts wrong codes expire a challenge.
	MaxCodeAttempts = 3
	// DefaultChallengeTTL is how long an issued code stays valid.
	DefaultChallengeTTL = 5 * time.Minute
)

var (
	// DefaultVelocityThreshold is the amount above which a VELOCITY alert is raised.
	DefaultVelocityThreshold = decimal.NewFromInt(1000)
	// DefaultFundsLimit is the available balance; larger payments fail at finalize.
	DefaultFundsLimit = decimal.NewFromInt(100000)
	// DefaultWatchList is the set of payee countries that raise HIGH_RISK_COUNTRY.
	DefaultWatchList = []string{"NG"}
)

// Error codes returned in ServerError.Code.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeOperationNotFound    = "OPERATION_NOT_FOUND"
	CodeAlreadyFinalized     = "ALREADY_FINALIZED"
	CodeKindMismatch         = "KIND_MISMATCH"
	CodeOTPNotConfirmed      = "OTP_NOT_CONFIRMED"
	CodeChallengeNotFound    = "CHALLENGE_NOT_FOUND"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeCOPOverrideRequired  = "COP_OVERRIDE_REQUIRED"
	CodeFraudNotAcknowledged = "FRAUD_NOT_ACKNOWLEDGED"
	CodeInsufficientFunds    = "INSUFFICIENT_FUNDS"
	CodePayeeNotFound        = "PAYEE_NOT_FOUND"
)

type challenge struct {
	otpdomain.Challenge
	codeHash  string
	attempts  int
	confirmed bool
}

type operation struct {
	id         string
	customerID string
	intent     domain.Intent
	cop        cop.Outcome
	alerts     fraud.AlertSet
	challenge  *challenge
	finalized  bool
	payeeID    string
}

type payeeRecord struct {
	customerID string
	details    domain.PayeeDetails
}

// Bank is the simulated backend. It implements remote.Executor, otp.Service and payee.Directory.
type Bank struct {
	logger    *zap.Logger
	nowF      func() time.Time
	newID     func() string
	ttl       time.Duration
	velocity  decimal.Decimal
	funds     decimal.Decimal
	watchList map[string]bool
	codes     devotp.Store
	sender    sms.Sender

	mu     sync.Mutex
	ops    map[string]*operation
	payees map[string]payeeRecord
	own    map[string]map[string]bool
	phones map[string]string
}

// Option configures a Bank.
type Option func(*Bank)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(b *Bank) { b.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(b *Bank) { b.nowF = now } }

// WithIDs overrides uuid generation for operation, session and payee ids.
func WithIDs(newID func() string) Option { return func(b *Bank) { b.newID = newID } }

// WithChallengeTTL sets how long issued codes stay valid.
func WithChallengeTTL(d time.Duration) Option { return func(b *Bank) { b.ttl = d } }

// WithVelocityThreshold sets the amount above which VELOCITY is raised.
func WithVelocityThreshold(d decimal.Decimal) Option { return func(b *Bank) { b.velocity = d } }

// WithFundsLimit sets the largest payment finalize accepts.
func WithFundsLimit(d decimal.Decimal) Option { return func(b *Bank) { b.funds = d } }

// WithWatchList replaces the high-risk country list.
func WithWatchList(countries ...string) Option {
	return func(b *Bank) {
		b.watchList = make(map[string]bool, len(countries))
		for _, c := range countries {
			b.watchList[strings.ToUpper(strings.TrimSpace(c))] = true
		}
	}
}

// WithDevCodes stores every issued code in store for dev retrieval.
func WithDevCodes(store devotp.Store) Option { return func(b *Bank) { b.codes = store } }

// WithSMS delivers codes through sender to the customer's registered phone.
func WithSMS(sender sms.Sender) Option { return func(b *Bank) { b.sender = sender } }

// WithOwnAccounts registers accounts (account numbers or IBANs) held by customerID. Payees on them
// match as internal.
func WithOwnAccounts(customerID string, accounts ...string) Option {
	return func(b *Bank) {
		set := b.own[customerID]
		if set == nil {
			set = make(map[string]bool, len(accounts))
			b.own[customerID] = set
		}
		for _, a := range accounts {
			set[normalizeAccount(a)] = true
		}
	}
}

// WithPhone registers the phone codes are sent to for customerID.
func WithPhone(customerID, phone string) Option {
	return func(b *Bank) { b.phones[customerID] = phone }
}

// NewBank returns an empty simulated backend.
func NewBank(opts ...Option) *Bank {
	b := &Bank{
		nowF:     time.Now,
		newID:    func() string { return uuid.New().String() },
		ttl:      DefaultChallengeTTL,
		velocity: DefaultVelocityThreshold,
		funds:    DefaultFundsLimit,
		ops:      make(map[string]*operation),
		payees:   make(map[string]payeeRecord),
		own:      make(map[string]map[string]bool),
		phones:   make(map[string]string),
	}
	WithWatchList(DefaultWatchList...)(b)
	for _, o := range opts {
		o(b)
	}
	b.logger = logging.OrNop(b.logger)
	return b
}

func serverError(status int, code, description string) *remote.ServerError {
	return &remote.ServerError{Status: status, Code: code, Description: description}
}

func normalizeAccount(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(s, "-", "")), ""))
}

// Initiate registers an operation and returns its COP verdict and fraud alerts.
func (b *Bank) Initiate(ctx context.Context, in domain.Intent) (remote.InitiateResult, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return remote.InitiateResult{}, serverError(http.StatusBadRequest, CodeInvalidRequest, "customer id is required")
	}
	switch {
	case in.Kind == domain.KindPayee && in.Payee != nil:
	case in.Kind == domain.KindPayment && in.Payment != nil:
	case in.Kind == domain.KindForexOrder && in.Forex != nil:
	default:
		return remote.InitiateResult{}, serverError(http.StatusBadRequest, CodeInvalidRequest, "intent payload does not match kind")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	beneficiary := in.Beneficiary()
	if in.Kind == domain.KindPayment && beneficiary == nil {
		rec, ok := b.payees[in.Payment.PayeeID]
		if !ok || rec.customerID != in.CustomerID {
			return remote.InitiateResult{}, serverError(http.StatusNotFound, CodePayeeNotFound, "payee "+in.Payment.PayeeID+" not found")
		}
		d := rec.details
		beneficiary = &d
	}

	op := &operation{
		id:         b.newID(),
		customerID: in.CustomerID,
		intent:     in.Clone(),
		cop:        cop.Outcome{Kind: cop.NotApplicable},
		alerts:     fraud.AlertSet{},
	}
	if beneficiary != nil {
		op.cop = b.nameCheck(in.CustomerID, *beneficiary)
		if a := beneficiary.Address; a != nil && b.watchList[strings.ToUpper(a.Country)] {
			op.alerts[fraud.AlertHighRiskCountry] = "The payee is in a high-risk country"
		}
	}
	if amount, _, ok := in.Amount(); ok && amount.GreaterThan(b.velocity) {
		op.alerts[fraud.AlertVelocity] = "This amount is unusual for your account"
	}
	if len(op.alerts) == 0 {
		op.alerts = nil
	}
	b.ops[op.id] = op

	b.logger.Debug("sim: operation initiated",
		zap.String("operation_id", op.id),
		zap.String("kind", string(in.Kind)),
		zap.String("cop", op.cop.String()),
		zap.Strings("alerts", op.alerts.Codes()),
	)
	return remote.InitiateResult{OperationID: op.id, COP: op.cop, FraudAlerts: op.alerts.Clone()}, nil
}

// nameCheck applies the COP scenario rules. Only GBP sort code accounts take part in the scheme.
func (b *Bank) nameCheck(customerID string, p domain.PayeeDetails) cop.Outcome {
	acct := normalizeAccount(p.AccountNumber)
	if acct == "" {
		acct = normalizeAccount(p.IBAN)
	}
	if b.own[customerID][acct] {
		return cop.Outcome{Kind: cop.Internal}
	}
	if p.SortCode == "" || (p.Currency != "" && !strings.EqualFold(p.Currency, "GBP")) {
		return cop.Outcome{Kind: cop.NotApplicable}
	}
	name := strings.ToLower(p.HolderName)
	switch {
	case acct == UnknownAccount:
		return cop.Parse(cop.CodeAccountNotFound, "", "")
	case strings.Contains(name, "mismatch"):
		return cop.Parse(cop.CodeNameNoMatch, "", "")
	case strings.Contains(name, "close"):
		return cop.Parse(cop.CodeCloseMatch, "", suggestName(p.HolderName))
	default:
		return cop.Outcome{Kind: cop.Match}
	}
}

func suggestName(holder string) string {
	words := strings.Fields(holder)
	out := words[:0]
	for _, w := range words {
		if !strings.EqualFold(w, "close") {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

// Owner returns the customer that initiated operationID.
func (b *Bank) Owner(operationID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	op, ok := b.ops[operationID]
	if !ok {
		return "", false
	}
	return op.customerID, true
}

// Finalize executes a confirmed operation. Each operation finalizes at most once.
func (b *Bank) Finalize(ctx context.Context, req remote.FinalizeRequest) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op, ok := b.ops[req.OperationID]
	switch {
	case !ok:
		return false, serverError(http.StatusNotFound, CodeOperationNotFound, "operation "+req.OperationID+" not found")
	case op.finalized:
		return false, serverError(http.StatusConflict, CodeAlreadyFinalized, "operation already finalized")
	case req.Kind != op.intent.Kind:
		return false, serverError(http.StatusBadRequest, CodeKindMismatch, "operation is a "+string(op.intent.Kind))
	case op.challenge == nil || !op.challenge.confirmed || op.challenge.SessionID != req.SessionID:
		return false, serverError(http.StatusForbidden, CodeOTPNotConfirmed, "one-time code not confirmed for this session")
	case op.cop.Kind == cop.AccountNotFound:
		return false, serverError(http.StatusUnprocessableEntity, CodeAccountNotFound, "the payee account does not exist")
	case !op.cop.AutoConfirms() && !req.COPOverride:
		return false, serverError(http.StatusUnprocessableEntity, CodeCOPOverrideRequired, "payee name not confirmed")
	}
	for _, code := range op.alerts.Codes() {
		if !req.FraudAcknowledgements[code] {
			return false, serverError(http.StatusUnprocessableEntity, CodeFraudNotAcknowledged, "alert "+code+" not acknowledged")
		}
	}
	if op.intent.Kind == domain.KindPayment && op.intent.Payment.Amount.GreaterThan(b.funds) {
		return false, serverError(http.StatusUnprocessableEntity, CodeInsufficientFunds, "insufficient funds")
	}

	op.finalized = true
	op.challenge = nil
	if b.codes != nil {
		b.codes.Delete(ctx, op.id)
	}
	if declined(op.intent) {
		b.logger.Info("sim: operation declined", zap.String("operation_id", op.id))
		return false, nil
	}
	if op.intent.Kind == domain.KindPayee {
		op.payeeID = b.newID()
		b.payees[op.payeeID] = payeeRecord{customerID: op.customerID, details: *op.intent.Clone().Payee}
	}
	b.logger.Info("sim: operation finalized",
		zap.String("operation_id", op.id),
		zap.String("kind", string(op.intent.Kind)),
		zap.Bool("cop_override", req.COPOverride),
	)
	return true, nil
}

// declined reports the scenario where the backend answers success=false: a payment reference or payee
// nickname containing "decline".
func declined(in domain.Intent) bool {
	switch in.Kind {
	case domain.KindPayment:
		return strings.Contains(strings.ToLower(in.Payment.Reference), "decline")
	case domain.KindPayee:
		return strings.Contains(strings.ToLower(in.Payee.Nickname), "decline")
	}
	return false
}

// FinalizedPayee returns the payee created by finalizing a payee operation.
func (b *Bank) FinalizedPayee(operationID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	op, ok := b.ops[operationID]
	if !ok || op.payeeID == "" {
		return "", false
	}
	return op.payeeID, true
}

// RequestChallenge issues a new code for operationID, replacing any earlier one.
func (b *Bank) RequestChallenge(ctx context.Context, operationID string) (otpdomain.Challenge, error) {
	code, err := otp.GenerateOTP()
	if err != nil {
		return otpdomain.Challenge{}, err
	}

	b.mu.Lock()
	op, ok := b.ops[operationID]
	if !ok {
		b.mu.Unlock()
		return otpdomain.Challenge{}, serverError(http.StatusNotFound, CodeOperationNotFound, "operation "+operationID+" not found")
	}
	if op.finalized {
		b.mu.Unlock()
		return otpdomain.Challenge{}, serverError(http.StatusConflict, CodeAlreadyFinalized, "operation already finalized")
	}
	now := b.nowF().UTC()
	ch := &challenge{
		Challenge: otpdomain.Challenge{
			OperationID:      operationID,
			SessionID:        b.newID(),
			ConfirmationType: otpdomain.ConfirmationSMS,
			CreatedAt:        now,
			ExpiresAt:        now.Add(b.ttl),
		},
		codeHash: otp.HashOTP(code),
	}
	op.challenge = ch
	phone := b.phones[op.customerID]
	b.mu.Unlock()

	if b.codes != nil {
		b.codes.Put(ctx, operationID, code, ch.ExpiresAt)
	}
	if b.sender != nil && phone != "" {
		if err := b.sender.SendCode(ctx, phone, code); err != nil {
			b.logger.Warn("sim: sms delivery failed", zap.String("operation_id", operationID), zap.Error(err))
		}
	}
	return ch.Challenge, nil
}

// ConfirmChallenge checks code for the challenge's session. The last allowed wrong attempt expires it.
func (b *Bank) ConfirmChallenge(ctx context.Context, c otpdomain.Challenge, code string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op, ok := b.ops[c.OperationID]
	if !ok {
		return false, serverError(http.StatusNotFound, CodeOperationNotFound, "operation "+c.OperationID+" not found")
	}
	ch := op.challenge
	if ch == nil || ch.SessionID != c.SessionID {
		return false, serverError(http.StatusNotFound, CodeChallengeNotFound, "no challenge for this session")
	}
	if ch.confirmed {
		return true, nil
	}
	if ch.Expired(b.nowF()) {
		b.dropLocked(ctx, op)
		return false, otp.ErrChallengeExpired
	}
	if !otp.OTPEqual(code, ch.codeHash) {
		ch.attempts++
		if ch.attempts >= MaxCodeAttempts {
			b.dropLocked(ctx, op)
			return false, otp.ErrChallengeExpired
		}
		return false, nil
	}
	ch.confirmed = true
	if b.codes != nil {
		b.codes.Delete(ctx, op.id)
	}
	return true, nil
}

func (b *Bank) dropLocked(ctx context.Context, op *operation) {
	op.challenge = nil
	if b.codes != nil {
		b.codes.Delete(ctx, op.id)
	}
}

// Create adds a payee for customerID directly, without confirmation.
func (b *Bank) Create(ctx context.Context, customerID string, p domain.PayeeDetails) (string, error) {
	if strings.TrimSpace(customerID) == "" || strings.TrimSpace(p.HolderName) == "" {
		return "", serverError(http.StatusBadRequest, CodeInvalidRequest, "customer id and holder name are required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.newID()
	b.payees[id] = payeeRecord{customerID: customerID, details: p}
	return id, nil
}

// Delete removes a payee.
func (b *Bank) Delete(ctx context.Context, payeeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.payees[payeeID]; !ok {
		return serverError(http.StatusNotFound, CodePayeeNotFound, "payee "+payeeID+" not found")
	}
	delete(b.payees, payeeID)
	return nil
}

// Payee returns a stored payee and its owner.
func (b *Bank) Payee(payeeID string) (customerID string, p domain.PayeeDetails, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.payees[payeeID]
	return rec.customerID, rec.details, ok
}

// PayeeOwner returns the customer a payee belongs to.
func (b *Bank) PayeeOwner(payeeID string) (string, bool) {
	customerID, _, ok := b.Payee(payeeID)
	return customerID, ok
}

// DevCode returns the plaintext code last issued for operationID. Only available with WithDevCodes.
func (b *Bank) DevCode(ctx context.Context, operationID string) (string, bool) {
	if b.codes == nil {
		return "", false
	}
	return b.codes.Get(ctx, operationID)
}

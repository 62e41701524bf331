// Package intent validates raw user forms into immutable operation intents. It never calls the network.
package intent

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/refdata"
)

const (
	// DefaultFXMinimum is the smallest source amount accepted for an FX order when none is configured.
	DefaultFXMinimum = 50
	// WalletLength is the exact length of a wallet number.
	WalletLength = 13
	dateLayout   = "2006-01-02"
)

// CustomerField is the failure field reported when a form is submitted without a customer id.
const CustomerField = "customerId"

var (
	accountNumberRE = regexp.MustCompile(`^[0-9]{8}$`)
	sortCodeRE      = regexp.MustCompile(`^[0-9]{6}$`)
	ibanRE          = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{10,30}$`)
	swiftRE         = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
)

// Policy is an optional submission check run after field validation passes. A denial is surfaced
// as a policy_denied failure; an evaluation error is logged and the intent allowed.
type Policy interface {
	EvaluateSubmission(ctx context.Context, in domain.Intent) (allowed bool, reason string, err error)
}

// Builder turns forms into intents. It is safe for concurrent use.
type Builder struct {
	catalog  refdata.Catalog
	policy   Policy
	fxMin    decimal.Decimal
	validate *validator.Validate
	logger   *zap.Logger
	nowF     func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithPolicy adds a submission policy.
func WithPolicy(p Policy) Option { return func(b *Builder) { b.policy = p } }

// WithFXMinimum overrides the FX minimum source amount.
func WithFXMinimum(amount decimal.Decimal) Option { return func(b *Builder) { b.fxMin = amount } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(b *Builder) { b.logger = l } }

// WithClock overrides time.Now (used for standing order start dates and CreatedAt).
func WithClock(now func() time.Time) Option { return func(b *Builder) { b.nowF = now } }

// NewBuilder returns a Builder validating against catalog.
func NewBuilder(catalog refdata.Catalog, opts ...Option) *Builder {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	b := &Builder{
		catalog:  catalog,
		fxMin:    decimal.NewFromInt(DefaultFXMinimum),
		validate: v,
		nowF:     time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = logging.OrNop(b.logger)
	return b
}

// SubmitPayee validates a payee form.
func (b *Builder) SubmitPayee(ctx context.Context, customerID string, form PayeeForm) (domain.Intent, error) {
	f := form.normalized()
	var fs failures
	if strings.TrimSpace(customerID) == "" {
		fs.add(CustomerField, domain.CodeRequired)
	}
	b.structFailures(&fs, f)
	details := b.payeeRules(&fs, "", f)
	if err := fs.err(); err != nil {
		return domain.Intent{}, err
	}
	in := b.newIntent(customerID, domain.KindPayee)
	in.Payee = &details
	return b.finish(ctx, in)
}

// SubmitPayment validates a payment or standing order form.
func (b *Builder) SubmitPayment(ctx context.Context, customerID string, form PaymentForm) (domain.Intent, error) {
	f := form.normalized()
	var fs failures
	if strings.TrimSpace(customerID) == "" {
		fs.add(CustomerField, domain.CodeRequired)
	}
	b.structFailures(&fs, f)

	order := domain.PaymentOrder{
		SourceAccount: f.SourceAccount,
		PayeeID:       f.PayeeID,
		Currency:      f.Currency,
		PurposeCode:   f.PurposeCode,
		Reference:     f.Reference,
	}
	if f.Amount != "" {
		order.Amount = parseAmount(&fs, "amount", f.Amount)
	}
	if f.PurposeCode != "" {
		if _, ok := b.catalog.Purpose(f.PurposeCode); !ok {
			fs.add("purposeCode", domain.CodeUnknownPurpose)
		}
	}
	if f.Beneficiary != nil {
		d := b.payeeRules(&fs, "beneficiary.", *f.Beneficiary)
		order.Beneficiary = &d
	}
	order.Recurrence = b.recurrenceRules(&fs, f)
	if err := fs.err(); err != nil {
		return domain.Intent{}, err
	}
	in := b.newIntent(customerID, domain.KindPayment)
	in.Payment = &order
	return b.finish(ctx, in)
}

// SubmitForexOrder validates an FX order form. A source amount below the minimum yields a blocking
// below_minimum failure.
func (b *Builder) SubmitForexOrder(ctx context.Context, customerID string, form ForexForm) (domain.Intent, error) {
	f := form.normalized()
	var fs failures
	if strings.TrimSpace(customerID) == "" {
		fs.add(CustomerField, domain.CodeRequired)
	}
	b.structFailures(&fs, f)

	order := domain.ForexOrder{
		SourceAccount:  f.SourceAccount,
		TargetAccount:  f.TargetAccount,
		SourceCurrency: f.SourceCurrency,
		TargetCurrency: f.TargetCurrency,
	}
	if f.SourceAmount != "" {
		order.SourceAmount = parseAmount(&fs, "sourceAmount", f.SourceAmount)
		if order.SourceAmount.IsPositive() && order.SourceAmount.LessThan(b.fxMin) {
			fs.addDetail("sourceAmount", domain.CodeBelowMinimum, "minimum is "+b.fxMin.String())
		}
	}
	if f.SourceCurrency != "" && f.SourceCurrency == f.TargetCurrency {
		fs.add("targetCurrency", domain.CodeSameCurrency)
	}
	if err := fs.err(); err != nil {
		return domain.Intent{}, err
	}
	in := b.newIntent(customerID, domain.KindForexOrder)
	in.Forex = &order
	return b.finish(ctx, in)
}

func (b *Builder) newIntent(customerID string, kind domain.Kind) domain.Intent {
	return domain.Intent{
		ID:         uuid.New().String(),
		CustomerID: strings.TrimSpace(customerID),
		Kind:       kind,
		CreatedAt:  b.nowF().UTC(),
	}
}

func (b *Builder) finish(ctx context.Context, in domain.Intent) (domain.Intent, error) {
	if b.policy != nil {
		allowed, reason, err := b.policy.EvaluateSubmission(ctx, in)
		if err != nil {
			b.logger.Warn("submission policy evaluation failed, allowing", zap.String("intent_id", in.ID), zap.Error(err))
		} else if !allowed {
			return domain.Intent{}, &domain.ValidationError{Failures: []domain.Failure{
				{Code: domain.CodePolicyDenied, Detail: reason},
			}}
		}
	}
	b.logger.Debug("intent built", zap.String("intent_id", in.ID), zap.String("kind", string(in.Kind)))
	return in, nil
}

// structFailures maps validator tag errors to failures keyed by json field path.
func (b *Builder) structFailures(fs *failures, form any) {
	err := b.validate.Struct(form)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fs.addDetail("", domain.CodeInvalidFormat, err.Error())
		return
	}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		code := domain.CodeInvalidFormat
		if fe.Tag() == "required" {
			code = domain.CodeRequired
		}
		fs.add(field, code)
	}
}

func (b *Builder) payeeRules(fs *failures, prefix string, f PayeeForm) domain.PayeeDetails {
	d := domain.PayeeDetails{
		HolderName: f.HolderName,
		Type:       domain.PayeeType(f.PayeeType),
		Currency:   f.Currency,
		Nickname:   f.Nickname,
	}
	if d.Type == "" {
		d.Type = domain.PayeeIndividual
	}

	if f.Currency == "GBP" {
		switch {
		case f.AccountNumber == "":
			fs.add(prefix+"accountNumber", domain.CodeRequired)
		case !accountNumberRE.MatchString(f.AccountNumber):
			fs.add(prefix+"accountNumber", domain.CodeInvalidFormat)
		}
		switch {
		case f.SortCode == "":
			fs.add(prefix+"sortCode", domain.CodeRequired)
		case !sortCodeRE.MatchString(f.SortCode):
			fs.add(prefix+"sortCode", domain.CodeInvalidFormat)
		}
		d.AccountNumber, d.SortCode = f.AccountNumber, f.SortCode
		if f.Country != "" || f.Line1 != "" {
			d.Address = b.address(fs, prefix, f, false)
		}
		return d
	}
	if f.Currency == "" {
		return d
	}

	hasWallet, hasIBAN, hasSwift := f.Wallet != "", f.IBAN != "", f.SwiftCode != ""
	switch {
	case hasWallet && (hasIBAN || hasSwift):
		fs.add(prefix+"wallet", domain.CodeConflictingRouting)
	case !hasWallet && !hasIBAN && !hasSwift:
		fs.add(prefix+"wallet", domain.CodeMissingRouting)
	case !hasWallet && !hasIBAN:
		fs.add(prefix+"iban", domain.CodeIncompleteIBANSwift)
	case !hasWallet && !hasSwift:
		fs.add(prefix+"swiftCode", domain.CodeIncompleteIBANSwift)
	}
	if hasWallet && len([]rune(f.Wallet)) != WalletLength {
		fs.add(prefix+"wallet", domain.CodeInvalidWalletLength)
	}
	if hasIBAN && !ibanRE.MatchString(f.IBAN) {
		fs.add(prefix+"iban", domain.CodeInvalidFormat)
	}
	if hasSwift && !swiftRE.MatchString(f.SwiftCode) {
		fs.add(prefix+"swiftCode", domain.CodeInvalidFormat)
	}
	d.Wallet, d.IBAN, d.SwiftCode = f.Wallet, f.IBAN, f.SwiftCode
	d.Address = b.address(fs, prefix, f, true)
	return d
}

func (b *Builder) address(fs *failures, prefix string, f PayeeForm, required bool) *domain.Address {
	a := &domain.Address{
		Line1:    f.Line1,
		Line2:    f.Line2,
		City:     f.City,
		PostCode: f.PostCode,
		Country:  f.Country,
		State:    f.State,
	}
	if required {
		if a.Line1 == "" {
			fs.add(prefix+"line1", domain.CodeAddressRequired)
		}
		if a.City == "" {
			fs.add(prefix+"city", domain.CodeAddressRequired)
		}
		if a.Country == "" {
			fs.add(prefix+"country", domain.CodeAddressRequired)
			return a
		}
	}
	if a.Country == "" {
		return a
	}
	country, ok := b.catalog.Country(a.Country)
	if !ok {
		fs.add(prefix+"country", domain.CodeUnknownCountry)
		return a
	}
	if country.HasStates() {
		switch {
		case a.State == "":
			fs.add(prefix+"state", domain.CodeStateRequired)
		case !country.HasState(a.State):
			fs.add(prefix+"state", domain.CodeUnknownState)
		}
	}
	return a
}

func (b *Builder) recurrenceRules(fs *failures, f PaymentForm) *domain.Recurrence {
	if f.Frequency == "" {
		if f.StartDate != "" || f.EndDate != "" || f.Count != "" {
			fs.add("frequency", domain.CodeRequired)
		}
		return nil
	}
	r := &domain.Recurrence{Frequency: domain.Frequency(f.Frequency)}
	if !r.Frequency.Valid() {
		fs.add("frequency", domain.CodeInvalidRecurrence)
	}

	today := b.nowF().UTC().Truncate(24 * time.Hour)
	if f.StartDate == "" {
		fs.add("startDate", domain.CodeRequired)
	} else if start, err := time.Parse(dateLayout, f.StartDate); err != nil {
		fs.add("startDate", domain.CodeInvalidFormat)
	} else {
		r.StartDate = start
		if start.Before(today) {
			fs.addDetail("startDate", domain.CodeInvalidRecurrence, "start date is in the past")
		}
	}

	if f.EndDate != "" && f.Count != "" {
		fs.addDetail("endDate", domain.CodeInvalidRecurrence, "end date and count are mutually exclusive")
		return r
	}
	if f.EndDate != "" {
		end, err := time.Parse(dateLayout, f.EndDate)
		switch {
		case err != nil:
			fs.add("endDate", domain.CodeInvalidFormat)
		case !r.StartDate.IsZero() && !end.After(r.StartDate):
			fs.addDetail("endDate", domain.CodeInvalidRecurrence, "end date must be after start date")
		default:
			r.EndDate = &end
		}
	}
	if f.Count != "" {
		n, err := strconv.Atoi(f.Count)
		if err != nil || n <= 0 {
			fs.add("count", domain.CodeInvalidRecurrence)
		} else {
			r.Count = n
		}
	}
	return r
}

func parseAmount(fs *failures, field, raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil || !d.IsPositive() {
		fs.add(field, domain.CodeInvalidAmount)
		return decimal.Zero
	}
	return d
}

type failures []domain.Failure

func (fs *failures) add(field string, code domain.FailureCode) {
	fs.addDetail(field, code, "")
}

func (fs *failures) addDetail(field string, code domain.FailureCode, detail string) {
	for _, f := range *fs {
		if f.Field == field && f.Code == code {
			return
		}
	}
	*fs = append(*fs, domain.Failure{Field: field, Code: code, Detail: detail})
}

func (fs failures) err() error {
	if len(fs) == 0 {
		return nil
	}
	return &domain.ValidationError{Failures: fs}
}

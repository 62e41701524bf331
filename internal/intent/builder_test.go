package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/refdata"
)

var fixedNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func newTestBuilder(opts ...Option) *Builder {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewBuilder(refdata.Default(), opts...)
}

func gbpPayee() PayeeForm {
	return PayeeForm{HolderName: "Acme Ltd", PayeeType: "business", Currency: "gbp", AccountNumber: "12345678", SortCode: "12-34-56"}
}

func eurPayee() PayeeForm {
	return PayeeForm{
		HolderName: "Société Générale", Currency: "EUR",
		IBAN: "DE89 3704 0044 0532 0130 00", SwiftCode: "cobadeffxxx",
		Line1: "1 Rue de Rivoli", City: "Paris", Country: "fr",
	}
}

func requireFailure(t *testing.T, err error, field string, code domain.FailureCode) {
	t.Helper()
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "want *ValidationError, got %v", err)
	assert.True(t, verr.Has(field, code), "want %s on %q, got %+v", code, field, verr.Failures)
}

func TestSubmitPayee_GBP(t *testing.T) {
	b := newTestBuilder()
	in, err := b.SubmitPayee(context.Background(), "cust-1", gbpPayee())
	require.NoError(t, err)
	assert.Equal(t, domain.KindPayee, in.Kind)
	assert.Equal(t, "cust-1", in.CustomerID)
	assert.NotEmpty(t, in.ID)
	assert.Equal(t, fixedNow, in.CreatedAt)
	require.NotNil(t, in.Payee)
	assert.Equal(t, "GBP", in.Payee.Currency)
	assert.Equal(t, "123456", in.Payee.SortCode)
	assert.Equal(t, domain.PayeeBusiness, in.Payee.Type)
	assert.Nil(t, in.Payee.Address)
}

func TestSubmitPayee_NonGBP(t *testing.T) {
	in, err := newTestBuilder().SubmitPayee(context.Background(), "cust-1", eurPayee())
	require.NoError(t, err)
	assert.Equal(t, "DE89370400440532013000", in.Payee.IBAN)
	assert.Equal(t, "COBADEFFXXX", in.Payee.SwiftCode)
	assert.Equal(t, domain.PayeeIndividual, in.Payee.Type)
	require.NotNil(t, in.Payee.Address)
	assert.Equal(t, "FR", in.Payee.Address.Country)

	wallet := PayeeForm{HolderName: "Ann", Currency: "AED", Wallet: "1234567890123", Line1: "x", City: "Dubai", Country: "AE"}
	in, err = newTestBuilder().SubmitPayee(context.Background(), "cust-1", wallet)
	require.NoError(t, err)
	assert.Equal(t, "1234567890123", in.Payee.Wallet)
}

func TestSubmitPayee_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PayeeForm)
		field  string
		code   domain.FailureCode
	}{
		{"missing holder", func(f *PayeeForm) { f.HolderName = "  " }, "holderName", domain.CodeRequired},
		{"bad payee type", func(f *PayeeForm) { f.PayeeType = "robot" }, "payeeType", domain.CodeInvalidFormat},
		{"wallet and iban", func(f *PayeeForm) { f.Wallet = "1234567890123" }, "wallet", domain.CodeConflictingRouting},
		{"no routing", func(f *PayeeForm) { f.IBAN, f.SwiftCode = "", "" }, "wallet", domain.CodeMissingRouting},
		{"iban without swift", func(f *PayeeForm) { f.SwiftCode = "" }, "swiftCode", domain.CodeIncompleteIBANSwift},
		{"swift without iban", func(f *PayeeForm) { f.IBAN = "" }, "iban", domain.CodeIncompleteIBANSwift},
		{"short wallet", func(f *PayeeForm) { f.IBAN, f.SwiftCode, f.Wallet = "", "", "123456789012" }, "wallet", domain.CodeInvalidWalletLength},
		{"bad iban", func(f *PayeeForm) { f.IBAN = "12" }, "iban", domain.CodeInvalidFormat},
		{"no address line", func(f *PayeeForm) { f.Line1 = "" }, "line1", domain.CodeAddressRequired},
		{"no country", func(f *PayeeForm) { f.Country = "" }, "country", domain.CodeAddressRequired},
		{"unknown country", func(f *PayeeForm) { f.Country = "XX" }, "country", domain.CodeUnknownCountry},
		{"state required", func(f *PayeeForm) { f.Country = "US" }, "state", domain.CodeStateRequired},
		{"unknown state", func(f *PayeeForm) { f.Country, f.State = "US", "ZZ" }, "state", domain.CodeUnknownState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := eurPayee()
			tt.mutate(&f)
			_, err := newTestBuilder().SubmitPayee(context.Background(), "cust-1", f)
			requireFailure(t, err, tt.field, tt.code)
		})
	}
}

func TestSubmitPayee_GBPFailures(t *testing.T) {
	f := gbpPayee()
	f.AccountNumber, f.SortCode = "", ""
	_, err := newTestBuilder().SubmitPayee(context.Background(), "cust-1", f)
	requireFailure(t, err, "accountNumber", domain.CodeRequired)
	requireFailure(t, err, "sortCode", domain.CodeRequired)

	f = gbpPayee()
	f.AccountNumber, f.SortCode = "1234", "12-34"
	_, err = newTestBuilder().SubmitPayee(context.Background(), "cust-1", f)
	requireFailure(t, err, "accountNumber", domain.CodeInvalidFormat)
	requireFailure(t, err, "sortCode", domain.CodeInvalidFormat)
}

func TestSubmitPayee_StateAccepted(t *testing.T) {
	f := eurPayee()
	f.Currency, f.Country, f.State = "USD", "US", "ny"
	in, err := newTestBuilder().SubmitPayee(context.Background(), "cust-1", f)
	require.NoError(t, err)
	assert.Equal(t, "NY", in.Payee.Address.State)
}

func TestSubmit_EmptyCustomer(t *testing.T) {
	b := newTestBuilder()
	_, err := b.SubmitPayee(context.Background(), " ", gbpPayee())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []domain.Failure{{Field: CustomerField, Code: domain.CodeRequired}}, verr.Failures)

	// Field failures are reported alongside the missing customer.
	f := gbpPayee()
	f.AccountNumber = "12"
	_, err = b.SubmitPayee(context.Background(), "", f)
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(CustomerField, domain.CodeRequired))
	assert.Greater(t, len(verr.Failures), 1)
}

func TestSubmit_NewIDPerIntent(t *testing.T) {
	b := newTestBuilder()
	a, err := b.SubmitPayee(context.Background(), "cust-1", gbpPayee())
	require.NoError(t, err)
	c, err := b.SubmitPayee(context.Background(), "cust-1", gbpPayee())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func validPayment() PaymentForm {
	return PaymentForm{SourceAccount: "acc-1", PayeeID: "payee-1", Amount: "1,250.50", Currency: "GBP", PurposeCode: "supp", Reference: "INV-7"}
}

func TestSubmitPayment(t *testing.T) {
	f := validPayment()
	b := gbpPayee()
	f.Beneficiary = &b
	in, err := newTestBuilder().SubmitPayment(context.Background(), "cust-1", f)
	require.NoError(t, err)
	require.NotNil(t, in.Payment)
	assert.True(t, in.Payment.Amount.Equal(decimal.RequireFromString("1250.50")))
	assert.Equal(t, "SUPP", in.Payment.PurposeCode)
	require.NotNil(t, in.Payment.Beneficiary)
	assert.Equal(t, "123456", in.Payment.Beneficiary.SortCode)
	assert.Nil(t, in.Payment.Recurrence)
}

func TestSubmitPayment_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PaymentForm)
		field  string
		code   domain.FailureCode
	}{
		{"zero amount", func(f *PaymentForm) { f.Amount = "0" }, "amount", domain.CodeInvalidAmount},
		{"text amount", func(f *PaymentForm) { f.Amount = "lots" }, "amount", domain.CodeInvalidAmount},
		{"missing amount", func(f *PaymentForm) { f.Amount = "" }, "amount", domain.CodeRequired},
		{"missing purpose", func(f *PaymentForm) { f.PurposeCode = "" }, "purposeCode", domain.CodeRequired},
		{"unknown purpose", func(f *PaymentForm) { f.PurposeCode = "XXXX" }, "purposeCode", domain.CodeUnknownPurpose},
		{"missing source", func(f *PaymentForm) { f.SourceAccount = "" }, "sourceAccount", domain.CodeRequired},
		{"bad beneficiary", func(f *PaymentForm) { f.Beneficiary = &PayeeForm{Currency: "GBP"} }, "beneficiary.holderName", domain.CodeRequired},
		{"beneficiary routing", func(f *PaymentForm) {
			f.Beneficiary = &PayeeForm{HolderName: "Ann", Currency: "EUR", IBAN: "DE89370400440532013000"}
		}, "beneficiary.swiftCode", domain.CodeIncompleteIBANSwift},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validPayment()
			tt.mutate(&f)
			_, err := newTestBuilder().SubmitPayment(context.Background(), "cust-1", f)
			requireFailure(t, err, tt.field, tt.code)
		})
	}
}

func TestSubmitPayment_StandingOrder(t *testing.T) {
	f := validPayment()
	f.Frequency, f.StartDate, f.Count = "Monthly", "2026-10-14", "12"
	in, err := newTestBuilder().SubmitPayment(context.Background(), "cust-1", f)
	require.NoError(t, err)
	require.NotNil(t, in.Payment.Recurrence)
	assert.Equal(t, domain.FrequencyMonthly, in.Payment.Recurrence.Frequency)
	assert.Equal(t, 12, in.Payment.Recurrence.Count)
	assert.Nil(t, in.Payment.Recurrence.EndDate)

	f = validPayment()
	f.Frequency, f.StartDate, f.EndDate = "weekly", "2026-11-01", "2027-11-01"
	in, err = newTestBuilder().SubmitPayment(context.Background(), "cust-1", f)
	require.NoError(t, err)
	require.NotNil(t, in.Payment.Recurrence.EndDate)
}

func TestSubmitPayment_StandingOrderFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PaymentForm)
		field  string
		code   domain.FailureCode
	}{
		{"unknown frequency", func(f *PaymentForm) { f.Frequency, f.StartDate = "daily", "2026-11-01" }, "frequency", domain.CodeInvalidRecurrence},
		{"past start", func(f *PaymentForm) { f.Frequency, f.StartDate = "weekly", "2026-10-13" }, "startDate", domain.CodeInvalidRecurrence},
		{"missing start", func(f *PaymentForm) { f.Frequency = "weekly" }, "startDate", domain.CodeRequired},
		{"bad start", func(f *PaymentForm) { f.Frequency, f.StartDate = "weekly", "14/10/2026" }, "startDate", domain.CodeInvalidFormat},
		{"end before start", func(f *PaymentForm) {
			f.Frequency, f.StartDate, f.EndDate = "weekly", "2026-11-01", "2026-10-31"
		}, "endDate", domain.CodeInvalidRecurrence},
		{"end and count", func(f *PaymentForm) {
			f.Frequency, f.StartDate, f.EndDate, f.Count = "weekly", "2026-11-01", "2027-01-01", "3"
		}, "endDate", domain.CodeInvalidRecurrence},
		{"bad count", func(f *PaymentForm) { f.Frequency, f.StartDate, f.Count = "weekly", "2026-11-01", "0" }, "count", domain.CodeInvalidRecurrence},
		{"schedule without frequency", func(f *PaymentForm) { f.StartDate = "2026-11-01" }, "frequency", domain.CodeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validPayment()
			tt.mutate(&f)
			_, err := newTestBuilder().SubmitPayment(context.Background(), "cust-1", f)
			requireFailure(t, err, tt.field, tt.code)
		})
	}
}

func validForex() ForexForm {
	return ForexForm{SourceAccount: "acc-gbp", TargetAccount: "acc-eur", SourceCurrency: "gbp", TargetCurrency: "eur", SourceAmount: "50"}
}

func TestSubmitForexOrder(t *testing.T) {
	in, err := newTestBuilder().SubmitForexOrder(context.Background(), "cust-1", validForex())
	require.NoError(t, err)
	require.NotNil(t, in.Forex)
	assert.Equal(t, "GBP", in.Forex.SourceCurrency)
	assert.True(t, in.Forex.SourceAmount.Equal(decimal.NewFromInt(50)))
}

func TestSubmitForexOrder_BelowMinimum(t *testing.T) {
	f := validForex()
	f.SourceAmount = "30"
	_, err := newTestBuilder().SubmitForexOrder(context.Background(), "cust-1", f)
	requireFailure(t, err, "sourceAmount", domain.CodeBelowMinimum)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Failures[0].Code.Blocking())

	b := newTestBuilder(WithFXMinimum(decimal.NewFromInt(10)))
	_, err = b.SubmitForexOrder(context.Background(), "cust-1", f)
	assert.NoError(t, err)
}

func TestSubmitForexOrder_Failures(t *testing.T) {
	f := validForex()
	f.TargetCurrency = "GBP"
	_, err := newTestBuilder().SubmitForexOrder(context.Background(), "cust-1", f)
	requireFailure(t, err, "targetCurrency", domain.CodeSameCurrency)

	f = validForex()
	f.SourceAmount = "-5"
	_, err = newTestBuilder().SubmitForexOrder(context.Background(), "cust-1", f)
	requireFailure(t, err, "sourceAmount", domain.CodeInvalidAmount)

	f = validForex()
	f.TargetAccount = ""
	_, err = newTestBuilder().SubmitForexOrder(context.Background(), "cust-1", f)
	requireFailure(t, err, "targetAccount", domain.CodeRequired)
}

type stubPolicy struct {
	allowed bool
	reason  string
	err     error
	calls   int
}

func (p *stubPolicy) EvaluateSubmission(context.Context, domain.Intent) (bool, string, error) {
	p.calls++
	return p.allowed, p.reason, p.err
}

func TestSubmit_Policy(t *testing.T) {
	deny := &stubPolicy{reason: "payment exceeds limit"}
	_, err := newTestBuilder(WithPolicy(deny)).SubmitPayment(context.Background(), "cust-1", validPayment())
	requireFailure(t, err, "", domain.CodePolicyDenied)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payment exceeds limit", verr.Failures[0].Detail)

	broken := &stubPolicy{err: errors.New("rego exploded")}
	_, err = newTestBuilder(WithPolicy(broken)).SubmitPayment(context.Background(), "cust-1", validPayment())
	assert.NoError(t, err)

	skipped := &stubPolicy{allowed: true}
	f := validPayment()
	f.Amount = ""
	_, err = newTestBuilder(WithPolicy(skipped)).SubmitPayment(context.Background(), "cust-1", f)
	assert.Error(t, err)
	assert.Zero(t, skipped.calls, "policy must not run on invalid forms")
}

package remotetest

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizbank-confirmation/internal/cop"
	"bizbank-confirmation/internal/fraud"
	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/otp"
	"bizbank-confirmation/internal/payee"
	"bizbank-confirmation/internal/remote"
)

// Backend is one backend implementation under contract test. Code reads the plaintext code issued for
// an operation.
type Backend struct {
	Executor  remote.Executor
	OTP       otp.Service
	Directory payee.Directory
	Code      func(operationID string) (string, bool)
}

// PayeeIntent returns a GBP payee intent for CustomerID with the given holder name and account.
func PayeeIntent(id, holder, account string) domain.Intent {
	return domain.Intent{
		ID:         id,
		CustomerID: CustomerID,
		Kind:       domain.KindPayee,
		Payee: &domain.PayeeDetails{
			HolderName:    holder,
			Type:          domain.PayeeIndividual,
			Currency:      "GBP",
			AccountNumber: account,
			SortCode:      "123456",
		},
	}
}

// PaymentIntent returns a GBP payment to a new beneficiary.
func PaymentIntent(id string, amount int64, reference string) domain.Intent {
	p := PayeeIntent(id, "Alice Smith", "12345678").Payee
	return domain.Intent{
		ID:         id,
		CustomerID: CustomerID,
		Kind:       domain.KindPayment,
		Payment: &domain.PaymentOrder{
			SourceAccount: OwnAccount,
			Beneficiary:   p,
			Amount:        decimal.NewFromInt(amount),
			Currency:      "GBP",
			PurposeCode:   "GDSV",
			Reference:     reference,
		},
	}
}

// RunContract checks the behavior the workflow engine relies on. newBackend must return a fresh backend
// seeded like StandardBank.
func RunContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("initiate reports cop verdict", func(t *testing.T) {
		b := newBackend(t)
		tests := []struct {
			holder, account string
			want            cop.Kind
		}{
			{"Alice Smith", "12345678", cop.Match},
			{"Own Account", OwnAccount, cop.Internal},
			{"Nobody", "00000000", cop.AccountNotFound},
			{"Mismatch Ltd", "12345678", cop.NoMatch},
			{"Alice Close Smith", "12345678", cop.CloseMatch},
		}
		for _, tt := range tests {
			res, err := b.Executor.Initiate(ctx, PayeeIntent("i-"+tt.holder, tt.holder, tt.account))
			require.NoError(t, err, tt.holder)
			assert.NotEmpty(t, res.OperationID)
			assert.Equal(t, tt.want, res.COP.Kind, tt.holder)
			if tt.want == cop.CloseMatch {
				assert.Equal(t, "Alice Smith", res.COP.SuggestedName)
			}
		}
	})

	t.Run("large payment raises velocity alert", func(t *testing.T) {
		b := newBackend(t)
		res, err := b.Executor.Initiate(ctx, PaymentIntent("i-1", 5000, ""))
		require.NoError(t, err)
		assert.Equal(t, []string{fraud.AlertVelocity}, res.FraudAlerts.Codes())

		res, err = b.Executor.Initiate(ctx, PaymentIntent("i-2", 50, ""))
		require.NoError(t, err)
		assert.True(t, res.FraudAlerts.Empty())
	})

	t.Run("finalize unknown operation", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Executor.Finalize(ctx, remote.FinalizeRequest{Kind: domain.KindPayee, OperationID: "nope"})
		se, ok := remote.AsServerError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, http.StatusNotFound, se.Status)
	})

	t.Run("full confirmation", func(t *testing.T) {
		b := newBackend(t)
		res, err := b.Executor.Initiate(ctx, PaymentIntent("i-1", 5000, "rent"))
		require.NoError(t, err)

		ch, err := b.OTP.RequestChallenge(ctx, res.OperationID)
		require.NoError(t, err)
		require.NotEmpty(t, ch.SessionID)
		code, ok := b.Code(res.OperationID)
		require.True(t, ok)

		confirmed, err := b.OTP.ConfirmChallenge(ctx, ch, wrongCode(code))
		require.NoError(t, err)
		assert.False(t, confirmed)
		confirmed, err = b.OTP.ConfirmChallenge(ctx, ch, code)
		require.NoError(t, err)
		assert.True(t, confirmed)

		req := remote.FinalizeRequest{
			Kind:                  domain.KindPayment,
			OperationID:           res.OperationID,
			SessionID:             ch.SessionID,
			ConfirmationType:      ch.ConfirmationType,
			FraudAcknowledgements: res.FraudAlerts.Acknowledge(),
		}
		success, err := b.Executor.Finalize(ctx, req)
		require.NoError(t, err)
		assert.True(t, success)

		_, err = b.Executor.Finalize(ctx, req)
		se, ok := remote.AsServerError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, http.StatusConflict, se.Status)
	})

	t.Run("third wrong code expires challenge", func(t *testing.T) {
		b := newBackend(t)
		res, err := b.Executor.Initiate(ctx, PayeeIntent("i-1", "Alice Smith", "12345678"))
		require.NoError(t, err)
		ch, err := b.OTP.RequestChallenge(ctx, res.OperationID)
		require.NoError(t, err)
		code, _ := b.Code(res.OperationID)

		for i := 0; i < 2; i++ {
			ok, err := b.OTP.ConfirmChallenge(ctx, ch, wrongCode(code))
			require.NoError(t, err)
			assert.False(t, ok)
		}
		_, err = b.OTP.ConfirmChallenge(ctx, ch, wrongCode(code))
		assert.ErrorIs(t, err, otp.ErrChallengeExpired)

		fresh, err := b.OTP.RequestChallenge(ctx, res.OperationID)
		require.NoError(t, err)
		assert.NotEqual(t, ch.SessionID, fresh.SessionID)
	})

	t.Run("finalize requires confirmations", func(t *testing.T) {
		b := newBackend(t)

		res, err := b.Executor.Initiate(ctx, PaymentIntent("i-1", 5000, ""))
		require.NoError(t, err)
		_, err = b.Executor.Finalize(ctx, remote.FinalizeRequest{Kind: domain.KindPayment, OperationID: res.OperationID})
		assertStatus(t, err, http.StatusForbidden)

		ch := confirm(t, b, res.OperationID)
		_, err = b.Executor.Finalize(ctx, remote.FinalizeRequest{
			Kind: domain.KindPayment, OperationID: res.OperationID, SessionID: ch,
		})
		assertStatus(t, err, http.StatusUnprocessableEntity)

		mismatch, err := b.Executor.Initiate(ctx, PayeeIntent("i-2", "Mismatch Ltd", "12345678"))
		require.NoError(t, err)
		ch = confirm(t, b, mismatch.OperationID)
		_, err = b.Executor.Finalize(ctx, remote.FinalizeRequest{
			Kind: domain.KindPayee, OperationID: mismatch.OperationID, SessionID: ch,
		})
		assertStatus(t, err, http.StatusUnprocessableEntity)

		success, err := b.Executor.Finalize(ctx, remote.FinalizeRequest{
			Kind: domain.KindPayee, OperationID: mismatch.OperationID, SessionID: ch, COPOverride: true,
		})
		require.NoError(t, err)
		assert.True(t, success)
	})

	t.Run("declined reference", func(t *testing.T) {
		b := newBackend(t)
		res, err := b.Executor.Initiate(ctx, PaymentIntent("i-1", 20, "please decline"))
		require.NoError(t, err)
		ch := confirm(t, b, res.OperationID)
		success, err := b.Executor.Finalize(ctx, remote.FinalizeRequest{
			Kind: domain.KindPayment, OperationID: res.OperationID, SessionID: ch,
		})
		require.NoError(t, err)
		assert.False(t, success)
	})

	t.Run("directory", func(t *testing.T) {
		b := newBackend(t)
		id, err := b.Directory.Create(ctx, CustomerID, *PayeeIntent("", "Bob Jones", "87654321").Payee)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		require.NoError(t, b.Directory.Delete(ctx, id))
		assertStatus(t, b.Directory.Delete(ctx, id), http.StatusNotFound)
	})
}

func confirm(t *testing.T, b Backend, operationID string) string {
	t.Helper()
	ch, err := b.OTP.RequestChallenge(context.Background(), operationID)
	require.NoError(t, err)
	code, ok := b.Code(operationID)
	require.True(t, ok)
	confirmed, err := b.OTP.ConfirmChallenge(context.Background(), ch, code)
	require.NoError(t, err)
	require.True(t, confirmed)
	return ch.SessionID
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	se, ok := remote.AsServerError(err)
	if assert.True(t, ok, "got %v", err) {
		assert.Equal(t, status, se.Status, se.Code)
	}
}

// wrongCode returns a six-digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

package app_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizbank-confirmation/internal/app"
	"bizbank-confirmation/internal/config"
	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/remote/remotetest"
	"bizbank-confirmation/internal/security"
	"bizbank-confirmation/internal/server"
	"bizbank-confirmation/internal/sim"
	"bizbank-confirmation/internal/sim/handler"
	"bizbank-confirmation/internal/workflow"
)

func backend(t *testing.T) (*sim.Bank, *config.Config) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	bank := remotetest.StandardBank()
	srv := httptest.NewServer(server.NewRouter(server.Deps{Routes: handler.New(bank, nil).Routes, Tokens: tokens}))
	t.Cleanup(srv.Close)
	token, _, err := tokens.IssueAccess(remotetest.CustomerID)
	require.NoError(t, err)
	return bank, &config.Config{
		APIBaseURL:     srv.URL,
		APIAccessToken: token,
		OTPStore:       config.OTPStoreMemory,
		FXMinAmount:    "50",
	}
}

func payeeForm(t *testing.T, holder string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"holderName":    holder,
		"currency":      "GBP",
		"accountNumber": "12345678",
		"sortCode":      "12-34-56",
	})
	require.NoError(t, err)
	return b
}

func confirmPayee(t *testing.T, bank *sim.Bank, a *app.App) workflow.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, err := a.Builder.Submit(ctx, remotetest.CustomerID, domain.KindPayee, payeeForm(t, "Alice Smith"))
	require.NoError(t, err)
	run, err := a.Engine.Start(ctx, in)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return run.Snapshot().State == workflow.StateAwaitingOTP }, 2*time.Second, 5*time.Millisecond)
	code, ok := bank.DevCode(ctx, run.Snapshot().OperationID)
	require.True(t, ok)
	require.NoError(t, run.SubmitCode(ctx, code))

	res, err := run.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestNew_MemoryStore(t *testing.T) {
	bank, cfg := backend(t)
	a, err := app.New(context.Background(), cfg, "test", workflow.Context{CustomerID: remotetest.CustomerID}, nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Nil(t, a.DB)
	res := confirmPayee(t, bank, a)
	assert.Equal(t, workflow.OutcomeSuccess, res.Outcome)
	_, ok := bank.FinalizedPayee(res.OperationID)
	assert.True(t, ok)
}

func TestNew_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	bank, cfg := backend(t)
	cfg.OTPStore = config.OTPStoreRedis
	cfg.RedisAddr = mr.Addr()

	a, err := app.New(context.Background(), cfg, "test", workflow.Context{}, nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	res := confirmPayee(t, bank, a)
	assert.Equal(t, workflow.OutcomeSuccess, res.Outcome)
	assert.Empty(t, mr.Keys(), "confirmed challenge is dropped from the store")
}

func TestNew_PolicyDenies(t *testing.T) {
	_, cfg := backend(t)
	a, err := app.New(context.Background(), cfg, "test", workflow.Context{}, nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	form, err := json.Marshal(map[string]any{
		"sourceAccount": remotetest.OwnAccount,
		"payeeId":       "p-1",
		"amount":        "300000",
		"currency":      "GBP",
		"purposeCode":   "SUPP",
		"reference":     "big",
	})
	require.NoError(t, err)
	_, err = a.Builder.Submit(context.Background(), remotetest.CustomerID, domain.KindPayment, form)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("", domain.CodePolicyDenied))
}

func TestNew_Errors(t *testing.T) {
	_, cfg := backend(t)

	bad := *cfg
	bad.PolicyFile = "does-not-exist.rego"
	_, err := app.New(context.Background(), &bad, "test", workflow.Context{}, nil)
	assert.Error(t, err)

	bad = *cfg
	bad.FXMinAmount = "-1"
	_, err = app.New(context.Background(), &bad, "test", workflow.Context{}, nil)
	assert.Error(t, err)

	bad = *cfg
	bad.OTPStore = config.OTPStoreRedis
	bad.RedisAddr = "127.0.0.1:1"
	_, err = app.New(context.Background(), &bad, "test", workflow.Context{}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	_, cfg := backend(t)
	a, err := app.New(context.Background(), cfg, "test", workflow.Context{}, nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	rec := httptest.NewRecorder()
	a.Health().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"policy":"ok"`)
}

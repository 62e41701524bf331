package console_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizbank-confirmation/internal/console"
	"bizbank-confirmation/internal/cop"
	"bizbank-confirmation/internal/otp"
	"bizbank-confirmation/internal/remote/remotetest"
	"bizbank-confirmation/internal/workflow"
)

// syncBuffer guards the driver output, which is written from the test and the driver.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDrive_OverrideAndCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fake := remotetest.NewFake()
	engine := workflow.NewEngine(fake, otp.NewClient(fake, nil))
	run, err := engine.Start(ctx, remotetest.PayeeIntent("in-1", "Mismatch Ltd", "12345678"))
	require.NoError(t, err)

	pr, pw := io.Pipe()
	out := &syncBuffer{}
	go func() {
		_, _ = io.WriteString(pw, "confirm\n")
		awaiting := assert.Eventually(t, func() bool { return run.Snapshot().State == workflow.StateAwaitingOTP }, 2*time.Second, 5*time.Millisecond)
		code, ok := fake.Code(run.Snapshot().OperationID)
		if !awaiting || !ok {
			_ = pw.Close()
			return
		}
		_, _ = io.WriteString(pw, "not-it\n"+code+"\n")
	}()

	res, err := console.NewDriver(pr, out).Drive(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, workflow.OutcomeSuccess, res.Outcome)
	assert.Contains(t, out.String(), "does not match")
	assert.Contains(t, out.String(), "That code is not right")
	assert.Len(t, fake.FinalizeCalls(), 1)
	assert.Contains(t, console.Summary(res), "Done.")
}

func TestDrive_EndOfInputCancels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fake := remotetest.NewFake()
	engine := workflow.NewEngine(fake, otp.NewClient(fake, nil))
	run, err := engine.Start(ctx, remotetest.PayeeIntent("in-1", "Mismatch Ltd", "12345678"))
	require.NoError(t, err)

	res, err := console.NewDriver(strings.NewReader(""), io.Discard).Drive(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, workflow.OutcomeRejected, res.Outcome)
	assert.Equal(t, workflow.ReasonCancelled, res.Reason)
	assert.Empty(t, fake.FinalizeCalls())
}

func TestDrive_FraudDeclined(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fake := remotetest.NewFake()
	engine := workflow.NewEngine(fake, otp.NewClient(fake, nil))
	run, err := engine.Start(ctx, remotetest.PaymentIntent("in-2", 5000, "invoice 7"))
	require.NoError(t, err)

	out := &syncBuffer{}
	res, err := console.NewDriver(strings.NewReader("maybe\nn\n"), out).Drive(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, workflow.OutcomeRejected, res.Outcome)
	assert.Equal(t, workflow.ReasonRejected, res.Reason)
	assert.Contains(t, out.String(), "VELOCITY")
	assert.Equal(t, "Not sent (rejected).", console.Summary(res))
}

func TestDrive_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := remotetest.NewFake()
	engine := workflow.NewEngine(fake, otp.NewClient(fake, nil))
	run, err := engine.Start(context.Background(), remotetest.PayeeIntent("in-3", "Mismatch Ltd", "12345678"))
	require.NoError(t, err)

	pr, pw := io.Pipe()
	defer pw.Close()
	time.AfterFunc(50*time.Millisecond, cancel)
	res, err := console.NewDriver(pr, io.Discard).Drive(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, workflow.OutcomeRejected, res.Outcome)
	assert.True(t, res.CancelRequested)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		in   cop.Outcome
		want string
	}{
		{cop.Outcome{Kind: cop.Match}, "matches"},
		{cop.Outcome{Kind: cop.AccountNotFound, Code: cop.CodeAccountNotFound}, "could not be found"},
		{cop.Outcome{Kind: cop.Mismatch, Code: cop.CodeOptedOut}, cop.CodeOptedOut},
		{cop.Outcome{Kind: cop.NotApplicable}, "not checked"},
	}
	for _, tt := range tests {
		assert.Contains(t, console.Describe(tt.in), tt.want)
	}
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "Done. Operation op-1 confirmed. It completed before the cancel took effect.",
		console.Summary(workflow.Result{Outcome: workflow.OutcomeSuccess, OperationID: "op-1", CancelRequested: true}))
	assert.Equal(t, "Failed: workflow: finalize declined by server",
		console.Summary(workflow.Result{Outcome: workflow.OutcomeError, Err: workflow.ErrFinalizeDeclined}))
}

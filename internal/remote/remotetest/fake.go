// Package remotetest provides an in-memory banking backend for tests and a contract suite every backend
// implementation must pass.
package remotetest

import (
	"context"
	"sync"

	"bizbank-confirmation/internal/devotp"
	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/remote"
	"bizbank-confirmation/internal/sim"
)

// Customer fixture used by StandardBank.
const (
	CustomerID  = "cust-1"
	OwnAccount  = "11111111"
	PhoneNumber = "+447700900123"
)

// StandardBank returns a simulated bank with one customer who owns OwnAccount and has a phone, and with
// dev codes readable through DevCode.
func StandardBank(opts ...sim.Option) *sim.Bank {
	base := []sim.Option{
		sim.WithDevCodes(devotp.NewMemoryStore(nil)),
		sim.WithOwnAccounts(CustomerID, OwnAccount),
		sim.WithPhone(CustomerID, PhoneNumber),
	}
	return sim.NewBank(append(base, opts...)...)
}

// Fake records calls to a simulated bank and lets tests inject failures or block calls.
type Fake struct {
	*sim.Bank

	// BeforeInitiate and BeforeFinalize run before the call reaches the bank. Tests use them to block
	// a run in a given state.
	BeforeInitiate func(ctx context.Context)
	BeforeFinalize func(ctx context.Context)
	// InitiateErr and FinalizeErr, when set, are returned instead of calling the bank.
	InitiateErr error
	FinalizeErr error

	mu        sync.Mutex
	initiates []domain.Intent
	finalizes []remote.FinalizeRequest
}

// NewFake returns a Fake over StandardBank(opts...).
func NewFake(opts ...sim.Option) *Fake {
	return &Fake{Bank: StandardBank(opts...)}
}

// Initiate implements remote.Executor.
func (f *Fake) Initiate(ctx context.Context, in domain.Intent) (remote.InitiateResult, error) {
	f.mu.Lock()
	f.initiates = append(f.initiates, in.Clone())
	hook, injected := f.BeforeInitiate, f.InitiateErr
	f.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return remote.InitiateResult{}, err
	}
	if injected != nil {
		return remote.InitiateResult{}, injected
	}
	return f.Bank.Initiate(ctx, in)
}

// Finalize implements remote.Executor.
func (f *Fake) Finalize(ctx context.Context, req remote.FinalizeRequest) (bool, error) {
	f.mu.Lock()
	f.finalizes = append(f.finalizes, req)
	hook, injected := f.BeforeFinalize, f.FinalizeErr
	f.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if injected != nil {
		return false, injected
	}
	return f.Bank.Finalize(ctx, req)
}

// InitiateCalls returns the intents passed to Initiate.
func (f *Fake) InitiateCalls() []domain.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Intent(nil), f.initiates...)
}

// FinalizeCalls returns the requests passed to Finalize.
func (f *Fake) FinalizeCalls() []remote.FinalizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.FinalizeRequest(nil), f.finalizes...)
}

// Code returns the dev code currently issued for operationID.
func (f *Fake) Code(operationID string) (string, bool) {
	return f.DevCode(context.Background(), operationID)
}


package payee

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/remote"
	"bizbank-confirmation/internal/telemetry"
)

type fakeDirectory struct {
	calls     []string
	deleteErr error
	createErr error
}

func (d *fakeDirectory) Create(_ context.Context, customerID string, p domain.PayeeDetails) (string, error) {
	d.calls = append(d.calls, "create:"+customerID+":"+p.HolderName)
	if d.createErr != nil {
		return "", d.createErr
	}
	return "payee-new", nil
}

func (d *fakeDirectory) Delete(_ context.Context, payeeID string) error {
	d.calls = append(d.calls, "delete:"+payeeID)
	return d.deleteErr
}

type fakeAuditor struct{ replaced [][3]string }

func (a *fakeAuditor) PayeeReplaced(_ context.Context, customerID, oldID, newID string) {
	a.replaced = append(a.replaced, [3]string{customerID, oldID, newID})
}

func payeeIntent() domain.Intent {
	return domain.Intent{ID: "i-1", CustomerID: "cust-1", Kind: domain.KindPayee, Payee: &domain.PayeeDetails{HolderName: "Ann"}}
}

func TestEdit_DeleteThenCreateWithoutGates(t *testing.T) {
	dir := &fakeDirectory{}
	aud := &fakeAuditor{}
	id, err := NewEditor(dir, aud, nil).Edit(context.Background(), "payee-old", payeeIntent())
	require.NoError(t, err)
	assert.Equal(t, "payee-new", id)
	assert.Equal(t, []string{"delete:payee-old", "create:cust-1:Ann"}, dir.calls)
	assert.Equal(t, [][3]string{{"cust-1", "payee-old", "payee-new"}}, aud.replaced)
}

func TestEdit_DeleteFails(t *testing.T) {
	se := &remote.ServerError{Status: 404, Code: "NOT_FOUND", Description: "no such payee"}
	dir := &fakeDirectory{deleteErr: se}
	_, err := NewEditor(dir, nil, nil).Edit(context.Background(), "payee-old", payeeIntent())
	got, ok := remote.AsServerError(err)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", got.Code)
	assert.NotErrorIs(t, err, ErrRecreateFailed)
	assert.Equal(t, []string{"delete:payee-old"}, dir.calls)
}

func TestEdit_RecreateFails(t *testing.T) {
	se := &remote.ServerError{Status: 500, Code: "INTERNAL"}
	dir := &fakeDirectory{createErr: se}
	aud := &fakeAuditor{}
	_, err := NewEditor(dir, aud, nil).Edit(context.Background(), "payee-old", payeeIntent())
	assert.ErrorIs(t, err, ErrRecreateFailed)
	_, ok := remote.AsServerError(err)
	assert.True(t, ok, "server error stays reachable")
	assert.Empty(t, aud.replaced)
}

func TestEdit_Rejects(t *testing.T) {
	e := NewEditor(&fakeDirectory{}, nil, nil)
	_, err := e.Edit(context.Background(), " ", payeeIntent())
	assert.ErrorIs(t, err, ErrMissingPayeeID)

	_, err = e.Edit(context.Background(), "payee-old", domain.Intent{Kind: domain.KindPayment})
	assert.True(t, errors.Is(err, ErrNotPayeeIntent))
}

type eventSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *eventSink) Emit(_ context.Context, ev telemetry.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *eventSink) snapshot() []telemetry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.Event(nil), s.events...)
}

func TestEdit_EmitsReplacedEvent(t *testing.T) {
	sink := &eventSink{}
	_, err := NewEditor(&fakeDirectory{}, nil, nil, WithEmitter(sink)).Edit(context.Background(), "payee-old", payeeIntent())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	ev := sink.snapshot()[0]
	assert.Equal(t, telemetry.EventPayeeReplaced, ev.EventType)
	assert.Equal(t, "i-1", ev.IntentID)
	assert.Equal(t, "payee-new", ev.Metadata["new_payee_id"])
	assert.Equal(t, "payee-old", ev.Metadata["old_payee_id"])

	sink2 := &eventSink{}
	_, err = NewEditor(&fakeDirectory{createErr: errors.New("down")}, nil, nil, WithEmitter(sink2)).
		Edit(context.Background(), "payee-old", payeeIntent())
	require.Error(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink2.snapshot(), "failed edits emit nothing")
}

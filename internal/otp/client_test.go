package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizbank-confirmation/internal/otp/domain"
)

type fakeService struct {
	mu          sync.Mutex
	requests    int
	confirms    int
	expiresIn   time.Duration
	now         func() time.Time
	validCode   string
	confirmErr  error
	requestErr  error
	operationID string
	// hold, when set, blocks RequestChallenge for the named operation until the channel is closed.
	hold map[string]chan struct{}
}

func (f *fakeService) RequestChallenge(_ context.Context, operationID string) (domain.Challenge, error) {
	f.mu.Lock()
	gate := f.hold[operationID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.requestErr != nil {
		return domain.Challenge{}, f.requestErr
	}
	ch := domain.Challenge{
		OperationID:      operationID,
		SessionID:        fmt.Sprintf("sess-%s-%d", operationID, f.requests),
		ConfirmationType: domain.ConfirmationPush,
	}
	if f.operationID != "" {
		ch.OperationID = f.operationID
	}
	if f.expiresIn > 0 {
		ch.ExpiresAt = f.now().Add(f.expiresIn)
	}
	return ch, nil
}

func (f *fakeService) ConfirmChallenge(_ context.Context, _ domain.Challenge, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms++
	if f.confirmErr != nil {
		return false, f.confirmErr
	}
	return code == f.validCode, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestClient(svc *fakeService) (*Client, *MemoryStore, *clock) {
	clk := &clock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	svc.now = clk.Now
	store := NewMemoryStore(clk.Now)
	return NewClient(svc, store, WithClientClock(clk.Now), WithTTL(2*time.Minute)), store, clk
}

func TestRequestChallenge_Idempotent(t *testing.T) {
	svc := &fakeService{validCode: "123456"}
	c, _, clk := newTestClient(svc)
	ctx := context.Background()

	first, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "op-1", first.OperationID)
	assert.Equal(t, domain.ConfirmationPush, first.ConfirmationType)
	assert.Equal(t, clk.Now().Add(2*time.Minute), first.ExpiresAt)

	second, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, svc.requests)

	_, err = c.RequestChallenge(ctx, "op-2")
	require.NoError(t, err)
	assert.Equal(t, 2, svc.requests)
}

func TestRequestChallenge_ConcurrentCallersShare(t *testing.T) {
	svc := &fakeService{}
	c, _, _ := newTestClient(svc)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.RequestChallenge(context.Background(), "op-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, svc.requests)
}

func TestRequestChallenge_SlowOperationDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{hold: map[string]chan struct{}{"op-slow": release}}
	c, _, _ := newTestClient(svc)

	slowDone := make(chan error, 1)
	go func() {
		_, err := c.RequestChallenge(context.Background(), "op-slow")
		slowDone <- err
	}()

	fastDone := make(chan error, 1)
	go func() {
		_, err := c.RequestChallenge(context.Background(), "op-fast")
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request for op-fast waited on op-slow")
	}

	close(release)
	require.NoError(t, <-slowDone)
	assert.Equal(t, 2, svc.requests)
}

func TestRequestChallenge_AfterExpiryIssuesNew(t *testing.T) {
	svc := &fakeService{expiresIn: 30 * time.Second}
	c, _, clk := newTestClient(svc)
	ctx := context.Background()

	first, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(30*time.Second), first.ExpiresAt, "server expiry wins over local ttl")

	clk.Advance(31 * time.Second)
	second, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
	assert.Equal(t, 2, svc.requests)
}

func TestRequestChallenge_Errors(t *testing.T) {
	svc := &fakeService{}
	c, _, _ := newTestClient(svc)
	_, err := c.RequestChallenge(context.Background(), " ")
	assert.ErrorIs(t, err, ErrMissingOperation)
	assert.Zero(t, svc.requests)

	boom := errors.New("backend down")
	svc.requestErr = boom
	_, err = c.RequestChallenge(context.Background(), "op-1")
	assert.ErrorIs(t, err, boom)

	svc.requestErr = nil
	svc.operationID = "someone-else"
	_, err = c.RequestChallenge(context.Background(), "op-1")
	assert.Error(t, err)
}

func TestConfirm(t *testing.T) {
	svc := &fakeService{validCode: "123456"}
	c, store, _ := newTestClient(svc)
	ctx := context.Background()
	ch, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)

	_, err = c.Confirm(ctx, ch, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, 1, store.Len(), "invalid code keeps the challenge")

	_, err = c.Confirm(ctx, ch, "  ")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, 1, svc.confirms, "empty code never reaches the backend")

	typ, err := c.Confirm(ctx, ch, " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmationPush, typ)
	assert.Zero(t, store.Len())
}

func TestConfirm_ExpiredLocally(t *testing.T) {
	svc := &fakeService{validCode: "123456"}
	c, store, clk := newTestClient(svc)
	ctx := context.Background()
	ch, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = c.Confirm(ctx, ch, "123456")
	assert.ErrorIs(t, err, ErrChallengeExpired)
	assert.Zero(t, svc.confirms, "expiry is enforced before any network call")
	assert.Zero(t, store.Len())
}

func TestConfirm_ExpiredRemotely(t *testing.T) {
	svc := &fakeService{confirmErr: ErrChallengeExpired}
	c, store, _ := newTestClient(svc)
	ctx := context.Background()
	ch, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)

	_, err = c.Confirm(ctx, ch, "123456")
	assert.ErrorIs(t, err, ErrChallengeExpired)
	assert.Zero(t, store.Len())
}

func TestConfirm_AfterRejectFails(t *testing.T) {
	svc := &fakeService{validCode: "123456"}
	c, _, _ := newTestClient(svc)
	ctx := context.Background()
	ch, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)

	c.Reject(ctx, ch)
	_, err = c.Confirm(ctx, ch, "123456")
	assert.ErrorIs(t, err, ErrChallengeExpired)
	assert.Zero(t, svc.confirms, "a rejected challenge never reaches the backend")
}

func TestConfirm_OnlyOnce(t *testing.T) {
	svc := &fakeService{validCode: "123456"}
	c, _, _ := newTestClient(svc)
	ctx := context.Background()
	ch, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)

	_, err = c.Confirm(ctx, ch, "123456")
	require.NoError(t, err)
	_, err = c.Confirm(ctx, ch, "123456")
	assert.ErrorIs(t, err, ErrChallengeExpired)
	assert.Equal(t, 1, svc.confirms)
}

func TestConfirm_ReplacedChallengeFails(t *testing.T) {
	svc := &fakeService{validCode: "123456"}
	c, _, _ := newTestClient(svc)
	ctx := context.Background()
	old, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)
	c.Reject(ctx, old)
	fresh, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)
	require.NotEqual(t, old.SessionID, fresh.SessionID)

	_, err = c.Confirm(ctx, old, "123456")
	assert.ErrorIs(t, err, ErrChallengeExpired)
	_, err = c.Confirm(ctx, fresh, "123456")
	assert.NoError(t, err)
	assert.Equal(t, 1, svc.confirms)
}

func TestReject(t *testing.T) {
	svc := &fakeService{}
	c, store, _ := newTestClient(svc)
	ctx := context.Background()
	ch, err := c.RequestChallenge(ctx, "op-1")
	require.NoError(t, err)

	c.Reject(ctx, ch)
	assert.Zero(t, store.Len())
	assert.Zero(t, svc.confirms)

	c.Reject(ctx, domain.Challenge{OperationID: "never-issued"})
}

func TestMemoryStore_ExpiryOnRead(t *testing.T) {
	clk := &clock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(clk.Now)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, domain.Challenge{OperationID: "op-1", ExpiresAt: clk.Now().Add(time.Minute)}))

	_, ok, err := s.Get(ctx, "op-1")
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(time.Minute)
	_, ok, err = s.Get(ctx, "op-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

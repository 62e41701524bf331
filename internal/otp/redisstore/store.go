// Package redisstore keeps outstanding OTP challenges in Redis so several app instances share them.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bizbank-confirmation/internal/otp/domain"
)

// DefaultPrefix namespaces challenge keys.
const DefaultPrefix = "otp:challenge:"

// Store implements otp.Store on a redis client. Each key expires with its challenge.
type Store struct {
	client redis.UniversalClient
	prefix string
	nowF   func() time.Time
}

// New returns a Store using client. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, nowF: time.Now}
}

// Connect opens a redis client and verifies it with PING. Call Close on the client during shutdown.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     2 * time.Second,
		WriteTimeout:    2 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}
	return client, nil
}

func (s *Store) key(operationID string) string { return s.prefix + operationID }

// Get returns the challenge for operationID if present and unexpired.
func (s *Store) Get(ctx context.Context, operationID string) (domain.Challenge, bool, error) {
	raw, err := s.client.Get(ctx, s.key(operationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Challenge{}, false, nil
	}
	if err != nil {
		return domain.Challenge{}, false, err
	}
	var ch domain.Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return domain.Challenge{}, false, fmt.Errorf("redisstore: decode %s: %w", operationID, err)
	}
	if ch.Expired(s.nowF()) {
		return domain.Challenge{}, false, nil
	}
	return ch, true, nil
}

// Put stores ch with a TTL equal to its remaining lifetime. Already expired challenges are not stored.
func (s *Store) Put(ctx context.Context, ch domain.Challenge) error {
	ttl := ch.ExpiresAt.Sub(s.nowF())
	if ttl <= 0 {
		return s.Delete(ctx, ch.OperationID)
	}
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(ch.OperationID), raw, ttl).Err()
}

// Delete removes the challenge for operationID.
func (s *Store) Delete(ctx context.Context, operationID string) error {
	return s.client.Del(ctx, s.key(operationID)).Err()
}

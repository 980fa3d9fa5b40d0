// Package idempotency replays responses for repeated Idempotency-Key requests.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idem:"

// Record is a stored response. Pending records mark a request still in
// flight.
type Record struct {
	Pending     bool   `json:"pending"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store persists idempotency records.
type Store interface {
	// Begin claims key. When the key already exists it returns the stored
	// record and started=false.
	Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (existing *Record, started bool, err error)
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Abort(ctx context.Context, key string) error
}

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (*Record, bool, error) {
	pending, err := json.Marshal(Record{Pending: true, Fingerprint: fingerprint})
	if err != nil {
		return nil, false, err
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}

	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the caller may retry.
		return &Record{Pending: true, Fingerprint: fingerprint}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	return &rec, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	rec.Pending = false
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, raw, ttl).Err()
}

func (s *RedisStore) Abort(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}

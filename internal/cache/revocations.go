// Package cache fronts the revocation ledger with Redis. Only positive
// revocation entries are cached; misses fall through to the durable store,
// so staleness can never reopen a window for a revoked token.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "revoked:"

// Revocations is a Redis-backed auth.RevocationCache.
type Revocations struct {
	client *redis.Client
}

// NewRevocations connects to Redis and verifies the connection.
func NewRevocations(url string) (*Revocations, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Revocations{client: client}, nil
}

// NewRevocationsFromClient wraps an existing client (used in tests).
func NewRevocationsFromClient(client *redis.Client) *Revocations {
	return &Revocations{client: client}
}

// MarkRevoked caches the token hash for the remaining token lifetime. Redis
// expires the key itself, mirroring the ledger sweep.
func (r *Revocations) MarkRevoked(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, keyPrefix+tokenHash, "1", ttl).Err()
}

// Lookup reports (revoked, found). A missing key is a cache miss, never a
// negative answer.
func (r *Revocations) Lookup(ctx context.Context, tokenHash string) (bool, bool, error) {
	_, err := r.client.Get(ctx, keyPrefix+tokenHash).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, true, nil
}

// Close releases the underlying connection pool.
func (r *Revocations) Close() error {
	return r.client.Close()
}

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers logged-out session ids until they expire.
type Revoker interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// NopRevoker is used when no shared store is configured; logout only clears the cookie.
type NopRevoker struct{}

func (NopRevoker) Revoke(context.Context, string, time.Time) error { return nil }

func (NopRevoker) IsRevoked(context.Context, string) (bool, error) { return false, nil }

// RedisRevoker keeps revoked session ids as expiring keys.
type RedisRevoker struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client, now: time.Now}
}

func revokedKey(id string) string {
	return "revoked:" + id
}

func (r *RedisRevoker) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := until.Sub(r.now())
	if id == "" || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKey(id), 1, ttl).Err(); err != nil {
		return fmt.Errorf("store revoked session: %w", err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	err := r.client.Get(ctx, revokedKey(id)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("lookup revoked session: %w", err)
	}
}

var (
	_ Revoker = NopRevoker{}
	_ Revoker = (*RedisRevoker)(nil)
)

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"

// RedisRevocations 用 Redis 记录已吊销的刷新令牌 jti，过期时间与令牌一致。
type RedisRevocations struct {
	client redis.UniversalClient
}

// NewRedisRevocations wraps a Redis client.
func NewRedisRevocations(client redis.UniversalClient) *RedisRevocations {
	return &RedisRevocations{client: client}
}

// Revoke blacklists jti for ttl.
func (r *RedisRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := r.client.Set(ctx, refreshTokenBlacklistKeyPrefix+jti, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti was blacklisted.
func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := r.client.Get(ctx, refreshTokenBlacklistKeyPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("refresh token blacklist lookup: %w", err)
	}
}

package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTL 在同一事务中自增计数并仅在键没有过期时间时设置 TTL，
// 避免 INCR 成功而 EXPIRE 丢失导致计数永不过期。
func incrWithTTL(ctx context.Context, client redis.Cmdable, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

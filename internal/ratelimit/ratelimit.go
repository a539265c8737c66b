package ratelimit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter bounds kiosk PIN attempts per source. It fails open: if Redis is
// down the kiosk keeps working and the attempt is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RedisLimiter struct {
	rdb *redis.Client
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	// Hash the key so raw IPs never land in Redis.
	hashed := fmt.Sprintf("ratelimit:%x", sha256.Sum256([]byte(key)))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	count, err := l.rdb.Incr(ctx, hashed).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		l.rdb.Expire(ctx, hashed, window)
	}
	return count <= int64(limit), nil
}

var _ Limiter = (*RedisLimiter)(nil)

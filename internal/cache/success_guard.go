// Package cache holds the Redis-backed success guard that keeps payment
// success side effects from running twice across replicas.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultSuccessTTL = 24 * time.Hour

type RedisSuccessGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisSuccessGuard(client redis.Cmdable, ttl time.Duration) *RedisSuccessGuard {
	if ttl <= 0 {
		ttl = DefaultSuccessTTL
	}
	return &RedisSuccessGuard{client: client, ttl: ttl}
}

func successKey(paymentID int64) string {
	return fmt.Sprintf("payment_success:%d", paymentID)
}

// Acquire reports true for the first caller per payment id within the TTL.
func (g *RedisSuccessGuard) Acquire(ctx context.Context, paymentID int64) (bool, error) {
	ok, err := g.client.SetNX(ctx, successKey(paymentID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire success guard for payment %d: %w", paymentID, err)
	}
	return ok, nil
}


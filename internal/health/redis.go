package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisChecker reports whether Redis, which backs the rate limiter and the
// rank mirror, answers a PING. Redis being down degrades those features but
// does not take the API down, so callers decide how to weigh a failure.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a checker over an established client.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck pings Redis within the check timeout.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}

package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is an upstream that answers a cheap probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps probes the bundle upstream and the optional Redis client. A nil
// dependency counts as healthy.
type Deps struct {
	Upstream Pinger
	Redis    *redis.Client
}

// PingUpstream probes the storefront or hosted backend.
func (d Deps) PingUpstream(ctx context.Context, timeout time.Duration) error {
	if d.Upstream == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Upstream.Ping(ctx)
}

// PingRedis probes Redis.
func (d Deps) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

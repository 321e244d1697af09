package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed-window limiter on the ulule store. It keeps one counter
// per key and suits high-volume routes where the sliding window is too costly.
type Fixed struct {
	lim *limiter.Limiter
}

// NewFixed builds a Fixed limiter allowing max events per period.
func NewFixed(rdb *redis.Client, prefix string, period time.Duration, max int) (*Fixed, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix, MaxRetry: 3})
	if err != nil {
		return nil, fmt.Errorf("ratelimit store: %w", err)
	}
	return &Fixed{lim: limiter.New(store, limiter.Rate{Period: period, Limit: int64(max)})}, nil
}

// Allow increments the counter for key.
func (f *Fixed) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := f.lim.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     int(res.Limit),
		Remaining: int(res.Remaining),
		ResetAt:   time.Unix(res.Reset, 0),
	}, nil
}

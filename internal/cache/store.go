// Package cache provides the TTL key/value stores used to memoise bundle
// definitions, inventory verdicts and price results.
package cache

import (
	"context"
	"strings"
	"time"
)

// Store is a JSON value cache with per-entry expiry. Writes for the same key
// are last-writer-wins; readers must tolerate a stale value racing a write.
type Store interface {
	// Get decodes the cached value into dst and reports whether it existed.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Nop is a Store that never holds anything. It backs disabled caching.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Delete(context.Context, string) error                  { return nil }
func (Nop) Clear(context.Context) error                           { return nil }

// Key joins non-empty parts with ":" so that entries for different stores
// and kinds never collide.
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}

// Package app assembles the bundle services shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-bundles/internal/api"
	"github.com/noah-isme/toko-bundles/internal/cache"
	"github.com/noah-isme/toko-bundles/internal/cart"
	"github.com/noah-isme/toko-bundles/internal/config"
	"github.com/noah-isme/toko-bundles/internal/hosted"
	"github.com/noah-isme/toko-bundles/internal/inventory"
	"github.com/noah-isme/toko-bundles/internal/lock"
	"github.com/noah-isme/toko-bundles/internal/pricing"
	"github.com/noah-isme/toko-bundles/internal/resilience"
	"github.com/noah-isme/toko-bundles/internal/resolver"
	"github.com/noah-isme/toko-bundles/internal/storefront"
)

// Dependencies enumerates the services built from one Config.
type Dependencies struct {
	Config     *config.Config
	Redis      *redis.Client
	Cache      cache.Store
	Storefront *storefront.Client
	Hosted     *hosted.Client
	Resolver   *resolver.Service
	Inventory  *inventory.Service
	Pricing    *pricing.Calculator
	Cart       *cart.Service
	Service    *api.Service

	ownsRedis bool
	memory    *cache.MemoryStore
}

// Options tunes Build.
type Options struct {
	// Redis is reused when set. Otherwise a client is dialled when the
	// config names a Redis URL.
	Redis *redis.Client
	// Enqueuer lets the facade hand refreshes to the queue.
	Enqueuer interface {
		EnqueueWarm(ctx context.Context, shop string, ids []string) (string, error)
	}
	InstrumentMetrics bool
}

// NewRedis dials cfg.RedisURL with tracing and, optionally, metrics
// instrumentation. It returns nil when no URL is configured.
func NewRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics bool) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Build wires the cache, upstream clients and core services for cfg.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Redis: opts.Redis}
	if deps.Redis == nil {
		client, err := NewRedis(ctx, cfg, logger, opts.InstrumentMetrics)
		if err != nil {
			return nil, err
		}
		deps.Redis = client
		deps.ownsRedis = client != nil
	}
	if deps.Redis != nil {
		deps.Cache = cache.NewRedisStore(deps.Redis, cfg.CachePrefix+"cache:")
	} else {
		deps.memory = cache.NewBoundedMemoryStore(nil, cfg.MemoryCacheEntries)
		deps.Cache = deps.memory
	}

	reads := outbound(cfg, "storefront", logger)
	sf, err := storefront.NewClient(storefront.ClientConfig{
		Endpoint:    cfg.Store.GraphQLEndpoint(),
		AccessToken: cfg.StorefrontAccessToken,
		HTTP:        reads,
		Logger:      &logger,
	})
	if err != nil {
		return nil, err
	}
	deps.Storefront = sf

	if cfg.Store.UsesHostedBackend() {
		deps.Hosted, err = hosted.NewClient(hosted.ClientConfig{
			BaseURL:    cfg.APIURL,
			APIKey:     cfg.APIKey,
			ShopDomain: cfg.StoreDomain,
			HTTP:       outbound(cfg, "hosted", logger),
			Logger:     &logger,
		})
		if err != nil {
			return nil, err
		}
	}

	resolverCfg := resolver.ServiceConfig{Store: cfg.Store, Storefront: sf, Cache: deps.Cache, Logger: &logger}
	inventoryCfg := inventory.ServiceConfig{Store: cfg.Store, Stock: sf, Cache: deps.Cache, Logger: &logger}
	pricingCfg := pricing.CalculatorConfig{Store: cfg.Store, Cache: deps.Cache, Logger: &logger}
	if deps.Hosted != nil {
		resolverCfg.Hosted = deps.Hosted
		inventoryCfg.Hosted = deps.Hosted
		pricingCfg.Hosted = deps.Hosted
	}

	if deps.Resolver, err = resolver.NewService(resolverCfg); err != nil {
		return nil, err
	}
	inventoryCfg.Resolver = deps.Resolver
	pricingCfg.Resolver = deps.Resolver
	if deps.Inventory, err = inventory.NewService(inventoryCfg); err != nil {
		return nil, err
	}
	if deps.Pricing, err = pricing.NewCalculator(pricingCfg); err != nil {
		return nil, err
	}
	deps.Cart = cart.NewService(sf, &logger)

	svcCfg := api.ServiceConfig{
		Store:     cfg.Store,
		Resolver:  deps.Resolver,
		Inventory: deps.Inventory,
		Pricing:   deps.Pricing,
		Cart:      deps.Cart,
		Logger:    &logger,
	}
	if opts.Enqueuer != nil {
		svcCfg.Enqueuer = opts.Enqueuer
	}
	if deps.Redis != nil {
		svcCfg.Locker = lock.Locker{R: deps.Redis, Prefix: cfg.CachePrefix + "lock:"}
	}
	if deps.Service, err = api.NewService(svcCfg); err != nil {
		return nil, err
	}
	return deps, nil
}

// Close releases the Redis client when Build dialled it.
func (d *Dependencies) Close() error {
	if d == nil || d.Redis == nil || !d.ownsRedis {
		return nil
	}
	return d.Redis.Close()
}

// RestoreCache loads a snapshot written by SnapshotCache into the in-memory
// cache. It reports whether anything was loaded; Redis-backed builds, an
// empty path and a missing file are no-ops.
func (d *Dependencies) RestoreCache(path string) (bool, error) {
	if d == nil || d.memory == nil || path == "" {
		return false, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open cache snapshot: %w", err)
	}
	defer f.Close()
	if err := d.memory.Restore(f); err != nil {
		return false, err
	}
	return true, nil
}

// SnapshotCache persists the in-memory cache to path, replacing any previous
// snapshot atomically. Redis-backed builds and an empty path are no-ops.
func (d *Dependencies) SnapshotCache(path string) error {
	if d == nil || d.memory == nil || path == "" {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create cache snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := d.memory.Snapshot(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write cache snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace cache snapshot: %w", err)
	}
	return nil
}

func outbound(cfg *config.Config, target string, logger zerolog.Logger) resilience.HTTPClient {
	return resilience.NewOutbound(resilience.OutboundConfig{
		Target:          target,
		Timeout:         cfg.HTTPTimeout,
		MaxAttempts:     cfg.RetryMaxAttempts,
		BaseBackoff:     cfg.RetryBaseDelay,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
		Logger:          logger,
	})
}

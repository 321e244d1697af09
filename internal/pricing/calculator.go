// Package pricing evaluates bundle discount rules.
package pricing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/cache"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/config"
	"github.com/noah-isme/toko-bundles/internal/obs"
	"github.com/noah-isme/toko-bundles/internal/resolver"
)

type definitionSource interface {
	Resolve(ctx context.Context, id string, opts resolver.Options) (*bundle.Definition, error)
}

type hostedSource interface {
	Price(ctx context.Context, id string, selections []bundle.Selection) (*bundle.PriceResult, error)
}

// CalculatorConfig groups Calculator dependencies.
type CalculatorConfig struct {
	Store    config.Store
	Resolver definitionSource
	Hosted   hostedSource
	Cache    cache.Store
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Calculator prices bundles for one store.
type Calculator struct {
	store    config.Store
	resolver definitionSource
	hosted   hostedSource
	cache    cache.Store
	logger   zerolog.Logger
	now      func() time.Time
}

// Options tunes a single calculation.
type Options struct {
	SelectedComponents []bundle.Selection
	SkipCache          bool
}

// NewCalculator validates the wiring for the configured strategy.
func NewCalculator(cfg CalculatorConfig) (*Calculator, error) {
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store.UsesHostedBackend() {
		if cfg.Hosted == nil {
			return nil, common.NewError(common.CodeInvalidConfig, "hosted backend client is required", nil)
		}
	} else if cfg.Resolver == nil {
		return nil, common.NewError(common.CodeInvalidConfig, "bundle resolver is required", nil)
	}
	store := cfg.Cache
	if store == nil || !cfg.Store.EnableCache {
		store = cache.Nop{}
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Calculator{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		hosted:   cfg.Hosted,
		cache:    store,
		logger:   logger,
		now:      now,
	}, nil
}

// CacheKey is the price cache key for a bundle and selection.
func (c *Calculator) CacheKey(id string, selections []bundle.Selection) string {
	return cache.Key(c.store.StoreDomain, "price", bundle.CacheKey(id, selections))
}

// Compute prices def locally without touching cache or network.
func (c *Calculator) Compute(def *bundle.Definition, selections []bundle.Selection) *bundle.PriceResult {
	return Price(def, selections, c.now())
}

// CalculatePrice resolves id and prices it. A configured hosted backend is
// authoritative.
func (c *Calculator) CalculatePrice(ctx context.Context, id string, opts Options) (*bundle.PriceResult, error) {
	return c.calculate(ctx, id, nil, opts)
}

// CalculateDefinition prices an already-resolved definition.
func (c *Calculator) CalculateDefinition(ctx context.Context, def *bundle.Definition, opts Options) (*bundle.PriceResult, error) {
	if def == nil {
		return nil, common.NewError(common.CodeBundleNotFound, "", nil)
	}
	return c.calculate(ctx, def.ID, def, opts)
}

func (c *Calculator) calculate(ctx context.Context, id string, def *bundle.Definition, opts Options) (*bundle.PriceResult, error) {
	ctx, span := obs.StartSpan(ctx, "pricing.Calculate", id)
	defer span.End()

	key := c.CacheKey(id, opts.SelectedComponents)
	if !opts.SkipCache {
		var cached bundle.PriceResult
		ok, err := c.cache.Get(ctx, key, &cached)
		if err != nil {
			c.logger.Warn().Err(err).Str("bundle_id", id).Msg("price_cache_read_failed")
		}
		obs.ObserveCache("price", ok)
		if ok {
			return &cached, nil
		}
	}

	var (
		result *bundle.PriceResult
		err    error
	)
	if c.store.UsesHostedBackend() {
		result, err = c.hosted.Price(ctx, id, opts.SelectedComponents)
		if err == nil && result.CachedAt.IsZero() {
			result.CachedAt = c.now().UTC()
		}
	} else {
		if def == nil {
			def, err = c.resolver.Resolve(ctx, id, resolver.Options{SkipCache: opts.SkipCache})
		}
		if err == nil {
			result = c.Compute(def, opts.SelectedComponents)
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.logger.Debug().
		Str("bundle_id", id).
		Str("bundle_price", result.BundlePrice.Amount).
		Msg("price_calculated")
	if err := c.cache.Set(ctx, key, result, c.store.PriceCacheTTL); err != nil {
		c.logger.Warn().Err(err).Str("bundle_id", id).Msg("price_cache_write_failed")
	}
	return result, nil
}

// Invalidate drops the cached price for a bundle and selection.
func (c *Calculator) Invalidate(ctx context.Context, id string, selections []bundle.Selection) error {
	return c.cache.Delete(ctx, c.CacheKey(id, selections))
}

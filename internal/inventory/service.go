package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/cache"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/config"
	"github.com/noah-isme/toko-bundles/internal/obs"
	"github.com/noah-isme/toko-bundles/internal/resolver"
	"github.com/noah-isme/toko-bundles/internal/storefront"
)

type definitionSource interface {
	Resolve(ctx context.Context, id string, opts resolver.Options) (*bundle.Definition, error)
}

type stockSource interface {
	VariantInventory(ctx context.Context, ids []string) (map[string]storefront.VariantStock, error)
}

type hostedSource interface {
	Inventory(ctx context.Context, id string, selections []bundle.Selection) (*bundle.Inventory, error)
}

// ServiceConfig groups Service dependencies. Stock is optional; without it the
// definition's own variant snapshot is evaluated.
type ServiceConfig struct {
	Store    config.Store
	Resolver definitionSource
	Stock    stockSource
	Hosted   hostedSource
	Cache    cache.Store
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Service checks bundle stock for one store.
type Service struct {
	store    config.Store
	resolver definitionSource
	stock    stockSource
	hosted   hostedSource
	cache    cache.Store
	logger   zerolog.Logger
	now      func() time.Time
}

// Options tunes a single check.
type Options struct {
	SelectedComponents []bundle.Selection
	SkipCache          bool
}

// NewService validates the wiring for the configured strategy.
func NewService(cfg ServiceConfig) (*Service, error) {
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
	return &Service{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		stock:    cfg.Stock,
		hosted:   cfg.Hosted,
		cache:    store,
		logger:   logger,
		now:      now,
	}, nil
}

// CacheKey is the inventory cache key for a bundle and selection.
func (s *Service) CacheKey(id string, selections []bundle.Selection) string {
	return cache.Key(s.store.StoreDomain, "inventory", bundle.CacheKey(id, selections))
}

// CheckInventory resolves id and evaluates its stock.
func (s *Service) CheckInventory(ctx context.Context, id string, opts Options) (*bundle.Inventory, error) {
	return s.check(ctx, id, nil, opts)
}

// CheckDefinition evaluates an already-resolved definition.
func (s *Service) CheckDefinition(ctx context.Context, def *bundle.Definition, opts Options) (*bundle.Inventory, error) {
	if def == nil {
		return nil, common.NewError(common.CodeBundleNotFound, "", nil)
	}
	return s.check(ctx, def.ID, def, opts)
}

func (s *Service) check(ctx context.Context, id string, def *bundle.Definition, opts Options) (*bundle.Inventory, error) {
	ctx, span := obs.StartSpan(ctx, "inventory.Check", id)
	defer span.End()

	key := s.CacheKey(id, opts.SelectedComponents)
	if !opts.SkipCache {
		var cached bundle.Inventory
		ok, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("bundle_id", id).Msg("inventory_cache_read_failed")
		}
		obs.ObserveCache("inventory", ok)
		if ok {
			return &cached, nil
		}
	}

	var (
		inv *bundle.Inventory
		err error
	)
	if s.store.UsesHostedBackend() {
		inv, err = s.hosted.Inventory(ctx, id, opts.SelectedComponents)
		if err == nil && inv.CachedAt.IsZero() {
			inv.CachedAt = s.now().UTC()
		}
	} else {
		inv, err = s.direct(ctx, id, def, opts)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Debug().
		Str("bundle_id", id).
		Str("status", string(inv.Status)).
		Int("max_quantity", inv.MaxQuantity).
		Msg("inventory_checked")
	if err := s.cache.Set(ctx, key, inv, s.store.InventoryCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("bundle_id", id).Msg("inventory_cache_write_failed")
	}
	return inv, nil
}

func (s *Service) direct(ctx context.Context, id string, def *bundle.Definition, opts Options) (*bundle.Inventory, error) {
	if def == nil {
		resolved, err := s.resolver.Resolve(ctx, id, resolver.Options{SkipCache: opts.SkipCache})
		if err != nil {
			return nil, err
		}
		def = resolved
	}
	live, err := s.liveStock(ctx, def, opts.SelectedComponents)
	if err != nil {
		return nil, err
	}
	return Evaluate(def, opts.SelectedComponents, live, s.now()), nil
}

func (s *Service) liveStock(ctx context.Context, def *bundle.Definition, selections []bundle.Selection) (map[string]Stock, error) {
	if s.stock == nil {
		return nil, nil
	}
	resolved := bundle.ResolveComponents(def, selections)
	ids := make([]string, 0, len(resolved))
	seen := make(map[string]struct{}, len(resolved))
	for _, rc := range resolved {
		if _, dup := seen[rc.VariantID()]; dup {
			continue
		}
		seen[rc.VariantID()] = struct{}{}
		ids = append(ids, rc.VariantID())
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raw, err := s.stock.VariantInventory(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("variant inventory for %s: %w", def.ID, err)
	}
	out := make(map[string]Stock, len(raw))
	for id, vs := range raw {
		out[id] = Stock{AvailableForSale: vs.AvailableForSale, QuantityAvailable: vs.QuantityAvailable}
	}
	return out, nil
}

// Invalidate drops the cached verdict for a bundle and selection.
func (s *Service) Invalidate(ctx context.Context, id string, selections []bundle.Selection) error {
	return s.cache.Delete(ctx, s.CacheKey(id, selections))
}

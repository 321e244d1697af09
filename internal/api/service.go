// Package api exposes the bundle core over HTTP and as a single facade for
// the worker and CLI binaries.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/cart"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/config"
	"github.com/noah-isme/toko-bundles/internal/inventory"
	"github.com/noah-isme/toko-bundles/internal/pricing"
	"github.com/noah-isme/toko-bundles/internal/resolver"
	"github.com/noah-isme/toko-bundles/internal/storefront"
)

const (
	defaultFanOut = 4
	warmLockTTL   = 30 * time.Second
)

type warmEnqueuer interface {
	EnqueueWarm(ctx context.Context, shop string, ids []string) (string, error)
}

type warmLocker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (bool, error)
}

// ServiceConfig groups the core services behind the facade.
type ServiceConfig struct {
	Store     config.Store
	Resolver  *resolver.Service
	Inventory *inventory.Service
	Pricing   *pricing.Calculator
	Cart      *cart.Service
	// Enqueuer is optional. Without it Refresh warms inline.
	Enqueuer warmEnqueuer
	// Locker is optional. With it a bundle is warmed by one process at a time.
	Locker warmLocker
	Logger *zerolog.Logger
	FanOut int
}

// Service routes each operation to the strategy the store configuration
// selects and keeps the per-bundle caches coherent.
type Service struct {
	store     config.Store
	resolver  *resolver.Service
	inventory *inventory.Service
	pricing   *pricing.Calculator
	cart      *cart.Service
	enqueuer  warmEnqueuer
	locker    warmLocker
	logger    zerolog.Logger
	fanOut    int
}

// PriceRequest is one entry of a batch price call.
type PriceRequest struct {
	BundleID   string             `json:"bundleId" validate:"required"`
	Selections []bundle.Selection `json:"selectedComponents" validate:"omitempty,dive"`
}

// RefreshResult reports how a refresh was carried out.
type RefreshResult struct {
	TaskID string `json:"taskId,omitempty"`
	Queued bool   `json:"queued"`
}

// NewService validates that every core service is present.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Resolver == nil || cfg.Inventory == nil || cfg.Pricing == nil || cfg.Cart == nil {
		return nil, common.NewError(common.CodeInvalidConfig, "resolver, inventory, pricing and cart services are required", nil)
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	fanOut := cfg.FanOut
	if fanOut <= 0 {
		fanOut = defaultFanOut
	}
	return &Service{
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		inventory: cfg.Inventory,
		pricing:   cfg.Pricing,
		cart:      cfg.Cart,
		enqueuer:  cfg.Enqueuer,
		locker:    cfg.Locker,
		logger:    logger,
		fanOut:    fanOut,
	}, nil
}

// ShopDomain is the store this facade serves.
func (s *Service) ShopDomain() string { return s.store.StoreDomain }

// Bundle resolves the definition for id.
func (s *Service) Bundle(ctx context.Context, id string, skipCache bool) (*bundle.Definition, error) {
	return s.resolver.Resolve(ctx, id, resolver.Options{SkipCache: skipCache})
}

// Inventory returns the stock verdict for id under selections.
func (s *Service) Inventory(ctx context.Context, id string, selections []bundle.Selection) (*bundle.Inventory, error) {
	return s.inventory.CheckInventory(ctx, id, inventory.Options{SelectedComponents: selections})
}

// Price returns the price for id under selections.
func (s *Service) Price(ctx context.Context, id string, selections []bundle.Selection) (*bundle.PriceResult, error) {
	return s.pricing.CalculatePrice(ctx, id, pricing.Options{SelectedComponents: selections})
}

// PriceMany prices several bundles concurrently and returns results in
// request order. The first failure cancels the rest.
func (s *Service) PriceMany(ctx context.Context, reqs []PriceRequest) ([]*bundle.PriceResult, error) {
	out := make([]*bundle.PriceResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Price(gctx, req.BundleID, req.Selections)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks selections against the definition for id.
func (s *Service) Validate(ctx context.Context, id string, selections []bundle.Selection) (bundle.ValidationResult, error) {
	def, err := s.Bundle(ctx, id, false)
	if err != nil {
		return bundle.ValidationResult{}, err
	}
	return bundle.ValidateSelection(def, selections), nil
}

// Lines previews the cart lines an add-to-cart for id would submit. Invalid
// mix-and-match selections fail with the validation code.
func (s *Service) Lines(ctx context.Context, id string, in cart.Input) ([]storefront.CartLineInput, error) {
	def, err := s.Bundle(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if def.Type == bundle.TypeMixAndMatch {
		if err := bundle.ValidateSelection(def, in.Selections).Err(); err != nil {
			return nil, err
		}
	}
	if err := bundle.ValidateResolvable(def, in.Selections).Err(); err != nil {
		return nil, err
	}
	return cart.BuildBundleCartLines(def, in), nil
}

// AddToCart resolves id and submits it to the storefront cart.
func (s *Service) AddToCart(ctx context.Context, id string, in cart.Input) (*cart.AddResult, error) {
	def, err := s.Bundle(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return s.cart.AddBundleToCart(ctx, def, in)
}

// Refresh schedules a warm of ids on the queue, or warms inline when no
// queue is configured.
func (s *Service) Refresh(ctx context.Context, ids []string) (RefreshResult, error) {
	if s.enqueuer != nil {
		taskID, err := s.enqueuer.EnqueueWarm(ctx, s.store.StoreDomain, ids)
		if err != nil {
			return RefreshResult{}, err
		}
		return RefreshResult{TaskID: taskID, Queued: true}, nil
	}
	if err := s.Warm(ctx, ids); err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{}, nil
}

// Warm drops the cached verdicts for each id and re-resolves its definition
// past the cache. Ids that are no longer bundles, or that another process is
// already warming, are skipped.
func (s *Service) Warm(ctx context.Context, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for _, id := range ids {
		g.Go(func() error {
			if s.locker == nil {
				return s.warmOne(gctx, id)
			}
			ran, err := s.locker.TryWithLock(gctx, "warm:"+s.store.StoreDomain+":"+id, warmLockTTL, func(ctx context.Context) error {
				return s.warmOne(ctx, id)
			})
			if err == nil && !ran {
				s.logger.Debug().Str("bundle_id", id).Msg("bundle_warm_in_flight")
			}
			return err
		})
	}
	return g.Wait()
}

func (s *Service) warmOne(ctx context.Context, id string) error {
	if err := errors.Join(
		s.inventory.Invalidate(ctx, id, nil),
		s.pricing.Invalidate(ctx, id, nil),
	); err != nil {
		s.logger.Warn().Err(err).Str("bundle_id", id).Msg("bundle_invalidate_failed")
	}
	if _, err := s.resolver.Resolve(ctx, id, resolver.Options{SkipCache: true}); err != nil {
		if resolver.IsNotFound(err) {
			s.logger.Info().Str("bundle_id", id).Msg("bundle_warm_skipped")
			return nil
		}
		return fmt.Errorf("warm %s: %w", id, err)
	}
	return nil
}

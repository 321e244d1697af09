// Package resolver turns bundle identifiers into normalised definitions,
// either through the hosted backend or directly from the storefront.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/cache"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/config"
	"github.com/noah-isme/toko-bundles/internal/obs"
	"github.com/noah-isme/toko-bundles/internal/storefront"
)

const (
	sourceHosted     = "hosted"
	sourceStorefront = "storefront"

	defaultFanOut = 4
)

type productSource interface {
	Product(ctx context.Context, identifier string) (*storefront.Product, error)
}

type hostedSource interface {
	Bundle(ctx context.Context, id string) (*bundle.Definition, error)
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store      config.Store
	Storefront productSource
	Hosted     hostedSource
	Cache      cache.Store
	Logger     *zerolog.Logger
	// FanOut bounds ResolveMany concurrency. Defaults to 4.
	FanOut int
}

// Service resolves bundle definitions for one store.
type Service struct {
	store      config.Store
	storefront productSource
	hosted     hostedSource
	cache      cache.Store
	logger     zerolog.Logger
	fanOut     int
}

// Options tunes a single call.
type Options struct {
	SkipCache bool
}

// NewService validates the store configuration and the source it selects.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store.UsesHostedBackend() {
		if cfg.Hosted == nil {
			return nil, common.NewError(common.CodeInvalidConfig, "hosted backend client is required", nil)
		}
	} else if cfg.Storefront == nil {
		return nil, common.NewError(common.CodeInvalidConfig, "storefront client is required", nil)
	}
	store := cfg.Cache
	if store == nil || !cfg.Store.EnableCache {
		store = cache.Nop{}
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
		store:      cfg.Store,
		storefront: cfg.Storefront,
		hosted:     cfg.Hosted,
		cache:      store,
		logger:     logger,
		fanOut:     fanOut,
	}, nil
}

// CacheKey is the definition cache key for id.
func (s *Service) CacheKey(id string) string {
	return cache.Key(s.store.StoreDomain, "bundle", id)
}

// Resolve returns the definition for id, failing with BUNDLE_NOT_FOUND when
// the product is not a bundle.
func (s *Service) Resolve(ctx context.Context, id string, opts Options) (*bundle.Definition, error) {
	res, err := s.Lookup(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	if !res.IsBundle() {
		return nil, common.NewError(common.CodeBundleNotFound, "", fmt.Errorf("product %s is not a bundle", id))
	}
	return res.Definition, nil
}

// Lookup classifies id without treating "not a bundle" as a failure.
func (s *Service) Lookup(ctx context.Context, id string, opts Options) (bundle.Resolution, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return bundle.NotBundle(), common.NewError(common.CodeBadRequest, "bundle id is required", nil)
	}
	ctx, span := obs.StartSpan(ctx, "resolver.Lookup", id)
	defer span.End()

	key := s.CacheKey(id)
	if !opts.SkipCache {
		var cached bundle.Definition
		ok, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("bundle_id", id).Msg("bundle_cache_read_failed")
		}
		obs.ObserveCache("definition", ok)
		if ok {
			return bundle.Classify(&cached), nil
		}
	}

	source := sourceStorefront
	if s.store.UsesHostedBackend() {
		source = sourceHosted
	}
	s.logger.Debug().Str("bundle_id", id).Str("source", source).Bool("skip_cache", opts.SkipCache).Msg("bundle_resolve")

	var (
		res bundle.Resolution
		err error
	)
	if source == sourceHosted {
		res, err = s.fromHosted(ctx, id)
	} else {
		res, err = s.fromStorefront(ctx, id)
	}
	if err != nil {
		obs.ObserveResolve(source, "error")
		span.RecordError(err)
		return bundle.NotBundle(), err
	}
	if !res.IsBundle() {
		obs.ObserveResolve(source, "not_a_bundle")
		return res, nil
	}
	obs.ObserveResolve(source, "ok")

	if err := s.cache.Set(ctx, key, res.Definition, s.store.CacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("bundle_id", id).Msg("bundle_cache_write_failed")
	}
	return res, nil
}

func (s *Service) fromHosted(ctx context.Context, id string) (bundle.Resolution, error) {
	def, err := s.hosted.Bundle(ctx, id)
	if err != nil {
		if common.CodeOf(err) == common.CodeBundleNotFound {
			return bundle.NotBundle(), nil
		}
		return bundle.NotBundle(), fmt.Errorf("resolve %s: %w", id, err)
	}
	if err := bundle.CheckIntegrity(def); err != nil {
		return bundle.NotBundle(), common.NewError(common.CodeUnknownError, "", err)
	}
	return bundle.Classify(def), nil
}

func (s *Service) fromStorefront(ctx context.Context, id string) (bundle.Resolution, error) {
	product, err := s.storefront.Product(ctx, id)
	if err != nil {
		return bundle.NotBundle(), fmt.Errorf("resolve %s: %w", id, err)
	}
	return Normalize(product, s.logger), nil
}

// ResolveMany resolves ids concurrently, preserving input order. The first
// failure cancels the remaining lookups.
func (s *Service) ResolveMany(ctx context.Context, ids []string, opts Options) ([]*bundle.Definition, error) {
	out := make([]*bundle.Definition, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for i, id := range ids {
		g.Go(func() error {
			def, err := s.Resolve(gctx, id, opts)
			if err != nil {
				return err
			}
			out[i] = def
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate drops the cached definition for id.
func (s *Service) Invalidate(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, s.CacheKey(id)); err != nil {
		return fmt.Errorf("invalidate %s: %w", id, err)
	}
	return nil
}

// IsNotFound reports whether err is a BUNDLE_NOT_FOUND failure.
func IsNotFound(err error) bool {
	var appErr *common.AppError
	return errors.As(err, &appErr) && appErr.Code == common.CodeBundleNotFound
}

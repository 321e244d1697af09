package resolver

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/cache"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/config"
	"github.com/noah-isme/toko-bundles/internal/storefront"
)

type fakeStorefront struct {
	products map[string]*storefront.Product
	calls    int32
	err      error
}

func (f *fakeStorefront) Product(_ context.Context, id string) (*storefront.Product, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.products[id], nil
}

type fakeHosted struct {
	defs  map[string]*bundle.Definition
	calls int32
}

func (f *fakeHosted) Bundle(_ context.Context, id string) (*bundle.Definition, error) {
	atomic.AddInt32(&f.calls, 1)
	def, ok := f.defs[id]
	if !ok {
		return nil, common.NewError(common.CodeBundleNotFound, "", nil)
	}
	return def, nil
}

func sfVariant(id, productID, amount string) storefront.Variant {
	v := storefront.Variant{
		ID:               id,
		Title:            "Default",
		AvailableForSale: true,
		Price:            storefront.MoneyV2{Amount: amount, CurrencyCode: "USD"},
	}
	if productID != "" {
		v.Product = &storefront.ProductRef{ID: productID, Title: "Product " + productID, Handle: "h-" + productID}
	}
	return v
}

func bundleProduct(id, listed string, comps ...storefront.VariantComponent) *storefront.Product {
	p := &storefront.Product{ID: id, Title: "Bundle " + id, Handle: "bundle-" + id}
	plain := sfVariant(id+"-plain", "", listed)
	bv := sfVariant(id+"-bundle", "", listed)
	bv.Components.Nodes = comps
	p.Variants.Nodes = []storefront.Variant{plain, bv}
	return p
}

func storeConfig() config.Store {
	return config.Store{
		StoreDomain: "demo.myshopify.com",
		APIVersion:  config.DefaultAPIVersion,
		EnableCache: true,
		CacheTTL:    5 * time.Minute,
	}
}

func TestNormalizeFixedAmountScenario(t *testing.T) {
	p := bundleProduct("1", "30.00",
		storefront.VariantComponent{Quantity: 2, ProductVariant: sfVariant("va", "pa", "10.00")},
		storefront.VariantComponent{Quantity: 1, ProductVariant: sfVariant("vb", "pb", "15.00")},
	)
	res := Normalize(p, zerolog.Nop())
	require.Equal(t, bundle.FixedBundle, res.Kind)
	def := res.Definition
	require.Equal(t, "1-bundle", def.VariantID)
	require.Len(t, def.Components, 2)
	require.Equal(t, "pa", def.Components[0].ProductID)
	require.Equal(t, "va", def.Components[0].DefaultVariantID)
	require.Equal(t, 2, def.Components[0].Quantity)
	require.True(t, def.Components[0].Required)

	require.Equal(t, bundle.DiscountFixedAmount, def.Pricing.DiscountType)
	require.Equal(t, "5", def.Pricing.DiscountValue.String())
	require.Equal(t, "35.00", def.Pricing.OriginalPrice.Amount)
	require.Equal(t, "30.00", def.Pricing.BundlePrice.Amount)
	require.Equal(t, "5.00", def.Pricing.Savings.Amount)
	require.InDelta(t, 14.29, *def.Pricing.SavingsPercentage, 0.001)
}

func TestNormalizeWholePercentage(t *testing.T) {
	p := bundleProduct("2", "45.00",
		storefront.VariantComponent{Quantity: 2, ProductVariant: sfVariant("va", "pa", "25.00")},
	)
	def := Normalize(p, zerolog.Nop()).Definition
	require.Equal(t, bundle.DiscountPercentage, def.Pricing.DiscountType)
	require.Equal(t, "10", def.Pricing.DiscountValue.String())
}

func TestNormalizeZeroOriginal(t *testing.T) {
	p := bundleProduct("3", "0.00",
		storefront.VariantComponent{Quantity: 1, ProductVariant: sfVariant("va", "pa", "0.00")},
	)
	def := Normalize(p, zerolog.Nop()).Definition
	require.Equal(t, 0.0, *def.Pricing.SavingsPercentage)
}

func TestNormalizeNotABundle(t *testing.T) {
	require.Equal(t, bundle.NotABundle, Normalize(nil, zerolog.Nop()).Kind)
	p := &storefront.Product{ID: "x"}
	p.Variants.Nodes = []storefront.Variant{sfVariant("v", "", "1.00")}
	require.Equal(t, bundle.NotABundle, Normalize(p, zerolog.Nop()).Kind)
}

func TestNormalizeCoercesNonPositiveQuantity(t *testing.T) {
	p := bundleProduct("4", "20.00",
		storefront.VariantComponent{Quantity: 0, ProductVariant: sfVariant("va", "pa", "10.00")},
		storefront.VariantComponent{Quantity: 2, ProductVariant: sfVariant("vb", "pb", "5.00")},
	)
	var buf bytes.Buffer
	def := Normalize(p, zerolog.New(&buf)).Definition
	require.Equal(t, 1, def.Components[0].Quantity)
	require.Equal(t, "20.00", def.Pricing.OriginalPrice.Amount)

	logged := buf.String()
	require.Contains(t, logged, `"level":"warn"`)
	require.Contains(t, logged, `"message":"bundle_component_quantity_coerced"`)
	require.Contains(t, logged, `"bundle_id":"4"`)
	require.Contains(t, logged, `"component_variant_id":"va"`)
	require.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestResolveCachesDefinitions(t *testing.T) {
	sf := &fakeStorefront{products: map[string]*storefront.Product{
		"1": bundleProduct("1", "30.00", storefront.VariantComponent{Quantity: 1, ProductVariant: sfVariant("va", "pa", "40.00")}),
	}}
	svc, err := NewService(ServiceConfig{Store: storeConfig(), Storefront: sf, Cache: cache.NewMemoryStore(nil)})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, "1", Options{})
	require.NoError(t, err)
	second, err := svc.Resolve(ctx, "1", Options{})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Components, second.Components)
	require.True(t, first.Pricing.DiscountValue.Equal(second.Pricing.DiscountValue))
	require.Equal(t, int32(1), atomic.LoadInt32(&sf.calls))

	_, err = svc.Resolve(ctx, "1", Options{SkipCache: true})
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&sf.calls))

	require.NoError(t, svc.Invalidate(ctx, "1"))
	_, err = svc.Resolve(ctx, "1", Options{})
	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&sf.calls))
}

func TestResolveDisabledCache(t *testing.T) {
	sf := &fakeStorefront{products: map[string]*storefront.Product{
		"1": bundleProduct("1", "30.00", storefront.VariantComponent{Quantity: 1, ProductVariant: sfVariant("va", "pa", "40.00")}),
	}}
	cfg := storeConfig()
	cfg.EnableCache = false
	svc, err := NewService(ServiceConfig{Store: cfg, Storefront: sf, Cache: cache.NewMemoryStore(nil)})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := svc.Resolve(context.Background(), "1", Options{})
		require.NoError(t, err)
	}
	require.Equal(t, int32(2), atomic.LoadInt32(&sf.calls))
}

func TestResolveNotABundle(t *testing.T) {
	plain := &storefront.Product{ID: "9"}
	plain.Variants.Nodes = []storefront.Variant{sfVariant("v", "", "1.00")}
	sf := &fakeStorefront{products: map[string]*storefront.Product{"9": plain}}
	svc, err := NewService(ServiceConfig{Store: storeConfig(), Storefront: sf})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), "9", Options{})
	require.True(t, IsNotFound(err))

	res, err := svc.Lookup(context.Background(), "missing", Options{})
	require.NoError(t, err)
	require.False(t, res.IsBundle())
}

func TestResolvePropagatesNetworkErrors(t *testing.T) {
	sf := &fakeStorefront{err: common.NewError(common.CodeNetworkError, "", fmt.Errorf("boom"))}
	svc, err := NewService(ServiceConfig{Store: storeConfig(), Storefront: sf})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), "1", Options{})
	require.Equal(t, common.CodeNetworkError, common.CodeOf(err))
}

func TestResolveHostedStrategy(t *testing.T) {
	min := 2
	hosted := &fakeHosted{defs: map[string]*bundle.Definition{
		"mm": {
			ID:            "mm",
			Type:          bundle.TypeMixAndMatch,
			MinSelections: &min,
			Components: []bundle.Component{{
				ProductID: "p1", Quantity: 1,
				Variants: []bundle.ComponentVariant{{ID: "v1"}},
			}},
		},
	}}
	cfg := storeConfig()
	cfg.APIURL = "https://bundles.example.com"
	cfg.APIKey = "secret"
	sf := &fakeStorefront{}
	svc, err := NewService(ServiceConfig{Store: cfg, Hosted: hosted, Storefront: sf})
	require.NoError(t, err)

	res, err := svc.Lookup(context.Background(), "mm", Options{})
	require.NoError(t, err)
	require.Equal(t, bundle.MixAndMatchBundle, res.Kind)
	require.Zero(t, atomic.LoadInt32(&sf.calls))

	_, err = svc.Resolve(context.Background(), "nope", Options{})
	require.True(t, IsNotFound(err))
}

func TestNewServiceRequiresSource(t *testing.T) {
	_, err := NewService(ServiceConfig{Store: storeConfig()})
	require.Equal(t, common.CodeInvalidConfig, common.CodeOf(err))

	cfg := storeConfig()
	cfg.APIKey = "secret"
	_, err = NewService(ServiceConfig{Store: cfg, Storefront: &fakeStorefront{}})
	require.Equal(t, common.CodeInvalidConfig, common.CodeOf(err))
}

func TestResolveManyPreservesOrder(t *testing.T) {
	products := map[string]*storefront.Product{}
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		products[id] = bundleProduct(id, "1.00", storefront.VariantComponent{Quantity: 1, ProductVariant: sfVariant("v"+id, "p"+id, "2.00")})
	}
	svc, err := NewService(ServiceConfig{Store: storeConfig(), Storefront: &fakeStorefront{products: products}, FanOut: 2})
	require.NoError(t, err)

	defs, err := svc.ResolveMany(context.Background(), ids, Options{})
	require.NoError(t, err)
	require.Len(t, defs, len(ids))
	for i, id := range ids {
		require.Equal(t, id, defs[i].ID)
	}

	_, err = svc.ResolveMany(context.Background(), []string{"a", "zzz"}, Options{})
	require.True(t, IsNotFound(err))
}

package resolver

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/money"
	"github.com/noah-isme/toko-bundles/internal/storefront"
)

var hundred = decimal.NewFromInt(100)

// Normalize converts a raw storefront product into a resolution. The first
// variant carrying components is the bundle variant; a product without one
// is not a bundle. Storefront data can only describe fixed bundles.
// Component quantities below one are read as one and logged at warn.
func Normalize(p *storefront.Product, logger zerolog.Logger) bundle.Resolution {
	if p == nil {
		return bundle.NotBundle()
	}
	var bundleVariant *storefront.Variant
	for i := range p.Variants.Nodes {
		if len(p.Variants.Nodes[i].Components.Nodes) > 0 {
			bundleVariant = &p.Variants.Nodes[i]
			break
		}
	}
	if bundleVariant == nil {
		return bundle.NotBundle()
	}

	currency := money.CurrencyOrDefault(bundleVariant.Price.CurrencyCode)
	original := decimal.Zero
	components := make([]bundle.Component, 0, len(bundleVariant.Components.Nodes))
	for _, node := range bundleVariant.Components.Nodes {
		cv := node.ProductVariant
		qty := node.Quantity
		if qty <= 0 {
			logger.Warn().
				Str("bundle_id", p.ID).
				Str("component_variant_id", cv.ID).
				Int("quantity", qty).
				Msg("bundle_component_quantity_coerced")
			qty = 1
		}
		variant := toComponentVariant(cv)
		comp := bundle.Component{
			ProductID:        cv.ID,
			Title:            cv.Title,
			Variants:         []bundle.ComponentVariant{variant},
			DefaultVariantID: cv.ID,
			Quantity:         qty,
			Required:         true,
		}
		if cv.Product != nil {
			comp.ProductID = cv.Product.ID
			comp.Title = cv.Product.Title
			comp.Handle = cv.Product.Handle
			comp.Image = toImage(cv.Product.FeaturedImage)
		}
		original = original.Add(variant.Price.Decimal().Mul(decimal.NewFromInt(int64(qty))))
		components = append(components, comp)
	}

	listed := money.Money{Amount: bundleVariant.Price.Amount, CurrencyCode: currency}.Decimal()
	savings := original.Sub(listed)
	pct := decimal.Zero
	if original.IsPositive() {
		pct = savings.Div(original).Mul(hundred).Round(2)
	}
	pctFloat, _ := pct.Float64()

	pricing := bundle.Pricing{
		DiscountType:      bundle.DiscountFixedAmount,
		DiscountValue:     savings.Round(2),
		CurrencyCode:      currency,
		OriginalPrice:     ptr(money.New(original, currency)),
		BundlePrice:       ptr(money.New(listed, currency)),
		Savings:           ptr(money.New(savings, currency)),
		SavingsPercentage: &pctFloat,
	}
	// Storefront data carries no discount metadata, so a whole-number
	// percentage is taken to mean a percentage discount.
	if pct.Equal(pct.Truncate(0)) {
		pricing.DiscountType = bundle.DiscountPercentage
		pricing.DiscountValue = pct
	}

	def := &bundle.Definition{
		ID:               p.ID,
		Title:            p.Title,
		Handle:           p.Handle,
		Description:      p.Description,
		Type:             bundle.TypeFixed,
		Components:       components,
		Pricing:          pricing,
		AvailableForSale: bundleVariant.AvailableForSale,
		Image:            toImage(p.FeaturedImage),
		VariantID:        bundleVariant.ID,
	}
	return bundle.Classify(def)
}

func toComponentVariant(v storefront.Variant) bundle.ComponentVariant {
	currency := money.CurrencyOrDefault(v.Price.CurrencyCode)
	out := bundle.ComponentVariant{
		ID:                v.ID,
		Title:             v.Title,
		Price:             money.New(money.Money{Amount: v.Price.Amount}.Decimal(), currency),
		AvailableForSale:  v.AvailableForSale,
		QuantityAvailable: v.QuantityAvailable,
		Image:             toImage(v.Image),
	}
	if v.SKU != nil {
		out.SKU = *v.SKU
	}
	if v.CompareAtPrice != nil {
		out.CompareAtPrice = ptr(money.New(money.Money{Amount: v.CompareAtPrice.Amount}.Decimal(), v.CompareAtPrice.CurrencyCode))
	}
	for _, opt := range v.SelectedOptions {
		out.SelectedOptions = append(out.SelectedOptions, bundle.SelectedOption{Name: opt.Name, Value: opt.Value})
	}
	return out
}

func toImage(img *storefront.Image) *bundle.Image {
	if img == nil || img.URL == "" {
		return nil
	}
	out := &bundle.Image{URL: img.URL}
	if img.AltText != nil {
		out.AltText = *img.AltText
	}
	return out
}

func ptr[T any](v T) *T { return &v }

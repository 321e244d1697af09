package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/money"
)

var hundred = decimal.NewFromInt(100)

// Item describes one priced component line.
type Item struct {
	ProductID string
	VariantID string
	Qty       int
	UnitPrice decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Original  decimal.Decimal
	Bundle    decimal.Decimal
	Savings   decimal.Decimal
	Percent   float64
	LineTotal []decimal.Decimal
}

// Apply evaluates the discount rule against the original total. The result is
// rounded to cents and never negative.
func Apply(original decimal.Decimal, p bundle.Pricing) decimal.Decimal {
	var price decimal.Decimal
	switch p.DiscountType {
	case bundle.DiscountPercentage:
		price = original.Mul(decimal.NewFromInt(1).Sub(p.DiscountValue.Div(hundred)))
	case bundle.DiscountFixedAmount:
		price = original.Sub(p.DiscountValue)
	case bundle.DiscountFixedPrice:
		price = p.DiscountValue
	case bundle.DiscountCustom:
		if p.BundlePrice != nil {
			price = p.BundlePrice.Decimal()
		} else {
			price = original
		}
	default:
		price = original
	}
	price = price.Round(2)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// Compute calculates bundle totals for the given lines.
func Compute(items []Item, p bundle.Pricing) Summary {
	sum := Summary{LineTotal: make([]decimal.Decimal, len(items))}
	for i, it := range items {
		line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty)))
		sum.LineTotal[i] = line
		sum.Original = sum.Original.Add(line)
	}
	sum.Bundle = Apply(sum.Original, p)
	sum.Savings = sum.Original.Sub(sum.Bundle)
	sum.Percent = Percent(sum.Savings, sum.Original)
	return sum
}

// Percent is savings/original*100 rounded to two places, 0 for a
// non-positive original.
func Percent(savings, original decimal.Decimal) float64 {
	if !original.IsPositive() {
		return 0
	}
	f, _ := savings.Div(original).Mul(hundred).Round(2).Float64()
	return f
}

// Items resolves the component set of def into priced lines.
func Items(def *bundle.Definition, selections []bundle.Selection) []Item {
	resolved := bundle.ResolveComponents(def, selections)
	out := make([]Item, 0, len(resolved))
	for _, rc := range resolved {
		out = append(out, Item{
			ProductID: rc.ProductID(),
			VariantID: rc.VariantID(),
			Qty:       rc.Quantity,
			UnitPrice: rc.Variant.Price.Decimal(),
		})
	}
	return out
}

// Price is the pure calculation behind CalculatePrice.
func Price(def *bundle.Definition, selections []bundle.Selection, now time.Time) *bundle.PriceResult {
	currency := def.CurrencyCode()
	items := Items(def, selections)
	sum := Compute(items, def.Pricing)

	breakdown := make([]bundle.ComponentPrice, 0, len(items))
	for i, it := range items {
		breakdown = append(breakdown, bundle.ComponentPrice{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			UnitPrice: money.New(it.UnitPrice, currency),
			Quantity:  it.Qty,
			LineTotal: money.New(sum.LineTotal[i], currency),
		})
	}
	return &bundle.PriceResult{
		OriginalPrice:     money.New(sum.Original, currency),
		BundlePrice:       money.New(sum.Bundle, currency),
		Savings:           money.New(sum.Savings, currency),
		SavingsPercentage: sum.Percent,
		Breakdown:         breakdown,
		CachedAt:          now.UTC(),
	}
}

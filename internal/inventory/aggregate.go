// Package inventory reduces per-component stock into a bundle-level verdict.
package inventory

import (
	"time"

	"github.com/noah-isme/toko-bundles/internal/bundle"
)

const (
	// LowStockThreshold is the highest known quantity still reported as limited.
	LowStockThreshold = 5
	// UnboundedQuantity is reported when no component bounds the bundle.
	UnboundedQuantity = 99
)

// Stock is the availability of one variant at check time.
type Stock struct {
	AvailableForSale  bool
	QuantityAvailable *int
}

// ClassifyStatus maps a stock snapshot to a component status. Preorder is
// never produced here.
func ClassifyStatus(s Stock) bundle.InventoryStatus {
	switch {
	case !s.AvailableForSale:
		return bundle.StatusOutOfStock
	case s.QuantityAvailable == nil:
		return bundle.StatusAvailable
	case *s.QuantityAvailable <= 0:
		return bundle.StatusOutOfStock
	case *s.QuantityAvailable <= LowStockThreshold:
		return bundle.StatusLimited
	default:
		return bundle.StatusAvailable
	}
}

// MaxAddable is floor(quantity/required), or nil when either side is unknown.
func MaxAddable(quantity *int, required int) *int {
	if quantity == nil || required <= 0 {
		return nil
	}
	n := *quantity / required
	if n < 0 {
		n = 0
	}
	return &n
}

// Evaluate builds the verdict for the resolved component set of def. Variants
// missing from live fall back to the snapshot carried by the definition.
func Evaluate(def *bundle.Definition, selections []bundle.Selection, live map[string]Stock, now time.Time) *bundle.Inventory {
	resolved := bundle.ResolveComponents(def, selections)
	components := make([]bundle.ComponentInventory, 0, len(resolved))
	for _, rc := range resolved {
		stock, ok := live[rc.VariantID()]
		if !ok {
			stock = Stock{AvailableForSale: rc.Variant.AvailableForSale, QuantityAvailable: rc.Variant.QuantityAvailable}
		}
		components = append(components, bundle.ComponentInventory{
			ProductID:         rc.ProductID(),
			VariantID:         rc.VariantID(),
			Title:             rc.Component.Title,
			Status:            ClassifyStatus(stock),
			QuantityAvailable: copyInt(stock.QuantityAvailable),
			RequiredQuantity:  rc.Quantity,
			MaxAddable:        MaxAddable(stock.QuantityAvailable, rc.Quantity),
		})
	}
	return Aggregate(components, now)
}

// Aggregate reduces component snapshots. Any out-of-stock component makes the
// bundle unavailable; a limited bundle stays purchasable.
func Aggregate(components []bundle.ComponentInventory, now time.Time) *bundle.Inventory {
	inv := &bundle.Inventory{
		Available:   true,
		Status:      bundle.StatusAvailable,
		MaxQuantity: UnboundedQuantity,
		Components:  components,
		CachedAt:    now.UTC(),
	}
	if inv.Components == nil {
		inv.Components = []bundle.ComponentInventory{}
	}

	limiting := -1
	firstOut := -1
	bounded := false
	for i, c := range components {
		switch c.Status {
		case bundle.StatusOutOfStock:
			inv.Available = false
			inv.Status = bundle.StatusOutOfStock
			if firstOut < 0 {
				firstOut = i
			}
		case bundle.StatusLimited:
			if inv.Status != bundle.StatusOutOfStock {
				inv.Status = bundle.StatusLimited
			}
		}
		if c.MaxAddable == nil {
			continue
		}
		if !bounded || *c.MaxAddable < inv.MaxQuantity {
			inv.MaxQuantity = *c.MaxAddable
			limiting = i
			bounded = true
		}
	}

	if inv.Status == bundle.StatusAvailable {
		return inv
	}
	if limiting < 0 {
		limiting = firstOut
	}
	if limiting >= 0 {
		lc := components[limiting]
		inv.LimitingComponent = &lc
	}
	return inv
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Package cart turns a resolved bundle into tagged storefront cart lines and
// submits them.
package cart

import (
	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/cartattr"
	"github.com/noah-isme/toko-bundles/internal/storefront"
)

// Input describes one add-to-cart request.
type Input struct {
	Selections []bundle.Selection `json:"selectedComponents" validate:"omitempty,dive"`
	// Quantity is the number of bundles. Zero means one.
	Quantity int    `json:"quantity" validate:"gte=0,lte=999"`
	CartID   string `json:"cartId,omitempty"`
	// Attributes are appended to every generated line.
	Attributes []cartattr.Attribute `json:"attributes,omitempty" validate:"omitempty,dive"`
	// IdempotencyKey is stored on every line so duplicates can be traced.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// BundleQuantity returns the requested bundle count, defaulting to one.
func (in Input) BundleQuantity() int {
	if in.Quantity <= 0 {
		return 1
	}
	return in.Quantity
}

// BuildBundleCartLines emits one line per resolved component. Line quantity is
// the component quantity times the bundle quantity.
func BuildBundleCartLines(def *bundle.Definition, in Input) []storefront.CartLineInput {
	resolved := bundle.ResolveComponents(def, in.Selections)
	qty := in.BundleQuantity()
	lines := make([]storefront.CartLineInput, 0, len(resolved))
	for i, rc := range resolved {
		tags := cartattr.Tags{
			BundleParent:       true,
			BundleID:           def.ID,
			ComponentIndex:     i,
			TotalComponents:    len(resolved),
			ComponentProductID: rc.ProductID(),
			RequestID:          in.IdempotencyKey,
		}
		attrs := tags.Attributes()
		attrs = append(attrs, in.Attributes...)
		lines = append(lines, storefront.CartLineInput{
			MerchandiseID: rc.VariantID(),
			Quantity:      rc.Quantity * qty,
			Attributes:    attrs,
		})
	}
	return lines
}

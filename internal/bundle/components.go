package bundle

import (
	"sort"
	"strconv"
	"strings"
)

// ResolvedComponent is a component paired with the concrete variant and
// per-bundle quantity chosen for it.
type ResolvedComponent struct {
	Component *Component
	Variant   *ComponentVariant
	Quantity  int
}

// ProductID returns the component's product id.
func (rc ResolvedComponent) ProductID() string {
	return rc.Component.ProductID
}

// VariantID returns the resolved variant id.
func (rc ResolvedComponent) VariantID() string {
	return rc.Variant.ID
}

// ResolveComponents returns the components to price, stock-check, or add to a
// cart. A non-empty selection list overrides the definition; otherwise each
// component contributes its default variant at its own quantity. Selections
// that reference unknown products or variants are skipped here; callers that
// need to reject them run ValidateSelection first.
func ResolveComponents(def *Definition, selections []Selection) []ResolvedComponent {
	if def == nil {
		return nil
	}
	if len(selections) > 0 {
		out := make([]ResolvedComponent, 0, len(selections))
		for _, sel := range selections {
			comp, _, ok := def.Component(sel.ProductID)
			if !ok {
				continue
			}
			variant, ok := comp.Variant(sel.VariantID)
			if !ok {
				continue
			}
			out = append(out, ResolvedComponent{Component: comp, Variant: variant, Quantity: sel.Quantity})
		}
		return out
	}
	out := make([]ResolvedComponent, 0, len(def.Components))
	for i := range def.Components {
		comp := &def.Components[i]
		variant, ok := comp.DefaultVariant()
		if !ok {
			continue
		}
		out = append(out, ResolvedComponent{Component: comp, Variant: variant, Quantity: comp.Quantity})
	}
	return out
}

// DefaultSelections expresses the definition's defaults as a selection list.
func DefaultSelections(def *Definition) []Selection {
	resolved := ResolveComponents(def, nil)
	out := make([]Selection, 0, len(resolved))
	for _, rc := range resolved {
		out = append(out, Selection{ProductID: rc.ProductID(), VariantID: rc.VariantID(), Quantity: rc.Quantity})
	}
	return out
}

// SelectionSignature is the cache discriminator for a selection list: sorted
// "variantId:quantity" pairs joined by commas, empty for no selection.
func SelectionSignature(selections []Selection) string {
	if len(selections) == 0 {
		return ""
	}
	parts := make([]string, 0, len(selections))
	for _, sel := range selections {
		parts = append(parts, sel.VariantID+":"+strconv.Itoa(sel.Quantity))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// CacheKey combines a bundle id with the selection signature. An empty
// selection collapses to the bare bundle id.
func CacheKey(bundleID string, selections []Selection) string {
	sig := SelectionSignature(selections)
	if sig == "" {
		return bundleID
	}
	return bundleID + "|" + sig
}

// TotalQuantity sums the quantities of a selection list.
func TotalQuantity(selections []Selection) int {
	total := 0
	for _, sel := range selections {
		total += sel.Quantity
	}
	return total
}

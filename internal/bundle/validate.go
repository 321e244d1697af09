package bundle

import (
	"fmt"

	"github.com/noah-isme/toko-bundles/internal/common"
)

// ValidationResult reports the first violation found in a selection list.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Err converts an invalid result into the matching AppError.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return common.NewError(r.Code, r.Error, nil)
}

func invalid(code, format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Code: code, Error: fmt.Sprintf(format, args...)}
}

// ValidateSelection checks a customer selection against the definition.
// Fixed bundles always pass. Mix-and-match selections must respect the
// selection bounds, reference existing products and variants, and honour
// per-component quantity bounds. The first violation is returned.
func ValidateSelection(def *Definition, selections []Selection) ValidationResult {
	if def == nil {
		return invalid(common.CodeInvalidSelection, "Bundle definition is missing")
	}
	if def.Type != TypeMixAndMatch {
		return ValidationResult{Valid: true}
	}

	total := TotalQuantity(selections)
	if def.MinSelections != nil && total < *def.MinSelections {
		return invalid(common.CodeSelectionIncomplete, "Please select at least %d items", *def.MinSelections)
	}
	if def.MaxSelections != nil && total > *def.MaxSelections {
		return invalid(common.CodeInvalidSelection, "Please select no more than %d items", *def.MaxSelections)
	}

	for _, sel := range selections {
		comp, _, ok := def.Component(sel.ProductID)
		if !ok {
			return invalid(common.CodeInvalidSelection, "Invalid product selection")
		}
		if _, ok := comp.Variant(sel.VariantID); !ok {
			return invalid(common.CodeInvalidSelection, "Invalid variant selection for %s", componentLabel(comp))
		}
		if comp.AllowQuantitySelection {
			if comp.MinQuantity != nil && sel.Quantity < *comp.MinQuantity {
				return invalid(common.CodeInvalidSelection, "%s requires a minimum quantity of %d", componentLabel(comp), *comp.MinQuantity)
			}
			if comp.MaxQuantity != nil && sel.Quantity > *comp.MaxQuantity {
				return invalid(common.CodeInvalidSelection, "%s allows a maximum quantity of %d", componentLabel(comp), *comp.MaxQuantity)
			}
		}
	}
	return ValidationResult{Valid: true}
}

// ValidateResolvable rejects a non-empty selection list that names products
// or variants the definition does not carry. It applies to every bundle type,
// so a fixed bundle never silently loses submitted selections.
func ValidateResolvable(def *Definition, selections []Selection) ValidationResult {
	if len(selections) == 0 {
		return ValidationResult{Valid: true}
	}
	if def == nil {
		return invalid(common.CodeInvalidSelection, "Bundle definition is missing")
	}
	if got := len(ResolveComponents(def, selections)); got < len(selections) {
		return invalid(common.CodeInvalidSelection, "%d of %d selections do not match this bundle", len(selections)-got, len(selections))
	}
	return ValidationResult{Valid: true}
}

func componentLabel(c *Component) string {
	if c.Title != "" {
		return c.Title
	}
	return c.ProductID
}

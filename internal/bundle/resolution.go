package bundle

import "fmt"

// Kind is the outcome of deciding whether a catalog product is a bundle.
type Kind int

const (
	NotABundle Kind = iota
	FixedBundle
	MixAndMatchBundle
)

func (k Kind) String() string {
	switch k {
	case FixedBundle:
		return "fixed"
	case MixAndMatchBundle:
		return "mix_and_match"
	default:
		return "not_a_bundle"
	}
}

// Resolution is decided once at the boundary where raw catalog data enters.
// Definition is nil exactly when Kind is NotABundle.
type Resolution struct {
	Kind       Kind
	Definition *Definition
}

// NotBundle returns the NotABundle resolution.
func NotBundle() Resolution {
	return Resolution{Kind: NotABundle}
}

// Classify wraps a definition into its resolution. A nil definition or one
// without components is not a bundle.
func Classify(def *Definition) Resolution {
	if def == nil || len(def.Components) == 0 {
		return NotBundle()
	}
	if def.Type == TypeMixAndMatch {
		return Resolution{Kind: MixAndMatchBundle, Definition: def}
	}
	return Resolution{Kind: FixedBundle, Definition: def}
}

// IsBundle reports whether the resolution carries a definition.
func (r Resolution) IsBundle() bool {
	return r.Kind != NotABundle && r.Definition != nil
}

// CheckIntegrity verifies the structural invariants of a definition: fixed
// bundles must have a resolvable default variant for every component, and
// every component needs a positive per-bundle quantity.
func CheckIntegrity(def *Definition) error {
	if def == nil {
		return fmt.Errorf("bundle: nil definition")
	}
	for i := range def.Components {
		c := &def.Components[i]
		if c.Quantity <= 0 {
			return fmt.Errorf("bundle %s: component %s has non-positive quantity %d", def.ID, c.ProductID, c.Quantity)
		}
		if len(c.Variants) == 0 {
			return fmt.Errorf("bundle %s: component %s has no variants", def.ID, c.ProductID)
		}
		if def.Type == TypeFixed && c.DefaultVariantID != "" {
			if _, ok := c.Variant(c.DefaultVariantID); !ok {
				return fmt.Errorf("bundle %s: component %s default variant %s not found", def.ID, c.ProductID, c.DefaultVariantID)
			}
		}
	}
	return nil
}

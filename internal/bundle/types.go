package bundle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-bundles/internal/money"
)

// Type distinguishes predetermined bundles from customer-assembled ones.
type Type string

const (
	TypeFixed       Type = "fixed"
	TypeMixAndMatch Type = "mix_and_match"
)

// DiscountType selects how Pricing.DiscountValue is interpreted.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
	DiscountFixedPrice  DiscountType = "fixed_price"
	DiscountCustom      DiscountType = "custom"
)

// InventoryStatus classifies the stock position of a component or bundle.
type InventoryStatus string

const (
	StatusAvailable  InventoryStatus = "available"
	StatusLimited    InventoryStatus = "limited"
	StatusOutOfStock InventoryStatus = "out_of_stock"
	StatusPreorder   InventoryStatus = "preorder"
)

// Image is a catalog image reference.
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// SelectedOption is one option name/value pair of a variant, e.g. Size: M.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ComponentVariant is one purchasable variant of a component product.
type ComponentVariant struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	Price             money.Money      `json:"price"`
	CompareAtPrice    *money.Money     `json:"compareAtPrice,omitempty"`
	SKU               string           `json:"sku,omitempty"`
	AvailableForSale  bool             `json:"availableForSale"`
	QuantityAvailable *int             `json:"quantityAvailable,omitempty"`
	Image             *Image           `json:"image,omitempty"`
	SelectedOptions   []SelectedOption `json:"selectedOptions,omitempty"`
}

// Component is one product that makes up part of a bundle.
type Component struct {
	ProductID              string             `json:"productId"`
	Title                  string             `json:"title"`
	Handle                 string             `json:"handle"`
	Image                  *Image             `json:"image,omitempty"`
	Variants               []ComponentVariant `json:"variants"`
	DefaultVariantID       string             `json:"defaultVariantId,omitempty"`
	Quantity               int                `json:"quantity"`
	AllowQuantitySelection bool               `json:"allowQuantitySelection,omitempty"`
	MinQuantity            *int               `json:"minQuantity,omitempty"`
	MaxQuantity            *int               `json:"maxQuantity,omitempty"`
	Required               bool               `json:"required"`
}

// Pricing describes the discount model and, for fixed bundles, the figures
// computed at resolution time.
type Pricing struct {
	DiscountType      DiscountType    `json:"discountType"`
	DiscountValue     decimal.Decimal `json:"discountValue"`
	CurrencyCode      string          `json:"currencyCode,omitempty"`
	OriginalPrice     *money.Money    `json:"originalPrice,omitempty"`
	BundlePrice       *money.Money    `json:"bundlePrice,omitempty"`
	Savings           *money.Money    `json:"savings,omitempty"`
	SavingsPercentage *float64        `json:"savingsPercentage,omitempty"`
}

// Definition is the resolved, normalized bundle. It is never mutated after
// resolution; recalculations produce new values.
type Definition struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Handle           string      `json:"handle"`
	Description      string      `json:"description,omitempty"`
	Type             Type        `json:"bundleType"`
	Components       []Component `json:"components"`
	Pricing          Pricing     `json:"pricing"`
	MinSelections    *int        `json:"minSelections,omitempty"`
	MaxSelections    *int        `json:"maxSelections,omitempty"`
	AvailableForSale bool        `json:"availableForSale"`
	Image            *Image      `json:"image,omitempty"`
	VariantID        string      `json:"variantId,omitempty"`
}

// Selection is one customer choice within a mix-and-match bundle.
type Selection struct {
	ProductID string `json:"productId" validate:"required"`
	VariantID string `json:"variantId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

// ComponentInventory is the availability snapshot of one checked component.
type ComponentInventory struct {
	ProductID         string          `json:"productId"`
	VariantID         string          `json:"variantId"`
	Title             string          `json:"title,omitempty"`
	Status            InventoryStatus `json:"status"`
	QuantityAvailable *int            `json:"quantityAvailable,omitempty"`
	RequiredQuantity  int             `json:"requiredQuantity"`
	MaxAddable        *int            `json:"maxAddable,omitempty"`
}

// Inventory is the aggregate stock verdict for a bundle.
type Inventory struct {
	Available         bool                 `json:"available"`
	Status            InventoryStatus      `json:"status"`
	MaxQuantity       int                  `json:"maxQuantity"`
	LimitingComponent *ComponentInventory  `json:"limitingComponent,omitempty"`
	Components        []ComponentInventory `json:"components"`
	CachedAt          time.Time            `json:"cachedAt"`
}

// ComponentPrice is one row of a price breakdown.
type ComponentPrice struct {
	ProductID string      `json:"productId"`
	VariantID string      `json:"variantId"`
	UnitPrice money.Money `json:"unitPrice"`
	Quantity  int         `json:"quantity"`
	LineTotal money.Money `json:"lineTotal"`
}

// PriceResult is the aggregate pricing verdict for a bundle.
type PriceResult struct {
	OriginalPrice     money.Money      `json:"originalPrice"`
	BundlePrice       money.Money      `json:"bundlePrice"`
	Savings           money.Money      `json:"savings"`
	SavingsPercentage float64          `json:"savingsPercentage"`
	Breakdown         []ComponentPrice `json:"breakdown"`
	CachedAt          time.Time        `json:"cachedAt"`
}

// CurrencyCode returns the definition's currency, defaulting to USD.
func (d *Definition) CurrencyCode() string {
	if d == nil {
		return money.DefaultCurrency
	}
	return money.CurrencyOrDefault(d.Pricing.CurrencyCode)
}

// Component looks up a component by product id.
func (d *Definition) Component(productID string) (*Component, int, bool) {
	if d == nil {
		return nil, -1, false
	}
	for i := range d.Components {
		if d.Components[i].ProductID == productID {
			return &d.Components[i], i, true
		}
	}
	return nil, -1, false
}

// Variant looks up a variant of the component by id.
func (c *Component) Variant(variantID string) (*ComponentVariant, bool) {
	for i := range c.Variants {
		if c.Variants[i].ID == variantID {
			return &c.Variants[i], true
		}
	}
	return nil, false
}

// DefaultVariant returns the configured default variant, or the first variant
// when no default is configured or the configured one is missing.
func (c *Component) DefaultVariant() (*ComponentVariant, bool) {
	if len(c.Variants) == 0 {
		return nil, false
	}
	if c.DefaultVariantID != "" {
		if v, ok := c.Variant(c.DefaultVariantID); ok {
			return v, true
		}
	}
	return &c.Variants[0], true
}

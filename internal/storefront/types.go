package storefront

import (
	"encoding/json"
	"strings"

	"github.com/noah-isme/toko-bundles/internal/cartattr"
)

// MoneyV2 is the storefront money shape.
type MoneyV2 struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type Image struct {
	URL     string  `json:"url"`
	AltText *string `json:"altText"`
}

type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProductRef is the parent product of a component variant.
type ProductRef struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Handle        string `json:"handle"`
	FeaturedImage *Image `json:"featuredImage"`
}

// Variant is a product variant as returned by the product and nodes queries.
// Components is only populated on the top-level variants of a product.
type Variant struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	SKU               *string          `json:"sku"`
	AvailableForSale  bool             `json:"availableForSale"`
	QuantityAvailable *int             `json:"quantityAvailable"`
	Price             MoneyV2          `json:"price"`
	CompareAtPrice    *MoneyV2         `json:"compareAtPrice"`
	Image             *Image           `json:"image"`
	SelectedOptions   []SelectedOption `json:"selectedOptions"`
	Product           *ProductRef      `json:"product"`
	Components        struct {
		Nodes []VariantComponent `json:"nodes"`
	} `json:"components"`
}

// VariantComponent is one sub-item of a bundle variant.
type VariantComponent struct {
	Quantity       int     `json:"quantity"`
	ProductVariant Variant `json:"productVariant"`
}

type Product struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Handle           string `json:"handle"`
	Description      string `json:"description"`
	AvailableForSale bool   `json:"availableForSale"`
	FeaturedImage    *Image `json:"featuredImage"`
	Variants         struct {
		Nodes []Variant `json:"nodes"`
	} `json:"variants"`
}

// VariantStock is the availability snapshot for one variant.
type VariantStock struct {
	ID                string `json:"id"`
	AvailableForSale  bool   `json:"availableForSale"`
	QuantityAvailable *int   `json:"quantityAvailable"`
}

// CartLineInput is one line submitted to cartCreate or cartLinesAdd.
type CartLineInput struct {
	MerchandiseID string               `json:"merchandiseId"`
	Quantity      int                  `json:"quantity"`
	Attributes    []cartattr.Attribute `json:"attributes,omitempty"`
}

// UserError is a mutation-level rejection.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code"`
}

// CartMutationResult carries the raw cart payload and any user errors.
type CartMutationResult struct {
	Cart       json.RawMessage `json:"cart"`
	UserErrors []UserError     `json:"userErrors"`
}

// GraphQLError is one entry of the top-level errors list.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// GraphQLErrors is returned when the response carries a non-empty errors list.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, item := range e {
		msgs = append(msgs, item.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

package storefront

const variantFields = `
fragment VariantFields on ProductVariant {
  id
  title
  sku
  availableForSale
  quantityAvailable
  price { amount currencyCode }
  compareAtPrice { amount currencyCode }
  image { url altText }
  selectedOptions { name value }
  product { id title handle featuredImage { url altText } }
}
`

const productFields = `
fragment ProductFields on Product {
  id
  title
  handle
  description
  availableForSale
  featuredImage { url altText }
  variants(first: 50) {
    nodes {
      ...VariantFields
      components(first: 50) {
        nodes {
          quantity
          productVariant { ...VariantFields }
        }
      }
    }
  }
}
`

const productByIDQuery = `
query BundleProductByID($id: ID!) {
  product(id: $id) { ...ProductFields }
}
` + productFields + variantFields

const productByHandleQuery = `
query BundleProductByHandle($handle: String!) {
  product(handle: $handle) { ...ProductFields }
}
` + productFields + variantFields

const variantInventoryQuery = `
query BundleVariantInventory($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on ProductVariant {
      id
      availableForSale
      quantityAvailable
    }
  }
}
`

const cartFields = `
fragment CartFields on Cart {
  id
  checkoutUrl
  totalQuantity
  cost {
    subtotalAmount { amount currencyCode }
    totalAmount { amount currencyCode }
  }
  lines(first: 100) {
    nodes {
      id
      quantity
      merchandise { ... on ProductVariant { id title } }
      attributes { key value }
    }
  }
}
`

const cartCreateMutation = `
mutation BundleCartCreate($lines: [CartLineInput!]!) {
  cartCreate(input: { lines: $lines }) {
    cart { ...CartFields }
    userErrors { field message code }
  }
}
` + cartFields

const cartLinesAddMutation = `
mutation BundleCartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!) {
  cartLinesAdd(cartId: $cartId, lines: $lines) {
    cart { ...CartFields }
    userErrors { field message code }
  }
}
` + cartFields

const shopQuery = `query BundlePing { shop { name } }`

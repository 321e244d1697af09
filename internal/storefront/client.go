// Package storefront talks to the storefront GraphQL API: bundle product
// lookups, variant stock and the two cart mutations.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/obs"
	"github.com/noah-isme/toko-bundles/internal/resilience"
)

// AccessTokenHeader authenticates storefront requests.
const AccessTokenHeader = "X-Shopify-Storefront-Access-Token"

const target = "storefront"

// ClientConfig wires a Client.
type ClientConfig struct {
	Endpoint    string
	AccessToken string
	HTTP        resilience.HTTPClient
	Logger      *zerolog.Logger
}

// Client is a GraphQL client for one store.
type Client struct {
	endpoint string
	token    string
	http     resilience.HTTPClient
	logger   zerolog.Logger
}

// NewClient validates the endpoint. A missing access token is reported by
// each call rather than here, so a hosted-backend setup can still construct
// the client.
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, common.NewError(common.CodeInvalidConfig, "storefront endpoint is required", nil)
	}
	if cfg.HTTP.Client == nil {
		cfg.HTTP = resilience.NewOutbound(resilience.OutboundConfig{Target: target, MaxAttempts: 3})
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Client{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.AccessToken),
		http:     cfg.HTTP,
		logger:   logger,
	}, nil
}

var numericID = regexp.MustCompile(`^[0-9]+$`)

// ProductGID normalises a bundle identifier. A storefront GID passes through,
// a bare number becomes a product GID, anything else is treated as a handle.
func ProductGID(identifier string) (id string, isHandle bool) {
	identifier = strings.TrimSpace(identifier)
	switch {
	case strings.HasPrefix(identifier, "gid://"):
		return identifier, false
	case numericID.MatchString(identifier):
		return "gid://shopify/Product/" + identifier, false
	default:
		return identifier, true
	}
}

// Product fetches a product with its variants and their bundle components.
// It returns (nil, nil) when the store has no such product.
func (c *Client) Product(ctx context.Context, identifier string) (*Product, error) {
	id, isHandle := ProductGID(identifier)
	query, vars := productByIDQuery, map[string]any{"id": id}
	if isHandle {
		query, vars = productByHandleQuery, map[string]any{"handle": id}
	}
	var data struct {
		Product *Product `json:"product"`
	}
	if err := c.do(ctx, "product", query, vars, &data, false); err != nil {
		return nil, readError(err)
	}
	return data.Product, nil
}

// VariantInventory returns stock for the given variant ids keyed by id.
// Ids the store does not know are absent from the map.
func (c *Client) VariantInventory(ctx context.Context, ids []string) (map[string]VariantStock, error) {
	out := make(map[string]VariantStock, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var data struct {
		Nodes []*VariantStock `json:"nodes"`
	}
	if err := c.do(ctx, "variant_inventory", variantInventoryQuery, map[string]any{"ids": ids}, &data, false); err != nil {
		return nil, readError(err)
	}
	for _, node := range data.Nodes {
		if node != nil && node.ID != "" {
			out[node.ID] = *node
		}
	}
	return out, nil
}

// CartCreate creates a cart holding lines. It is attempted once.
func (c *Client) CartCreate(ctx context.Context, lines []CartLineInput) (*CartMutationResult, error) {
	var data struct {
		CartCreate *CartMutationResult `json:"cartCreate"`
	}
	if err := c.do(ctx, "cart_create", cartCreateMutation, map[string]any{"lines": lines}, &data, true); err != nil {
		return nil, err
	}
	if data.CartCreate == nil {
		return nil, common.NewError(common.CodeCartError, "", errors.New("empty cartCreate payload"))
	}
	return data.CartCreate, nil
}

// CartLinesAdd appends lines to an existing cart. It is attempted once.
func (c *Client) CartLinesAdd(ctx context.Context, cartID string, lines []CartLineInput) (*CartMutationResult, error) {
	var data struct {
		CartLinesAdd *CartMutationResult `json:"cartLinesAdd"`
	}
	vars := map[string]any{"cartId": cartID, "lines": lines}
	if err := c.do(ctx, "cart_lines_add", cartLinesAddMutation, vars, &data, true); err != nil {
		return nil, err
	}
	if data.CartLinesAdd == nil {
		return nil, common.NewError(common.CodeCartError, "", errors.New("empty cartLinesAdd payload"))
	}
	return data.CartLinesAdd, nil
}

// Ping issues a minimal query. Used by readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	var data struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	return c.do(ctx, "ping", shopQuery, nil, &data, false)
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors GraphQLErrors   `json:"errors"`
}

// do posts one GraphQL operation. Transport and status faults come back as
// AppErrors; a populated errors list comes back as GraphQLErrors so callers
// can classify it.
func (c *Client) do(ctx context.Context, op, query string, vars map[string]any, out any, mutation bool) error {
	if c.token == "" {
		return common.NewError(common.CodeInvalidConfig, "storefront access token is required", nil)
	}
	ctx, span := obs.StartSpan(ctx, "storefront."+op, "", attribute.String("graphql.operation", op))
	defer span.End()
	start := time.Now()
	defer obs.ObserveUpstream(target, op, start)

	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return common.NewError(common.CodeInvalidConfig, "invalid storefront endpoint", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(AccessTokenHeader, c.token)

	client := c.http
	if mutation {
		client = client.WithMaxAttempts(1)
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return common.NewError(common.CodeNetworkError, "", fmt.Errorf("storefront %s: %w", op, err))
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return common.NewError(common.CodeNetworkError, "", fmt.Errorf("read storefront %s: %w", op, err))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return common.NewError(common.CodeRateLimited, "", fmt.Errorf("storefront %s: %s", op, resp.Status))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		return common.NewError(common.CodeNetworkError, "", fmt.Errorf("storefront %s: %s", op, resp.Status))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return common.NewError(common.CodeNetworkError, "", fmt.Errorf("decode storefront %s: %w", op, err))
	}
	if len(envelope.Errors) > 0 {
		c.logger.Warn().Str("operation", op).Err(envelope.Errors).Msg("storefront_graphql_errors")
		span.SetStatus(codes.Error, "graphql errors")
		return envelope.Errors
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return common.NewError(common.CodeNetworkError, "", fmt.Errorf("decode storefront %s data: %w", op, err))
	}
	return nil
}

// readError maps a GraphQL errors list on a read to UNKNOWN_ERROR.
func readError(err error) error {
	var gqlErrs GraphQLErrors
	if errors.As(err, &gqlErrs) {
		return common.NewError(common.CodeUnknownError, "", err)
	}
	return err
}

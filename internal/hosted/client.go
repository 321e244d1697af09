// Package hosted is the client for the hosted bundle backend, which serves
// pre-normalised definitions, inventory verdicts and prices.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/obs"
	"github.com/noah-isme/toko-bundles/internal/resilience"
)

const (
	APIKeyHeader     = "X-API-Key"
	ShopDomainHeader = obs.ShopDomainHeader

	target = "hosted"
)

// ClientConfig wires a Client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	ShopDomain string
	HTTP       resilience.HTTPClient
	Logger     *zerolog.Logger
}

// Client calls the hosted backend for one store.
type Client struct {
	baseURL    string
	apiKey     string
	shopDomain string
	http       resilience.HTTPClient
	logger     zerolog.Logger
}

// NewClient requires both a base URL and an API key.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, common.NewError(common.CodeInvalidConfig, "hosted backend requires apiUrl and apiKey", nil)
	}
	if cfg.HTTP.Client == nil {
		cfg.HTTP = resilience.NewOutbound(resilience.OutboundConfig{Target: target, MaxAttempts: 3})
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Client{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		shopDomain: strings.TrimSpace(cfg.ShopDomain),
		http:       cfg.HTTP,
		logger:     logger,
	}, nil
}

type selectionBody struct {
	SelectedComponents []bundle.Selection `json:"selectedComponents"`
}

// Bundle fetches an already-normalised definition.
func (c *Client) Bundle(ctx context.Context, id string) (*bundle.Definition, error) {
	var out struct {
		Bundle *bundle.Definition `json:"bundle"`
	}
	if err := c.do(ctx, http.MethodGet, id, "", nil, &out); err != nil {
		return nil, err
	}
	if out.Bundle == nil {
		return nil, common.NewError(common.CodeBundleNotFound, "", nil)
	}
	return out.Bundle, nil
}

// Inventory asks the backend for the bundle's stock verdict.
func (c *Client) Inventory(ctx context.Context, id string, selections []bundle.Selection) (*bundle.Inventory, error) {
	var out struct {
		Inventory *bundle.Inventory `json:"inventory"`
	}
	if err := c.do(ctx, http.MethodPost, id, "/inventory", selectionBody{SelectedComponents: nonNil(selections)}, &out); err != nil {
		return nil, err
	}
	if out.Inventory == nil {
		return nil, common.NewError(common.CodeUnknownError, "", fmt.Errorf("hosted inventory: empty payload"))
	}
	return out.Inventory, nil
}

// Price asks the backend for the authoritative bundle price.
func (c *Client) Price(ctx context.Context, id string, selections []bundle.Selection) (*bundle.PriceResult, error) {
	var out struct {
		Price *bundle.PriceResult `json:"price"`
	}
	if err := c.do(ctx, http.MethodPost, id, "/price", selectionBody{SelectedComponents: nonNil(selections)}, &out); err != nil {
		return nil, err
	}
	if out.Price == nil {
		return nil, common.NewError(common.CodeUnknownError, "", fmt.Errorf("hosted price: empty payload"))
	}
	return out.Price, nil
}

func nonNil(s []bundle.Selection) []bundle.Selection {
	if s == nil {
		return []bundle.Selection{}
	}
	return s
}

func (c *Client) do(ctx context.Context, method, id, suffix string, in, out any) error {
	op := "bundle" + strings.ReplaceAll(suffix, "/", "_")
	ctx, span := obs.StartSpan(ctx, "hosted."+op, id, attribute.String("http.method", method))
	defer span.End()
	defer obs.ObserveUpstream(target, op, time.Now())

	endpoint := c.baseURL + "/api/v1/bundle/" + url.PathEscape(id) + suffix
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode hosted %s: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return common.NewError(common.CodeInvalidConfig, "invalid hosted backend url", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set(ShopDomainHeader, c.shopDomain)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return common.NewError(common.CodeNetworkError, "", fmt.Errorf("hosted %s: %w", op, err))
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return common.NewError(common.CodeNetworkError, "", fmt.Errorf("read hosted %s: %w", op, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		mapped := errorFromResponse(resp.StatusCode, payload)
		c.logger.Warn().
			Str("operation", op).
			Str("bundle_id", id).
			Int("status", resp.StatusCode).
			Str("code", mapped.Code).
			Msg("hosted_backend_error")
		return mapped
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return common.NewError(common.CodeNetworkError, "", fmt.Errorf("decode hosted %s: %w", op, err))
	}
	return nil
}

// errorFromResponse maps a non-2xx reply to the error taxonomy: 404 and 429
// by status, otherwise by the body's code field, otherwise UNKNOWN_ERROR.
func errorFromResponse(status int, body []byte) *common.AppError {
	switch status {
	case http.StatusNotFound:
		return common.NewError(common.CodeBundleNotFound, "", nil)
	case http.StatusTooManyRequests:
		return common.NewError(common.CodeRateLimited, "", nil)
	}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)
	code, message := parsed.Code, parsed.Message
	if code == "" && parsed.Error != nil {
		code, message = parsed.Error.Code, parsed.Error.Message
	}
	cause := fmt.Errorf("hosted backend status %d", status)
	if !common.KnownCode(code) {
		return common.NewError(common.CodeUnknownError, message, cause)
	}
	return common.NewError(code, message, cause)
}
